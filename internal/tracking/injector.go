// Package tracking rewrites campaign HTML for open and click tracking.
// Both transforms are pure string functions with no I/O.
package tracking

import (
	"fmt"
	"regexp"
	"strings"

	"delivery-pipeline/internal/common/clock"
)

const (
	// PixelPath and ClickPath are the endpoints the rewritten URLs point
	// at; RewriteClicks also uses them to detect already-wrapped links.
	PixelPath = "/tracking/pixel"
	ClickPath = "/tracking/click"
)

var (
	anchorRe = regexp.MustCompile(`(?i)<a\s+([^>]*href=["']([^"']+)["'][^>]*)>`)
	hrefRe   = regexp.MustCompile(`(?i)href=["'][^"']+["']`)
)

// Injector builds tracking URLs rooted at BaseURL.
type Injector struct {
	BaseURL string
	Clock   clock.Clock
}

func NewInjector(baseURL string, clk clock.Clock) Injector {
	if clk == nil {
		clk = clock.System()
	}
	return Injector{BaseURL: strings.TrimRight(baseURL, "/"), Clock: clk}
}

// PixelURL returns the open-tracking URL for one campaign recipient.
func (i Injector) PixelURL(campaignID, email string) string {
	token := EncodeToken(Token{
		CampaignID: campaignID,
		Email:      email,
		Type:       TokenTypeOpen,
		Timestamp:  i.Clock.Now().UnixMilli(),
	})
	return fmt.Sprintf("%s%s?data=%s", i.BaseURL, PixelPath, token)
}

// InjectOpenPixel embeds an invisible 1x1 image immediately before the
// closing body tag, or appends it when the document has no body tag.
func (i Injector) InjectOpenPixel(html, campaignID, email string) string {
	pixel := fmt.Sprintf(`<img src="%s" width="1" height="1" style="display:none;" alt="" />`, i.PixelURL(campaignID, email))
	if strings.Contains(html, "</body>") {
		return strings.Replace(html, "</body>", pixel+"</body>", 1)
	}
	return html + pixel
}

// RewriteClicks replaces every anchor href with a click-tracking redirect
// URL, preserving all other anchor attributes. Anchors whose href starts
// with "#" or already targets the tracking endpoint are left untouched,
// so the rewrite is idempotent.
func (i Injector) RewriteClicks(html, campaignID, email string) string {
	return anchorRe.ReplaceAllStringFunc(html, func(match string) string {
		groups := anchorRe.FindStringSubmatch(match)
		if groups == nil {
			return match
		}
		attributes, originalURL := groups[1], groups[2]

		if strings.HasPrefix(originalURL, "#") || strings.Contains(originalURL, ClickPath) {
			return match
		}

		token := EncodeToken(Token{
			CampaignID:  campaignID,
			Email:       email,
			Type:        TokenTypeClick,
			OriginalURL: originalURL,
			Timestamp:   i.Clock.Now().UnixMilli(),
		})
		trackingURL := fmt.Sprintf("%s%s?data=%s", i.BaseURL, ClickPath, token)

		return "<a " + hrefRe.ReplaceAllString(attributes, `href="`+trackingURL+`"`) + ">"
	})
}
