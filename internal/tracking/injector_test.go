package tracking

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"delivery-pipeline/internal/common/clock"
)

func fixedInjector() Injector {
	return NewInjector("https://mail.example.com", clock.Fixed{T: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)})
}

func TestTokenRoundTrip(t *testing.T) {
	original := Token{
		CampaignID:  "camp-1",
		Email:       "alice@example.com",
		Type:        TokenTypeClick,
		OriginalURL: "https://example.com/offer",
		Timestamp:   1740000000000,
	}

	decoded, err := DecodeToken(EncodeToken(original))
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestDecodeToken_Invalid(t *testing.T) {
	_, err := DecodeToken("not base64!!!")
	assert.Error(t, err)

	_, err = DecodeToken(EncodeToken(Token{Type: TokenTypeOpen}))
	assert.Error(t, err, "token without campaign and email is rejected")
}

func TestInjectOpenPixel_BeforeBodyClose(t *testing.T) {
	inj := fixedInjector()
	html := "<html><body><p>Hello</p></body></html>"

	out := inj.InjectOpenPixel(html, "camp-1", "alice@example.com")

	pixelIdx := strings.Index(out, "<img src=\"https://mail.example.com/tracking/pixel?data=")
	bodyIdx := strings.Index(out, "</body>")
	require.NotEqual(t, -1, pixelIdx)
	assert.Less(t, pixelIdx, bodyIdx, "pixel is injected before the closing body tag")
	assert.Contains(t, out, `width="1" height="1" style="display:none;"`)
}

func TestInjectOpenPixel_NoBodyTag(t *testing.T) {
	inj := fixedInjector()

	out := inj.InjectOpenPixel("<p>Hello</p>", "camp-1", "alice@example.com")

	assert.True(t, strings.HasPrefix(out, "<p>Hello</p><img src="), "pixel is appended when there is no body tag")
}

func TestRewriteClicks_ReplacesHrefKeepsAttributes(t *testing.T) {
	inj := fixedInjector()
	html := `<a class="btn" href="https://example.com/offer" target="_blank">Deal</a>`

	out := inj.RewriteClicks(html, "camp-1", "alice@example.com")

	assert.Contains(t, out, `class="btn"`)
	assert.Contains(t, out, `target="_blank"`)
	assert.Contains(t, out, "https://mail.example.com/tracking/click?data=")
	assert.NotContains(t, out, `href="https://example.com/offer"`)

	// the original destination survives inside the token
	start := strings.Index(out, "data=") + len("data=")
	end := strings.IndexAny(out[start:], `"'`)
	token, err := DecodeToken(out[start : start+end])
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/offer", token.OriginalURL)
	assert.Equal(t, TokenTypeClick, token.Type)
}

func TestRewriteClicks_SkipsAnchorsAndIsIdempotent(t *testing.T) {
	inj := fixedInjector()
	html := `<a href="#section">Jump</a> <a href="https://example.com/a">A</a> <a href='https://example.com/b'>B</a>`

	once := inj.RewriteClicks(html, "camp-1", "alice@example.com")
	twice := inj.RewriteClicks(once, "camp-1", "alice@example.com")

	assert.Contains(t, once, `href="#section"`, "fragment-only links are untouched")
	assert.Equal(t, 2, strings.Count(once, "/tracking/click?data="))
	assert.Equal(t, once, twice, "a second pass changes nothing")
}

func TestRewriteClicks_ManyLinks(t *testing.T) {
	inj := fixedInjector()
	var b strings.Builder
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&b, `<a href="https://example.com/p/%d">link %d</a>`, i, i)
	}

	out := inj.RewriteClicks(b.String(), "camp-1", "bob@example.com")

	assert.Equal(t, 10, strings.Count(out, "/tracking/click?data="))
	assert.NotContains(t, out, `href="https://example.com/p/`)
}
