package tracking

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Token is the payload carried by tracking URLs. It is encoded as
// URL-safe base64 of its JSON form; the receiving endpoint decodes it to
// record a TrackingEvent.
type Token struct {
	CampaignID  string `json:"campaignId"`
	Email       string `json:"email"`
	Type        string `json:"type"`
	OriginalURL string `json:"originalUrl,omitempty"`
	Timestamp   int64  `json:"timestamp"`
}

const (
	TokenTypeOpen  = "open"
	TokenTypeClick = "click"
)

// EncodeToken serializes a token for embedding in a tracking URL.
func EncodeToken(t Token) string {
	raw, _ := json.Marshal(t)
	return base64.URLEncoding.EncodeToString(raw)
}

// DecodeToken parses a token from a tracking URL query parameter.
func DecodeToken(data string) (Token, error) {
	raw, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		return Token{}, fmt.Errorf("decode tracking token: %w", err)
	}
	var t Token
	if err := json.Unmarshal(raw, &t); err != nil {
		return Token{}, fmt.Errorf("parse tracking token: %w", err)
	}
	if t.CampaignID == "" || t.Email == "" {
		return Token{}, fmt.Errorf("tracking token missing campaign or email")
	}
	return t, nil
}
