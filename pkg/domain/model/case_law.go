package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// CaseLawQuery asks an external source for published precedents
type CaseLawQuery struct {
	Query        string
	Jurisdiction string
	MaxResults   int
}

// CaseLawHit is one precedent found on the web. Content is a cleaned excerpt.
type CaseLawHit struct {
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	Content       string  `json:"content"`
	Score         float64 `json:"score"`
	PublishedDate string  `json:"published_date,omitempty"`
}

// CaseLawRuleID derives a stable rule ID from a precedent URL so that recording
// the same precedent twice replaces the earlier record.
func CaseLawRuleID(url string) RuleID {
	sum := sha256.Sum256([]byte(strings.TrimSpace(url)))
	return RuleID("web-" + hex.EncodeToString(sum[:12]))
}
