// Package filter implements the exclusion predicate applied to candidate
// records before any per-item network traffic.
//
// The predicate is deliberately dumb: lower-cased substring matching over the
// record's concatenated text fields, no stemming, no partial words. Running it
// before detail fetches and downloads bounds wasted requests against
// rate-limited provider APIs, so the ordering is a correctness requirement of
// the controller, not an optimization.
package filter

import (
	"strings"

	"github.com/skyarchive/museum-dl/internal/model"
)

// Excluded reports whether rec matches any of the exclusion terms.
//
// A record matches when some term occurs, case-insensitively, as a substring
// of the concatenation of its title, description, subject, and creator
// fields. Empty terms never match.
func Excluded(rec model.Record, terms []string) bool {
	if len(terms) == 0 {
		return false
	}

	text := rec.SearchText()
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}
