package model

import "strings"

// Query describes one harvest request. A Query is immutable once a harvest
// run starts; the controller and adapters only ever read it.
type Query struct {
	// Term is the search term sent to the provider.
	Term string

	// Exclusions are terms that disqualify a record when they occur as a
	// case-insensitive substring of its text fields.
	Exclusions []string

	// Cap is the maximum number of items to process for this term.
	// Zero means no items are processed.
	Cap int

	// PageSize is the requested page size. Adapters clamp it to their
	// provider's ceiling.
	PageSize int
}

// Record is a collection object as reported by a provider.
//
// A Record produced by a search page may carry only an identifier (some
// providers return bare ID lists); the same type in its detail form carries
// the full payload. Providers that return everything in the search response
// use one Record for both roles.
type Record struct {
	// ID is the provider-native identifier. Uniqueness is provider-scoped.
	ID string

	// Title is the object title, if known.
	Title string

	// Description is a short descriptive text, if known.
	Description string

	// Subject is the subject classification text, if known.
	Subject string

	// Creator is the artist or maker text, if known.
	Creator string

	// Raw is the full provider payload for this object. It is persisted
	// verbatim as the metadata file and is never interpreted outside the
	// owning adapter.
	Raw map[string]any
}

// SearchText returns the lower-cased concatenation of the record's text
// fields. Exclusion matching operates on this string.
func (r Record) SearchText() string {
	parts := []string{r.Title, r.Description, r.Subject, r.Creator}
	return strings.ToLower(strings.Join(parts, " "))
}

// Page is one page of search results.
type Page struct {
	// Records are the candidate records on this page, in provider order.
	Records []Record

	// HasMore reports whether the provider indicated further pages.
	// A false value ends pagination even if the page is full.
	HasMore bool
}
