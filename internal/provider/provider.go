package provider

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/skyarchive/museum-dl/internal/fetch"
	"github.com/skyarchive/museum-dl/internal/model"
)

// ErrNotFound is returned by FetchDetail when the provider has no object for
// the identifier.
var ErrNotFound = errors.New("object not found")

// ErrMalformedEnvelope is returned when a 2xx search response is not valid
// JSON or lacks the provider's envelope key. The controller treats it as
// fatal to the term on the first page and as end-of-results on later pages.
var ErrMalformedEnvelope = errors.New("malformed response envelope")

// Adapter is the uniform contract each museum API is driven through.
//
// Implementations encode one provider's endpoint shapes, auth parameter,
// page-size ceiling, and envelope parsing. They must tolerate missing
// optional fields (absent, not an error) and must surface HTTP failures as
// ordinary errors scoped to the single call.
type Adapter interface {
	// Name is the short provider name used in paths, flags, and logs.
	Name() string

	// PageSize returns the effective page size for the requested size,
	// clamped to the provider's ceiling.
	PageSize(requested int) int

	// Search returns one page of candidate records for the query term.
	// Pages are 1-indexed regardless of the provider's native offset
	// scheme.
	Search(ctx context.Context, query model.Query, page int) (model.Page, error)

	// FetchDetail returns the full record for a candidate. Providers whose
	// search responses already carry everything return the candidate
	// unchanged.
	FetchDetail(ctx context.Context, rec model.Record) (model.Record, error)

	// ResolveAssets extracts downloadable asset references from a detail
	// record through the adapter's ranked strategy chain. An empty result
	// is not an error.
	ResolveAssets(ctx context.Context, rec model.Record) ([]model.Asset, error)
}

// Config carries the shared dependencies and the per-provider credential.
type Config struct {
	// Client performs all HTTP traffic for the adapter.
	Client *fetch.Client

	// APIKey is the provider's static credential, where one is required.
	APIKey string

	// BaseURL overrides the provider's default API root. Tests point this
	// at an httptest server.
	BaseURL string

	// Log receives adapter diagnostics. Nil disables logging.
	Log *zap.Logger
}

func (c Config) logger() *zap.Logger {
	if c.Log == nil {
		return zap.NewNop()
	}
	return c.Log
}

// Info describes a registered provider for the `providers` listing.
type Info struct {
	Name     string
	Museum   string
	NeedsKey bool
	KeyEnv   string
}

// Catalog lists every registered provider in registration order.
var Catalog = []Info{
	{Name: "met", Museum: "Metropolitan Museum of Art", NeedsKey: false},
	{Name: "harvard", Museum: "Harvard Art Museums", NeedsKey: true, KeyEnv: "HARVARD_API_KEY"},
	{Name: "rijksmuseum", Museum: "Rijksmuseum", NeedsKey: true, KeyEnv: "RIJKSMUSEUM_API_KEY"},
	{Name: "europeana", Museum: "Europeana", NeedsKey: true, KeyEnv: "EUROPEANA_API_KEY"},
	{Name: "cooperhewitt", Museum: "Cooper Hewitt, Smithsonian Design Museum", NeedsKey: true, KeyEnv: "COOPERHEWITT_ACCESS_TOKEN"},
	{Name: "smithsonian", Museum: "Smithsonian Open Access", NeedsKey: true, KeyEnv: "SMITHSONIAN_API_KEY"},
}

// Names returns the registered provider names in order.
func Names() []string {
	names := make([]string, len(Catalog))
	for i, info := range Catalog {
		names[i] = info.Name
	}
	return names
}

// New constructs the named adapter.
func New(name string, cfg Config) (Adapter, error) {
	switch name {
	case "met":
		return NewMet(cfg), nil
	case "harvard":
		return NewHarvard(cfg), nil
	case "rijksmuseum":
		return NewRijksmuseum(cfg), nil
	case "europeana":
		return NewEuropeana(cfg), nil
	case "cooperhewitt":
		return NewCooperHewitt(cfg), nil
	case "smithsonian":
		return NewSmithsonian(cfg), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}

// clampPageSize applies a provider ceiling to the requested page size.
func clampPageSize(requested, ceiling int) int {
	if requested <= 0 || requested > ceiling {
		return ceiling
	}
	return requested
}

// asEnvelopeErr maps an undecodable 2xx body to ErrMalformedEnvelope and
// passes every other failure (transport, HTTP status) through unchanged.
func asEnvelopeErr(err error) error {
	if errors.Is(err, fetch.ErrInvalidJSON) {
		return fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	return err
}
