package provider

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/skyarchive/museum-dl/internal/fetch"
	"github.com/skyarchive/museum-dl/internal/model"
	"github.com/skyarchive/museum-dl/internal/resolver"
)

const (
	smithsonianBaseURL     = "https://api.si.edu/openaccess/api/v1.0"
	smithsonianPageCeiling = 100

	// smithsonianUnitFilter excludes the Natural History units server-side.
	// Their specimen records dwarf the art collections in any nature-themed
	// search and are never wanted here.
	smithsonianUnitFilter = "-unit_code:NMNHBOTANY AND -unit_code:NMNHENTO AND" +
		" -unit_code:NMNHMIN AND -unit_code:NMNHPALEO AND -unit_code:NMNHHERPS AND" +
		" -unit_code:NMNHINV AND -unit_code:NMNHMAMMALS AND -unit_code:NMNHMOLLUSKS AND" +
		" -unit_code:NMNHBIRDS"

	smithsonianIDSBase = "https://ids.si.edu/"
)

// smithsonianMediaMarkers identify media entries whose content URL points at
// a servable image rather than a landing page.
var smithsonianMediaMarkers = []string{"deliveryService", "ids", "iiif", "mq"}

// Smithsonian adapts the Smithsonian Open Access API.
type Smithsonian struct {
	client  *fetch.Client
	apiKey  string
	baseURL string
	log     *zap.Logger
}

// NewSmithsonian creates the Smithsonian adapter.
func NewSmithsonian(cfg Config) *Smithsonian {
	base := cfg.BaseURL
	if base == "" {
		base = smithsonianBaseURL
	}
	return &Smithsonian{client: cfg.Client, apiKey: cfg.APIKey, baseURL: base, log: cfg.logger()}
}

func (s *Smithsonian) Name() string { return "smithsonian" }

func (s *Smithsonian) PageSize(requested int) int {
	return clampPageSize(requested, smithsonianPageCeiling)
}

func (s *Smithsonian) Search(ctx context.Context, query model.Query, page int) (model.Page, error) {
	size := s.PageSize(query.PageSize)

	params := url.Values{}
	params.Set("api_key", s.apiKey)
	params.Set("q", query.Term)
	params.Set("fq", smithsonianUnitFilter)
	params.Set("rows", strconv.Itoa(size))
	params.Set("start", strconv.Itoa((page-1)*size))
	params.Set("media_type", "Images")

	var envelope map[string]any
	if err := s.client.GetJSON(ctx, s.baseURL+"/search?"+params.Encode(), &envelope); err != nil {
		return model.Page{}, asEnvelopeErr(err)
	}

	response := mapAt(envelope, "response")
	if response == nil {
		return model.Page{}, fmt.Errorf("%w: missing response", ErrMalformedEnvelope)
	}
	rows := listAt(response, "rows")

	records := make([]model.Record, 0, len(rows))
	for _, item := range rows {
		payload, ok := item.(map[string]any)
		if !ok {
			continue
		}
		// The fq filter misses records whose unit code is set but not
		// indexed, so the NMNH check is repeated client-side.
		if strings.Contains(str(payload, "unitCode"), "NMNH") {
			s.log.Debug("dropping natural history record", zap.String("id", str(payload, "id")))
			continue
		}
		freetext := digMap(payload, "content", "freetext")
		records = append(records, model.Record{
			ID:          str(payload, "id"),
			Title:       str(payload, "title"),
			Description: joinStrs(listAt(freetext, "notes"), "content"),
			Subject:     joinStrs(listAt(freetext, "topic"), "content"),
			Creator:     joinStrs(listAt(freetext, "name"), "content"),
			Raw:         payload,
		})
	}

	return model.Page{Records: records, HasMore: len(rows) == size}, nil
}

// FetchDetail is a no-op: search rows already carry the full content block.
func (s *Smithsonian) FetchDetail(ctx context.Context, rec model.Record) (model.Record, error) {
	return rec, nil
}

// ResolveAssets walks online_media entries, keeping those whose URL matches a
// known image-service pattern. Relative URLs are absolutized against the
// Smithsonian image delivery host, and deliveryService URLs get a max=1000
// parameter so the service returns a usably large rendition.
func (s *Smithsonian) ResolveAssets(ctx context.Context, rec model.Record) ([]model.Asset, error) {
	chain := []resolver.Strategy{{
		Name: "online-media-field",
		Resolve: func(ctx context.Context, rec model.Record) ([]model.Asset, error) {
			media := listAt(digMap(rec.Raw, "content", "descriptiveNonRepeating", "online_media"), "media")

			var assets []model.Asset
			for _, item := range media {
				entry, ok := item.(map[string]any)
				if !ok {
					continue
				}
				u := normalizeSmithsonianURL(str(entry, "content"))
				if u == "" {
					continue
				}
				kind := model.AssetAdditional
				if len(assets) == 0 {
					kind = model.AssetPrimary
				}
				assets = append(assets, model.Asset{URL: u, Kind: kind})
			}
			return assets, nil
		},
	}}

	assets, _ := resolver.Resolve(ctx, s.log, chain, rec)
	return assets, nil
}

func normalizeSmithsonianURL(raw string) string {
	if raw == "" || !matchesMediaMarker(raw) {
		return ""
	}
	if strings.HasPrefix(raw, "edu/") || strings.HasPrefix(raw, "/") {
		raw = smithsonianIDSBase + strings.TrimPrefix(raw, "/")
	}
	if strings.Contains(raw, "deliveryService") && !strings.Contains(raw, "max=") {
		raw += "&max=1000"
	}
	return raw
}

func matchesMediaMarker(raw string) bool {
	for _, marker := range smithsonianMediaMarkers {
		if strings.Contains(raw, marker) {
			return true
		}
	}
	return false
}
