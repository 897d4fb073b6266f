package provider

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/skyarchive/museum-dl/internal/fetch"
	"github.com/skyarchive/museum-dl/internal/model"
	"github.com/skyarchive/museum-dl/internal/resolver"
)

const (
	metBaseURL     = "https://collectionapi.metmuseum.org/public/collection/v1"
	metPageCeiling = 100
)

// Met adapts the Metropolitan Museum of Art collection API.
//
// The Met search endpoint requires no key and returns the complete objectID
// list for a term in a single response; the adapter paginates that list
// client-side so the controller sees the same page contract as everywhere
// else. Search candidates carry only an identifier, so exclusion filtering
// for this provider only takes effect after the detail fetch.
type Met struct {
	client  *fetch.Client
	baseURL string
	log     *zap.Logger

	mu       sync.Mutex
	lastTerm string
	ids      []int
}

// NewMet creates the Met adapter.
func NewMet(cfg Config) *Met {
	base := cfg.BaseURL
	if base == "" {
		base = metBaseURL
	}
	return &Met{client: cfg.Client, baseURL: base, log: cfg.logger()}
}

func (m *Met) Name() string { return "met" }

func (m *Met) PageSize(requested int) int { return clampPageSize(requested, metPageCeiling) }

// Search returns page `page` of the cached objectID list, refreshing the
// cache when the term changes.
func (m *Met) Search(ctx context.Context, query model.Query, page int) (model.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lastTerm != query.Term {
		ids, err := m.searchIDs(ctx, query.Term)
		if err != nil {
			return model.Page{}, err
		}
		m.lastTerm = query.Term
		m.ids = ids
	}

	size := m.PageSize(query.PageSize)
	start := (page - 1) * size
	if start >= len(m.ids) {
		return model.Page{}, nil
	}
	end := start + size
	if end > len(m.ids) {
		end = len(m.ids)
	}

	records := make([]model.Record, 0, end-start)
	for _, id := range m.ids[start:end] {
		records = append(records, model.Record{ID: strconv.Itoa(id)})
	}
	return model.Page{Records: records, HasMore: end < len(m.ids)}, nil
}

func (m *Met) searchIDs(ctx context.Context, term string) ([]int, error) {
	params := url.Values{}
	params.Set("q", term)
	params.Set("hasImages", "true")

	var envelope map[string]any
	if err := m.client.GetJSON(ctx, m.baseURL+"/search?"+params.Encode(), &envelope); err != nil {
		return nil, asEnvelopeErr(err)
	}

	rawIDs, ok := envelope["objectIDs"]
	if !ok {
		return nil, fmt.Errorf("%w: missing objectIDs", ErrMalformedEnvelope)
	}

	list, _ := rawIDs.([]any)
	ids := make([]int, 0, len(list))
	for _, v := range list {
		if f, ok := v.(float64); ok {
			ids = append(ids, int(f))
		}
	}
	m.log.Debug("met search complete", zap.String("term", term), zap.Int("object_ids", len(ids)))
	return ids, nil
}

// FetchDetail retrieves the full object payload.
func (m *Met) FetchDetail(ctx context.Context, rec model.Record) (model.Record, error) {
	var payload map[string]any
	err := m.client.GetJSON(ctx, m.baseURL+"/objects/"+url.PathEscape(rec.ID), &payload)
	if err != nil {
		var statusErr *fetch.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == 404 {
			return rec, fmt.Errorf("met object %s: %w", rec.ID, ErrNotFound)
		}
		return rec, err
	}

	rec.Title = str(payload, "title")
	rec.Description = str(payload, "objectName")
	rec.Subject = joinStrs(listAt(payload, "tags"), "term")
	rec.Creator = str(payload, "artistDisplayName")
	rec.Raw = payload
	return rec, nil
}

// ResolveAssets reads the primary and additional image fields of the detail
// payload. The Met needs no fallback strategies: objects matched with
// hasImages=true always carry primaryImage when one is published.
func (m *Met) ResolveAssets(ctx context.Context, rec model.Record) ([]model.Asset, error) {
	chain := []resolver.Strategy{
		{
			Name: "primary-image-field",
			Resolve: func(ctx context.Context, rec model.Record) ([]model.Asset, error) {
				var assets []model.Asset
				if primary := str(rec.Raw, "primaryImage"); primary != "" {
					assets = append(assets, model.Asset{URL: primary, Kind: model.AssetPrimary})
				}
				for _, extra := range listAt(rec.Raw, "additionalImages") {
					if u, ok := extra.(string); ok && u != "" {
						assets = append(assets, model.Asset{URL: u, Kind: model.AssetAdditional})
					}
				}
				return assets, nil
			},
		},
	}

	assets, _ := resolver.Resolve(ctx, m.log, chain, rec)
	return assets, nil
}
