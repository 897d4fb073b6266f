package provider

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/skyarchive/museum-dl/internal/fetch"
	"github.com/skyarchive/museum-dl/internal/model"
	"github.com/skyarchive/museum-dl/internal/resolver"
)

const (
	harvardBaseURL     = "https://api.harvardartmuseums.org"
	harvardPageCeiling = 100

	// harvardFields projects the response down to the fields the pipeline
	// actually reads, which keeps search pages small.
	harvardFields = "id,title,description,primaryimageurl,imagepermissionlevel,images,people,culture,dated"
)

// Harvard adapts the Harvard Art Museums API.
//
// Search responses carry the full object record, so FetchDetail is a no-op
// and exclusion filtering works on the candidates directly.
type Harvard struct {
	client  *fetch.Client
	apiKey  string
	baseURL string
	log     *zap.Logger
}

// NewHarvard creates the Harvard adapter.
func NewHarvard(cfg Config) *Harvard {
	base := cfg.BaseURL
	if base == "" {
		base = harvardBaseURL
	}
	return &Harvard{client: cfg.Client, apiKey: cfg.APIKey, baseURL: base, log: cfg.logger()}
}

func (h *Harvard) Name() string { return "harvard" }

func (h *Harvard) PageSize(requested int) int { return clampPageSize(requested, harvardPageCeiling) }

func (h *Harvard) Search(ctx context.Context, query model.Query, page int) (model.Page, error) {
	size := h.PageSize(query.PageSize)

	params := url.Values{}
	params.Set("apikey", h.apiKey)
	params.Set("q", query.Term)
	params.Set("hasimage", "1")
	params.Set("page", strconv.Itoa(page))
	params.Set("size", strconv.Itoa(size))
	params.Set("fields", harvardFields)

	var envelope map[string]any
	if err := h.client.GetJSON(ctx, h.baseURL+"/object?"+params.Encode(), &envelope); err != nil {
		return model.Page{}, asEnvelopeErr(err)
	}

	rawRecords, ok := envelope["records"]
	if !ok {
		return model.Page{}, fmt.Errorf("%w: missing records", ErrMalformedEnvelope)
	}

	list, _ := rawRecords.([]any)
	records := make([]model.Record, 0, len(list))
	for _, item := range list {
		payload, ok := item.(map[string]any)
		if !ok {
			continue
		}
		records = append(records, harvardRecord(payload))
	}

	return model.Page{Records: records, HasMore: len(records) == size}, nil
}

func harvardRecord(payload map[string]any) model.Record {
	id := ""
	if f, ok := payload["id"].(float64); ok {
		id = strconv.Itoa(int(f))
	}
	return model.Record{
		ID:          id,
		Title:       str(payload, "title"),
		Description: str(payload, "description"),
		Subject:     str(payload, "culture"),
		Creator:     joinStrs(listAt(payload, "people"), "name"),
		Raw:         payload,
	}
}

// FetchDetail returns the candidate unchanged; Harvard search records are
// already complete.
func (h *Harvard) FetchDetail(ctx context.Context, rec model.Record) (model.Record, error) {
	return rec, nil
}

// ResolveAssets prefers the explicit primaryimageurl field, with the nested
// images collection as both the source of additional assets and the fallback
// when no primary URL is published.
func (h *Harvard) ResolveAssets(ctx context.Context, rec model.Record) ([]model.Asset, error) {
	chain := []resolver.Strategy{
		{
			Name: "primary-image-field",
			Resolve: func(ctx context.Context, rec model.Record) ([]model.Asset, error) {
				primary := str(rec.Raw, "primaryimageurl")
				if primary == "" {
					return nil, nil
				}
				assets := []model.Asset{{URL: primary, Kind: model.AssetPrimary}}
				for _, a := range harvardNestedImages(rec) {
					if a.URL != primary {
						assets = append(assets, a)
					}
				}
				return assets, nil
			},
		},
		{
			Name: "nested-images",
			Resolve: func(ctx context.Context, rec model.Record) ([]model.Asset, error) {
				nested := harvardNestedImages(rec)
				if len(nested) == 0 {
					return nil, nil
				}
				nested[0].Kind = model.AssetPrimary
				return nested, nil
			},
		},
	}

	assets, _ := resolver.Resolve(ctx, h.log, chain, rec)
	return assets, nil
}

func harvardNestedImages(rec model.Record) []model.Asset {
	var assets []model.Asset
	for _, item := range listAt(rec.Raw, "images") {
		img, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if u := str(img, "baseimageurl"); u != "" {
			assets = append(assets, model.Asset{URL: u, Kind: model.AssetAdditional})
		}
	}
	return assets
}
