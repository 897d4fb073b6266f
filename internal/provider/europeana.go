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
	europeanaBaseURL     = "https://api.europeana.eu/record/v2"
	europeanaPageCeiling = 100
)

// Europeana adapts the Europeana record search API.
//
// Everything the pipeline needs arrives in the search response: the items
// are the detail records, and the only asset is the edmPreview URL. The
// API's offset is 1-based (start = (page-1)*rows + 1). Item identifiers
// contain slashes ("/90402/SK_A_2344") and rely on filename sanitization.
type Europeana struct {
	client  *fetch.Client
	apiKey  string
	baseURL string
	log     *zap.Logger
}

// NewEuropeana creates the Europeana adapter.
func NewEuropeana(cfg Config) *Europeana {
	base := cfg.BaseURL
	if base == "" {
		base = europeanaBaseURL
	}
	return &Europeana{client: cfg.Client, apiKey: cfg.APIKey, baseURL: base, log: cfg.logger()}
}

func (e *Europeana) Name() string { return "europeana" }

func (e *Europeana) PageSize(requested int) int {
	return clampPageSize(requested, europeanaPageCeiling)
}

func (e *Europeana) Search(ctx context.Context, query model.Query, page int) (model.Page, error) {
	rows := e.PageSize(query.PageSize)

	params := url.Values{}
	params.Set("wskey", e.apiKey)
	params.Set("query", query.Term)
	params.Set("media", "true")
	params.Set("thumbnail", "true")
	params.Set("reusability", "open")
	params.Set("rows", strconv.Itoa(rows))
	params.Set("start", strconv.Itoa((page-1)*rows+1))

	var envelope map[string]any
	if err := e.client.GetJSON(ctx, e.baseURL+"/search.json?"+params.Encode(), &envelope); err != nil {
		return model.Page{}, asEnvelopeErr(err)
	}

	rawItems, ok := envelope["items"]
	if !ok {
		return model.Page{}, fmt.Errorf("%w: missing items", ErrMalformedEnvelope)
	}

	list, _ := rawItems.([]any)
	records := make([]model.Record, 0, len(list))
	for _, item := range list {
		payload, ok := item.(map[string]any)
		if !ok {
			continue
		}
		records = append(records, model.Record{
			ID:          str(payload, "id"),
			Title:       firstStr(payload, "title"),
			Description: firstStr(payload, "dcDescription"),
			Subject:     firstStr(payload, "dcSubject"),
			Creator:     firstStr(payload, "dcCreator"),
			Raw:         payload,
		})
	}

	return model.Page{Records: records, HasMore: len(records) == rows}, nil
}

// FetchDetail returns the candidate unchanged; Europeana search items are
// the detail records.
func (e *Europeana) FetchDetail(ctx context.Context, rec model.Record) (model.Record, error) {
	return rec, nil
}

// ResolveAssets reads the edmPreview field, Europeana's only exposed asset.
func (e *Europeana) ResolveAssets(ctx context.Context, rec model.Record) ([]model.Asset, error) {
	chain := []resolver.Strategy{
		{
			Name: "edm-preview-field",
			Resolve: func(ctx context.Context, rec model.Record) ([]model.Asset, error) {
				if u := firstStr(rec.Raw, "edmPreview"); u != "" {
					return []model.Asset{{URL: u, Kind: model.AssetPrimary}}, nil
				}
				return nil, nil
			},
		},
	}

	assets, _ := resolver.Resolve(ctx, e.log, chain, rec)
	return assets, nil
}
