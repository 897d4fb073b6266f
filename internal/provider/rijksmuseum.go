package provider

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/skyarchive/museum-dl/internal/fetch"
	"github.com/skyarchive/museum-dl/internal/model"
	"github.com/skyarchive/museum-dl/internal/resolver"
)

const (
	rijksBaseURL     = "https://www.rijksmuseum.nl/api/en"
	rijksPageCeiling = 100
)

// Rijksmuseum adapts the Rijksmuseum collection API.
//
// Search pages carry abbreviated art objects; the full record comes from a
// per-object detail fetch wrapped in an "artObject" envelope. The provider
// exposes a distinct low-resolution header image, which the adapter surfaces
// as a thumbnail asset.
type Rijksmuseum struct {
	client  *fetch.Client
	apiKey  string
	baseURL string
	log     *zap.Logger
}

// NewRijksmuseum creates the Rijksmuseum adapter.
func NewRijksmuseum(cfg Config) *Rijksmuseum {
	base := cfg.BaseURL
	if base == "" {
		base = rijksBaseURL
	}
	return &Rijksmuseum{client: cfg.Client, apiKey: cfg.APIKey, baseURL: base, log: cfg.logger()}
}

func (r *Rijksmuseum) Name() string { return "rijksmuseum" }

func (r *Rijksmuseum) PageSize(requested int) int { return clampPageSize(requested, rijksPageCeiling) }

func (r *Rijksmuseum) Search(ctx context.Context, query model.Query, page int) (model.Page, error) {
	size := r.PageSize(query.PageSize)

	params := url.Values{}
	params.Set("key", r.apiKey)
	params.Set("q", query.Term)
	params.Set("format", "json")
	params.Set("imgonly", "True")
	params.Set("p", strconv.Itoa(page))
	params.Set("ps", strconv.Itoa(size))
	params.Set("culture", "en")

	var envelope map[string]any
	if err := r.client.GetJSON(ctx, r.baseURL+"/collection?"+params.Encode(), &envelope); err != nil {
		return model.Page{}, asEnvelopeErr(err)
	}

	rawObjects, ok := envelope["artObjects"]
	if !ok {
		return model.Page{}, fmt.Errorf("%w: missing artObjects", ErrMalformedEnvelope)
	}

	list, _ := rawObjects.([]any)
	records := make([]model.Record, 0, len(list))
	for _, item := range list {
		payload, ok := item.(map[string]any)
		if !ok {
			continue
		}
		records = append(records, model.Record{
			ID:          str(payload, "objectNumber"),
			Title:       str(payload, "title"),
			Description: str(payload, "longTitle"),
			Creator:     str(payload, "principalOrFirstMaker"),
			Raw:         payload,
		})
	}

	return model.Page{Records: records, HasMore: len(records) == size}, nil
}

// FetchDetail retrieves the full artObject payload for the object number.
func (r *Rijksmuseum) FetchDetail(ctx context.Context, rec model.Record) (model.Record, error) {
	params := url.Values{}
	params.Set("key", r.apiKey)
	params.Set("format", "json")

	var envelope map[string]any
	endpoint := r.baseURL + "/collection/" + url.PathEscape(rec.ID) + "?" + params.Encode()
	if err := r.client.GetJSON(ctx, endpoint, &envelope); err != nil {
		var statusErr *fetch.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == 404 {
			return rec, fmt.Errorf("rijksmuseum object %s: %w", rec.ID, ErrNotFound)
		}
		return rec, err
	}

	artObject, ok := envelope["artObject"].(map[string]any)
	if !ok {
		return rec, fmt.Errorf("detail for %s: %w: missing artObject", rec.ID, ErrMalformedEnvelope)
	}

	rec.Title = str(artObject, "title")
	rec.Description = str(artObject, "plaqueDescriptionEnglish")
	if rec.Description == "" {
		rec.Description = str(mapAt(artObject, "label"), "description")
	}
	rec.Creator = str(artObject, "principalOrFirstMaker")
	rec.Raw = artObject
	return rec, nil
}

// ResolveAssets returns the web image as the primary asset and the header
// image, when present, as a thumbnail.
func (r *Rijksmuseum) ResolveAssets(ctx context.Context, rec model.Record) ([]model.Asset, error) {
	chain := []resolver.Strategy{
		{
			Name: "web-image-field",
			Resolve: func(ctx context.Context, rec model.Record) ([]model.Asset, error) {
				var assets []model.Asset
				if u := str(mapAt(rec.Raw, "webImage"), "url"); u != "" {
					assets = append(assets, model.Asset{URL: u, Kind: model.AssetPrimary})
				}
				if u := str(mapAt(rec.Raw, "headerImage"), "url"); u != "" {
					assets = append(assets, model.Asset{URL: u, Kind: model.AssetThumbnail})
				}
				return assets, nil
			},
		},
	}

	assets, _ := resolver.Resolve(ctx, r.log, chain, rec)
	return assets, nil
}
