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
	cooperHewittBaseURL     = "https://api.collection.cooperhewitt.org/rest/"
	cooperHewittPageCeiling = 100
)

// cooperHewittSearchMethods is the ranked list of search fallbacks. The
// primary method filters to objects with images; when it yields nothing the
// alternates are tried in order until one returns at least one object.
var cooperHewittSearchMethods = []string{
	"cooperhewitt.search.objects",
	"cooperhewitt.search.collection",
	"cooperhewitt.exhibitions.getObjects",
}

// CooperHewitt adapts the Cooper Hewitt collection API.
//
// The API is a single REST endpoint dispatched on a "method" parameter. Its
// image metadata is the least consistent of the providers, so asset
// resolution runs the full four-stage chain: direct field, nested size-class
// walk, a dedicated getImages/getMedia call, and finally deterministic URL
// guesses validated by a HEAD probe.
type CooperHewitt struct {
	client  *fetch.Client
	token   string
	baseURL string
	log     *zap.Logger
}

// NewCooperHewitt creates the Cooper Hewitt adapter.
func NewCooperHewitt(cfg Config) *CooperHewitt {
	base := cfg.BaseURL
	if base == "" {
		base = cooperHewittBaseURL
	}
	return &CooperHewitt{client: cfg.Client, token: cfg.APIKey, baseURL: base, log: cfg.logger()}
}

func (c *CooperHewitt) Name() string { return "cooperhewitt" }

func (c *CooperHewitt) PageSize(requested int) int {
	return clampPageSize(requested, cooperHewittPageCeiling)
}

// call performs one REST call for the given method with extra parameters.
func (c *CooperHewitt) call(ctx context.Context, method string, extra url.Values) (map[string]any, error) {
	params := url.Values{}
	params.Set("method", method)
	params.Set("access_token", c.token)
	for key, values := range extra {
		for _, v := range values {
			params.Add(key, v)
		}
	}

	var envelope map[string]any
	if err := c.client.GetJSON(ctx, c.baseURL+"?"+params.Encode(), &envelope); err != nil {
		return nil, err
	}
	return envelope, nil
}

func (c *CooperHewitt) Search(ctx context.Context, query model.Query, page int) (model.Page, error) {
	size := c.PageSize(query.PageSize)

	extra := url.Values{}
	extra.Set("query", query.Term)
	extra.Set("page", strconv.Itoa(page))
	extra.Set("per_page", strconv.Itoa(size))
	extra.Set("has_images", "yes")
	extra.Set("sort", "relevance")

	envelope, err := c.call(ctx, cooperHewittSearchMethods[0], extra)
	if err != nil {
		return model.Page{}, asEnvelopeErr(err)
	}

	list := listAt(envelope, "objects")
	if _, ok := envelope["objects"]; !ok {
		return model.Page{}, fmt.Errorf("%w: missing objects", ErrMalformedEnvelope)
	}

	// Fallback search methods: tried only when the primary yields nothing.
	if len(list) == 0 {
		list = c.searchFallback(ctx, query.Term, page, size)
	}

	records := make([]model.Record, 0, len(list))
	for _, item := range list {
		payload, ok := item.(map[string]any)
		if !ok {
			continue
		}
		records = append(records, model.Record{
			ID:          str(payload, "id"),
			Title:       str(payload, "title"),
			Description: str(payload, "description"),
			Subject:     str(payload, "type"),
			Raw:         payload,
		})
	}

	return model.Page{Records: records, HasMore: len(records) == size}, nil
}

func (c *CooperHewitt) searchFallback(ctx context.Context, term string, page, size int) []any {
	extra := url.Values{}
	extra.Set("query", term)
	extra.Set("page", strconv.Itoa(page))
	extra.Set("per_page", strconv.Itoa(size))

	for _, method := range cooperHewittSearchMethods[1:] {
		envelope, err := c.call(ctx, method, extra)
		if err != nil {
			c.log.Debug("fallback search method failed",
				zap.String("method", method), zap.Error(err))
			continue
		}
		if list := listAt(envelope, "objects"); len(list) > 0 {
			c.log.Debug("fallback search method yielded objects",
				zap.String("method", method), zap.Int("objects", len(list)))
			return list
		}
	}
	return nil
}

// FetchDetail retrieves the full object payload via objects.getInfo.
func (c *CooperHewitt) FetchDetail(ctx context.Context, rec model.Record) (model.Record, error) {
	extra := url.Values{}
	extra.Set("object_id", rec.ID)

	envelope, err := c.call(ctx, "cooperhewitt.objects.getInfo", extra)
	if err != nil {
		var statusErr *fetch.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == 404 {
			return rec, fmt.Errorf("cooperhewitt object %s: %w", rec.ID, ErrNotFound)
		}
		return rec, err
	}

	object, ok := envelope["object"].(map[string]any)
	if !ok {
		// getInfo occasionally returns an empty envelope; the search
		// payload is still usable as the detail record.
		return rec, nil
	}

	rec.Title = str(object, "title")
	rec.Description = str(object, "description")
	rec.Subject = str(object, "type")
	rec.Raw = object
	return rec, nil
}

// ResolveAssets runs the full four-stage chain.
func (c *CooperHewitt) ResolveAssets(ctx context.Context, rec model.Record) ([]model.Asset, error) {
	chain := []resolver.Strategy{
		{
			Name: "direct-image-field",
			Resolve: func(ctx context.Context, rec model.Record) ([]model.Asset, error) {
				if u := str(mapAt(rec.Raw, "image"), "url"); u != "" {
					return []model.Asset{{URL: u, Kind: model.AssetPrimary}}, nil
				}
				return nil, nil
			},
		},
		{
			Name: "nested-image-sizes",
			Resolve: func(ctx context.Context, rec model.Record) ([]model.Asset, error) {
				return sizedAssets(listAt(rec.Raw, "images")), nil
			},
		},
		{
			Name: "object-media-call",
			Resolve: c.resolveViaMediaCall,
		},
		resolver.URLPatterns(c.client, func(rec model.Record) []string {
			return []string{
				"https://images.collection.cooperhewitt.org/images/" + rec.ID + "_large.jpg",
				"https://collection.cooperhewitt.org/iiif/" + rec.ID + "/full/full/0/default.jpg",
				"https://images.collection.cooperhewitt.org/" + rec.ID + "_b.jpg",
			}
		}),
	}

	assets, winner := resolver.Resolve(ctx, c.log, chain, rec)
	if winner != "" {
		c.log.Debug("resolved assets", zap.String("id", rec.ID), zap.String("strategy", winner))
	}
	return assets, nil
}

// resolveViaMediaCall asks the dedicated media endpoints for image records.
func (c *CooperHewitt) resolveViaMediaCall(ctx context.Context, rec model.Record) ([]model.Asset, error) {
	extra := url.Values{}
	extra.Set("object_id", rec.ID)

	for _, method := range []string{"cooperhewitt.objects.getImages", "cooperhewitt.objects.getMedia"} {
		envelope, err := c.call(ctx, method, extra)
		if err != nil {
			continue
		}
		for _, key := range []string{"images", "media"} {
			if assets := sizedAssets(listAt(envelope, key)); len(assets) > 0 {
				return assets, nil
			}
		}
	}
	return nil, nil
}

// sizedAssets walks a list of size-keyed image entries. The first populated
// entry becomes the primary asset; later entries become additional assets.
func sizedAssets(entries []any) []model.Asset {
	var assets []model.Asset
	for _, item := range entries {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		u, size := resolver.FirstSized(entry, model.RankedSizeClasses)
		if u == "" {
			continue
		}
		kind := model.AssetAdditional
		if len(assets) == 0 {
			kind = model.AssetPrimary
		}
		assets = append(assets, model.Asset{URL: u, Kind: kind, Size: size})
	}
	return assets
}
