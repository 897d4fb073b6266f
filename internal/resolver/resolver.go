// Package resolver turns a detail record into downloadable asset references.
//
// Resolution is an explicit ordered chain of strategies. Each strategy either
// yields assets or nothing; the first strategy that yields at least one asset
// wins and the rest are never invoked. Adapters assemble their own chains
// from provider-specific strategies, which keeps each provider's fallback
// policy inspectable and testable on its own.
package resolver

import (
	"context"

	"go.uber.org/zap"

	"github.com/skyarchive/museum-dl/internal/model"
)

// Strategy is one ranked way of locating assets for a record.
type Strategy struct {
	// Name identifies the strategy in logs.
	Name string

	// Resolve returns the assets this strategy can locate for rec, or an
	// empty slice. An error counts as "nothing found" for chain purposes
	// but is logged.
	Resolve func(ctx context.Context, rec model.Record) ([]model.Asset, error)
}

// Resolve runs the chain in order and returns the first non-empty result
// along with the name of the winning strategy. It returns nil, "" when the
// chain is exhausted.
func Resolve(ctx context.Context, log *zap.Logger, chain []Strategy, rec model.Record) ([]model.Asset, string) {
	if log == nil {
		log = zap.NewNop()
	}

	for _, s := range chain {
		if ctx.Err() != nil {
			return nil, ""
		}

		assets, err := s.Resolve(ctx, rec)
		if err != nil {
			log.Debug("asset strategy failed",
				zap.String("strategy", s.Name),
				zap.String("id", rec.ID),
				zap.Error(err))
			continue
		}
		if len(assets) > 0 {
			return capAdditional(assets), s.Name
		}
	}
	return nil, ""
}

// capAdditional bounds the number of additional assets and fixes their
// ordering after the primary.
func capAdditional(assets []model.Asset) []model.Asset {
	out := make([]model.Asset, 0, len(assets))
	additional := 0
	for _, a := range assets {
		if a.Kind == model.AssetAdditional {
			if additional >= model.MaxAdditionalAssets {
				continue
			}
			additional++
		}
		out = append(out, a)
	}
	return out
}

// FirstSized walks a provider's nested image entry and returns the URL of
// the first populated size class in rank order. Each entry is expected to be
// shaped like {"b": {"url": ...}, "z": {"url": ...}, ...}. Returns the empty
// string when no ranked class is populated.
func FirstSized(entry map[string]any, ranks []model.SizeClass) (string, model.SizeClass) {
	for _, size := range ranks {
		variant, ok := entry[string(size)].(map[string]any)
		if !ok {
			continue
		}
		if url, ok := variant["url"].(string); ok && url != "" {
			return url, size
		}
	}
	return "", ""
}

// Prober validates a guessed URL before it is trusted.
type Prober interface {
	ProbeImage(ctx context.Context, rawURL string) bool
}

// URLPatterns builds the last-resort strategy: deterministic URL guesses
// constructed from the record identifier alone, each validated by a HEAD
// probe for an image content type. patterns receives the record and returns
// the candidate URLs in preference order.
func URLPatterns(prober Prober, patterns func(rec model.Record) []string) Strategy {
	return Strategy{
		Name: "url-pattern-probe",
		Resolve: func(ctx context.Context, rec model.Record) ([]model.Asset, error) {
			for _, candidate := range patterns(rec) {
				if prober.ProbeImage(ctx, candidate) {
					return []model.Asset{{URL: candidate, Kind: model.AssetPrimary}}, nil
				}
			}
			return nil, nil
		},
	}
}
