package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/skyarchive/museum-dl/internal/model"
)

func fixedStrategy(name string, assets []model.Asset, calls *int) Strategy {
	return Strategy{
		Name: name,
		Resolve: func(ctx context.Context, rec model.Record) ([]model.Asset, error) {
			*calls++
			return assets, nil
		},
	}
}

func TestResolve_FirstNonEmptyWins(t *testing.T) {
	var calls1, calls2, calls3 int
	want := []model.Asset{{URL: "https://img.example.org/2.jpg", Kind: model.AssetPrimary}}

	chain := []Strategy{
		fixedStrategy("primary-field", nil, &calls1),
		fixedStrategy("nested-sizes", want, &calls2),
		fixedStrategy("media-call", []model.Asset{{URL: "https://never.example.org"}}, &calls3),
	}

	assets, winner := Resolve(context.Background(), zap.NewNop(), chain, model.Record{ID: "x"})
	assert.Equal(t, want, assets)
	assert.Equal(t, "nested-sizes", winner)
	assert.Equal(t, 1, calls1)
	assert.Equal(t, 1, calls2)
	// Later strategies are never invoked once one yields.
	assert.Equal(t, 0, calls3)
}

func TestResolve_ErrorCountsAsEmpty(t *testing.T) {
	var calls2 int
	chain := []Strategy{
		{
			Name: "failing",
			Resolve: func(ctx context.Context, rec model.Record) ([]model.Asset, error) {
				return nil, errors.New("secondary endpoint down")
			},
		},
		fixedStrategy("fallback", []model.Asset{{URL: "https://img.example.org/f.jpg"}}, &calls2),
	}

	assets, winner := Resolve(context.Background(), nil, chain, model.Record{})
	require.Len(t, assets, 1)
	assert.Equal(t, "fallback", winner)
}

func TestResolve_Exhausted(t *testing.T) {
	var calls int
	chain := []Strategy{fixedStrategy("only", nil, &calls)}

	assets, winner := Resolve(context.Background(), nil, chain, model.Record{})
	assert.Nil(t, assets)
	assert.Empty(t, winner)
}

func TestResolve_CapsAdditionalAssets(t *testing.T) {
	many := []model.Asset{{URL: "p", Kind: model.AssetPrimary}}
	for i := 0; i < 9; i++ {
		many = append(many, model.Asset{URL: "a", Kind: model.AssetAdditional})
	}
	var calls int
	chain := []Strategy{fixedStrategy("lots", many, &calls)}

	assets, _ := Resolve(context.Background(), nil, chain, model.Record{})
	additional := 0
	for _, a := range assets {
		if a.Kind == model.AssetAdditional {
			additional++
		}
	}
	assert.Equal(t, model.MaxAdditionalAssets, additional)
}

func TestFirstSized(t *testing.T) {
	entry := map[string]any{
		"n": map[string]any{"url": "https://img.example.org/n.jpg"},
		"d": map[string]any{"url": "https://img.example.org/d.jpg"},
		"b": map[string]any{"url": ""},
	}

	url, size := FirstSized(entry, model.RankedSizeClasses)
	// "b" is ranked first but empty; "z" is absent; "n" wins.
	assert.Equal(t, "https://img.example.org/n.jpg", url)
	assert.Equal(t, model.SizeClass("n"), size)

	url, _ = FirstSized(map[string]any{}, model.RankedSizeClasses)
	assert.Empty(t, url)
}

type fakeProber struct {
	valid map[string]bool
	seen  []string
}

func (p *fakeProber) ProbeImage(ctx context.Context, rawURL string) bool {
	p.seen = append(p.seen, rawURL)
	return p.valid[rawURL]
}

func TestURLPatterns(t *testing.T) {
	prober := &fakeProber{valid: map[string]bool{"https://img.example.org/18645975_b.jpg": true}}

	strategy := URLPatterns(prober, func(rec model.Record) []string {
		return []string{
			"https://img.example.org/" + rec.ID + "_large.jpg",
			"https://img.example.org/" + rec.ID + "_b.jpg",
		}
	})

	assets, err := strategy.Resolve(context.Background(), model.Record{ID: "18645975"})
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, "https://img.example.org/18645975_b.jpg", assets[0].URL)
	// The first guess was probed and rejected before the second was trusted.
	assert.Equal(t, 2, len(prober.seen))
}
