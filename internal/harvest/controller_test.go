package harvest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyarchive/museum-dl/internal/fetch"
	"github.com/skyarchive/museum-dl/internal/model"
	"github.com/skyarchive/museum-dl/internal/provider"
	"github.com/skyarchive/museum-dl/internal/store"
)

// fakeAdapter serves scripted search pages and counts calls.
type fakeAdapter struct {
	pages     [][]model.Record
	infinite  bool // every page is a fresh full page of query.PageSize
	assetFor  func(rec model.Record) []model.Asset
	detailOf  func(rec model.Record) model.Record
	detailErr func(rec model.Record) error

	malformedOnPage int

	searchCalls int32
	detailCalls int32
}

func (f *fakeAdapter) Name() string               { return "fake" }
func (f *fakeAdapter) PageSize(requested int) int { return requested }

func (f *fakeAdapter) Search(ctx context.Context, query model.Query, page int) (model.Page, error) {
	atomic.AddInt32(&f.searchCalls, 1)
	if f.malformedOnPage == page {
		return model.Page{}, provider.ErrMalformedEnvelope
	}
	if f.infinite {
		size := query.PageSize
		if size <= 0 {
			size = 5
		}
		records := make([]model.Record, size)
		for i := range records {
			id := fmt.Sprintf("obj-%d-%d", page, i)
			records[i] = model.Record{ID: id, Title: "Cloud " + id}
		}
		return model.Page{Records: records, HasMore: true}, nil
	}
	if page > len(f.pages) {
		return model.Page{}, nil
	}
	return model.Page{Records: f.pages[page-1], HasMore: page < len(f.pages)}, nil
}

func (f *fakeAdapter) FetchDetail(ctx context.Context, rec model.Record) (model.Record, error) {
	atomic.AddInt32(&f.detailCalls, 1)
	if f.detailErr != nil {
		if err := f.detailErr(rec); err != nil {
			return model.Record{}, err
		}
	}
	if f.detailOf != nil {
		return f.detailOf(rec), nil
	}
	rec.Raw = map[string]any{"id": rec.ID, "title": rec.Title}
	return rec, nil
}

func (f *fakeAdapter) ResolveAssets(ctx context.Context, rec model.Record) ([]model.Asset, error) {
	if f.assetFor != nil {
		return f.assetFor(rec), nil
	}
	return nil, nil
}

// harness wires a fake adapter to a temp store and a stub image server.
type harness struct {
	adapter   *fakeAdapter
	store     *store.Store
	ctrl      *Controller
	imageHits int32
}

func newHarness(t *testing.T, adapter *fakeAdapter, cfg Config) *harness {
	t.Helper()

	h := &harness{adapter: adapter}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&h.imageHits, 1)
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("jpegbytes"))
	}))
	t.Cleanup(server.Close)

	if adapter.assetFor == nil {
		adapter.assetFor = func(rec model.Record) []model.Asset {
			return []model.Asset{{URL: server.URL + "/" + rec.ID + ".jpg", Kind: model.AssetPrimary}}
		}
	}

	st, err := store.Open(filepath.Join(t.TempDir(), "fake"))
	require.NoError(t, err)
	h.store = st

	client := fetch.NewClient(fetch.Config{})
	h.ctrl = New(adapter, st, client, nil, cfg)
	return h
}

func scriptedPages(sizes ...int) [][]model.Record {
	pages := make([][]model.Record, len(sizes))
	n := 0
	for i, size := range sizes {
		pages[i] = make([]model.Record, size)
		for j := range pages[i] {
			n++
			pages[i][j] = model.Record{ID: fmt.Sprintf("obj-%d", n), Title: fmt.Sprintf("Cloud study %d", n)}
		}
	}
	return pages
}

func TestHarvestTermExhausted(t *testing.T) {
	adapter := &fakeAdapter{pages: scriptedPages(5, 5, 2)}
	h := newHarness(t, adapter, Config{Workers: 3})

	report := h.ctrl.HarvestTerm(context.Background(), model.Query{Term: "cloud", Cap: 100, PageSize: 5})

	assert.Equal(t, OutcomeExhausted, report.Outcome)
	assert.Equal(t, int64(12), report.Found)
	assert.Equal(t, int64(12), report.Processed)
	assert.Equal(t, 3, report.Pages)
	assert.Zero(t, report.Skipped)
	assert.Zero(t, report.AssetFailures)

	// Every item left a metadata file and an image on disk.
	assert.True(t, h.store.HasMetadata("obj-1"))
	assert.True(t, h.store.HasMetadata("obj-12"))
	_, err := os.Stat(filepath.Join(h.store.Root(), "images", "obj-12.jpg"))
	assert.NoError(t, err)
	assert.Equal(t, int32(12), atomic.LoadInt32(&h.imageHits))
}

func TestHarvestTermCapReached(t *testing.T) {
	adapter := &fakeAdapter{infinite: true}
	h := newHarness(t, adapter, Config{Workers: 3})

	report := h.ctrl.HarvestTerm(context.Background(), model.Query{Term: "cloud", Cap: 8, PageSize: 5})

	assert.Equal(t, OutcomeCapReached, report.Outcome)
	assert.Equal(t, int64(8), report.Processed)
	// The cap fills during page two; page three is never requested.
	assert.Equal(t, 2, report.Pages)
	assert.Equal(t, int32(2), atomic.LoadInt32(&adapter.searchCalls))
}

func TestHarvestTermExhaustedAtProviderPageSize(t *testing.T) {
	adapter := &fakeAdapter{pages: scriptedPages(100, 100, 37)}
	h := newHarness(t, adapter, Config{Workers: 5})

	report := h.ctrl.HarvestTerm(context.Background(), model.Query{Term: "cloud", Cap: 1000, PageSize: 100})

	assert.Equal(t, OutcomeExhausted, report.Outcome)
	assert.Equal(t, int64(237), report.Found)
	assert.Equal(t, int64(237), report.Processed)
	assert.Equal(t, 3, report.Pages)
	assert.Zero(t, report.AssetFailures)
}

func TestHarvestTermCapAtProviderPageSize(t *testing.T) {
	adapter := &fakeAdapter{infinite: true}
	h := newHarness(t, adapter, Config{Workers: 5})

	report := h.ctrl.HarvestTerm(context.Background(), model.Query{Term: "cloud", Cap: 150, PageSize: 100})

	// Page one fills 100 slots, page two only the remaining 50.
	assert.Equal(t, OutcomeCapReached, report.Outcome)
	assert.Equal(t, int64(150), report.Processed)
	assert.Equal(t, 2, report.Pages)
	assert.Equal(t, int32(2), atomic.LoadInt32(&adapter.searchCalls))
}

func TestHarvestTermIdempotent(t *testing.T) {
	adapter := &fakeAdapter{pages: scriptedPages(4)}
	h := newHarness(t, adapter, Config{Workers: 2})
	query := model.Query{Term: "cloud", Cap: 100, PageSize: 4}

	first := h.ctrl.HarvestTerm(context.Background(), query)
	require.Equal(t, int64(4), first.Processed)

	detailsAfterFirst := atomic.LoadInt32(&adapter.detailCalls)
	hitsAfterFirst := atomic.LoadInt32(&h.imageHits)

	second := h.ctrl.HarvestTerm(context.Background(), query)

	assert.Equal(t, OutcomeExhausted, second.Outcome)
	assert.Zero(t, second.Processed)
	assert.Equal(t, int64(4), second.Skipped)
	// Skipped items spend no per-item network calls.
	assert.Equal(t, detailsAfterFirst, atomic.LoadInt32(&adapter.detailCalls))
	assert.Equal(t, hitsAfterFirst, atomic.LoadInt32(&h.imageHits))
}

func TestHarvestTermFirstPageMalformed(t *testing.T) {
	adapter := &fakeAdapter{pages: scriptedPages(5), malformedOnPage: 1}
	h := newHarness(t, adapter, Config{})

	report := h.ctrl.HarvestTerm(context.Background(), model.Query{Term: "cloud", Cap: 100, PageSize: 5})

	assert.Equal(t, OutcomeProviderError, report.Outcome)
	require.ErrorIs(t, report.Err, provider.ErrMalformedEnvelope)
	assert.Zero(t, report.Processed)
}

func TestHarvestTermLaterPageMalformed(t *testing.T) {
	adapter := &fakeAdapter{pages: scriptedPages(5, 5), malformedOnPage: 2}
	h := newHarness(t, adapter, Config{Workers: 2})

	report := h.ctrl.HarvestTerm(context.Background(), model.Query{Term: "cloud", Cap: 100, PageSize: 5})

	// A broken later page ends the term like an empty one; page one's work
	// stands.
	assert.Equal(t, OutcomeExhausted, report.Outcome)
	assert.NoError(t, report.Err)
	assert.Equal(t, int64(5), report.Processed)
}

func TestHarvestTermExclusion(t *testing.T) {
	pages := scriptedPages(3)
	pages[0][1].Title = "View of Saint Cloud"
	adapter := &fakeAdapter{pages: pages}
	h := newHarness(t, adapter, Config{Workers: 1})

	query := model.Query{Term: "cloud", Cap: 100, PageSize: 3, Exclusions: []string{"saint cloud"}}
	report := h.ctrl.HarvestTerm(context.Background(), query)

	assert.Equal(t, int64(1), report.Excluded)
	assert.Equal(t, int64(2), report.Processed)
	// The excluded candidate never reached the detail fetch.
	assert.Equal(t, int32(2), atomic.LoadInt32(&adapter.detailCalls))
}

func TestHarvestTermExclusionAfterDetail(t *testing.T) {
	// Candidates carry no text; only the detail record reveals the match.
	pages := [][]model.Record{{{ID: "bare-1"}, {ID: "bare-2"}}}
	adapter := &fakeAdapter{
		pages: pages,
		detailOf: func(rec model.Record) model.Record {
			rec.Raw = map[string]any{"id": rec.ID}
			if rec.ID == "bare-1" {
				rec.Title = "Vase from Saint-Cloud manufactory"
			} else {
				rec.Title = "Cloud study"
			}
			return rec
		},
	}
	h := newHarness(t, adapter, Config{Workers: 1})

	query := model.Query{Term: "cloud", Cap: 100, PageSize: 2, Exclusions: []string{"saint-cloud"}}
	report := h.ctrl.HarvestTerm(context.Background(), query)

	assert.Equal(t, int64(1), report.Excluded)
	assert.Equal(t, int64(1), report.Processed)
	assert.False(t, h.store.HasMetadata("bare-1"))
	assert.True(t, h.store.HasMetadata("bare-2"))
}

func TestHarvestTermAssetFailureStillClosesItem(t *testing.T) {
	adapter := &fakeAdapter{
		pages: [][]model.Record{
			{{ID: "no-asset", Title: "Cloud, unphotographed"}},
			{{ID: "with-asset", Title: "Cloud, photographed"}},
		},
		assetFor: func(rec model.Record) []model.Asset { return nil },
	}
	h := newHarness(t, adapter, Config{Workers: 1})

	report := h.ctrl.HarvestTerm(context.Background(), model.Query{Term: "cloud", Cap: 1, PageSize: 1})

	// An item whose assets never resolve still closes with its metadata on
	// disk, so it fills the cap and the second page is never requested.
	assert.Equal(t, OutcomeCapReached, report.Outcome)
	assert.Equal(t, int64(1), report.AssetFailures)
	assert.Equal(t, int64(1), report.Processed)
	assert.Equal(t, int32(1), atomic.LoadInt32(&adapter.searchCalls))
	assert.True(t, h.store.HasMetadata("no-asset"))
	assert.False(t, h.store.HasMetadata("with-asset"))
	entries, err := os.ReadDir(filepath.Join(h.store.Root(), "images"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestHarvestTermDetailFailureDoesNotConsumeCap(t *testing.T) {
	adapter := &fakeAdapter{
		pages: [][]model.Record{
			{{ID: "broken", Title: "Cloud, unfetchable"}},
			{{ID: "whole", Title: "Cloud, fetchable"}},
		},
		detailErr: func(rec model.Record) error {
			if rec.ID == "broken" {
				return fmt.Errorf("detail endpoint down")
			}
			return nil
		},
	}
	h := newHarness(t, adapter, Config{Workers: 1})

	report := h.ctrl.HarvestTerm(context.Background(), model.Query{Term: "cloud", Cap: 1, PageSize: 1})

	// The failed detail fetch released its cap slot, so the second page's
	// item still fit under the cap of one.
	assert.Equal(t, OutcomeCapReached, report.Outcome)
	assert.Equal(t, int64(1), report.Processed)
	assert.False(t, h.store.HasMetadata("broken"))
	assert.True(t, h.store.HasMetadata("whole"))
}

func TestHarvestTermRejectedDownloadKeepsMetadata(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>not an image</html>"))
	}))
	defer server.Close()

	adapter := &fakeAdapter{
		pages: scriptedPages(1),
		assetFor: func(rec model.Record) []model.Asset {
			return []model.Asset{{URL: server.URL + "/page.html", Kind: model.AssetPrimary}}
		},
	}
	h := newHarness(t, adapter, Config{})

	report := h.ctrl.HarvestTerm(context.Background(), model.Query{Term: "cloud", Cap: 100, PageSize: 1})

	// The rejected download wrote no image file, but the item's metadata is
	// still persisted and closes the unit.
	assert.Equal(t, int64(1), report.AssetFailures)
	assert.Equal(t, int64(1), report.Processed)
	assert.True(t, h.store.HasMetadata("obj-1"))
	entries, err := os.ReadDir(filepath.Join(h.store.Root(), "images"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestHarvestTermDryRun(t *testing.T) {
	adapter := &fakeAdapter{pages: scriptedPages(3)}
	h := newHarness(t, adapter, Config{DryRun: true})

	report := h.ctrl.HarvestTerm(context.Background(), model.Query{Term: "cloud", Cap: 100, PageSize: 3})

	assert.Equal(t, int64(3), report.Processed)
	assert.Zero(t, atomic.LoadInt32(&adapter.detailCalls))
	assert.Zero(t, atomic.LoadInt32(&h.imageHits))
	assert.False(t, h.store.HasMetadata("obj-1"))
}

func TestRunCoversEveryTerm(t *testing.T) {
	adapter := &fakeAdapter{pages: scriptedPages(2)}
	h := newHarness(t, adapter, Config{Workers: 2})

	var mu sync.Mutex
	var events []Event
	h.ctrl.cfg.OnEvent = func(e Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}

	queries := []model.Query{
		{Term: "cloud", Cap: 100, PageSize: 2},
		{Term: "sky", Cap: 100, PageSize: 2},
	}
	reports := h.ctrl.Run(context.Background(), queries)

	require.Len(t, reports, 2)
	assert.Equal(t, "cloud", reports[0].Term)
	assert.Equal(t, "sky", reports[1].Term)
	// Page one's items were harvested under "cloud", so "sky" skips them.
	assert.Equal(t, int64(2), reports[0].Processed)
	assert.Equal(t, int64(2), reports[1].Skipped)
	assert.NotEmpty(t, events)
}

func TestRunStopsOnCancel(t *testing.T) {
	adapter := &fakeAdapter{infinite: true}
	h := newHarness(t, adapter, Config{Workers: 2})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reports := h.ctrl.Run(ctx, []model.Query{
		{Term: "cloud", Cap: 10, PageSize: 5},
		{Term: "sky", Cap: 10, PageSize: 5},
	})

	require.Len(t, reports, 1)
	assert.Equal(t, OutcomeCanceled, reports[0].Outcome)
}
