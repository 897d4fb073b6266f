package harvest

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/skyarchive/museum-dl/internal/fetch"
	"github.com/skyarchive/museum-dl/internal/filter"
	"github.com/skyarchive/museum-dl/internal/model"
	"github.com/skyarchive/museum-dl/internal/provider"
	"github.com/skyarchive/museum-dl/internal/store"
)

// Level indicates the severity/type of a progress message.
type Level int

const (
	LevelInfo Level = iota
	LevelVerbose
	LevelWarning
	LevelError
	LevelSuccess
)

// Event represents a harvest progress update.
type Event struct {
	Message string
	Level   Level
}

// Outcome is the reason a term's pagination ended.
type Outcome int

const (
	// OutcomeExhausted means the provider ran out of results.
	OutcomeExhausted Outcome = iota

	// OutcomeCapReached means the per-term item cap was filled.
	OutcomeCapReached

	// OutcomeProviderError means the provider's very first page was
	// unusable, so no results exist to distinguish from "none left".
	OutcomeProviderError

	// OutcomeCanceled means the run was shut down at a page boundary.
	OutcomeCanceled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCapReached:
		return "cap reached"
	case OutcomeProviderError:
		return "provider error"
	case OutcomeCanceled:
		return "canceled"
	default:
		return "exhausted"
	}
}

// Report summarizes one term's harvest for one provider.
type Report struct {
	Provider string
	Term     string

	// Found counts candidates returned by search pages.
	Found int64
	// Excluded counts candidates rejected by the exclusion filter, both
	// before and after the detail fetch.
	Excluded int64
	// Skipped counts items whose metadata file already existed. Skips
	// consume cap slots like processed items.
	Skipped int64
	// Processed counts items newly closed this run (metadata written, or
	// counted without I/O in dry-run mode).
	Processed int64
	// AssetFailures counts items closed without any asset file on disk,
	// because none resolved or every download failed.
	AssetFailures int64
	// Pages is the number of search pages fetched.
	Pages int

	Outcome Outcome
	Err     error
}

// Config holds controller tuning. Zero values fall back to defaults, except
// PageDelay where zero disables the inter-page wait (used by tests).
type Config struct {
	// Workers bounds concurrent per-item processing within a page.
	Workers int

	// PageDelay is the base politeness delay between search pages. The
	// actual wait is jittered to between one and two times this value.
	PageDelay time.Duration

	// DryRun stops the pipeline after exclusion filtering: no detail
	// fetches, no downloads, nothing written.
	DryRun bool

	// OnEvent receives progress updates. Nil disables them.
	OnEvent func(Event)
}

const defaultWorkers = 5

// Controller drives the harvest pipeline for one provider: paginate search
// results, filter, fetch detail, resolve assets, download, persist.
//
// Failures below the page level are scoped to the single item: they are
// logged, counted, and never stop sibling items or later pages.
type Controller struct {
	adapter provider.Adapter
	store   *store.Store
	client  *fetch.Client
	log     *zap.Logger
	cfg     Config
}

// New creates a Controller for one provider.
func New(adapter provider.Adapter, st *store.Store, client *fetch.Client, log *zap.Logger, cfg Config) *Controller {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{adapter: adapter, store: st, client: client, log: log, cfg: cfg}
}

// Run harvests each query in order and returns the per-term reports.
func (c *Controller) Run(ctx context.Context, queries []model.Query) []Report {
	reports := make([]Report, 0, len(queries))
	for _, query := range queries {
		report := c.HarvestTerm(ctx, query)
		reports = append(reports, report)
		if report.Outcome == OutcomeCanceled {
			break
		}
	}
	return reports
}

// HarvestTerm runs the pipeline for a single search term until the provider
// runs out of results, the cap fills, or the first page proves unusable.
func (c *Controller) HarvestTerm(ctx context.Context, query model.Query) Report {
	report := Report{Provider: c.adapter.Name(), Term: query.Term}
	log := c.log.With(zap.String("provider", report.Provider), zap.String("term", query.Term))

	c.event(Event{Message: fmt.Sprintf("[%s] harvesting %q (cap %d)", report.Provider, query.Term, query.Cap), Level: LevelInfo})

	// used tracks cap consumption: processed + skipped items. Slots are
	// reserved before any per-item work and released when the item turns
	// out not to count.
	var used int64

	for page := 1; ; page++ {
		if ctx.Err() != nil {
			report.Outcome = OutcomeCanceled
			report.Err = ctx.Err()
			break
		}

		pg, err := c.adapter.Search(ctx, query, page)
		if err != nil {
			if page == 1 && errors.Is(err, provider.ErrMalformedEnvelope) {
				log.Error("first search page unusable", zap.Error(err))
				c.event(Event{Message: fmt.Sprintf("[%s] %q: %v", report.Provider, query.Term, err), Level: LevelError})
				report.Outcome = OutcomeProviderError
				report.Err = err
				break
			}
			// A failed later page ends pagination like an empty one.
			log.Warn("search page failed, ending term", zap.Int("page", page), zap.Error(err))
			report.Outcome = OutcomeExhausted
			break
		}
		report.Pages++

		if len(pg.Records) == 0 {
			report.Outcome = OutcomeExhausted
			break
		}
		report.Found += int64(len(pg.Records))

		c.processPage(ctx, log, query, pg.Records, &used, &report)

		if atomic.LoadInt64(&used) >= int64(query.Cap) {
			report.Outcome = OutcomeCapReached
			break
		}
		if !pg.HasMore {
			report.Outcome = OutcomeExhausted
			break
		}

		if err := c.pageDelay(ctx); err != nil {
			report.Outcome = OutcomeCanceled
			report.Err = err
			break
		}
	}

	c.event(Event{
		Message: fmt.Sprintf("[%s] %q done (%s): %d processed, %d skipped, %d excluded, %d asset failures",
			report.Provider, query.Term, report.Outcome, report.Processed, report.Skipped, report.Excluded, report.AssetFailures),
		Level: LevelSuccess,
	})
	return report
}

// processPage runs one page's candidates through a bounded worker pool.
// Worker errors are never returned; each item swallows its own failure so
// siblings keep going.
func (c *Controller) processPage(ctx context.Context, log *zap.Logger, query model.Query, records []model.Record, used *int64, report *Report) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Workers)

	for _, rec := range records {
		if filter.Excluded(rec, query.Exclusions) {
			atomic.AddInt64(&report.Excluded, 1)
			continue
		}

		rec := rec
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			if !reserve(used, int64(query.Cap)) {
				return nil
			}
			if !c.processItem(ctx, log, query, rec, report) {
				atomic.AddInt64(used, -1)
			}
			return nil
		})
	}

	g.Wait()
}

// processItem runs one candidate through detail fetch, resolution, download,
// and persistence. It reports whether the item consumed its reserved cap
// slot (processed or skipped).
func (c *Controller) processItem(ctx context.Context, log *zap.Logger, query model.Query, rec model.Record, report *Report) bool {
	safeID := store.SafeName(rec.ID)

	// The metadata file closes an item; its presence means a previous run
	// (or page) finished it, and no network is spent confirming that.
	if c.store.HasMetadata(safeID) {
		atomic.AddInt64(&report.Skipped, 1)
		c.event(Event{Message: fmt.Sprintf("skipping already harvested: %s", safeID), Level: LevelVerbose})
		return true
	}

	if c.cfg.DryRun {
		atomic.AddInt64(&report.Processed, 1)
		c.event(Event{Message: fmt.Sprintf("would harvest: %s %q", safeID, rec.Title), Level: LevelInfo})
		return true
	}

	detail, err := c.adapter.FetchDetail(ctx, rec)
	if err != nil {
		log.Warn("detail fetch failed", zap.String("id", rec.ID), zap.Error(err))
		c.event(Event{Message: fmt.Sprintf("detail failed for %s: %v", rec.ID, err), Level: LevelWarning})
		return false
	}

	// Providers whose search candidates carry no text defer exclusion to
	// this point, so the filter runs again on the full record.
	if filter.Excluded(detail, query.Exclusions) {
		atomic.AddInt64(&report.Excluded, 1)
		return false
	}

	assets, err := c.adapter.ResolveAssets(ctx, detail)
	if err != nil {
		log.Warn("asset resolution failed", zap.String("id", rec.ID), zap.Error(err))
	}
	switch {
	case len(assets) == 0:
		atomic.AddInt64(&report.AssetFailures, 1)
		c.event(Event{Message: fmt.Sprintf("no downloadable asset for %s", rec.ID), Level: LevelVerbose})
	case c.downloadAssets(ctx, log, safeID, assets) == 0:
		atomic.AddInt64(&report.AssetFailures, 1)
		c.event(Event{Message: fmt.Sprintf("every download failed for %s", rec.ID), Level: LevelWarning})
	}

	// Written last but regardless of asset outcome: once the full detail
	// record is in hand the unit closes, even with zero asset files on disk.
	if err := c.store.WriteMetadata(safeID, detail.Raw); err != nil {
		log.Error("metadata write failed", zap.String("id", rec.ID), zap.Error(err))
		return false
	}

	atomic.AddInt64(&report.Processed, 1)
	c.event(Event{Message: fmt.Sprintf("harvested %s %q", safeID, detail.Title), Level: LevelVerbose})
	return true
}

// downloadAssets fetches every resolved asset and returns how many landed on
// disk. Individual download failures are logged and skipped.
func (c *Controller) downloadAssets(ctx context.Context, log *zap.Logger, safeID string, assets []model.Asset) int {
	downloaded := 0
	additional := 0
	for _, asset := range assets {
		if asset.Kind == model.AssetAdditional {
			additional++
		}

		dest, err := c.store.AssetPath(safeID, asset, additional)
		if err != nil {
			log.Warn("asset path failed", zap.String("id", safeID), zap.Error(err))
			continue
		}

		written, err := c.client.Download(ctx, asset.URL, dest)
		if err != nil {
			log.Warn("download failed",
				zap.String("id", safeID),
				zap.String("url", asset.URL),
				zap.Error(err))
			continue
		}

		log.Debug("downloaded asset",
			zap.String("id", safeID),
			zap.String("url", asset.URL),
			zap.Int64("bytes", written))
		downloaded++
	}
	return downloaded
}

// reserve claims one cap slot, failing once the cap is filled.
func reserve(used *int64, limit int64) bool {
	for {
		current := atomic.LoadInt64(used)
		if current >= limit {
			return false
		}
		if atomic.CompareAndSwapInt64(used, current, current+1) {
			return true
		}
	}
}

// pageDelay waits the jittered politeness delay between search pages.
func (c *Controller) pageDelay(ctx context.Context) error {
	if c.cfg.PageDelay <= 0 {
		return nil
	}
	delay := c.cfg.PageDelay + time.Duration(rand.Float64()*float64(c.cfg.PageDelay))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

func (c *Controller) event(e Event) {
	if c.cfg.OnEvent != nil {
		c.cfg.OnEvent(e)
	}
}
