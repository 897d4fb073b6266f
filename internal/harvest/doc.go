// Package harvest drives the end-to-end collection pipeline for one
// provider.
//
// # Controller
//
// The Controller runs each search term through the same stages:
//
//  1. Paginate the provider's search results
//  2. Drop candidates matching an exclusion term
//  3. Fetch the full record for each surviving candidate
//  4. Resolve downloadable assets through the provider's strategy chain
//  5. Download assets and persist the metadata file
//
// # Basic Usage
//
//	ctrl := harvest.New(adapter, st, client, logger, harvest.Config{
//	    Workers: 5,
//	    OnEvent: func(event harvest.Event) {
//	        fmt.Println(event.Message)
//	    },
//	})
//
//	reports := ctrl.Run(ctx, queries)
//
// # Resumability
//
// The metadata file is the completion marker: it is written only after the
// item's assets are on disk, and any item whose metadata file already exists
// is skipped before spending network calls on it. Re-running an interrupted
// harvest therefore only does the remaining work.
//
// # Failure Policy
//
// Failures below the page level (detail fetch, resolution, download) are
// scoped to the one item: logged, counted in the Report, never fatal to
// siblings or later pages. A term ends when the provider runs out of
// results, the per-term cap fills, or its very first page is unusable.
package harvest
