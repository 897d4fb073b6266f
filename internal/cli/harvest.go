package cli

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/skyarchive/museum-dl/internal/config"
	"github.com/skyarchive/museum-dl/internal/fetch"
	"github.com/skyarchive/museum-dl/internal/harvest"
	"github.com/skyarchive/museum-dl/internal/logging"
	"github.com/skyarchive/museum-dl/internal/provider"
	"github.com/skyarchive/museum-dl/internal/store"
)

func newHarvestCommand() *cobra.Command {
	var (
		terms      []string
		exclusions []string
		providers  []string
		maxResults int
		output     string
		workers    int
		dryRun     bool
	)

	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Search the configured providers and download matching images",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load(cfgFile)
			if err != nil {
				return err
			}

			// Flags override the config file.
			if cmd.Flags().Changed("terms") {
				settings.Terms = terms
			}
			if cmd.Flags().Changed("exclude") {
				settings.Exclusions = exclusions
			}
			if cmd.Flags().Changed("providers") {
				settings.Providers = providers
			}
			if cmd.Flags().Changed("max") {
				settings.MaxResults = maxResults
			}
			if cmd.Flags().Changed("output") {
				settings.OutputRoot = output
			}
			if cmd.Flags().Changed("workers") {
				settings.Workers = workers
			}
			if dryRun {
				settings.DryRun = true
			}

			return runHarvest(cmd, settings)
		},
	}

	cmd.Flags().StringSliceVar(&terms, "terms", nil, "search terms (comma-separated)")
	cmd.Flags().StringSliceVar(&exclusions, "exclude", nil, "exclusion terms (comma-separated)")
	cmd.Flags().StringSliceVar(&providers, "providers", nil, "providers to harvest (default: all)")
	cmd.Flags().IntVar(&maxResults, "max", 0, "maximum items per term per provider")
	cmd.Flags().StringVar(&output, "output", "", "output root directory")
	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent downloads per page")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "search and filter without downloading")

	return cmd
}

func runHarvest(cmd *cobra.Command, settings *config.Settings) error {
	logger, err := logging.New(settings.LogLevel, verbose || settings.Development)
	if err != nil {
		return err
	}
	defer logger.Sync()

	runID := uuid.NewString()
	logger = logger.With(zap.String("run_id", runID))

	names := settings.Providers
	if len(names) == 0 {
		names = provider.Names()
	}

	queries := settings.Queries()
	fmt.Printf("museum-dl harvest %s\n", runID)
	fmt.Printf("terms: %v  providers: %v  cap: %d\n\n", settings.Terms, names, settings.MaxResults)

	var total harvest.Report
	for _, name := range names {
		info, ok := catalogInfo(name)
		if !ok {
			return fmt.Errorf("unknown provider %q", name)
		}

		key := settings.KeyFor(name)
		if info.NeedsKey && key == "" {
			logger.Warn("skipping provider, no credential configured",
				zap.String("provider", name),
				zap.String("env", info.KeyEnv))
			fmt.Printf("-- skipping %s: set %s to enable\n", name, info.KeyEnv)
			continue
		}
		logger.Info("starting provider",
			zap.String("provider", name),
			zap.String("key", config.Redact(key)))

		client := fetch.NewClient(fetch.Config{
			UserAgent:         settings.UserAgent,
			RequestsPerSecond: settings.RequestsPerSecond,
			Logger:            logger,
		})

		adapter, err := provider.New(name, provider.Config{Client: client, APIKey: key, Log: logger})
		if err != nil {
			return err
		}

		st, err := store.Open(filepath.Join(settings.OutputRoot, name))
		if err != nil {
			return err
		}

		ctrl := harvest.New(adapter, st, client, logger, harvest.Config{
			Workers:   settings.Workers,
			PageDelay: settings.PageDelay,
			DryRun:    settings.DryRun,
			OnEvent:   printEvent,
		})

		for _, report := range ctrl.Run(cmd.Context(), queries) {
			total.Found += report.Found
			total.Excluded += report.Excluded
			total.Skipped += report.Skipped
			total.Processed += report.Processed
			total.AssetFailures += report.AssetFailures
		}
	}

	fmt.Println()
	fmt.Printf("done: %d found, %d processed, %d skipped, %d excluded, %d asset failures\n",
		total.Found, total.Processed, total.Skipped, total.Excluded, total.AssetFailures)
	if settings.DryRun {
		fmt.Println("[dry run - nothing downloaded]")
	}
	return nil
}

func catalogInfo(name string) (provider.Info, bool) {
	for _, info := range provider.Catalog {
		if info.Name == name {
			return info, true
		}
	}
	return provider.Info{}, false
}

func printEvent(event harvest.Event) {
	if event.Level == harvest.LevelVerbose && !verbose {
		return
	}

	prefix := "   "
	switch event.Level {
	case harvest.LevelError:
		prefix = "!! "
	case harvest.LevelWarning:
		prefix = " ! "
	case harvest.LevelSuccess:
		prefix = "ok "
	case harvest.LevelInfo:
		prefix = "-- "
	}

	fmt.Println(prefix + event.Message)
}
