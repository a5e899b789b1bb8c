package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"likegrab/internal/downloader"
	"likegrab/pkg/auth"
	"likegrab/pkg/cascade"
	"likegrab/pkg/config"
	"likegrab/pkg/logger"
	"likegrab/pkg/manifest"
	"likegrab/pkg/models"
	"likegrab/pkg/resolver"
	"likegrab/pkg/storage"
)

var (
	manifestPath string
	stagingDir   string
	timeoutSecs  int
	concurrent   int
	skipExisting bool
	browser      string
	scrapeLimit  int
	cookiesPath  string
	profileName  string
)

var runCmd = &cobra.Command{
	Use:   "run <records.json>",
	Short: "Resolve, download and manifest media for a batch of liked-post records",
	Long: `Run one acquisition pass over a JSON array of records.

Records that already carry media locations go straight to the download
engine. Identifier-only records pass through the resolution cascade first:
the session strategy (saved cookies), then the official API (bearer token or
OAuth 1.0a credentials), then gallery-dl with browser cookies. Items no
strategy can resolve are reported as exhausted.

The browser named with --browser must be closed during the run; its cookie
database is locked while it is open.`,
	Example: `  # Basic run
  likegrab run likes.json -o downloads/manifest.json

  # Custom staging directory, re-download everything
  likegrab run likes.json --staging-dir /data/staging --skip-existing=false

  # Cap the gallery-dl stage at 50 items
  likegrab run likes.json --limit 50 --browser firefox`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runAcquisition(args[0])
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&manifestPath, "output", "o", "", "manifest output path (default: <staging-dir>/manifest.json)")
	runCmd.Flags().StringVar(&stagingDir, "staging-dir", "", "staging directory for downloads (default: downloads)")
	runCmd.Flags().IntVar(&timeoutSecs, "timeout", 30, "per-request timeout in seconds")
	runCmd.Flags().IntVar(&concurrent, "concurrent", 3, "concurrent downloads")
	runCmd.Flags().BoolVar(&skipExisting, "skip-existing", true, "record already-staged files without re-fetching")
	runCmd.Flags().StringVar(&browser, "browser", "", "browser for gallery-dl cookie extraction (default: brave)")
	runCmd.Flags().IntVar(&scrapeLimit, "limit", 0, "cap on items offered to the gallery-dl stage (0 = no cap)")
	runCmd.Flags().StringVar(&cookiesPath, "cookies", "", "path to the saved session cookie jar")
	runCmd.Flags().StringVar(&profileName, "profile", "", "stored credential profile to use")
}

func runAcquisition(recordsPath string) error {
	flags := map[string]interface{}{
		"manifest":      manifestPath,
		"staging-dir":   stagingDir,
		"timeout":       time.Duration(timeoutSecs) * time.Second,
		"concurrent":    concurrent,
		"skip-existing": skipExisting,
		"browser":       browser,
		"limit":         scrapeLimit,
		"cookies":       cookiesPath,
		"log-level":     logLevel,
	}

	path := configFile
	if path == "" {
		if _, err := os.Stat("likegrab.yaml"); err == nil {
			path = "likegrab.yaml"
		}
	}

	cfg, err := config.Load(path, flags)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	log := logger.GetLogger()

	applyStoredProfile(cfg, log)

	records, rejected, err := models.LoadRecords(recordsPath)
	if err != nil {
		return err
	}
	if rejected > 0 {
		log.WarnWithFields("rejected malformed records", map[string]interface{}{
			"rejected": rejected,
		})
	}
	if len(records) == 0 {
		return fmt.Errorf("no valid records in %s", recordsPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	withMedia, idOnly := models.Partition(records)
	log.InfoWithFields("loaded records", map[string]interface{}{
		"total":      len(records),
		"with_media": len(withMedia),
		"id_only":    len(idOnly),
	})

	staging, err := storage.NewManager(cfg.Download.StagingDir)
	if err != nil {
		return err
	}

	var directEntries []models.ManifestEntry
	cdnRecords := withMedia

	if len(idOnly) > 0 {
		strategies := []resolver.Strategy{
			resolver.NewSessionStrategy(cfg, log),
			resolver.NewAPIStrategy(cfg, log),
			resolver.NewScrapeStrategy(cfg, log),
		}
		casc := cascade.New(strategies, cfg.Scrape.Limit, log)
		outcome, err := casc.Run(ctx, idOnly)
		if err != nil {
			return err
		}

		// When every stage was skipped and nothing else carries media, the
		// run cannot acquire anything; that is a run-level failure, unlike
		// per-item exhaustion.
		if len(outcome.Report.Skipped) == len(strategies) && len(withMedia) == 0 {
			return fmt.Errorf("no resolver strategy is available (missing credentials or tools) and no input records carry media")
		}

		cdnRecords = append(cdnRecords, outcome.Resolved...)
		directEntries = outcome.Entries

		log.InfoWithFields("resolution cascade complete", map[string]interface{}{
			"offered":   outcome.Report.Offered,
			"exhausted": outcome.Report.Exhausted,
			"skipped":   outcome.Report.Skipped,
		})
		for name, count := range outcome.Report.ResolvedBy {
			log.InfoWithFields("strategy resolutions", map[string]interface{}{
				"strategy": name,
				"resolved": count,
			})
		}
	}

	engine := downloader.NewEngine(staging, cfg.Download, log)
	cdnEntries := engine.Acquire(ctx, cdnRecords)

	// Direct-download entries take precedence: they already represent a
	// completed fetch.
	merged := manifest.Merge(directEntries, cdnEntries)
	if err := manifest.Write(cfg.Output.ManifestPath, merged); err != nil {
		return err
	}

	log.InfoWithFields("run complete", map[string]interface{}{
		"manifest": cfg.Output.ManifestPath,
		"entries":  len(merged),
	})
	return nil
}

// applyStoredProfile fills credential gaps in the config from the stored
// profile, when one exists. Config and environment values win.
func applyStoredProfile(cfg *config.Config, log logger.Logger) {
	mgr, err := auth.NewManager()
	if err != nil {
		return
	}
	name := profileName
	if name == "" {
		name = "default"
	}
	profile, err := mgr.Retrieve(name)
	if err != nil {
		return
	}
	log.WithField("profile", profile.Name).Debug("using stored credential profile")
	if cfg.API.BearerToken == "" {
		cfg.API.BearerToken = profile.BearerToken
	}
	if cfg.API.Key == "" {
		cfg.API.Key = profile.APIKey
		cfg.API.Secret = profile.APISecret
		cfg.API.AccessToken = profile.AccessToken
		cfg.API.AccessSecret = profile.AccessSecret
	}
	if profile.CookiesPath != "" && cookiesPath == "" {
		cfg.Session.CookiesPath = profile.CookiesPath
	}
	if profile.Browser != "" && browser == "" {
		cfg.Scrape.Browser = profile.Browser
	}
}
