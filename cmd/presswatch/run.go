package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pevans/presswatch/config"
	"github.com/pevans/presswatch/dataset"
	"github.com/pevans/presswatch/dates"
	"github.com/pevans/presswatch/discovery"
	"github.com/pevans/presswatch/fetch"
	"github.com/pevans/presswatch/sources"
)

var runCmd = &cobra.Command{
	Use:   "run [company...]",
	Short: "Collect press releases from the catalog",
	Long: "Scrapes every enabled source in the catalog, or only the named companies, " +
		"and appends new releases to the master dataset.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if timeout, _ := cmd.Flags().GetDuration("timeout"); timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		cutoffFlag, _ := cmd.Flags().GetString("cutoff")
		maxPages, _ := cmd.Flags().GetInt("max-pages")
		noRender, _ := cmd.Flags().GetBool("no-render")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		adhocURL, _ := cmd.Flags().GetString("url")
		adhocCompany, _ := cmd.Flags().GetString("company")

		if cutoffFlag != "" {
			cfg.Cutoff = cutoffFlag
		}
		if maxPages > 0 {
			cfg.MaxPages = maxPages
		}
		if noRender {
			cfg.Render.Enabled = false
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		targets, err := runTargets(cfg, args, adhocURL, adhocCompany, cutoffFlag != "", maxPages > 0)
		if err != nil {
			return err
		}
		if len(targets) == 0 {
			fmt.Fprintln(os.Stderr, "No sources selected.")
			return nil
		}

		var store discovery.Appender
		var status discovery.StatusRecorder
		if !dryRun {
			policy, err := cfg.KeyPolicy()
			if err != nil {
				return err
			}
			ds, err := dataset.Open(cfg.Dataset.Backend, cfg.Dataset.Path, policy)
			if err != nil {
				return err
			}
			defer ds.Close() //nolint:errcheck
			store = ds

			st, err := sources.NewStatusStore(cfg.Status.Path)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
			status = st
		}

		syncer := discovery.NewSyncer(buildOrchestrator(cfg), store, status).DryRun(dryRun)

		zap.L().Info("starting run",
			zap.Int("sources", len(targets)),
			zap.String("cutoff", cfg.Cutoff),
			zap.Bool("render", cfg.Render.Enabled),
			zap.Bool("dry_run", dryRun),
		)

		result := syncer.Sync(ctx, targets)
		formatSyncResult(os.Stdout, result, dryRun)

		if _, _, failed := result.Totals(); failed > 0 {
			return eris.Errorf("%d of %d sources failed", failed, len(result.Sources))
		}
		return nil
	},
}

// runTargets resolves the sources for a run: an ad hoc URL, or catalog
// entries. Flag overrides replace per-source cutoffs and page limits.
func runTargets(cfg *config.Config, names []string, adhocURL, adhocCompany string, overrideCutoff, overridePages bool) ([]discovery.Source, error) {
	cutoff, err := cfg.CutoffDate()
	if err != nil {
		return nil, err
	}

	if adhocURL != "" {
		u, err := url.Parse(adhocURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, eris.Errorf("--url must be an http or https URL, got %q", adhocURL)
		}
		company := adhocCompany
		if company == "" {
			company = u.Hostname()
		}
		return []discovery.Source{{
			Company:  company,
			URL:      adhocURL,
			Cutoff:   cutoff,
			MaxPages: cfg.MaxPages,
		}}, nil
	}

	catalog, err := sources.LoadCatalog(cfg.Sources.File)
	if err != nil {
		return nil, err
	}
	selected, err := catalog.Select(names)
	if err != nil {
		return nil, err
	}

	targets := make([]discovery.Source, 0, len(selected))
	for _, s := range selected {
		target, err := s.Target(cutoff, cfg.MaxPages)
		if err != nil {
			return nil, err
		}
		if overrideCutoff {
			target.Cutoff = cutoff
		}
		if overridePages {
			target.MaxPages = cfg.MaxPages
		}
		targets = append(targets, target)
	}
	return targets, nil
}

// buildOrchestrator wires the fetcher, the optional browser fallback and the
// optional article dater from configuration.
func buildOrchestrator(cfg *config.Config) *discovery.Orchestrator {
	fetcher := fetch.NewHTTPFetcher(fetch.HTTPOptions{
		UserAgent: cfg.HTTP.UserAgent,
		Timeout:   cfg.HTTP.Timeout,
		Retries:   cfg.HTTP.Retries,
	})

	var fallback discovery.Fallback
	if cfg.Render.Enabled {
		launcher := fetch.NewChromeLauncher(fetch.ChromeOptions{
			UserAgent: cfg.HTTP.UserAgent,
			Headless:  cfg.Render.Headless,
			ExecPath:  cfg.Render.ExecPath,
		})
		renderer := fetch.NewRenderer(launcher, fetch.RenderOptions{
			Wait:   cfg.Render.Wait,
			Settle: cfg.Render.Settle,
		})
		fallback = discovery.NewRenderedStrategy(renderer, cfg.Render.MaxClicks)
	}

	// Validate has already checked the cutoff
	cutoff, _ := dates.Normalize(cfg.Cutoff)

	orch := discovery.NewOrchestrator(fetcher, fallback, discovery.Options{
		Cutoff:      cutoff,
		MaxPages:    cfg.MaxPages,
		PageDelay:   cfg.HTTP.PageDelay,
		KeepUndated: cfg.KeepUndated,
		EnrichLimit: cfg.Enrich.Limit,
	})
	if cfg.Enrich.Enabled {
		orch.WithArticleDater(discovery.NewArticleDater(fetcher, cfg.HTTP.PageDelay))
	}
	return orch
}

func init() {
	runCmd.Flags().String("cutoff", "", "keep releases on or after this date (default from config)")
	runCmd.Flags().Int("max-pages", 0, "maximum listing pages per source (default from config)")
	runCmd.Flags().Bool("no-render", false, "disable the headless browser fallback")
	runCmd.Flags().Bool("dry-run", false, "collect without writing the dataset or run status")
	runCmd.Flags().String("url", "", "scrape one ad hoc listing URL instead of the catalog")
	runCmd.Flags().String("company", "", "company name for --url (default: the URL host)")
	runCmd.Flags().Duration("timeout", 0, "overall run timeout (0 means none)")
	rootCmd.AddCommand(runCmd)
}
