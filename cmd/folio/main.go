package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfolio/folio/internal/api"
	"github.com/openfolio/folio/internal/config"
	"github.com/openfolio/folio/internal/dashboard"
	"github.com/openfolio/folio/internal/domains"
	"github.com/openfolio/folio/internal/identity"
	"github.com/openfolio/folio/internal/logging"
	"github.com/openfolio/folio/internal/metrics"
	"github.com/openfolio/folio/internal/store"
	"github.com/openfolio/folio/internal/subscription"
	"github.com/openfolio/folio/internal/websocket"
	"github.com/openfolio/folio/pkg/plans"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var rootCmd = &cobra.Command{
	Use:     "folio",
	Short:   "Folio - author platform dashboard server",
	Long:    `Folio aggregates books, blog, events and the rest of an author's content into a single plan-gated dashboard`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		runServer()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Folio %s\n", Version)
		if BuildTime != "unknown" {
			fmt.Printf("Built: %s\n", BuildTime)
		}
		if GitCommit != "unknown" {
			fmt.Printf("Commit: %s\n", GitCommit)
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServer() {
	// Baseline logger for early startup logs, re-initialized once config is loaded
	logging.Init(logging.Config{
		Format:    "auto",
		Level:     "info",
		Component: "folio",
	})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Format:    cfg.LogFormat,
		Level:     cfg.LogLevel,
		Component: "folio",
	})

	log.Info().Str("version", Version).Msg("Starting Folio dashboard server")

	db, err := store.Open(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Database).Msg("Failed to open database")
	}
	defer db.Close()

	if err := store.EnsureSchema(db); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply database schema")
	}

	ident := identity.NewStoreSource(db)

	// The dashboard is single-owner. Resolve the owner up front so the
	// subscription provider knows whose subscription to track; an empty id
	// degrades to the free plan until a user row exists.
	ownerID := ""
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if user, err := ident.CurrentUser(startupCtx); err != nil {
		log.Warn().Err(err).Msg("No owner account found, serving free plan defaults until one is created")
	} else {
		ownerID = user.ID
		log.Info().Str("user", user.Email).Msg("Resolved dashboard owner")
	}
	startupCancel()

	subs := subscription.NewProvider(subscription.NewDBStore(db), ownerID, cfg.CoalesceWindow)
	defer subs.Close()

	// Load the stored subscription before the first pass so the initial
	// grants reflect the owner's actual plan, not the free sentinel.
	refreshCtx, refreshCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := subs.Refresh(refreshCtx); err != nil {
		log.Warn().Err(err).Msg("Failed to load subscription, starting on free plan defaults")
	}
	refreshCancel()

	// Plan catalog: a JSON file when configured, the database otherwise.
	var (
		planSource plans.Source
		fileSource *plans.FileSource
	)
	if cfg.PlansFile != "" {
		fileSource = plans.NewFileSource(cfg.PlansFile)
		planSource = fileSource
	} else {
		planSource = plans.NewDBSource(db)
	}
	resolver := plans.NewResolver(planSource)

	optional := []domains.Fetcher{
		domains.NewBlogFetcher(db),
		domains.NewEventsFetcher(db),
		domains.NewAwardsFetcher(db),
		domains.NewFAQFetcher(db),
		domains.NewNewsletterFetcher(db),
		domains.NewContactFetcher(db),
	}

	passMetrics := metrics.New()

	var aggregator *dashboard.Aggregator
	wsHub := websocket.NewHub(
		func() (dashboard.Snapshot, bool) { return aggregator.Latest() },
		func() { aggregator.Trigger() },
		subs.Notify,
	)

	aggregator = dashboard.New(
		ident,
		subs,
		resolver,
		domains.NewBooksFetcher(db),
		optional,
		dashboard.WithBroadcaster(wsHub),
		dashboard.WithMetrics(passMetrics),
		dashboard.WithFetchTimeout(cfg.FetchTimeout),
	)
	defer aggregator.Close()

	// Subscription changes invalidate the current snapshot.
	subs.OnChange(aggregator.Trigger)

	// The watcher starts only after the aggregator exists; its callback
	// runs on the fsnotify goroutine.
	if fileSource != nil {
		planWatcher, err := plans.NewWatcher(fileSource, func() {
			log.Info().Str("path", cfg.PlansFile).Msg("Plan catalog changed, re-evaluating")
			aggregator.Trigger()
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to create plan watcher, catalog changes will require restart")
		} else if err := planWatcher.Start(); err != nil {
			log.Warn().Err(err).Msg("Failed to start plan watcher")
		} else {
			defer planWatcher.Stop()
		}
	}

	hubStop := make(chan struct{})
	go wsHub.Run(hubStop)
	defer close(hubStop)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewRouter(aggregator, subs, wsHub, passMetrics, Version),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start HTTP server")
		}
	}()

	// Warm the dashboard so the first page load has data.
	aggregator.Trigger()

	sigChan := make(chan os.Signal, 1)
	reloadChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	signal.Notify(reloadChan, syscall.SIGHUP)

	for {
		select {
		case <-reloadChan:
			log.Info().Msg("Received SIGHUP, re-reading plan catalog")
			if fileSource != nil {
				fileSource.Invalidate()
			}
			subs.Notify()
			aggregator.Trigger()

		case <-sigChan:
			log.Info().Msg("Shutting down server...")
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer shutdownCancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Server shutdown error")
			}
			log.Info().Msg("Server stopped")
			return
		}
	}
}
