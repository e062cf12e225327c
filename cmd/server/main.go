package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/sorelab/sore/internal/cache"
	"github.com/sorelab/sore/internal/config"
	"github.com/sorelab/sore/internal/database"
	"github.com/sorelab/sore/internal/events"
	"github.com/sorelab/sore/internal/normalize"
	"github.com/sorelab/sore/internal/pipeline"
	"github.com/sorelab/sore/internal/progress"
	"github.com/sorelab/sore/internal/providers"
	"github.com/sorelab/sore/internal/ratelimit"
	"github.com/sorelab/sore/internal/reports"
	"github.com/sorelab/sore/internal/scanner"
	"github.com/sorelab/sore/internal/server"
	"github.com/sorelab/sore/internal/universe"
	"github.com/sorelab/sore/pkg/logger"
)

func main() {
	log := logger.New(logger.Config{Level: "info", Pretty: true})
	log.Info().Msg("starting sore")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	log = logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})

	universeDB, err := database.New(database.Config{
		Path:    cfg.UniverseDBPath,
		Profile: database.ProfileDurable,
		Name:    "universe",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize universe database")
	}
	defer universeDB.Close()

	bus := events.NewBus()
	em := events.NewManager(bus, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	universeStore, err := universe.New(ctx, universeDB, em, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize symbol universe store")
	}

	reportStore, err := reports.New(cfg.ReportsDir, cfg.DecisionsDir, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize report store")
	}

	market := providers.NewDemoMarketProvider("demo", log, time.Now().UnixNano())
	model := providers.NewDemoModelAnalyzer("demo", log, time.Now().UnixNano())

	limiter := ratelimit.New(ratelimit.Config{
		MinDelay:    time.Duration(cfg.RateLimit.MinDelayMS) * time.Millisecond,
		MaxRetries:  cfg.RateLimit.MaxRetries,
		BackoffBase: time.Duration(cfg.RateLimit.BackoffBaseMS) * time.Millisecond,
		BackoffCap:  time.Duration(cfg.RateLimit.BackoffCapMS) * time.Millisecond,
	}, log)

	orchestrator := scanner.New(limiter, log)
	steps := buildSteps(market, universeStore)

	generator := progress.NewGenerator(orchestrator, reportStore, log)

	refresh := func(refreshCtx context.Context, homeOnly bool) (cache.Snapshot, error) {
		return refreshHomeSnapshot(refreshCtx, market, universeStore, homeOnly, log)
	}
	cacheStore := cache.New(refresh, time.Duration(cfg.Cache.RefreshIntervalMS)*time.Millisecond, em, log)

	refreshPipeline := pipeline.New(log)
	phases := buildPhases(market, orchestrator, steps, cacheStore)
	scheduler := pipeline.NewScheduler(refreshPipeline, phases, log)
	if err := scheduler.Start("0 */5 * * * *"); err != nil {
		log.Fatal().Err(err).Msg("failed to start refresh scheduler")
	}
	defer scheduler.Stop()

	srv := server.New(server.Deps{
		Log:       log,
		Market:    market,
		Model:     model,
		Scanner:   orchestrator,
		Steps:     steps,
		Reports:   reportStore,
		Universe:  universeStore,
		Cache:     cacheStore,
		Generator: generator,
		DevMode:   cfg.DevMode,
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 180 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server stopped")
}

// buildSteps wires C6's declared suite order to C1's fetch capability, one
// StepDef per scanner.DefaultSteps entry, stock-scanner first.
func buildSteps(market providers.MarketProvider, universeStore *universe.Store) []scanner.StepDef {
	steps := make([]scanner.StepDef, 0, len(scanner.DefaultSteps))
	for _, id := range scanner.DefaultSteps {
		id := id
		if id == "stock_scanner" {
			steps = append(steps, scanner.StepDef{
				ID: id, Label: id, ProviderTag: market.Tag(), SourceType: normalize.SourceStock,
				BaseTimeout: 180 * time.Second,
				Run: func(ctx context.Context) ([]providers.Candidate, error) {
					symbols, err := universeStore.List(ctx)
					if err != nil {
						return nil, err
					}
					return market.FetchStockScanner(ctx, symbols)
				},
			})
			continue
		}
		steps = append(steps, scanner.StepDef{
			ID: id, Label: id, ProviderTag: market.Tag(), SourceType: normalize.SourceOptions,
			BaseTimeout: 90 * time.Second,
			Run: func(ctx context.Context) ([]providers.Candidate, error) {
				return market.GenerateStrategyReport(ctx, id, nil)
			},
		})
	}
	return steps
}

// refreshHomeSnapshot fans out C1's regime/playbook/signals/health calls
// into C8's Snapshot shape, recording a per-field error rather than failing
// the whole refresh when a single field's source is unavailable.
func refreshHomeSnapshot(ctx context.Context, market providers.MarketProvider, universeStore *universe.Store, homeOnly bool, log zerolog.Logger) (cache.Snapshot, error) {
	data := map[string]interface{}{}
	var errs []cache.FieldError

	rgm, err := market.GetRegime(ctx)
	if err != nil {
		errs = append(errs, cache.FieldError{Field: "regime", Message: err.Error()})
	} else {
		data["regime"] = rgm
	}

	if err == nil {
		if pb, pbErr := market.GetPlaybook(ctx, rgm); pbErr != nil {
			errs = append(errs, cache.FieldError{Field: "playbook", Message: pbErr.Error()})
		} else {
			data["playbook"] = pb
		}
	}

	health, healthErr := market.GetSourceHealth(ctx)
	if healthErr != nil {
		errs = append(errs, cache.FieldError{Field: "source_health", Message: healthErr.Error()})
	} else {
		data["source_health"] = health
	}

	if !homeOnly {
		signals, sigErr := market.GetSignals(ctx)
		if sigErr != nil {
			errs = append(errs, cache.FieldError{Field: "signals", Message: sigErr.Error()})
		} else {
			data["signals"] = signals
		}

		symbols, uniErr := universeStore.List(ctx)
		if uniErr != nil {
			errs = append(errs, cache.FieldError{Field: "universe", Message: uniErr.Error()})
		} else {
			data["universe_size"] = len(symbols)
		}
	}

	if len(data) == 0 && len(errs) > 0 {
		return cache.Snapshot{}, fmt.Errorf("%s: %s", errs[0].Field, errs[0].Message)
	}

	return cache.Snapshot{Data: data, Errors: errs, Partial: len(errs) > 0, RefreshedAt: time.Now()}, nil
}

// buildPhases wires C10's declared phase order to the concrete work each
// phase performs. home_dashboard does a forced home-only snapshot refresh
// (regime, playbook, source health; signals and universe size are skipped);
// regime_refresh/signals_refresh/source_health_refresh independently
// exercise their C1 calls under the phase's own timeout/critical/optional
// policy and write nothing into the snapshot, so they are per-call health
// checks rather than a second write path; scanner_suite runs the scan
// suite. broker_positions/
// broker_orders/broker_account are no-ops: no broker client exists in this
// module (order routing and PnL accounting are out of scope), so they are
// kept in the declared order but always report a clean, instant success.
func buildPhases(market providers.MarketProvider, orchestrator *scanner.Orchestrator, steps []scanner.StepDef, cacheStore *cache.Store) []pipeline.Phase {
	noopBroker := func(ctx context.Context) error { return nil }
	return []pipeline.Phase{
		{
			ID: "home_dashboard", Timeout: 30 * time.Second, Critical: true,
			Run: func(ctx context.Context) error {
				_, err := cacheStore.RefreshSilent(ctx, true, true)
				return err
			},
		},
		{ID: "broker_positions", Timeout: 5 * time.Second, Optional: true, Run: noopBroker},
		{ID: "broker_orders", Timeout: 5 * time.Second, Optional: true, Run: noopBroker},
		{ID: "broker_account", Timeout: 5 * time.Second, Optional: true, Run: noopBroker},
		{
			ID: "scanner_suite", Timeout: 5 * time.Minute, Optional: true,
			Run: func(ctx context.Context) error {
				result := orchestrator.RunScannerSuite(ctx, steps, scanner.LevelBalanced, nil)
				if len(result.Opportunities) == 0 && len(result.Errors) > 0 {
					last := result.Errors[len(result.Errors)-1]
					return fmt.Errorf("%s: %s", last.StepID, last.Message)
				}
				return nil
			},
		},
		{
			ID: "regime_refresh", Timeout: 10 * time.Second,
			Run: func(ctx context.Context) error {
				_, err := market.GetRegime(ctx)
				return err
			},
		},
		{
			ID: "signals_refresh", Timeout: 10 * time.Second, Optional: true,
			Run: func(ctx context.Context) error {
				_, err := market.GetSignals(ctx)
				return err
			},
		},
		{
			ID: "source_health_refresh", Timeout: 10 * time.Second, Optional: true,
			Run: func(ctx context.Context) error {
				_, err := market.GetSourceHealth(ctx)
				return err
			},
		},
	}
}

