package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/arbiterhq/arbiter/internal/cycle"
	"github.com/arbiterhq/arbiter/internal/domain"
	"github.com/arbiterhq/arbiter/internal/engine"
	"github.com/arbiterhq/arbiter/internal/executor"
	"github.com/arbiterhq/arbiter/internal/feed"
	"github.com/arbiterhq/arbiter/internal/ranker"
	"github.com/arbiterhq/arbiter/internal/risk"
	"github.com/arbiterhq/arbiter/internal/rugpull"
	"github.com/arbiterhq/arbiter/internal/server"
	"github.com/arbiterhq/arbiter/internal/server/handler"
	"github.com/arbiterhq/arbiter/internal/server/ws"
	"github.com/arbiterhq/arbiter/internal/sizer"
	"github.com/arbiterhq/arbiter/internal/snapshot"
	"github.com/arbiterhq/arbiter/internal/strategy"
	"github.com/arbiterhq/arbiter/internal/venue"
)

// pipeline groups the stages one running instance shares across modes. Server
// mode builds it for the operator surface without driving the engine loop.
type pipeline struct {
	snapshots *snapshot.Store
	risk      *risk.Manager
	cycle     *cycle.Scheduler
	engine    *engine.Engine
}

// buildPipeline constructs every stage from configuration. Venue connectors
// are simulated; live connectivity is delivered by the quote feeds, and fills
// are modeled with the configured slippage.
func (a *App) buildPipeline(deps *Dependencies) *pipeline {
	cfg := a.cfg

	snapshots := snapshot.NewStore(cfg.Snapshot.StaleAfter.Duration, a.logger)

	fees := strategy.StaticFees{ByVenue: make(map[string]float64), DefaultBps: 10}
	for name, v := range cfg.Venues {
		fees.ByVenue[name] = v.TakerFeeBps
	}
	cal := strategy.NewCalibrator(cfg.Strategy.PriorWinRate, cfg.Strategy.MinSampleSize)

	reg := strategy.NewRegistry()
	ttl := cfg.Strategy.DefaultTTL.Duration
	target := cfg.Strategy.TargetSizeUSD
	enabled := make(map[string]bool, len(cfg.Strategy.Enabled))
	for _, name := range cfg.Strategy.Enabled {
		enabled[name] = true
	}
	if enabled["cex_cex"] {
		reg.Register(strategy.NewCexCex(cfg.Strategy.CexCex.MinEdgeBps, target, ttl, fees, cal, a.logger))
	}
	if enabled["dex_dex"] {
		reg.Register(strategy.NewDexDex(cfg.Strategy.DexDex.MinEdgeBps, target, ttl, fees, cal, a.logger))
	}
	if enabled["cex_dex"] {
		reg.Register(strategy.NewCexDex(cfg.Strategy.CexDex.MinEdgeBps, target, ttl, fees, cal, a.logger))
	}
	if enabled["triangular"] {
		reg.Register(strategy.NewTriangular(cfg.Strategy.Triangular.MinEdgeBps, target, ttl, cfg.Strategy.Triangular.Cycles, fees, cal, a.logger))
	}
	if enabled["funding_rate"] {
		reg.Register(strategy.NewFunding(cfg.Strategy.Funding.MinRateBps, target, ttl, cfg.Strategy.Funding.Pairs, fees, cal, a.logger))
	}
	if enabled["statistical"] {
		reg.Register(strategy.NewStatistical(
			cfg.Strategy.Statistical.MinEdgeBps, cfg.Strategy.Statistical.EntryZ, target, ttl,
			cfg.Strategy.Statistical.Ratio, cfg.Strategy.Statistical.RatioStddev, fees, cal, a.logger,
		))
	}
	if enabled["cross_chain"] {
		reg.Register(strategy.NewCrossChain(cfg.Strategy.CrossChain.MinEdgeBps, target, ttl, cfg.Strategy.CrossChain.BridgeFeeUSD, fees, cal, a.logger))
	}

	riskMgr := risk.NewManager(risk.Config{
		CapitalAtRiskFraction:   cfg.Risk.CapitalAtRiskFraction,
		MaxPositionFraction:     cfg.Risk.MaxPositionFraction,
		MaxPositions:            cfg.Risk.MaxPositions,
		DailyLossLimitUSD:       cfg.Risk.DailyLossLimitUSD,
		MaxConsecutiveLosses:    cfg.Risk.MaxConsecutiveLosses,
		VolatilitySpikeMultiple: cfg.Risk.VolatilitySpikeMultiple,
		CorrelationThreshold:    cfg.Risk.CorrelationThreshold,
		WarningFraction:         cfg.Risk.WarningFraction,
	}, cfg.Engine.InitialCapitalUSD, deps.Events, a.logger)

	screen := rugpull.NewDetector(rugpull.Config{
		MinLiquidityLockUSD: cfg.RugPull.MinLiquidityLockUSD,
		MaxTopHolderPct:     cfg.RugPull.MaxTopHolderPct,
		MinTokenAgeDays:     cfg.RugPull.MinTokenAgeDays,
		MinHolderCount:      cfg.RugPull.MinHolderCount,
		Blacklist:           cfg.RugPull.Blacklist,
		CacheTTL:            cfg.RugPull.CacheTTL.Duration,
	}, venue.SimInspector{}, a.logger)

	venues := make(map[string]domain.VenueExecutor)
	for name, v := range cfg.Venues {
		if !v.Enabled {
			continue
		}
		venues[name] = venue.NewSim(name, venue.SimConfig{SlippageBps: 2, FillRate: 0.98})
	}

	coord := executor.NewCoordinator(executor.Config{
		LegTimeout:    cfg.Executor.LegTimeout.Duration,
		UnwindTimeout: cfg.Executor.UnwindTimeout.Duration,
	}, venues, riskMgr, deps.Executions, deps.Events, a.logger)

	sched := cycle.NewScheduler(cycle.Config{
		LengthDays:      cfg.Cycle.LengthDays,
		DailyTargetRate: cfg.Cycle.DailyTargetRate,
	}, cfg.Engine.InitialCapitalUSD, riskMgr, deps.Cycles, deps.Archiver, deps.Events, a.logger)

	eng := engine.New(engine.Config{PassInterval: cfg.Engine.PassInterval.Duration}, engine.Deps{
		Snapshots:  snapshots,
		Registry:   reg,
		Calibrator: cal,
		Ranker:     ranker.New(cfg.Strategy.MinWinRate, cfg.Strategy.MinConfidence, a.logger),
		Risk:       riskMgr,
		Sizer:      sizer.New(cfg.Sizer.KellyFraction, cfg.Risk.MaxPositionFraction),
		Screen:     screen,
		Executor:   coord,
		Cycle:      sched,
		Events:     deps.Events,
		Logger:     a.logger,
	})

	return &pipeline{snapshots: snapshots, risk: riskMgr, cycle: sched, engine: eng}
}

// PaperMode runs the full pipeline against a simulated market.
func (a *App) PaperMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting paper mode")

	g, ctx := errgroup.WithContext(ctx)
	p := a.buildPipeline(deps)

	sim := feed.NewSimFeed(a.simVenues(), 250*time.Millisecond, p.snapshots, a.logger)
	g.Go(func() error { return sim.Run(ctx) })
	g.Go(func() error { return p.engine.Run(ctx) })

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, p, p.engine)
	}
	return g.Wait()
}

// LiveMode runs the full pipeline on live quote feeds. Order placement still
// goes through the simulated connectors; real venue order entry is delivered
// by the per-venue collectors, not this process.
func (a *App) LiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting live mode")
	a.logger.WarnContext(ctx, "live mode executes against simulated fills; no venue order entry is wired")

	g, ctx := errgroup.WithContext(ctx)
	p := a.buildPipeline(deps)

	if err := a.startFeeds(ctx, g, p.snapshots); err != nil {
		return fmt.Errorf("live mode: %w", err)
	}
	g.Go(func() error { return p.engine.Run(ctx) })

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, p, p.engine)
	}
	return g.Wait()
}

// MonitorMode runs detection only: feeds, evaluators, and ranking, with every
// surviving candidate published as an event. Nothing is reserved or executed.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)
	p := a.buildPipeline(deps)

	if err := a.startFeeds(ctx, g, p.snapshots); err != nil {
		return fmt.Errorf("monitor mode: %w", err)
	}

	w := newWatcher(p.engine, a.cfg.Engine.PassInterval.Duration, a.logger)
	g.Go(func() error { return w.Run(ctx) })

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, p, p.engine)
	}
	return g.Wait()
}

// ServerMode serves the operator API over the warm archive without running
// the trading pipeline.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	if !a.cfg.Server.Enabled {
		return fmt.Errorf("server mode: server.enabled is false")
	}

	g, ctx := errgroup.WithContext(ctx)
	p := a.buildPipeline(deps)
	a.startHTTPServer(ctx, g, deps, p, p.engine)
	return g.Wait()
}

// startFeeds launches one WebSocket quote feed per enabled venue.
func (a *App) startFeeds(ctx context.Context, g *errgroup.Group, snapshots *snapshot.Store) error {
	started := 0
	for name, v := range a.cfg.Venues {
		if !v.Enabled {
			continue
		}
		if v.FeedURL == "" {
			a.logger.WarnContext(ctx, "venue has no feed_url, skipping", slog.String("venue", name))
			continue
		}
		f := feed.NewWSFeed(v.FeedURL, name, domain.VenueKind(v.Kind), v.Chain, snapshots, a.logger)
		g.Go(func() error { return f.Run(ctx) })
		started++
	}
	if started == 0 {
		return fmt.Errorf("no enabled venue has a feed_url")
	}
	return nil
}

// simVenues maps the enabled venue configs onto simulated feed descriptors.
func (a *App) simVenues() []feed.SimVenue {
	out := make([]feed.SimVenue, 0, len(a.cfg.Venues))
	for name, v := range a.cfg.Venues {
		if !v.Enabled {
			continue
		}
		out = append(out, feed.SimVenue{
			VenueID:     name,
			Kind:        domain.VenueKind(v.Kind),
			Chain:       v.Chain,
			Instruments: v.Instruments,
		})
	}
	return out
}

// startHTTPServer adds the operator API and the WebSocket hub to the group.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, p *pipeline, candidates handler.CandidateSource) {
	hub := ws.NewHub(deps.Bus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error { return hub.Run(ctx) })

	srv := server.New(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      deps.APIKey,
		RateLimiter: deps.RateLimiter,
	}, server.Handlers{
		Health:        handler.NewHealthHandler(a.cfg.Mode, time.Now().UTC(), a.logger),
		Risk:          handler.NewRiskHandler(p.risk, a.logger),
		Cycle:         handler.NewCycleHandler(p.cycle, deps.Cycles, a.logger),
		Opportunities: handler.NewOpportunityHandler(candidates, a.logger),
		Executions:    handler.NewExecutionHandler(deps.Executions, a.logger),
	}, hub, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// watcher drives the engine's detection half on the pass interval. Nothing
// is reserved or executed; ranked candidates land in the engine's recent
// window for the operator surface, and opportunity events still fan out.
type watcher struct {
	engine   *engine.Engine
	interval time.Duration
	logger   *slog.Logger
}

func newWatcher(eng *engine.Engine, interval time.Duration, logger *slog.Logger) *watcher {
	return &watcher{
		engine:   eng,
		interval: interval,
		logger:   logger.With(slog.String("component", "watcher")),
	}
}

// Run evaluates until ctx is cancelled.
func (w *watcher) Run(ctx context.Context) error {
	w.logger.Info("watcher started", slog.Duration("pass_interval", w.interval))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.engine.DetectOnly(ctx)
		}
	}
}
