package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fleetops/internal/agent"
	"fleetops/internal/api"
	"fleetops/internal/config"
	"fleetops/internal/decide"
	"fleetops/internal/metrics"
	"fleetops/internal/opt"
	"fleetops/internal/perceive"
	"fleetops/internal/plan"
	"fleetops/internal/reason"
	"fleetops/internal/sim"
	"fleetops/internal/store"
	"fleetops/internal/webhooks"
)

func main() {
	lg := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel()}))
	slog.SetDefault(lg)

	cfg, err := config.Load("")
	if err != nil {
		lg.Error("config load failed", "err", err)
		os.Exit(1)
	}

	metrics.RegisterDefault()

	// Store: Postgres when configured, in-memory otherwise.
	var st store.Store
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			lg.Error("postgres init failed", "err", err)
			os.Exit(1)
		}
		defer pg.Close()
		st = pg
		lg.Info("store", "kind", "postgres")
	} else {
		st = store.NewMemory()
		lg.Info("store", "kind", "memory")
	}

	// Broker: Redis when configured, in-process otherwise.
	var broker api.EventBroker
	if cfg.RedisURL != "" {
		rb, err := api.NewRedisBroker(cfg.RedisURL)
		if err != nil {
			lg.Warn("redis broker unavailable, using in-process broker", "err", err)
			broker = api.NewMemoryBroker()
		} else {
			broker = rb
			lg.Info("broker", "kind", "redis")
		}
	} else {
		broker = api.NewMemoryBroker()
	}

	// Analyzer: rule engine, optionally fronted by the LLM.
	var analyzer reason.SituationAnalyzer = reason.NewRuleAnalyzer()
	if cfg.Agent.Analyzer == config.AnalyzerLLM {
		analyzer = reason.NewLLMAnalyzer(reason.LLMConfig{
			BaseURL:        cfg.LLM.BaseURL,
			APIKey:         cfg.LLM.APIKey,
			Model:          cfg.LLM.Model,
			Timeout:        cfg.LLM.Timeout,
			CallsPerMinute: cfg.LLM.CallsPerMinute,
		}, reason.NewRuleAnalyzer(), lg)
	}
	lg.Info("analyzer", "kind", cfg.Agent.Analyzer)

	evaluator, err := decide.NewEvaluator(cfg.Agent.DecisionWeights, cfg.Agent.ConfidenceThreshold)
	if err != nil {
		lg.Error("evaluator init failed", "err", err)
		os.Exit(1)
	}

	executor := agent.NewStoreExecutor(st, lg)
	engine := agent.NewEngine(
		perceive.NewStoreProvider(lg, st),
		analyzer,
		plan.NewGenerator(nil, cfg.Agent.MaxScenarios),
		evaluator,
		executor,
		st,
		lg,
	)

	queue := webhooks.NewQueue()
	pub := webhooks.NewPublisher(queue, cfg.Webhooks.Endpoint, cfg.Webhooks.Secret)
	engine.OnEvent = func(kind string, payload any) {
		data, _ := payload.(map[string]any)
		broker.Publish(api.TopicAgent, api.Event{Type: kind, Data: data})
		pub.Emit(kind, payload)
	}

	runner := agent.NewRunner(engine, cfg.Agent.CycleInterval, lg)
	srv := api.NewServer(st, runner, executor, opt.NewAssignmentEngine(nil), broker,
		pub, opt.Strategy(cfg.Agent.AssignmentStrategy), lg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	worker := webhooks.NewWorker(queue, lg)
	worker.Start()
	defer worker.Stop()

	if cfg.Sim.Enabled {
		if err := sim.Seed(ctx, st, cfg.Sim.Trucks); err != nil {
			lg.Error("sim seed failed", "err", err)
			os.Exit(1)
		}
		simulator := sim.New(st, lg)
		simulator.Emit = func(kind string, data map[string]any) {
			broker.Publish(api.TopicFleet, api.Event{Type: kind, Data: data})
		}
		simulator.Start(ctx, cfg.Sim.TickInterval)
		defer simulator.Stop()
		lg.Info("simulator running", "trucks", cfg.Sim.Trucks, "tick", cfg.Sim.TickInterval)
	}

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		lg.Info("listening", "addr", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error("server error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	lg.Info("shutting down")
	runner.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		lg.Error("shutdown failed", "err", err)
	}
}

func logLevel() slog.Level {
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
