package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joseph-ayodele/responder-tracker/internal/async"
	"github.com/joseph-ayodele/responder-tracker/internal/common"
	"github.com/joseph-ayodele/responder-tracker/internal/export"
	"github.com/joseph-ayodele/responder-tracker/internal/llm"
	"github.com/joseph-ayodele/responder-tracker/internal/llm/openai"
	"github.com/joseph-ayodele/responder-tracker/internal/metrics"
	"github.com/joseph-ayodele/responder-tracker/internal/pipeline"
	repo "github.com/joseph-ayodele/responder-tracker/internal/repository"
	"github.com/joseph-ayodele/responder-tracker/internal/server"
	"github.com/joseph-ayodele/responder-tracker/internal/services/interpret"
)

func main() {
	common.LoadDotEnv()
	cfg := common.LoadConfig()

	logger, closer := common.NewLogger(cfg.Log)
	defer closer.Close()
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}
	loc, _ := cfg.Pipeline.Location()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repo.Open(ctx, repo.Config{
		DSN:             cfg.Database.DSN,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		DialTimeout:     cfg.Database.DialTimeout,
	}, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		logger.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	m := metrics.NewMetrics()

	// model transport; without a key the pipeline reports the model unavailable
	var transport llm.ChatTransport
	if cfg.LLM.APIKey != "" {
		transport = openai.NewClient(openai.Config{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Timeout: cfg.LLM.Timeout,
		}, logger)
	} else {
		logger.Warn("OPENAI_API_KEY not set; every interpretation will report the model unavailable")
	}
	adapter, err := llm.NewAdapter(transport, llm.AdapterConfig{
		Retry: llm.RetryConfig{
			MaxAttempts:      cfg.LLM.MaxAttempts,
			InitialMaxTokens: cfg.LLM.MaxTokens,
			MaxTokensCap:     cfg.LLM.MaxTokensCap,
			GrowthFactor:     cfg.LLM.TokenGrowth,
			Delay:            cfg.LLM.RetryDelay,
		},
		Params: map[string]any{llm.ParamTemperature: cfg.LLM.Temperature},
	}, logger, llm.WithObserver(m))
	if err != nil {
		logger.Error("failed to build model adapter", "error", err)
		os.Exit(1)
	}

	interpreter := pipeline.NewInterpreter(adapter, logger,
		pipeline.WithTimeout(cfg.Pipeline.InterpretTimeout),
		pipeline.WithRecorder(m),
	)

	interpretations := repo.NewInterpretationRepository(db, logger)
	svcOpts := []interpret.Option{
		interpret.WithCacheSize(cfg.Pipeline.ResultCacheSize),
		interpret.WithCacheObserver(m),
		interpret.WithStoreObserver(m),
	}
	if cfg.Redis.URL != "" {
		rdb, err := repo.NewRedisClient(ctx, repo.RedisConfig{URL: cfg.Redis.URL}, logger)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer rdb.Close()
		svcOpts = append(svcOpts, interpret.WithRoster(repo.NewRedisRoster(rdb, cfg.Redis.Prefix, cfg.Redis.TTL, logger)))
	}
	service := interpret.NewService(interpreter, interpretations, loc, logger, svcOpts...)

	queue := async.NewMessageQueue(service, logger,
		async.WithWorkers(cfg.Queue.Workers),
		async.WithQueueSize(cfg.Queue.Size),
		async.WithProcessTimeout(cfg.Queue.JobTimeout),
		async.WithObserver(m),
	)

	router := server.NewRouter(server.Deps{
		Service:     service,
		Exporter:    export.NewService(interpretations, loc, logger),
		Queue:       queue,
		Health:      db,
		Metrics:     m.Handler(),
		CORSOrigins: cfg.Server.CORSOrigins,
		Logger:      logger,
	})
	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var grpcServer *server.HealthServer
	if cfg.Server.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			logger.Error("failed to listen on address", "addr", cfg.Server.GRPCAddr, "error", err)
			os.Exit(1)
		}
		grpcServer = server.NewHealthServer(db, logger)
		go grpcServer.Watch(ctx, 15*time.Second)
		go func() {
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("grpc serve failed", "error", err)
				stop()
			}
		}()
	}

	logger.Info("responder-tracker listening",
		"http_addr", cfg.Server.HTTPAddr,
		"grpc_addr", cfg.Server.GRPCAddr,
		"timezone", loc.String(),
		"model", cfg.LLM.Model,
		"redis_roster", cfg.Redis.URL != "",
	)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http serve failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	queue.Shutdown(shutdownCtx)
	if grpcServer != nil {
		grpcServer.Stop()
	}
	logger.Info("stopped")
}
