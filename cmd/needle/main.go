package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/haytools/needle/internal/config"
	"github.com/haytools/needle/internal/db"
	dbRedis "github.com/haytools/needle/internal/db/redis"
	"github.com/haytools/needle/internal/docstore"
	"github.com/haytools/needle/internal/domain"
	"github.com/haytools/needle/internal/index"
	logpkg "github.com/haytools/needle/internal/logger"
	"github.com/haytools/needle/internal/metrics"
	budgetrepo "github.com/haytools/needle/internal/repository/budget"
	"github.com/haytools/needle/internal/repository/embcache"
	"github.com/haytools/needle/internal/transport/httpapi"
	openaiTransport "github.com/haytools/needle/internal/transport/openai"
	encodinguc "github.com/haytools/needle/internal/usecase/encoding"
	finderuc "github.com/haytools/needle/internal/usecase/finder"
	healthuc "github.com/haytools/needle/internal/usecase/health"
	retrieveruc "github.com/haytools/needle/internal/usecase/retriever"
	"github.com/haytools/needle/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting needle API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("metric", cfg.Index.Metric),
		zap.String("retriever", cfg.Index.Retriever),
	)

	ctx := context.Background()

	// Optional cache store. No addresses — no embedding cache, no budget
	// persistence; everything else keeps working.
	var store db.Store
	if len(cfg.Cache.Addrs) > 0 {
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Cache.Addrs,
			Username: cfg.Cache.Username,
			Password: cfg.Cache.Password,
		})
		if err != nil {
			logger.Fatal("Failed to create cache store", zap.Error(err))
		}
		defer s.Close()

		timeout := time.Duration(cfg.Cache.ReadinessTimeout) * time.Second
		if err := s.WaitForReady(ctx, timeout); err != nil {
			logger.Fatal("Cache not ready", zap.Error(err))
		}
		store = s
		logger.Info("Connected to cache", zap.Strings("addrs", cfg.Cache.Addrs))
	}

	// Register metrics explicitly (no init())
	metrics.RegisterEncodingMetrics()
	metrics.RegisterPipelineMetrics()

	// Single BudgetTracker shared by both encoder sides.
	var budget *encodinguc.BudgetTracker
	budgetCfg := cfg.Encoder.Budget
	if budgetCfg.DailyTokenLimit > 0 || budgetCfg.MonthlyTokenLimit > 0 {
		action := encodinguc.BudgetActionWarn
		if budgetCfg.Action == "reject" {
			action = encodinguc.BudgetActionReject
		}
		budget = encodinguc.NewBudgetTracker(
			cfg.Encoder.Provider, budgetCfg.DailyTokenLimit, budgetCfg.MonthlyTokenLimit, action, logger,
		)
		if store != nil {
			// Connect persistence store — loads current counters.
			budget.WithStore(ctx, budgetrepo.New(store))
		}
	}

	// Pass nil interface (not typed nil pointer!) if budget is not configured.
	// Go gotcha: (*BudgetTracker)(nil) wrapped in BudgetChecker != nil.
	var budgetChecker encodinguc.BudgetChecker
	if budget != nil {
		budgetChecker = budget
	}

	encoder, encoderCheck := buildEncoder(cfg.Encoder, cfg.Index.EncodeShards, store, budgetChecker, logger)
	logger.Info("Encoder chain created",
		zap.String("provider", cfg.Encoder.Provider),
		zap.String("query_model", cfg.Encoder.QueryModel),
		zap.String("passage_model", cfg.Encoder.PassageModel),
		zap.Int("dimensions", cfg.Encoder.Dimensions),
	)

	docs, err := docstore.New(cfg.Encoder.Dimensions, index.Metric(cfg.Index.Metric), logger)
	if err != nil {
		logger.Fatal("Failed to create document store", zap.Error(err))
	}

	dense := retrieveruc.NewDense(encoder, docs, logger).
		WithEmbedBatchSize(cfg.Index.EmbedBatchSize)
	var serving retrieveruc.Retriever = dense
	switch cfg.Index.Retriever {
	case "lexical":
		serving = retrieveruc.NewLexical(docs)
	case "hybrid":
		serving = retrieveruc.NewHybrid(dense, retrieveruc.NewLexical(docs))
	}

	reader := openaiTransport.NewReader(&openaiTransport.ReaderConfig{
		APIKey:   cfg.Reader.APIKey,
		BaseURL:  cfg.Reader.BaseURL,
		Model:    cfg.Reader.Model,
		Provider: cfg.Reader.Provider,
		Logger:   logger,
	})

	finder := finderuc.New(serving, reader, logger)

	var cachePinger healthuc.CachePinger
	if store != nil {
		cachePinger = store
	}
	healthSvc := healthuc.New(docs, cachePinger, encoderCheck)

	server := httpapi.NewServer(docs, serving, dense, finder, healthSvc, logger)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Router(cfg.Auth.APIKeys),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildEncoder assembles the decorator chain:
// OpenAI -> Batcher -> Cached -> Instrumented -> Instruction.
// The instruction prefix is outermost so the cache key includes it and
// query/passage vectors never collide in the shared keyspace.
// The second return is the base provider's health check, which the decorators
// do not forward.
func buildEncoder(
	encCfg config.EncoderConfig,
	shards int,
	store db.Store,
	budget encodinguc.BudgetChecker,
	logger *zap.Logger,
) (domain.Encoder, domain.HealthChecker) {
	// Base provider (with transport metrics built-in)
	base := openaiTransport.NewEncoder(&openaiTransport.EncoderConfig{
		APIKey:        encCfg.APIKey,
		BaseURL:       encCfg.BaseURL,
		QueryModel:    encCfg.QueryModel,
		PassageModel:  encCfg.PassageModel,
		Dimensions:    encCfg.Dimensions,
		MaxInputRunes: encCfg.MaxInputRunes,
		Provider:      encCfg.Provider,
		Logger:        logger,
	})

	var encoder domain.Encoder = encodinguc.NewBatcher(base, encodinguc.DefaultMaxAPIBatchSize, shards)

	if store != nil {
		encoder = embcache.New(encoder, store, metrics.EncodingCacheTotal, logger)
	}

	encoder = encodinguc.NewInstrumentedEncoder(
		encoder, encCfg.Provider, encCfg.QueryModel, budget, logger,
	)

	if encCfg.QueryInstruction != "" || encCfg.PassageInstruction != "" {
		encoder = domain.NewInstructionEncoder(encoder, encCfg.QueryInstruction, encCfg.PassageInstruction)
	}

	return encoder, base
}
