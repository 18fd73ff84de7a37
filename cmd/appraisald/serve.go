package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cardworks/appraisal/pkg/aggregator"
	"github.com/cardworks/appraisal/pkg/authenticity"
	"github.com/cardworks/appraisal/pkg/config"
	"github.com/cardworks/appraisal/pkg/events"
	"github.com/cardworks/appraisal/pkg/llm"
	"github.com/cardworks/appraisal/pkg/objectstore"
	"github.com/cardworks/appraisal/pkg/observability"
	"github.com/cardworks/appraisal/pkg/orchestrator"
	"github.com/cardworks/appraisal/pkg/pricing"
	"github.com/cardworks/appraisal/pkg/pricing/adapters"
	"github.com/cardworks/appraisal/pkg/ratelimit"
	"github.com/cardworks/appraisal/pkg/reasoning"
	"github.com/cardworks/appraisal/pkg/store"
	"github.com/cardworks/appraisal/pkg/trigger"
	"github.com/cardworks/appraisal/pkg/vision"
)

func runServe(stderr io.Writer) int {
	cfg := config.Load()
	setupLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg); err != nil && ctx.Err() == nil {
		fmt.Fprintf(stderr, "appraisald: %v\n", err)
		return 1
	}
	return 0
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := slog.Default().With("component", "appraisald")

	obsCfg := observability.DefaultConfig()
	obsCfg.OTLPEndpoint = cfg.OTLPEndpoint
	obsCfg.Enabled = cfg.OTLPEndpoint != ""
	obs, err := observability.New(ctx, obsCfg)
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := obs.Shutdown(shutdownCtx); err != nil {
			log.Error("observability shutdown failed", "error", err)
		}
	}()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()

	cardStore, closeDB, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	objects, err := objectstore.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init object store: %w", err)
	}

	bus := events.NewRedisBus(rdb, hostname())
	gateway := store.NewGateway(cardStore, bus, objects)

	profile, err := loadProfile(cfg)
	if err != nil {
		return err
	}

	marketAdapters, err := adapters.FromProfile(profile, cfg.AdaptersEnabled)
	if err != nil {
		return fmt.Errorf("init market adapters: %w", err)
	}

	refs, err := authenticity.LoadReferenceTable(profile.Authenticity.ReferenceHashPath)
	if err != nil {
		return fmt.Errorf("load reference hashes: %w", err)
	}

	var inference llm.Client = llm.NewOpenAIClient(cfg.LLMEndpoint, cfg.LLMAPIKey, cfg.LLMModelID, cfg.LLMCallTimeout)
	inference = llm.NewRetryingClient(inference, cfg.LLMMaxRetries, cfg.LLMRetryBaseDelay)
	inference = llm.NewCachingClient(inference, rdb)

	extractor := vision.NewExtractor(objects, vision.NewHTTPBackend(cfg.VisionEndpoint, cfg.VisionAPIKey, cfg.VisionTimeout))
	reasoner := reasoning.NewAgent(inference, cfg.LLMTemperature, cfg.LLMMaxTokens)
	pricer := pricing.NewAgent(marketAdapters, inference, cfg.LLMTemperature, cfg.LLMMaxTokens)
	verifier := authenticity.NewAgent(objects, refs, profile.Authenticity.Weights, profile.Authenticity.FontVarianceLimit, inference)
	agg := aggregator.New(gateway, bus)
	persistor := orchestrator.NewErrorPersistor(gateway, bus)

	orch := orchestrator.New(extractor, reasoner, pricer, verifier, agg, persistor, obs, cfg.ExecutionDeadline)

	limiter := ratelimit.NewOwnerLimiter(rdb, ratelimit.Policy{RPM: cfg.OwnerRateRPM, Burst: cfg.OwnerRateBurst})
	dedupe := trigger.NewRedisDeduper(rdb, 0)
	trig := trigger.New(bus, dedupe, limiter, orch, 0)

	log.InfoContext(ctx, "appraisald started",
		"store", cfg.StoreBackend,
		"object_store", cfg.ObjectStoreBackend,
		"adapters", cfg.AdaptersEnabled,
		"model", cfg.LLMModelID)

	err = trig.Start(ctx)
	if ctx.Err() != nil {
		log.Info("appraisald stopped")
		return nil
	}
	return err
}

// openStore selects and migrates the card store backend.
func openStore(cfg *config.Config) (store.CardStore, func(), error) {
	switch cfg.StoreBackend {
	case "sqlite":
		db, err := sql.Open("sqlite", cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite %s: %w", cfg.SQLitePath, err)
		}
		st, err := store.NewSQLiteStore(db)
		if err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		return st, func() { db.Close() }, nil
	case "postgres":
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		st, err := store.NewPostgresStore(db)
		if err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return st, func() { db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func loadProfile(cfg *config.Config) (*config.PipelineProfile, error) {
	if cfg.ProfilePath == "" {
		return config.DefaultProfile(), nil
	}
	profile, err := config.LoadProfile(cfg.ProfilePath)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	return profile, nil
}

func hostname() string {
	if h, err := os.Hostname(); err == nil {
		return h
	}
	return "appraisald"
}
