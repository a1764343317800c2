package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Kocoro-lab/Shannon/go/answerview/internal/answer"
	"github.com/Kocoro-lab/Shannon/go/answerview/internal/circuitbreaker"
	"github.com/Kocoro-lab/Shannon/go/answerview/internal/citations"
	"github.com/Kocoro-lab/Shannon/go/answerview/internal/config"
	"github.com/Kocoro-lab/Shannon/go/answerview/internal/feedback"
	"github.com/Kocoro-lab/Shannon/go/answerview/internal/health"
	"github.com/Kocoro-lab/Shannon/go/answerview/internal/httpapi"
	"github.com/Kocoro-lab/Shannon/go/answerview/internal/render"
	"github.com/Kocoro-lab/Shannon/go/answerview/internal/speech"
	"github.com/Kocoro-lab/Shannon/go/answerview/internal/tracing"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfgPath := config.Path()
	appCfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := newLogger(appCfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	shutdownTracing, err := tracing.Initialize(appCfg.Tracing, logger)
	if err != nil {
		logger.Warn("Tracing disabled", zap.Error(err))
		shutdownTracing = func(context.Context) error { return nil }
	}

	circuitbreaker.StartMetricsCollection(ctx, appCfg.Metrics.CollectInterval)
	hm := health.NewManager(logger)

	// ------------------------------------------------------------------
	// Feedback table: in-process or shared through Redis, optionally
	// seeded from and written through to SQL.
	// ------------------------------------------------------------------
	var table feedback.Table = feedback.NewMemoryTable()
	if appCfg.Feedback.Backend == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     appCfg.Redis.Addr,
			Password: appCfg.Redis.Password,
			DB:       appCfg.Redis.DB,
		})
		rw := circuitbreaker.NewRedisWrapper(client, "feedback", logger)
		defer rw.Close()

		rt := feedback.NewRedisTable(rw, feedback.RedisOptions{
			Key:     appCfg.Feedback.Key,
			Channel: appCfg.Feedback.Channel,
		}, logger)
		go rt.Relay(ctx, 500*time.Millisecond, 30*time.Second)
		_ = hm.RegisterChecker(health.NewRedisChecker(rw))
		table = rt
	}

	if appCfg.SQL.DSN != "" {
		db, err := sqlx.Connect(appCfg.SQL.Driver, appCfg.SQL.DSN)
		if err != nil {
			logger.Fatal("Failed to connect feedback database", zap.String("driver", appCfg.SQL.Driver), zap.Error(err))
		}
		defer db.Close()

		store := feedback.NewStore(db, logger)
		if err := store.EnsureSchema(ctx); err != nil {
			logger.Fatal("Failed to prepare feedback schema", zap.Error(err))
		}
		if _, err := store.Hydrate(ctx, table); err != nil {
			logger.Warn("Feedback hydration failed", zap.Error(err))
		}
		table = feedback.WithStore(table, store)
	}

	// ------------------------------------------------------------------
	// Rendering, with hot-reloaded sanitizer settings
	// ------------------------------------------------------------------
	renderer := render.NewPipeline(render.Config{
		AllowedTags: appCfg.Render.AllowedTags,
		Style:       appCfg.Render.Style,
		OnCitation: func(c answer.Citation) {
			logger.Debug("Citation activated", zap.Int("index", c.Index), zap.String("source", c.Source))
		},
	}, logger)
	settings := config.NewSettings(appCfg)

	watcher, err := config.NewWatcher(cfgPath, appCfg, logger)
	if err != nil {
		logger.Fatal("Failed to create configuration watcher", zap.Error(err))
	}
	watcher.RegisterHandler(func(ev config.ChangeEvent) error {
		if settings.Apply(ev.Config) {
			renderer.SetAllowedTags(settings.AllowedTags())
		}
		logger.Info("Render settings reloaded",
			zap.Bool("sanitize_answer", settings.SanitizeAnswer()),
			zap.Strings("allowed_tags", settings.AllowedTags()),
		)
		return nil
	})
	if err := watcher.Start(ctx); err != nil {
		logger.Warn("Configuration hot reload disabled", zap.Error(err))
	}
	defer watcher.Stop()

	// ------------------------------------------------------------------
	// Speech synthesis
	// ------------------------------------------------------------------
	payload, err := speech.ParsePayloadMode(appCfg.Speech.Payload)
	if err != nil {
		logger.Fatal("Invalid speech payload mode", zap.Error(err))
	}
	synth := speech.NewHTTPClient(speech.ClientConfig{
		Endpoint:      appCfg.Speech.Endpoint,
		MaxAudioBytes: appCfg.Speech.MaxAudioBytes,
	}, logger)
	_ = hm.RegisterChecker(health.NewBreakerChecker("synthesis", synth))

	var outputs speech.OutputFactory
	if dir := appCfg.Speech.OutputDir; dir != "" {
		outputs = func(instance string) speech.Output {
			return speech.NewFileOutput(dir, instance, logger)
		}
	}
	speechMgr := speech.NewManager(synth, speech.WAVDecoder{}, outputs, speech.ManagerConfig{
		RequestTimeout: appCfg.Speech.RequestTimeout,
		RatePerSecond:  appCfg.Speech.RatePerSecond,
		Burst:          appCfg.Speech.Burst,
		OnTransition: func(tr speech.Transition) {
			logger.Debug("Speech transition",
				zap.String("instance", tr.Instance),
				zap.Stringer("from", tr.From),
				zap.Stringer("to", tr.To),
			)
		},
	}, logger)

	// ------------------------------------------------------------------
	// HTTP surface
	// ------------------------------------------------------------------
	mux := http.NewServeMux()
	health.NewHTTPHandler(hm, logger).RegisterRoutes(mux)
	if appCfg.Metrics.Enabled {
		mux.Handle("GET /metrics", promhttp.Handler())
	}
	httpapi.NewServer(httpapi.Deps{
		Parser:        answer.NewParser(citations.NewResolver(logger), 0),
		Renderer:      renderer,
		Settings:      settings,
		Feedback:      table,
		Speech:        speechMgr,
		Payload:       payload,
		InstanceCache: appCfg.Render.InstanceCache,
	}, logger).RegisterRoutes(mux)

	server := &http.Server{
		Addr:        appCfg.Server.Addr,
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
		// no WriteTimeout: feedback streams stay open
	}
	go func() {
		logger.Info("answerd listening", zap.String("addr", appCfg.Server.Addr), zap.String("config", cfgPath))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutting down answerd")
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), appCfg.Server.ShutdownTimeout)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("Tracing shutdown failed", zap.Error(err))
	}
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		lvl, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		zcfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	return zcfg.Build()
}
