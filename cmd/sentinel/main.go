// Command sentinel runs the crisis detection and escalation service.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	_ "github.com/lib/pq"

	"github.com/mindwell-health/sentinel/pkg/api"
	"github.com/mindwell-health/sentinel/pkg/audit"
	"github.com/mindwell-health/sentinel/pkg/casestore"
	"github.com/mindwell-health/sentinel/pkg/config"
	"github.com/mindwell-health/sentinel/pkg/escalation"
	"github.com/mindwell-health/sentinel/pkg/intervention"
	"github.com/mindwell-health/sentinel/pkg/notify"
	"github.com/mindwell-health/sentinel/pkg/observability"
	"github.com/mindwell-health/sentinel/pkg/risk"
	"github.com/mindwell-health/sentinel/pkg/session"
	sig "github.com/mindwell-health/sentinel/pkg/signal"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "sentinel:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics, err := observability.New(ctx, &observability.Config{
		ServiceName:    "sentinel",
		ServiceVersion: "1.0.0",
		Environment:    getenvDefault("ENVIRONMENT", "development"),
		OTLPEndpoint:   cfg.OTLPEndpoint,
		ExportInterval: 15 * time.Second,
		Enabled:        cfg.MetricsOn,
		Insecure:       true,
	})
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metrics.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics shutdown failed", "error", err)
		}
	}()

	// Case storage. Postgres when configured, in-memory otherwise.
	var cases casestore.Store
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping database: %w", err)
		}
		cases = casestore.NewPostgresStore(db)
		logger.Info("case store ready", "backend", "postgres")
	} else {
		cases = casestore.NewMemoryStore()
		logger.Warn("DATABASE_URL not set, cases are held in memory only")
	}

	// Notification dedup. Redis when configured, in-memory otherwise.
	var dedup notify.DedupStore
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		client := redis.NewClient(opt)
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		dedup = notify.NewRedisDedup(client, 0)
		logger.Info("notification dedup ready", "backend", "redis")
	} else {
		dedup = notify.NewMemoryDedup()
	}

	topo, err := config.LoadTopology(cfg.ChannelsFile)
	if err != nil {
		return err
	}
	dispatcher := notify.NewDispatcher(buildChannels(topo), dedup, logger, nil)

	recorder := audit.NewRecorder(os.Stdout, nil)

	var flagger escalation.Flagger
	if cfg.ReviewURL != "" {
		flagger = escalation.NewHTTPFlagger(cfg.ReviewURL, 5*time.Second)
	}

	engine := escalation.NewEngine(escalation.Deps{
		Store:      cases,
		Notify:     dispatcher,
		Sched:      escalation.NewTimerScheduler(),
		Auditor:    recorder,
		Flagger:    flagger,
		Crypt:      escalation.NewEncryptor([]byte(cfg.PatientSalt)),
		Metrics:    metrics,
		Logger:     logger,
		AckTimeout: cfg.AckTimeout,
	})

	classifier := sig.NewHTTPClient(cfg.ClassifierURL, 10*time.Second, logger)
	assessor := risk.NewAssessor(risk.Options{}, logger, nil)
	selector := intervention.NewSelector(cfg.MaxIntervs)
	coord := session.NewCoordinator(classifier, assessor, selector,
		&escalation.SessionAdapter{Engine: engine}, session.Options{
			MaxDuration:      cfg.SessionMax,
			MaxInterventions: cfg.MaxIntervs,
			Metrics:          metrics,
		}, logger, nil)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewServer(coord, engine, cases, recorder, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("sentinel listening", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// buildChannels turns the validated topology into dispatcher channels.
func buildChannels(topo *config.Topology) map[string][]notify.Channel {
	channels := make(map[string][]notify.Channel, len(topo.Levels))
	for level, specs := range topo.Levels {
		for _, s := range specs {
			timeout := 10 * time.Second
			if s.TimeoutSeconds > 0 {
				timeout = time.Duration(s.TimeoutSeconds) * time.Second
			}
			var ch notify.Channel
			switch s.Kind {
			case "webhook":
				ch = notify.NewWebhookChannel(s.Name, s.URL, timeout)
			case "email":
				ch = notify.NewEmailChannel(s.Name, s.URL, []string{s.Recipient}, timeout)
			case "sms":
				ch = notify.NewSMSChannel(s.Name, s.URL, []string{s.Recipient}, timeout)
			}
			channels[level] = append(channels[level], ch)
		}
	}
	return channels
}

func logLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
