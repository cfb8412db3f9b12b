// Entry point for the redveille HTTP service.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/redveille/dbopen"
	"github.com/hazyhaar/redveille/discovery"
	"github.com/hazyhaar/redveille/llm"
	"github.com/hazyhaar/redveille/reddit"
)

func main() {
	port := env("PORT", "8080")
	dbPath := env("DB_PATH", "db/redveille.db")
	configPath := env("CONFIG_PATH", "")
	logLevel := env("LOG_LEVEL", "info")

	// Logging.
	var lvl slog.Level
	switch logLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Config: YAML file when given, env overrides on top.
	cfg := &discovery.Config{}
	if configPath != "" {
		loaded, err := discovery.LoadConfig(configPath)
		if err != nil {
			slog.Error("load config", "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if v := os.Getenv("WEBHOOK_URL"); v != "" {
		cfg.WebhookURL = v
	}

	db, err := dbopen.Open(dbPath, dbopen.WithMkdirAll())
	if err != nil {
		slog.Error("open db", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Collaborators. Missing keys leave the degrade policies in charge:
	// topics fall back to raw text and scores to neutral.
	var opts []discovery.ServiceOption
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		lc := llm.NewWithKey(apiKey, llm.Config{Model: env("OPENAI_MODEL", "")}, logger)
		opts = append(opts, discovery.WithTopicExtractor(lc), discovery.WithScorer(lc))
	} else {
		slog.Warn("OPENAI_API_KEY not set, topic extraction and scoring degraded")
	}

	api := reddit.New(reddit.Config{UserAgent: env("REDDIT_USER_AGENT", "")}, logger)
	opts = append(opts, discovery.WithPostFetcher(api))

	if serpKey := os.Getenv("BRIGHT_DATA_SER_API_KEY"); serpKey != "" {
		searcher := reddit.NewSearcher(reddit.SERPConfig{APIKey: serpKey}, api, logger)
		opts = append(opts, discovery.WithSearcher(searcher))
	} else {
		slog.Warn("BRIGHT_DATA_SER_API_KEY not set, queries will fail at search")
	}

	svc := discovery.New(db, cfg, logger, opts...)
	if err := svc.Init(ctx); err != nil {
		slog.Error("init", "error", err)
		os.Exit(1)
	}
	svc.Start(ctx)

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	svc.RegisterHTTP(r)

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
