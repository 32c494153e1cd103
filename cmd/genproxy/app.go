package main

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jzx17/genproxy/internal/config"
	"github.com/jzx17/genproxy/internal/metrics"
	"github.com/jzx17/genproxy/internal/server"
	"github.com/jzx17/genproxy/pkg/gemini"
	"github.com/jzx17/genproxy/pkg/prompt"
	"github.com/jzx17/genproxy/pkg/retry"
)

// app holds the components every command is built from
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Collector
	client  *gemini.Client
	catalog *prompt.Catalog
}

// newApp loads configuration and wires the upstream client.
// Log output goes to w.
func newApp(flags *globalFlags, w io.Writer) (*app, error) {
	bootstrap := newLogger(w, flags.logLevel, flags.logFormat)

	cfg, err := config.NewLoader(bootstrap).Load(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.Log.Format = flags.logFormat
	}

	logger := newLogger(w, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	catalog, err := prompt.LoadCatalog(cfg.ModesFile)
	if err != nil {
		return nil, err
	}

	collector := metrics.NewCollector()
	// Each call gets its own deadline so a hung attempt is retried
	// instead of consuming the whole request timeout.
	httpClient := &http.Client{Timeout: cfg.Gemini.AttemptTimeout}
	executor := retry.NewExecutor(httpClient,
		retry.WithBackoff(cfg.Retry.Backoff()),
		retry.WithEventHandler(retry.MultiEventHandler{
			retry.NewLoggingEventHandler(logger),
			collector,
		}))

	client := gemini.NewClient(cfg.Gemini.APIKey,
		gemini.WithBaseURL(cfg.Gemini.BaseURL),
		gemini.WithModel(cfg.Gemini.Model),
		gemini.WithExecutor(executor),
		gemini.WithMaxAttempts(cfg.Retry.MaxAttempts),
		gemini.WithDefaultSystemPrompt(cfg.Gemini.SystemPrompt),
		gemini.WithLogger(logger))

	return &app{
		cfg:     cfg,
		logger:  logger,
		metrics: collector,
		client:  client,
		catalog: catalog,
	}, nil
}

// newLogger builds a slog logger; unknown levels fall back to info
func newLogger(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(server.NewLogHandler(handler))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
