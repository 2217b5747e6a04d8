package common

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// InitLogger installs a JSON or text slog handler at the configured level as the default logger.
func InitLogger(cfg LogConfig) *slog.Logger {
	return initLogger(os.Stdout, cfg)
}

func initLogger(w io.Writer, cfg LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// LoggerFromContext returns base (or the default logger) enriched with the IDs carried by ctx.
func LoggerFromContext(ctx context.Context, base *slog.Logger) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	if runID := RunIDFromContext(ctx); runID != "" {
		base = base.With("run_id", runID)
	}
	if docID := DocumentIDFromContext(ctx); docID != "" {
		base = base.With("document", docID)
	}
	if reqID := RequestIDFromContext(ctx); reqID != "" {
		base = base.With("req_id", reqID)
	}
	return base
}
