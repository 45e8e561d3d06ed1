package logger

import (
	"log/slog"
	"os"
)

// New returns the root structured logger. Text output locally, JSON when
// HOLDRIGHT_LOG_FORMAT=json (what log shippers expect).
func New() *slog.Logger {
	var handler slog.Handler
	if os.Getenv("HOLDRIGHT_LOG_FORMAT") == "json" {
		handler = slog.NewJSONHandler(os.Stdout, nil)
	} else {
		handler = slog.NewTextHandler(os.Stdout, nil)
	}
	return slog.New(handler)
}
