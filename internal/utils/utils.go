package utils

import (
	"context"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

// LoadEnv reads variables from the given dotenv files into the process
// environment. Existing variables are never overwritten.
func LoadEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	if err := godotenv.Load(files...); err != nil {
		slog.Warn("no .env file found, using environment variables", "files", files)
	}
}

// DebugEnabled reports whether verbose logging was requested with DEBUG=true.
func DebugEnabled() bool {
	return os.Getenv("DEBUG") == "true"
}

// Log writes a verbose message when DEBUG=true.
func Log(message string, args ...any) {
	if !DebugEnabled() {
		return
	}
	slog.Default().Log(context.Background(), slog.LevelDebug, message, args...)
}

// NewLogger returns the process logger, a text handler on stdout.
func NewLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug || DebugEnabled() {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
