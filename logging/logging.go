// Package logging builds the logger dirsync components share. The engine and
// the directory toolkit stay silent by default; a host that wants output
// constructs a logger here and injects it.
package logging

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LevelEnv names the environment variable the log level is read from. It
// accepts zerolog's level strings, "trace" through "disabled"; unset or
// unrecognized values fall back to info.
const LevelEnv = "DIRSYNC_LOG_LEVEL"

// New builds a console-writer logger tagged with the host application name,
// leveled from the environment.
func New(app string) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}
	return zerolog.New(output).
		Level(envLevel()).
		With().
		Timestamp().
		Str("app", app).
		Logger()
}

func envLevel() zerolog.Level {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(LevelEnv)))
	if raw == "" {
		return zerolog.InfoLevel
	}
	level, err := zerolog.ParseLevel(raw)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}
