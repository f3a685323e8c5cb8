// Package monitoring - logger.go configures the global zerolog logger.
//
// DESIGN: One Setup() call at startup decides level and encoding:
//   - auto:    human console output on a terminal, JSON lines otherwise
//   - console: always human readable
//   - json:    always JSON lines
//
// Everything else logs through github.com/rs/zerolog/log.
package monitoring

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

// Log formats.
const (
	FormatAuto    = "auto"
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Setup installs the global logger and returns it.
func Setup(cfg LoggerConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	out, isTTY := output(cfg.Output)
	var w io.Writer = out
	switch strings.ToLower(cfg.Format) {
	case FormatJSON:
	case FormatConsole:
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	default:
		if isTTY {
			w = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
		}
	}

	logger := zerolog.New(w).With().Timestamp().Logger()
	log.Logger = logger
	return logger
}

// output resolves stdout, stderr or an append-only file. Unopenable files fall
// back to stderr.
func output(target string) (*os.File, bool) {
	switch strings.ToLower(strings.TrimSpace(target)) {
	case "", "stdout":
		return os.Stdout, term.IsTerminal(int(os.Stdout.Fd()))
	case "stderr":
		return os.Stderr, term.IsTerminal(int(os.Stderr.Fd()))
	}
	f, err := os.OpenFile(target, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		log.Warn().Err(err).Str("path", target).Msg("log output unavailable, using stderr")
		return os.Stderr, term.IsTerminal(int(os.Stderr.Fd()))
	}
	return f, false
}
