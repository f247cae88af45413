// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: debug.go — Cold-path diagnostics for channel setup & teardown
//
// Purpose:
//   - Logs registration, unregistration, leaks and worker lifecycle events.
//   - Used only in cold paths: allocation, syscalls, retries, shutdown.
//
// Notes:
//   - Backed by a zerolog logger so messages are structured (prefix becomes
//     the "tag" field) and level-filtered.
//   - Configure swaps the sink once at startup; it is not safe to call while
//     other goroutines log.
//
// ⚠️ Never invoke in push/pop loops; use only for lifecycle diagnostics.
// ─────────────────────────────────────────────────────────────────────────────

package debug

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

var logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

// Configure sets the global level and output format. An empty level keeps
// the current one.
func Configure(level string, console bool) error {
	if level != "" {
		lvl, err := zerolog.ParseLevel(level)
		if err != nil {
			return err
		}
		zerolog.SetGlobalLevel(lvl)
	}
	var out io.Writer = os.Stderr
	if console {
		out = zerolog.ConsoleWriter{Out: os.Stderr}
	}
	logger = zerolog.New(out).With().Timestamp().Logger()
	return nil
}

// SetOutput redirects diagnostics, mainly for tests.
func SetOutput(w io.Writer) {
	logger = zerolog.New(w).With().Timestamp().Logger()
}

// Logger exposes the underlying logger for callers that need extra fields.
func Logger() *zerolog.Logger {
	return &logger
}

// DropError logs a failure under prefix. A nil err logs the prefix alone as
// a warning.
func DropError(prefix string, err error) {
	if err != nil {
		logger.Error().Str("tag", prefix).Err(err).Msg(prefix + ": " + err.Error())
		return
	}
	logger.Warn().Str("tag", prefix).Msg(prefix)
}

// DropMessage logs an informational lifecycle event.
func DropMessage(prefix, message string) {
	logger.Info().Str("tag", prefix).Msg(message)
}
