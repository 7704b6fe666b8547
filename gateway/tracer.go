package gateway

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// wireLogger is the gateway's HTTP call tracer: one line per request at
// trace level, independent of the application logrus logger (a
// §2 — a distinct, lower-level concern from structured app logging).
var wireLogger = zerolog.New(os.Stdout).With().Timestamp().Str("component", "gateway").Logger()

// logCall emits a single trace line for one REST call.
func logCall(method, path string, status int, duration time.Duration, err error) {
	evt := wireLogger.Trace().
		Str("method", method).
		Str("path", path).
		Int("status", status).
		Dur("duration", duration)
	if err != nil {
		evt.Err(err)
	}
	evt.Msg("cluster call")
}
