package initd

import (
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// NewLogger returns a console-format logger writing to w. Timestamps are
// omitted so the lines stay grep-stable for log-inspection tooling; the
// container runtime stamps them anyway.
func NewLogger(w io.Writer, level string) zerolog.Logger {
	cw := zerolog.ConsoleWriter{
		Out:     w,
		NoColor: true,
		PartsOrder: []string{
			zerolog.LevelFieldName,
			zerolog.MessageFieldName,
		},
	}
	return zerolog.New(cw).Level(parseLevel(level))
}

// parseLevel converts a string level to zerolog.Level, defaulting to info
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
