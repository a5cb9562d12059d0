package whatsmeowclient

import (
	"io"

	"github.com/rs/zerolog"
	waLog "go.mau.fi/whatsmeow/util/log"
)

var _ waLog.Logger = zeroLogger{}

// zeroLogger routes whatsmeow's printf style logging into zerolog
type zeroLogger struct {
	l zerolog.Logger
}

func newLogger(l zerolog.Logger) waLog.Logger {
	return zeroLogger{l: l}
}

// NewZerologLogger writes whatsmeow logs as JSON to w
func NewZerologLogger(w io.Writer) waLog.Logger {
	return newLogger(zerolog.New(w).With().Timestamp().Logger())
}

func (z zeroLogger) Errorf(msg string, args ...interface{}) { z.l.Error().Msgf(msg, args...) }
func (z zeroLogger) Warnf(msg string, args ...interface{})  { z.l.Warn().Msgf(msg, args...) }
func (z zeroLogger) Infof(msg string, args ...interface{})  { z.l.Info().Msgf(msg, args...) }
func (z zeroLogger) Debugf(msg string, args ...interface{}) { z.l.Debug().Msgf(msg, args...) }

func (z zeroLogger) Sub(module string) waLog.Logger {
	return zeroLogger{l: z.l.With().Str("module", module).Logger()}
}
