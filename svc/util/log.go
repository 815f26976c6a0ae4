package util

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var globalLog = zerolog.New(os.Stdout).With().Timestamp().Logger()

func InitLog(level string, dev bool) {
	var out io.Writer = os.Stdout
	if dev {
		out = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}
	zerolog.SetGlobalLevel(parseLevel(level))
	globalLog = newLogger(out)
	log.Logger = globalLog
}
func newLogger(out io.Writer) zerolog.Logger {
	return zerolog.New(out).
		With().
		Timestamp().
		Caller().
		Str("service", "sealbin").
		Logger()
}
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled":
		return zerolog.Disabled
	}
	return zerolog.InfoLevel
}

// Component returns the global logger tagged with a subsystem name. Take it
// after InitLog; a logger taken earlier keeps the old output.
func Component(name string) *zerolog.Logger {
	l := globalLog.With().Str("component", name).Logger()
	return &l
}

// StoreEvent starts a store-scoped event carrying the redacted paste id.
func StoreEvent(lvl zerolog.Level, id string) *zerolog.Event {
	l := Component("store")
	return l.WithLevel(lvl).Str("paste_id", RedactID(id))
}
func Debug() *zerolog.Event { return globalLog.Debug() }
func Info() *zerolog.Event  { return globalLog.Info() }
func Warn() *zerolog.Event  { return globalLog.Warn() }
func Error() *zerolog.Event { return globalLog.Error() }

// Fatal logs and exits with status 1 once Msg is called.
func Fatal() *zerolog.Event { return globalLog.Fatal() }
func GetLogger() zerolog.Logger {
	return globalLog
}
