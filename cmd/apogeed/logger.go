package main

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// zerologAdapter bridges zerolog to the apogee.Logger interface.
type zerologAdapter struct {
	log zerolog.Logger
}

func newLogger(level string, pretty bool) *zerologAdapter {
	var log zerolog.Logger
	if pretty {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	} else {
		log = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	switch strings.ToLower(level) {
	case "debug":
		log = log.Level(zerolog.DebugLevel)
	case "warn":
		log = log.Level(zerolog.WarnLevel)
	case "error":
		log = log.Level(zerolog.ErrorLevel)
	default:
		log = log.Level(zerolog.InfoLevel)
	}
	return &zerologAdapter{log: log}
}

func (z *zerologAdapter) Info(msg string, args ...any) {
	z.emit(z.log.Info(), msg, args)
}

func (z *zerologAdapter) Error(msg string, args ...any) {
	z.emit(z.log.Error(), msg, args)
}

func (z *zerologAdapter) Warn(msg string, args ...any) {
	z.emit(z.log.Warn(), msg, args)
}

func (z *zerologAdapter) Debug(msg string, args ...any) {
	z.emit(z.log.Debug(), msg, args)
}

func (z *zerologAdapter) emit(event *zerolog.Event, msg string, args []any) {
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		event = event.Interface(key, args[i+1])
	}
	event.Msg(msg)
}
