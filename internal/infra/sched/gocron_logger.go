package sched

import (
	"fmt"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
)

// zerologAdapter routes gocron's key/value logs into zerolog.
type zerologAdapter struct {
	log *zerolog.Logger
}

var _ gocron.Logger = (*zerologAdapter)(nil)

func (l *zerologAdapter) Debug(msg string, args ...any) { withArgs(l.log.Debug(), args).Msg(msg) }
func (l *zerologAdapter) Info(msg string, args ...any)  { withArgs(l.log.Info(), args).Msg(msg) }
func (l *zerologAdapter) Warn(msg string, args ...any)  { withArgs(l.log.Warn(), args).Msg(msg) }
func (l *zerologAdapter) Error(msg string, args ...any) { withArgs(l.log.Error(), args).Msg(msg) }

func withArgs(e *zerolog.Event, args []any) *zerolog.Event {
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			e = e.Interface("value", args[i])
			break
		}
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		e = e.Interface(key, args[i+1])
	}
	return e
}
