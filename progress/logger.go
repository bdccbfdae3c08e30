package progress

import (
	"monks.co/syncd/logger"
)

// Logger returns a logger that writes to both the standard log and this
// ProcessLogs.
func (pl *ProcessLogs) Logger(label string) *ProcessLogger {
	return &ProcessLogger{
		label: label,
		logs:  pl,
		inner: logger.New(label),
	}
}

type ProcessLogger struct {
	label string
	logs  *ProcessLogs
	inner logger.Logger
}

var _ logger.Logger = &ProcessLogger{}

func (pl *ProcessLogger) Printf(s string, args ...any) {
	pl.inner.Printf(s, args...)
	pl.logs.Log(s, args...)
}
