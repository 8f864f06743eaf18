package events

import (
	"io"
	"log"
)

// LogWriter is an Observer that renders every event to a standard library
// *log.Logger, the way fbb.Session renders its protocol trace through a
// plain log.Logger field rather than a structured-logging library.
type LogWriter struct {
	logger *log.Logger
}

// NewLogWriter wraps w in a log.Logger with no extra prefix/flags (the
// event's own "[CATEGORY]" prefix is the only decoration) and returns an
// Observer that writes one line per event.
func NewLogWriter(w io.Writer) *LogWriter {
	return &LogWriter{logger: log.New(w, "", 0)}
}

func (l *LogWriter) OnEvent(e Event) {
	l.logger.Print(e.Line())
}
