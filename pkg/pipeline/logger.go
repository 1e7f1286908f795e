package pipeline

import (
	"io"
	"log"
)

// Logger receives progress and per-subject diagnostics from the orchestrator
type Logger interface {
	Infof(format string, a ...interface{})
	Warnf(format string, a ...interface{})
	Errorf(format string, a ...interface{})
}

// StdLogger writes levelled lines through the standard log package
type StdLogger struct {
	out     *log.Logger
	verbose bool
}

// NewStdLogger logs to w. Info lines are dropped unless verbose is set;
// warnings and errors are always written.
func NewStdLogger(w io.Writer, verbose bool) *StdLogger {
	return &StdLogger{
		out:     log.New(w, "", log.LstdFlags),
		verbose: verbose,
	}
}

func (l *StdLogger) Infof(format string, a ...interface{}) {
	if l.verbose {
		l.out.Printf("INFO: "+format, a...)
	}
}

func (l *StdLogger) Warnf(format string, a ...interface{}) {
	l.out.Printf("WARN: "+format, a...)
}

func (l *StdLogger) Errorf(format string, a ...interface{}) {
	l.out.Printf("ERROR: "+format, a...)
}

// nullLogger discards everything
type nullLogger struct{}

func (nullLogger) Infof(string, ...interface{})  {}
func (nullLogger) Warnf(string, ...interface{})  {}
func (nullLogger) Errorf(string, ...interface{}) {}
