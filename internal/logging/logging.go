// Package logging provides the manager's dual structured/pretty logger:
// every line goes to a logrus.Entry (JSON-capable, for log aggregation)
// and to a one-line human-readable form on the pretty output, colorized
// only when that output is a terminal.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

// Logger matches pipeline.Logger so it can be passed straight to
// pipeline.WithLogger without an adapter.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// NewBase builds a logrus.Logger writing JSON lines to a file in logDir
// (manager.log), falling back to stderr if the file cannot be opened. CLI
// commands use this for the structured half of New.
func NewBase(logDir string) *logrus.Logger {
	base := logrus.New()
	base.SetFormatter(&logrus.JSONFormatter{})
	base.SetLevel(logrus.InfoLevel)

	if logDir == "" {
		base.SetOutput(os.Stderr)
		return base
	}
	f, err := os.OpenFile(logDir+string(os.PathSeparator)+"manager.log",
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		base.SetOutput(os.Stderr)
		return base
	}
	base.SetOutput(f)
	return base
}

type defaultLogger struct {
	structured *logrus.Entry
	pretty     io.Writer
	colorize   bool
}

// New returns the manager's default logger, writing structured lines to
// the given logrus logger (nil uses logrus.StandardLogger()) tagged with
// component "psom", and pretty lines to out (nil uses os.Stdout).
func New(base *logrus.Logger, out *os.File) Logger {
	if base == nil {
		base = logrus.StandardLogger()
	}
	var dst *os.File = out
	if dst == nil {
		dst = os.Stdout
	}
	return &defaultLogger{
		structured: base.WithField("component", "psom"),
		pretty:     dst,
		colorize:   isatty.IsTerminal(dst.Fd()) || isatty.IsCygwinTerminal(dst.Fd()),
	}
}

func fieldsOf(keysAndValues []interface{}) logrus.Fields {
	fields := make(logrus.Fields, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}

func (l *defaultLogger) printPretty(c *color.Color, msg string, keysAndValues []interface{}) {
	line := msg
	if len(keysAndValues) > 0 {
		var parts []string
		fields := fieldsOf(keysAndValues)
		for k, v := range fields {
			parts = append(parts, fmt.Sprintf("%s=%v", k, v))
		}
		line = fmt.Sprintf("%s [%s]", msg, strings.Join(parts, " "))
	}
	if l.colorize {
		fmt.Fprintln(l.pretty, c.Sprint(line))
		return
	}
	fmt.Fprintln(l.pretty, line)
}

func (l *defaultLogger) Info(msg string, keysAndValues ...interface{}) {
	if len(keysAndValues) > 0 {
		l.structured.WithFields(fieldsOf(keysAndValues)).Info(msg)
	} else {
		l.structured.Info(msg)
	}
	l.printPretty(color.New(color.FgGreen), msg, keysAndValues)
}

func (l *defaultLogger) Error(msg string, keysAndValues ...interface{}) {
	if len(keysAndValues) > 0 {
		l.structured.WithFields(fieldsOf(keysAndValues)).Error(msg)
	} else {
		l.structured.Error(msg)
	}
	l.printPretty(color.New(color.FgRed, color.Bold), msg, keysAndValues)
}

func (l *defaultLogger) Debug(msg string, keysAndValues ...interface{}) {
	if len(keysAndValues) > 0 {
		l.structured.WithFields(fieldsOf(keysAndValues)).Debug(msg)
	} else {
		l.structured.Debug(msg)
	}
	if msg == "." {
		// liveness dot: no newline, no structured noise beyond the Debug
		// line above, and never colorized.
		fmt.Fprint(l.pretty, ".")
		return
	}
	l.printPretty(color.New(color.FgCyan), msg, keysAndValues)
}
