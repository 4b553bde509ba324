// Package logger provides the logging interface injected into services and handlers.
package logger

import (
	"fmt"
	"io"
	"log"
	"strings"
)

// Logger is the structured logger every component receives.
// args are key/value pairs or errors; they are appended to the message.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// Std writes bracket-tagged lines through the standard log package.
type Std struct {
	std   *log.Logger
	debug bool
}

var _ Logger = (*Std)(nil)

func NewStd(std *log.Logger, debug bool) *Std {
	return &Std{std: std, debug: debug}
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *Std {
	return NewStd(log.New(io.Discard, "", 0), false)
}

func (l *Std) Debug(msg string, args ...interface{}) {
	if l.debug {
		l.print("DEBUG", msg, args)
	}
}

func (l *Std) Info(msg string, args ...interface{})  { l.print("INFO", msg, args) }
func (l *Std) Warn(msg string, args ...interface{})  { l.print("WARN", msg, args) }
func (l *Std) Error(msg string, args ...interface{}) { l.print("ERROR", msg, args) }

func (l *Std) print(level, msg string, args []interface{}) {
	l.std.Printf("[%s] %s%s", level, msg, formatArgs(args))
}

// formatArgs renders "k", v pairs as " k=v"; a trailing odd value is printed bare.
func formatArgs(args []interface{}) string {
	if len(args) == 0 {
		return ""
	}
	var b strings.Builder
	for i := 0; i < len(args); i++ {
		if key, ok := args[i].(string); ok && i+1 < len(args) {
			fmt.Fprintf(&b, " %s=%v", key, args[i+1])
			i++
			continue
		}
		fmt.Fprintf(&b, " %v", args[i])
	}
	return b.String()
}
