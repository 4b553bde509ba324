package logger

import (
	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"
)

// Rollbar reports warnings and errors to Rollbar and mirrors every line to Std.
type Rollbar struct {
	*Std
}

var _ Logger = (*Rollbar)(nil)

func NewRollbar(std *Std, token, env, codeVersion string) *Rollbar {
	rollbar.SetToken(token)
	rollbar.SetEnvironment(env)
	rollbar.SetCodeVersion(codeVersion)
	rollbar.SetStackTracer(errors.StackTracer)
	return &Rollbar{Std: std}
}

// prepare moves the first error to the front so Rollbar groups by it, and
// collects key/value pairs into custom data.
func (l *Rollbar) prepare(msg string, args []interface{}) []interface{} {
	out := make([]interface{}, 0, 3)
	custom := map[string]interface{}{}
	for i := 0; i < len(args); i++ {
		switch v := args[i].(type) {
		case error:
			out = append(out, v)
		case string:
			if i+1 < len(args) {
				custom[v] = args[i+1]
				i++
			}
		}
	}
	out = append(out, msg)
	if len(custom) > 0 {
		out = append(out, custom)
	}
	return out
}

func (l *Rollbar) Warn(msg string, args ...interface{}) {
	rollbar.Warning(l.prepare(msg, args)...)
	l.Std.Warn(msg, args...)
}

func (l *Rollbar) Error(msg string, args ...interface{}) {
	rollbar.Error(l.prepare(msg, args)...)
	l.Std.Error(msg, args...)
}

// Close flushes queued Rollbar items.
func (l *Rollbar) Close() {
	rollbar.Close()
}
