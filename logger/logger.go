// Package logger is the structured logging facade used across payless.
package logger

type Logger interface {
	Debug(msg string, fields map[string]any)
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
}

type NoopLogger struct{}

func (NoopLogger) Debug(string, map[string]any) {}
func (NoopLogger) Info(string, map[string]any)  {}
func (NoopLogger) Warn(string, map[string]any)  {}
func (NoopLogger) Error(string, map[string]any) {}

// Named returns l with a component field added to every entry.
func Named(l Logger, component string) Logger {
	if _, ok := l.(NoopLogger); ok {
		return l
	}
	return named{base: l, component: component}
}

type named struct {
	base      Logger
	component string
}

func (n named) with(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["component"] = n.component
	return out
}

func (n named) Debug(msg string, f map[string]any) { n.base.Debug(msg, n.with(f)) }
func (n named) Info(msg string, f map[string]any)  { n.base.Info(msg, n.with(f)) }
func (n named) Warn(msg string, f map[string]any)  { n.base.Warn(msg, n.with(f)) }
func (n named) Error(msg string, f map[string]any) { n.base.Error(msg, n.with(f)) }
