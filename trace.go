package patchvm

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
)

// Tracer is the injected trace sink (§6, §9 Design Notes: "injected
// interface, not a process-global singleton, to keep the runner testable
// and thread-safe"). The runner calls Debug for the initial document
// state, each operation descriptor before execution, and the post-op
// state, guarded by IsActive so a disabled tracer costs nothing on the
// hot path.
type Tracer interface {
	Enable()
	Disable()
	IsActive() bool
	Debug(msg string, keysAndValues ...any)
}

// noopTracer is the zero-cost default: IsActive reports false until Enable
// is called, so callers can skip building trace payloads entirely.
type noopTracer struct{ enabled bool }

// NewNoopTracer returns a Tracer that discards everything until Enable is
// called, after which Debug becomes a true no-op write (still zero I/O).
// This mirrors the original's SimpleDebugPrinter default-off behavior
// without resorting to a package-level singleton.
func NewNoopTracer() Tracer { return &noopTracer{} }

func (t *noopTracer) Enable()           { t.enabled = true }
func (t *noopTracer) Disable()          { t.enabled = false }
func (t *noopTracer) IsActive() bool    { return t.enabled }
func (t *noopTracer) Debug(string, ...any) {}

// logrTracer adapts a logr.Logger (as ardikabs/hibernator wires zap into
// logr via zapr for its own structured logging) into the Tracer
// interface.
type logrTracer struct {
	logger  logr.Logger
	enabled bool
}

// NewLogrTracer wraps an existing logr.Logger.
func NewLogrTracer(logger logr.Logger) Tracer {
	return &logrTracer{logger: logger}
}

// NewZapTracer builds a Tracer backed by a zap.Logger, the default
// structured-logging stack this module carries.
func NewZapTracer(zl *zap.Logger) Tracer {
	return NewLogrTracer(zapr.NewLogger(zl))
}

func (t *logrTracer) Enable()        { t.enabled = true }
func (t *logrTracer) Disable()       { t.enabled = false }
func (t *logrTracer) IsActive() bool { return t.enabled }

func (t *logrTracer) Debug(msg string, keysAndValues ...any) {
	if !t.enabled {
		return
	}
	t.logger.V(1).Info(msg, keysAndValues...)
}
