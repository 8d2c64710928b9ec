package patchvm

import "github.com/cockroachdb/apd/v2"

// vmOptions configures a compiled patch's arithmetic precision/rounding
// and trace sink (§4.I). The zero value is never used directly; Compile
// always starts from defaultOptions and applies Option overrides.
type vmOptions struct {
	precision uint32
	rounding  apd.Rounder
	tracer    Tracer
}

func defaultOptions() vmOptions {
	return vmOptions{
		precision: 28,
		rounding:  apd.RoundHalfEven,
		tracer:    NewNoopTracer(),
	}
}

// Option configures a CompiledPatch at Compile time.
type Option func(*vmOptions)

// WithPrecision overrides the decimal context's significant-digit count
// (default 28, matching the original's Decimal.Context(prec=28, ...)).
func WithPrecision(precision uint32) Option {
	return func(o *vmOptions) { o.precision = precision }
}

// WithRounding overrides the decimal rounding mode (default
// apd.RoundHalfEven, i.e. banker's rounding).
func WithRounding(rounding apd.Rounder) Option {
	return func(o *vmOptions) { o.rounding = rounding }
}

// WithTracer installs a Tracer to receive initial/per-op/final state
// lines during Apply.
func WithTracer(t Tracer) Option {
	return func(o *vmOptions) { o.tracer = t }
}
