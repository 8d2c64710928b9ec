package patchvm

import (
	"encoding/json"

	"github.com/cockroachdb/apd/v2"
)

// OperationDescriptor is one compiled operation's field bag, carried
// verbatim from the source representation (§3: "the compiled form keeps
// the original fields object unmodified; Compile never strips or
// rewrites caller-supplied keys").
type OperationDescriptor = map[string]any

// execContext is threaded through every opFunc call; it is rebuilt fresh
// per Apply (never shared across goroutines) and owns the decimal
// context builder so every arithmetic op gets an unshared apd.Context
// per §5's concurrency requirement.
type execContext struct {
	opts vmOptions
}

func newExecContext(opts vmOptions) *execContext {
	return &execContext{opts: opts}
}

func (c *execContext) decimalContext() *apd.Context {
	return decimalContext(c.opts.precision, c.opts.rounding)
}

// compiledOp pairs a resolved opFunc with the descriptor fields it closes
// over; name is cached from fields["op"] for tracing.
type compiledOp struct {
	name   string
	fields map[string]any
}

// CompiledPatch is an immutable, read-only-shareable sequence of
// compiled operations (§3, §5: "a CompiledPatch never mutates its own
// op list after Compile returns, so the same value can be applied
// concurrently to independent documents"). Each Apply call builds its
// own execContext, so no mutable state crosses goroutine boundaries.
type CompiledPatch struct {
	ops  []compiledOp
	opts vmOptions
}

// Compile builds a CompiledPatch from operation descriptors already in
// the document value model (i.e. any Number fields are *apd.Decimal, as
// produced by the JSON parser in jsontext.go). This is the entry point
// used when patches arrive as parsed JSON.
func Compile(ops []OperationDescriptor, opts ...Option) (*CompiledPatch, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return compileDescriptors(ops, o)
}

// CompileNative builds a CompiledPatch from host-native Go literals
// (plain float64/int/int64/json.Number wherever the document model
// expects a Number). requireDecimal, when true, rejects float64/int
// literals outright and demands json.Number or *apd.Decimal values (a Go
// string always stays a String) so no precision is silently lost
// converting through float64 (§4.A "host-native value,
// with a toggle require-decimal selecting whether integer/float
// literals are accepted for Number").
func CompileNative(ops []map[string]any, requireDecimal bool, opts ...Option) (*CompiledPatch, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	converted := make([]OperationDescriptor, len(ops))
	for i, op := range ops {
		v, err := nativeToDocument(op, requireDecimal)
		if err != nil {
			return nil, err
		}
		m, ok := v.(map[string]any)
		if !ok {
			return nil, &CompileError{Reason: "operation descriptor must be an object"}
		}
		converted[i] = m
	}
	return compileDescriptors(converted, o)
}

func compileDescriptors(ops []OperationDescriptor, opts vmOptions) (*CompiledPatch, error) {
	compiled := make([]compiledOp, len(ops))
	for i, fields := range ops {
		rawOp, ok := fields["op"]
		if !ok {
			return nil, &CompileError{Reason: "operation descriptor missing \"op\" field"}
		}
		name, ok := rawOp.(string)
		if !ok {
			return nil, &CompileError{Reason: "operation descriptor \"op\" field must be a string"}
		}
		if _, ok := opTable[name]; !ok {
			return nil, &UnknownOpError{Op: name}
		}
		cloned, err := DeepClone(fields)
		if err != nil {
			return nil, err
		}
		compiled[i] = compiledOp{name: name, fields: cloned.(map[string]any)}
	}
	return &CompiledPatch{ops: compiled, opts: opts}, nil
}

// normalizeOps converts a resolved "patch" operand (an []any of
// map[string]any descriptors, as produced by ResolveOperand) into
// []OperationDescriptor for a nested compile. Used by the control
// operators (§4.E) to recompile sub-patches at the same precision as
// their parent.
func normalizeOps(raw any) ([]OperationDescriptor, error) {
	arr, ok := raw.([]any)
	if !ok {
		return nil, &TypeError{Context: "patch", Want: "array of operation objects", Got: raw}
	}
	out := make([]OperationDescriptor, len(arr))
	for i, elem := range arr {
		m, ok := elem.(map[string]any)
		if !ok {
			return nil, &TypeError{Context: "patch element", Want: "object", Got: elem}
		}
		out[i] = m
	}
	return out, nil
}

// compileSubPatch recompiles a nested patch (already resolved to native
// document values by ResolveOperand) inheriting the parent's arithmetic
// options, per §4.E's "nested runs share precision/rounding with the
// enclosing VM".
func compileSubPatch(raw any, opts vmOptions) (*CompiledPatch, error) {
	descs, err := normalizeOps(raw)
	if err != nil {
		return nil, err
	}
	return compileDescriptors(descs, opts)
}

// Apply runs the compiled operations against doc in order, returning
// the resulting document. It mirrors the teacher's ApplyInPlace
// "document in, document out" shape rather than threading a *Document,
// since the core ops only need to rebuild ancestors along a single
// path, not swap the caller's root in place.
func (p *CompiledPatch) Apply(doc any) (any, error) {
	ctx := newExecContext(p.opts)
	tracer := p.opts.tracer
	if tracer.IsActive() {
		tracer.Debug("apply start", "document", doc)
	}
	var err error
	for _, op := range p.ops {
		if tracer.IsActive() {
			tracer.Debug("op", "name", op.name, "fields", op.fields)
		}
		fn := opTable[op.name]
		doc, err = fn(ctx, op.fields, doc)
		if err != nil {
			return nil, err
		}
		if tracer.IsActive() {
			tracer.Debug("op done", "name", op.name, "document", doc)
		}
	}
	if tracer.IsActive() {
		tracer.Debug("apply done", "document", doc)
	}
	return doc, nil
}

// ToOperationDescriptors returns a deep copy of the compiled patch's
// descriptors in the document value model, matching what Compile
// accepted (round-trip property: Compile(p.ToOperationDescriptors())
// applies identically).
func (p *CompiledPatch) ToOperationDescriptors() ([]OperationDescriptor, error) {
	out := make([]OperationDescriptor, len(p.ops))
	for i, op := range p.ops {
		cloned, err := DeepClone(op.fields)
		if err != nil {
			return nil, err
		}
		out[i] = cloned.(map[string]any)
	}
	return out, nil
}

// ToNative is ToOperationDescriptors under another name for callers who
// think of the result as "host-native Go values" rather than "document
// value model values" — in this module the two coincide, since Document
// already is the Go-native representation (map[string]any / []any /
// *apd.Decimal / string / bool / nil).
func (p *CompiledPatch) ToNative() ([]OperationDescriptor, error) {
	return p.ToOperationDescriptors()
}

// nativeToDocument recursively converts host-native Go literals
// (float64, int, int64, json.Number) into the document value model
// (*apd.Decimal for numbers), leaving map/slice/string/bool/nil/already
// *apd.Decimal values untouched.
func nativeToDocument(v any, requireDecimal bool) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case bool, string:
		return t, nil
	case *apd.Decimal:
		return DeepClone(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, elem := range t {
			converted, err := nativeToDocument(elem, requireDecimal)
			if err != nil {
				return nil, err
			}
			out[k] = converted
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, elem := range t {
			converted, err := nativeToDocument(elem, requireDecimal)
			if err != nil {
				return nil, err
			}
			out[i] = converted
		}
		return out, nil
	case float64:
		if requireDecimal {
			return nil, &ValueError{Reason: "require-decimal: float64 literal not permitted, use json.Number or *apd.Decimal"}
		}
		return NewNumberFromFloat(t)
	case int:
		if requireDecimal {
			return nil, &ValueError{Reason: "require-decimal: int literal not permitted, use json.Number or *apd.Decimal"}
		}
		return NewNumberFromInt(int64(t)), nil
	case int64:
		if requireDecimal {
			return nil, &ValueError{Reason: "require-decimal: int64 literal not permitted, use json.Number or *apd.Decimal"}
		}
		return NewNumberFromInt(t), nil
	case int32:
		if requireDecimal {
			return nil, &ValueError{Reason: "require-decimal: int32 literal not permitted, use json.Number or *apd.Decimal"}
		}
		return NewNumberFromInt(int64(t)), nil
	case json.Number:
		return NewNumber(string(t))
	default:
		return nil, &ValueError{Reason: "unsupported native value type in operation descriptor"}
	}
}
