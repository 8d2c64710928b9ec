package patchvm

import (
	"github.com/cockroachdb/apd/v2"

	"github.com/agentflare-ai/go-patchvm/pointer"
)

// opFunc executes one compiled operation against doc and returns the
// (possibly new, for root/array-splicing cases) document — the same
// "document in, document out" shape the teacher's applyAdd/applyRemove/...
// family used for RFC 6902, generalized here with operand-resolver support
// and the full extended opcode table (§4.D).
type opFunc func(ctx *execContext, fields map[string]any, doc any) (any, error)

// opTable is the global opcode → implementation table (§4.D: "At
// patch-load time, each descriptor's op field is looked up in a global
// opcode table"). It is populated once from the per-family registration
// functions below; Compile only ever reads it.
var opTable = buildOpTable()

func buildOpTable() map[string]opFunc {
	t := make(map[string]opFunc)
	registerCoreOps(t)
	registerBinaryOps(t)
	registerRelationOps(t)
	registerTransformingUnaryOps(t)
	registerEndomorphicUnaryOps(t)
	registerControlOps(t)
	return t
}

func requirePath(fields map[string]any) (pointer.Pointer, error) {
	return ResolvePointerField("path", fields)
}

// ---- Core patch ops (RFC 6902, extended with the operand resolver) ----

func registerCoreOps(t map[string]opFunc) {
	t["add"] = opAdd
	t["remove"] = opRemove
	t["replace"] = opReplace
	t["move"] = opMove
	t["copy"] = opCopy
	t["test"] = opTest
}

func opAdd(ctx *execContext, fields map[string]any, doc any) (any, error) {
	path, err := requirePath(fields)
	if err != nil {
		return nil, err
	}
	value, err := ResolveOperand("value", fields, doc, false)
	if err != nil {
		return nil, err
	}
	return pointer.Add(doc, path, value)
}

func opRemove(ctx *execContext, fields map[string]any, doc any) (any, error) {
	path, err := requirePath(fields)
	if err != nil {
		return nil, err
	}
	return pointer.Remove(doc, path)
}

func opReplace(ctx *execContext, fields map[string]any, doc any) (any, error) {
	path, err := requirePath(fields)
	if err != nil {
		return nil, err
	}
	value, err := ResolveOperand("value", fields, doc, false)
	if err != nil {
		return nil, err
	}
	if !path.Exists(doc) {
		return nil, &pointer.KeyError{Path: path.String(), Key: "replace target"}
	}
	doc, err = pointer.Remove(doc, path)
	if err != nil {
		return nil, err
	}
	return pointer.Add(doc, path, value)
}

func opMove(ctx *execContext, fields map[string]any, doc any) (any, error) {
	from, err := ResolvePointerField("from", fields)
	if err != nil {
		return nil, err
	}
	path, err := requirePath(fields)
	if err != nil {
		return nil, err
	}
	val, err := from.Get(doc)
	if err != nil {
		return nil, err
	}
	val, err = DeepClone(val)
	if err != nil {
		return nil, err
	}
	doc, err = pointer.Remove(doc, from)
	if err != nil {
		return nil, err
	}
	return pointer.Add(doc, path, val)
}

func opCopy(ctx *execContext, fields map[string]any, doc any) (any, error) {
	from, err := ResolvePointerField("from", fields)
	if err != nil {
		return nil, err
	}
	path, err := requirePath(fields)
	if err != nil {
		return nil, err
	}
	val, err := from.Get(doc)
	if err != nil {
		return nil, err
	}
	val, err = DeepClone(val)
	if err != nil {
		return nil, err
	}
	return pointer.Add(doc, path, val)
}

func opTest(ctx *execContext, fields map[string]any, doc any) (any, error) {
	path, err := requirePath(fields)
	if err != nil {
		return nil, err
	}
	actual, err := path.Get(doc)
	if err != nil {
		return nil, err
	}
	expected, err := ResolveOperand("value", fields, doc, false)
	if err != nil {
		return nil, err
	}
	if !Equal(actual, expected) {
		return nil, &TestFailedError{Path: path.String(), Expected: expected, Actual: actual}
	}
	return doc, nil
}

// ---- Binary arithmetic / boolean (read-combine-write at path) ----

func registerBinaryOps(t map[string]opFunc) {
	t["number/add"] = makeNumericBinaryOp(NumberAdd)
	t["number/sub"] = makeNumericBinaryOp(NumberSub)
	t["number/mul"] = makeNumericBinaryOp(NumberMul)
	t["number/div"] = makeNumericBinaryOp(NumberDiv)
	t["number/floor-div"] = makeNumericBinaryOp(NumberFloorDiv)
	t["number/mod"] = makeNumericBinaryOp(NumberMod)
	t["number/pow"] = makeNumericBinaryOp(NumberPow)
	t["bool/or"] = makeBoolBinaryOp(BoolOr)
	t["bool/and"] = makeBoolBinaryOp(BoolAnd)
	t["bool/xor"] = makeBoolBinaryOp(BoolXor)
}

func makeNumericBinaryOp(fn func(ctx *apd.Context, a, b *apd.Decimal) (*apd.Decimal, error)) opFunc {
	return func(ctx *execContext, fields map[string]any, doc any) (any, error) {
		path, err := requirePath(fields)
		if err != nil {
			return nil, err
		}
		oldRaw, err := path.Get(doc)
		if err != nil {
			return nil, err
		}
		old, err := EnsureNumber(oldRaw)
		if err != nil {
			return nil, err
		}
		operandRaw, err := ResolveOperand("value", fields, doc, false)
		if err != nil {
			return nil, err
		}
		operand, err := EnsureNumber(operandRaw)
		if err != nil {
			return nil, err
		}
		result, err := fn(ctx.decimalContext(), old, operand)
		if err != nil {
			return nil, err
		}
		doc, err = pointer.Remove(doc, path)
		if err != nil {
			return nil, err
		}
		return pointer.Add(doc, path, result)
	}
}

func makeBoolBinaryOp(fn func(a, b bool) bool) opFunc {
	return func(ctx *execContext, fields map[string]any, doc any) (any, error) {
		path, err := requirePath(fields)
		if err != nil {
			return nil, err
		}
		oldRaw, err := path.Get(doc)
		if err != nil {
			return nil, err
		}
		old, err := EnsureBool(oldRaw)
		if err != nil {
			return nil, err
		}
		operandRaw, err := ResolveOperand("value", fields, doc, false)
		if err != nil {
			return nil, err
		}
		operand, err := EnsureBool(operandRaw)
		if err != nil {
			return nil, err
		}
		result := fn(old, operand)
		doc, err = pointer.Remove(doc, path)
		if err != nil {
			return nil, err
		}
		return pointer.Add(doc, path, result)
	}
}

// ---- Binary relations (write Bool at path from left/right operands) ----

func registerRelationOps(t map[string]opFunc) {
	t["number/equal"] = makeRelationOp(func(a, b *apd.Decimal) (bool, error) {
		return a.Cmp(b) == 0, nil
	})
	t["number/not-equal"] = makeRelationOp(func(a, b *apd.Decimal) (bool, error) {
		return a.Cmp(b) != 0, nil
	})
	t["number/greater"] = makeRelationOp(func(a, b *apd.Decimal) (bool, error) {
		return a.Cmp(b) > 0, nil
	})
	t["number/greater-equal"] = makeRelationOp(func(a, b *apd.Decimal) (bool, error) {
		return a.Cmp(b) >= 0, nil
	})
	t["number/less-equal"] = makeRelationOp(func(a, b *apd.Decimal) (bool, error) {
		return a.Cmp(b) <= 0, nil
	})
}

func makeRelationOp(fn func(a, b *apd.Decimal) (bool, error)) opFunc {
	return func(ctx *execContext, fields map[string]any, doc any) (any, error) {
		path, err := requirePath(fields)
		if err != nil {
			return nil, err
		}
		leftRaw, err := ResolveOperand("left-value", fields, doc, false)
		if err != nil {
			return nil, err
		}
		rightRaw, err := ResolveOperand("right-value", fields, doc, false)
		if err != nil {
			return nil, err
		}
		left, err := EnsureNumber(leftRaw)
		if err != nil {
			return nil, err
		}
		right, err := EnsureNumber(rightRaw)
		if err != nil {
			return nil, err
		}
		result, err := fn(left, right)
		if err != nil {
			return nil, err
		}
		return pointer.Add(doc, path, result)
	}
}

// ---- Transforming unary (type of result differs from argument) ----

func registerTransformingUnaryOps(t map[string]opFunc) {
	t["string/split-path"] = makeTransformingUnaryOp(func(v any) (any, error) {
		s, err := EnsureString(v)
		if err != nil {
			return nil, err
		}
		p, err := pointer.Parse(s)
		if err != nil {
			return nil, err
		}
		segs := p.Segments()
		out := make([]any, len(segs))
		for i, s := range segs {
			out[i] = s
		}
		return out, nil
	})
	t["array/join-path"] = makeTransformingUnaryOp(func(v any) (any, error) {
		arr, err := EnsureArray(v)
		if err != nil {
			return nil, err
		}
		segs := make([]string, len(arr))
		for i, elem := range arr {
			s, err := segmentToString(elem)
			if err != nil {
				return nil, err
			}
			segs[i] = s
		}
		p, err := pointer.FromSegments(segs)
		if err != nil {
			return nil, err
		}
		return p.String(), nil
	})
	t["array/length"] = makeTransformingUnaryOp(func(v any) (any, error) {
		arr, err := EnsureArray(v)
		if err != nil {
			return nil, err
		}
		return NewNumberFromInt(int64(len(arr))), nil
	})
}

// segmentToString renders an array/join-path element as a pointer
// segment: a string is used verbatim, a Number is rendered via its
// decimal text (this is how a for-loop counter slot, itself a Number,
// ends up as an array index segment in a dynamically-assembled
// pointer — see the "idx" array idiom in the examples).
func segmentToString(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case *apd.Decimal:
		return t.Text('f'), nil
	default:
		return "", &TypeError{Context: "array/join-path element", Want: "string or number", Got: v}
	}
}

func makeTransformingUnaryOp(fn func(v any) (any, error)) opFunc {
	return func(ctx *execContext, fields map[string]any, doc any) (any, error) {
		value, err := ResolveOperand("value", fields, doc, false)
		if err != nil {
			return nil, err
		}
		result, err := fn(value)
		if err != nil {
			return nil, err
		}
		path, err := requirePath(fields)
		if err != nil {
			return nil, err
		}
		if path.Exists(doc) {
			doc, err = pointer.Remove(doc, path)
			if err != nil {
				return nil, err
			}
		}
		return pointer.Add(doc, path, result)
	}
}

// ---- Endomorphic unary (argument and result share a kind) ----

func registerEndomorphicUnaryOps(t map[string]opFunc) {
	t["number/trunc"] = makeEndomorphicUnaryOp(func(ctx *execContext, v any) (any, error) {
		n, err := EnsureNumber(v)
		if err != nil {
			return nil, err
		}
		return NumberTrunc(ctx.decimalContext(), n)
	})
	t["number/sqrt"] = makeEndomorphicUnaryOp(func(ctx *execContext, v any) (any, error) {
		n, err := EnsureNumber(v)
		if err != nil {
			return nil, err
		}
		return NumberSqrt(ctx.decimalContext(), n)
	})
	t["number/sin"] = makeEndomorphicUnaryOp(func(ctx *execContext, v any) (any, error) {
		n, err := EnsureNumber(v)
		if err != nil {
			return nil, err
		}
		return NumberSin(n)
	})
	t["number/cos"] = makeEndomorphicUnaryOp(func(ctx *execContext, v any) (any, error) {
		n, err := EnsureNumber(v)
		if err != nil {
			return nil, err
		}
		return NumberCos(n)
	})
	t["bool/not"] = makeEndomorphicUnaryOp(func(ctx *execContext, v any) (any, error) {
		b, err := EnsureBool(v)
		if err != nil {
			return nil, err
		}
		return BoolNot(b), nil
	})
}

func makeEndomorphicUnaryOp(fn func(ctx *execContext, v any) (any, error)) opFunc {
	return func(ctx *execContext, fields map[string]any, doc any) (any, error) {
		path, err := requirePath(fields)
		if err != nil {
			return nil, err
		}
		value, err := ResolveOperand("value", fields, doc, true)
		if err != nil {
			return nil, err
		}
		if IsMissing(value) {
			value, err = path.Get(doc)
			if err != nil {
				return nil, err
			}
		}
		result, err := fn(ctx, value)
		if err != nil {
			return nil, err
		}
		if path.Exists(doc) {
			doc, err = pointer.Remove(doc, path)
			if err != nil {
				return nil, err
			}
		}
		return pointer.Add(doc, path, result)
	}
}
