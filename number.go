package patchvm

import (
	"math"

	"github.com/cockroachdb/apd/v2"
)

// decimalContext builds a fresh arithmetic context for a single operation.
// Per §5's "set-and-restore" requirement, the context never escapes the
// call that built it, so concurrent VMs applying patches to different
// documents never share mutable rounding state.
func decimalContext(precision uint32, rounding apd.Rounder) *apd.Context {
	return &apd.Context{
		Precision:   precision,
		Rounding:    rounding,
		MaxExponent: apd.MaxExponent,
		MinExponent: apd.MinExponent,
	}
}

type decimalOp func(ctx *apd.Context, d, a, b *apd.Decimal) (apd.Condition, error)
type decimalUnaryOp func(ctx *apd.Context, d, a *apd.Decimal) (apd.Condition, error)

func runDecimalOp(op string, ctx *apd.Context, fn decimalOp, a, b *apd.Decimal) (*apd.Decimal, error) {
	result := new(apd.Decimal)
	cond, err := fn(ctx, result, a, b)
	if err != nil {
		return nil, &NumericError{Op: op, Reason: err.Error()}
	}
	if cond.Overflow() || cond.Underflow() {
		return nil, &NumericError{Op: op, Reason: "result overflowed precision"}
	}
	if result.Form != apd.Finite {
		return nil, &NumericError{Op: op, Reason: "result is not finite"}
	}
	return result, nil
}

func runDecimalUnaryOp(op string, ctx *apd.Context, fn decimalUnaryOp, a *apd.Decimal) (*apd.Decimal, error) {
	result := new(apd.Decimal)
	cond, err := fn(ctx, result, a)
	if err != nil {
		return nil, &NumericError{Op: op, Reason: err.Error()}
	}
	if cond.Overflow() || cond.Underflow() {
		return nil, &NumericError{Op: op, Reason: "result overflowed precision"}
	}
	if result.Form != apd.Finite {
		return nil, &NumericError{Op: op, Reason: "result is not finite"}
	}
	return result, nil
}

// NumberAdd, NumberSub, NumberMul, NumberDiv implement the binary
// arithmetic family (§4.D "Binary arithmetic / boolean").
func NumberAdd(ctx *apd.Context, a, b *apd.Decimal) (*apd.Decimal, error) {
	return runDecimalOp("number/add", ctx, func(c *apd.Context, d, a, b *apd.Decimal) (apd.Condition, error) {
		return c.Add(d, a, b)
	}, a, b)
}

func NumberSub(ctx *apd.Context, a, b *apd.Decimal) (*apd.Decimal, error) {
	return runDecimalOp("number/sub", ctx, func(c *apd.Context, d, a, b *apd.Decimal) (apd.Condition, error) {
		return c.Sub(d, a, b)
	}, a, b)
}

func NumberMul(ctx *apd.Context, a, b *apd.Decimal) (*apd.Decimal, error) {
	return runDecimalOp("number/mul", ctx, func(c *apd.Context, d, a, b *apd.Decimal) (apd.Condition, error) {
		return c.Mul(d, a, b)
	}, a, b)
}

func NumberDiv(ctx *apd.Context, a, b *apd.Decimal) (*apd.Decimal, error) {
	if b.IsZero() {
		return nil, &NumericError{Op: "number/div", Reason: "division by zero"}
	}
	return runDecimalOp("number/div", ctx, func(c *apd.Context, d, a, b *apd.Decimal) (apd.Condition, error) {
		return c.Quo(d, a, b)
	}, a, b)
}

// NumberFloorDiv and NumberMod round out the arithmetic surface beyond
// spec.md's minimal add/sub/mul/div, per §4.A's numeric-operations list.
func NumberFloorDiv(ctx *apd.Context, a, b *apd.Decimal) (*apd.Decimal, error) {
	if b.IsZero() {
		return nil, &NumericError{Op: "number/floor-div", Reason: "division by zero"}
	}
	return runDecimalOp("number/floor-div", ctx, func(c *apd.Context, d, a, b *apd.Decimal) (apd.Condition, error) {
		return c.QuoInteger(d, a, b)
	}, a, b)
}

func NumberMod(ctx *apd.Context, a, b *apd.Decimal) (*apd.Decimal, error) {
	if b.IsZero() {
		return nil, &NumericError{Op: "number/mod", Reason: "division by zero"}
	}
	return runDecimalOp("number/mod", ctx, func(c *apd.Context, d, a, b *apd.Decimal) (apd.Condition, error) {
		return c.Rem(d, a, b)
	}, a, b)
}

func NumberPow(ctx *apd.Context, a, b *apd.Decimal) (*apd.Decimal, error) {
	return runDecimalOp("number/pow", ctx, func(c *apd.Context, d, a, b *apd.Decimal) (apd.Condition, error) {
		return c.Pow(d, a, b)
	}, a, b)
}

// NumberTrunc, NumberSqrt are endomorphic unary ops (§4.D "Endomorphic
// unary").
func NumberTrunc(ctx *apd.Context, a *apd.Decimal) (*apd.Decimal, error) {
	truncCtx := *ctx
	truncCtx.Rounding = apd.RoundDown
	result := new(apd.Decimal)
	_, err := truncCtx.RoundToIntegralExact(result, a)
	if err != nil {
		return nil, &NumericError{Op: "number/trunc", Reason: err.Error()}
	}
	return result, nil
}

func NumberSqrt(ctx *apd.Context, a *apd.Decimal) (*apd.Decimal, error) {
	if a.Negative {
		return nil, &NumericError{Op: "number/sqrt", Reason: "square root of negative number"}
	}
	return runDecimalUnaryOp("number/sqrt", ctx, func(c *apd.Context, d, a *apd.Decimal) (apd.Condition, error) {
		return c.Sqrt(d, a)
	}, a)
}

// NumberSin and NumberCos have no exact-decimal analogue in apd (an
// arbitrary-precision arithmetic library, not a transcendental-function
// one), so they cross through float64 and back; see DESIGN.md.
func NumberSin(a *apd.Decimal) (*apd.Decimal, error) {
	f, err := a.Float64()
	if err != nil {
		return nil, &NumericError{Op: "number/sin", Reason: err.Error()}
	}
	return NewNumberFromFloat(math.Sin(f))
}

func NumberCos(a *apd.Decimal) (*apd.Decimal, error) {
	f, err := a.Float64()
	if err != nil {
		return nil, &NumericError{Op: "number/cos", Reason: err.Error()}
	}
	return NewNumberFromFloat(math.Cos(f))
}

// Boolean operators (§4.A): not, and, or, xor. These operate on Bool only.
func BoolNot(v bool) bool { return !v }
func BoolAnd(a, b bool) bool { return a && b }
func BoolOr(a, b bool) bool  { return a || b }
func BoolXor(a, b bool) bool { return a != b }
