package patchvm

import (
	"math"
	"strconv"

	"github.com/cockroachdb/apd/v2"
)

// Document is the untyped value model every operator reads and mutates:
// one of map[string]any (Object), []any (Array), string (String),
// *apd.Decimal (Number), bool (Bool), or nil (Null). Containers own their
// children exclusively; to keep it so, every operand crossing a resolver,
// move/copy, or call-frame boundary is copied with DeepClone first.
type Document = any

// DeepClone recursively copies a Document so that mutating the result can
// never alias the source. It is the one mandatory primitive behind the
// operand resolver (§4.C), move/copy, call-frame marshaling, and the
// for-loop counter save/restore.
func DeepClone(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			cv, err := DeepClone(child)
			if err != nil {
				return nil, err
			}
			out[k] = cv
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			cv, err := DeepClone(child)
			if err != nil {
				return nil, err
			}
			out[i] = cv
		}
		return out, nil
	case *apd.Decimal:
		cp := new(apd.Decimal)
		cp.Set(t)
		return cp, nil
	case string, bool:
		return t, nil
	default:
		return nil, &TypeError{Context: "DeepClone", Want: "object, array, string, number, bool, or null", Got: v}
	}
}

// Equal reports structural equality. Numbers compare by decimal value
// (not textual representation: 1 and 1.0 are equal), containers compare
// recursively and order-sensitively for arrays and key-set/value-wise for
// objects. Values of incompatible kinds are simply unequal, never an
// error — mixed-kind equality is well defined per §4.A; only *ordering*
// requires both operands to be Numbers.
func Equal(a, b any) bool {
	switch av := a.(type) {
	case *apd.Decimal:
		bv, ok := b.(*apd.Decimal)
		return ok && av.Cmp(bv) == 0
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case nil:
		return b == nil
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			other, ok := bv[k]
			if !ok || !Equal(v, other) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Compare orders two Numbers. Comparing anything else is a TypeError,
// matching §4.A: "mixed-kind ordering fails with TypeError".
func Compare(a, b any) (int, error) {
	av, ok := a.(*apd.Decimal)
	if !ok {
		return 0, &TypeError{Context: "Compare", Want: "number", Got: a}
	}
	bv, ok := b.(*apd.Decimal)
	if !ok {
		return 0, &TypeError{Context: "Compare", Want: "number", Got: b}
	}
	return av.Cmp(bv), nil
}

// EnsureNumber type-asserts v as a Number, failing with TypeError otherwise.
func EnsureNumber(v any) (*apd.Decimal, error) {
	n, ok := v.(*apd.Decimal)
	if !ok {
		return nil, &TypeError{Context: "number operand", Want: "number", Got: v}
	}
	return n, nil
}

// EnsureBool type-asserts v as a Bool, failing with TypeError otherwise.
func EnsureBool(v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, &TypeError{Context: "bool operand", Want: "bool", Got: v}
	}
	return b, nil
}

// EnsureArray type-asserts v as an Array, failing with TypeError otherwise.
func EnsureArray(v any) ([]any, error) {
	a, ok := v.([]any)
	if !ok {
		return nil, &TypeError{Context: "array operand", Want: "array", Got: v}
	}
	return a, nil
}

// EnsureString type-asserts v as a String, failing with TypeError otherwise.
func EnsureString(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", &TypeError{Context: "string operand", Want: "string", Got: v}
	}
	return s, nil
}

// NewNumber parses a decimal literal (as produced by encoding/json's
// UseNumber decoder) into an exact Number, rejecting non-finite results.
func NewNumber(literal string) (*apd.Decimal, error) {
	d, _, err := apd.NewFromString(literal)
	if err != nil {
		return nil, &ValueError{Reason: "invalid decimal literal " + strconv.Quote(literal) + ": " + err.Error()}
	}
	if d.Form != apd.Finite {
		return nil, &ValueError{Reason: "number must be finite"}
	}
	return d, nil
}

// NewNumberFromInt constructs a Number from a native int64, used by
// for-loop counters and array-length results.
func NewNumberFromInt(n int64) *apd.Decimal {
	return apd.New(n, 0)
}

// NewNumberFromFloat constructs a Number from a float64. It is used by the
// sin/cos endomorphic ops, which have no exact-decimal analogue (see
// DESIGN.md), and by CompileNative for float64 literals when
// require-decimal is off.
func NewNumberFromFloat(f float64) (*apd.Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, &ValueError{Reason: "non-finite float result"}
	}
	d, _, err := apd.NewFromString(strconv.FormatFloat(f, 'g', -1, 64))
	if err != nil {
		return nil, &ValueError{Reason: "float conversion failed: " + err.Error()}
	}
	return d, nil
}

// Int64 normalizes a Number operand to a native integer, required before
// for-loop's start/stop/increment can drive a Go range.
func Int64(v any) (int64, error) {
	d, err := EnsureNumber(v)
	if err != nil {
		return 0, err
	}
	n, err := d.Int64()
	if err != nil {
		return 0, &ValueError{Reason: "number is not integer-valued: " + err.Error()}
	}
	return n, nil
}
