package patchvm

import (
	"github.com/agentflare-ai/go-patchvm/pointer"
)

// missingType is the sentinel returned by ResolveOperand when an optional
// operand is absent from both its literal and -path forms.
type missingType struct{}

// Missing is the sentinel value signaling an absent optional operand.
var Missing any = missingType{}

// IsMissing reports whether v is the Missing sentinel.
func IsMissing(v any) bool {
	_, ok := v.(missingType)
	return ok
}

// ResolveOperand is the sole mechanism by which operators consume
// operands (§4.C): given a field name, it returns the deep-cloned literal
// value of fields[name] if present, else the deep-cloned value read from
// the document at the pointer in fields[name+"-path"], else Missing (if
// missingOK) or a MissingFieldError. The two forms are mutually
// exclusive: a descriptor carrying both is rejected with a CompileError.
func ResolveOperand(name string, fields map[string]any, doc any, missingOK bool) (any, error) {
	pathField := name + "-path"
	v, hasLiteral := fields[name]
	raw, hasPath := fields[pathField]
	if hasLiteral && hasPath {
		return nil, &CompileError{Reason: "operand \"" + name + "\" given both literally and as \"" + pathField + "\""}
	}
	if hasLiteral {
		return DeepClone(v)
	}
	if hasPath {
		pathText, err := EnsureString(raw)
		if err != nil {
			return nil, err
		}
		p, err := pointer.Parse(pathText)
		if err != nil {
			return nil, err
		}
		v, err := p.Get(doc)
		if err != nil {
			return nil, err
		}
		return DeepClone(v)
	}
	if missingOK {
		return Missing, nil
	}
	return nil, &MissingFieldError{Field: name}
}

// ResolvePointerField reads a required field (never a -path operand: the
// field's *value itself* is always a pointer text, e.g. "path", "from",
// "check-path", "counter-path") and parses it.
func ResolvePointerField(name string, fields map[string]any) (pointer.Pointer, error) {
	raw, ok := fields[name]
	if !ok {
		return nil, &MissingFieldError{Field: name}
	}
	text, err := EnsureString(raw)
	if err != nil {
		return nil, err
	}
	return pointer.Parse(text)
}

// ResolveOptionalPointerField is ResolvePointerField for a field that may
// be absent.
func ResolveOptionalPointerField(name string, fields map[string]any) (pointer.Pointer, bool, error) {
	raw, ok := fields[name]
	if !ok {
		return nil, false, nil
	}
	text, err := EnsureString(raw)
	if err != nil {
		return nil, false, err
	}
	p, err := pointer.Parse(text)
	if err != nil {
		return nil, false, err
	}
	return p, true, nil
}
