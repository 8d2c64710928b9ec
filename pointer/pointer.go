// Package pointer implements RFC 6901 JSON Pointers: parsing, rendering,
// navigation and in-place container mutation over the untyped document
// model (map[string]any / []any / scalars) the rest of go-patchvm builds
// on.
package pointer

import (
	"fmt"
	"strconv"
	"strings"
)

// Pointer is a parsed JSON Pointer: an ordered sequence of unescaped
// segments. An empty Pointer addresses the document root.
type Pointer []string

// Parse parses the textual RFC 6901 form ("" or "/seg1/seg2/...") into a
// Pointer, unescaping "~1" to "/" and "~0" to "~".
func Parse(text string) (Pointer, error) {
	if text == "" {
		return Pointer{}, nil
	}
	if !strings.HasPrefix(text, "/") {
		return nil, &MalformedError{Text: text, Reason: "pointer must be empty or start with '/'"}
	}
	raw := strings.Split(text, "/")[1:]
	segs := make(Pointer, len(raw))
	for i, s := range raw {
		segs[i] = decodeSegment(s)
	}
	return segs, nil
}

// FromSegments builds a Pointer from already-unescaped segments. Each
// segment must not itself contain "/" (that would make it ambiguous with
// the textual form); this mirrors the source's tuple-constructor guard.
func FromSegments(segments []string) (Pointer, error) {
	out := make(Pointer, len(segments))
	for i, s := range segments {
		if strings.Contains(s, "/") {
			return nil, &MalformedError{Text: s, Reason: "segment must not contain '/'"}
		}
		out[i] = s
	}
	return out, nil
}

func decodeSegment(s string) string {
	s = strings.ReplaceAll(s, "~1", "/")
	s = strings.ReplaceAll(s, "~0", "~")
	return s
}

func encodeSegment(s string) string {
	s = strings.ReplaceAll(s, "~", "~0")
	s = strings.ReplaceAll(s, "/", "~1")
	return s
}

// String renders the Pointer back to RFC 6901 textual form.
func (p Pointer) String() string {
	if len(p) == 0 {
		return ""
	}
	var b strings.Builder
	for _, s := range p {
		b.WriteByte('/')
		b.WriteString(encodeSegment(s))
	}
	return b.String()
}

// Segments returns the unescaped segment slice.
func (p Pointer) Segments() []string {
	out := make([]string, len(p))
	copy(out, p)
	return out
}

// Child returns a new Pointer with an additional trailing segment.
func (p Pointer) Child(segment string) Pointer {
	out := make(Pointer, len(p)+1)
	copy(out, p)
	out[len(p)] = segment
	return out
}

// IsPrefixOf reports whether p is a (non-strict) prefix of other.
func (p Pointer) IsPrefixOf(other Pointer) bool {
	if len(p) > len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// RelativeTo returns the suffix of p once the prefix base has been
// stripped. It is used to translate an outer pointer into a scope-local
// one, per the control operators' check-path/counter-path convention.
func (p Pointer) RelativeTo(base Pointer) (Pointer, error) {
	if !base.IsPrefixOf(p) {
		return nil, &ScopeError{Path: p.String(), Scope: base.String()}
	}
	return p[len(base):], nil
}

// MalformedError reports a pointer that does not parse.
type MalformedError struct {
	Text   string
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("jsonpointer: malformed pointer %q: %s", e.Text, e.Reason)
}

// KeyError reports a missing object key.
type KeyError struct {
	Path string
	Key  string
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("jsonpointer: key %q not found at %q", e.Key, e.Path)
}

// IndexError reports an absent or out-of-range array index.
type IndexError struct {
	Path  string
	Index string
	Len   int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("jsonpointer: index %q out of bounds (len=%d) at %q", e.Index, e.Len, e.Path)
}

// ScopeError reports a pointer that is not a descendant of an expected
// scope root.
type ScopeError struct {
	Path  string
	Scope string
}

func (e *ScopeError) Error() string {
	return fmt.Sprintf("jsonpointer: path %q is not within scope %q", e.Path, e.Scope)
}

// TypeError reports navigation hitting a non-container where a container
// was expected.
type TypeError struct {
	Path string
	Want string
	Got  any
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("jsonpointer: expected %s at %q, got %T", e.Want, e.Path, e.Got)
}

const appendToken = "-"

// ParseArrayIndex parses a pointer segment as a non-negative array index.
// It rejects leading zeros other than the literal "0", matching RFC 6901's
// guidance that array indices have no superfluous leading zeros.
func ParseArrayIndex(segment string) (int, error) {
	if segment == "" {
		return 0, fmt.Errorf("jsonpointer: empty array index")
	}
	if len(segment) > 1 && segment[0] == '0' {
		return 0, fmt.Errorf("jsonpointer: array index %q has leading zero", segment)
	}
	n, err := strconv.Atoi(segment)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("jsonpointer: invalid array index %q", segment)
	}
	return n, nil
}

// Exists reports whether the pointer resolves to a present value in doc.
func (p Pointer) Exists(doc any) bool {
	cur := doc
	for _, seg := range p {
		next, ok := step(cur, seg)
		if !ok {
			return false
		}
		cur = next
	}
	return true
}

func step(container any, segment string) (any, bool) {
	switch c := container.(type) {
	case map[string]any:
		v, ok := c[segment]
		return v, ok
	case []any:
		if segment == appendToken {
			return nil, false
		}
		idx, err := ParseArrayIndex(segment)
		if err != nil || idx < 0 || idx >= len(c) {
			return nil, false
		}
		return c[idx], true
	default:
		return nil, false
	}
}

// Get navigates to the pointer's location and returns the value there.
func (p Pointer) Get(doc any) (any, error) {
	cur := doc
	for i, seg := range p {
		next, ok := step(cur, seg)
		if !ok {
			return nil, notFoundError(cur, p[:i+1], seg)
		}
		cur = next
	}
	return cur, nil
}

// GetOrDefault is Get but returns def instead of an error when the path is
// absent.
func (p Pointer) GetOrDefault(doc any, def any) any {
	if v, err := p.Get(doc); err == nil {
		return v
	}
	return def
}

func notFoundError(parent any, path Pointer, seg string) error {
	switch parent.(type) {
	case []any:
		return &IndexError{Path: path.String(), Index: seg, Len: lengthOf(parent)}
	case map[string]any:
		return &KeyError{Path: path.String(), Key: seg}
	default:
		return &TypeError{Path: path.String(), Want: "container", Got: parent}
	}
}

func lengthOf(v any) int {
	if arr, ok := v.([]any); ok {
		return len(arr)
	}
	return 0
}

// Add inserts value at the pointer's location, creating or replacing an
// object key, or inserting into an array (shifting the tail right); the
// terminal segment "-" (or an index equal to the array's length) appends.
// Returns the (possibly new, for root/array cases) document.
func Add(doc any, path Pointer, value any) (any, error) {
	if len(path) == 0 {
		return value, nil
	}
	parentPath := path[:len(path)-1]
	token := path[len(path)-1]

	parent, err := parentPath.Get(doc)
	if err != nil {
		return nil, err
	}

	switch p := parent.(type) {
	case map[string]any:
		p[token] = value
		return doc, nil
	case []any:
		var idx int
		if token == appendToken {
			idx = len(p)
		} else {
			n, err := ParseArrayIndex(token)
			if err != nil {
				return nil, &IndexError{Path: path.String(), Index: token, Len: len(p)}
			}
			idx = n
		}
		if idx > len(p) {
			return nil, &IndexError{Path: path.String(), Index: token, Len: len(p)}
		}
		newArr := make([]any, 0, len(p)+1)
		newArr = append(newArr, p[:idx]...)
		newArr = append(newArr, value)
		newArr = append(newArr, p[idx:]...)
		return setParent(doc, parentPath, newArr)
	default:
		return nil, &TypeError{Path: parentPath.String(), Want: "object or array", Got: parent}
	}
}

// Remove deletes the value at the pointer's location (shifting array
// tails left). Returns the (possibly new) document.
func Remove(doc any, path Pointer) (any, error) {
	if len(path) == 0 {
		return nil, &MalformedError{Text: "", Reason: "cannot remove the document root"}
	}
	parentPath := path[:len(path)-1]
	token := path[len(path)-1]

	parent, err := parentPath.Get(doc)
	if err != nil {
		return nil, err
	}

	switch p := parent.(type) {
	case map[string]any:
		if _, ok := p[token]; !ok {
			return nil, &KeyError{Path: path.String(), Key: token}
		}
		delete(p, token)
		return doc, nil
	case []any:
		idx, err := ParseArrayIndex(token)
		if err != nil || idx >= len(p) {
			return nil, &IndexError{Path: path.String(), Index: token, Len: len(p)}
		}
		newArr := make([]any, 0, len(p)-1)
		newArr = append(newArr, p[:idx]...)
		newArr = append(newArr, p[idx+1:]...)
		return setParent(doc, parentPath, newArr)
	default:
		return nil, &TypeError{Path: parentPath.String(), Want: "object or array", Got: parent}
	}
}

// Set overwrites the value at the pointer's location in place, used by
// the control operators to write a scope view back into its enclosing
// document after running a nested patch against it. Unlike Add it never
// shifts an array: the target index must already exist. An empty path
// replaces the whole document.
func Set(doc any, path Pointer, value any) (any, error) {
	if len(path) == 0 {
		return value, nil
	}
	parentPath := path[:len(path)-1]
	token := path[len(path)-1]

	parent, err := parentPath.Get(doc)
	if err != nil {
		return nil, err
	}

	switch p := parent.(type) {
	case map[string]any:
		p[token] = value
		return doc, nil
	case []any:
		idx, err := ParseArrayIndex(token)
		if err != nil || idx >= len(p) {
			return nil, &IndexError{Path: path.String(), Index: token, Len: len(p)}
		}
		cp := make([]any, len(p))
		copy(cp, p)
		cp[idx] = value
		return setParent(doc, parentPath, cp)
	default:
		return nil, &TypeError{Path: parentPath.String(), Want: "object or array", Got: parent}
	}
}

// setParent replaces the container at parentPath with newContainer,
// rebuilding ancestor array slices as needed since a Go slice cannot be
// resized through an aliased reference. Map ancestors are mutated in
// place; array ancestors are rebuilt copy-on-write up to the root.
func setParent(doc any, parentPath Pointer, newContainer any) (any, error) {
	if len(parentPath) == 0 {
		return newContainer, nil
	}
	grandPath := parentPath[:len(parentPath)-1]
	token := parentPath[len(parentPath)-1]

	grand, err := grandPath.Get(doc)
	if err != nil {
		return nil, err
	}
	switch g := grand.(type) {
	case map[string]any:
		g[token] = newContainer
		return doc, nil
	case []any:
		idx, err := ParseArrayIndex(token)
		if err != nil || idx >= len(g) {
			return nil, &IndexError{Path: parentPath.String(), Index: token, Len: len(g)}
		}
		cp := make([]any, len(g))
		copy(cp, g)
		cp[idx] = newContainer
		return setParent(doc, grandPath, cp)
	default:
		return nil, &TypeError{Path: grandPath.String(), Want: "object or array", Got: grand}
	}
}
