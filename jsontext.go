package patchvm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/apd/v2"
)

// ParseDocument decodes JSON text into the Document value model,
// routing every JSON number through UseNumber so NewNumber constructs
// an exact *apd.Decimal instead of losing precision through float64 —
// the same json.Decoder the teacher uses for ApplyStream (patch.go),
// with UseNumber added since this module's Number kind is exact decimal
// rather than float64.
func ParseDocument(text string) (Document, error) {
	return ParseDocumentBytes([]byte(text))
}

// ParseDocumentBytes is ParseDocument over a []byte, avoiding a string
// copy for callers that already have bytes (e.g. reading a patch file).
func ParseDocumentBytes(data []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, &ValueError{Reason: fmt.Sprintf("invalid JSON: %s", err)}
	}
	return nativeJSONToDocument(raw)
}

// nativeJSONToDocument walks the generic any tree encoding/json produces
// under UseNumber (map[string]any / []any / json.Number / string / bool /
// nil) and converts every json.Number leaf into *apd.Decimal.
func nativeJSONToDocument(v any) (Document, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case bool, string:
		return t, nil
	case json.Number:
		return NewNumber(string(t))
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			cv, err := nativeJSONToDocument(child)
			if err != nil {
				return nil, err
			}
			out[k] = cv
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			cv, err := nativeJSONToDocument(child)
			if err != nil {
				return nil, err
			}
			out[i] = cv
		}
		return out, nil
	default:
		return nil, &TypeError{Context: "JSON decode", Want: "object, array, string, number, bool, or null", Got: v}
	}
}

// EncodeDocument renders a Document back to JSON text. *apd.Decimal
// values are written as a bare numeric token (via their exact Text('f')
// form) rather than routed through encoding/json's float64 marshaling,
// which would both lose precision and risk scientific notation
// encoding/json cannot parse back as a bare number for large exponents.
func EncodeDocument(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeValue(&buf, doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeValue(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case string:
		b, err := json.Marshal(t)
		if err != nil {
			return err
		}
		buf.Write(b)
		return nil
	case *apd.Decimal:
		buf.WriteString(t.Text('f'))
		return nil
	case map[string]any:
		buf.WriteByte('{')
		first := true
		for k, child := range t {
			if !first {
				buf.WriteByte(',')
			}
			first = false
			keyBytes, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(keyBytes)
			buf.WriteByte(':')
			if err := encodeValue(buf, child); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case []any:
		buf.WriteByte('[')
		for i, child := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeValue(buf, child); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	default:
		return &TypeError{Context: "JSON encode", Want: "object, array, string, number, bool, or null", Got: v}
	}
}

// ParseOperationDescriptors decodes a JSON array of operation
// descriptors into the form Compile expects.
func ParseOperationDescriptors(text string) ([]OperationDescriptor, error) {
	doc, err := ParseDocument(text)
	if err != nil {
		return nil, err
	}
	return normalizeOps(doc)
}
