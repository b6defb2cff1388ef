package client

import (
	"fmt"

	"github.com/goccy/go-json"
)

const (
	contentTypeJSON = "application/json"
	contentTypeForm = "application/x-www-form-urlencoded"
)

type bodyKind int

const (
	bodyEmpty bodyKind = iota
	bodyRaw
	bodyJSON
)

// Body is a request body. The zero value is the empty body; use Raw for a
// pre-encoded string and JSON for a structured value. Content type follows
// from how the body was built, not from inspection of the request.
type Body struct {
	kind  bodyKind
	raw   string
	value any
}

// Raw wraps a pre-encoded string. Strings that are themselves valid JSON are
// sent as application/json, anything else as form-urlencoded.
func Raw(s string) Body {
	return Body{kind: bodyRaw, raw: s}
}

// JSON wraps a structured value to be JSON-encoded on send.
func JSON(v any) Body {
	return Body{kind: bodyJSON, value: v}
}

// encode returns the body bytes and the inferred content type. An empty body
// yields nil bytes and no content type.
func (b Body) encode() ([]byte, string, error) {
	switch b.kind {
	case bodyEmpty:
		return nil, "", nil
	case bodyJSON:
		data, err := json.Marshal(b.value)
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode request body: %w", err)
		}
		return data, contentTypeJSON, nil
	case bodyRaw:
		if json.Valid([]byte(b.raw)) {
			return []byte(b.raw), contentTypeJSON, nil
		}
		return []byte(b.raw), contentTypeForm, nil
	default:
		return nil, "", fmt.Errorf("unknown body kind %d", b.kind)
	}
}
