// Package codec provides key/value payload codecs for the record boundary.
// Records cross the driver as raw bytes; codecs translate at the edges —
// producers encode before enqueueing, consumers decode after receiving.
package codec

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Codec translates between Go values and record payload bytes.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

var (
	// Bytes passes payloads through untouched.
	Bytes Codec = bytesCodec{}
	// String converts between string values and their bytes.
	String Codec = stringCodec{}
	// JSON round-trips values through encoding/json.
	JSON Codec = jsonCodec{}
)

// Lookup resolves a codec by its config name. An empty name means Bytes.
func Lookup(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "bytes":
		return Bytes, nil
	case "string":
		return String, nil
	case "json":
		return JSON, nil
	default:
		return nil, fmt.Errorf("codec: unknown codec %q", name)
	}
}

type bytesCodec struct{}

func (bytesCodec) Marshal(v any) ([]byte, error) {
	switch b := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	default:
		return nil, fmt.Errorf("codec: bytes codec cannot encode %T", v)
	}
}

func (bytesCodec) Unmarshal(data []byte, v any) error {
	p, ok := v.(*[]byte)
	if !ok {
		return fmt.Errorf("codec: bytes codec needs *[]byte, got %T", v)
	}
	*p = append((*p)[:0], data...)
	return nil
}

type stringCodec struct{}

func (stringCodec) Marshal(v any) ([]byte, error) {
	switch s := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []byte(s), nil
	case []byte:
		return s, nil
	default:
		return nil, fmt.Errorf("codec: string codec cannot encode %T", v)
	}
}

func (stringCodec) Unmarshal(data []byte, v any) error {
	p, ok := v.(*string)
	if !ok {
		return fmt.Errorf("codec: string codec needs *string, got %T", v)
	}
	*p = string(data)
	return nil
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
