// Package serialize implements the safe JSON serialization rules applied
// to every value crossing the Tool Bridge boundary in either direction.
package serialize

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	enclave "github.com/jonwraymond/enclavejs"
)

// DefaultMaxToolResultBytes is maxToolResultBytes' default.
const DefaultMaxToolResultBytes = 5 * 1024 * 1024

var (
	// ErrCyclic is returned when a value contains a reference cycle.
	ErrCyclic = errors.New("serialize: cyclic reference")

	// ErrNotSerializable is returned for values with no JSON representation
	// (functions, symbols, channels, etc).
	ErrNotSerializable = errors.New("serialize: value is not JSON-representable")

	// ErrTooLarge is returned by CapSize when the serialized form exceeds
	// the configured byte limit.
	ErrTooLarge = errors.New("serialize: result exceeds maximum size")
)

// RefToken is the opaque pass-by-reference placeholder substituted for a
// value too large (or too sensitive) to hand to runtime code directly.
type RefToken struct {
	Ref refTokenBody `json:"$ref"`
}

type refTokenBody struct {
	ID enclave.RefID `json:"id"`
}

// NewRefToken mints a fresh RefToken.
func NewRefToken() RefToken {
	return RefToken{Ref: refTokenBody{ID: enclave.NewRefID()}}
}

// Sanitize recursively copies v, stripping any own-property whose key is
// "__proto__" or begins with "__", rejecting values with no JSON
// representation, and rejecting reference cycles. It does not enforce a
// size cap; use CapSize for that after sanitizing.
func Sanitize(v any) (any, error) {
	return sanitize(v, map[uintptr]bool{})
}

func sanitize(v any, seen map[uintptr]bool) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case bool, string, float64, float32,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return val, nil
	case map[string]interface{}:
		return sanitizeMap(val, seen)
	case []interface{}:
		return sanitizeSlice(val, seen)
	default:
		return nil, fmt.Errorf("%w: %T", ErrNotSerializable, v)
	}
}

func sanitizeMap(m map[string]interface{}, seen map[uintptr]bool) (any, error) {
	ptr := reflect.ValueOf(m).Pointer()
	if seen[ptr] {
		return nil, ErrCyclic
	}
	seen[ptr] = true
	defer delete(seen, ptr)

	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		if k == "__proto__" || strings.HasPrefix(k, "__") {
			continue
		}
		if v == nil {
			// A JSON object can't carry "undefined"; an explicit JS
			// undefined exported by goja surfaces as a Go nil here and
			// is simply omitted, matching JSON.stringify's own behavior.
			continue
		}
		sv, err := sanitize(v, seen)
		if err != nil {
			return nil, err
		}
		out[k] = sv
	}
	return out, nil
}

func sanitizeSlice(s []interface{}, seen map[uintptr]bool) (any, error) {
	if len(s) > 0 {
		ptr := reflect.ValueOf(s).Pointer()
		if seen[ptr] {
			return nil, ErrCyclic
		}
		seen[ptr] = true
		defer delete(seen, ptr)
	}

	out := make([]interface{}, len(s))
	for i, v := range s {
		sv, err := sanitize(v, seen)
		if err != nil {
			return nil, err
		}
		out[i] = sv
	}
	return out, nil
}

// CapSize marshals v and returns an error wrapping ErrTooLarge if the
// result exceeds maxBytes. maxBytes <= 0 selects DefaultMaxToolResultBytes.
func CapSize(v any, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxToolResultBytes
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotSerializable, err)
	}
	if int64(len(b)) > maxBytes {
		return nil, fmt.Errorf("%w: %d bytes > %d", ErrTooLarge, len(b), maxBytes)
	}
	return b, nil
}

// SanitizeOrRef sanitizes v and, if the result overflows maxBytes,
// substitutes a fresh RefToken instead of failing the call — the broker's
// discretion point named in §4.5's last sentence.
func SanitizeOrRef(v any, maxBytes int64) (any, error) {
	clean, err := Sanitize(v)
	if err != nil {
		return nil, err
	}
	if _, err := CapSize(clean, maxBytes); err != nil {
		if errors.Is(err, ErrTooLarge) {
			return NewRefToken(), nil
		}
		return nil, err
	}
	return clean, nil
}
