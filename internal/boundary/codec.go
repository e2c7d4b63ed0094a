// Package boundary implements the serialization guard for values crossing
// between host code and the document scripting environment.
//
// Every crossing is JSON text. The guard's contract is that a crossing
// failure never propagates to the caller as an error or panic: encode
// failures become a serialized error envelope, decode failures become an
// empty map, and both are reported through a side channel so the host can
// still observe them.
package boundary

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

// EncodeError reports a value that could not be represented as JSON, such as
// a cyclic structure, a non-finite number, or a non-JSON Go type.
type EncodeError struct {
	Cause error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("boundary encode: %v", e.Cause)
}

func (e *EncodeError) Unwrap() error { return e.Cause }

// DecodeError reports malformed input arriving from the far side of the
// boundary.
type DecodeError struct {
	Cause error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("boundary decode: %v", e.Cause)
}

func (e *DecodeError) Unwrap() error { return e.Cause }

// Guard encodes and decodes boundary-crossing values. The zero value is not
// usable; construct with NewGuard.
type Guard struct {
	sink func(error)
}

// NewGuard returns a Guard that reports crossing failures to sink. A nil sink
// falls back to logging via slog.
func NewGuard(sink func(error)) *Guard {
	if sink == nil {
		sink = func(err error) {
			slog.Warn("boundary crossing failure", "error", err)
		}
	}
	return &Guard{sink: sink}
}

// Encode serializes v to a JSON string. It never fails observably: if v is
// not JSON-representable the returned string is the error envelope
// {"error": "<message>"} and the failure is reported through the sink.
//
// Cycles, NaN/Inf, and non-JSON types (channels, funcs, complex numbers) are
// all rejected by the underlying codec and converted to the envelope here.
func (g *Guard) Encode(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		ee := &EncodeError{Cause: err}
		g.sink(ee)
		return errorEnvelope(ee.Error())
	}
	return string(b)
}

// Decode parses a JSON object from s. Malformed input, or valid JSON that is
// not an object, yields an empty map and a report through the sink. It never
// returns an error to the invoker.
func (g *Guard) Decode(s string) map[string]any {
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		g.sink(&DecodeError{Cause: err})
		return map[string]any{}
	}
	if m == nil {
		// "null" unmarshals to a nil map; normalize to empty.
		return map[string]any{}
	}
	return m
}

// DecodeValue parses any JSON value from s, returning the error instead of
// smoothing it over. It exists for callers on the host side of the boundary
// (and tests) that want strict behavior.
func (g *Guard) DecodeValue(s string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, &DecodeError{Cause: err}
	}
	return v, nil
}

// errorEnvelope builds the {"error": ...} envelope. Marshaling a
// map[string]string cannot fail, so this is safe to call from Encode's
// failure path.
func errorEnvelope(message string) string {
	b, _ := json.Marshal(map[string]string{"error": message})
	return string(b)
}
