// Package features defines the fixed, ordered set of numeric inputs shared by
// the training pipeline and the serving layer.
//
// Models are fit on plain float slices and have no notion of field names, so
// every caller must go through Vector to get the canonical column order.
package features

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
)

// Count is the number of input features every model version expects.
const Count = 10

// Names lists the features in the order the models were trained on.
var Names = [Count]string{"age", "sex", "bmi", "bp", "s1", "s2", "s3", "s4", "s5", "s6"}

// ErrInvalidInput classifies a feature vector that violates the contract.
var ErrInvalidInput = errors.New("invalid input")

// FieldError reports the field responsible for an invalid input.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid input: field %q %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is match ErrInvalidInput.
func (e *FieldError) Unwrap() error { return ErrInvalidInput }

// Vector holds one observation in canonical order.
type Vector [Count]float64

// Validate checks that every value is finite.
func (v Vector) Validate() error {
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return &FieldError{Field: Names[i], Reason: "must be finite"}
		}
	}
	return nil
}

// Slice returns a copy of the vector as a slice.
func (v Vector) Slice() []float64 {
	out := make([]float64, Count)
	copy(out, v[:])
	return out
}

// FromSlice builds a vector from a row already in canonical order.
func FromSlice(row []float64) (Vector, error) {
	var v Vector
	if len(row) != Count {
		return v, fmt.Errorf("%w: expected %d values, got %d", ErrInvalidInput, Count, len(row))
	}
	copy(v[:], row)
	return v, v.Validate()
}

// Request is the wire form of a prediction request. Pointer fields let us
// tell a missing field apart from an explicit zero.
type Request struct {
	Age *float64 `json:"age"`
	Sex *float64 `json:"sex"`
	BMI *float64 `json:"bmi"`
	BP  *float64 `json:"bp"`
	S1  *float64 `json:"s1"`
	S2  *float64 `json:"s2"`
	S3  *float64 `json:"s3"`
	S4  *float64 `json:"s4"`
	S5  *float64 `json:"s5"`
	S6  *float64 `json:"s6"`
}

// fields returns the request fields in canonical order.
func (r *Request) fields() [Count]*float64 {
	return [Count]*float64{r.Age, r.Sex, r.BMI, r.BP, r.S1, r.S2, r.S3, r.S4, r.S5, r.S6}
}

// Vector converts the request to canonical order, rejecting missing and
// non-finite fields.
func (r *Request) Vector() (Vector, error) {
	var v Vector
	for i, f := range r.fields() {
		if f == nil {
			return v, &FieldError{Field: Names[i], Reason: "is required"}
		}
		v[i] = *f
	}
	return v, v.Validate()
}

// NewRequest is the inverse of Request.Vector, used by clients and tests.
func NewRequest(v Vector) Request {
	p := func(i int) *float64 { x := v[i]; return &x }
	return Request{
		Age: p(0), Sex: p(1), BMI: p(2), BP: p(3),
		S1: p(4), S2: p(5), S3: p(6), S4: p(7), S5: p(8), S6: p(9),
	}
}

// DecodeRequest reads a JSON object carrying exactly the contract fields.
// Every failure wraps ErrInvalidInput; JSON syntax errors are additionally
// reachable with errors.As(*json.SyntaxError).
func DecodeRequest(rd io.Reader) (Vector, error) {
	dec := json.NewDecoder(rd)
	dec.DisallowUnknownFields()
	var req Request
	if err := dec.Decode(&req); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return Vector{}, &FieldError{Field: typeErr.Field, Reason: "must be a number"}
		}
		return Vector{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if dec.More() {
		return Vector{}, fmt.Errorf("%w: trailing data after JSON object", ErrInvalidInput)
	}
	return req.Vector()
}

// DecodeBytes is DecodeRequest over an in-memory payload.
func DecodeBytes(b []byte) (Vector, error) {
	return DecodeRequest(bytes.NewReader(b))
}

// FromMap converts a decoded object (for example a protobuf Struct) into a
// vector. Unknown keys and non-numeric values are rejected.
func FromMap(m map[string]interface{}) (Vector, error) {
	var v Vector
	index := make(map[string]int, Count)
	for i, name := range Names {
		index[name] = i
	}
	for k := range m {
		if _, ok := index[k]; !ok {
			return v, &FieldError{Field: k, Reason: "is not a known feature"}
		}
	}
	for i, name := range Names {
		raw, ok := m[name]
		if !ok || raw == nil {
			return v, &FieldError{Field: name, Reason: "is required"}
		}
		x, ok := raw.(float64)
		if !ok {
			return v, &FieldError{Field: name, Reason: "must be a number"}
		}
		v[i] = x
	}
	return v, v.Validate()
}

// CheckNames reports whether names matches the contract exactly, including order.
func CheckNames(names []string) error {
	if len(names) != Count {
		return fmt.Errorf("expected %d features, got %d", Count, len(names))
	}
	for i, n := range names {
		if n != Names[i] {
			return fmt.Errorf("feature %d is %q, expected %q", i, n, Names[i])
		}
	}
	return nil
}

// NameList returns the contract names as a fresh slice.
func NameList() []string {
	out := make([]string, Count)
	copy(out, Names[:])
	return out
}
