package envelope

import (
	"encoding/json"
	"fmt"
)

// ErrorKind classifies a failed operation.
type ErrorKind string

// Error kinds.
const (
	NotSupported              ErrorKind = "NotSupported"
	ParsingError              ErrorKind = "ParsingError"
	IncorrectParameters       ErrorKind = "IncorrectParameters"
	ClientServerInconsistency ErrorKind = "ClientServerInconsistency"
	InternalFailure           ErrorKind = "InternalFailure"
)

// Error is the wire error value. NotSupported carries no detail.
type Error struct {
	Kind   ErrorKind
	Detail string
}

// Errorf builds an Error with a formatted detail.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// ErrNotSupported returns the NotSupported error value.
func ErrNotSupported() *Error {
	return &Error{Kind: NotSupported}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}

	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// MarshalJSON encodes NotSupported as a bare string and every other kind as
// {"Kind":"detail"}.
func (e Error) MarshalJSON() ([]byte, error) {
	if e.Kind == NotSupported {
		return json.Marshal(string(NotSupported))
	}

	return json.Marshal(map[string]string{string(e.Kind): e.Detail})
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Error) UnmarshalJSON(data []byte) error {
	var bare string
	if err := json.Unmarshal(data, &bare); err == nil {
		*e = Error{Kind: ErrorKind(bare)}
		return nil
	}

	var tagged map[string]string
	if err := json.Unmarshal(data, &tagged); err != nil || len(tagged) != 1 {
		return fmt.Errorf("%w: error value", ErrMalformed)
	}

	for k, v := range tagged {
		*e = Error{Kind: ErrorKind(k), Detail: v}
	}

	return nil
}

// Unit is the empty success value.
type Unit struct{}

// Result is a success value or an Error, encoded as {"Ok":v} or {"Err":e}.
type Result[T any] struct {
	Value T
	Err   *Error
}

// Ok wraps a success value.
func Ok[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

// Fail wraps an error.
func Fail[T any](err *Error) Result[T] {
	return Result[T]{Err: err}
}

// MarshalJSON implements json.Marshaler.
func (r Result[T]) MarshalJSON() ([]byte, error) {
	if r.Err != nil {
		return json.Marshal(map[string]*Error{"Err": r.Err})
	}

	return json.Marshal(map[string]T{"Ok": r.Value})
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Result[T]) UnmarshalJSON(data []byte) error {
	var wire struct {
		Ok  *json.RawMessage `json:"Ok"`
		Err *Error           `json:"Err"`
	}

	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	switch {
	case wire.Err != nil:
		*r = Result[T]{Err: wire.Err}
	case wire.Ok != nil:
		var v T
		if err := json.Unmarshal(*wire.Ok, &v); err != nil {
			return err
		}

		*r = Result[T]{Value: v}
	default:
		return fmt.Errorf("%w: result needs Ok or Err", ErrMalformed)
	}

	return nil
}
