package schedule

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedOffset    = errors.New("malformed gmt offset")
	ErrMissingField       = errors.New("missing field")
	ErrMalformedTimestamp = errors.New("malformed timestamp")
	ErrMalformedDocument  = errors.New("malformed schedule document")
)

// OffsetError reports an offset string that could not be parsed.
type OffsetError struct {
	Value string
	Err   error
}

func (e *OffsetError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v %q: %v", ErrMalformedOffset, e.Value, e.Err)
	}
	return fmt.Sprintf("%v %q", ErrMalformedOffset, e.Value)
}

func (e *OffsetError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrMalformedOffset}
	}
	return []error{ErrMalformedOffset, e.Err}
}

// FieldError reports an absent field, or an absent index within a field.
// Index is -1 when the whole field is missing from the document.
type FieldError struct {
	Field string
	Index int
}

func (e *FieldError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%v %q", ErrMissingField, e.Field)
	}
	return fmt.Sprintf("%v %s[%d]", ErrMissingField, e.Field, e.Index)
}

func (e *FieldError) Unwrap() error { return ErrMissingField }

// TimestampError reports a session date that is not a naive ISO-8601 timestamp.
type TimestampError struct {
	Value string
	Err   error
}

func (e *TimestampError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v %q: %v", ErrMalformedTimestamp, e.Value, e.Err)
	}
	return fmt.Sprintf("%v %q", ErrMalformedTimestamp, e.Value)
}

func (e *TimestampError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrMalformedTimestamp}
	}
	return []error{ErrMalformedTimestamp, e.Err}
}

// RoundError ties a failure to the round index it happened in.
type RoundError struct {
	Index int
	Err   error
}

func (e *RoundError) Error() string {
	return fmt.Sprintf("round %d: %v", e.Index, e.Err)
}

func (e *RoundError) Unwrap() error { return e.Err }
