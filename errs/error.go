// Package errs provides structured error handling for the adapter core.
//
// It uses a domain-specific error-kind table (InvalidArgument, Disposed,
// TooManySubscriptions, Cancelled, UpstreamHookFailure, DispatchFailure,
// CalculatorFailure, InputStreamFailure) rather than a generic RPC status
// set, since the core never sits behind a transport of its own.
package errs

import (
	"strings"

	"github.com/cockroachdb/errors"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.Config{
	EscapeHTML:  false,
	SortMapKeys: false,
}.Froze()

// Metadata holds arbitrary key-value pairs attached to an Error for
// diagnostic use. MarshalJSON includes it under "meta".
type Metadata map[string]interface{}

// Error is an error carrying a Code, a human message, and optional
// metadata, along with a captured stack trace via the underlying cause.
type Error struct {
	Code    Code
	Message string
	Meta    Metadata

	underlying error
}

// Wrap wraps err, attaching msg and optional metadata key-value pairs.
// If err is already an *Error its Code and Meta are carried over. If err
// is nil, Wrap returns nil.
func Wrap(err error, msg string, metaPairs ...interface{}) error {
	if err == nil {
		return nil
	}
	e := &Error{Code: Unknown, Message: msg, underlying: errors.WithStack(err)}
	if ee, ok := err.(*Error); ok {
		e.Code = ee.Code
		e.Meta = mergeMeta(ee.Meta, metaPairs)
	} else {
		e.Meta = mergeMeta(nil, metaPairs)
	}
	return e
}

// WrapCode is like Wrap but also sets the error code.
func WrapCode(err error, code Code, msg string, metaPairs ...interface{}) error {
	if err == nil {
		return nil
	}
	e := &Error{Code: code, Message: msg, underlying: errors.WithStack(err)}
	e.Meta = mergeMeta(nil, metaPairs)
	return e
}

// Convert converts any error into an *Error. If err is already an *Error
// it is returned unmodified; if err is nil, Convert returns nil.
func Convert(err error) error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	return &Error{Code: Unknown, underlying: errors.WithStack(err)}
}

// GetCode reports the Code carried by err, OK if err is nil, or Unknown
// if err is not an *Error.
func GetCode(err error) Code {
	if err == nil {
		return OK
	}
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return Unknown
}

// Is reports whether err is an *Error with the given code.
func Is(err error, code Code) bool {
	return GetCode(err) == code
}

func (e *Error) Error() string {
	return e.Code.String() + ": " + e.ErrorMessage()
}

// ErrorMessage joins this error's message with any underlying cause's
// message, colon-separated.
func (e *Error) ErrorMessage() string {
	if e.underlying == nil {
		return e.Message
	}
	var b strings.Builder
	b.WriteString(e.Message)
	if msg := e.underlying.Error(); msg != "" {
		if b.Len() > 0 {
			b.WriteString(": ")
		}
		b.WriteString(msg)
	}
	return b.String()
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.underlying
}

// MarshalJSON renders an adapter-facing view of the error: code,
// combined message, and metadata. It exists so callers that log errors
// as structured JSON (rather than through zerolog's Err()) get the same
// shape every time.
func (e *Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Code    string   `json:"code"`
		Message string   `json:"message"`
		Meta    Metadata `json:"meta,omitempty"`
	}{
		Code:    e.Code.String(),
		Message: e.ErrorMessage(),
		Meta:    e.Meta,
	})
}

func mergeMeta(md Metadata, pairs []interface{}) Metadata {
	n := len(pairs)
	if n%2 != 0 {
		panic("errs: got uneven number of metadata key-values")
	}
	if md == nil && n > 0 {
		md = make(Metadata, n/2)
	}
	for i := 0; i < n; i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			panic("errs: metadata key is not a string")
		}
		md[key] = pairs[i+1]
	}
	return md
}
