package errs

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Builder allows gradual construction of an *Error. The zero value is
// ready for use.
type Builder struct {
	code    Code
	codeSet bool

	msg  string
	meta []interface{}
	err  error
}

// B creates a new Builder.
func B() *Builder { return &Builder{} }

// Code sets the error code.
func (b *Builder) Code(c Code) *Builder {
	b.code = c
	b.codeSet = true
	return b
}

// Msg sets the error message.
func (b *Builder) Msg(msg string) *Builder {
	b.msg = msg
	return b
}

// Msgf is like Msg but formats with fmt.Sprintf.
func (b *Builder) Msgf(format string, args ...interface{}) *Builder {
	b.msg = fmt.Sprintf(format, args...)
	return b
}

// Meta appends metadata key-value pairs.
func (b *Builder) Meta(metaPairs ...interface{}) *Builder {
	b.meta = append(b.meta, metaPairs...)
	return b
}

// Cause sets the underlying cause. If cause is an *Error and Code has
// not been set, the cause's code is inherited.
func (b *Builder) Cause(err error) *Builder {
	b.err = err
	if e, ok := err.(*Error); ok && !b.codeSet {
		b.code = e.Code
		b.codeSet = true
	}
	return b
}

// Err builds the *Error. It never returns nil; if Code was not set it
// defaults to Unknown, and if Msg was not set it defaults to "unknown
// error" when there is no cause.
func (b *Builder) Err() error {
	code := b.code
	if !b.codeSet {
		code = Unknown
	}
	msg := b.msg
	if msg == "" && b.err == nil {
		msg = "unknown error"
	}
	e := &Error{Code: code, Message: msg, Meta: mergeMeta(nil, b.meta)}
	if b.err != nil {
		e.underlying = errors.WithStack(b.err)
	}
	return e
}
