package errs

import (
	"errors"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestBuilderProducesCodeAndMessage(t *testing.T) {
	c := qt.New(t)
	err := B().Code(InvalidArgument).Msg("bad request").Err()
	c.Assert(GetCode(err), qt.Equals, InvalidArgument)
	c.Assert(err.Error(), qt.Equals, "invalid_argument: bad request")
}

func TestBuilderCauseInheritsCodeWhenUnset(t *testing.T) {
	c := qt.New(t)
	inner := B().Code(Disposed).Msg("inner failure").Err()
	outer := B().Cause(inner).Msg("outer context").Err()
	c.Assert(GetCode(outer), qt.Equals, Disposed)
}

func TestBuilderExplicitCodeOverridesCause(t *testing.T) {
	c := qt.New(t)
	inner := B().Code(Disposed).Msg("inner failure").Err()
	outer := B().Code(Cancelled).Cause(inner).Msg("outer context").Err()
	c.Assert(GetCode(outer), qt.Equals, Cancelled)
}

func TestIsMatchesCode(t *testing.T) {
	c := qt.New(t)
	err := B().Code(TooManySubscriptions).Msg("too many").Err()
	c.Assert(Is(err, TooManySubscriptions), qt.IsTrue)
	c.Assert(Is(err, Cancelled), qt.IsFalse)
}

func TestGetCodeOnForeignErrorIsUnknown(t *testing.T) {
	c := qt.New(t)
	c.Assert(GetCode(errors.New("plain error")), qt.Equals, Unknown)
	c.Assert(GetCode(nil), qt.Equals, OK)
}

func TestWrapPreservesCodeOfExistingError(t *testing.T) {
	c := qt.New(t)
	original := B().Code(UpstreamHookFailure).Msg("hook failed").Err()
	wrapped := Wrap(original, "additional context")
	c.Assert(GetCode(wrapped), qt.Equals, UpstreamHookFailure)
}

func TestWrapNilReturnsNil(t *testing.T) {
	c := qt.New(t)
	c.Assert(Wrap(nil, "whatever"), qt.IsNil)
}

func TestWrapCodeSetsCodeRegardlessOfCause(t *testing.T) {
	c := qt.New(t)
	original := B().Code(UpstreamHookFailure).Msg("hook failed").Err()
	wrapped := WrapCode(original, DispatchFailure, "redelivered as dispatch failure")
	c.Assert(GetCode(wrapped), qt.Equals, DispatchFailure)
}

func TestConvertIsIdempotentOnErrorType(t *testing.T) {
	c := qt.New(t)
	original := B().Code(CalculatorFailure).Msg("bucket failed").Err()
	c.Assert(Convert(original), qt.Equals, original)
	c.Assert(GetCode(Convert(errors.New("plain"))), qt.Equals, Unknown)
}

func TestMetaMergePanicsOnOddPairs(t *testing.T) {
	c := qt.New(t)
	c.Assert(func() { B().Meta("onlyKey").Err() }, qt.PanicMatches, "errs: got uneven number of metadata key-values")
}

func TestErrorMarshalJSONIncludesCodeAndMessage(t *testing.T) {
	c := qt.New(t)
	err := B().Code(InvalidArgument).Msg("bad tag id").Meta("tagId", "tag1").Err().(*Error)
	data, jsonErr := err.MarshalJSON()
	c.Assert(jsonErr, qt.IsNil)
	c.Assert(string(data), qt.Contains, `"code":"invalid_argument"`)
	c.Assert(string(data), qt.Contains, `"message":"bad tag id"`)
	c.Assert(string(data), qt.Contains, `"tagId":"tag1"`)
}
