package model

import (
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
)

func TestNumericValueAcceptsAllNumericKinds(t *testing.T) {
	c := qt.New(t)
	cases := []interface{}{float64(1), float32(1), int(1), int64(1)}
	for _, v := range cases {
		n, ok := TagValueExtended{Value: v}.NumericValue()
		c.Assert(ok, qt.IsTrue, qt.Commentf("value %#v", v))
		c.Assert(n, qt.Equals, float64(1))
	}
}

func TestNumericValueRejectsNonNumeric(t *testing.T) {
	c := qt.New(t)
	_, ok := TagValueExtended{Value: "not a number"}.NumericValue()
	c.Assert(ok, qt.IsFalse)

	_, ok = TagValueExtended{}.NumericValue()
	c.Assert(ok, qt.IsFalse)
}

func TestWithPropertyCopiesRatherThanMutates(t *testing.T) {
	c := qt.New(t)
	original := TagValueExtended{Properties: map[string]string{"a": "1"}}
	updated := original.WithProperty("b", "2")

	c.Assert(original.Properties, qt.HasLen, 1)
	c.Assert(updated.Properties, qt.HasLen, 2)
	c.Assert(updated.Properties["a"], qt.Equals, "1")
	c.Assert(updated.Properties["b"], qt.Equals, "2")
}

func TestErrorValueIsBadStatus(t *testing.T) {
	c := qt.New(t)
	when := time.Unix(100, 0).UTC()
	v := ErrorValue(when, "degC", "no good data")

	c.Assert(v.Status, qt.Equals, StatusBad)
	c.Assert(v.UTCSampleTime, qt.Equals, when)
	c.Assert(v.Units, qt.Equals, "degC")
	c.Assert(v.Error, qt.Equals, "no good data")
}

func TestTagValueStatusString(t *testing.T) {
	c := qt.New(t)
	c.Assert(StatusGood.String(), qt.Equals, "Good")
	c.Assert(StatusBad.String(), qt.Equals, "Bad")
	c.Assert(StatusUncertain.String(), qt.Equals, "Uncertain")
	c.Assert(TagValueStatus(99).String(), qt.Equals, "Unknown")
}
