package model

import (
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestCursorFormatParseRoundTrip(t *testing.T) {
	c := qt.New(t)
	original := CursorPosition{Primary: 1700000000000000000, Secondary: 42}

	s := original.String()
	c.Assert(s, qt.Equals, "1700000000000000000|42")

	parsed, err := ParseCursorPosition(s)
	c.Assert(err, qt.IsNil)
	c.Assert(parsed, qt.Equals, original)
}

func TestParseCursorPositionRejectsMalformed(t *testing.T) {
	c := qt.New(t)
	for _, s := range []string{"", "no-separator", "1|2|3", "x|2", "1|y"} {
		_, err := ParseCursorPosition(s)
		c.Assert(err, qt.Not(qt.IsNil), qt.Commentf("input %q", s))
	}
}

func TestTryParseCursorPositionIsNotFoundNotError(t *testing.T) {
	c := qt.New(t)
	_, ok := TryParseCursorPosition("garbage")
	c.Assert(ok, qt.IsFalse)

	want := CursorPosition{Primary: 5, Secondary: 6}
	got, ok := TryParseCursorPosition(want.String())
	c.Assert(ok, qt.IsTrue)
	c.Assert(got, qt.Equals, want)
}

func TestCursorPositionOrdering(t *testing.T) {
	c := qt.New(t)
	a := CursorPosition{Primary: 1, Secondary: 9}
	b := CursorPosition{Primary: 1, Secondary: 10}
	d := CursorPosition{Primary: 2, Secondary: 0}

	c.Assert(a.Less(b), qt.IsTrue)
	c.Assert(b.Less(a), qt.IsFalse)
	c.Assert(b.Less(d), qt.IsTrue)
	c.Assert(a.Compare(a), qt.Equals, 0)
}
