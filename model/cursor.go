package model

import (
	"strconv"
	"strings"

	"github.com/intelligentplant/appstoreconnect-adapters-core/errs"
)

// CursorPosition is a totally ordered position within an event store: a
// primary key (event-time ticks) and a secondary tiebreaker (a
// monotonically increasing sequence number assigned at write time).
//
// Two CursorPositions compare lexicographically on (Primary, Secondary).
type CursorPosition struct {
	Primary   int64
	Secondary int64
}

// Compare returns -1, 0, or 1 as c orders before, equal to, or after o.
func (c CursorPosition) Compare(o CursorPosition) int {
	if c.Primary != o.Primary {
		if c.Primary < o.Primary {
			return -1
		}
		return 1
	}
	switch {
	case c.Secondary < o.Secondary:
		return -1
	case c.Secondary > o.Secondary:
		return 1
	default:
		return 0
	}
}

// Less reports whether c orders strictly before o. It exists so
// CursorPosition can back a btree.Item without every caller needing to
// know the sign convention of Compare.
func (c CursorPosition) Less(o CursorPosition) bool {
	return c.Compare(o) < 0
}

// String formats c as "<primary>|<secondary>", the bit-exact wire form
// specified for cursors.
func (c CursorPosition) String() string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(c.Primary, 10))
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(c.Secondary, 10))
	return b.String()
}

// ParseCursorPosition parses the bit-exact "<primary>|<secondary>" form.
// It rejects any string that does not contain exactly one '|' or where
// either side fails base-10 int64 parsing.
func ParseCursorPosition(s string) (CursorPosition, error) {
	parts := strings.Split(s, "|")
	if len(parts) != 2 {
		return CursorPosition{}, errs.B().Code(errs.InvalidArgument).
			Msgf("cursor %q must have exactly one '|' separator", s).Err()
	}
	primary, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return CursorPosition{}, errs.B().Code(errs.InvalidArgument).
			Cause(err).Msgf("cursor %q has invalid primary component", s).Err()
	}
	secondary, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return CursorPosition{}, errs.B().Code(errs.InvalidArgument).
			Cause(err).Msgf("cursor %q has invalid secondary component", s).Err()
	}
	return CursorPosition{Primary: primary, Secondary: secondary}, nil
}

// TryParseCursorPosition is the "not found rather than an error" variant
// used by cursor-based reads: a malformed cursor is treated exactly like
// a cursor that used to exist but was evicted, yielding the empty
// sequence rather than a failure.
func TryParseCursorPosition(s string) (CursorPosition, bool) {
	c, err := ParseCursorPosition(s)
	if err != nil {
		return CursorPosition{}, false
	}
	return c, true
}
