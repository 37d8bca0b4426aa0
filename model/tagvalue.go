package model

import "time"

// TagValueStatus is the quality of a single sample.
type TagValueStatus int

const (
	StatusBad TagValueStatus = iota
	StatusUncertain
	StatusGood
)

func (s TagValueStatus) String() string {
	switch s {
	case StatusBad:
		return "Bad"
	case StatusUncertain:
		return "Uncertain"
	case StatusGood:
		return "Good"
	default:
		return "Unknown"
	}
}

// TagValueExtended is a single timestamped sample, used for both raw
// input and aggregated output. Value may hold a float64, a string, or
// nil; it is the calculator's job to interpret it for its own tag's
// data type.
type TagValueExtended struct {
	UTCSampleTime time.Time
	Value         interface{}
	Status        TagValueStatus
	Units         string
	Notes         string
	Error         string
	Properties    map[string]string
}

// NumericValue returns v's Value as a float64 and true, or (0, false) if
// Value is not numeric.
func (v TagValueExtended) NumericValue() (float64, bool) {
	switch n := v.Value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// WithProperty returns a copy of v with the given property set.
func (v TagValueExtended) WithProperty(name, value string) TagValueExtended {
	c := v
	c.Properties = make(map[string]string, len(v.Properties)+1)
	for k, val := range v.Properties {
		c.Properties[k] = val
	}
	c.Properties[name] = value
	return c
}

// ErrorValue builds a Bad-status TagValueExtended carrying an error
// message, used by calculators that cannot produce a usable result for
// a bucket (NoGoodData and similar).
func ErrorValue(t time.Time, units, errMsg string) TagValueExtended {
	return TagValueExtended{
		UTCSampleTime: t,
		Status:        StatusBad,
		Units:         units,
		Error:         errMsg,
	}
}
