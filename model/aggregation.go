package model

import "time"

// RawSample is one input element to the aggregation pipeline: a single
// tag's value at a point in time.
type RawSample struct {
	TagID string
	Value TagValueExtended
}

// AggregateResult is one output element of the aggregation pipeline: the
// value a single data function produced for a single tag's bucket.
type AggregateResult struct {
	TagID      string
	FunctionID string
	Value      TagValueExtended
}

// DataFunctionDescriptor identifies a data function for lookup: by its
// canonical id, its display name, or any alias, all matched
// case-insensitively.
type DataFunctionDescriptor struct {
	ID          string
	DisplayName string
	Aliases     []string
}

// AggregateRequest describes one aggregation call: the tags involved,
// the data functions requested (by id, display name, or alias), the
// query time range, and the bucket width.
type AggregateRequest struct {
	Tags         []TagSummary
	FunctionIDs  []string
	UTCStartTime time.Time
	UTCEndTime   time.Time
	SampleInterval time.Duration
}
