package model

import "time"

// BoundaryInfo carries the most relevant raw sample immediately outside
// a bucket edge, so aggregates that need context across the boundary
// (interpolation chief among them) can see past it.
//
// BestQualityValue and ClosestValue may independently be nil; Update
// maintains both under a symmetric rule so either edge of a bucket can
// report its best-quality and its nearest-in-time sample.
type BoundaryInfo struct {
	BestQualityValue *TagValueExtended
	ClosestValue     *TagValueExtended
}

// boundaryKind distinguishes a start boundary (values older than the
// bucket matter more the newer they are) from an end boundary (values
// newer than the bucket matter more the older they are).
type boundaryKind int

const (
	StartBoundary boundaryKind = iota
	EndBoundary
)

// Update applies the symmetric boundary-update rule for a candidate
// sample v arriving at a boundary of the given kind.
func (b *BoundaryInfo) Update(v TagValueExtended, kind boundaryKind) {
	if b.BestQualityValue == nil {
		cp := v
		b.BestQualityValue = &cp
		cp2 := v
		b.ClosestValue = &cp2
		return
	}

	// For a start boundary, ignore v if it's older than the current
	// best-quality value; for an end boundary, ignore if newer. "Older"/
	// "newer" here is relative to which edge we're tracking: a start
	// boundary wants to converge on the most recent pre-bucket sample,
	// an end boundary wants to converge on the earliest post-bucket
	// sample, so moving away from the bucket edge never improves
	// closeness.
	if kind == StartBoundary && v.UTCSampleTime.Before(b.BestQualityValue.UTCSampleTime) {
		return
	}
	if kind == EndBoundary && v.UTCSampleTime.After(b.BestQualityValue.UTCSampleTime) {
		return
	}

	if v.Status >= b.BestQualityValue.Status {
		cp := v
		b.BestQualityValue = &cp
		cp2 := v
		b.ClosestValue = &cp2
		return
	}
	cp := v
	b.ClosestValue = &cp
}

// DerivedStatus reports Good when BestQualityValue and ClosestValue are
// the same sample, Uncertain otherwise (including when both are nil).
func (b BoundaryInfo) DerivedStatus() TagValueStatus {
	if b.BestQualityValue == nil || b.ClosestValue == nil {
		return StatusUncertain
	}
	if b.BestQualityValue.UTCSampleTime.Equal(b.ClosestValue.UTCSampleTime) &&
		b.BestQualityValue.Status == b.ClosestValue.Status {
		return StatusGood
	}
	return StatusUncertain
}

// TagValueBucket is a fixed-width, half-open time interval of raw
// samples plus the boundary context needed to evaluate aggregates that
// reach across bucket edges.
//
// Invariant: every sample in RawSamples satisfies
// UTCBucketStart <= t < UTCBucketEnd; UTCBucketEnd - UTCBucketStart
// equals the aggregation request's sample interval.
type TagValueBucket struct {
	UTCBucketStart time.Time
	UTCBucketEnd   time.Time
	UTCQueryStart  time.Time
	UTCQueryEnd    time.Time

	RawSamples []TagValueExtended

	StartBoundary BoundaryInfo
	EndBoundary   BoundaryInfo
}

// AddRawSample appends v to the bucket and updates the end boundary,
// per the bucketizer's "add to rawSamples; also update endBoundary"
// rule.
func (b *TagValueBucket) AddRawSample(v TagValueExtended) {
	b.RawSamples = append(b.RawSamples, v)
	b.EndBoundary.Update(v, EndBoundary)
}

// GoodSamples returns the subset of RawSamples with StatusGood.
func (b *TagValueBucket) GoodSamples() []TagValueExtended {
	out := make([]TagValueExtended, 0, len(b.RawSamples))
	for _, s := range b.RawSamples {
		if s.Status == StatusGood {
			out = append(out, s)
		}
	}
	return out
}

// InQueryRange reports whether the bucket overlaps [UTCQueryStart, UTCQueryEnd].
func (b *TagValueBucket) InQueryRange() bool {
	return !b.UTCBucketStart.After(b.UTCQueryEnd) && !b.UTCBucketEnd.Before(b.UTCQueryStart)
}

// Next allocates the bucket immediately following b, carrying b's end
// boundary forward as the new bucket's start boundary.
func (b *TagValueBucket) Next(interval time.Duration) *TagValueBucket {
	return &TagValueBucket{
		UTCBucketStart: b.UTCBucketEnd,
		UTCBucketEnd:   b.UTCBucketEnd.Add(interval),
		UTCQueryStart:  b.UTCQueryStart,
		UTCQueryEnd:    b.UTCQueryEnd,
		StartBoundary:  b.EndBoundary,
	}
}
