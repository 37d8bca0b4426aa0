package aggregation

import (
	"time"

	"github.com/intelligentplant/appstoreconnect-adapters-core/model"
)

// buildBuckets runs the single-tag bucketizer algorithm over an ordered
// sequence of raw samples (assumed already sorted by UTCSampleTime,
// since that is how a single tag's values arrive from a historian). It
// returns exactly ceil((utcEndTime-utcStartTime)/interval) buckets
// covering the half-open range [utcStartTime, utcEndTime), finalized in
// order, plus a flat copy of every sample seen (including the ones that
// only ever fed a boundary or arrived at or after utcEndTime) for
// calculators that need to see past a single bucket's own edges.
func buildBuckets(utcStartTime, utcEndTime time.Time, interval time.Duration, samples []model.TagValueExtended) ([]*model.TagValueBucket, []model.TagValueExtended) {
	var finalized []*model.TagValueBucket
	timeline := make([]model.TagValueExtended, 0, len(samples))

	current := &model.TagValueBucket{
		UTCBucketStart: utcStartTime,
		UTCBucketEnd:   utcStartTime.Add(interval),
		UTCQueryStart:  utcStartTime,
		UTCQueryEnd:    utcEndTime,
	}

	for _, v := range samples {
		timeline = append(timeline, v)

		if v.UTCSampleTime.Before(current.UTCBucketStart) {
			current.StartBoundary.Update(v, model.StartBoundary)
			continue
		}

		for !v.UTCSampleTime.Before(current.UTCBucketEnd) {
			appendBucket(&finalized, current, utcEndTime)
			current = current.Next(interval)
		}

		if !v.UTCSampleTime.After(utcEndTime) {
			current.AddRawSample(v)
		}
	}

	appendBucket(&finalized, current, utcEndTime)
	for current.UTCBucketEnd.Before(utcEndTime) {
		current = current.Next(interval)
		appendBucket(&finalized, current, utcEndTime)
	}

	return finalized, timeline
}

// appendBucket adds b to *finalized only if it starts strictly before
// utcEndTime. A trailing sample exactly at utcEndTime still rolls the
// bucketizer's cursor forward to a bucket starting at utcEndTime (so the
// boundary-carry chain and the global timeline both see it), but that
// bucket covers no part of [utcStartTime, utcEndTime) and must not be
// handed to every calculator: the general bucket count is
// ceil((utcEndTime-utcStartTime)/interval), exactly covering the
// half-open query range. Interpolate's need to report a value exactly
// at utcEndTime is served by the global timeline, not by this bucket.
func appendBucket(finalized *[]*model.TagValueBucket, b *model.TagValueBucket, utcEndTime time.Time) {
	if b.UTCBucketStart.Before(utcEndTime) {
		*finalized = append(*finalized, b)
	}
}
