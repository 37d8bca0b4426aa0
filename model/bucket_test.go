package model

import (
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
)

func sampleAt(sec int64, status TagValueStatus) TagValueExtended {
	return TagValueExtended{UTCSampleTime: time.Unix(sec, 0).UTC(), Value: float64(sec), Status: status}
}

func TestBoundaryInfoUpdatePrefersBestQuality(t *testing.T) {
	c := qt.New(t)
	var b BoundaryInfo

	b.Update(sampleAt(1, StatusUncertain), StartBoundary)
	c.Assert(b.BestQualityValue.Status, qt.Equals, StatusUncertain)

	b.Update(sampleAt(2, StatusGood), StartBoundary)
	c.Assert(b.BestQualityValue.Status, qt.Equals, StatusGood)
	c.Assert(b.BestQualityValue.UTCSampleTime, qt.Equals, time.Unix(2, 0).UTC())
}

func TestBoundaryInfoStartIgnoresOlderThanBest(t *testing.T) {
	c := qt.New(t)
	var b BoundaryInfo
	b.Update(sampleAt(5, StatusGood), StartBoundary)
	b.Update(sampleAt(1, StatusGood), StartBoundary)
	c.Assert(b.BestQualityValue.UTCSampleTime, qt.Equals, time.Unix(5, 0).UTC())
}

func TestBoundaryInfoEndIgnoresNewerThanBest(t *testing.T) {
	c := qt.New(t)
	var b BoundaryInfo
	b.Update(sampleAt(1, StatusGood), EndBoundary)
	b.Update(sampleAt(5, StatusGood), EndBoundary)
	c.Assert(b.BestQualityValue.UTCSampleTime, qt.Equals, time.Unix(1, 0).UTC())
}

func TestDerivedStatusGoodOnlyWhenBestEqualsClosest(t *testing.T) {
	c := qt.New(t)
	var b BoundaryInfo
	c.Assert(b.DerivedStatus(), qt.Equals, StatusUncertain)

	b.Update(sampleAt(1, StatusGood), StartBoundary)
	c.Assert(b.DerivedStatus(), qt.Equals, StatusGood)

	b.Update(sampleAt(2, StatusUncertain), StartBoundary)
	c.Assert(b.DerivedStatus(), qt.Equals, StatusUncertain)
}

func TestTagValueBucketNextCarriesEndBoundaryForward(t *testing.T) {
	c := qt.New(t)
	b := &TagValueBucket{
		UTCBucketStart: time.Unix(0, 0).UTC(),
		UTCBucketEnd:   time.Unix(5, 0).UTC(),
		UTCQueryStart:  time.Unix(0, 0).UTC(),
		UTCQueryEnd:    time.Unix(10, 0).UTC(),
	}
	b.AddRawSample(sampleAt(1, StatusGood))

	next := b.Next(5 * time.Second)
	c.Assert(next.UTCBucketStart, qt.Equals, b.UTCBucketEnd)
	c.Assert(next.UTCBucketEnd, qt.Equals, time.Unix(10, 0).UTC())
	c.Assert(next.StartBoundary.BestQualityValue.UTCSampleTime, qt.Equals, time.Unix(1, 0).UTC())
}

func TestGoodSamplesFiltersByStatus(t *testing.T) {
	c := qt.New(t)
	b := &TagValueBucket{}
	b.AddRawSample(sampleAt(1, StatusGood))
	b.AddRawSample(sampleAt(2, StatusBad))
	b.AddRawSample(sampleAt(3, StatusGood))

	good := b.GoodSamples()
	c.Assert(good, qt.HasLen, 2)
}

func TestInQueryRangeOverlap(t *testing.T) {
	c := qt.New(t)
	b := &TagValueBucket{
		UTCBucketStart: time.Unix(10, 0).UTC(),
		UTCBucketEnd:   time.Unix(15, 0).UTC(),
		UTCQueryStart:  time.Unix(0, 0).UTC(),
		UTCQueryEnd:    time.Unix(10, 0).UTC(),
	}
	c.Assert(b.InQueryRange(), qt.IsTrue)

	b.UTCBucketStart = time.Unix(11, 0).UTC()
	c.Assert(b.InQueryRange(), qt.IsFalse)
}
