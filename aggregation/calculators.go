package aggregation

import (
	"math"
	"strconv"
	"time"

	"github.com/intelligentplant/appstoreconnect-adapters-core/model"
)

// Calculator evaluates one data function over a single tag's bucket,
// yielding zero or more timestamped values. timeline is the tag's full
// ordered raw-sample sequence for the query, used by calculators (only
// Interpolate, among the built-ins) that need to see past this bucket's
// own edges; every other calculator only reads bucket.
type Calculator func(tagInfo model.TagSummary, bucket *model.TagValueBucket, timeline []model.TagValueExtended) []model.TagValueExtended

const poweredByProperty = "X-Powered-By"

// poweredBy is the process-wide constant identifying this engine,
// attached to every emitted aggregate value.
const poweredBy = "appstoreconnect-adapters-core/aggregation"

func stamp(v model.TagValueExtended) model.TagValueExtended {
	return v.WithProperty(poweredByProperty, poweredBy)
}

func noGoodData(b model.TagValueBucket, units string) model.TagValueExtended {
	return stamp(model.ErrorValue(b.UTCBucketStart, units, "NoGoodData"))
}

func numericValue(v model.TagValueExtended) float64 {
	n, _ := v.NumericValue()
	return n
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// nearestBracket returns the last timeline entry at or before t and the
// first timeline entry at or after t. timeline is assumed ordered by
// UTCSampleTime ascending, which holds since it is built in arrival
// order from a time-ordered raw input sequence.
func nearestBracket(t time.Time, timeline []model.TagValueExtended) (before, after *model.TagValueExtended) {
	for i := range timeline {
		s := &timeline[i]
		if !s.UTCSampleTime.After(t) {
			before = s
		}
		if !s.UTCSampleTime.Before(t) && after == nil {
			after = s
		}
	}
	return before, after
}

func interpolateAt(t time.Time, units string, timeline []model.TagValueExtended) model.TagValueExtended {
	before, after := nearestBracket(t, timeline)

	switch {
	case before != nil && before.UTCSampleTime.Equal(t):
		v := *before
		v.UTCSampleTime = t
		return stamp(v)
	case before != nil && after != nil:
		span := after.UTCSampleTime.Sub(before.UTCSampleTime)
		frac := t.Sub(before.UTCSampleTime).Seconds() / span.Seconds()
		bv, bok := before.NumericValue()
		av, aok := after.NumericValue()
		if !bok || !aok {
			return stamp(model.ErrorValue(t, units, "NoGoodData"))
		}
		status := model.StatusUncertain
		if before.Status == model.StatusGood && after.Status == model.StatusGood {
			status = model.StatusGood
		}
		return stamp(model.TagValueExtended{
			UTCSampleTime: t,
			Value:         bv + (av-bv)*frac,
			Status:        status,
			Units:         units,
		})
	case before != nil:
		v := *before
		v.UTCSampleTime = t
		v.Status = model.StatusUncertain
		return stamp(v)
	case after != nil:
		v := *after
		v.UTCSampleTime = t
		v.Status = model.StatusUncertain
		return stamp(v)
	default:
		return stamp(model.ErrorValue(t, units, "NoGoodData"))
	}
}

func calcInterpolate(tagInfo model.TagSummary, b *model.TagValueBucket, timeline []model.TagValueExtended) []model.TagValueExtended {
	start := interpolateAt(b.UTCBucketStart, tagInfo.Units, timeline)

	// The last bucket in the sequence is the one whose end reaches or
	// passes the query end; only it also reports a value exactly at
	// UTCQueryEnd (bucketizer.go excludes a bucket starting at or after
	// UTCQueryEnd from the sequence entirely, so this never fires twice).
	isLastBucket := !b.UTCBucketEnd.Before(b.UTCQueryEnd)
	if isLastBucket && b.UTCQueryEnd.After(b.UTCBucketStart) {
		end := interpolateAt(b.UTCQueryEnd, tagInfo.Units, timeline)
		return []model.TagValueExtended{start, end}
	}
	return []model.TagValueExtended{start}
}

func calcAverage(tagInfo model.TagSummary, b *model.TagValueBucket, _ []model.TagValueExtended) []model.TagValueExtended {
	good := b.GoodSamples()
	if len(good) == 0 {
		return []model.TagValueExtended{noGoodData(*b, tagInfo.Units)}
	}
	var sum float64
	for _, s := range good {
		sum += numericValue(s)
	}
	status := model.StatusUncertain
	if len(good) == len(b.RawSamples) {
		status = model.StatusGood
	}
	return []model.TagValueExtended{stamp(model.TagValueExtended{
		UTCSampleTime: b.UTCBucketStart,
		Value:         sum / float64(len(good)),
		Status:        status,
		Units:         tagInfo.Units,
	})}
}

func calcMinMax(tagInfo model.TagSummary, b *model.TagValueBucket, wantMax bool) []model.TagValueExtended {
	good := b.GoodSamples()
	if len(good) == 0 {
		return []model.TagValueExtended{noGoodData(*b, tagInfo.Units)}
	}
	best := good[0]
	bestVal := numericValue(best)
	for _, s := range good[1:] {
		n := numericValue(s)
		if (wantMax && n > bestVal) || (!wantMax && n < bestVal) {
			best, bestVal = s, n
		}
	}
	out := best
	out.UTCSampleTime = b.UTCBucketStart
	return []model.TagValueExtended{stamp(out)}
}

func calcMinimum(tagInfo model.TagSummary, b *model.TagValueBucket, _ []model.TagValueExtended) []model.TagValueExtended {
	return calcMinMax(tagInfo, b, false)
}

func calcMaximum(tagInfo model.TagSummary, b *model.TagValueBucket, _ []model.TagValueExtended) []model.TagValueExtended {
	return calcMinMax(tagInfo, b, true)
}

func calcCount(tagInfo model.TagSummary, b *model.TagValueBucket, _ []model.TagValueExtended) []model.TagValueExtended {
	good := b.GoodSamples()
	status := model.StatusUncertain
	if len(good) > 0 && len(good) == len(b.RawSamples) {
		status = model.StatusGood
	}
	return []model.TagValueExtended{stamp(model.TagValueExtended{
		UTCSampleTime: b.UTCBucketStart,
		Value:         float64(len(good)),
		Status:        status,
		Units:         tagInfo.Units,
	})}
}

func calcRange(tagInfo model.TagSummary, b *model.TagValueBucket, _ []model.TagValueExtended) []model.TagValueExtended {
	good := b.GoodSamples()
	if len(good) == 0 {
		return []model.TagValueExtended{noGoodData(*b, tagInfo.Units)}
	}
	min, max := numericValue(good[0]), numericValue(good[0])
	for _, s := range good[1:] {
		n := numericValue(s)
		if n < min {
			min = n
		}
		if n > max {
			max = n
		}
	}
	return []model.TagValueExtended{stamp(model.TagValueExtended{
		UTCSampleTime: b.UTCBucketStart,
		Value:         math.Abs(max - min),
		Status:        model.StatusGood,
		Units:         tagInfo.Units,
	})}
}

func calcDelta(tagInfo model.TagSummary, b *model.TagValueBucket, _ []model.TagValueExtended) []model.TagValueExtended {
	good := b.GoodSamples()
	if len(good) == 0 {
		return []model.TagValueExtended{noGoodData(*b, tagInfo.Units)}
	}
	first := numericValue(good[0])
	last := numericValue(good[len(good)-1])
	return []model.TagValueExtended{stamp(model.TagValueExtended{
		UTCSampleTime: b.UTCBucketStart,
		Value:         first - last,
		Status:        model.StatusGood,
		Units:         tagInfo.Units,
	})}
}

func calcPercent(tagInfo model.TagSummary, b *model.TagValueBucket, status model.TagValueStatus) []model.TagValueExtended {
	if len(b.RawSamples) == 0 {
		return []model.TagValueExtended{stamp(model.TagValueExtended{
			UTCSampleTime: b.UTCBucketStart,
			Value:         0.0,
			Status:        model.StatusUncertain,
			Units:         "%",
		})}
	}
	var n int
	for _, s := range b.RawSamples {
		if s.Status == status {
			n++
		}
	}
	return []model.TagValueExtended{stamp(model.TagValueExtended{
		UTCSampleTime: b.UTCBucketStart,
		Value:         100 * float64(n) / float64(len(b.RawSamples)),
		Status:        model.StatusGood,
		Units:         "%",
	})}
}

func calcPercentGood(tagInfo model.TagSummary, b *model.TagValueBucket, _ []model.TagValueExtended) []model.TagValueExtended {
	return calcPercent(tagInfo, b, model.StatusGood)
}

func calcPercentBad(tagInfo model.TagSummary, b *model.TagValueBucket, _ []model.TagValueExtended) []model.TagValueExtended {
	return calcPercent(tagInfo, b, model.StatusBad)
}

// sampleVariance computes the Bessel-corrected sample variance of
// values. A single-value set yields 0.
func sampleVariance(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return sq / float64(len(values)-1)
}

func calcVariance(tagInfo model.TagSummary, b *model.TagValueBucket, _ []model.TagValueExtended) []model.TagValueExtended {
	good := b.GoodSamples()
	if len(good) == 0 {
		return []model.TagValueExtended{noGoodData(*b, tagInfo.Units)}
	}
	values := make([]float64, len(good))
	for i, s := range good {
		values[i] = numericValue(s)
	}
	return []model.TagValueExtended{stamp(model.TagValueExtended{
		UTCSampleTime: b.UTCBucketStart,
		Value:         sampleVariance(values),
		Status:        model.StatusGood,
		Units:         tagInfo.Units,
	})}
}

func calcStandardDeviation(tagInfo model.TagSummary, b *model.TagValueBucket, _ []model.TagValueExtended) []model.TagValueExtended {
	good := b.GoodSamples()
	if len(good) == 0 {
		return []model.TagValueExtended{noGoodData(*b, tagInfo.Units)}
	}
	values := make([]float64, len(good))
	var sum float64
	for i, s := range good {
		n := numericValue(s)
		values[i] = n
		sum += n
	}
	mean := sum / float64(len(values))
	variance := sampleVariance(values)
	stddev := math.Sqrt(variance)

	v := model.TagValueExtended{
		UTCSampleTime: b.UTCBucketStart,
		Value:         stddev,
		Status:        model.StatusGood,
		Units:         tagInfo.Units,
	}
	v = v.WithProperty("Average", formatFloat(mean))
	v = v.WithProperty("Variance", formatFloat(variance))
	v = v.WithProperty("Upper (+3σ)", formatFloat(mean+3*stddev))
	v = v.WithProperty("Lower (-3σ)", formatFloat(mean-3*stddev))
	return []model.TagValueExtended{stamp(v)}
}
