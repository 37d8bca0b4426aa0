package aggregation

import (
	"context"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/intelligentplant/appstoreconnect-adapters-core/errs"
	"github.com/intelligentplant/appstoreconnect-adapters-core/model"
)

func sec(n int64) time.Time { return time.Unix(n, 0).UTC() }

func sample(tagID string, t time.Time, v float64, status model.TagValueStatus) RawSampleOrError {
	return RawSampleOrError{Sample: model.RawSample{TagID: tagID, Value: model.TagValueExtended{UTCSampleTime: t, Value: v, Status: status}}}
}

func drainAll(c *qt.C, h *Handle) []model.AggregateResult {
	c.Helper()
	var out []model.AggregateResult
	for {
		select {
		case r, ok := <-h.Results:
			if !ok {
				return out
			}
			out = append(out, r)
		case <-time.After(time.Second):
			c.Fatal("timed out draining aggregation results")
		}
	}
}

func TestAggregateAverageWithMixedQuality(t *testing.T) {
	c := qt.New(t)
	p := NewPipeline(NewRegistry(), nil, nil)

	req := model.AggregateRequest{
		Tags:           []model.TagSummary{{ID: "tag1", DataType: model.TagDataTypeNumeric}},
		FunctionIDs:    []string{"AVG"},
		UTCStartTime:   sec(0),
		UTCEndTime:     sec(3),
		SampleInterval: 3 * time.Second,
	}

	raw := make(chan RawSampleOrError, 3)
	raw <- sample("tag1", sec(0), 10, model.StatusGood)
	raw <- sample("tag1", sec(1), 20, model.StatusGood)
	raw <- sample("tag1", sec(2), 30, model.StatusBad)
	close(raw)

	h, err := p.Run(context.Background(), req, raw)
	c.Assert(err, qt.IsNil)

	results := drainAll(c, h)
	c.Assert(h.Err(), qt.IsNil)
	c.Assert(results, qt.HasLen, 1)
	c.Assert(results[0].Value.Value, qt.Equals, 15.0)
	c.Assert(results[0].Value.Status, qt.Equals, model.StatusUncertain)
}

func TestAggregateInterpolateAcrossGap(t *testing.T) {
	c := qt.New(t)
	p := NewPipeline(NewRegistry(), nil, nil)

	req := model.AggregateRequest{
		Tags:           []model.TagSummary{{ID: "tag1", DataType: model.TagDataTypeNumeric}},
		FunctionIDs:    []string{"INTERP"},
		UTCStartTime:   sec(0),
		UTCEndTime:     sec(10),
		SampleInterval: 5 * time.Second,
	}

	raw := make(chan RawSampleOrError, 2)
	raw <- sample("tag1", sec(0), 0, model.StatusGood)
	raw <- sample("tag1", sec(10), 100, model.StatusGood)
	close(raw)

	h, err := p.Run(context.Background(), req, raw)
	c.Assert(err, qt.IsNil)

	results := drainAll(c, h)
	c.Assert(h.Err(), qt.IsNil)
	c.Assert(results, qt.HasLen, 3)
	c.Assert(results[0].Value.Value, qt.Equals, 0.0)
	c.Assert(results[1].Value.Value, qt.Equals, 50.0)
	c.Assert(results[2].Value.Value, qt.Equals, 100.0)
}

func TestAggregateAverageTrailingBoundarySampleDoesNotAddBucket(t *testing.T) {
	c := qt.New(t)
	p := NewPipeline(NewRegistry(), nil, nil)

	req := model.AggregateRequest{
		Tags:           []model.TagSummary{{ID: "tag1", DataType: model.TagDataTypeNumeric}},
		FunctionIDs:    []string{"AVG"},
		UTCStartTime:   sec(0),
		UTCEndTime:     sec(10),
		SampleInterval: 5 * time.Second,
	}

	raw := make(chan RawSampleOrError, 2)
	raw <- sample("tag1", sec(0), 0, model.StatusGood)
	raw <- sample("tag1", sec(10), 100, model.StatusGood)
	close(raw)

	h, err := p.Run(context.Background(), req, raw)
	c.Assert(err, qt.IsNil)

	results := drainAll(c, h)
	c.Assert(h.Err(), qt.IsNil)
	// ceil((10-0)/5) == 2 buckets, regardless of the trailing sample
	// landing exactly on UTCEndTime.
	c.Assert(results, qt.HasLen, 2)
}

func TestValidationRejectsInvertedRangeWithoutConsumingInput(t *testing.T) {
	c := qt.New(t)
	p := NewPipeline(NewRegistry(), nil, nil)

	req := model.AggregateRequest{
		Tags:           []model.TagSummary{{ID: "tag1"}},
		FunctionIDs:    []string{"AVG"},
		UTCStartTime:   sec(10),
		UTCEndTime:     sec(0),
		SampleInterval: time.Second,
	}

	raw := make(chan RawSampleOrError)
	_, err := p.Run(context.Background(), req, raw)
	c.Assert(err, qt.Not(qt.IsNil))
	c.Assert(errs.GetCode(err), qt.Equals, errs.InvalidArgument)
}

func TestUnresolvedFunctionsYieldEmptySequence(t *testing.T) {
	c := qt.New(t)
	p := NewPipeline(NewRegistry(), nil, nil)

	req := model.AggregateRequest{
		Tags:           []model.TagSummary{{ID: "tag1"}},
		FunctionIDs:    []string{"NOT-A-FUNCTION"},
		UTCStartTime:   sec(0),
		UTCEndTime:     sec(10),
		SampleInterval: time.Second,
	}
	raw := make(chan RawSampleOrError)
	close(raw)

	h, err := p.Run(context.Background(), req, raw)
	c.Assert(err, qt.IsNil)
	c.Assert(drainAll(c, h), qt.HasLen, 0)
}

func TestInputStreamFailureClosesOutputWithError(t *testing.T) {
	c := qt.New(t)
	p := NewPipeline(NewRegistry(), nil, nil)

	req := model.AggregateRequest{
		Tags:           []model.TagSummary{{ID: "tag1"}},
		FunctionIDs:    []string{"AVG"},
		UTCStartTime:   sec(0),
		UTCEndTime:     sec(10),
		SampleInterval: time.Second,
	}

	raw := make(chan RawSampleOrError, 1)
	boom := errs.B().Code(errs.InvalidArgument).Msg("historian connection dropped").Err()
	raw <- RawSampleOrError{Err: boom}
	close(raw)

	h, err := p.Run(context.Background(), req, raw)
	c.Assert(err, qt.IsNil)
	c.Assert(drainAll(c, h), qt.HasLen, 0)
	c.Assert(errs.GetCode(h.Err()), qt.Equals, errs.InputStreamFailure)
}

func TestCustomFunctionRegistrationRejectsBuiltinDuplicate(t *testing.T) {
	c := qt.New(t)
	r := NewRegistry()

	ok := r.RegisterDataFunction(model.DataFunctionDescriptor{ID: "avg"}, calcAverage)
	c.Assert(ok, qt.IsFalse)

	ok = r.RegisterDataFunction(model.DataFunctionDescriptor{ID: "CUSTOM1", DisplayName: "My Function"}, calcAverage)
	c.Assert(ok, qt.IsTrue)

	ok = r.RegisterDataFunction(model.DataFunctionDescriptor{ID: "custom1"}, calcAverage)
	c.Assert(ok, qt.IsFalse)

	r.UnregisterDataFunction("CUSTOM1")
	ok = r.RegisterDataFunction(model.DataFunctionDescriptor{ID: "custom1"}, calcAverage)
	c.Assert(ok, qt.IsTrue)
}

func TestCalculatorPanicIsSkippedNotFatal(t *testing.T) {
	c := qt.New(t)
	r := NewRegistry()
	c.Assert(r.RegisterDataFunction(model.DataFunctionDescriptor{ID: "EXPLODE"}, func(model.TagSummary, *model.TagValueBucket, []model.TagValueExtended) []model.TagValueExtended {
		panic("boom")
	}), qt.IsTrue)

	p := NewPipeline(r, nil, nil)
	req := model.AggregateRequest{
		Tags:           []model.TagSummary{{ID: "tag1"}},
		FunctionIDs:    []string{"EXPLODE"},
		UTCStartTime:   sec(0),
		UTCEndTime:     sec(3),
		SampleInterval: 3 * time.Second,
	}
	raw := make(chan RawSampleOrError, 1)
	raw <- sample("tag1", sec(0), 1, model.StatusGood)
	close(raw)

	h, err := p.Run(context.Background(), req, raw)
	c.Assert(err, qt.IsNil)
	c.Assert(drainAll(c, h), qt.HasLen, 0)
	c.Assert(h.Err(), qt.IsNil)
}
