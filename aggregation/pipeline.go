// Package aggregation implements the streaming tag-value aggregation
// pipeline: raw per-tag samples in, bucketed aggregate values out, for
// any combination of built-in or custom-registered data functions.
package aggregation

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/intelligentplant/appstoreconnect-adapters-core/errs"
	"github.com/intelligentplant/appstoreconnect-adapters-core/exec"
	"github.com/intelligentplant/appstoreconnect-adapters-core/model"
	"github.com/intelligentplant/appstoreconnect-adapters-core/rlog"
)

// RawSampleOrError is one element of a pipeline's raw input sequence. A
// non-nil Err terminates the pipeline with InputStreamFailure, mirroring
// the producer side closing with an error.
type RawSampleOrError struct {
	Sample model.RawSample
	Err    error
}

// Pipeline evaluates aggregation requests against a Registry of data
// functions.
type Pipeline struct {
	registry *Registry
	executor exec.Executor
	log      zerolog.Logger
}

// NewPipeline constructs a Pipeline backed by registry.
func NewPipeline(registry *Registry, executor exec.Executor, log *zerolog.Logger) *Pipeline {
	if executor == nil {
		executor = exec.NewGoroutineExecutor(log)
	}
	return &Pipeline{registry: registry, executor: executor, log: rlog.WithLogger(log, "aggregation")}
}

// Handle is returned by Run: Results delivers aggregate values as they
// become available, and Err reports the terminal error (if any) once
// Results has been drained and closed, mirroring bufio.Scanner's Err
// idiom for a channel-based sequence.
type Handle struct {
	Results <-chan model.AggregateResult

	mu  sync.Mutex
	err error
}

// Err reports the error that closed Results, if any. Safe to call after
// Results is observed closed; calling earlier may race with the
// producer and is not meaningful.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *Handle) setErr(err error) {
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
}

func validate(req model.AggregateRequest) error {
	if len(req.Tags) == 0 {
		return errs.B().Code(errs.InvalidArgument).Msg("at least one tag is required").Err()
	}
	if !req.UTCStartTime.Before(req.UTCEndTime) {
		return errs.B().Code(errs.InvalidArgument).Msg("utcStartTime must be before utcEndTime").Err()
	}
	if req.SampleInterval <= 0 {
		return errs.B().Code(errs.InvalidArgument).Msg("sampleInterval must be positive").Err()
	}
	return nil
}

// Run validates req and, if valid, begins consuming raw asynchronously,
// demultiplexing by tag, bucketizing, and evaluating every function
// req.FunctionIDs resolves against the pipeline's registry. Invalid
// requests are rejected synchronously without consuming raw.
func (p *Pipeline) Run(ctx context.Context, req model.AggregateRequest, raw <-chan RawSampleOrError) (*Handle, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	resolved := p.registry.Resolve(req.FunctionIDs)

	out := make(chan model.AggregateResult)
	h := &Handle{Results: out}

	if len(resolved) == 0 {
		close(out)
		return h, nil
	}

	p.executor.Go(ctx, func(ctx context.Context) {
		defer close(out)
		if err := p.run(ctx, req, raw, resolved, out); err != nil {
			h.setErr(err)
		}
	})

	return h, nil
}

func (p *Pipeline) run(ctx context.Context, req model.AggregateRequest, raw <-chan RawSampleOrError, resolved []struct {
	Descriptor model.DataFunctionDescriptor
	Calculator Calculator
}, out chan<- model.AggregateResult) error {
	known := make(map[string]struct{}, len(req.Tags))
	for _, t := range req.Tags {
		known[t.ID] = struct{}{}
	}

	buffers := make(map[string][]model.TagValueExtended)
	for {
		select {
		case <-ctx.Done():
			return nil
		case item, ok := <-raw:
			if !ok {
				return p.evaluateAndEmit(ctx, req, resolved, buffers, out)
			}
			if item.Err != nil {
				return errs.B().Code(errs.InputStreamFailure).Cause(item.Err).
					Msg("raw sample stream closed with an error").Err()
			}
			if _, ok := known[item.Sample.TagID]; !ok {
				continue
			}
			buffers[item.Sample.TagID] = append(buffers[item.Sample.TagID], item.Sample.Value)
		}
	}
}

func (p *Pipeline) evaluateAndEmit(ctx context.Context, req model.AggregateRequest, resolved []struct {
	Descriptor model.DataFunctionDescriptor
	Calculator Calculator
}, buffers map[string][]model.TagValueExtended, out chan<- model.AggregateResult) error {
	perTag := make([][]model.AggregateResult, len(req.Tags))

	g, _ := errgroup.WithContext(ctx)
	for i, tagInfo := range req.Tags {
		i, tagInfo := i, tagInfo
		g.Go(func() error {
			buckets, timeline := buildBuckets(req.UTCStartTime, req.UTCEndTime, req.SampleInterval, buffers[tagInfo.ID])
			var results []model.AggregateResult
			for _, rf := range resolved {
				for _, bucket := range buckets {
					for _, v := range p.evalSafely(rf.Descriptor, rf.Calculator, tagInfo, bucket, timeline) {
						results = append(results, model.AggregateResult{TagID: tagInfo.ID, FunctionID: rf.Descriptor.ID, Value: v})
					}
				}
			}
			perTag[i] = results
			return nil
		})
	}
	_ = g.Wait() // per-bucket failures are recovered in evalSafely; this never actually errors

	for _, tagResults := range perTag {
		for _, r := range tagResults {
			select {
			case out <- r:
			case <-ctx.Done():
				return nil
			}
		}
	}
	return nil
}

// evalSafely recovers a calculator panic, logging it as a CalculatorFailure
// and skipping just that bucket rather than failing the whole pipeline.
func (p *Pipeline) evalSafely(d model.DataFunctionDescriptor, c Calculator, tagInfo model.TagSummary, bucket *model.TagValueBucket, timeline []model.TagValueExtended) (values []model.TagValueExtended) {
	defer func() {
		if r := recover(); r != nil {
			err := errs.B().Code(errs.CalculatorFailure).Msgf("data function %q panicked: %v", d.ID, r).Err()
			p.log.Warn().Err(err).Str("tag_id", tagInfo.ID).Str("function_id", d.ID).Msg("calculator failed for bucket, skipping")
			values = nil
		}
	}()
	return c(tagInfo, bucket, timeline)
}
