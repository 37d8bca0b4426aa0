package errs

// Code identifies the kind of failure represented by an Error. Unlike an
// RPC status code, these are specific to the contracts this module
// exposes: subscription lifecycle, event store writes/reads, and the
// aggregation pipeline.
type Code int

const (
	// OK indicates no error. It is the zero value and is never
	// constructed directly by Builder.Err.
	OK Code = iota

	// InvalidArgument indicates a required parameter was missing or
	// malformed: a nil request, utcStart >= utcEnd, sampleInterval <= 0,
	// an unparseable cursor passed where a cursor is required, or similar.
	InvalidArgument

	// Disposed indicates the call arrived after the owning component
	// (subscription manager, event store) completed shutdown.
	Disposed

	// TooManySubscriptions indicates a topic manager's configured
	// maxSubscriptionCount would be exceeded by the request.
	TooManySubscriptions

	// Cancelled indicates the operation observed its cancellation signal
	// trip. Operations that end this way close their output cleanly
	// rather than returning this to a caller who didn't originate the
	// cancellation.
	Cancelled

	// UpstreamHookFailure indicates OnTopicsAdded returned an error
	// during a 0->1 topic transition. The triggering Subscribe call is
	// rolled back.
	UpstreamHookFailure

	// DispatchFailure indicates delivery to one subscriber's channel
	// failed. It is logged and counted; it never fails the batch.
	DispatchFailure

	// CalculatorFailure indicates a data function panicked while
	// evaluating one bucket. It is logged and skipped.
	CalculatorFailure

	// InputStreamFailure indicates the raw sample producer closed with
	// an error, which is forwarded by closing the pipeline's output with
	// the same error.
	InputStreamFailure

	// Unknown is used for errors of unrecognized origin wrapped via
	// Convert.
	Unknown
)

func (c Code) String() string {
	switch c {
	case OK:
		return "ok"
	case InvalidArgument:
		return "invalid_argument"
	case Disposed:
		return "disposed"
	case TooManySubscriptions:
		return "too_many_subscriptions"
	case Cancelled:
		return "cancelled"
	case UpstreamHookFailure:
		return "upstream_hook_failure"
	case DispatchFailure:
		return "dispatch_failure"
	case CalculatorFailure:
		return "calculator_failure"
	case InputStreamFailure:
		return "input_stream_failure"
	default:
		return "unknown"
	}
}
