package topicsub

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/intelligentplant/appstoreconnect-adapters-core/exec"
	"github.com/intelligentplant/appstoreconnect-adapters-core/model"
)

// TopicMatcher reports whether a subscription's topic matches a
// published value's topic. The default is case-sensitive equality;
// adapters that want wildcard topics supply their own.
type TopicMatcher[K any] func(subscriptionTopic, messageTopic K) bool

// TopicExtractor extracts the routing topic from a published value. It
// is unused when Config.MatchAll is set (the topic-less push manager
// case): every live subscription matches every published value
// regardless of its topic set.
type TopicExtractor[V any, K any] func(value V) (topic K, ok bool)

// OnTopicsChanged is invoked serially, in monotonic order per topic,
// whenever a topic's subscriber count transitions 0->1 (OnTopicsAdded)
// or 1->0 (OnTopicsRemoved). Returning an error from OnTopicsAdded is
// surfaced to the Subscribe (or AddTopics) call that triggered the
// transition and rolls that call back; OnTopicsRemoved errors are
// logged only, since removal is fire-and-forget.
type OnTopicsChanged[K any] func(ctx context.Context, topics []K) error

// Config configures a Manager.
type Config[V any, K comparable] struct {
	// MaxSubscriptionCount caps live subscriptions; <= 0 means
	// unlimited.
	MaxSubscriptionCount int

	// MatchAll, when true, makes every subscription match every
	// published value regardless of topic sets -- this is the
	// "topic-less" push manager the event store fans out to alongside
	// its topic-aware sibling.
	MatchAll bool

	// TopicOf extracts the topic from a published value. Required
	// unless MatchAll is set.
	TopicOf TopicExtractor[V, K]

	// Match overrides the default case-sensitive equality comparison
	// between a subscription's topic and a published value's topic.
	Match TopicMatcher[K]

	OnTopicsAdded   OnTopicsChanged[K]
	OnTopicsRemoved OnTopicsChanged[K]

	// Executor runs each subscription's updates-consumer goroutine and
	// its channel's rate-limiting loop; the manager's own dispatch and
	// topic-change loops run on goroutines of their own. Defaults to a
	// GoroutineExecutor if nil.
	Executor exec.Executor

	// DispatchQueueLen and TopicChangeQueueLen size the manager's two
	// internal single-reader queues. Defaults are applied if <= 0.
	DispatchQueueLen    int
	TopicChangeQueueLen int

	// DispatchFailureLogDebounce coalesces repeated DispatchFailure log
	// lines so one misbehaving subscriber cannot flood the log. A single
	// debouncer is shared by all of the manager's subscriptions: a burst
	// of failures yields one warning, naming the last failing
	// subscription, once no failure has occurred for the window.
	// Defaults to 2s; set to a negative value to disable coalescing.
	DispatchFailureLogDebounce time.Duration

	Log *zerolog.Logger
}

// SubscribeRequest describes a new subscription.
type SubscribeRequest[K comparable] struct {
	Context          context.Context
	InitialTopics    []K
	SubscriptionType model.SubscriptionType
	ChannelCapacity  int
	PublishInterval  time.Duration
	Updates          <-chan model.TopicUpdate[K]
}
