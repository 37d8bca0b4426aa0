// Package topicsub implements a generic, reference-counted topic
// subscription registry: a publish/subscribe bus keyed by topic strings
// (or any comparable type), where subscribers dynamically add and drop
// topics and the manager serializes 0<->1 subscriber-count transitions
// through an internal change queue so the owner can attach/detach an
// upstream source.
package topicsub

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bep/debounce"
	"github.com/rs/zerolog"

	"github.com/intelligentplant/appstoreconnect-adapters-core/errs"
	"github.com/intelligentplant/appstoreconnect-adapters-core/exec"
	"github.com/intelligentplant/appstoreconnect-adapters-core/model"
	"github.com/intelligentplant/appstoreconnect-adapters-core/rlog"
	"github.com/intelligentplant/appstoreconnect-adapters-core/subchannel"
)

type subscriptionRecord[K comparable, V any] struct {
	id      int64
	typ     model.SubscriptionType
	channel *subchannel.Channel[V]
	topics  map[K]struct{}
}

type dispatchEntry[K comparable, V any] struct {
	value   V
	targets []*subscriptionRecord[K, V]
}

type topicChangeEntry[K comparable] struct {
	topics []K
	added  bool
	ack    chan error // nil for removals, which are fire-and-forget
}

// Manager is a generic, reference-counted topic subscription registry.
// V is the published value type; K is the topic key type.
type Manager[V any, K comparable] struct {
	cfg Config[V, K]
	log zerolog.Logger

	disposeCtx    context.Context
	disposeCancel context.CancelFunc

	mu             sync.RWMutex
	subscriptions  map[int64]*subscriptionRecord[K, V]
	subscriberCnt  map[K]int

	nextID int64

	masterQueue       chan dispatchEntry[K, V]
	topicChangesQueue chan topicChangeEntry[K]

	dispatchFailed atomic.Int64

	logDebounce func(func())

	wg sync.WaitGroup
}

// New constructs a Manager and starts its dispatch and topic-change
// loops.
func New[V any, K comparable](cfg Config[V, K]) *Manager[V, K] {
	if cfg.Match == nil {
		cfg.Match = func(a, b K) bool { return a == b }
	}
	if cfg.Executor == nil {
		cfg.Executor = exec.NewGoroutineExecutor(cfg.Log)
	}
	if cfg.DispatchQueueLen <= 0 {
		cfg.DispatchQueueLen = 1024
	}
	if cfg.TopicChangeQueueLen <= 0 {
		cfg.TopicChangeQueueLen = 256
	}
	if cfg.DispatchFailureLogDebounce == 0 {
		cfg.DispatchFailureLogDebounce = 2 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager[V, K]{
		cfg:               cfg,
		log:               rlog.WithLogger(cfg.Log, "topicsub"),
		disposeCtx:        ctx,
		disposeCancel:     cancel,
		subscriptions:     make(map[int64]*subscriptionRecord[K, V]),
		subscriberCnt:     make(map[K]int),
		masterQueue:       make(chan dispatchEntry[K, V], cfg.DispatchQueueLen),
		topicChangesQueue: make(chan topicChangeEntry[K], cfg.TopicChangeQueueLen),
	}

	if cfg.DispatchFailureLogDebounce > 0 {
		m.logDebounce = debounce.New(cfg.DispatchFailureLogDebounce)
	}

	// The dispatch and topic-change loops are the manager's own fixed
	// structural loops, not caller-supplied work items, so they run on
	// plain goroutines tracked by m.wg rather than through cfg.Executor:
	// cfg.Executor (with its panic/restart semantics) is reserved for
	// transient, caller-driven work such as a subscription's
	// updates-consumer goroutine.
	m.wg.Add(2)
	go func() {
		defer m.wg.Done()
		m.runDispatchLoop(ctx)
	}()
	go func() {
		defer m.wg.Done()
		m.runTopicChangeLoop(ctx)
	}()

	return m
}

func (m *Manager[V, K]) disposed() bool {
	return m.disposeCtx.Err() != nil
}

// Subscribe creates a subscription with the given initial topic set and
// begins consuming req.Updates for the subscription's lifetime. It
// returns the new subscription's id and the channel it should be read
// from.
func (m *Manager[V, K]) Subscribe(req SubscribeRequest[K]) (int64, <-chan V, error) {
	if m.disposed() {
		return 0, nil, errs.B().Code(errs.Disposed).Msg("topic subscription manager is disposed").Err()
	}
	if req.Context == nil {
		return 0, nil, errs.B().Code(errs.InvalidArgument).Msg("request context must not be nil").Err()
	}

	m.mu.RLock()
	count := len(m.subscriptions)
	m.mu.RUnlock()
	if m.cfg.MaxSubscriptionCount > 0 && count >= m.cfg.MaxSubscriptionCount {
		return 0, nil, errs.B().Code(errs.TooManySubscriptions).
			Msgf("maximum of %d subscriptions already reached", m.cfg.MaxSubscriptionCount).Err()
	}

	id := atomic.AddInt64(&m.nextID, 1)

	rec := &subscriptionRecord[K, V]{
		id:     id,
		typ:    req.SubscriptionType,
		topics: make(map[K]struct{}, len(req.InitialTopics)),
	}
	for _, t := range req.InitialTopics {
		rec.topics[t] = struct{}{}
	}
	dedupedInitial := make([]K, 0, len(rec.topics))
	for t := range rec.topics {
		dedupedInitial = append(dedupedInitial, t)
	}

	rec.channel = subchannel.New[V](context.Background(), m.cfg.Executor, subchannel.Config{
		ID:              id,
		Capacity:        req.ChannelCapacity,
		PublishInterval: req.PublishInterval,
		Linked:          []context.Context{req.Context, m.disposeCtx},
		Cleanup:         func() { m.removeSubscription(id) },
		Log:             m.cfg.Log,
	})

	m.mu.Lock()
	m.subscriptions[id] = rec
	newlyActive := m.incrementTopicsLocked(dedupedInitial)
	m.mu.Unlock()

	// Only the caller whose Subscribe/AddTopics call actually drove a
	// topic's 0->1 transition awaits OnTopicsAdded here; a concurrent
	// second caller for the same newly-active topic sees newlyActive
	// empty and returns immediately without waiting on the first
	// caller's hook. That second caller can therefore return, with the
	// topic already counted as subscribed, before OnTopicsAdded has
	// completed.
	if len(newlyActive) > 0 {
		if err := m.notifyAddedAndAwait(req.Context, newlyActive); err != nil {
			m.rollbackSubscribe(id, dedupedInitial)
			return 0, nil, errs.B().Code(errs.UpstreamHookFailure).
				Cause(err).Msgf("OnTopicsAdded failed for subscription %d", id).Err()
		}
	}

	if req.Updates != nil {
		m.cfg.Executor.Go(req.Context, func(ctx context.Context) {
			m.consumeUpdates(ctx, id, req.Updates)
		})
	}

	return id, rec.channel.Reader(), nil
}

func (m *Manager[V, K]) rollbackSubscribe(id int64, initialTopics []K) {
	m.mu.Lock()
	delete(m.subscriptions, id)
	m.decrementTopicsLocked(initialTopics)
	m.mu.Unlock()
}

// incrementTopicsLocked must be called with mu held for writing. It
// returns the subset of topics whose count transitioned 0->1.
func (m *Manager[V, K]) incrementTopicsLocked(topics []K) []K {
	var newlyActive []K
	for _, t := range topics {
		m.subscriberCnt[t]++
		if m.subscriberCnt[t] == 1 {
			newlyActive = append(newlyActive, t)
		}
	}
	return newlyActive
}

// decrementTopicsLocked must be called with mu held for writing. It
// returns the subset of topics whose count transitioned 1->0.
func (m *Manager[V, K]) decrementTopicsLocked(topics []K) []K {
	var newlyInactive []K
	for _, t := range topics {
		if _, ok := m.subscriberCnt[t]; !ok {
			continue
		}
		m.subscriberCnt[t]--
		if m.subscriberCnt[t] <= 0 {
			delete(m.subscriberCnt, t)
			newlyInactive = append(newlyInactive, t)
		}
	}
	return newlyInactive
}

func (m *Manager[V, K]) notifyAddedAndAwait(ctx context.Context, topics []K) error {
	ack := make(chan error, 1)
	select {
	case m.topicChangesQueue <- topicChangeEntry[K]{topics: topics, added: true, ack: ack}:
	case <-m.disposeCtx.Done():
		return errs.B().Code(errs.Disposed).Msg("topic subscription manager is disposed").Err()
	}

	select {
	case err := <-ack:
		return err
	case <-ctx.Done():
		return errs.B().Code(errs.Cancelled).Msg("cancelled while awaiting OnTopicsAdded acknowledgement").Err()
	case <-m.disposeCtx.Done():
		return errs.B().Code(errs.Disposed).Msg("topic subscription manager is disposed").Err()
	}
}

func (m *Manager[V, K]) notifyRemoved(topics []K) {
	select {
	case m.topicChangesQueue <- topicChangeEntry[K]{topics: topics, added: false}:
	case <-m.disposeCtx.Done():
	default:
		// Queue full: log and drop rather than block the caller. Removal
		// is documented as fire-and-forget.
		m.log.Warn().Int("topic_count", len(topics)).Msg("topic-change queue full, dropping removal notification")
	}
}

// AddTopics adds topics to a live subscription, blocking until any
// resulting 0->1 transition's OnTopicsAdded hook has been acknowledged.
func (m *Manager[V, K]) AddTopics(ctx context.Context, id int64, topics []K) error {
	if len(topics) == 0 {
		return nil
	}
	if m.disposed() {
		return errs.B().Code(errs.Disposed).Msg("topic subscription manager is disposed").Err()
	}

	m.mu.Lock()
	rec, ok := m.subscriptions[id]
	if !ok {
		m.mu.Unlock()
		return errs.B().Code(errs.InvalidArgument).Msgf("unknown subscription %d", id).Err()
	}
	var added []K
	for _, t := range topics {
		if _, already := rec.topics[t]; already {
			continue
		}
		rec.topics[t] = struct{}{}
		added = append(added, t)
	}
	newlyActive := m.incrementTopicsLocked(added)
	m.mu.Unlock()

	if len(newlyActive) == 0 {
		return nil
	}

	if err := m.notifyAddedAndAwait(ctx, newlyActive); err != nil {
		m.mu.Lock()
		for _, t := range added {
			delete(rec.topics, t)
		}
		m.decrementTopicsLocked(added)
		m.mu.Unlock()
		return errs.B().Code(errs.UpstreamHookFailure).Cause(err).
			Msgf("OnTopicsAdded failed for subscription %d", id).Err()
	}
	return nil
}

// RemoveTopics removes topics from a live subscription. It never
// blocks on OnTopicsRemoved.
func (m *Manager[V, K]) RemoveTopics(id int64, topics []K) error {
	if len(topics) == 0 {
		return nil
	}
	m.mu.Lock()
	rec, ok := m.subscriptions[id]
	if !ok {
		m.mu.Unlock()
		return errs.B().Code(errs.InvalidArgument).Msgf("unknown subscription %d", id).Err()
	}
	var removed []K
	for _, t := range topics {
		if _, held := rec.topics[t]; !held {
			continue
		}
		delete(rec.topics, t)
		removed = append(removed, t)
	}
	newlyInactive := m.decrementTopicsLocked(removed)
	m.mu.Unlock()

	if len(newlyInactive) > 0 {
		m.notifyRemoved(newlyInactive)
	}
	return nil
}

func (m *Manager[V, K]) consumeUpdates(ctx context.Context, id int64, updates <-chan model.TopicUpdate[K]) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.disposeCtx.Done():
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			if len(upd.Topics) == 0 {
				continue
			}
			switch upd.Action {
			case model.TopicUpdateSubscribe:
				if err := m.AddTopics(ctx, id, upd.Topics); err != nil {
					m.log.Warn().Err(err).Int64("subscription_id", id).Msg("AddTopics failed from updates stream")
				}
			case model.TopicUpdateUnsubscribe:
				_ = m.RemoveTopics(id, upd.Topics)
			}
		}
	}
}

// removeSubscription performs the atomic subscription-cancellation
// algorithm: remove from the registry, decrement its topics (emitting
// 1->0 transitions fire-and-forget), and drop the record. The channel
// itself is already closed by the time this runs (it is the channel's
// own Cleanup hook).
func (m *Manager[V, K]) removeSubscription(id int64) {
	m.mu.Lock()
	rec, ok := m.subscriptions[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.subscriptions, id)
	topics := make([]K, 0, len(rec.topics))
	for t := range rec.topics {
		topics = append(topics, t)
	}
	newlyInactive := m.decrementTopicsLocked(topics)
	m.mu.Unlock()

	if len(newlyInactive) > 0 {
		m.notifyRemoved(newlyInactive)
	}
}

// GetSubscribedTopics returns a snapshot of every topic with at least
// one live subscriber.
func (m *Manager[V, K]) GetSubscribedTopics() []K {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]K, 0, len(m.subscriberCnt))
	for t := range m.subscriberCnt {
		out = append(out, t)
	}
	return out
}

// Publish selects every current subscription whose topic set matches
// value's topic (or, in MatchAll mode, every live subscription) and
// enqueues value for delivery. It returns true iff value entered the
// internal dispatch queue; it never blocks more than the queue send
// does.
func (m *Manager[V, K]) Publish(value V) bool {
	if m.disposed() {
		return false
	}

	var msgTopic K
	var hasTopic bool
	if !m.cfg.MatchAll {
		if m.cfg.TopicOf == nil {
			return false
		}
		msgTopic, hasTopic = m.cfg.TopicOf(value)
		if !hasTopic {
			return false
		}
	}

	m.mu.RLock()
	var targets []*subscriptionRecord[K, V]
	for _, rec := range m.subscriptions {
		if m.cfg.MatchAll {
			targets = append(targets, rec)
			continue
		}
		for t := range rec.topics {
			if m.cfg.Match(t, msgTopic) {
				targets = append(targets, rec)
				break
			}
		}
	}
	m.mu.RUnlock()

	select {
	case m.masterQueue <- dispatchEntry[K, V]{value: value, targets: targets}:
		return true
	case <-m.disposeCtx.Done():
		return false
	}
}

func (m *Manager[V, K]) runDispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case entry := <-m.masterQueue:
			for _, target := range entry.targets {
				if !target.channel.Publish(entry.value) {
					m.dispatchFailed.Add(1)
					m.logDispatchFailure(target.id)
				}
			}
		}
	}
}

func (m *Manager[V, K]) logDispatchFailure(id int64) {
	log := func() {
		m.log.Warn().Int64("subscription_id", id).Msg("dispatch to subscriber failed, continuing with remaining subscribers")
	}
	if m.logDebounce != nil {
		m.logDebounce(log)
		return
	}
	log()
}

func (m *Manager[V, K]) runTopicChangeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case change := <-m.topicChangesQueue:
			m.processTopicChange(ctx, change)
		}
	}
}

func (m *Manager[V, K]) processTopicChange(ctx context.Context, change topicChangeEntry[K]) {
	defer func() {
		if r := recover(); r != nil {
			err := errs.B().Code(errs.UpstreamHookFailure).Msgf("topic hook panicked: %v", r).Err()
			if change.ack != nil {
				change.ack <- err
			}
			m.log.Error().Interface("panic", r).Msg("topic change hook panicked")
		}
	}()

	if change.added {
		var err error
		if m.cfg.OnTopicsAdded != nil {
			err = m.cfg.OnTopicsAdded(ctx, change.topics)
		}
		if change.ack != nil {
			change.ack <- err
		}
		if err != nil {
			m.log.Error().Err(err).Interface("topics", change.topics).Msg("OnTopicsAdded failed")
		}
		return
	}

	if m.cfg.OnTopicsRemoved != nil {
		if err := m.cfg.OnTopicsRemoved(ctx, change.topics); err != nil {
			m.log.Error().Err(err).Interface("topics", change.topics).Msg("OnTopicsRemoved failed")
		}
	}
}

// DispatchFailedCount reports the cumulative count of individual
// subscriber delivery failures across the manager's lifetime.
func (m *Manager[V, K]) DispatchFailedCount() int64 {
	return m.dispatchFailed.Load()
}

// Shutdown cancels the dispose signal, waits for the dispatch and
// topic-change loops to exit (entries still queued are discarded), and
// cancels every live subscription. After Shutdown returns, Subscribe
// fails with Disposed and Publish returns false.
func (m *Manager[V, K]) Shutdown() {
	if m.disposed() {
		return
	}
	m.disposeCancel()
	m.wg.Wait()

	m.mu.Lock()
	recs := make([]*subscriptionRecord[K, V], 0, len(m.subscriptions))
	for _, rec := range m.subscriptions {
		recs = append(recs, rec)
	}
	m.mu.Unlock()

	for _, rec := range recs {
		rec.channel.Cancel()
	}
}
