// Package eventstore implements a capacity-bounded, cursor-ordered
// in-memory event message ring: it accepts writes, evicts FIFO past
// capacity, and serves both push subscribers (with and without topics)
// and historical readers.
package eventstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/btree"
	"github.com/google/uuid"
	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"github.com/intelligentplant/appstoreconnect-adapters-core/errs"
	"github.com/intelligentplant/appstoreconnect-adapters-core/exec"
	"github.com/intelligentplant/appstoreconnect-adapters-core/model"
	"github.com/intelligentplant/appstoreconnect-adapters-core/rlog"
	"github.com/intelligentplant/appstoreconnect-adapters-core/topicsub"
)

// btreeDegree mirrors a typical in-memory btree store degree (16),
// rounded up slightly since events accumulate faster than object-storage
// listings do.
const btreeDegree = 32

type storedEvent struct {
	cursor  model.CursorPosition
	message model.EventMessage
}

func (e *storedEvent) Less(than btree.Item) bool {
	return e.cursor.Less(than.(*storedEvent).cursor)
}

// Config configures a Store.
type Config struct {
	// Capacity bounds the number of retained messages. <= 0 means
	// unbounded.
	Capacity int
	Executor exec.Executor
	Log      *zerolog.Logger
}

// Store is a capacity-bounded, cursor-ordered, concurrency-safe ring of
// EventMessages.
type Store struct {
	capacity int
	log      zerolog.Logger
	executor exec.Executor

	mu    sync.RWMutex
	tree  *btree.BTree
	count int
	seq   atomic.Int64

	topicless  *topicsub.Manager[model.EventMessage, string]
	topicaware *topicsub.Manager[model.EventMessage, string]
}

// New constructs a Store with its two embedded push managers (topic-less
// and topic-aware).
func New(cfg Config) *Store {
	if cfg.Executor == nil {
		cfg.Executor = exec.NewGoroutineExecutor(cfg.Log)
	}
	log := rlog.WithLogger(cfg.Log, "eventstore")

	s := &Store{
		capacity: cfg.Capacity,
		log:      log,
		executor: cfg.Executor,
		tree:     btree.New(btreeDegree),
	}

	s.topicless = topicsub.New[model.EventMessage, string](topicsub.Config[model.EventMessage, string]{
		MatchAll: true,
		Executor: cfg.Executor,
		Log:      cfg.Log,
	})
	s.topicaware = topicsub.New[model.EventMessage, string](topicsub.Config[model.EventMessage, string]{
		TopicOf: func(m model.EventMessage) (string, bool) {
			if m.Topic == "" {
				return "", false
			}
			return m.Topic, true
		},
		Executor: cfg.Executor,
		Log:      cfg.Log,
	})

	return s
}

// Shutdown disposes both embedded push managers. Idempotent.
func (s *Store) Shutdown() {
	s.topicless.Shutdown()
	s.topicaware.Shutdown()
}

func (s *Store) nextSequence() int64 {
	return s.seq.Add(1)
}

// WriteEventMessages consumes items and produces one result per item,
// in order, writing each message to the store and fanning it out to
// both push managers before emitting its result.
func (s *Store) WriteEventMessages(ctx context.Context, items <-chan model.WriteEventMessageItem) <-chan model.WriteEventMessageResult {
	out := make(chan model.WriteEventMessageResult)
	s.executor.Go(ctx, func(ctx context.Context) {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case item, ok := <-items:
				if !ok {
					return
				}
				result := s.writeOne(item)
				select {
				case out <- result:
				case <-ctx.Done():
					return
				}
			}
		}
	})
	return out
}

func (s *Store) writeOne(item model.WriteEventMessageItem) model.WriteEventMessageResult {
	msg := item.EventMessage.Clone()
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	correlationID := item.CorrelationID
	if correlationID == "" {
		// xid's k-sortable ids let an adapter log write results without
		// needing its own correlation scheme when the caller didn't
		// supply one.
		correlationID = xid.New().String()
	}

	cursor := model.CursorPosition{Primary: msg.UTCEventTime.UnixNano(), Secondary: s.nextSequence()}

	s.mu.Lock()
	s.tree.ReplaceOrInsert(&storedEvent{cursor: cursor, message: msg})
	s.count++
	if s.capacity > 0 {
		for s.count > s.capacity {
			oldest := s.tree.Min()
			if oldest == nil {
				break
			}
			s.tree.Delete(oldest)
			s.count--
		}
	}
	s.mu.Unlock()

	s.topicless.Publish(msg)
	s.topicaware.Publish(msg)

	return model.WriteEventMessageResult{
		CorrelationID: correlationID,
		Status:        model.WriteSuccess,
		Properties: []model.ResultProperty{
			{Name: model.CursorPositionPropertyName, Value: cursor.String()},
		},
	}
}

// Len reports the number of messages currently retained.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// SubscribeTopicless subscribes to every message written to the store,
// regardless of topic.
func (s *Store) SubscribeTopicless(req topicsub.SubscribeRequest[string]) (int64, <-chan model.EventMessage, error) {
	return s.topicless.Subscribe(req)
}

// SubscribeTopics subscribes to messages whose topic matches one of the
// subscription's topics.
func (s *Store) SubscribeTopics(req topicsub.SubscribeRequest[string]) (int64, <-chan model.EventMessage, error) {
	return s.topicaware.Subscribe(req)
}

// ReadEventMessagesForTimeRange implements the "read-by-time" external
// interface: filter by [UTCStartTime, UTCEndTime], optional
// case-insensitive topic-set membership, optional reverse order, then
// page.
func (s *Store) ReadEventMessagesForTimeRange(req model.ReadByTimeRequest) ([]model.CursorReadResult, error) {
	if req.PageSize < 1 {
		return nil, errs.B().Code(errs.InvalidArgument).Msg("pageSize must be >= 1").Err()
	}
	if req.Page < 1 {
		return nil, errs.B().Code(errs.InvalidArgument).Msg("page must be >= 1").Err()
	}
	if req.UTCEndTime.Before(req.UTCStartTime) {
		return nil, errs.B().Code(errs.InvalidArgument).Msg("utcEndTime must not be before utcStartTime").Err()
	}

	topicSet := make(map[string]struct{}, len(req.Topics))
	for _, t := range req.Topics {
		topicSet[strings.ToLower(t)] = struct{}{}
	}

	var matched []storedEvent
	s.mu.RLock()
	s.tree.Ascend(func(item btree.Item) bool {
		e := item.(*storedEvent)
		t := e.message.UTCEventTime
		if t.Before(req.UTCStartTime) || t.After(req.UTCEndTime) {
			return true
		}
		if len(topicSet) > 0 {
			if _, ok := topicSet[strings.ToLower(e.message.Topic)]; !ok {
				return true
			}
		}
		matched = append(matched, *e)
		return true
	})
	s.mu.RUnlock()

	if req.Direction == model.Backwards {
		sort.SliceStable(matched, func(i, j int) bool { return matched[j].cursor.Less(matched[i].cursor) })
	}

	start := req.PageSize * (req.Page - 1)
	if start >= len(matched) {
		return []model.CursorReadResult{}, nil
	}
	end := start + req.PageSize
	if end > len(matched) {
		end = len(matched)
	}

	out := make([]model.CursorReadResult, 0, end-start)
	for _, e := range matched[start:end] {
		out = append(out, model.CursorReadResult{Cursor: e.cursor.String(), EventMessage: e.message.Clone()})
	}
	return out, nil
}

// ReadEventMessagesUsingCursor implements the "read-by-cursor" external
// interface. A missing cursor starts at the beginning (Forwards) or end
// (Backwards). A cursor that fails to parse, or that does not match a
// message currently in the store, yields an empty result rather than an
// error.
func (s *Store) ReadEventMessagesUsingCursor(req model.ReadByCursorRequest) ([]model.CursorReadResult, error) {
	if req.PageSize < 1 {
		return nil, errs.B().Code(errs.InvalidArgument).Msg("pageSize must be >= 1").Err()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var after *model.CursorPosition
	if req.CursorPosition != "" {
		c, ok := model.TryParseCursorPosition(req.CursorPosition)
		if !ok {
			return []model.CursorReadResult{}, nil
		}
		if !s.containsLocked(c) {
			return []model.CursorReadResult{}, nil
		}
		after = &c
	}

	var out []model.CursorReadResult
	visit := func(item btree.Item) bool {
		e := item.(*storedEvent)
		if req.Topic != "" && !strings.EqualFold(e.message.Topic, req.Topic) {
			return true
		}
		out = append(out, model.CursorReadResult{Cursor: e.cursor.String(), EventMessage: e.message.Clone()})
		return len(out) < req.PageSize
	}

	switch req.Direction {
	case model.Backwards:
		if after == nil {
			s.tree.Descend(visit)
		} else {
			s.tree.DescendLT(&storedEvent{cursor: *after}, visit)
		}
	default:
		if after == nil {
			s.tree.Ascend(visit)
		} else {
			s.tree.AscendGreaterOrEqual(&storedEvent{cursor: nextCursor(*after)}, visit)
		}
	}

	return out, nil
}

// containsLocked reports whether c is the cursor of a message currently
// retained. Callers must hold s.mu for at least reading.
func (s *Store) containsLocked(c model.CursorPosition) bool {
	return s.tree.Get(&storedEvent{cursor: c}) != nil
}

// nextCursor returns the smallest CursorPosition strictly greater than
// c, used to turn "key > cursor" into an inclusive AscendGreaterOrEqual
// scan against the btree.
func nextCursor(c model.CursorPosition) model.CursorPosition {
	if c.Secondary == int64(^uint64(0)>>1) {
		return model.CursorPosition{Primary: c.Primary + 1, Secondary: -1 << 63}
	}
	return model.CursorPosition{Primary: c.Primary, Secondary: c.Secondary + 1}
}
