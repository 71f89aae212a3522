package msglog

import (
	"context"
	"sync"
	"time"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/convkey"
	"github.com/matheus3301/chatsync/internal/metrics"
	"github.com/matheus3301/chatsync/internal/store"
	"go.uber.org/zap"
)

const pageSize = 500

// cursor marks how far a subscription has read the log. fresh holds the
// revisions of rows delivered as Added in the last round, so a row inserted
// after the round's watermark is not repeated as Changed.
type cursor struct {
	seq   int64
	rev   int64
	fresh map[string]int64
}

type subscription struct {
	log    *Log
	key    string
	events chan chat.Event
	done   chan struct{}
	once   sync.Once
	unsub  func()
	logger *zap.Logger
}

// Subscribe opens a live view of a conversation. All existing messages are
// delivered first as Added in seq order. After that each catch-up round,
// triggered by a bus notification or the poll interval, delivers new
// messages as Added and mutated ones as Changed.
//
// Within one round every Added precedes every Changed, so a like committed
// before a newer append may arrive after that append. Each id is Added
// exactly once and its last event carries the stored state.
func (l *Log) Subscribe(ctx context.Context, conversationKey string) (chat.Subscription, error) {
	if _, _, err := convkey.Participants(conversationKey); err != nil {
		return nil, err
	}

	// Listen before the first read so no notification falls between the
	// snapshot and the loop.
	var (
		notify <-chan bus.Event
		unsub  = func() {}
	)
	if l.bus != nil {
		notify, unsub = l.bus.SubscribeTopic("message.", conversationKey, 16)
	}

	s := &subscription{
		log:    l,
		key:    conversationKey,
		events: make(chan chat.Event, l.opts.Buffer),
		done:   make(chan struct{}),
		unsub:  unsub,
		logger: l.logger.With(zap.String("conversation_key", conversationKey)),
	}
	metrics.IncSubscriptions()
	go s.run(ctx, notify)
	return s, nil
}

func (s *subscription) Events() <-chan chat.Event {
	return s.events
}

// Close stops delivery. Safe to call more than once and concurrently with
// an in-flight delivery.
func (s *subscription) Close() {
	s.once.Do(func() {
		close(s.done)
		s.unsub()
		metrics.DecSubscriptions()
	})
}

func (s *subscription) run(ctx context.Context, notify <-chan bus.Event) {
	defer close(s.events)
	defer s.Close()

	ticker := time.NewTicker(s.log.opts.PollInterval)
	defer ticker.Stop()

	var cur cursor
	for {
		next, ok := s.catchUp(ctx, cur)
		if !ok {
			return
		}
		cur = next

		select {
		case <-notify:
		case <-ticker.C:
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// catchUp delivers everything that happened after cur and returns the new
// cursor. It returns false when the subscription ended mid-delivery.
func (s *subscription) catchUp(ctx context.Context, cur cursor) (cursor, bool) {
	db := s.log.db

	// Read the revision watermark first: changes committed after this point
	// are picked up by the next round.
	maxRev, err := db.MaxRev(ctx, s.key)
	if err != nil {
		s.readFailed(ctx, err)
		return cur, s.alive(ctx)
	}

	next := cursor{seq: cur.seq, rev: cur.rev, fresh: make(map[string]int64)}
	for {
		added, err := db.MessagesAfter(ctx, s.key, next.seq, pageSize)
		if err != nil {
			s.readFailed(ctx, err)
			return cur, s.alive(ctx)
		}
		for _, m := range added {
			if !s.deliver(ctx, chat.Added, m) {
				return next, false
			}
			next.seq = m.Seq
			next.fresh[m.MsgID] = m.Rev
		}
		if len(added) < pageSize {
			break
		}
	}

	if cur.seq > 0 && maxRev > cur.rev {
		changed, err := db.MessagesChanged(ctx, s.key, cur.seq, cur.rev, maxRev)
		if err != nil {
			s.readFailed(ctx, err)
			// Added rows are already delivered; keep the old revision so
			// the changes are retried.
			return cursor{seq: next.seq, rev: cur.rev, fresh: next.fresh}, s.alive(ctx)
		}
		for _, m := range changed {
			if rev, ok := cur.fresh[m.MsgID]; ok && rev == m.Rev {
				continue
			}
			if !s.deliver(ctx, chat.Changed, m) {
				return next, false
			}
		}
	}
	next.rev = maxRev
	return next, true
}

func (s *subscription) deliver(ctx context.Context, kind chat.EventKind, m store.StoredMessage) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.events <- chat.Event{Kind: kind, Message: m.Message}:
		return true
	case <-s.done:
		return false
	case <-ctx.Done():
		return false
	}
}

func (s *subscription) alive(ctx context.Context) bool {
	select {
	case <-s.done:
		return false
	case <-ctx.Done():
		return false
	default:
		return true
	}
}

func (s *subscription) readFailed(ctx context.Context, err error) {
	if ctx.Err() != nil {
		return
	}
	s.logger.Warn("subscription read failed, retrying on next round", zap.Error(err))
}
