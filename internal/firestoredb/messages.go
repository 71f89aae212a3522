package firestoredb

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/convkey"
	"github.com/matheus3301/chatsync/internal/metrics"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Messages is the Firestore-backed chat.MessageStore. Items are ordered by
// document id; ids are UUIDv7 so lexical order follows assignment order.
type Messages struct {
	client       *firestore.Client
	bus          *bus.Bus
	logger       *zap.Logger
	writeTimeout time.Duration
	buffer       int
}

var _ chat.MessageStore = (*Messages)(nil)

// NewMessages creates the message store. b may be nil.
func NewMessages(client *firestore.Client, b *bus.Bus, logger *zap.Logger, writeTimeout time.Duration, buffer int) *Messages {
	if logger == nil {
		logger = zap.NewNop()
	}
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	if buffer <= 0 {
		buffer = 64
	}
	return &Messages{client: client, bus: b, logger: logger, writeTimeout: writeTimeout, buffer: buffer}
}

func (m *Messages) Append(ctx context.Context, conversationKey, senderID, recipientID string, text string) (chat.Message, error) {
	peer, err := convkey.Peer(conversationKey, senderID)
	if err != nil {
		return chat.Message{}, err
	}
	if recipientID != "" && recipientID != peer {
		return chat.Message{}, fmt.Errorf("recipient %q is not a participant of %s: %w", recipientID, conversationKey, chat.ErrInvalidUID)
	}
	if text == "" {
		return chat.Message{}, chat.ErrEmptyText
	}
	id, err := uuid.NewV7()
	if err != nil {
		return chat.Message{}, fmt.Errorf("generate msg id: %w", err)
	}

	doc := messageDoc{Text: text, SenderID: senderID, RecipientID: peer, SentAt: time.Now().UTC()}

	ctx, cancel := context.WithTimeout(ctx, m.writeTimeout)
	defer cancel()
	if _, err := items(m.client, conversationKey).Doc(id.String()).Create(ctx, doc); err != nil {
		metrics.IncWriteError("append")
		return chat.Message{}, &chat.WriteError{Op: "append", Err: err}
	}
	metrics.IncAppended()

	msg := doc.message(conversationKey, id.String())
	if m.bus != nil {
		m.bus.Publish(bus.Event{Kind: bus.KindMessageAdded, Topic: conversationKey, Timestamp: time.Now(), Payload: msg})
	}
	return msg, nil
}

func (m *Messages) SetLiked(ctx context.Context, conversationKey, msgID string, liked bool) error {
	if _, _, err := convkey.Participants(conversationKey); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, m.writeTimeout)
	defer cancel()

	ref := items(m.client, conversationKey).Doc(msgID)
	var (
		changed bool
		doc     messageDoc
	)
	err := m.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		changed = false
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		if err := snap.DataTo(&doc); err != nil {
			return err
		}
		if doc.Liked == liked {
			return nil
		}
		changed = true
		return tx.Update(ref, []firestore.Update{{Path: "liked", Value: liked}})
	})
	if status.Code(err) == codes.NotFound {
		metrics.IncLike("not_found")
		return fmt.Errorf("set liked %s: %w", msgID, chat.ErrNotFound)
	}
	if err != nil {
		metrics.IncWriteError("set_liked")
		return &chat.WriteError{Op: "set_liked", Err: err}
	}
	if !changed {
		metrics.IncLike("noop")
		return nil
	}
	metrics.IncLike("changed")

	if m.bus != nil {
		doc.Liked = liked
		m.bus.Publish(bus.Event{Kind: bus.KindMessageChanged, Topic: conversationKey, Timestamp: time.Now(), Payload: doc.message(conversationKey, msgID)})
	}
	return nil
}

// Subscribe follows the conversation with a snapshot listener. The first
// snapshot reports every existing item as added; later snapshots report
// appends as Added and modifications as Changed. Removals are logged and
// ignored.
func (m *Messages) Subscribe(ctx context.Context, conversationKey string) (chat.Subscription, error) {
	if _, _, err := convkey.Participants(conversationKey); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	it := items(m.client, conversationKey).OrderBy(firestore.DocumentID, firestore.Asc).Snapshots(ctx)
	s := &snapshotSub{
		events: make(chan chat.Event, m.buffer),
		done:   make(chan struct{}),
		cancel: cancel,
		it:     it,
		key:    conversationKey,
		logger: m.logger.With(zap.String("conversation_key", conversationKey)),
	}
	metrics.IncSubscriptions()
	go s.run(ctx)
	return s, nil
}

type snapshotSub struct {
	events chan chat.Event
	done   chan struct{}
	once   sync.Once
	cancel context.CancelFunc
	it     *firestore.QuerySnapshotIterator
	key    string
	logger *zap.Logger
}

func (s *snapshotSub) Events() <-chan chat.Event { return s.events }

func (s *snapshotSub) Close() {
	s.once.Do(func() {
		close(s.done)
		s.cancel()
		metrics.DecSubscriptions()
	})
}

func (s *snapshotSub) run(ctx context.Context) {
	defer close(s.events)
	defer s.Close()
	defer s.it.Stop()

	for {
		snap, err := s.it.Next()
		if err != nil {
			if ctx.Err() == nil && status.Code(err) != codes.Canceled {
				s.logger.Warn("snapshot listener ended", zap.Error(err))
			}
			return
		}
		for _, change := range snap.Changes {
			var kind chat.EventKind
			switch change.Kind {
			case firestore.DocumentAdded:
				kind = chat.Added
			case firestore.DocumentModified:
				kind = chat.Changed
			default:
				s.logger.Warn("unhandled change kind ignored",
					zap.String("msg_id", change.Doc.Ref.ID), zap.Int("kind", int(change.Kind)))
				continue
			}
			var doc messageDoc
			if err := change.Doc.DataTo(&doc); err != nil {
				s.logger.Warn("undecodable message ignored", zap.String("msg_id", change.Doc.Ref.ID), zap.Error(err))
				continue
			}
			select {
			case s.events <- chat.Event{Kind: kind, Message: doc.message(s.key, change.Doc.Ref.ID)}:
			case <-s.done:
				return
			}
		}
	}
}
