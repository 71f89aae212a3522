// Package msglog implements the append-only per-conversation message log on
// top of the SQLite store, with live subscriptions driven by the event bus.
package msglog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/convkey"
	"github.com/matheus3301/chatsync/internal/metrics"
	"github.com/matheus3301/chatsync/internal/store"
	"go.uber.org/zap"
)

// Options tune write timeouts and subscription delivery.
type Options struct {
	// WriteTimeout bounds Append and SetLiked. Expiry surfaces chat.WriteError.
	WriteTimeout time.Duration
	// PollInterval is how often subscriptions re-read the log when no bus
	// notification arrives.
	PollInterval time.Duration
	// Buffer is the capacity of each subscription's event channel.
	Buffer int
}

func (o Options) withDefaults() Options {
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.Buffer <= 0 {
		o.Buffer = 64
	}
	return o
}

// Log is the SQLite-backed chat.MessageStore.
type Log struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger
	opts   Options
	now    func() time.Time
}

var _ chat.MessageStore = (*Log)(nil)

// New creates a message log.
func New(db *store.DB, b *bus.Bus, logger *zap.Logger, opts Options) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{
		db:     db,
		bus:    b,
		logger: logger,
		opts:   opts.withDefaults(),
		now:    time.Now,
	}
}

// Append stores a new message and notifies subscribers. recipientID may be
// empty, in which case it is derived from the conversation key.
func (l *Log) Append(ctx context.Context, conversationKey, senderID, recipientID, text string) (chat.Message, error) {
	recipientID, err := checkParticipants(conversationKey, senderID, recipientID)
	if err != nil {
		return chat.Message{}, err
	}
	if text == "" {
		return chat.Message{}, chat.ErrEmptyText
	}

	id, err := uuid.NewV7()
	if err != nil {
		return chat.Message{}, fmt.Errorf("generate msg id: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, l.opts.WriteTimeout)
	defer cancel()

	stored, err := l.db.InsertMessage(ctx, chat.Message{
		MsgID:           id.String(),
		ConversationKey: conversationKey,
		Text:            text,
		SenderID:        senderID,
		RecipientID:     recipientID,
		SentAt:          l.now(),
	})
	if err != nil {
		metrics.IncWriteError("append")
		return chat.Message{}, &chat.WriteError{Op: "append", Err: err}
	}
	metrics.IncAppended()

	l.publish(bus.KindMessageAdded, stored.Message)
	return stored.Message, nil
}

// SetLiked updates the liked flag of a message. Setting the current value is
// a no-op; an unknown id returns chat.ErrNotFound.
func (l *Log) SetLiked(ctx context.Context, conversationKey, msgID string, liked bool) error {
	if _, _, err := convkey.Participants(conversationKey); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, l.opts.WriteTimeout)
	defer cancel()

	msg, changed, err := l.db.SetLiked(ctx, conversationKey, msgID, liked)
	if errors.Is(err, chat.ErrNotFound) {
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

	l.publish(bus.KindMessageChanged, msg.Message)
	return nil
}

// History returns up to limit messages older than beforeSeq, newest first.
// beforeSeq <= 0 starts from the most recent message.
func (l *Log) History(ctx context.Context, conversationKey string, beforeSeq int64, limit int) ([]chat.Message, error) {
	if _, _, err := convkey.Participants(conversationKey); err != nil {
		return nil, err
	}
	rows, err := l.db.ListMessages(ctx, conversationKey, beforeSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	out := make([]chat.Message, len(rows))
	for i, r := range rows {
		out[i] = r.Message
	}
	return out, nil
}

func (l *Log) publish(kind string, msg chat.Message) {
	if l.bus == nil {
		return
	}
	l.bus.Publish(bus.Event{
		Kind:      kind,
		Topic:     msg.ConversationKey,
		Timestamp: l.now(),
		Payload:   msg,
	})
}

// checkParticipants validates the key and the sender's membership and
// returns the recipient.
func checkParticipants(conversationKey, senderID, recipientID string) (string, error) {
	peer, err := convkey.Peer(conversationKey, senderID)
	if err != nil {
		return "", err
	}
	if recipientID != "" && recipientID != peer {
		return "", fmt.Errorf("recipient %q is not a participant of %s: %w", recipientID, conversationKey, chat.ErrInvalidUID)
	}
	return peer, nil
}
