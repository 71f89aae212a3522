// Package inbox maintains the per-(owner, peer) conversation summaries that
// back each participant's chat list.
package inbox

import (
	"context"
	"fmt"
	"time"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/convkey"
	"github.com/matheus3301/chatsync/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Store is the backend holding inbox rows. RecordSent must write the
// sender's row and read-modify-write the recipient's row atomically.
type Store interface {
	RecordSent(ctx context.Context, own chat.InboxRow, recipientOwner, recipientPeer string, next func(prev *chat.InboxRow) chat.InboxRow) error
	ResetUnread(ctx context.Context, owner, peer string) (bool, error)
	ListInbox(ctx context.Context, owner string) ([]chat.InboxRow, error)
}

// Sent describes a message that was just appended to a conversation log.
type Sent struct {
	ConversationKey  string       `json:"conversationKey"`
	SenderID         string       `json:"senderId"`
	RecipientID      string       `json:"recipientId"`
	MsgID            string       `json:"msgId"`
	Text             string       `json:"text"`
	SentAt           time.Time    `json:"sentAt"`
	RecipientDisplay chat.Display `json:"recipientDisplay"`
	// SenderDisplay is shown on the recipient's row. Looked up in the
	// directory when nil.
	SenderDisplay *chat.Display `json:"senderDisplay,omitempty"`
}

// NextRecipientRow computes the recipient's row after a message from
// sent.SenderID. The unread counter grows on top of prev only while the
// previous last message was also from the sender; otherwise it restarts at 1.
func NextRecipientRow(prev *chat.InboxRow, sent Sent, senderDisplay chat.Display) chat.InboxRow {
	unread := 1
	if prev != nil && prev.From == sent.SenderID {
		unread = prev.UnreadCount + 1
	}
	return chat.InboxRow{
		OwnerUID:    sent.RecipientID,
		PeerUID:     sent.SenderID,
		LastMessage: sent.Text,
		From:        sent.SenderID,
		PeerName:    senderDisplay.Name,
		PeerImage:   senderDisplay.Image,
		UnreadCount: unread,
		UpdatedAt:   sent.SentAt,
	}
}

// Summary is the InboxSummary component.
type Summary struct {
	store  Store
	dir    chat.Directory
	bus    *bus.Bus
	logger *zap.Logger
	now    func() time.Time
}

// New creates an inbox summary over store. dir and b may be nil.
func New(store Store, dir chat.Directory, b *bus.Bus, logger *zap.Logger) *Summary {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Summary{store: store, dir: dir, bus: b, logger: logger, now: time.Now}
}

// OnMessageSent updates both rows of the conversation for a new message:
// the sender's row is written as read, the recipient's row gains the
// message and an incremented unread counter.
func (s *Summary) OnMessageSent(ctx context.Context, sent Sent) error {
	ctx, span := otel.Tracer("chatsync/inbox").Start(ctx, "inbox.on_message_sent")
	defer span.End()
	span.SetAttributes(
		attribute.String("conversation_key", sent.ConversationKey),
		attribute.String("sender_id", sent.SenderID),
	)

	if err := s.normalize(&sent); err != nil {
		span.RecordError(err)
		return err
	}

	senderDisplay, err := s.senderDisplay(ctx, sent)
	if err != nil {
		span.RecordError(err)
		return err
	}

	own := chat.InboxRow{
		OwnerUID:    sent.SenderID,
		PeerUID:     sent.RecipientID,
		LastMessage: sent.Text,
		From:        sent.SenderID,
		PeerName:    sent.RecipientDisplay.Name,
		PeerImage:   sent.RecipientDisplay.Image,
		UnreadCount: 0,
		UpdatedAt:   sent.SentAt,
	}

	var written chat.InboxRow
	err = s.store.RecordSent(ctx, own, sent.RecipientID, sent.SenderID, func(prev *chat.InboxRow) chat.InboxRow {
		written = NextRecipientRow(prev, sent, senderDisplay)
		return written
	})
	if err != nil {
		metrics.IncWriteError("inbox_sent")
		span.RecordError(err)
		return &chat.WriteError{Op: "inbox_sent", Err: err}
	}
	metrics.IncInbox("sent")

	s.logger.Debug("inbox rows updated",
		zap.String("conversation_key", sent.ConversationKey),
		zap.String("msg_id", sent.MsgID),
		zap.String("sender_id", sent.SenderID),
		zap.String("recipient_id", sent.RecipientID),
		zap.Int("unread_count", written.UnreadCount))

	s.publish(own)
	s.publish(written)
	return nil
}

// MarkRead resets the unread counter of (owner, peer). The last message is
// left untouched and a missing row is not created.
func (s *Summary) MarkRead(ctx context.Context, owner, peer string) error {
	if !convkey.ValidUID(owner) || !convkey.ValidUID(peer) {
		return fmt.Errorf("mark read %q/%q: %w", owner, peer, chat.ErrInvalidUID)
	}
	found, err := s.store.ResetUnread(ctx, owner, peer)
	if err != nil {
		metrics.IncWriteError("mark_read")
		return &chat.WriteError{Op: "mark_read", Err: err}
	}
	metrics.IncInbox("read")
	if found {
		s.publish(chat.InboxRow{OwnerUID: owner, PeerUID: peer})
	}
	return nil
}

// List returns owner's rows, most recently updated first.
func (s *Summary) List(ctx context.Context, owner string) ([]chat.InboxRow, error) {
	if !convkey.ValidUID(owner) {
		return nil, fmt.Errorf("list inbox %q: %w", owner, chat.ErrInvalidUID)
	}
	rows, err := s.store.ListInbox(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list inbox: %w", err)
	}
	return rows, nil
}

func (s *Summary) normalize(sent *Sent) error {
	if sent.RecipientID == "" {
		peer, err := convkey.Peer(sent.ConversationKey, sent.SenderID)
		if err != nil {
			return err
		}
		sent.RecipientID = peer
	}
	if convkey.Derive(sent.SenderID, sent.RecipientID) != sent.ConversationKey {
		return fmt.Errorf("%s and %s do not form %s: %w", sent.SenderID, sent.RecipientID, sent.ConversationKey, chat.ErrInvalidUID)
	}
	if sent.SentAt.IsZero() {
		sent.SentAt = s.now()
	}
	return nil
}

func (s *Summary) senderDisplay(ctx context.Context, sent Sent) (chat.Display, error) {
	if sent.SenderDisplay != nil {
		return *sent.SenderDisplay, nil
	}
	if s.dir == nil {
		return chat.Display{}, nil
	}
	u, err := s.dir.Lookup(ctx, sent.SenderID)
	if err != nil {
		return chat.Display{}, fmt.Errorf("lookup sender %s: %w", sent.SenderID, err)
	}
	return u.Display(), nil
}

func (s *Summary) publish(row chat.InboxRow) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(bus.Event{
		Kind:      bus.KindInboxUpdated,
		Topic:     row.OwnerUID,
		Timestamp: s.now(),
		Payload:   row,
	})
}
