// Package chat holds the domain types shared by the message log, the inbox
// summaries, the notification relay and the session controller.
package chat

import (
	"context"
	"time"
)

// User is a registered participant as seen by the directory.
type User struct {
	UID         string `json:"uid"`
	Name        string `json:"name"`
	ThumbImage  string `json:"thumbImage"`
	DeviceToken string `json:"deviceToken,omitempty"`
}

// Display returns the metadata shown to the user's peers.
func (u User) Display() Display {
	return Display{Name: u.Name, Image: u.ThumbImage}
}

// Display is the peer metadata denormalized into inbox rows.
type Display struct {
	Name  string `json:"name"`
	Image string `json:"image"`
}

// Message is one entry of a conversation log. Only Liked is mutable.
type Message struct {
	MsgID           string    `json:"msgId"`
	ConversationKey string    `json:"conversationKey"`
	Text            string    `json:"text"`
	SenderID        string    `json:"senderId"`
	RecipientID     string    `json:"recipientId"`
	SentAt          time.Time `json:"sentAt"`
	Liked           bool      `json:"liked"`
	// Seq is the store-assigned ordering key. Zero when the backend orders by MsgID.
	Seq int64 `json:"seq,omitempty"`
}

// InboxRow is the per-(owner, peer) conversation summary.
type InboxRow struct {
	OwnerUID    string    `json:"ownerUid"`
	PeerUID     string    `json:"peerUid"`
	LastMessage string    `json:"lastMessage"`
	From        string    `json:"from"`
	PeerName    string    `json:"peerName"`
	PeerImage   string    `json:"peerImage"`
	UnreadCount int       `json:"unreadCount"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// EventKind distinguishes subscription events.
type EventKind string

const (
	Added   EventKind = "added"
	Changed EventKind = "changed"
)

// Event is a change observed on a conversation log.
type Event struct {
	Kind    EventKind `json:"kind"`
	Message Message   `json:"message"`
}

// Subscription is a live view of one conversation log. Events delivers every
// existing message once as Added, then later appends as Added and mutations as
// Changed. Delivery is at-least-once; consumers apply events idempotently by
// MsgID. Close stops delivery and may be called more than once.
type Subscription interface {
	Events() <-chan Event
	Close()
}

// MessageStore is the append-only per-conversation message log.
type MessageStore interface {
	Append(ctx context.Context, conversationKey, senderID, recipientID, text string) (Message, error)
	SetLiked(ctx context.Context, conversationKey, msgID string, liked bool) error
	Subscribe(ctx context.Context, conversationKey string) (Subscription, error)
}

// Directory resolves uids to user records.
type Directory interface {
	Lookup(ctx context.Context, uid string) (User, error)
}
