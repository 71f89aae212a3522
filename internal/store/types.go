package store

import "github.com/matheus3301/chatsync/internal/chat"

// StoredMessage is a message row together with its change revision.
// Rev is global across conversations and grows on insert and on every
// effective mutation.
type StoredMessage struct {
	chat.Message
	Rev int64
}

// Delivery statuses recorded by the notification relay.
const (
	DeliveryPending = "pending"
	DeliverySent    = "sent"
	DeliveryFailed  = "failed"
	DeliverySkipped = "skipped"
)

// Delivery is one row of the relay's delivery log.
type Delivery struct {
	MsgID        string
	RecipientID  string
	Status       string
	ErrorMessage string
	UpdatedAt    int64
}
