package bus

import "time"

// Event kinds published by the core.
const (
	KindMessageAdded   = "message.added"
	KindMessageChanged = "message.changed"
	KindInboxUpdated   = "inbox.updated"
	KindRelayDelivered = "relay.delivered"
	KindRelayFailed    = "relay.failed"
)

// Event represents a domain event published on the bus. Topic scopes the
// event, e.g. to a conversation key or an inbox owner.
type Event struct {
	Kind      string
	Topic     string
	Timestamp time.Time
	Payload   any
}
