package chat

import (
	"errors"
	"fmt"

	"github.com/matheus3301/chatsync/internal/convkey"
)

var (
	// ErrNotFound is returned when an operation references a missing record.
	ErrNotFound = errors.New("not found")
	// ErrInconsistentState marks an update for a message that was never added locally.
	ErrInconsistentState = errors.New("inconsistent state")
	// ErrEmptyText rejects sends without content.
	ErrEmptyText = errors.New("message text is empty")
	// ErrInvalidUID rejects uids outside the accepted namespace and
	// conversation keys that do not name the caller.
	ErrInvalidUID = convkey.ErrInvalid
	// ErrNoDeviceToken means the recipient has no registered push token.
	ErrNoDeviceToken = errors.New("recipient has no device token")
)

// WriteError is returned when the store is unreachable or rejects a write.
// Writes are not retried internally.
type WriteError struct {
	Op  string
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s: write failed: %v", e.Op, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// IsWriteError reports whether err carries a WriteError.
func IsWriteError(err error) bool {
	var we *WriteError
	return errors.As(err, &we)
}

// DeliveryError reports a push that could not be delivered. It is logged by
// the relay and never propagated into the write path.
type DeliveryError struct {
	RecipientID string
	MsgID       string
	Err         error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %s to %s: %v", e.MsgID, e.RecipientID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
