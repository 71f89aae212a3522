package chat

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestWriteErrorUnwrap(t *testing.T) {
	err := fmt.Errorf("send: %w", &WriteError{Op: "append", Err: context.DeadlineExceeded})

	if !IsWriteError(err) {
		t.Fatal("IsWriteError() = false, want true")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("WriteError must unwrap to its cause")
	}
	if IsWriteError(ErrNotFound) {
		t.Error("IsWriteError(ErrNotFound) = true, want false")
	}
}

func TestDeliveryErrorUnwrap(t *testing.T) {
	err := &DeliveryError{RecipientID: "bob", MsgID: "m1", Err: ErrNoDeviceToken}
	if !errors.Is(err, ErrNoDeviceToken) {
		t.Error("DeliveryError must unwrap to ErrNoDeviceToken")
	}
	if err.Error() != "deliver m1 to bob: recipient has no device token" {
		t.Errorf("Error() = %q", err.Error())
	}
}
