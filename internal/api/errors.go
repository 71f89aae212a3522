package api

import (
	"context"
	"errors"
	"strings"

	"github.com/matheus3301/chatsync/internal/chat"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// ToStatus maps core errors onto gRPC status codes.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(interface{ GRPCStatus() *grpcstatus.Status }); ok {
		return err
	}
	code := codes.Internal
	switch {
	case errors.Is(err, chat.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, chat.ErrInvalidUID), errors.Is(err, chat.ErrEmptyText):
		code = codes.InvalidArgument
	case errors.Is(err, chat.ErrInconsistentState):
		code = codes.FailedPrecondition
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case chat.IsWriteError(err):
		code = codes.Unavailable
	}
	return grpcstatus.Error(code, err.Error())
}

// FromStatus maps a gRPC error returned for op back onto the core errors so
// callers can use errors.Is and chat.IsWriteError on remote results.
func FromStatus(op string, err error) error {
	if err == nil {
		return nil
	}
	st, ok := grpcstatus.FromError(err)
	if !ok {
		return err
	}
	msg := st.Message()
	switch st.Code() {
	case codes.NotFound:
		return &remoteError{msg: msg, err: chat.ErrNotFound}
	case codes.InvalidArgument:
		if strings.Contains(msg, chat.ErrEmptyText.Error()) {
			return &remoteError{msg: msg, err: chat.ErrEmptyText}
		}
		return &remoteError{msg: msg, err: chat.ErrInvalidUID}
	case codes.FailedPrecondition:
		return &remoteError{msg: msg, err: chat.ErrInconsistentState}
	case codes.DeadlineExceeded:
		return &chat.WriteError{Op: op, Err: &remoteError{msg: msg, err: context.DeadlineExceeded}}
	case codes.Unavailable:
		return &chat.WriteError{Op: op, Err: err}
	case codes.Canceled:
		return &remoteError{msg: msg, err: context.Canceled}
	}
	return err
}

type remoteError struct {
	msg string
	err error
}

func (e *remoteError) Error() string { return e.msg }
func (e *remoteError) Unwrap() error { return e.err }
