package api

import (
	"context"

	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/inbox"
)

// InboxBackend is the inbox summary operations exposed remotely.
type InboxBackend interface {
	OnMessageSent(ctx context.Context, sent inbox.Sent) error
	MarkRead(ctx context.Context, owner, peer string) error
	List(ctx context.Context, owner string) ([]chat.InboxRow, error)
}

// InboxService implements chatsync.v1.InboxService.
type InboxService struct {
	summary InboxBackend
}

var _ InboxServer = (*InboxService)(nil)

func NewInboxService(summary InboxBackend) *InboxService {
	return &InboxService{summary: summary}
}

func (s *InboxService) RecordSent(ctx context.Context, req *RecordSentRequest) (*Empty, error) {
	if err := s.summary.OnMessageSent(ctx, req.Sent); err != nil {
		return nil, ToStatus(err)
	}
	return &Empty{}, nil
}

func (s *InboxService) MarkRead(ctx context.Context, req *MarkReadRequest) (*Empty, error) {
	if err := s.summary.MarkRead(ctx, req.OwnerUID, req.PeerUID); err != nil {
		return nil, ToStatus(err)
	}
	return &Empty{}, nil
}

func (s *InboxService) List(ctx context.Context, req *ListInboxRequest) (*ListInboxResponse, error) {
	rows, err := s.summary.List(ctx, req.OwnerUID)
	if err != nil {
		return nil, ToStatus(err)
	}
	return &ListInboxResponse{Rows: rows}, nil
}
