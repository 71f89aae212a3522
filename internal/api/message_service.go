package api

import (
	"context"

	"github.com/matheus3301/chatsync/internal/chat"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// Historian is implemented by stores that support paging back through a
// conversation.
type Historian interface {
	History(ctx context.Context, conversationKey string, beforeSeq int64, limit int) ([]chat.Message, error)
}

// MessageService implements chatsync.v1.MessageService.
type MessageService struct {
	store  chat.MessageStore
	logger *zap.Logger
}

var _ MessageServer = (*MessageService)(nil)

// NewMessageService creates a message service backed by store.
func NewMessageService(store chat.MessageStore, logger *zap.Logger) *MessageService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessageService{store: store, logger: logger}
}

func (s *MessageService) Append(ctx context.Context, req *AppendRequest) (*AppendResponse, error) {
	msg, err := s.store.Append(ctx, req.ConversationKey, req.SenderID, req.RecipientID, req.Text)
	if err != nil {
		return nil, ToStatus(err)
	}
	return &AppendResponse{Message: msg}, nil
}

func (s *MessageService) SetLiked(ctx context.Context, req *SetLikedRequest) (*Empty, error) {
	if err := s.store.SetLiked(ctx, req.ConversationKey, req.MsgID, req.Liked); err != nil {
		return nil, ToStatus(err)
	}
	return &Empty{}, nil
}

func (s *MessageService) History(ctx context.Context, req *HistoryRequest) (*HistoryResponse, error) {
	h, ok := s.store.(Historian)
	if !ok {
		return nil, grpcstatus.Error(codes.Unimplemented, "history is not supported by this backend")
	}
	limit := 50
	if req.Limit > 0 {
		limit = req.Limit
	}
	msgs, err := h.History(ctx, req.ConversationKey, req.BeforeSeq, limit)
	if err != nil {
		return nil, ToStatus(err)
	}
	return &HistoryResponse{Messages: msgs, HasMore: len(msgs) == limit}, nil
}

// Subscribe streams the conversation's events until the client goes away or
// the store ends the subscription.
func (s *MessageService) Subscribe(req *SubscribeRequest, stream grpc.ServerStreamingServer[SubscribeEvent]) error {
	ctx := stream.Context()
	sub, err := s.store.Subscribe(ctx, req.ConversationKey)
	if err != nil {
		return ToStatus(err)
	}
	defer sub.Close()

	s.logger.Debug("stream subscribed", zap.String("conversation_key", req.ConversationKey))
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if err := stream.Send(&SubscribeEvent{Kind: ev.Kind, Message: ev.Message}); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}
