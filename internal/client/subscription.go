package client

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/matheus3301/chatsync/internal/api"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/convkey"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

const subscriptionBuffer = 64

// Subscribe opens a server stream for the conversation. The stream outlives
// ctx only until Close is called or ctx is canceled.
func (c *Client) Subscribe(ctx context.Context, conversationKey string) (chat.Subscription, error) {
	if _, _, err := convkey.Participants(conversationKey); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	desc := &api.MessageServiceDesc.Streams[0]
	cs, err := c.conn.NewStream(ctx, desc, api.MessageSubscribeMethod, grpc.CallContentSubtype(api.CodecName))
	if err != nil {
		cancel()
		return nil, api.FromStatus("subscribe", err)
	}
	stream := &grpc.GenericClientStream[api.SubscribeRequest, api.SubscribeEvent]{ClientStream: cs}
	if err := stream.SendMsg(&api.SubscribeRequest{ConversationKey: conversationKey}); err != nil {
		cancel()
		return nil, api.FromStatus("subscribe", err)
	}
	if err := stream.CloseSend(); err != nil {
		cancel()
		return nil, api.FromStatus("subscribe", err)
	}

	s := &remoteSub{
		events: make(chan chat.Event, subscriptionBuffer),
		done:   make(chan struct{}),
		cancel: cancel,
		logger: c.logger.With(zap.String("conversation_key", conversationKey)),
	}
	go s.run(stream)
	return s, nil
}

type remoteSub struct {
	events chan chat.Event
	done   chan struct{}
	once   sync.Once
	cancel context.CancelFunc
	logger *zap.Logger
}

func (s *remoteSub) Events() <-chan chat.Event { return s.events }

func (s *remoteSub) Close() {
	s.once.Do(func() {
		close(s.done)
		s.cancel()
	})
}

func (s *remoteSub) run(stream grpc.ServerStreamingClient[api.SubscribeEvent]) {
	defer close(s.events)
	defer s.Close()

	for {
		ev, err := stream.Recv()
		if err != nil {
			if !errors.Is(err, io.EOF) && grpcstatus.Code(err) != codes.Canceled {
				s.logger.Warn("subscription stream ended", zap.Error(err))
			}
			return
		}
		select {
		case s.events <- chat.Event{Kind: ev.Kind, Message: ev.Message}:
		case <-s.done:
			return
		}
	}
}
