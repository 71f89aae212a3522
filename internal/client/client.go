// Package client talks to a running chatsyncd over gRPC and implements the
// same collaborator interfaces as the in-process components, so a
// conversation controller can run against a remote daemon unchanged.
package client

import (
	"context"
	"fmt"

	"github.com/matheus3301/chatsync/internal/api"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/conversation"
	"github.com/matheus3301/chatsync/internal/directory"
	"github.com/matheus3301/chatsync/internal/inbox"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Client wraps the gRPC connection to the daemon.
type Client struct {
	conn   *grpc.ClientConn
	health healthpb.HealthClient
	logger *zap.Logger
}

var (
	_ chat.MessageStore  = (*Client)(nil)
	_ conversation.Inbox = (*Client)(nil)
	_ directory.Registry = (*Client)(nil)
	_ api.Historian      = (*Client)(nil)
)

// New dials the daemon's Unix domain socket.
func New(socketPath string, logger *zap.Logger) (*Client, error) {
	return Dial("unix://"+socketPath, logger)
}

// Dial connects to target using the JSON codec for chatsync services.
func Dial(target string, logger *zap.Logger, opts ...grpc.DialOption) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn, health: healthpb.NewHealthClient(conn), logger: logger}, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, op, method string, req, resp any) error {
	err := c.conn.Invoke(ctx, method, req, resp, grpc.CallContentSubtype(api.CodecName))
	return api.FromStatus(op, err)
}

func (c *Client) Append(ctx context.Context, conversationKey, senderID, recipientID, text string) (chat.Message, error) {
	var resp api.AppendResponse
	req := &api.AppendRequest{ConversationKey: conversationKey, SenderID: senderID, RecipientID: recipientID, Text: text}
	if err := c.invoke(ctx, "append", api.MessageAppendMethod, req, &resp); err != nil {
		return chat.Message{}, err
	}
	return resp.Message, nil
}

func (c *Client) SetLiked(ctx context.Context, conversationKey, msgID string, liked bool) error {
	req := &api.SetLikedRequest{ConversationKey: conversationKey, MsgID: msgID, Liked: liked}
	return c.invoke(ctx, "set_liked", api.MessageSetLikedMethod, req, &api.Empty{})
}

func (c *Client) History(ctx context.Context, conversationKey string, beforeSeq int64, limit int) ([]chat.Message, error) {
	var resp api.HistoryResponse
	req := &api.HistoryRequest{ConversationKey: conversationKey, BeforeSeq: beforeSeq, Limit: limit}
	if err := c.invoke(ctx, "history", api.MessageHistoryMethod, req, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

func (c *Client) OnMessageSent(ctx context.Context, sent inbox.Sent) error {
	return c.invoke(ctx, "inbox_sent", api.InboxRecordSentMethod, &api.RecordSentRequest{Sent: sent}, &api.Empty{})
}

func (c *Client) MarkRead(ctx context.Context, owner, peer string) error {
	return c.invoke(ctx, "mark_read", api.InboxMarkReadMethod, &api.MarkReadRequest{OwnerUID: owner, PeerUID: peer}, &api.Empty{})
}

// ListInbox returns owner's inbox rows, most recent first.
func (c *Client) ListInbox(ctx context.Context, owner string) ([]chat.InboxRow, error) {
	var resp api.ListInboxResponse
	if err := c.invoke(ctx, "list_inbox", api.InboxListMethod, &api.ListInboxRequest{OwnerUID: owner}, &resp); err != nil {
		return nil, err
	}
	return resp.Rows, nil
}

func (c *Client) Lookup(ctx context.Context, uid string) (chat.User, error) {
	var resp api.LookupResponse
	if err := c.invoke(ctx, "lookup", api.DirectoryLookupMethod, &api.LookupRequest{UID: uid}, &resp); err != nil {
		return chat.User{}, err
	}
	return resp.User, nil
}

func (c *Client) Put(ctx context.Context, u chat.User) error {
	return c.invoke(ctx, "put_user", api.DirectoryPutMethod, &api.PutUserRequest{User: u}, &api.Empty{})
}

// Status returns the daemon's status.
func (c *Client) Status(ctx context.Context) (*api.StatusResponse, error) {
	var resp api.StatusResponse
	if err := c.invoke(ctx, "status", api.DaemonStatusMethod, &api.StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Healthy probes the daemon's gRPC health service.
func (c *Client) Healthy(ctx context.Context) error {
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("daemon not serving: %s", resp.GetStatus())
	}
	return nil
}
