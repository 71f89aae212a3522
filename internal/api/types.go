package api

import (
	"time"

	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/inbox"
)

type AppendRequest struct {
	ConversationKey string `json:"conversationKey"`
	SenderID        string `json:"senderId"`
	RecipientID     string `json:"recipientId,omitempty"`
	Text            string `json:"text"`
}

type AppendResponse struct {
	Message chat.Message `json:"message"`
}

type SetLikedRequest struct {
	ConversationKey string `json:"conversationKey"`
	MsgID           string `json:"msgId"`
	Liked           bool   `json:"liked"`
}

type HistoryRequest struct {
	ConversationKey string `json:"conversationKey"`
	BeforeSeq       int64  `json:"beforeSeq,omitempty"`
	Limit           int    `json:"limit,omitempty"`
}

type HistoryResponse struct {
	Messages []chat.Message `json:"messages"`
	HasMore  bool           `json:"hasMore"`
}

type SubscribeRequest struct {
	ConversationKey string `json:"conversationKey"`
}

// SubscribeEvent is one element of the Subscribe stream.
type SubscribeEvent struct {
	Kind    chat.EventKind `json:"kind"`
	Message chat.Message   `json:"message"`
}

type RecordSentRequest struct {
	Sent inbox.Sent `json:"sent"`
}

type MarkReadRequest struct {
	OwnerUID string `json:"ownerUid"`
	PeerUID  string `json:"peerUid"`
}

type ListInboxRequest struct {
	OwnerUID string `json:"ownerUid"`
}

type ListInboxResponse struct {
	Rows []chat.InboxRow `json:"rows"`
}

type LookupRequest struct {
	UID string `json:"uid"`
}

type LookupResponse struct {
	User chat.User `json:"user"`
}

type PutUserRequest struct {
	User chat.User `json:"user"`
}

type StatusRequest struct{}

type StatusResponse struct {
	Profile    string    `json:"profile"`
	State      string    `json:"state"`
	Backend    string    `json:"backend"`
	PushDriver string    `json:"pushDriver"`
	StartedAt  time.Time `json:"startedAt"`
	UptimeMs   int64     `json:"uptimeMs"`
}

type Empty struct{}
