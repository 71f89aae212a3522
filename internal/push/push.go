// Package push delivers new-message notifications to a recipient's device.
package push

import (
	"context"

	"go.uber.org/zap"
)

// Notification is the payload handed to a push driver.
type Notification struct {
	Token           string `json:"-"`
	RecipientID     string `json:"recipientId"`
	ConversationKey string `json:"conversationKey"`
	MsgID           string `json:"msgId"`
	SenderID        string `json:"senderId"`
	SenderName      string `json:"senderName,omitempty"`
	Preview         string `json:"preview"`
}

// Pusher sends one notification. Implementations must not retry.
type Pusher interface {
	Push(ctx context.Context, n Notification) error
	Name() string
}

// Log is the default driver: it records the notification and the target
// token without contacting any push service.
type Log struct {
	logger *zap.Logger
}

// NewLog creates the logging driver.
func NewLog(logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{logger: logger}
}

func (l *Log) Name() string { return "log" }

func (l *Log) Push(_ context.Context, n Notification) error {
	l.logger.Info("push notification",
		zap.String("recipient_id", n.RecipientID),
		zap.String("device_token", n.Token),
		zap.String("conversation_key", n.ConversationKey),
		zap.String("msg_id", n.MsgID),
		zap.String("sender_id", n.SenderID))
	return nil
}
