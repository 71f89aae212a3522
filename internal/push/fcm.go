package push

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// messenger is the subset of the FCM client used here.
type messenger interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCM delivers notifications through Firebase Cloud Messaging.
type FCM struct {
	client messenger
}

// NewFCM creates an FCM driver for projectID. credentialsFile may be empty
// to use application default credentials.
func NewFCM(ctx context.Context, projectID, credentialsFile string) (*FCM, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase messaging: %w", err)
	}
	return &FCM{client: client}, nil
}

func (f *FCM) Name() string { return "fcm" }

func (f *FCM) Push(ctx context.Context, n Notification) error {
	_, err := f.client.Send(ctx, fcmMessage(n))
	if err != nil {
		return fmt.Errorf("fcm send: %w", err)
	}
	return nil
}

func fcmMessage(n Notification) *messaging.Message {
	title := n.SenderName
	if title == "" {
		title = n.SenderID
	}
	return &messaging.Message{
		Token: n.Token,
		Notification: &messaging.Notification{
			Title: title,
			Body:  n.Preview,
		},
		Data: map[string]string{
			"conversationKey": n.ConversationKey,
			"msgId":           n.MsgID,
			"senderId":        n.SenderID,
		},
		Android: &messaging.AndroidConfig{
			CollapseKey: n.ConversationKey,
		},
	}
}
