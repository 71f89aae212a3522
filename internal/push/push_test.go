package push

import (
	"context"
	"errors"
	"os"
	"testing"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type mockMessenger struct {
	mock.Mock
}

func (m *mockMessenger) Send(ctx context.Context, msg *messaging.Message) (string, error) {
	args := m.Called(ctx, msg)
	return args.String(0), args.Error(1)
}

var note = Notification{
	Token:           "device-1",
	RecipientID:     "bob",
	ConversationKey: "alice_bob",
	MsgID:           "m1",
	SenderID:        "alice",
	SenderName:      "Alice",
	Preview:         "hi",
}

func TestLogDriver(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	p := NewLog(zap.New(core))

	require.NoError(t, p.Push(context.Background(), note))
	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "device-1", fields["device_token"])
	assert.Equal(t, "bob", fields["recipient_id"])
	assert.Equal(t, "log", p.Name())
}

func TestFCMMessage(t *testing.T) {
	msg := fcmMessage(note)
	assert.Equal(t, "device-1", msg.Token)
	assert.Equal(t, "Alice", msg.Notification.Title)
	assert.Equal(t, "hi", msg.Notification.Body)
	assert.Equal(t, "m1", msg.Data["msgId"])

	anon := note
	anon.SenderName = ""
	assert.Equal(t, "alice", fcmMessage(anon).Notification.Title)
}

func TestFCMPush(t *testing.T) {
	m := new(mockMessenger)
	m.On("Send", mock.Anything, mock.MatchedBy(func(msg *messaging.Message) bool {
		return msg.Token == "device-1"
	})).Return("projects/p/messages/1", nil).Once()
	m.On("Send", mock.Anything, mock.Anything).Return("", errors.New("unregistered")).Once()

	f := &FCM{client: m}
	require.NoError(t, f.Push(context.Background(), note))

	other := note
	other.Token = "stale"
	err := f.Push(context.Background(), other)
	assert.ErrorContains(t, err, "unregistered")
	m.AssertExpectations(t)
}

func TestAMQPRequiresURL(t *testing.T) {
	_, err := NewAMQP("", "chatsync.push", "message.push")
	assert.Error(t, err)
}

func TestAMQPPublish(t *testing.T) {
	url := os.Getenv("CHATSYNC_TEST_AMQP_URL")
	if url == "" {
		t.Skip("CHATSYNC_TEST_AMQP_URL not set")
	}
	p, err := NewAMQP(url, "chatsync.push.test", "message.push")
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	assert.NoError(t, p.Push(context.Background(), note))
}
