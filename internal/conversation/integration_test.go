package conversation

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/directory"
	"github.com/matheus3301/chatsync/internal/inbox"
	"github.com/matheus3301/chatsync/internal/msglog"
	"github.com/matheus3301/chatsync/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTwoParticipantsOverSQLite(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	_, err = db.Migrate()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	b := bus.New()
	dir := directory.NewLocal(db)
	require.NoError(t, dir.Put(ctx, chat.User{UID: "alice", Name: "Alice"}))
	require.NoError(t, dir.Put(ctx, chat.User{UID: "bob", Name: "Bob"}))

	deps := Deps{
		Messages:  msglog.New(db, b, nil, msglog.Options{PollInterval: 50 * time.Millisecond}),
		Inbox:     inbox.New(db, dir, b, nil),
		Directory: dir,
		Bus:       b,
	}

	alice, err := New(deps, "alice", "bob", WithLocation(time.UTC))
	require.NoError(t, err)
	require.NoError(t, alice.Open(ctx))
	defer alice.Close()

	sent, err := alice.Send(ctx, "hi")
	require.NoError(t, err)
	_, err = alice.Send(ctx, "there")
	require.NoError(t, err)

	items := waitItems(t, alice, 3)
	assert.IsType(t, DateHeader{}, items[0])
	assert.Equal(t, sent.MsgID, items[1].(MessageItem).Message.MsgID)
	assert.True(t, items[1].(MessageItem).Mine)

	row, err := db.GetInboxRow(ctx, "bob", "alice")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, 2, row.UnreadCount)
	assert.Equal(t, "there", row.LastMessage)
	assert.Equal(t, "Alice", row.PeerName)

	bob, err := New(deps, "bob", "alice", WithLocation(time.UTC))
	require.NoError(t, err)
	require.NoError(t, bob.Open(ctx))
	defer bob.Close()

	row, err = db.GetInboxRow(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, 0, row.UnreadCount)
	assert.Equal(t, "there", row.LastMessage)

	bobItems := waitItems(t, bob, 3)
	assert.False(t, bobItems[1].(MessageItem).Mine)

	// A like from bob reaches alice's view as an in-place change.
	require.NoError(t, bob.SetLiked(ctx, sent.MsgID, true))
	require.Eventually(t, func() bool {
		return alice.Items()[1].(MessageItem).Message.Liked
	}, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, alice.Items(), 3)
}
