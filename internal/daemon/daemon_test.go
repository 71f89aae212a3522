package daemon

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/chatsync/internal/api"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/client"
	"github.com/matheus3301/chatsync/internal/config"
	"github.com/matheus3301/chatsync/internal/conversation"
	"github.com/matheus3301/chatsync/internal/convkey"
	"github.com/matheus3301/chatsync/internal/directory"
	"github.com/matheus3301/chatsync/internal/inbox"
	"github.com/matheus3301/chatsync/internal/msglog"
	"github.com/matheus3301/chatsync/internal/status"
	"github.com/matheus3301/chatsync/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
)

// shortTempDir keeps socket paths under the 104-char Unix socket limit on macOS.
func shortTempDir(t *testing.T, pattern string) string {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", pattern)
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}

type testDaemon struct {
	db      *store.DB
	machine *status.Machine
	client  *client.Client
}

func startDaemon(t *testing.T) *testDaemon {
	t.Helper()
	dir := shortTempDir(t, "chatsync-test-*")

	db, err := store.Open(filepath.Join(dir, "chatsync.db"))
	require.NoError(t, err)
	_, err = db.Migrate()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	b := bus.New()
	machine := status.NewDaemon(b)
	dirSvc := directory.NewCached(directory.NewLocal(db), nil, 0, nil)
	ms := msglog.New(db, b, nil, msglog.Options{PollInterval: 50 * time.Millisecond})

	srv, err := NewServer(Params{Profile: "test", SocketPath: filepath.Join(dir, "d.sock")}, zap.NewNop(), api.Services{
		Messages:  api.NewMessageService(ms, nil),
		Inbox:     api.NewInboxService(inbox.New(db, dirSvc, b, nil)),
		Directory: api.NewDirectoryService(dirSvc),
		Daemon:    api.NewDaemonService(api.DaemonInfo{Profile: "test", Backend: "sqlite", PushDriver: "log"}, machine),
	})
	require.NoError(t, err)
	go func() { _ = srv.Start() }()
	t.Cleanup(func() { srv.Stop(context.Background()) })

	c, err := client.New(srv.SocketPath(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	return &testDaemon{db: db, machine: machine, client: c}
}

func TestDaemonLifecycle(t *testing.T) {
	d := startDaemon(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.Eventually(t, func() bool { return d.client.Healthy(ctx) == nil }, 2*time.Second, 20*time.Millisecond)

	st, err := d.client.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "test", st.Profile)
	assert.Equal(t, string(status.Booting), st.State)

	require.NoError(t, d.machine.Transition(status.Ready))
	st, err = d.client.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, string(status.Ready), st.State)

	require.NoError(t, d.client.Put(ctx, chat.User{UID: "alice", Name: "Alice", DeviceToken: "tok-a"}))
	u, err := d.client.Lookup(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", u.Name)

	_, err = d.client.Lookup(ctx, "nobody")
	assert.ErrorIs(t, err, chat.ErrNotFound)

	key := convkey.Derive("alice", "bob")
	msg, err := d.client.Append(ctx, key, "alice", "", "hello")
	require.NoError(t, err)
	assert.Equal(t, "bob", msg.RecipientID)

	_, err = d.client.Append(ctx, key, "alice", "", "")
	assert.ErrorIs(t, err, chat.ErrEmptyText)
	_, err = d.client.Append(ctx, key, "carol", "", "hi")
	assert.ErrorIs(t, err, chat.ErrInvalidUID)

	err = d.client.SetLiked(ctx, key, "missing", true)
	assert.ErrorIs(t, err, chat.ErrNotFound)

	history, err := d.client.History(ctx, key, 0, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, msg.MsgID, history[0].MsgID)
}

func TestSubscribeOverClient(t *testing.T) {
	d := startDaemon(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	key := convkey.Derive("alice", "bob")
	first, err := d.client.Append(ctx, key, "alice", "bob", "one")
	require.NoError(t, err)

	sub, err := d.client.Subscribe(ctx, key)
	require.NoError(t, err)
	defer sub.Close()

	ev := <-sub.Events()
	assert.Equal(t, chat.Added, ev.Kind)
	assert.Equal(t, first.MsgID, ev.Message.MsgID)

	second, err := d.client.Append(ctx, key, "bob", "alice", "two")
	require.NoError(t, err)
	ev = <-sub.Events()
	assert.Equal(t, chat.Added, ev.Kind)
	assert.Equal(t, second.MsgID, ev.Message.MsgID)

	require.NoError(t, d.client.SetLiked(ctx, key, first.MsgID, true))
	ev = <-sub.Events()
	assert.Equal(t, chat.Changed, ev.Kind)
	assert.True(t, ev.Message.Liked)

	_, err = d.client.Subscribe(ctx, "not-a-key")
	assert.ErrorIs(t, err, chat.ErrInvalidUID)
}

func TestInboxOverClient(t *testing.T) {
	d := startDaemon(t)
	ctx := context.Background()
	require.NoError(t, d.client.Put(ctx, chat.User{UID: "alice", Name: "Alice", ThumbImage: "a.png"}))

	key := convkey.Derive("alice", "bob")
	for _, text := range []string{"hi", "there"} {
		require.NoError(t, d.client.OnMessageSent(ctx, inbox.Sent{
			ConversationKey: key, SenderID: "alice", RecipientID: "bob", Text: text,
			RecipientDisplay: chat.Display{Name: "Bob"},
		}))
	}

	rows, err := d.client.ListInbox(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 2, rows[0].UnreadCount)
	assert.Equal(t, "Alice", rows[0].PeerName)
	assert.Equal(t, "there", rows[0].LastMessage)

	require.NoError(t, d.client.MarkRead(ctx, "bob", "alice"))
	rows, err = d.client.ListInbox(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 0, rows[0].UnreadCount)

	own, err := d.client.ListInbox(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, "Bob", own[0].PeerName)
	assert.Equal(t, 0, own[0].UnreadCount)
}

func TestConversationControllerOverClient(t *testing.T) {
	d := startDaemon(t)
	ctx := context.Background()
	require.NoError(t, d.client.Put(ctx, chat.User{UID: "alice", Name: "Alice"}))
	require.NoError(t, d.client.Put(ctx, chat.User{UID: "bob", Name: "Bob"}))

	deps := conversation.Deps{Messages: d.client, Inbox: d.client, Directory: d.client}
	c, err := conversation.New(deps, "alice", "bob", conversation.WithLocation(time.UTC))
	require.NoError(t, err)
	require.NoError(t, c.Open(ctx))
	defer c.Close()

	_, err = c.Send(ctx, "hello bob")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(c.Items()) == 2 }, 3*time.Second, 20*time.Millisecond)
	item, ok := c.Items()[1].(conversation.MessageItem)
	require.True(t, ok)
	assert.True(t, item.Mine)
	assert.Equal(t, "hello bob", item.Message.Text)

	rows, err := d.client.ListInbox(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].UnreadCount)
}

func TestAdminRoutes(t *testing.T) {
	machine := status.NewDaemon(nil)
	srv := httptest.NewServer(NewAdminRouter(machine, nil))
	defer srv.Close()

	get := func(path string) int {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusOK, get("/healthz"))
	assert.Equal(t, http.StatusServiceUnavailable, get("/readyz"))
	require.NoError(t, machine.Transition(status.Ready))
	assert.Equal(t, http.StatusOK, get("/readyz"))
	assert.Equal(t, http.StatusOK, get("/metrics"))
}

// TestFxModuleWiring starts the whole fx graph against a temp profile and
// talks to it through the client.
func TestFxModuleWiring(t *testing.T) {
	dir := shortTempDir(t, "chatsync-fx-*")
	cfg := config.Default()
	cfg.Admin.Addr = "127.0.0.1:0"
	cfg.Relay.PollInterval = config.Duration{Duration: 50 * time.Millisecond}
	cfg.Log.Level = "error"

	app := fxtest.New(t, Module(Params{Profile: "fxtest", Config: cfg, Dir: dir}))
	app.RequireStart()
	defer app.RequireStop()

	socket := filepath.Join(dir, "daemon.sock")
	info, err := os.Stat(socket)
	require.NoError(t, err, "socket not created")
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	c, err := client.New(socket, nil)
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.Eventually(t, func() bool { return c.Healthy(ctx) == nil }, 2*time.Second, 20*time.Millisecond)

	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fxtest", st.Profile)
	assert.Equal(t, string(status.Ready), st.State)
	assert.Equal(t, "sqlite", st.Backend)

	require.NoError(t, c.Put(ctx, chat.User{UID: "bob", Name: "Bob", DeviceToken: "tok-b"}))
	msg, err := c.Append(ctx, convkey.Derive("alice", "bob"), "alice", "", "ping")
	require.NoError(t, err)

	// The relay claims the message through the bus and records the outcome.
	db := openDB(t, dir)
	require.Eventually(t, func() bool {
		dl, err := db.GetDelivery(ctx, msg.MsgID)
		return err == nil && dl != nil && dl.Status == store.DeliverySent
	}, 3*time.Second, 50*time.Millisecond)
}

// TestProfilesShareAdminAddress runs two profiles from the same config. The
// admin address is already taken, yet both daemons serve over their sockets.
func TestProfilesShareAdminAddress(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	cfg := config.Default()
	cfg.Admin.Addr = taken.Addr().String()
	cfg.Log.Level = "error"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, name := range []string{"work", "home"} {
		dir := shortTempDir(t, "chatsync-"+name+"-*")
		app := fxtest.New(t, Module(Params{Profile: name, Config: cfg, Dir: dir}))
		app.RequireStart()
		defer app.RequireStop()

		c, err := client.New(filepath.Join(dir, "daemon.sock"), nil)
		require.NoError(t, err)
		defer c.Close()

		require.Eventually(t, func() bool { return c.Healthy(ctx) == nil }, 2*time.Second, 20*time.Millisecond)
		st, err := c.Status(ctx)
		require.NoError(t, err)
		assert.Equal(t, name, st.Profile)
		assert.Equal(t, string(status.Degraded), st.State)
	}
}

func openDB(t *testing.T, dir string) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(dir, "chatsync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}
