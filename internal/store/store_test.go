package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/chatsync/internal/chat"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func insert(t *testing.T, db *DB, conv, id, sender, text string) StoredMessage {
	t.Helper()
	m, err := db.InsertMessage(context.Background(), chat.Message{
		MsgID:           id,
		ConversationKey: conv,
		SenderID:        sender,
		Text:            text,
		SentAt:          time.UnixMilli(1000),
	})
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestMigrateIdempotent(t *testing.T) {
	db := testDB(t)

	// testDB already ran Migrate, so a second run must be a no-op.
	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed() {
		t.Error("second Migrate() should report no change")
	}
	if result.From != 1 || result.Version != 1 {
		t.Errorf("from %d to %d, want 1 to 1", result.From, result.Version)
	}
}

func TestMigrateFreshDatabase(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "fresh.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if !result.Changed() || result.From != 0 || result.Version != 1 {
		t.Errorf("result = %+v, want from 0 to 1", *result)
	}
}

func TestMigrateRefusesDirtySchema(t *testing.T) {
	db := testDB(t)
	if _, err := db.Exec(`UPDATE schema_migrations SET dirty = 1`); err != nil {
		t.Fatal(err)
	}

	_, err := db.Migrate()
	if !errors.Is(err, ErrDirtySchema) {
		t.Fatalf("Migrate() error = %v, want ErrDirtySchema", err)
	}
}

func TestInsertMessageAssignsSeqAndRev(t *testing.T) {
	db := testDB(t)

	m1 := insert(t, db, "a_b", "m1", "a", "hi")
	m2 := insert(t, db, "a_c", "m2", "a", "yo")
	m3 := insert(t, db, "a_b", "m3", "b", "there")

	if !(m1.Seq < m2.Seq && m2.Seq < m3.Seq) {
		t.Errorf("seqs not increasing: %d %d %d", m1.Seq, m2.Seq, m3.Seq)
	}
	if !(m1.Rev < m2.Rev && m2.Rev < m3.Rev) {
		t.Errorf("revs not increasing: %d %d %d", m1.Rev, m2.Rev, m3.Rev)
	}

	msgs, err := db.MessagesAfter(context.Background(), "a_b", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[0].MsgID != "m1" || msgs[1].MsgID != "m3" {
		t.Fatalf("MessagesAfter = %+v, want [m1 m3]", msgs)
	}
	if msgs[0].SentAt.UnixMilli() != 1000 {
		t.Errorf("sentAt = %d, want 1000", msgs[0].SentAt.UnixMilli())
	}
}

func TestInsertMessageDuplicateID(t *testing.T) {
	db := testDB(t)
	insert(t, db, "a_b", "m1", "a", "hi")

	_, err := db.InsertMessage(context.Background(), chat.Message{MsgID: "m1", ConversationKey: "a_b", SenderID: "a", Text: "again"})
	if err == nil {
		t.Fatal("expected unique constraint error for duplicate msg_id")
	}
}

func TestSetLiked(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	m := insert(t, db, "a_b", "m1", "a", "hi")

	got, changed, err := db.SetLiked(ctx, "a_b", "m1", true)
	if err != nil {
		t.Fatal(err)
	}
	if !changed || !got.Liked {
		t.Fatalf("first SetLiked: changed=%v liked=%v, want true true", changed, got.Liked)
	}
	if got.Rev <= m.Rev {
		t.Errorf("rev = %d, want > %d", got.Rev, m.Rev)
	}

	again, changed, err := db.SetLiked(ctx, "a_b", "m1", true)
	if err != nil {
		t.Fatal(err)
	}
	if changed {
		t.Error("second SetLiked(true) reported a change")
	}
	if again.Rev != got.Rev {
		t.Errorf("rev moved on no-op: %d -> %d", got.Rev, again.Rev)
	}
}

func TestSetLikedUnknown(t *testing.T) {
	db := testDB(t)
	insert(t, db, "a_b", "m1", "a", "hi")

	_, _, err := db.SetLiked(context.Background(), "a_b", "missing", true)
	if !errors.Is(err, chat.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	// The id exists, but in another conversation.
	_, _, err = db.SetLiked(context.Background(), "a_c", "m1", true)
	if !errors.Is(err, chat.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestMessagesChanged(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	m1 := insert(t, db, "a_b", "m1", "a", "hi")
	m2 := insert(t, db, "a_b", "m2", "b", "yo")

	if _, _, err := db.SetLiked(ctx, "a_b", "m1", true); err != nil {
		t.Fatal(err)
	}
	maxRev, err := db.MaxRev(ctx, "a_b")
	if err != nil {
		t.Fatal(err)
	}

	changed, err := db.MessagesChanged(ctx, "a_b", m2.Seq, m2.Rev, maxRev)
	if err != nil {
		t.Fatal(err)
	}
	if len(changed) != 1 || changed[0].MsgID != m1.MsgID || !changed[0].Liked {
		t.Fatalf("MessagesChanged = %+v, want liked m1", changed)
	}
}

func TestListMessagesKeyset(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	for _, id := range []string{"m1", "m2", "m3"} {
		insert(t, db, "a_b", id, "a", id)
	}

	page, err := db.ListMessages(ctx, "a_b", 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 || page[0].MsgID != "m3" || page[1].MsgID != "m2" {
		t.Fatalf("first page = %+v, want [m3 m2]", page)
	}
	page, err = db.ListMessages(ctx, "a_b", page[1].Seq, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 1 || page[0].MsgID != "m1" {
		t.Fatalf("second page = %+v, want [m1]", page)
	}
}

func TestRecordSent(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	var seen []*chat.InboxRow
	next := func(prev *chat.InboxRow) chat.InboxRow {
		seen = append(seen, prev)
		count := 1
		if prev != nil {
			count = prev.UnreadCount + 1
		}
		return chat.InboxRow{LastMessage: "hi", From: "a", UnreadCount: count}
	}
	own := chat.InboxRow{OwnerUID: "a", PeerUID: "b", LastMessage: "hi", From: "a"}

	for i := 0; i < 2; i++ {
		if err := db.RecordSent(ctx, own, "b", "a", next); err != nil {
			t.Fatal(err)
		}
	}
	if seen[0] != nil {
		t.Errorf("first call prev = %+v, want nil", seen[0])
	}

	row, err := db.GetInboxRow(ctx, "b", "a")
	if err != nil {
		t.Fatal(err)
	}
	if row == nil || row.UnreadCount != 2 || row.OwnerUID != "b" || row.PeerUID != "a" {
		t.Fatalf("recipient row = %+v, want unread 2", row)
	}

	mine, err := db.ListInbox(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 1 || mine[0].UnreadCount != 0 {
		t.Fatalf("sender rows = %+v, want one row with unread 0", mine)
	}
}

func TestResetUnread(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	found, err := db.ResetUnread(ctx, "b", "a")
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Error("ResetUnread on missing row reported found")
	}

	err = db.RecordSent(ctx, chat.InboxRow{OwnerUID: "a", PeerUID: "b"}, "b", "a", func(*chat.InboxRow) chat.InboxRow {
		return chat.InboxRow{LastMessage: "hi", From: "a", UnreadCount: 3}
	})
	if err != nil {
		t.Fatal(err)
	}
	if found, err = db.ResetUnread(ctx, "b", "a"); err != nil || !found {
		t.Fatalf("ResetUnread = %v, %v", found, err)
	}
	row, err := db.GetInboxRow(ctx, "b", "a")
	if err != nil {
		t.Fatal(err)
	}
	if row.UnreadCount != 0 || row.LastMessage != "hi" {
		t.Errorf("row = %+v, want unread 0 and last message kept", row)
	}
}

func TestUser(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.UpsertUser(ctx, chat.User{UID: "a", Name: "Alice", DeviceToken: "tok"}); err != nil {
		t.Fatal(err)
	}
	u, err := db.GetUser(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if u == nil || u.Name != "Alice" || u.DeviceToken != "tok" {
		t.Errorf("got %+v, want Alice/tok", u)
	}

	u, err = db.GetUser(ctx, "missing")
	if err != nil {
		t.Fatal(err)
	}
	if u != nil {
		t.Errorf("expected nil for missing user")
	}
}

func TestCheckpoint(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	v, err := db.Checkpoint(ctx, "relay.seq")
	if err != nil {
		t.Fatal(err)
	}
	if v != "" {
		t.Errorf("unset checkpoint = %q, want empty", v)
	}
	if err := db.SetCheckpoint(ctx, "relay.seq", "7"); err != nil {
		t.Fatal(err)
	}
	if err := db.SetCheckpoint(ctx, "relay.seq", "9"); err != nil {
		t.Fatal(err)
	}
	if v, _ = db.Checkpoint(ctx, "relay.seq"); v != "9" {
		t.Errorf("checkpoint = %q, want 9", v)
	}
}

func TestDeliveryClaimOnce(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	ok, err := db.ClaimDelivery(ctx, "m1", "b")
	if err != nil || !ok {
		t.Fatalf("first claim = %v, %v", ok, err)
	}
	ok, err = db.ClaimDelivery(ctx, "m1", "b")
	if err != nil || ok {
		t.Fatalf("second claim = %v, %v, want false", ok, err)
	}

	if err := db.FinishDelivery(ctx, "m1", DeliverySkipped, "no token"); err != nil {
		t.Fatal(err)
	}
	d, err := db.GetDelivery(ctx, "m1")
	if err != nil {
		t.Fatal(err)
	}
	if d.Status != DeliverySkipped || d.ErrorMessage != "no token" {
		t.Errorf("delivery = %+v", d)
	}
	counts, err := db.DeliveryCounts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counts[DeliverySkipped] != 1 {
		t.Errorf("counts = %v", counts)
	}
}
