package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/matheus3301/chatsync/internal/chat"
)

const messageColumns = `seq, conversation_key, msg_id, sender_id, recipient_id, body, liked, sent_at, rev`

const nextRev = `(SELECT COALESCE(MAX(rev), 0) + 1 FROM messages)`

// InsertMessage appends m to its conversation log and returns the stored row
// with the assigned seq and rev. MsgID must be unique.
func (db *DB) InsertMessage(ctx context.Context, m chat.Message) (StoredMessage, error) {
	out := StoredMessage{Message: m}
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, `
			INSERT INTO messages (conversation_key, msg_id, sender_id, recipient_id, body, liked, sent_at, rev)
			VALUES (?, ?, ?, ?, ?, ?, ?, `+nextRev+`)
			RETURNING seq, rev`,
			m.ConversationKey, m.MsgID, m.SenderID, m.RecipientID, m.Text, m.Liked, m.SentAt.UnixMilli()).
			Scan(&out.Seq, &out.Rev)
	})
	if err != nil {
		return StoredMessage{}, fmt.Errorf("insert message %s: %w", m.MsgID, err)
	}
	return out, nil
}

// SetLiked updates the liked flag of a message in a conversation. changed is
// false when the flag already had the requested value, in which case the
// revision is left untouched. Unknown ids return chat.ErrNotFound.
func (db *DB) SetLiked(ctx context.Context, conversationKey, msgID string, liked bool) (msg StoredMessage, changed bool, err error) {
	err = db.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := scanMessage(tx.QueryRowContext(ctx, `
			SELECT `+messageColumns+` FROM messages
			WHERE conversation_key = ? AND msg_id = ?`, conversationKey, msgID))
		if errors.Is(err, sql.ErrNoRows) {
			return chat.ErrNotFound
		}
		if err != nil {
			return err
		}
		msg = cur
		if cur.Liked == liked {
			return nil
		}
		if err := tx.QueryRowContext(ctx, `
			UPDATE messages SET liked = ?, rev = `+nextRev+`
			WHERE seq = ?
			RETURNING rev`, liked, cur.Seq).Scan(&msg.Rev); err != nil {
			return err
		}
		msg.Liked = liked
		changed = true
		return nil
	})
	if err != nil {
		return StoredMessage{}, false, err
	}
	return msg, changed, nil
}

// GetMessage returns a message by id, or nil if it does not exist.
func (db *DB) GetMessage(ctx context.Context, msgID string) (*StoredMessage, error) {
	m, err := scanMessage(db.QueryRowContext(ctx, `
		SELECT `+messageColumns+` FROM messages WHERE msg_id = ?`, msgID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// MaxRev returns the highest revision in a conversation, or 0 when it is empty.
func (db *DB) MaxRev(ctx context.Context, conversationKey string) (int64, error) {
	var rev int64
	err := db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(rev), 0) FROM messages WHERE conversation_key = ?`, conversationKey).Scan(&rev)
	return rev, err
}

// MaxSeq returns the highest seq across all conversations, or 0.
func (db *DB) MaxSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM messages`).Scan(&seq)
	return seq, err
}

// MessagesAfter returns up to limit messages of a conversation with seq
// greater than afterSeq, in ascending seq order.
func (db *DB) MessagesAfter(ctx context.Context, conversationKey string, afterSeq int64, limit int) ([]StoredMessage, error) {
	if limit <= 0 {
		limit = 500
	}
	return db.queryMessages(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE conversation_key = ? AND seq > ?
		ORDER BY seq ASC
		LIMIT ?`, conversationKey, afterSeq, limit)
}

// MessagesChanged returns messages of a conversation with seq <= maxSeq whose
// revision lies in (afterRev, uptoRev], ordered by revision.
func (db *DB) MessagesChanged(ctx context.Context, conversationKey string, maxSeq, afterRev, uptoRev int64) ([]StoredMessage, error) {
	return db.queryMessages(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE conversation_key = ? AND seq <= ? AND rev > ? AND rev <= ?
		ORDER BY rev ASC`, conversationKey, maxSeq, afterRev, uptoRev)
}

// MessagesSince returns up to limit messages across all conversations with
// seq greater than afterSeq, in ascending seq order.
func (db *DB) MessagesSince(ctx context.Context, afterSeq int64, limit int) ([]StoredMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	return db.queryMessages(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE seq > ?
		ORDER BY seq ASC
		LIMIT ?`, afterSeq, limit)
}

// ListMessages returns messages of a conversation using keyset pagination by
// seq, newest first. beforeSeq <= 0 starts from the tail.
func (db *DB) ListMessages(ctx context.Context, conversationKey string, beforeSeq int64, limit int) ([]StoredMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	if beforeSeq <= 0 {
		beforeSeq = 1<<63 - 1
	}
	return db.queryMessages(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE conversation_key = ? AND seq < ?
		ORDER BY seq DESC
		LIMIT ?`, conversationKey, beforeSeq, limit)
}

func (db *DB) queryMessages(ctx context.Context, query string, args ...any) ([]StoredMessage, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []StoredMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(s scanner) (StoredMessage, error) {
	var (
		m      StoredMessage
		sentAt int64
	)
	err := s.Scan(&m.Seq, &m.ConversationKey, &m.MsgID, &m.SenderID, &m.RecipientID, &m.Text, &m.Liked, &sentAt, &m.Rev)
	if err != nil {
		return StoredMessage{}, err
	}
	m.SentAt = time.UnixMilli(sentAt)
	return m, nil
}
