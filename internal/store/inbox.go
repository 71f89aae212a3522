package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/matheus3301/chatsync/internal/chat"
)

const upsertInbox = `
	INSERT INTO inbox (owner_uid, peer_uid, last_message, from_uid, peer_name, peer_image, unread_count, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(owner_uid, peer_uid) DO UPDATE SET
		last_message = excluded.last_message,
		from_uid = excluded.from_uid,
		peer_name = excluded.peer_name,
		peer_image = excluded.peer_image,
		unread_count = excluded.unread_count,
		updated_at = excluded.updated_at`

// RecordSent writes the sender's own row and then computes and writes the
// recipient's row from its previous value, all in one transaction. next
// receives nil when the recipient has no row yet.
func (db *DB) RecordSent(ctx context.Context, own chat.InboxRow, recipientOwner, recipientPeer string, next func(prev *chat.InboxRow) chat.InboxRow) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if err := execInboxUpsert(ctx, tx, own); err != nil {
			return fmt.Errorf("upsert sender row: %w", err)
		}
		prev, err := getInboxRow(ctx, tx, recipientOwner, recipientPeer)
		if err != nil {
			return fmt.Errorf("read recipient row: %w", err)
		}
		row := next(prev)
		row.OwnerUID, row.PeerUID = recipientOwner, recipientPeer
		if err := execInboxUpsert(ctx, tx, row); err != nil {
			return fmt.Errorf("upsert recipient row: %w", err)
		}
		return nil
	})
}

// ResetUnread sets unread_count to zero on an existing row. It reports
// whether a row was found.
func (db *DB) ResetUnread(ctx context.Context, owner, peer string) (bool, error) {
	res, err := db.ExecContext(ctx, `UPDATE inbox SET unread_count = 0 WHERE owner_uid = ? AND peer_uid = ?`, owner, peer)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetInboxRow returns one inbox row, or nil if it does not exist.
func (db *DB) GetInboxRow(ctx context.Context, owner, peer string) (*chat.InboxRow, error) {
	return getInboxRow(ctx, db, owner, peer)
}

// ListInbox returns an owner's rows, most recently updated first.
func (db *DB) ListInbox(ctx context.Context, owner string) ([]chat.InboxRow, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT owner_uid, peer_uid, last_message, from_uid, peer_name, peer_image, unread_count, updated_at
		FROM inbox
		WHERE owner_uid = ?
		ORDER BY updated_at DESC, peer_uid ASC`, owner)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []chat.InboxRow
	for rows.Next() {
		r, err := scanInboxRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getInboxRow(ctx context.Context, q queryRower, owner, peer string) (*chat.InboxRow, error) {
	r, err := scanInboxRow(q.QueryRowContext(ctx, `
		SELECT owner_uid, peer_uid, last_message, from_uid, peer_name, peer_image, unread_count, updated_at
		FROM inbox WHERE owner_uid = ? AND peer_uid = ?`, owner, peer))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func execInboxUpsert(ctx context.Context, tx *sql.Tx, r chat.InboxRow) error {
	updated := r.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	_, err := tx.ExecContext(ctx, upsertInbox,
		r.OwnerUID, r.PeerUID, r.LastMessage, r.From, r.PeerName, r.PeerImage, r.UnreadCount, updated.UnixMilli())
	return err
}

func scanInboxRow(s scanner) (chat.InboxRow, error) {
	var (
		r       chat.InboxRow
		updated int64
	)
	if err := s.Scan(&r.OwnerUID, &r.PeerUID, &r.LastMessage, &r.From, &r.PeerName, &r.PeerImage, &r.UnreadCount, &updated); err != nil {
		return chat.InboxRow{}, err
	}
	r.UpdatedAt = time.UnixMilli(updated)
	return r, nil
}
