package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/matheus3301/chatsync/internal/chat"
)

// UpsertUser inserts or updates a user record.
func (db *DB) UpsertUser(ctx context.Context, u chat.User) error {
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `
		INSERT INTO users (uid, name, thumb_image, device_token, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(uid) DO UPDATE SET
			name = excluded.name,
			thumb_image = excluded.thumb_image,
			device_token = excluded.device_token,
			updated_at = excluded.updated_at`,
		u.UID, u.Name, u.ThumbImage, u.DeviceToken, now)
	return err
}

// GetUser returns a user by uid, or nil if not found.
func (db *DB) GetUser(ctx context.Context, uid string) (*chat.User, error) {
	var u chat.User
	err := db.QueryRowContext(ctx, `
		SELECT uid, name, thumb_image, device_token FROM users WHERE uid = ?`, uid).
		Scan(&u.UID, &u.Name, &u.ThumbImage, &u.DeviceToken)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
