package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ClaimDelivery records a pending delivery for msgID. It returns false when
// the message was already claimed, so each message is relayed once no matter
// how many trigger paths observe it.
func (db *DB) ClaimDelivery(ctx context.Context, msgID, recipientID string) (bool, error) {
	now := time.Now().UnixMilli()
	res, err := db.ExecContext(ctx, `
		INSERT INTO deliveries (msg_id, recipient_id, status, created_at, updated_at)
		VALUES (?, ?, 'pending', ?, ?)
		ON CONFLICT(msg_id) DO NOTHING`,
		msgID, recipientID, now, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// FinishDelivery records the outcome of a claimed delivery.
func (db *DB) FinishDelivery(ctx context.Context, msgID, status, errMsg string) error {
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `
		UPDATE deliveries SET status = ?, error_message = ?, updated_at = ? WHERE msg_id = ?`,
		status, errMsg, now, msgID)
	return err
}

// GetDelivery returns the delivery row for msgID, or nil.
func (db *DB) GetDelivery(ctx context.Context, msgID string) (*Delivery, error) {
	var d Delivery
	err := db.QueryRowContext(ctx, `
		SELECT msg_id, recipient_id, status, error_message, updated_at FROM deliveries WHERE msg_id = ?`, msgID).
		Scan(&d.MsgID, &d.RecipientID, &d.Status, &d.ErrorMessage, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// DeliveryCounts returns the number of deliveries per status.
func (db *DB) DeliveryCounts(ctx context.Context) (map[string]int64, error) {
	rows, err := db.QueryContext(ctx, `SELECT status, COUNT(*) FROM deliveries GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]int64)
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}
