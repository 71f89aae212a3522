// Package directory resolves uids to user records for display metadata and
// push tokens.
package directory

import (
	"context"
	"fmt"

	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/convkey"
	"github.com/matheus3301/chatsync/internal/store"
)

// Registry is a directory that also accepts user registrations.
type Registry interface {
	chat.Directory
	Put(ctx context.Context, u chat.User) error
}

// Local is the SQLite-backed directory.
type Local struct {
	db *store.DB
}

var _ Registry = (*Local)(nil)

// NewLocal creates a directory over the users table.
func NewLocal(db *store.DB) *Local {
	return &Local{db: db}
}

// Lookup returns the user with uid, or chat.ErrNotFound.
func (d *Local) Lookup(ctx context.Context, uid string) (chat.User, error) {
	u, err := d.db.GetUser(ctx, uid)
	if err != nil {
		return chat.User{}, fmt.Errorf("get user %s: %w", uid, err)
	}
	if u == nil {
		return chat.User{}, fmt.Errorf("user %s: %w", uid, chat.ErrNotFound)
	}
	return *u, nil
}

// Put registers or updates a user.
func (d *Local) Put(ctx context.Context, u chat.User) error {
	if !convkey.ValidUID(u.UID) {
		return fmt.Errorf("put user %q: %w", u.UID, chat.ErrInvalidUID)
	}
	if err := d.db.UpsertUser(ctx, u); err != nil {
		return &chat.WriteError{Op: "put_user", Err: err}
	}
	return nil
}
