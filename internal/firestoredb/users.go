package firestoredb

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/convkey"
	"github.com/matheus3301/chatsync/internal/directory"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Users is the Firestore-backed directory.
type Users struct {
	client *firestore.Client
}

var _ directory.Registry = (*Users)(nil)

func NewUsers(client *firestore.Client) *Users {
	return &Users{client: client}
}

func (u *Users) Lookup(ctx context.Context, uid string) (chat.User, error) {
	snap, err := u.client.Collection(usersCollection).Doc(uid).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return chat.User{}, fmt.Errorf("user %s: %w", uid, chat.ErrNotFound)
	}
	if err != nil {
		return chat.User{}, fmt.Errorf("get user %s: %w", uid, err)
	}
	var doc userDoc
	if err := snap.DataTo(&doc); err != nil {
		return chat.User{}, fmt.Errorf("decode user %s: %w", uid, err)
	}
	return chat.User{UID: uid, Name: doc.Name, ThumbImage: doc.ThumbImage, DeviceToken: doc.DeviceToken}, nil
}

func (u *Users) Put(ctx context.Context, user chat.User) error {
	if !convkey.ValidUID(user.UID) {
		return fmt.Errorf("put user %q: %w", user.UID, chat.ErrInvalidUID)
	}
	doc := userDoc{Name: user.Name, ThumbImage: user.ThumbImage, DeviceToken: user.DeviceToken}
	if _, err := u.client.Collection(usersCollection).Doc(user.UID).Set(ctx, doc); err != nil {
		return &chat.WriteError{Op: "put_user", Err: err}
	}
	return nil
}
