package firestoredb

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/inbox"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Inbox is the Firestore-backed inbox.Store.
type Inbox struct {
	client *firestore.Client
}

var _ inbox.Store = (*Inbox)(nil)

func NewInbox(client *firestore.Client) *Inbox {
	return &Inbox{client: client}
}

// RecordSent writes both rows in one transaction. Firestore requires all
// reads before writes, so the recipient row is read first.
func (s *Inbox) RecordSent(ctx context.Context, own chat.InboxRow, recipientOwner, recipientPeer string, next func(prev *chat.InboxRow) chat.InboxRow) error {
	ownRef := inboxRef(s.client, own.OwnerUID, own.PeerUID)
	recRef := inboxRef(s.client, recipientOwner, recipientPeer)

	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var prev *chat.InboxRow
		snap, err := tx.Get(recRef)
		switch {
		case status.Code(err) == codes.NotFound:
		case err != nil:
			return fmt.Errorf("read recipient row: %w", err)
		default:
			var doc inboxDoc
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("decode recipient row: %w", err)
			}
			r := doc.row(recipientOwner, recipientPeer)
			prev = &r
		}

		if err := tx.Set(ownRef, inboxDocOf(own)); err != nil {
			return fmt.Errorf("set sender row: %w", err)
		}
		row := next(prev)
		if err := tx.Set(recRef, inboxDocOf(row)); err != nil {
			return fmt.Errorf("set recipient row: %w", err)
		}
		return nil
	})
}

func (s *Inbox) ResetUnread(ctx context.Context, owner, peer string) (bool, error) {
	ref := inboxRef(s.client, owner, peer)
	found := false
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		found = false
		if _, err := tx.Get(ref); err != nil {
			if status.Code(err) == codes.NotFound {
				return nil
			}
			return err
		}
		found = true
		return tx.Update(ref, []firestore.Update{{Path: "count", Value: 0}})
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

func (s *Inbox) ListInbox(ctx context.Context, owner string) ([]chat.InboxRow, error) {
	iter := s.client.Collection(chatsCollection).Doc(owner).Collection(peersCollection).
		OrderBy("time", firestore.Desc).Documents(ctx)
	defer iter.Stop()

	var rows []chat.InboxRow
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list inbox: %w", err)
		}
		var doc inboxDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode inbox row %s: %w", snap.Ref.ID, err)
		}
		rows = append(rows, doc.row(owner, snap.Ref.ID))
	}
	return rows, nil
}
