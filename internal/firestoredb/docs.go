// Package firestoredb stores conversations, inbox rows and users in Cloud
// Firestore. Layout:
//
//	messages/{conversationKey}/items/{msgId}
//	chats/{ownerUid}/peers/{peerUid}
//	users/{uid}
package firestoredb

import (
	"time"

	"cloud.google.com/go/firestore"
	"github.com/matheus3301/chatsync/internal/chat"
)

const (
	messagesCollection = "messages"
	itemsCollection    = "items"
	chatsCollection    = "chats"
	peersCollection    = "peers"
	usersCollection    = "users"
)

type messageDoc struct {
	Text        string    `firestore:"msg"`
	SenderID    string    `firestore:"senderId"`
	RecipientID string    `firestore:"recipientId"`
	SentAt      time.Time `firestore:"sentAt"`
	Liked       bool      `firestore:"liked"`
}

func (d messageDoc) message(conversationKey, msgID string) chat.Message {
	return chat.Message{
		MsgID:           msgID,
		ConversationKey: conversationKey,
		Text:            d.Text,
		SenderID:        d.SenderID,
		RecipientID:     d.RecipientID,
		SentAt:          d.SentAt,
		Liked:           d.Liked,
	}
}

type inboxDoc struct {
	LastMessage string    `firestore:"msg"`
	From        string    `firestore:"from"`
	Name        string    `firestore:"name"`
	Image       string    `firestore:"image"`
	Count       int       `firestore:"count"`
	UpdatedAt   time.Time `firestore:"time"`
}

func inboxDocOf(r chat.InboxRow) inboxDoc {
	updated := r.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	return inboxDoc{
		LastMessage: r.LastMessage,
		From:        r.From,
		Name:        r.PeerName,
		Image:       r.PeerImage,
		Count:       r.UnreadCount,
		UpdatedAt:   updated,
	}
}

func (d inboxDoc) row(owner, peer string) chat.InboxRow {
	return chat.InboxRow{
		OwnerUID:    owner,
		PeerUID:     peer,
		LastMessage: d.LastMessage,
		From:        d.From,
		PeerName:    d.Name,
		PeerImage:   d.Image,
		UnreadCount: d.Count,
		UpdatedAt:   d.UpdatedAt,
	}
}

type userDoc struct {
	Name        string `firestore:"name"`
	ThumbImage  string `firestore:"thumbImage"`
	DeviceToken string `firestore:"deviceToken"`
}

func items(c *firestore.Client, conversationKey string) *firestore.CollectionRef {
	return c.Collection(messagesCollection).Doc(conversationKey).Collection(itemsCollection)
}

func inboxRef(c *firestore.Client, owner, peer string) *firestore.DocumentRef {
	return c.Collection(chatsCollection).Doc(owner).Collection(peersCollection).Doc(peer)
}
