// Package conversation implements the controller behind an open two-party
// conversation: it keeps an ordered view of messages with date separators in
// sync with the message log, issues sends and likes, and resets the unread
// counter when the conversation is opened.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/convkey"
	"github.com/matheus3301/chatsync/internal/inbox"
	"github.com/matheus3301/chatsync/internal/status"
	"go.uber.org/zap"
)

// ErrNotOpen is returned by operations that need an open subscription.
var ErrNotOpen = errors.New("conversation is not open")

// Inbox is the inbox summary the controller updates.
type Inbox interface {
	OnMessageSent(ctx context.Context, sent inbox.Sent) error
	MarkRead(ctx context.Context, owner, peer string) error
}

// Deps are the collaborators of a controller.
type Deps struct {
	Messages  chat.MessageStore
	Inbox     Inbox
	Directory chat.Directory
	// Bus receives state transitions. Optional.
	Bus    *bus.Bus
	Logger *zap.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithLocation sets the time zone used to group messages by day.
func WithLocation(loc *time.Location) Option {
	return func(c *Controller) {
		if loc != nil {
			c.loc = loc
		}
	}
}

// WithView registers the view notified of sequence changes.
func WithView(v View) Option {
	return func(c *Controller) {
		if v != nil {
			c.view = v
		}
	}
}

// Controller drives one open conversation between self and peer.
type Controller struct {
	deps   Deps
	self   string
	peer   string
	key    string
	loc    *time.Location
	view   View
	state  *status.Machine
	logger *zap.Logger

	mu      sync.Mutex
	items   []Item
	index   map[string]int
	lastDay time.Time
	closed  bool

	selfDisplay chat.Display
	peerDisplay chat.Display

	sub    chat.Subscription
	cancel context.CancelFunc
	done   chan struct{}

	// notifying is set while the consumer goroutine calls into the view.
	notifying atomic.Bool
}

// New creates a controller for the conversation between self and peer.
func New(deps Deps, self, peer string, opts ...Option) (*Controller, error) {
	if !convkey.ValidUID(self) || !convkey.ValidUID(peer) || self == peer {
		return nil, fmt.Errorf("open %q with %q: %w", self, peer, chat.ErrInvalidUID)
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	key := convkey.Derive(self, peer)
	c := &Controller{
		deps:   deps,
		self:   self,
		peer:   peer,
		key:    key,
		loc:    time.Local,
		view:   nopView{},
		state:  status.NewConversation(deps.Bus, key),
		logger: logger.With(zap.String("conversation_key", key)),
		index:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Key returns the conversation key.
func (c *Controller) Key() string { return c.key }

// State returns the lifecycle state.
func (c *Controller) State() status.State { return c.state.Current() }

// Open resets the owner's unread counter, resolves both participants'
// display metadata and starts following the message log. The subscription
// outlives ctx and ends with Close.
func (c *Controller) Open(ctx context.Context) error {
	if err := c.state.Transition(status.Opening); err != nil {
		return err
	}

	if err := c.deps.Inbox.MarkRead(ctx, c.self, c.peer); err != nil {
		c.logger.Warn("mark read failed", zap.String("owner_uid", c.self), zap.String("peer_uid", c.peer), zap.Error(err))
	}
	c.selfDisplay = c.display(ctx, c.self)
	c.peerDisplay = c.display(ctx, c.peer)

	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub, err := c.deps.Messages.Subscribe(subCtx, c.key)
	if err != nil {
		cancel()
		_ = c.state.Transition(status.Closed)
		return fmt.Errorf("subscribe %s: %w", c.key, err)
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		sub.Close()
		cancel()
		return ErrNotOpen
	}
	c.sub = sub
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.consume()
	err = c.state.Transition(status.Subscribed)
	c.mu.Unlock()
	return err
}

func (c *Controller) display(ctx context.Context, uid string) chat.Display {
	if c.deps.Directory == nil {
		return chat.Display{}
	}
	u, err := c.deps.Directory.Lookup(ctx, uid)
	if err != nil {
		c.logger.Warn("profile lookup failed", zap.String("uid", uid), zap.Error(err))
		return chat.Display{}
	}
	return u.Display()
}

func (c *Controller) consume() {
	defer close(c.done)
	for evt := range c.sub.Events() {
		c.apply(evt)
	}
}

type notification struct {
	changed bool
	pos     int
	item    Item
}

// apply folds one subscription event into the view. Events for a msgId
// already present replace it in place, so redelivery never duplicates.
func (c *Controller) apply(evt chat.Event) {
	var notes []notification

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	msg := evt.Message
	it := MessageItem{Message: msg, Mine: msg.SenderID == c.self}

	switch evt.Kind {
	case chat.Added:
		if pos, ok := c.index[msg.MsgID]; ok {
			notes = append(notes, c.replace(pos, it)...)
			break
		}
		day := dayOf(msg.SentAt, c.loc)
		if len(c.items) == 0 || !day.Equal(c.lastDay) {
			c.items = append(c.items, DateHeader{Day: day})
			notes = append(notes, notification{pos: len(c.items) - 1, item: c.items[len(c.items)-1]})
			c.lastDay = day
		}
		c.items = append(c.items, it)
		c.index[msg.MsgID] = len(c.items) - 1
		notes = append(notes, notification{pos: len(c.items) - 1, item: it})

	case chat.Changed:
		pos, ok := c.index[msg.MsgID]
		if !ok {
			c.logger.Warn("change for unknown message ignored",
				zap.String("msg_id", msg.MsgID), zap.Error(chat.ErrInconsistentState))
			break
		}
		notes = append(notes, c.replace(pos, it)...)

	default:
		c.logger.Warn("unhandled event kind ignored", zap.String("kind", string(evt.Kind)), zap.String("msg_id", msg.MsgID))
	}
	c.mu.Unlock()

	c.notifying.Store(true)
	defer c.notifying.Store(false)
	for _, n := range notes {
		if n.changed {
			c.view.Changed(n.pos, n.item)
		} else {
			c.view.Inserted(n.pos, n.item)
		}
	}
}

func (c *Controller) replace(pos int, it MessageItem) []notification {
	if prev, ok := c.items[pos].(MessageItem); ok && prev == it {
		return nil
	}
	c.items[pos] = it
	return []notification{{changed: true, pos: pos, item: it}}
}

// Send appends text to the conversation and updates both inbox rows. The
// message reaches the view through the subscription. A failed append
// returns the error and changes nothing; a failed inbox update returns the
// appended message together with the error.
func (c *Controller) Send(ctx context.Context, text string) (chat.Message, error) {
	if strings.TrimSpace(text) == "" {
		return chat.Message{}, chat.ErrEmptyText
	}
	if c.state.Current() != status.Subscribed {
		return chat.Message{}, ErrNotOpen
	}
	return c.post(ctx, text, c.selfDisplay, c.peerDisplay)
}

// Send delivers one message from self to peer without opening the
// conversation: no unread reset, no subscription. Errors follow
// Controller.Send.
func Send(ctx context.Context, deps Deps, self, peer, text string) (chat.Message, error) {
	c, err := New(deps, self, peer)
	if err != nil {
		return chat.Message{}, err
	}
	if strings.TrimSpace(text) == "" {
		return chat.Message{}, chat.ErrEmptyText
	}
	return c.post(ctx, text, c.display(ctx, self), c.display(ctx, peer))
}

func (c *Controller) post(ctx context.Context, text string, selfDisplay, peerDisplay chat.Display) (chat.Message, error) {
	msg, err := c.deps.Messages.Append(ctx, c.key, c.self, c.peer, text)
	if err != nil {
		return chat.Message{}, err
	}

	err = c.deps.Inbox.OnMessageSent(ctx, inbox.Sent{
		ConversationKey:  c.key,
		SenderID:         c.self,
		RecipientID:      c.peer,
		MsgID:            msg.MsgID,
		Text:             msg.Text,
		SentAt:           msg.SentAt,
		RecipientDisplay: peerDisplay,
		SenderDisplay:    &selfDisplay,
	})
	if err != nil {
		return msg, fmt.Errorf("update inbox: %w", err)
	}
	return msg, nil
}

// SetLiked toggles the liked flag of a message in this conversation.
func (c *Controller) SetLiked(ctx context.Context, msgID string, liked bool) error {
	if c.state.Current() != status.Subscribed {
		return ErrNotOpen
	}
	return c.deps.Messages.SetLiked(ctx, c.key, msgID, liked)
}

// Items returns a snapshot of the ordered view.
func (c *Controller) Items() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Item, len(c.items))
	copy(out, c.items)
	return out
}

// Close stops following the log. Events still in flight are dropped. Safe
// to call more than once, including from a View callback. While a callback
// is running Close does not wait for the consumer goroutine to exit.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	sub, cancel, done := c.sub, c.cancel, c.done
	c.mu.Unlock()

	_ = c.state.Transition(status.Closed)
	if sub != nil {
		sub.Close()
		cancel()
		if !c.notifying.Load() {
			<-done
		}
	}
}
