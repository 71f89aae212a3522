// Package relay forwards newly appended messages to the recipient's device.
// Delivery is fire-and-forget: failures are recorded and logged, never
// retried and never reported to the appender.
package relay

import (
	"context"
	"errors"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/convkey"
	"github.com/matheus3301/chatsync/internal/metrics"
	"github.com/matheus3301/chatsync/internal/push"
	"github.com/matheus3301/chatsync/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	checkpointKey = "relay.seq"
	previewRunes  = 100
)

// Options configure the relay loop.
type Options struct {
	// PollInterval is how often the backlog is scanned.
	PollInterval time.Duration
	// BatchSize bounds one backlog scan.
	BatchSize int
	// Backlog enables the checkpointed scan of the local message table.
	// Without it the relay only reacts to bus notifications.
	Backlog bool
}

// Relay observes appends and hands one notification per message to a push
// driver.
type Relay struct {
	db     *store.DB
	dir    chat.Directory
	pusher push.Pusher
	bus    *bus.Bus
	logger *zap.Logger
	opts   Options
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a relay. db records claims and outcomes; dir resolves device
// tokens.
func New(db *store.DB, dir chat.Directory, pusher push.Pusher, b *bus.Bus, logger *zap.Logger, opts Options) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	return &Relay{
		db:     db,
		dir:    dir,
		pusher: pusher,
		bus:    b,
		logger: logger,
		opts:   opts,
	}
}

// Start subscribes to appended messages and begins scanning the backlog.
func (r *Relay) Start(ctx context.Context) error {
	if r.opts.Backlog {
		if err := r.initCheckpoint(ctx); err != nil {
			return err
		}
	}

	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})

	var (
		ch    <-chan bus.Event
		unsub = func() {}
	)
	if r.bus != nil {
		ch, unsub = r.bus.Subscribe(bus.KindMessageAdded, 256)
	}
	go func() {
		defer close(r.done)
		defer unsub()
		r.loop(ctx, ch)
	}()
	return nil
}

// Stop stops the relay and waits for the in-flight delivery to finish.
func (r *Relay) Stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
}

func (r *Relay) loop(ctx context.Context, ch <-chan bus.Event) {
	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case evt := <-ch:
			msg, ok := evt.Payload.(chat.Message)
			if !ok {
				continue
			}
			_ = r.Deliver(ctx, msg)
		case <-ticker.C:
			if r.opts.Backlog {
				r.scanBacklog(ctx)
			}
		case <-ctx.Done():
			return
		}
	}
}

// initCheckpoint starts a fresh relay at the current tail so history is not
// pushed again.
func (r *Relay) initCheckpoint(ctx context.Context) error {
	v, err := r.db.Checkpoint(ctx, checkpointKey)
	if err != nil {
		return err
	}
	if v != "" {
		return nil
	}
	tail, err := r.db.MaxSeq(ctx)
	if err != nil {
		return err
	}
	return r.db.SetCheckpoint(ctx, checkpointKey, strconv.FormatInt(tail, 10))
}

func (r *Relay) scanBacklog(ctx context.Context) {
	v, err := r.db.Checkpoint(ctx, checkpointKey)
	if err != nil {
		r.logger.Error("failed to read relay checkpoint", zap.Error(err))
		return
	}
	after, _ := strconv.ParseInt(v, 10, 64)

	msgs, err := r.db.MessagesSince(ctx, after, r.opts.BatchSize)
	if err != nil {
		r.logger.Error("failed to read relay backlog", zap.Error(err))
		return
	}
	for _, m := range msgs {
		if ctx.Err() != nil {
			return
		}
		_ = r.Deliver(ctx, m.Message)
		after = m.Seq
	}
	if len(msgs) > 0 {
		if err := r.db.SetCheckpoint(ctx, checkpointKey, strconv.FormatInt(after, 10)); err != nil {
			r.logger.Error("failed to advance relay checkpoint", zap.Error(err))
		}
	}
}

// Deliver relays one message. A message already claimed by an earlier call
// is skipped. The returned error is a *chat.DeliveryError when the push
// could not be made; the relay itself only logs it.
func (r *Relay) Deliver(ctx context.Context, msg chat.Message) error {
	ctx, span := otel.Tracer("chatsync/relay").Start(ctx, "relay.deliver", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()
	span.SetAttributes(
		attribute.String("conversation_key", msg.ConversationKey),
		attribute.String("msg_id", msg.MsgID),
	)

	recipient := msg.RecipientID
	if recipient == "" {
		peer, err := convkey.Peer(msg.ConversationKey, msg.SenderID)
		if err != nil {
			r.logger.Warn("cannot derive recipient", zap.String("msg_id", msg.MsgID), zap.Error(err))
			return &chat.DeliveryError{MsgID: msg.MsgID, Err: err}
		}
		recipient = peer
	}

	claimed, err := r.db.ClaimDelivery(ctx, msg.MsgID, recipient)
	if err != nil {
		r.logger.Error("failed to claim delivery", zap.String("msg_id", msg.MsgID), zap.Error(err))
		return err
	}
	if !claimed {
		return nil
	}

	status, derr := r.push(ctx, msg, recipient)
	var errMsg string
	if derr != nil {
		errMsg = derr.Error()
		span.RecordError(derr)
	}
	if err := r.db.FinishDelivery(ctx, msg.MsgID, status, errMsg); err != nil {
		r.logger.Error("failed to record delivery", zap.String("msg_id", msg.MsgID), zap.Error(err))
	}
	metrics.IncPush(r.pusher.Name(), status)

	kind := bus.KindRelayDelivered
	if derr != nil {
		kind = bus.KindRelayFailed
		r.logger.Warn("push delivery failed",
			zap.String("msg_id", msg.MsgID),
			zap.String("recipient_id", recipient),
			zap.String("status", status),
			zap.Error(derr))
	}
	if r.bus != nil {
		r.bus.Publish(bus.Event{
			Kind:      kind,
			Topic:     recipient,
			Timestamp: time.Now(),
			Payload:   store.Delivery{MsgID: msg.MsgID, RecipientID: recipient, Status: status, ErrorMessage: errMsg},
		})
	}
	return derr
}

func (r *Relay) push(ctx context.Context, msg chat.Message, recipient string) (string, error) {
	fail := func(status string, err error) (string, error) {
		return status, &chat.DeliveryError{RecipientID: recipient, MsgID: msg.MsgID, Err: err}
	}

	user, err := r.dir.Lookup(ctx, recipient)
	if errors.Is(err, chat.ErrNotFound) {
		return fail(store.DeliverySkipped, chat.ErrNoDeviceToken)
	}
	if err != nil {
		return fail(store.DeliveryFailed, err)
	}
	if user.DeviceToken == "" {
		return fail(store.DeliverySkipped, chat.ErrNoDeviceToken)
	}

	var senderName string
	if sender, err := r.dir.Lookup(ctx, msg.SenderID); err == nil {
		senderName = sender.Name
	}

	err = r.pusher.Push(ctx, push.Notification{
		Token:           user.DeviceToken,
		RecipientID:     recipient,
		ConversationKey: msg.ConversationKey,
		MsgID:           msg.MsgID,
		SenderID:        msg.SenderID,
		SenderName:      senderName,
		Preview:         Preview(msg.Text),
	})
	if err != nil {
		return fail(store.DeliveryFailed, err)
	}
	return store.DeliverySent, nil
}

// Preview truncates text to at most 100 runes.
func Preview(text string) string {
	if utf8.RuneCountInString(text) <= previewRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:previewRunes])
}
