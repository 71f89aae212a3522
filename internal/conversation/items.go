package conversation

import (
	"time"

	"github.com/matheus3301/chatsync/internal/chat"
)

// Item is one entry of the ordered conversation view.
type Item interface {
	item()
}

// DateHeader separates messages sent on different calendar days. Day is
// midnight in the controller's location.
type DateHeader struct {
	Day time.Time
}

// MessageItem is a message in the view. Mine is true for messages the
// controller's user sent.
type MessageItem struct {
	Message chat.Message
	Mine    bool
}

func (DateHeader) item()  {}
func (MessageItem) item() {}

// View receives single-item notifications as the sequence changes. Calls are
// made from one goroutine, in order, without the controller's lock held, so
// a callback may call back into the controller, Close included.
type View interface {
	Inserted(pos int, it Item)
	Changed(pos int, it Item)
}

type nopView struct{}

func (nopView) Inserted(int, Item) {}
func (nopView) Changed(int, Item)  {}

func dayOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
