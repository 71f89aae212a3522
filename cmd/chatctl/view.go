package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/matheus3301/chatsync/internal/conversation"
)

// printView renders view notifications as lines on stdout.
type printView struct {
	self string
	loc  *time.Location
}

func (v *printView) Inserted(_ int, it conversation.Item) {
	fmt.Println(v.format(it, false))
}

func (v *printView) Changed(_ int, it conversation.Item) {
	fmt.Println(v.format(it, true))
}

func (v *printView) format(it conversation.Item, changed bool) string {
	switch it := it.(type) {
	case conversation.DateHeader:
		return "---- " + it.Day.Format("Mon, 02 Jan 2006") + " ----"
	case conversation.MessageItem:
		who := it.Message.SenderID
		if it.Mine {
			who = "me"
		}
		like := ""
		if it.Message.Liked {
			like = " <3"
		}
		prefix := ""
		if changed {
			prefix = "~ "
		}
		return fmt.Sprintf("%s[%s] %s: %s%s  (%s)", prefix, it.Message.SentAt.In(v.loc).Format("15:04"), who, it.Message.Text, like, it.Message.MsgID)
	}
	return fmt.Sprintf("%v", it)
}

func readLines(r io.Reader) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			out <- sc.Text()
		}
	}()
	return out
}

// handleLine sends text, or toggles a like with "/like <msgId>" and
// "/unlike <msgId>".
func handleLine(ctx context.Context, ctrl *conversation.Controller, line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	if cmd, arg, ok := strings.Cut(line, " "); ok && (cmd == "/like" || cmd == "/unlike") {
		if err := ctrl.SetLiked(ctx, strings.TrimSpace(arg), cmd == "/like"); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		return
	}
	if _, err := ctrl.Send(ctx, line); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
}
