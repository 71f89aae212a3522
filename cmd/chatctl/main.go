package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/client"
	"github.com/matheus3301/chatsync/internal/config"
	"github.com/matheus3301/chatsync/internal/conversation"
	"github.com/matheus3301/chatsync/internal/convkey"
	"github.com/matheus3301/chatsync/internal/lock"
	"github.com/matheus3301/chatsync/internal/profile"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	configFlag := flag.String("config", profile.ConfigPath(), "config file path")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	timeoutFlag := flag.Duration("timeout", 10*time.Second, "request timeout")
	flag.Parse()

	cfg, err := config.Resolve(*configFlag, profile.EnvPath())
	if err != nil {
		fatalf("%v", err)
	}
	name := profile.Resolve(*profileFlag, cfg.DefaultProfile)
	if err := profile.ValidateName(name); err != nil {
		fatalf("%v", err)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	c, err := client.New(profile.SocketPath(name), nil)
	if err != nil {
		fatalf("cannot connect to daemon for profile %q: %v", name, err)
	}
	defer func() { _ = c.Close() }()

	if args[0] == "open" {
		if len(args) != 3 {
			usageError("chatctl open <self> <peer>")
		}
		cmdOpen(c, cfg, args[1], args[2])
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeoutFlag)
	defer cancel()

	switch args[0] {
	case "status":
		cmdStatus(ctx, c, name, *jsonFlag)
	case "user":
		cmdUser(ctx, c, args[1:], *jsonFlag)
	case "send":
		if len(args) != 4 {
			usageError("chatctl send <self> <peer> <text>")
		}
		cmdSend(ctx, c, args[1], args[2], args[3], *jsonFlag)
	case "like":
		if len(args) < 4 || len(args) > 5 {
			usageError("chatctl like <self> <peer> <msgId> [true|false]")
		}
		liked := true
		if len(args) == 5 {
			v, err := strconv.ParseBool(args[4])
			if err != nil {
				usageError("chatctl like <self> <peer> <msgId> [true|false]")
			}
			liked = v
		}
		cmdLike(ctx, c, args[1], args[2], args[3], liked)
	case "inbox":
		if len(args) != 2 {
			usageError("chatctl inbox <uid>")
		}
		cmdInbox(ctx, c, args[1], *jsonFlag)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: chatctl [--profile <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                                   Show daemon status")
	fmt.Fprintln(os.Stderr, "  user put <uid> <name> [thumb] [token]    Register or update a user")
	fmt.Fprintln(os.Stderr, "  user get <uid>                           Show a user")
	fmt.Fprintln(os.Stderr, "  send <self> <peer> <text>                Send a message")
	fmt.Fprintln(os.Stderr, "  like <self> <peer> <msgId> [true|false]  Like or unlike a message")
	fmt.Fprintln(os.Stderr, "  inbox <uid>                              List conversations")
	fmt.Fprintln(os.Stderr, "  open <self> <peer>                       Follow a conversation; lines on stdin are sent")
}

func cmdStatus(ctx context.Context, c *client.Client, name string, jsonOut bool) {
	resp, err := c.Status(ctx)
	if err != nil {
		if pid, _ := lock.Holder(profile.Dir(name)); pid != 0 {
			fatalf("daemon (PID %d) is not answering: %v", pid, err)
		}
		fatalf("daemon for profile %q is not running: %v", name, err)
	}
	if jsonOut {
		outputJSON(resp)
		return
	}
	fmt.Printf("Profile: %s\n", resp.Profile)
	fmt.Printf("Status:  %s\n", resp.State)
	fmt.Printf("Backend: %s\n", resp.Backend)
	fmt.Printf("Push:    %s\n", resp.PushDriver)
	fmt.Printf("Uptime:  %dms\n", resp.UptimeMs)
}

func cmdUser(ctx context.Context, c *client.Client, args []string, jsonOut bool) {
	if len(args) == 0 {
		usageError("chatctl user <put|get> ...")
	}
	switch args[0] {
	case "put":
		if len(args) < 3 || len(args) > 5 {
			usageError("chatctl user put <uid> <name> [thumb] [token]")
		}
		u := chat.User{UID: args[1], Name: args[2]}
		if len(args) > 3 {
			u.ThumbImage = args[3]
		}
		if len(args) > 4 {
			u.DeviceToken = args[4]
		}
		if err := c.Put(ctx, u); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("User %s saved.\n", u.UID)
	case "get":
		if len(args) != 2 {
			usageError("chatctl user get <uid>")
		}
		u, err := c.Lookup(ctx, args[1])
		if err != nil {
			fatalf("%v", err)
		}
		if jsonOut {
			outputJSON(u)
			return
		}
		fmt.Printf("UID:   %s\n", u.UID)
		fmt.Printf("Name:  %s\n", u.Name)
		fmt.Printf("Thumb: %s\n", u.ThumbImage)
		fmt.Printf("Push:  %v\n", u.DeviceToken != "")
	default:
		fmt.Fprintf(os.Stderr, "unknown user subcommand: %s\n", args[0])
		os.Exit(1)
	}
}

func cmdSend(ctx context.Context, c *client.Client, self, peer, text string, jsonOut bool) {
	msg, err := conversation.Send(ctx, conversation.Deps{Messages: c, Inbox: c, Directory: c}, self, peer, text)
	if err != nil && msg.MsgID == "" {
		fatalf("%v", err)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: message %s sent but inbox not updated: %v\n", msg.MsgID, err)
	}
	if jsonOut {
		outputJSON(msg)
		return
	}
	fmt.Printf("Sent %s\n", msg.MsgID)
}

func cmdLike(ctx context.Context, c *client.Client, self, peer, msgID string, liked bool) {
	if err := c.SetLiked(ctx, convkey.Derive(self, peer), msgID, liked); err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("Liked: %v\n", liked)
}

func cmdInbox(ctx context.Context, c *client.Client, uid string, jsonOut bool) {
	rows, err := c.ListInbox(ctx, uid)
	if err != nil {
		fatalf("%v", err)
	}
	if jsonOut {
		outputJSON(rows)
		return
	}
	if len(rows) == 0 {
		fmt.Println("No conversations.")
		return
	}
	for _, r := range rows {
		unread := ""
		if r.UnreadCount > 0 {
			unread = fmt.Sprintf(" (%d)", r.UnreadCount)
		}
		fmt.Printf("%-20s %-40q %s%s\n", displayName(r.PeerName, r.PeerUID), r.LastMessage, r.UpdatedAt.Local().Format("2006-01-02 15:04"), unread)
	}
}

// cmdOpen follows the conversation until interrupted, sending each stdin line.
func cmdOpen(c *client.Client, cfg *config.Config, self, peer string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	view := &printView{self: self, loc: cfg.Location()}
	ctrl := newController(c, self, peer, view, conversation.WithLocation(cfg.Location()))
	if err := ctrl.Open(ctx); err != nil {
		fatalf("%v", err)
	}
	defer ctrl.Close()

	lines := readLines(os.Stdin)
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				<-ctx.Done()
				return
			}
			handleLine(ctx, ctrl, line)
		}
	}
}

func newController(c *client.Client, self, peer string, view conversation.View, opts ...conversation.Option) *conversation.Controller {
	opts = append(opts, conversation.WithView(view))
	ctrl, err := conversation.New(conversation.Deps{Messages: c, Inbox: c, Directory: c}, self, peer, opts...)
	if err != nil {
		fatalf("%v", err)
	}
	return ctrl
}

func displayName(name, uid string) string {
	if name == "" {
		return uid
	}
	return name
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}

func usageError(usage string) {
	fmt.Fprintln(os.Stderr, "usage: "+usage)
	os.Exit(1)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}
