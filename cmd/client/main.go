package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"profilebook/client"
	"profilebook/domain"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
)

const usage = `usage: client <command> [args]

  register <email> <username> <password>
  login
  send <subject> <text>
  history <subject>
  notifications
  read <notification-id>
  read-all
  search <query>
  notify <subject> <text>     (admin)
  watch [subject...]
`

func main() {
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}
	if err := run(flag.Arg(0), flag.Args()[1:]); err != nil {
		fmt.Fprintln(os.Stderr, color.Red.Render("error: "+err.Error()))
		os.Exit(1)
	}
}

func run(command string, args []string) error {
	cfg, err := client.LoadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	logger := logs.GetLoggerFromString(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	token := cfg.Token
	store := client.NewHTTPStore(cfg.BaseURL, func() string { return token }, cfg.RequestTimeout)

	if command == "register" {
		if len(args) != 3 {
			return fmt.Errorf("register needs <email> <username> <password>")
		}
		account, err := store.Register(ctx, args[0], args[1], args[2])
		if err != nil {
			return err
		}
		fmt.Printf("%s %s\n%s\n", color.Green.Render("registered"), account.UserID, account.Token)
		return nil
	}

	if token == "" && cfg.Email != "" {
		account, err := store.Login(ctx, cfg.Email, cfg.Password)
		if err != nil {
			return fmt.Errorf("login: %w", err)
		}
		token = account.Token
	}
	if command == "login" {
		fmt.Println(token)
		return nil
	}

	session := client.NewSession(logger, cfg, store, func() string { return token })
	defer session.Disconnect()

	switch command {
	case "send":
		if len(args) < 2 {
			return fmt.Errorf("send needs <subject> <text>")
		}
		if err := session.Connect(ctx); err != nil {
			return err
		}
		message, err := session.Send(ctx, domain.SubjectID(args[0]), strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		printMessages([]domain.Message{message})
	case "history":
		if len(args) != 1 {
			return fmt.Errorf("history needs <subject>")
		}
		view, err := session.OpenConversation(ctx, domain.SubjectID(args[0]))
		if err != nil {
			return err
		}
		printMessages(view.Messages())
	case "notifications":
		view, err := session.OpenNotifications(ctx)
		if err != nil {
			return err
		}
		printNotifications(view.Notifications())
		fmt.Printf("%s %d\n", color.Yellow.Render("unread:"), view.Unread())
	case "read":
		if len(args) != 1 {
			return fmt.Errorf("read needs <notification-id>")
		}
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid notification id %q", args[0])
		}
		if err := session.Connect(ctx); err != nil {
			return err
		}
		return session.MarkNotificationRead(ctx, domain.NotificationID(id))
	case "read-all":
		if err := session.Connect(ctx); err != nil {
			return err
		}
		count, err := session.MarkAllRead(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%d notification(s) marked read\n", count)
	case "search":
		messages, err := store.Search(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}
		printMessages(messages)
	case "notify":
		if len(args) < 2 {
			return fmt.Errorf("notify needs <subject> <text>")
		}
		notification, err := store.Notify(ctx, domain.SubjectID(args[0]), strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		printNotifications([]domain.Notification{notification})
	case "watch":
		return watch(ctx, session, args)
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
	return nil
}

// watch stays connected and prints every pushed event until interrupted.
func watch(ctx context.Context, session *client.Session, others []string) error {
	session.OnStateChange(func(s client.State) {
		fmt.Println(color.Cyan.Render("state: " + s.String()))
	})
	session.OnReconnected(func() {
		fmt.Println(color.Cyan.Render("reconnected, views caught up"))
	})
	session.OnMessage(func(m domain.Message) {
		fmt.Printf("%s %s -> %s: %s\n", color.Green.Render(m.CreatedAt.Format(time.TimeOnly)), m.SenderID, m.ReceiverID, m.Content)
	})
	session.OnNotification(func(n domain.Notification) {
		fmt.Printf("%s %s\n", color.Yellow.Render("notification:"), n.Message)
	})

	if err := session.Connect(ctx); err != nil {
		return err
	}
	for _, other := range others {
		if _, err := session.OpenConversation(ctx, domain.SubjectID(other)); err != nil {
			return err
		}
	}
	if _, err := session.OpenNotifications(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	return nil
}

func printMessages(messages []domain.Message) {
	table := newTable("ID", "At", "From", "To", "Content")
	for _, m := range messages {
		table.Append([]string{
			strconv.FormatUint(uint64(m.ID), 10),
			m.CreatedAt.Format(time.DateTime),
			m.SenderID.String(),
			m.ReceiverID.String(),
			m.Content,
		})
	}
	table.Render()
}

func printNotifications(notifications []domain.Notification) {
	table := newTable("ID", "At", "Read", "Message")
	for _, n := range notifications {
		read := color.Yellow.Render("no")
		if n.IsRead {
			read = "yes"
		}
		table.Append([]string{
			strconv.FormatUint(uint64(n.ID), 10),
			n.CreatedAt.Format(time.DateTime),
			read,
			n.Message,
		})
	}
	table.Render()
}

func newTable(headers ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(headers)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetTablePadding("\t")
	return table
}
