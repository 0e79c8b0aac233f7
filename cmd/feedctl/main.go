// Package main provides a command-line client for the sync core.
// Usage: feedctl [--output json] <command> [args]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"feedsync/internal/app"
	"feedsync/internal/config"
	"feedsync/internal/domain/entity"
	"feedsync/internal/observability/logging"
	"feedsync/internal/usecase/interaction"
)

const usage = `Usage: feedctl [--output json] [--timeout 60s] <command> [args]

Commands:
  like <post-id>                         toggle your like on a post
  bookmark <post-id>                     toggle your bookmark on a post
  status <like|bookmark> <post-id>       show your state and the total count
  comments <post-id>                     list a post's comments
  comment <post-id> <body>               add a comment
  uncomment <post-id> <comment-id>       delete one of your comments
  notify <user-id> <title> [body]        send a system notification
  inbox [--mark-all-read]                list your notifications
  read <notification-id>                 mark a notification read
  apply <job-id> [--cover text] [--resume file]
  applications [--job job-id]            list your (or a job's) applications
  set-status <app-id> <status> [--job job-id]
  channels                               show delivery channel health`

type cli struct {
	app    *app.App
	out    io.Writer
	asJSON bool
}

func main() {
	var (
		outputFormat string
		timeout      time.Duration
	)
	flag.StringVar(&outputFormat, "output", "text", "Output format: text or json")
	flag.DurationVar(&timeout, "timeout", 60*time.Second, "Overall command timeout")
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	logger := logging.NewTextLogger()
	slog.SetDefault(logger)

	cfg, err := config.Load(logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	logging.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	a, err := app.Build(ctx, cfg, logger, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = a.Close() }()

	c := &cli{app: a, out: os.Stdout, asJSON: outputFormat == "json"}
	if err := c.run(ctx, args[0], args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, usage)
			os.Exit(2)
		}
		os.Exit(1)
	}
}

var errUsage = errors.New("invalid arguments")

func need(args []string, n int) error {
	if len(args) < n {
		return fmt.Errorf("%w: expected %d, got %d", errUsage, n, len(args))
	}
	return nil
}

func (c *cli) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "like":
		return c.toggle(ctx, c.app.Likes, args)
	case "bookmark":
		return c.toggle(ctx, c.app.Bookmarks, args)
	case "status":
		return c.status(ctx, args)
	case "comments":
		return c.comments(ctx, args)
	case "comment":
		return c.comment(ctx, args)
	case "uncomment":
		return c.uncomment(ctx, args)
	case "notify":
		return c.notify(ctx, args)
	case "inbox":
		return c.inbox(ctx, args)
	case "read":
		return c.markRead(ctx, args)
	case "apply":
		return c.apply(ctx, args)
	case "applications":
		return c.applications(ctx, args)
	case "set-status":
		return c.setStatus(ctx, args)
	case "channels":
		return c.channels()
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func (c *cli) print(v any, text func(w io.Writer)) error {
	if c.asJSON {
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(c.out)
	return nil
}

func (c *cli) toggle(ctx context.Context, m *interaction.Manager, args []string) error {
	if err := need(args, 1); err != nil {
		return err
	}
	res := m.Toggle(ctx, args[0])
	if res.Err != nil {
		return res.Err
	}
	return c.print(map[string]any{
		"entity_id":    args[0],
		"operation":    m.Operation(),
		"active":       res.State.IsActive,
		"count":        res.State.Count,
		"deduplicated": res.Deduplicated,
	}, func(w io.Writer) {
		fmt.Fprintf(w, "%s %s: active=%t count=%d\n", m.Operation(), args[0], res.State.IsActive, res.State.Count)
	})
}

func (c *cli) status(ctx context.Context, args []string) error {
	if err := need(args, 2); err != nil {
		return err
	}
	var m *interaction.Manager
	switch args[0] {
	case "like":
		m = c.app.Likes
	case "bookmark":
		m = c.app.Bookmarks
	default:
		return fmt.Errorf("%w: unknown operation %q", errUsage, args[0])
	}
	active, err := m.CheckStatus(ctx, args[1])
	if err != nil {
		return err
	}
	count, err := m.Count(ctx, args[1])
	if err != nil {
		return err
	}
	return c.print(map[string]any{"entity_id": args[1], "active": active, "count": count}, func(w io.Writer) {
		fmt.Fprintf(w, "%s %s: active=%t count=%d\n", args[0], args[1], active, count)
	})
}

func (c *cli) comments(ctx context.Context, args []string) error {
	if err := need(args, 1); err != nil {
		return err
	}
	comments, err := c.app.Comments.List(ctx, args[0])
	if err != nil {
		return err
	}
	return c.print(comments, func(w io.Writer) {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tAUTHOR\tCREATED\tBODY")
		for _, cm := range comments {
			author := cm.AuthorID
			if cm.Author != nil && cm.Author.DisplayName != "" {
				author = cm.Author.DisplayName
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", cm.ID, author, cm.CreatedAt.Format(time.RFC3339), cm.Body)
		}
		_ = tw.Flush()
	})
}

func (c *cli) comment(ctx context.Context, args []string) error {
	if err := need(args, 2); err != nil {
		return err
	}
	cm, err := c.app.Comments.Append(ctx, args[0], strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	return c.print(cm, func(w io.Writer) { fmt.Fprintf(w, "comment %s added\n", cm.ID) })
}

func (c *cli) uncomment(ctx context.Context, args []string) error {
	if err := need(args, 2); err != nil {
		return err
	}
	// Remove resolves the thread from the local cache.
	if _, err := c.app.Comments.List(ctx, args[0]); err != nil {
		return err
	}
	if err := c.app.Comments.Remove(ctx, args[1]); err != nil {
		return err
	}
	return c.print(map[string]string{"deleted": args[1]}, func(w io.Writer) {
		fmt.Fprintf(w, "comment %s deleted\n", args[1])
	})
}

func (c *cli) notify(ctx context.Context, args []string) error {
	if err := need(args, 2); err != nil {
		return err
	}
	in := entity.NotificationInput{
		RecipientID: args[0],
		Title:       args[1],
		Type:        entity.NotificationTypeSystem,
	}
	if len(args) > 2 {
		in.Body = strings.Join(args[2:], " ")
	}
	n, err := c.app.Dispatcher.Send(ctx, in)
	if err != nil {
		return err
	}
	return c.print(n, func(w io.Writer) { fmt.Fprintf(w, "notification %s sent\n", n.ID) })
}

func (c *cli) inbox(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("inbox", flag.ContinueOnError)
	markAll := fs.Bool("mark-all-read", false, "Mark every notification read")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	items, unread, err := c.app.Inbox.Refresh(ctx)
	if err != nil {
		return err
	}
	if *markAll && unread > 0 {
		if err := c.app.Inbox.MarkAllRead(ctx); err != nil {
			return err
		}
		items, unread = c.app.Inbox.Items(), c.app.Inbox.Unread()
	}
	return c.print(map[string]any{"unread": unread, "items": items}, func(w io.Writer) {
		fmt.Fprintf(w, "%d unread\n", unread)
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tREAD\tTYPE\tCREATED\tTITLE")
		for _, n := range items {
			fmt.Fprintf(tw, "%s\t%t\t%s\t%s\t%s\n", n.ID, n.Read, n.Type, n.CreatedAt.Format(time.RFC3339), n.Title)
		}
		_ = tw.Flush()
	})
}

func (c *cli) markRead(ctx context.Context, args []string) error {
	if err := need(args, 1); err != nil {
		return err
	}
	if _, _, err := c.app.Inbox.Refresh(ctx); err != nil {
		return err
	}
	if err := c.app.Inbox.MarkRead(ctx, args[0]); err != nil {
		return err
	}
	return c.print(map[string]string{"read": args[0]}, func(w io.Writer) {
		fmt.Fprintf(w, "notification %s marked read\n", args[0])
	})
}

func (c *cli) apply(ctx context.Context, args []string) error {
	if err := need(args, 1); err != nil {
		return err
	}
	fs := flag.NewFlagSet("apply", flag.ContinueOnError)
	cover := fs.String("cover", "", "Cover letter text")
	resume := fs.String("resume", "", "Path to a resume file")
	if err := fs.Parse(args[1:]); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	in := entity.ApplicationInput{JobID: args[0], CoverLetter: *cover}
	if *resume != "" {
		data, err := os.ReadFile(*resume)
		if err != nil {
			return fmt.Errorf("read resume: %w", err)
		}
		in.Resume = data
		in.ContentType = http.DetectContentType(data)
	}
	created, err := c.app.Applications.Submit(ctx, in)
	if err != nil {
		return err
	}
	return c.print(created, func(w io.Writer) {
		fmt.Fprintf(w, "application %s submitted (%s)\n", created.ID, created.Status)
	})
}

func (c *cli) loadApplications(ctx context.Context, jobID string) ([]entity.Application, error) {
	if jobID != "" {
		return c.app.Applications.Load(ctx, jobID)
	}
	return c.app.Applications.LoadMine(ctx)
}

func (c *cli) applications(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("applications", flag.ContinueOnError)
	job := fs.String("job", "", "List applications to this job instead of your own")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	apps, err := c.loadApplications(ctx, *job)
	if err != nil {
		return err
	}
	return c.print(apps, func(w io.Writer) {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tJOB\tAPPLICANT\tSTATUS\tUPDATED")
		for _, a := range apps {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", a.ID, a.JobID, a.ApplicantID, a.Status, a.UpdatedAt.Format(time.RFC3339))
		}
		_ = tw.Flush()
	})
}

func (c *cli) setStatus(ctx context.Context, args []string) error {
	if err := need(args, 2); err != nil {
		return err
	}
	fs := flag.NewFlagSet("set-status", flag.ContinueOnError)
	job := fs.String("job", "", "Job the application belongs to, when you are its owner")
	if err := fs.Parse(args[2:]); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if _, err := c.loadApplications(ctx, *job); err != nil {
		return err
	}
	updated, err := c.app.Applications.UpdateStatus(ctx, args[0], entity.ApplicationStatus(args[1]))
	if err != nil {
		return err
	}
	return c.print(updated, func(w io.Writer) {
		fmt.Fprintf(w, "application %s is now %s\n", updated.ID, updated.Status)
	})
}

func (c *cli) channels() error {
	health := c.app.Dispatcher.ChannelHealth()
	return c.print(health, func(w io.Writer) {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "CHANNEL\tENABLED\tBREAKER\tDISABLED UNTIL")
		for _, h := range health {
			state, until := "closed", "-"
			if h.CircuitBreakerOpen {
				state = "open"
			}
			if h.DisabledUntil != nil {
				until = h.DisabledUntil.Format(time.RFC3339)
			}
			fmt.Fprintf(tw, "%s\t%t\t%s\t%s\n", h.Name, h.Enabled, state, until)
		}
		_ = tw.Flush()
	})
}
