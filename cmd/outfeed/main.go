package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/fumikura/outfeed"
	"github.com/fumikura/outfeed/client"
	"github.com/fumikura/outfeed/feed"
	"github.com/fumikura/outfeed/internal/config"
	"github.com/fumikura/outfeed/realtime"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: outfeed [-config path] <list|submit|watch> [args]")
		os.Exit(2)
	}

	ctx := context.Background()

	conf, err := config.Load(ctx, *configPath)
	if err != nil {
		fatal("failed to load config", err)
	}
	if conf.Session.Token == "" || conf.Session.UserID == "" {
		fatal("missing credentials", fmt.Errorf("set OUTFEED_TOKEN and OUTFEED_USER_ID"))
	}

	session := outfeed.Session{
		Token:  conf.Session.Token,
		UserID: conf.Session.UserID,
	}
	api := client.New(conf.API.BaseURL, session.Token)

	args := flag.Args()[1:]
	switch flag.Arg(0) {
	case "list":
		err = runList(ctx, api, args)
	case "submit":
		err = runSubmit(ctx, api, args)
	case "watch":
		err = runWatch(ctx, conf, api, session)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", flag.Arg(0))
		os.Exit(2)
	}
	if err != nil {
		fatal(flag.Arg(0)+" failed", err)
	}
}

func fatal(msg string, err error) {
	fmt.Fprintf(os.Stderr, "outfeed: %s: %v\n", msg, err)
	os.Exit(1)
}

func runList(ctx context.Context, api *client.Client, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	page := fs.Int("page", 1, "page to fetch")
	tool := fs.String("tool", "", "filter by tool name substring")
	date := fs.String("date", "", "filter by date (YYYY-MM-DD)")
	fs.Parse(args)

	result, err := api.FetchOutputs(ctx, *page, outfeed.Filter{Tool: *tool, Date: *date})
	if err != nil {
		return err
	}

	printRecords(result.Items)
	fmt.Printf("Page %d of %d\n", *page, result.TotalPages)
	return nil
}

// questions collects repeated -q flags.
type questions []string

func (q *questions) String() string { return strings.Join(*q, "; ") }
func (q *questions) Set(v string) error {
	*q = append(*q, v)
	return nil
}

func runSubmit(ctx context.Context, api *client.Client, args []string) error {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	tool := fs.String("tool", "", "tool name")
	difficulty := fs.String("difficulty", "easy", "difficulty: easy, medium or hard")
	var qs questions
	fs.Var(&qs, "q", "question (repeatable)")
	fs.Parse(args)

	record, err := api.StoreOutput(ctx, outfeed.Draft{
		ToolName:   *tool,
		Questions:  qs,
		Difficulty: outfeed.Difficulty(*difficulty),
	})
	if err != nil {
		return err
	}

	fmt.Printf("Stored %s (%s, %d questions)\n", record.ID, record.ToolName, len(record.Content.Questions))
	return nil
}

// termSink renders controller updates to the terminal.
type termSink struct{}

func (termSink) FeedChanged(st feed.State) {
	fmt.Printf("\n--- page %d of %d", st.Page, st.TotalPages)
	if !st.Filter.Empty() {
		fmt.Printf(" (tool=%q date=%q)", st.Filter.Tool, st.Filter.Date)
	}
	if !st.Realtime {
		fmt.Print(" [realtime off]")
	}
	fmt.Println(" ---")
	printRecords(st.Items)
}

func (termSink) Notice(n feed.Notice) {
	switch n.Kind {
	case feed.NoticeNewRecord:
		fmt.Printf("* New output available: %s — press 'a' to view, 'x' to dismiss\n", n.Record.ToolName)
	case feed.NoticeError:
		fmt.Printf("* %s: %v\n", n.Message, n.Err)
	}
}

// pushChannel adapts realtime.Channel to the controller's port.
type pushChannel struct {
	ch *realtime.Channel
}

func (p pushChannel) Subscribe(ctx context.Context, userID string, onInsert func(outfeed.Record)) (feed.Unsubscriber, error) {
	return p.ch.Subscribe(ctx, userID, onInsert)
}

func runWatch(ctx context.Context, conf config.Config, api *client.Client, session outfeed.Session) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	channel := realtime.NewChannel(conf.API.RealtimeURL, session.Token)
	controller := feed.New(api, pushChannel{ch: channel}, session, termSink{})
	controller.Start(ctx)
	defer controller.Close()

	fmt.Println("commands: p <n> page, f <tool> filter, d <date> filter, r refresh, a view new, x dismiss, t toggle realtime, q quit")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
			switch cmd {
			case "q":
				return nil
			case "r":
				controller.Refresh()
			case "a":
				controller.AcceptRefresh()
			case "x":
				controller.DismissNotice()
			case "t":
				controller.SetRealtime(!controller.Snapshot().Realtime)
			case "p":
				n, err := strconv.Atoi(arg)
				if err != nil {
					fmt.Println("usage: p <page>")
					continue
				}
				controller.SetPage(n)
			case "f":
				st := controller.Snapshot()
				controller.SetFilter(outfeed.Filter{Tool: arg, Date: st.Filter.Date})
			case "d":
				st := controller.Snapshot()
				controller.SetFilter(outfeed.Filter{Tool: st.Filter.Tool, Date: arg})
			case "":
			default:
				slog.Debug("Unknown command", slog.String("cmd", cmd))
				fmt.Println("unknown command:", cmd)
			}
		}
	}
}

func printRecords(records []outfeed.Record) {
	if len(records) == 0 {
		fmt.Println("no outputs found")
		return
	}
	for _, rec := range records {
		fmt.Printf("%s  %-20s [%s] %d questions\n",
			rec.CreatedAt.Local().Format("2006-01-02 15:04"),
			rec.ToolName,
			rec.Content.Difficulty,
			len(rec.Content.Questions),
		)
	}
}
