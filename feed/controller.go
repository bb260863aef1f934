// Package feed reconciles paged fetches and realtime insert events into one
// consistent, bounded view of a user's records.
package feed

import (
	"context"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/fumikura/outfeed"
)

// seenRecords bounds the id set used to de-duplicate pushed records against
// ones already fetched.
const seenRecords = 512

// Fetcher retrieves one page of records for a filter.
type Fetcher interface {
	FetchOutputs(ctx context.Context, page int, f outfeed.Filter) (outfeed.FeedPage, error)
}

// Unsubscriber releases a push subscription.
type Unsubscriber interface {
	Unsubscribe()
}

// PushChannel opens per-user insert subscriptions.
type PushChannel interface {
	Subscribe(ctx context.Context, userID string, onInsert func(outfeed.Record)) (Unsubscriber, error)
}

// NoticeKind distinguishes the notices a Sink can receive.
type NoticeKind int

const (
	// NoticeNewRecord offers a deferred refresh: a record arrived that
	// cannot be merged into the current view in place.
	NoticeNewRecord NoticeKind = iota
	// NoticeError is a transient, dismissible failure report.
	NoticeError
)

// Notice is a user-facing notification raised by the controller.
type Notice struct {
	Kind    NoticeKind
	Message string
	Record  outfeed.Record
	Err     error
}

// Sink receives view updates and notices. Calls arrive serially from the
// controller's own goroutine and must not block for long.
type Sink interface {
	FeedChanged(State)
	Notice(Notice)
}

// State is the controller-owned view of the feed.
type State struct {
	Page       int
	Filter     outfeed.Filter
	TotalPages int
	Items      []outfeed.Record
	Realtime   bool
}

func (s State) clone() State {
	out := s
	out.Items = append([]outfeed.Record(nil), s.Items...)
	return out
}

// Controller owns the feed state. All mutations run on a single internal
// goroutine, so operations are atomic by construction; ordering between
// independently triggered operations is not guaranteed beyond FIFO dispatch.
type Controller struct {
	fetcher Fetcher
	push    PushChannel
	sink    Sink

	cmds      chan func()
	done      chan struct{}
	closeOnce sync.Once

	// Everything below is owned by the run goroutine.
	ctx     context.Context
	session outfeed.Session
	st      State
	seq     uint64
	sub     Unsubscriber
	seen    *lru.Cache[string, struct{}]
	pending bool
}

// New creates a controller for the given session. The sink starts receiving
// updates after Start.
func New(fetcher Fetcher, push PushChannel, session outfeed.Session, sink Sink) *Controller {
	seen, _ := lru.New[string, struct{}](seenRecords)
	return &Controller{
		fetcher: fetcher,
		push:    push,
		sink:    sink,
		cmds:    make(chan func()),
		done:    make(chan struct{}),
		session: session,
		seen:    seen,
		st: State{
			Page:       1,
			TotalPages: 1,
			Realtime:   true,
		},
	}
}

// Start launches the controller, subscribes to the push channel and issues
// the initial fetch. It returns once the loop is running.
func (c *Controller) Start(ctx context.Context) {
	c.ctx = ctx
	go c.run(ctx)
	c.do(func() {
		c.subscribe()
		c.triggerFetch()
	})
}

// Close tears the controller down, releasing the push subscription. It is
// safe to call more than once.
func (c *Controller) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// SetFilter resets the page to 1, replaces the filter and refetches.
func (c *Controller) SetFilter(f outfeed.Filter) {
	c.do(func() {
		c.st.Page = 1
		c.st.Filter = f
		c.triggerFetch()
	})
}

// SetPage clamps n to the known page range and refetches.
func (c *Controller) SetPage(n int) {
	c.do(func() {
		if n < 1 {
			n = 1
		}
		if n > c.st.TotalPages {
			n = c.st.TotalPages
		}
		c.st.Page = n
		c.triggerFetch()
	})
}

// Refresh re-issues a fetch for the current page and filter.
func (c *Controller) Refresh() {
	c.do(func() { c.triggerFetch() })
}

// SetRealtime toggles consumption of push events. Disabling releases the
// subscription entirely; enabling re-establishes it.
func (c *Controller) SetRealtime(enabled bool) {
	c.do(func() {
		if c.st.Realtime == enabled {
			return
		}
		c.st.Realtime = enabled
		if enabled {
			c.subscribe()
		} else {
			c.unsubscribe()
		}
		c.sink.FeedChanged(c.st.clone())
	})
}

// SetSession swaps credentials, tearing down the previous subscription
// before establishing one for the new user.
func (c *Controller) SetSession(s outfeed.Session) {
	c.do(func() {
		c.unsubscribe()
		c.session = s
		if c.st.Realtime {
			c.subscribe()
		}
		c.st.Page = 1
		c.st.Filter = outfeed.Filter{}
		c.triggerFetch()
	})
}

// AcceptRefresh performs the deferred-refresh action: clear the filter,
// jump to page 1 and refetch.
func (c *Controller) AcceptRefresh() {
	c.do(func() {
		c.pending = false
		c.st.Page = 1
		c.st.Filter = outfeed.Filter{}
		c.triggerFetch()
	})
}

// DismissNotice drops a pending deferred-refresh offer, re-arming the
// notice for the next unmergeable record.
func (c *Controller) DismissNotice() {
	c.do(func() { c.pending = false })
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	reply := make(chan State, 1)
	c.do(func() { reply <- c.st.clone() })
	select {
	case st := <-reply:
		return st
	case <-c.done:
		return State{}
	}
}

func (c *Controller) run(ctx context.Context) {
	defer c.unsubscribe()
	for {
		select {
		case <-ctx.Done():
			c.Close()
			return
		case <-c.done:
			return
		case fn := <-c.cmds:
			fn()
		}
	}
}

// do dispatches fn onto the controller goroutine. After Close it is a no-op,
// which makes stray push deliveries harmless.
func (c *Controller) do(fn func()) {
	select {
	case c.cmds <- fn:
	case <-c.done:
	}
}

// triggerFetch issues a fetch for the current page/filter. Results are
// tagged with a sequence number; anything but the newest is discarded, so a
// slow response can never overwrite a later view.
func (c *Controller) triggerFetch() {
	c.seq++
	seq := c.seq
	page, filter := c.st.Page, c.st.Filter

	go func() {
		result, err := c.fetcher.FetchOutputs(c.ctx, page, filter)
		c.do(func() { c.applyFetch(seq, result, err) })
	}()
}

func (c *Controller) applyFetch(seq uint64, result outfeed.FeedPage, err error) {
	if seq != c.seq {
		slog.Debug(
			"Discarding stale fetch result",
			slog.Uint64("seq", seq),
			slog.Uint64("latest", c.seq),
			slog.String("module", "feed"),
		)
		return
	}

	if err != nil {
		// Stale-but-consistent: the previous view stays up.
		c.sink.Notice(Notice{
			Kind:    NoticeError,
			Message: "failed to load outputs",
			Err:     err,
		})
		return
	}

	c.st.Items = result.Items
	c.st.TotalPages = result.TotalPages
	if c.st.TotalPages < 1 {
		c.st.TotalPages = 1
	}
	for _, rec := range result.Items {
		c.seen.Add(rec.ID, struct{}{})
	}
	c.sink.FeedChanged(c.st.clone())
}

// onInsert applies the merge policy for a pushed record.
func (c *Controller) onInsert(rec outfeed.Record) {
	if !c.st.Realtime {
		return
	}
	if _, dup := c.seen.Get(rec.ID); dup {
		return
	}
	c.seen.Add(rec.ID, struct{}{})

	if c.st.Page == 1 && c.st.Filter.Empty() {
		// The newest record would sit at the top of the unfiltered first
		// page, so splice it in and drop the oldest entry to keep the page
		// size intact.
		items := c.st.Items
		if len(items) > 0 {
			items = items[:len(items)-1]
		}
		c.st.Items = append([]outfeed.Record{rec}, items...)
		c.sink.FeedChanged(c.st.clone())
		return
	}

	// Merging into a filtered or non-first page could show a record the
	// filter excludes or shift page boundaries under the user, so offer a
	// refresh instead and leave the view alone.
	if c.pending {
		return
	}
	c.pending = true
	c.sink.Notice(Notice{
		Kind:    NoticeNewRecord,
		Message: "New output available",
		Record:  rec,
	})
}

func (c *Controller) subscribe() {
	if c.sub != nil {
		return
	}
	sub, err := c.push.Subscribe(c.ctx, c.session.UserID, func(rec outfeed.Record) {
		c.do(func() { c.onInsert(rec) })
	})
	if err != nil {
		slog.Error(
			"Failed to subscribe to push channel",
			slog.String("error", err.Error()),
			slog.String("module", "feed"),
		)
		c.sink.Notice(Notice{
			Kind:    NoticeError,
			Message: "realtime updates unavailable",
			Err:     err,
		})
		return
	}
	c.sub = sub
}

func (c *Controller) unsubscribe() {
	if c.sub == nil {
		return
	}
	c.sub.Unsubscribe()
	c.sub = nil
}
