package client

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"chat-sync/domain/event"
	syncerrors "chat-sync/errors"
	"chat-sync/publications"
	"chat-sync/runtime"
)

// FeedState is the lifecycle of one logical feed subscription.
type FeedState int

const (
	Idle FeedState = iota
	Loading
	Active
	Exhausted
	Failed
)

func (s FeedState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Active:
		return "active"
	case Exhausted:
		return "exhausted"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Opener opens the named feed with the given arguments; in production this
// is publications.Server.Subscribe bound to a connection and viewer.
type Opener func(ctx context.Context, name string, args publications.Args) (*runtime.Handle, error)

// Counter fetches the total count the controller compares against its
// mirror to detect exhaustion.
type Counter func(ctx context.Context) (int, error)

// Controller owns exactly one active subscription per logical feed
// identity. Requesting more history re-opens the feed with an incremented
// batch number instead of opening a parallel one; parameter changes are
// debounced and cancel any in-flight re-subscription.
type Controller struct {
	log    *slog.Logger
	open   Opener
	count  Counter
	name   string
	quiet  time.Duration
	mirror *Mirror

	mu             sync.Mutex
	args           publications.Args
	state          FeedState
	batch          int
	handle         *runtime.Handle
	cancelOpen     context.CancelFunc
	debounce       *time.Timer
	pendingSearch  string
	lastErr        error
	scrollAttached bool
}

func NewController(name string, args publications.Args, mirror *Mirror,
	open Opener, count Counter, quiet time.Duration, log *slog.Logger) *Controller {
	return &Controller{
		log:            log,
		open:           open,
		count:          count,
		name:           name,
		quiet:          quiet,
		mirror:         mirror,
		args:           args,
		state:          Idle,
		scrollAttached: true,
	}
}

func (c *Controller) State() FeedState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) LastErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Controller) BatchNumber() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.batch
}

// ScrollAttached reports whether scroll-to-top events are still wired; the
// listener is detached once the feed is exhausted.
func (c *Controller) ScrollAttached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scrollAttached
}

// Subscribe opens the first batch. A second Subscribe while one is loading
// is rejected; no parallel subscriptions exist for one feed.
func (c *Controller) Subscribe(ctx context.Context) error {
	c.mu.Lock()
	if c.state == Loading {
		c.mu.Unlock()
		return syncerrors.ErrAlreadyLoading
	}
	c.state = Loading
	c.batch = 1
	c.mu.Unlock()

	return c.reopen(ctx, 1, true)
}

// OnScrollToTop requests one more batch of history. Ignored while loading
// and after exhaustion.
func (c *Controller) OnScrollToTop(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case Loading:
		c.mu.Unlock()
		return syncerrors.ErrAlreadyLoading
	case Exhausted:
		c.mu.Unlock()
		return nil
	case Idle, Failed:
		c.mu.Unlock()
		return syncerrors.ErrFeedClosed
	}
	next := c.batch + 1
	c.state = Loading
	c.mu.Unlock()

	// Exhaustion check: when the separately-fetched total matches the
	// mirror, there is no more history and the scroll listener detaches.
	if c.count != nil {
		total, err := c.count(ctx)
		if err != nil {
			c.fail(err)
			return err
		}
		if c.mirror.Len() >= total {
			c.mu.Lock()
			c.state = Exhausted
			c.scrollAttached = false
			c.mu.Unlock()
			return nil
		}
	}

	c.mu.Lock()
	c.batch = next
	c.mu.Unlock()
	return c.reopen(ctx, next, false)
}

// SetSearch coalesces rapid parameter changes: only the value that survives
// the quiet period triggers a re-subscription, cancelling any in-flight
// one. Intermediate values never open a feed.
func (c *Controller) SetSearch(ctx context.Context, value string) {
	c.mu.Lock()
	c.pendingSearch = value
	if c.debounce != nil {
		c.debounce.Stop()
	}
	c.debounce = time.AfterFunc(c.quiet, func() {
		c.mu.Lock()
		settled := c.pendingSearch
		c.args.SearchPattern = settled
		c.state = Loading
		c.batch = 1
		c.mu.Unlock()
		if err := c.reopen(ctx, 1, true); err != nil {
			c.log.Warn("Debounced re-subscription failed", "feed", c.name, "error", err)
		}
	})
	c.mu.Unlock()
}

// Retry re-subscribes after a terminal feed failure. Failures are never
// retried automatically; re-subscribing behind the user's back would
// duplicate side effects against the subscription state.
func (c *Controller) Retry(ctx context.Context) error {
	c.mu.Lock()
	if c.state != Failed {
		c.mu.Unlock()
		return nil
	}
	c.state = Loading
	c.lastErr = nil
	batch := c.batch
	c.mu.Unlock()
	return c.reopen(ctx, batch, true)
}

// Close tears the subscription down and stops the debounce timer.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.debounce != nil {
		c.debounce.Stop()
	}
	if c.cancelOpen != nil {
		c.cancelOpen()
	}
	handle := c.handle
	c.handle = nil
	c.state = Idle
	c.mu.Unlock()

	if handle != nil {
		handle.Close()
	}
}

// reopen cancels any in-flight open, opens the feed with the current
// arguments and the given batch, then swaps the mirror over to it.
func (c *Controller) reopen(ctx context.Context, batch int, reset bool) error {
	c.mu.Lock()
	if c.cancelOpen != nil {
		c.cancelOpen()
	}
	openCtx, cancel := context.WithCancel(ctx)
	c.cancelOpen = cancel
	args := c.args
	args.BatchNumber = batch
	previous := c.handle
	c.mu.Unlock()

	handle, err := c.open(openCtx, c.name, args)
	if err != nil {
		c.fail(err)
		return err
	}
	if openCtx.Err() != nil {
		// Superseded by a newer parameter value while opening: the stale
		// subscription must not complete alongside the new one.
		handle.Close()
		return nil
	}

	c.mu.Lock()
	c.handle = handle
	c.state = Active
	c.mu.Unlock()

	if previous != nil {
		previous.Close()
	}
	if reset {
		c.mirror.Reset()
	}
	go c.pump(ctx, handle)
	return nil
}

// pump applies feed events to the mirror until the feed closes. A
// FeedFailed event is terminal and surfaces through State/LastErr.
func (c *Controller) pump(ctx context.Context, handle *runtime.Handle) {
	for e := range handle.Events() {
		c.mu.Lock()
		superseded := c.handle != handle
		c.mu.Unlock()
		if superseded {
			return
		}
		if failedEvt, ok := e.(event.FeedFailed); ok {
			c.fail(failedEvt.Err)
			return
		}
		if err := c.mirror.Consume(ctx, e); err != nil {
			c.fail(err)
			return
		}
	}
}

func (c *Controller) fail(err error) {
	c.mu.Lock()
	c.state = Failed
	c.lastErr = err
	c.mu.Unlock()
	c.log.Error("Feed failed", "feed", c.name, "error", err)
}
