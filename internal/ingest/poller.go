package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fieldops/taskbot/internal/models"
	"github.com/fieldops/taskbot/internal/telegram"
)

// Constants for polling configuration
const (
	// DefaultPollTimeout is the long-poll window passed to getUpdates.
	DefaultPollTimeout = 5 * time.Second
	// DefaultPollLimit caps the number of updates fetched per cycle.
	DefaultPollLimit = 100
	// DefaultErrorBackoff is the pause after a failed polling cycle.
	DefaultErrorBackoff = time.Second
)

// Handler consumes one update. The poller advances its cursor past the
// update only when Handle returns nil.
type Handler interface {
	Route(ctx context.Context, u models.Update) error
}

// Opts holds configuration options for the Poller.
type Opts struct {
	PollTimeout  time.Duration // long-poll window per getUpdates call
	PollLimit    int           // max updates per cycle
	ErrorBackoff time.Duration // pause after a failed cycle
}

// Option defines a configuration option for the Poller.
type Option func(*Opts)

// WithPollTimeout sets the long-poll window.
func WithPollTimeout(d time.Duration) Option {
	return func(o *Opts) {
		o.PollTimeout = d
	}
}

// WithPollLimit sets the per-cycle update cap.
func WithPollLimit(n int) Option {
	return func(o *Opts) {
		o.PollLimit = n
	}
}

// WithErrorBackoff sets the pause after a failed cycle.
func WithErrorBackoff(d time.Duration) Option {
	return func(o *Opts) {
		o.ErrorBackoff = d
	}
}

// Poller runs the bounded long-polling loop against getUpdates and feeds
// each update, in the order received, to the Handler.
//
// Exactly one polling cycle is in flight at a time: the loop is a single
// goroutine and a new cycle starts only after the previous one completes.
// The cursor only moves forward, and only past updates the handler has
// confirmed processed; a handler failure ends the cycle and the failed
// update plus the remainder of its batch are re-fetched next cycle.
type Poller struct {
	client  telegram.Sender
	handler Handler

	pollTimeout  time.Duration
	pollLimit    int
	errorBackoff time.Duration

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
	cursor  int64
}

// NewPoller creates a Poller, applying any provided options.
func NewPoller(client telegram.Sender, handler Handler, opts ...Option) *Poller {
	cfg := Opts{
		PollTimeout:  DefaultPollTimeout,
		PollLimit:    DefaultPollLimit,
		ErrorBackoff: DefaultErrorBackoff,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Poller{
		client:       client,
		handler:      handler,
		pollTimeout:  cfg.PollTimeout,
		pollLimit:    cfg.PollLimit,
		errorBackoff: cfg.ErrorBackoff,
	}
}

// Start validates connectivity and launches the polling loop. Starting an
// already running poller is a no-op. Any webhook registration is cleared
// best-effort first so updates are not delivered over two channels at once.
// A connectivity failure is returned once; the caller retries by invoking
// Start again.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		slog.Debug("Poller.Start: already running")
		return nil
	}
	p.running = true
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	stop, done := p.stop, p.done
	p.mu.Unlock()

	me, err := p.client.GetMe(ctx)
	if err != nil {
		p.mu.Lock()
		p.running = false
		// Release any Stop that raced in while the check was in flight.
		close(done)
		p.mu.Unlock()
		return fmt.Errorf("connectivity check failed: %w", err)
	}
	slog.Info("Poller.Start: connectivity verified", "bot_id", me.ID, "username", me.Username)

	if err := p.client.ClearWebhook(ctx); err != nil {
		slog.Warn("Poller.Start: webhook clearing failed, continuing", "error", err)
	}

	go p.run(stop, done)
	slog.Info("Poller.Start: polling loop started", "poll_timeout", p.pollTimeout, "poll_limit", p.pollLimit)
	return nil
}

// Stop signals the loop to halt at the next tick boundary: an in-flight
// fetch completes, no further cycles are scheduled. Stop blocks until the
// loop has exited. Stopping a stopped poller is a no-op, and concurrent
// Stop calls are safe.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	stop, done := p.stop, p.done
	// First caller takes ownership of the stop channel; concurrent callers
	// only wait for the loop to exit.
	p.stop = nil
	p.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	<-done
	slog.Info("Poller.Stop: polling loop stopped", "cursor", p.Cursor())
}

// Running reports whether the polling loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Cursor returns the sequence number of the last confirmed-processed update.
func (p *Poller) Cursor() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

func (p *Poller) run(stop, done chan struct{}) {
	defer func() {
		p.mu.Lock()
		p.running = false
		close(done)
		p.mu.Unlock()
	}()

	for {
		select {
		case <-stop:
			return
		default:
		}

		if err := p.cycle(context.Background()); err != nil {
			if errors.Is(err, telegram.ErrConflict) {
				// Another consumer on the same cursor; transient unless it
				// persists.
				slog.Warn("Poller.run: getUpdates conflict, ignoring", "error", err)
			} else {
				slog.Error("Poller.run: polling cycle failed", "error", err)
			}
			select {
			case <-stop:
				return
			case <-time.After(p.errorBackoff):
			}
		}
	}
}

// cycle performs one fetch-and-route pass. The cursor advances to an
// update's ID only after the handler processed it without error, so a
// failed update is re-fetched rather than lost.
func (p *Poller) cycle(ctx context.Context) error {
	cursor := p.Cursor()
	updates, err := p.client.GetUpdates(ctx, cursor+1, p.pollTimeout, p.pollLimit)
	if err != nil {
		return err
	}

	for _, u := range updates {
		if u.UpdateID <= cursor {
			// Already consumed; the cursor never moves backwards.
			continue
		}
		if err := p.handler.Route(ctx, u); err != nil {
			return fmt.Errorf("routing update %d failed: %w", u.UpdateID, err)
		}
		cursor = u.UpdateID
		p.mu.Lock()
		p.cursor = cursor
		p.mu.Unlock()
	}
	return nil
}
