// Package lifecycle coordinates an orderly shutdown of rigwatch's
// background subsystems when SIGINT/SIGTERM arrives, per spec.md §4.9.
//
// Grounded on fluxforge/agent/main.go's signal.Notify + context.Cancel
// shutdown shape (catch the signal in a goroutine, cancel a shared
// context, let every loop observe ctx.Done()), generalized here into a
// named, ordered stop list so independently-constructed subsystems
// (some driven by context.Context, some by a stop channel) shut down in
// a deterministic sequence with a bounded per-step wait instead of all
// racing to exit at once.
package lifecycle

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// Stopper is one named shutdown step. Stop must return once the
// subsystem it guards has released its resources, or when ctx expires,
// whichever comes first.
type Stopper struct {
	Name string
	Stop func(ctx context.Context) error
}

// Controller runs Stoppers in registration order on shutdown, each
// bounded by perStepTimeout, continuing past a failing or timed-out
// step rather than aborting the sequence.
type Controller struct {
	mu          sync.Mutex
	stoppers    []Stopper
	perStep     time.Duration
	logger      *log.Logger
	triggered   chan struct{}
	triggerOnce sync.Once
}

// New constructs a Controller. A zero perStepTimeout defaults to 5s,
// matching the "close each connection bounded <=1s" budget the Fan-out
// Hub already bounds its own per-client shutdown to, scaled up for
// slower subsystems like flushing the Historical Store to disk.
func New(perStepTimeout time.Duration, logger *log.Logger) *Controller {
	if perStepTimeout <= 0 {
		perStepTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Controller{
		perStep:   perStepTimeout,
		logger:    logger,
		triggered: make(chan struct{}),
	}
}

// Register appends a shutdown step. Steps run in the order registered,
// so register subsystems upstream-first (stop ingestion before
// closing the state it feeds).
func (c *Controller) Register(name string, stop func(ctx context.Context) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stoppers = append(c.stoppers, Stopper{Name: name, Stop: stop})
}

// WatchSignals spawns a goroutine that cancels root on SIGINT/SIGTERM
// and runs Shutdown. Returns root so callers can pass it straight to
// context-driven subsystems (the Poller) while channel-driven ones
// (FileWatcher, LogsWatcher, the Fan-out Hub) should select on
// root.Done() and translate it into their own stop channel.
func (c *Controller) WatchSignals(ctx context.Context) context.Context {
	root, cancel := context.WithCancel(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			c.logger.Printf("[lifecycle] received %s, shutting down", sig)
		case <-ctx.Done():
		}
		cancel()
		c.Shutdown()
	}()

	return root
}

// Shutdown runs every registered Stopper in order, each bounded by
// perStep, and is safe to call more than once (only the first call
// runs the sequence).
func (c *Controller) Shutdown() {
	c.triggerOnce.Do(func() {
		close(c.triggered)

		c.mu.Lock()
		stoppers := append([]Stopper(nil), c.stoppers...)
		c.mu.Unlock()

		for _, s := range stoppers {
			ctx, cancel := context.WithTimeout(context.Background(), c.perStep)
			done := make(chan error, 1)
			go func(s Stopper) { done <- s.Stop(ctx) }(s)

			select {
			case err := <-done:
				if err != nil {
					c.logger.Printf("[lifecycle] %s stopped with error: %v", s.Name, err)
				} else {
					c.logger.Printf("[lifecycle] %s stopped", s.Name)
				}
			case <-ctx.Done():
				c.logger.Printf("[lifecycle] %s did not stop within %s", s.Name, c.perStep)
			}
			cancel()
		}
	})
}

// Done reports whether Shutdown has been triggered.
func (c *Controller) Done() <-chan struct{} {
	return c.triggered
}

// StopChanFromContext adapts a context.Context into the stop channel
// shape FileWatcher.Run/LogsWatcher.Run/Hub.Run expect, closing the
// returned channel when ctx is cancelled.
func StopChanFromContext(ctx context.Context) <-chan struct{} {
	stop := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(stop)
	}()
	return stop
}
