// Package tui implements the `rigwatch watch` terminal dashboard: a
// bubbletea program that subscribes to the Fan-out Layer's push
// channel and renders the fleet's rigs/agents/events live, per
// SPEC_FULL.md §4.13 (the spec's Non-goal is the browser dashboard,
// not a terminal one).
package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gastown-ops/rigwatch/internal/fanout"
)

// client streams fanout.Frame values from rigwatch's push channel,
// reconnecting with exponential backoff on connection loss.
//
// Grounded on steveyegge-beads/internal/coop/watcher.go's Watcher: the
// http(s)->ws(s) URL rewrite, websocket.DefaultDialer.DialContext,
// a context-closes-the-conn goroutine, and a reconnect loop with
// exponential backoff capped at 30s.
type client struct {
	wsURL string

	mu   sync.Mutex
	conn *websocket.Conn
}

// Stream exposes the same reconnecting push-channel client the full
// dashboard uses, for callers like `rigwatch watch`'s non-interactive
// fallback that want the raw frame stream without a bubbletea program.
func Stream(ctx context.Context, baseURL string) <-chan fanout.Frame {
	return newClient(baseURL).watch(ctx)
}

func newClient(baseURL string) *client {
	u := strings.TrimRight(baseURL, "/")
	u = strings.Replace(u, "https://", "wss://", 1)
	u = strings.Replace(u, "http://", "ws://", 1)
	return &client{wsURL: u + "/ws"}
}

// watch streams frames on the returned channel until ctx is cancelled,
// at which point the channel is closed.
func (c *client) watch(ctx context.Context) <-chan fanout.Frame {
	ch := make(chan fanout.Frame, 64)

	go func() {
		defer close(ch)

		backoff := time.Second
		const maxBackoff = 30 * time.Second

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			err := c.connect(ctx, ch)
			if err == nil || ctx.Err() != nil {
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
			}
		}
	}()

	return ch
}

func (c *client) connect(ctx context.Context, ch chan<- fanout.Frame) error {
	u, err := url.Parse(c.wsURL)
	if err != nil {
		return fmt.Errorf("tui: parse ws url: %w", err)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("tui: ws dial: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()
	}()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("tui: ws read: %w", err)
		}

		var frame fanout.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}

		select {
		case ch <- frame:
		case <-ctx.Done():
			return nil
		}
	}
}
