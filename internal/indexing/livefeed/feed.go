// Package livefeed maintains the persistent subscription that delivers
// newly-finalized block heights.
//
// The feed is the only concurrent actor besides the ingestion loop. It
// pushes heights into the scheduler's priority queue and touches
// nothing else. Disconnection means "no new live entries until
// reconnected", never an error that stops ingestion; reconnection uses
// capped exponential backoff and retries forever.
package livefeed

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sethvargo/go-retry"
)

// Config holds feed settings.
type Config struct {
	URL            string
	ReconnectBase  time.Duration
	ReconnectLimit time.Duration
}

// Feed is the reconnecting block-height subscription.
type Feed struct {
	cfg  Config
	sink func(uint64)
	log  *slog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

// New creates a feed delivering heights to sink.
func New(cfg Config, sink func(uint64), log *slog.Logger) *Feed {
	return &Feed{cfg: cfg, sink: sink, log: log}
}

// subscribeMessage asks the feed server for block notifications.
type subscribeMessage struct {
	Action string   `json:"action"`
	Data   []string `json:"data"`
}

// feedMessage is the shape of a block notification.
type feedMessage struct {
	Block *struct {
		Height uint64 `json:"height"`
	} `json:"block"`
}

// Run connects and reads until the context is canceled. Each
// disconnect is followed by a fresh capped-exponential dial sequence.
func (f *Feed) Run(ctx context.Context) {
	for ctx.Err() == nil {
		conn, err := f.dial(ctx)
		if err != nil {
			return // context canceled
		}

		f.setConn(conn)
		f.readLoop(ctx, conn)
		f.setConn(nil)
		conn.Close()
	}
}

// Close tears down the current connection, unblocking a pending read.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn != nil {
		f.conn.Close()
	}
}

// dial retries forever with capped exponential backoff until the
// context is canceled.
func (f *Feed) dial(ctx context.Context) (*websocket.Conn, error) {
	backoff := retry.WithCappedDuration(f.cfg.ReconnectLimit, retry.NewExponential(f.cfg.ReconnectBase))

	var conn *websocket.Conn
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		c, _, err := websocket.DefaultDialer.DialContext(ctx, f.cfg.URL, nil)
		if err != nil {
			f.log.Warn("live feed dial failed, will retry", "url", f.cfg.URL, "error", err)
			return retry.RetryableError(err)
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := conn.WriteJSON(subscribeMessage{Action: "want", Data: []string{"blocks"}}); err != nil {
		f.log.Warn("live feed subscribe failed", "error", err)
		conn.Close()
		return f.dial(ctx)
	}

	f.log.Info("live feed connected", "url", f.cfg.URL)
	return conn, nil
}

func (f *Feed) readLoop(ctx context.Context, conn *websocket.Conn) {
	// Unblock the read when the context ends.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				f.log.Warn("live feed disconnected", "error", err)
			}
			return
		}

		var msg feedMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			f.log.Debug("skip malformed feed message", "error", err)
			continue
		}
		if msg.Block == nil {
			continue
		}
		f.sink(msg.Block.Height)
	}
}

func (f *Feed) setConn(conn *websocket.Conn) {
	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()
}
