package kraken

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var wsLog = logrus.WithField("module", "kraken.ws")

// priceCacheTTL is how long a websocket tick is considered fresh; older
// entries fall back to a REST lookup.
const priceCacheTTL = 30 * time.Second

// wsDialTimeout bounds the websocket handshake.
const wsDialTimeout = 10 * time.Second

type cachedPrice struct {
	price float64
	at    time.Time
}

// TickerFeed maintains a websocket subscription to Kraken's public
// ticker channel and caches the latest trade price per pair. The feed
// reconnects with backoff until its context is cancelled; consumers only
// read the cache and never block on the connection.
type TickerFeed struct {
	url   string
	pairs []string

	mu     sync.RWMutex
	prices map[string]cachedPrice
}

// NewTickerFeed creates a feed for the given pairs (slash form, e.g.
// "ETH/USD", which is also Kraken's websocket pair naming).
func NewTickerFeed(url string, pairs []string) *TickerFeed {
	return &TickerFeed{
		url:    url,
		pairs:  pairs,
		prices: make(map[string]cachedPrice),
	}
}

// Price returns the cached price for the pair if it is still fresh.
func (f *TickerFeed) Price(symbol string) (float64, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	entry, ok := f.prices[symbol]
	if !ok || time.Since(entry.at) > priceCacheTTL {
		return 0, false
	}
	return entry.price, true
}

// Run connects and consumes ticker messages until ctx is cancelled.
// Connection failures are retried with a capped backoff.
func (f *TickerFeed) Run(ctx context.Context) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		err := f.consume(ctx)
		if ctx.Err() != nil {
			return
		}
		wsLog.Warnf("ticker feed disconnected: %v, reconnecting in %s", err, backoff)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (f *TickerFeed) consume(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: wsDialTimeout}
	conn, _, err := dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return errors.Wrap(err, "dial websocket")
	}
	defer conn.Close()

	sub := map[string]any{
		"event":        "subscribe",
		"pair":         f.pairs,
		"subscription": map[string]string{"name": "ticker"},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return errors.Wrap(err, "subscribe ticker")
	}
	wsLog.Infof("subscribed to ticker for %d pairs", len(f.pairs))

	// unblock ReadMessage when the context is cancelled
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return errors.Wrap(err, "read message")
		}
		f.handleMessage(message)
	}
}

// handleMessage parses a channel message. Data frames are arrays:
// [channelID, {"c": ["price", "lot"], ...}, "ticker", "ETH/USD"].
// Event frames (subscription status, heartbeats) are objects and are
// ignored.
func (f *TickerFeed) handleMessage(message []byte) {
	var frame []json.RawMessage
	if err := json.Unmarshal(message, &frame); err != nil {
		return // event frame
	}
	if len(frame) < 4 {
		return
	}

	var payload struct {
		Close []string `json:"c"`
	}
	if err := json.Unmarshal(frame[1], &payload); err != nil || len(payload.Close) == 0 {
		return
	}
	var pair string
	if err := json.Unmarshal(frame[len(frame)-1], &pair); err != nil {
		return
	}

	d, err := decimal.NewFromString(payload.Close[0])
	if err != nil {
		wsLog.Warnf("bad ticker price %q for %s", payload.Close[0], pair)
		return
	}
	price, _ := d.Float64()

	f.mu.Lock()
	f.prices[pair] = cachedPrice{price: price, at: time.Now()}
	f.mu.Unlock()
}
