package kraken

import (
	"context"

	"github.com/pkg/errors"

	"github.com/swingbot/goswing/internal/domain"
	"github.com/swingbot/goswing/internal/indicator"
)

// MarketData adapts the REST client (and optionally the websocket feed)
// to the trading core's MarketDataSource interface.
type MarketData struct {
	client *Client
	feed   *TickerFeed // optional, may be nil
	params indicator.Params
	// candle interval in minutes for history requests
	interval int
}

// NewMarketData builds the market data adapter. feed may be nil, in
// which case every price lookup goes through REST.
func NewMarketData(client *Client, feed *TickerFeed, params indicator.Params, intervalMinutes int) *MarketData {
	return &MarketData{
		client:   client,
		feed:     feed,
		params:   params,
		interval: intervalMinutes,
	}
}

// LatestPrice prefers a fresh websocket tick and falls back to REST.
func (m *MarketData) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	if m.feed != nil {
		if price, ok := m.feed.Price(symbol); ok {
			return price, nil
		}
	}
	return m.client.LastPrice(ctx, symbol)
}

// RecentHistory fetches candles and computes indicator snapshots,
// returning at most periodCount entries (the most recent ones).
func (m *MarketData) RecentHistory(ctx context.Context, symbol string, periodCount int) ([]domain.IndicatorSnapshot, error) {
	candles, err := m.client.OHLC(ctx, symbol, m.interval)
	if err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, errors.Errorf("empty candle history for %s", symbol)
	}

	snapshots := indicator.Compute(candles, m.params)
	if periodCount > 0 && len(snapshots) > periodCount {
		snapshots = snapshots[len(snapshots)-periodCount:]
	}
	return snapshots, nil
}

// CheckConnectivity verifies REST reachability via the Time endpoint.
func (m *MarketData) CheckConnectivity(ctx context.Context) error {
	_, err := m.client.ServerTime(ctx)
	return err
}

// Balances adapts the REST client to the BalanceSource interface.
type Balances struct {
	client *Client
}

// NewBalances builds the balance adapter.
func NewBalances(client *Client) *Balances {
	return &Balances{client: client}
}

// AvailableBalance returns the balance for a Kraken asset code (e.g.
// ZUSD). A missing asset means a zero balance, not an error.
func (b *Balances) AvailableBalance(ctx context.Context, currency string) (float64, error) {
	balances, err := b.client.Balance(ctx)
	if err != nil {
		return 0, err
	}
	return balances[currency], nil
}
