// Package ports defines the collaborator interfaces the trading core
// depends on. Implementations live under internal/kraken; tests provide
// in-memory fakes.
package ports

import (
	"context"

	"github.com/swingbot/goswing/internal/domain"
)

// MarketDataSource provides price and history lookups.
// Both calls must honor the context deadline; a failed lookup is
// reported as an error and the caller skips the symbol for this cycle.
type MarketDataSource interface {
	// LatestPrice returns the most recent trade price for the pair.
	LatestPrice(ctx context.Context, symbol string) (float64, error)

	// RecentHistory returns up to periodCount indicator snapshots in
	// ascending time order, computed from the pair's candle history.
	RecentHistory(ctx context.Context, symbol string, periodCount int) ([]domain.IndicatorSnapshot, error)
}

// OrderExecutor submits market orders. Used both to open and to close
// positions (closing a long is a sell, closing a short is a buy).
type OrderExecutor interface {
	// SubmitMarketOrder places a market order and returns the exchange
	// order ID once the order is accepted. An error means no fill was
	// confirmed and no position state may be mutated.
	SubmitMarketOrder(ctx context.Context, symbol string, side domain.Side, quantity float64) (orderID string, err error)
}

// BalanceSource exposes the available balance for a currency.
type BalanceSource interface {
	AvailableBalance(ctx context.Context, currency string) (float64, error)
}

// ConnectivityChecker is implemented by collaborators that can verify
// reachability before the scheduler enters its run loop.
type ConnectivityChecker interface {
	CheckConnectivity(ctx context.Context) error
}
