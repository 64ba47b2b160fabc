package kraken

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/swingbot/goswing/internal/domain"
)

// Executor submits real market orders through the REST client.
type Executor struct {
	client *Client
}

// NewExecutor builds the live order executor.
func NewExecutor(client *Client) *Executor {
	return &Executor{client: client}
}

// SubmitMarketOrder places a market order on the exchange.
func (e *Executor) SubmitMarketOrder(ctx context.Context, symbol string, side domain.Side, quantity float64) (string, error) {
	return e.client.AddOrder(ctx, symbol, side, quantity)
}

var dryLog = logrus.WithField("module", "kraken.dryrun")

// DryRunExecutor logs orders instead of sending them. Every "fill" is
// immediate and gets a synthetic order ID, so the rest of the pipeline
// behaves exactly as in live mode.
type DryRunExecutor struct{}

// NewDryRunExecutor builds the paper-trading executor.
func NewDryRunExecutor() *DryRunExecutor {
	return &DryRunExecutor{}
}

// SubmitMarketOrder pretends the order filled.
func (e *DryRunExecutor) SubmitMarketOrder(_ context.Context, symbol string, side domain.Side, quantity float64) (string, error) {
	orderID := fmt.Sprintf("dry-%s", uuid.NewString())
	dryLog.Infof("📝 dry-run %s %s qty=%.8f order=%s", side, symbol, quantity, orderID)
	return orderID, nil
}
