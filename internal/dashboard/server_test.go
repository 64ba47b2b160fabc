package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swingbot/goswing/internal/common"
	"github.com/swingbot/goswing/internal/domain"
	"github.com/swingbot/goswing/internal/risk"
	"github.com/swingbot/goswing/internal/signal"
	"github.com/swingbot/goswing/internal/trader"
	"github.com/swingbot/goswing/pkg/config"
)

type stubMarket struct{}

func (stubMarket) LatestPrice(context.Context, string) (float64, error) {
	return 0, errors.New("unavailable")
}

func (stubMarket) RecentHistory(context.Context, string, int) ([]domain.IndicatorSnapshot, error) {
	return nil, errors.New("unavailable")
}

type stubExecutor struct{}

func (stubExecutor) SubmitMarketOrder(context.Context, string, domain.Side, float64) (string, error) {
	return "o1", nil
}

type stubBalance struct{}

func (stubBalance) AvailableBalance(context.Context, string) (float64, error) { return 1000, nil }

func newTestServer(t *testing.T) (*Server, *risk.Manager) {
	t.Helper()
	cfg := &config.Config{
		Pairs:            []string{"ETH/USD"},
		QuoteCurrency:    "ZUSD",
		InvestmentAmount: 100,
		Risk: config.RiskConfig{
			MaxPositionSize: 0.1,
			StopLossPct:     5,
			TakeProfitPct:   15,
			MaxDailyTrades:  10,
			MaxDailyLoss:    50,
			Cooldown:        common.Duration{Duration: time.Hour},
		},
		Trading: config.TradingConfig{
			AnalyzeInterval: common.Duration{Duration: time.Hour},
			MonitorInterval: common.Duration{Duration: 5 * time.Minute},
			RequestTimeout:  common.Duration{Duration: time.Second},
			HistoryLimit:    100,
		},
		DryRun: true,
	}
	riskMgr := risk.NewManager(cfg.Risk, cfg.InvestmentAmount)
	orch := trader.NewOrchestrator(cfg, riskMgr, signal.NewEngine(), stubMarket{}, stubExecutor{}, stubBalance{}, nil)
	sched := trader.NewScheduler(cfg, orch)
	return New(":0", orch, sched), riskMgr
}

func doRequest(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.router().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusReportsState(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var status StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "STOPPED", status.State)
}

func TestPortfolioAndPositions(t *testing.T) {
	s, riskMgr := newTestServer(t)
	riskMgr.RecordTrade("ETH/USD", domain.SideBuy, 1, 100, 95, 115, "o1")

	rec := doRequest(t, s, http.MethodGet, "/api/portfolio")
	require.Equal(t, http.StatusOK, rec.Code)
	var summary domain.PortfolioSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 1, summary.OpenPositions)
	assert.Equal(t, []string{"ETH/USD"}, summary.ActiveSymbols)

	rec = doRequest(t, s, http.MethodGet, "/api/positions")
	require.Equal(t, http.StatusOK, rec.Code)
	positions := make(map[string]*domain.Position)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &positions))
	require.Contains(t, positions, "ETH/USD")
	assert.Equal(t, 100.0, positions["ETH/USD"].EntryPrice)
}

func TestTradesLimitValidation(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/trades?limit=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/trades?limit=5")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStartStopEndpoints(t *testing.T) {
	s, _ := newTestServer(t)

	// stubMarket has no connectivity checker, so start succeeds
	rec := doRequest(t, s, http.MethodPost, "/api/start")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/api/stop")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "STOPPED", body["state"])

	// second start after stop is allowed again; stop it to clean up
	rec = doRequest(t, s, http.MethodPost, "/api/start")
	require.Equal(t, http.StatusOK, rec.Code)
	doRequest(t, s, http.MethodPost, "/api/stop")
}
