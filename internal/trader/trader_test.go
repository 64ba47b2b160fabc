package trader

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swingbot/goswing/internal/common"
	"github.com/swingbot/goswing/internal/domain"
	"github.com/swingbot/goswing/internal/risk"
	"github.com/swingbot/goswing/internal/signal"
	"github.com/swingbot/goswing/pkg/config"
)

// ---- 测试替身 ----

type fakeMarket struct {
	mu        sync.Mutex
	prices    map[string]float64
	histories map[string][]domain.IndicatorSnapshot
	connErr   error
	calls     int

	// 非 nil 时连通性检查先通知进入、再阻塞到通道关闭
	connEntered chan struct{}
	connGate    chan struct{}
}

func (f *fakeMarket) LatestPrice(_ context.Context, symbol string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	price, ok := f.prices[symbol]
	if !ok {
		return 0, errors.New("price unavailable")
	}
	return price, nil
}

func (f *fakeMarket) RecentHistory(_ context.Context, symbol string, _ int) ([]domain.IndicatorSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	history, ok := f.histories[symbol]
	if !ok {
		return nil, errors.New("history unavailable")
	}
	return history, nil
}

func (f *fakeMarket) CheckConnectivity(context.Context) error {
	if f.connEntered != nil {
		close(f.connEntered)
	}
	if f.connGate != nil {
		<-f.connGate
	}
	return f.connErr
}

type submittedOrder struct {
	Symbol string
	Side   domain.Side
	Qty    float64
}

type fakeExecutor struct {
	mu     sync.Mutex
	orders []submittedOrder
	fail   bool
}

func (f *fakeExecutor) SubmitMarketOrder(_ context.Context, symbol string, side domain.Side, qty float64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", errors.New("order rejected")
	}
	f.orders = append(f.orders, submittedOrder{Symbol: symbol, Side: side, Qty: qty})
	return "order-1", nil
}

func (f *fakeExecutor) orderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

type fakeBalance struct{ balance float64 }

func (f *fakeBalance) AvailableBalance(context.Context, string) (float64, error) {
	return f.balance, nil
}

type fakeJournal struct {
	mu     sync.Mutex
	opens  int
	closes int
}

func (f *fakeJournal) RecordOpen(*domain.Position) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	return nil
}

func (f *fakeJournal) RecordClose(*domain.Position) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

// ---- 历史数据构造 ----

// bullishHistory 构造 60 个周期的强上升趋势历史，
// 最后一个周期同时触发 RSI 超卖和 MACD 金叉两票 BUY，量比 2.0。
func bullishHistory() []domain.IndicatorSnapshot {
	history := make([]domain.IndicatorSnapshot, 60)
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := range history {
		close := 100 + float64(i)*0.5 // 线性上涨，趋势门控通过
		history[i] = domain.IndicatorSnapshot{
			Time:          base.Add(time.Duration(i) * time.Hour),
			Close:         close,
			RSI:           50,
			RSIOverbought: 70,
			RSIOversold:   30,
			MACD:          1,
			MACDSignal:    1,
			BBUpper:       close + 10,
			BBMiddle:      close,
			BBLower:       close - 10,
			SMA20:         close,
			SMA50:         close,
			StochK:        50,
			StochD:        50,
			VolumeRatio:   1.0,
		}
	}
	history[58].MACD = -1
	history[58].MACDSignal = 0
	history[59].RSI = 25
	history[59].MACD = 1
	history[59].MACDSignal = 0
	history[59].VolumeRatio = 2.0
	return history
}

// flatHistory 横盘历史：有投票也过不了趋势门控
func flatHistory() []domain.IndicatorSnapshot {
	history := bullishHistory()
	for i := range history {
		history[i].Close = 100
	}
	return history
}

func testConfig() *config.Config {
	return &config.Config{
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
			RequestTimeout:  common.Duration{Duration: 5 * time.Second},
			CandleInterval:  60,
			HistoryLimit:    100,
		},
		DryRun: true,
	}
}

func newTestOrchestrator(cfg *config.Config, market *fakeMarket, exec *fakeExecutor, journal Journal) (*Orchestrator, *risk.Manager) {
	riskMgr := risk.NewManager(cfg.Risk, cfg.InvestmentAmount)
	orch := NewOrchestrator(cfg, riskMgr, signal.NewEngine(), market, exec, &fakeBalance{balance: 1000}, journal)
	return orch, riskMgr
}

// ---- Orchestrator ----

// 完整流程：强信号 + 强趋势 → 下单成交 → 登记仓位并写流水
func TestRunCycleOpensPosition(t *testing.T) {
	market := &fakeMarket{
		prices:    map[string]float64{"ETH/USD": 130},
		histories: map[string][]domain.IndicatorSnapshot{"ETH/USD": bullishHistory()},
	}
	exec := &fakeExecutor{}
	journal := &fakeJournal{}
	orch, riskMgr := newTestOrchestrator(testConfig(), market, exec, journal)

	orch.RunCycle(context.Background())

	require.Equal(t, 1, exec.orderCount())
	assert.Equal(t, domain.SideBuy, exec.orders[0].Side)
	// 数量受单仓上限约束：100×0.1/130
	assert.InDelta(t, 10.0/130, exec.orders[0].Qty, 1e-9)

	positions := riskMgr.ActivePositions()
	require.Len(t, positions, 1)
	pos := positions["ETH/USD"]
	assert.Equal(t, 130.0, pos.EntryPrice)
	assert.InDelta(t, 130*0.95, pos.StopLoss, 1e-9)
	assert.InDelta(t, 130*1.15, pos.TakeProfit, 1e-9)
	assert.Equal(t, 1, journal.opens)
}

// 下单失败时不产生任何仓位状态（无幽灵交易）
func TestRunCycleOrderFailureNoPhantomTrade(t *testing.T) {
	market := &fakeMarket{
		prices:    map[string]float64{"ETH/USD": 130},
		histories: map[string][]domain.IndicatorSnapshot{"ETH/USD": bullishHistory()},
	}
	exec := &fakeExecutor{fail: true}
	orch, riskMgr := newTestOrchestrator(testConfig(), market, exec, nil)

	orch.RunCycle(context.Background())

	assert.Empty(t, riskMgr.ActivePositions())
	assert.Equal(t, 0, riskMgr.PortfolioSummary().TotalTrades)
}

// 趋势门控失败时即使有强信号也不下单
func TestRunCycleTrendGateBlocks(t *testing.T) {
	market := &fakeMarket{
		prices:    map[string]float64{"ETH/USD": 100},
		histories: map[string][]domain.IndicatorSnapshot{"ETH/USD": flatHistory()},
	}
	exec := &fakeExecutor{}
	orch, _ := newTestOrchestrator(testConfig(), market, exec, nil)

	orch.RunCycle(context.Background())

	assert.Equal(t, 0, exec.orderCount())
}

// 单个交易对取价失败只跳过该交易对，其余正常处理
func TestRunCycleSymbolFailureIsolated(t *testing.T) {
	cfg := testConfig()
	cfg.Pairs = []string{"DOT/USD", "ETH/USD"}
	market := &fakeMarket{
		prices:    map[string]float64{"ETH/USD": 130}, // DOT 无价格
		histories: map[string][]domain.IndicatorSnapshot{"ETH/USD": bullishHistory()},
	}
	exec := &fakeExecutor{}
	orch, riskMgr := newTestOrchestrator(cfg, market, exec, nil)

	orch.RunCycle(context.Background())

	assert.Len(t, riskMgr.ActivePositions(), 1)
	assert.Contains(t, riskMgr.ActivePositions(), "ETH/USD")
}

// 止损触发 → 反向平仓单 → 平仓并累计业绩
func TestCheckPositionsStopLoss(t *testing.T) {
	market := &fakeMarket{prices: map[string]float64{"ETH/USD": 94}}
	exec := &fakeExecutor{}
	journal := &fakeJournal{}
	orch, riskMgr := newTestOrchestrator(testConfig(), market, exec, journal)

	riskMgr.RecordTrade("ETH/USD", domain.SideBuy, 1, 100, 95, 115, "o1")

	orch.CheckPositions(context.Background())

	require.Equal(t, 1, exec.orderCount())
	assert.Equal(t, domain.SideSell, exec.orders[0].Side) // 多头用卖单平
	assert.Empty(t, riskMgr.ActivePositions())
	assert.Equal(t, 1, journal.closes)

	stats := orch.PerformanceStats()
	assert.Equal(t, 1, stats.ClosedTrades)
	assert.Equal(t, 0, stats.SuccessfulTrades)
	assert.InDelta(t, -6.0, stats.TotalPnL, 1e-9)
	assert.Equal(t, 0.0, stats.WinRate)
}

// 平仓单失败时仓位保持 OPEN，不改动任何状态
func TestCheckPositionsCloseOrderFailure(t *testing.T) {
	market := &fakeMarket{prices: map[string]float64{"ETH/USD": 94}}
	exec := &fakeExecutor{fail: true}
	orch, riskMgr := newTestOrchestrator(testConfig(), market, exec, nil)

	riskMgr.RecordTrade("ETH/USD", domain.SideBuy, 1, 100, 95, 115, "o1")

	orch.CheckPositions(context.Background())

	positions := riskMgr.ActivePositions()
	require.Len(t, positions, 1)
	assert.True(t, positions["ETH/USD"].IsOpen())
}

// 止盈平仓计入盈利笔数，胜率与平均盈亏正确
func TestPerformanceStatsMath(t *testing.T) {
	market := &fakeMarket{prices: map[string]float64{"ETH/USD": 115}}
	exec := &fakeExecutor{}
	orch, riskMgr := newTestOrchestrator(testConfig(), market, exec, nil)

	riskMgr.RecordTrade("ETH/USD", domain.SideBuy, 1, 100, 95, 115, "o1")
	orch.CheckPositions(context.Background())

	stats := orch.PerformanceStats()
	assert.Equal(t, 1, stats.SuccessfulTrades)
	assert.Equal(t, 100.0, stats.WinRate)
	assert.InDelta(t, 15.0, stats.TotalPnL, 1e-9)
	assert.InDelta(t, 15.0, stats.AveragePnL, 1e-9)
}

// ---- Scheduler ----

func TestSchedulerStopBeforeStart(t *testing.T) {
	orch, _ := newTestOrchestrator(testConfig(), &fakeMarket{}, &fakeExecutor{}, nil)
	sched := NewScheduler(testConfig(), orch)

	sched.Stop() // 必须是无害 no-op
	assert.Equal(t, StateStopped, sched.State())
}

func TestSchedulerInvalidConfigEntersError(t *testing.T) {
	cfg := testConfig()
	cfg.Pairs = nil
	orch, _ := newTestOrchestrator(cfg, &fakeMarket{}, &fakeExecutor{}, nil)
	sched := NewScheduler(cfg, orch)

	err := sched.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateError, sched.State())

	// ERROR 是终态，再次启动仍失败
	assert.Error(t, sched.Start(context.Background()))
}

func TestSchedulerConnectivityFailureEntersError(t *testing.T) {
	market := &fakeMarket{connErr: errors.New("api unreachable")}
	orch, _ := newTestOrchestrator(testConfig(), market, &fakeExecutor{}, nil)
	sched := NewScheduler(testConfig(), orch)

	err := sched.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateError, sched.State())
}

// STARTING 阶段被 Stop 抢断后不得进入运行循环：
// Stop 返回时状态为 STOPPED，校验放行后 Start 必须放弃启动，不下任何单
func TestSchedulerStopDuringStartAbortsLaunch(t *testing.T) {
	market := &fakeMarket{
		prices:      map[string]float64{"ETH/USD": 130},
		histories:   map[string][]domain.IndicatorSnapshot{"ETH/USD": bullishHistory()},
		connEntered: make(chan struct{}),
		connGate:    make(chan struct{}),
	}
	exec := &fakeExecutor{}
	orch, riskMgr := newTestOrchestrator(testConfig(), market, exec, nil)
	sched := NewScheduler(testConfig(), orch)

	errCh := make(chan error, 1)
	go func() { errCh <- sched.Start(context.Background()) }()

	// 等 Start 进入连通性检查（状态 STARTING），再从另一个 goroutine 停止
	<-market.connEntered
	sched.Stop()
	assert.Equal(t, StateStopped, sched.State())

	// 放行检查：Start 必须放弃启动并报错
	close(market.connGate)
	require.Error(t, <-errCh)
	assert.Equal(t, StateStopped, sched.State())

	// 没有运行循环：不会执行交易周期
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, exec.orderCount())
	assert.Empty(t, riskMgr.ActivePositions())

	// 状态回到 STOPPED，之后仍可正常启动
	market.connEntered = nil
	market.connGate = nil
	require.NoError(t, sched.Start(context.Background()))
	sched.Stop()
}

// 启动后立即执行一次完整周期，Stop 后回到 STOPPED
func TestSchedulerStartRunsImmediateCycleAndStops(t *testing.T) {
	market := &fakeMarket{
		prices:    map[string]float64{"ETH/USD": 130},
		histories: map[string][]domain.IndicatorSnapshot{"ETH/USD": bullishHistory()},
	}
	orch, riskMgr := newTestOrchestrator(testConfig(), market, &fakeExecutor{}, nil)
	sched := NewScheduler(testConfig(), orch)

	require.NoError(t, sched.Start(context.Background()))
	assert.Equal(t, StateRunning, sched.State())

	// 立即周期应在短时间内开出仓位
	assert.Eventually(t, func() bool {
		return len(riskMgr.ActivePositions()) == 1
	}, 3*time.Second, 10*time.Millisecond)

	sched.Stop()
	assert.Equal(t, StateStopped, sched.State())

	// 重复 Stop 无害
	sched.Stop()
	assert.Equal(t, StateStopped, sched.State())
}
