package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swingbot/goswing/internal/common"
	"github.com/swingbot/goswing/internal/domain"
	"github.com/swingbot/goswing/pkg/config"
)

func testRiskConfig() config.RiskConfig {
	return config.RiskConfig{
		MaxPositionSize: 0.1,
		StopLossPct:     5,
		TakeProfitPct:   15,
		MaxDailyTrades:  10,
		MaxDailyLoss:    50,
		Cooldown:        common.Duration{Duration: time.Hour},
	}
}

// newTestManager 创建带固定时钟的管理器，返回推进时钟的函数
func newTestManager(t *testing.T) (*Manager, func(d time.Duration)) {
	t.Helper()
	current := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	m := NewManager(testRiskConfig(), 100)
	m.SetClock(func() time.Time { return current })
	advance := func(d time.Duration) { current = current.Add(d) }
	return m, advance
}

func TestCanPlaceTradeAllows(t *testing.T) {
	m, _ := newTestManager(t)
	allowed, reason := m.CanPlaceTrade("ETH/USD", 5)
	assert.True(t, allowed)
	assert.Empty(t, reason)
}

// 门控必须按固定顺序短路：命中的拒绝原因对应第一个失败项
func TestCanPlaceTradeOrderedChecks(t *testing.T) {
	t.Run("当日交易上限", func(t *testing.T) {
		m, advance := newTestManager(t)
		// 61 分钟刚好越过冷却期且全部落在同一天
		for i := 0; i < 10; i++ {
			m.RecordTrade("ETH/USD", domain.SideBuy, 0.01, 100, 95, 115, "o1")
			m.ClosePosition("ETH/USD", 120, domain.ExitReasonTakeProfit)
			advance(61 * time.Minute)
		}
		allowed, reason := m.CanPlaceTrade("DOT/USD", 5)
		assert.False(t, allowed)
		// 原因必须同时包含当前值和上限
		assert.Contains(t, reason, "10/10")
	})

	t.Run("当日亏损上限", func(t *testing.T) {
		m, advance := newTestManager(t)
		m.RecordTrade("ETH/USD", domain.SideBuy, 1, 100, 95, 115, "o1")
		m.ClosePosition("ETH/USD", 40, domain.ExitReasonStopLoss) // 亏 60 > 50
		advance(2 * time.Hour)
		allowed, reason := m.CanPlaceTrade("DOT/USD", 5)
		assert.False(t, allowed)
		assert.Contains(t, reason, "亏损")
	})

	t.Run("冷却期", func(t *testing.T) {
		m, advance := newTestManager(t)
		m.RecordTrade("ETH/USD", domain.SideBuy, 0.01, 100, 95, 115, "o1")
		advance(30 * time.Minute)
		allowed, reason := m.CanPlaceTrade("DOT/USD", 5)
		assert.False(t, allowed)
		assert.Contains(t, reason, "1800 秒") // 剩余 30 分钟
	})

	t.Run("名义金额超限", func(t *testing.T) {
		m, _ := newTestManager(t)
		// 上限 = 0.1 × 100 = 10
		allowed, reason := m.CanPlaceTrade("ETH/USD", 10.01)
		assert.False(t, allowed)
		assert.Contains(t, reason, "超过")
	})

	t.Run("重复持仓", func(t *testing.T) {
		m, advance := newTestManager(t)
		m.RecordTrade("ETH/USD", domain.SideBuy, 0.01, 100, 95, 115, "o1")
		advance(2 * time.Hour)
		allowed, reason := m.CanPlaceTrade("ETH/USD", 5)
		assert.False(t, allowed)
		assert.Contains(t, reason, "已有持仓")
	})
}

// 跨日只重置一次，同日两次调用不会重复重置
func TestDailyResetOncePerDay(t *testing.T) {
	m, advance := newTestManager(t)
	m.RecordTrade("ETH/USD", domain.SideBuy, 1, 100, 95, 115, "o1")
	m.ClosePosition("ETH/USD", 90, domain.ExitReasonStopLoss) // 亏 10

	summary := m.PortfolioSummary()
	assert.Equal(t, 1, summary.DailyTrades)
	assert.Equal(t, 10.0, summary.DailyLoss)

	// 跨日后门控触发惰性重置
	advance(24 * time.Hour)
	allowed, _ := m.CanPlaceTrade("DOT/USD", 5)
	assert.True(t, allowed)

	summary = m.PortfolioSummary()
	assert.Equal(t, 0, summary.DailyTrades)
	assert.Equal(t, 0.0, summary.DailyLoss)

	// 同日再次检查不会影响状态
	m.RecordTrade("DOT/USD", domain.SideBuy, 0.5, 10, 9.5, 11.5, "o2")
	m.CanPlaceTrade("KSM/USD", 5)
	assert.Equal(t, 1, m.PortfolioSummary().DailyTrades)
}

func TestPositionSize(t *testing.T) {
	m, _ := newTestManager(t)

	// 余额预算 1000×0.02/50 = 0.4；单仓上限 100×0.1/50 = 0.2 → 取较小
	assert.InDelta(t, 0.2, m.PositionSize(1000, 50, 0.02), 1e-9)
	// 余额预算更小时取余额预算
	assert.InDelta(t, 0.04, m.PositionSize(100, 50, 0.02), 1e-9)
	// 非正价格返回 0
	assert.Equal(t, 0.0, m.PositionSize(1000, 0, 0.02))
	assert.Equal(t, 0.0, m.PositionSize(1000, -1, 0.02))
}

func TestStopAndTargetPrices(t *testing.T) {
	m, _ := newTestManager(t)

	// 多头：止损在下方，止盈在上方
	assert.InDelta(t, 95.0, m.StopLossPrice(100, domain.SideBuy), 1e-9)
	assert.InDelta(t, 115.0, m.TakeProfitPrice(100, domain.SideBuy), 1e-9)
	// 空头方向相反
	assert.InDelta(t, 105.0, m.StopLossPrice(100, domain.SideSell), 1e-9)
	assert.InDelta(t, 85.0, m.TakeProfitPrice(100, domain.SideSell), 1e-9)
}

// 规格边界：entry=100 stop=95 target=110 → 比率恰为 2.0，应接受
func TestIsRiskAcceptableBoundary(t *testing.T) {
	m, _ := newTestManager(t)

	assert.True(t, m.IsRiskAcceptable(100, 95, 110))
	assert.False(t, m.IsRiskAcceptable(100, 95, 109)) // 1.8 < 2
	assert.False(t, m.IsRiskAcceptable(100, 100, 110)) // 风险为 0 直接拒绝
}

// 规格场景：entry=100 qty=1 stop=95，价格跌到 94 触发止损，
// 平仓后盈亏 −6，当日亏损增加 6
func TestStopLossScenario(t *testing.T) {
	m, _ := newTestManager(t)
	m.RecordTrade("ETH/USD", domain.SideBuy, 1, 100, 95, 115, "o1")

	triggers := m.CheckStopLosses(map[string]float64{"ETH/USD": 94})
	require.Len(t, triggers, 1)
	assert.Equal(t, "ETH/USD", triggers[0].Symbol)
	assert.Equal(t, 94.0, triggers[0].Price)

	closed := m.ClosePosition("ETH/USD", 94, domain.ExitReasonStopLoss)
	require.NotNil(t, closed)
	assert.InDelta(t, -6.0, closed.PnL, 1e-9)
	assert.Equal(t, domain.PositionStatusClosed, closed.Status)
	assert.Equal(t, domain.ExitReasonStopLoss, closed.ExitReason)

	summary := m.PortfolioSummary()
	assert.InDelta(t, 6.0, summary.DailyLoss, 1e-9)
	assert.Equal(t, 0, summary.OpenPositions)
}

// 空头触发方向相反：价格上涨触发止损，下跌触发止盈
func TestShortTriggers(t *testing.T) {
	m, _ := newTestManager(t)
	m.RecordTrade("ETH/USD", domain.SideSell, 1, 100, 105, 85, "o1")

	assert.Empty(t, m.CheckStopLosses(map[string]float64{"ETH/USD": 101}))
	assert.Len(t, m.CheckStopLosses(map[string]float64{"ETH/USD": 105}), 1)

	assert.Empty(t, m.CheckTakeProfits(map[string]float64{"ETH/USD": 90}))
	assert.Len(t, m.CheckTakeProfits(map[string]float64{"ETH/USD": 85}), 1)

	// 空头盈亏：(entry-exit)*qty
	closed := m.ClosePosition("ETH/USD", 85, domain.ExitReasonTakeProfit)
	require.NotNil(t, closed)
	assert.InDelta(t, 15.0, closed.PnL, 1e-9)
}

// 价格缺失的交易对不触发
func TestCheckSkipsMissingPrice(t *testing.T) {
	m, _ := newTestManager(t)
	m.RecordTrade("ETH/USD", domain.SideBuy, 1, 100, 95, 115, "o1")

	assert.Empty(t, m.CheckStopLosses(map[string]float64{"DOT/USD": 1}))
}

// 平仓幂等性：无持仓时是无害 no-op，绝不重复计亏
func TestClosePositionIdempotent(t *testing.T) {
	m, _ := newTestManager(t)
	m.RecordTrade("ETH/USD", domain.SideBuy, 1, 100, 95, 115, "o1")

	first := m.ClosePosition("ETH/USD", 90, domain.ExitReasonStopLoss)
	require.NotNil(t, first)

	second := m.ClosePosition("ETH/USD", 90, domain.ExitReasonStopLoss)
	assert.Nil(t, second)
	assert.InDelta(t, 10.0, m.PortfolioSummary().DailyLoss, 1e-9)
}

// 同一交易对不会同时存在两个 OPEN 仓位
func TestSingleOpenPositionPerSymbol(t *testing.T) {
	m, advance := newTestManager(t)
	m.RecordTrade("ETH/USD", domain.SideBuy, 1, 100, 95, 115, "o1")
	advance(2 * time.Hour)

	allowed, _ := m.CanPlaceTrade("ETH/USD", 5)
	assert.False(t, allowed)
	assert.Equal(t, 1, m.PortfolioSummary().OpenPositions)

	m.ClosePosition("ETH/USD", 110, domain.ExitReasonTakeProfit)
	allowed, _ = m.CanPlaceTrade("ETH/USD", 5)
	assert.True(t, allowed)
}

// 未先通过 CanPlaceTrade 的重复登记不覆盖已有仓位
func TestRecordTradeRefusesOverwrite(t *testing.T) {
	m, advance := newTestManager(t)
	first := m.RecordTrade("ETH/USD", domain.SideBuy, 1, 100, 95, 115, "o1")
	require.NotNil(t, first)
	advance(2 * time.Hour)

	dup := m.RecordTrade("ETH/USD", domain.SideBuy, 2, 120, 114, 138, "o2")
	assert.Nil(t, dup)

	// 原仓位原封不动，计数不变
	pos := m.ActivePositions()["ETH/USD"]
	require.NotNil(t, pos)
	assert.Equal(t, "o1", pos.OrderID)
	assert.Equal(t, 100.0, pos.EntryPrice)

	summary := m.PortfolioSummary()
	assert.Equal(t, 1, summary.TotalTrades)
	assert.Equal(t, 1, summary.DailyTrades)
}

func TestPortfolioSummaryAggregation(t *testing.T) {
	m, advance := newTestManager(t)
	m.RecordTrade("ETH/USD", domain.SideBuy, 1, 100, 95, 115, "o1")
	m.ClosePosition("ETH/USD", 110, domain.ExitReasonTakeProfit) // +10
	advance(2 * time.Hour)
	m.RecordTrade("DOT/USD", domain.SideBuy, 2, 10, 9.5, 11.5, "o2")
	m.ClosePosition("DOT/USD", 9, domain.ExitReasonStopLoss) // -2
	advance(2 * time.Hour)
	m.RecordTrade("KSM/USD", domain.SideBuy, 1, 30, 28.5, 34.5, "o3") // 持仓中

	summary := m.PortfolioSummary()
	assert.InDelta(t, 8.0, summary.TotalPnL, 1e-9)
	assert.Equal(t, 1, summary.OpenPositions)
	assert.Equal(t, 3, summary.TotalTrades)
	assert.Equal(t, 2, summary.ClosedTrades)
	assert.Equal(t, 3, summary.DailyTrades)
	assert.InDelta(t, 2.0, summary.DailyLoss, 1e-9)
	assert.Equal(t, []string{"KSM/USD"}, summary.ActiveSymbols)
}

// RecentTrades 按时间倒序返回副本
func TestRecentTrades(t *testing.T) {
	m, advance := newTestManager(t)
	m.RecordTrade("ETH/USD", domain.SideBuy, 1, 100, 95, 115, "o1")
	m.ClosePosition("ETH/USD", 110, domain.ExitReasonTakeProfit)
	advance(2 * time.Hour)
	m.RecordTrade("DOT/USD", domain.SideBuy, 1, 10, 9.5, 11.5, "o2")

	trades := m.RecentTrades(1)
	require.Len(t, trades, 1)
	assert.Equal(t, "DOT/USD", trades[0].Symbol)

	all := m.RecentTrades(0)
	assert.Len(t, all, 2)
	assert.Equal(t, "DOT/USD", all[0].Symbol)
	assert.Equal(t, "ETH/USD", all[1].Symbol)

	// 返回的是副本，外部修改不影响内部状态
	all[1].PnL = 999
	assert.InDelta(t, 10.0, m.RecentTrades(0)[1].PnL, 1e-9)
}

// ActivePositions 返回持仓副本
func TestActivePositionsCopy(t *testing.T) {
	m, _ := newTestManager(t)
	m.RecordTrade("ETH/USD", domain.SideBuy, 1, 100, 95, 115, "o1")

	positions := m.ActivePositions()
	require.Len(t, positions, 1)
	positions["ETH/USD"].EntryPrice = 0

	assert.Equal(t, 100.0, m.ActivePositions()["ETH/USD"].EntryPrice)
}
