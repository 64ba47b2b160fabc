// Package risk 风控管理：开仓门控、仓位大小、止损止盈与当日限额。
// 所有状态（持仓表、当日计数、冷却时钟、交易历史）由单一互斥锁保护，
// 网络调用一律在锁外完成，锁内只做内存状态变更。
package risk

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/swingbot/goswing/internal/domain"
	"github.com/swingbot/goswing/pkg/config"
)

var log = logrus.WithField("module", "risk")

// Trigger 止损/止盈触发记录。
// 只描述触发事实，平仓由调用方在订单成交后执行。
type Trigger struct {
	Symbol   string
	Position *domain.Position // 快照副本
	Price    float64          // 触发时的市场价
}

// Manager 风控管理器
type Manager struct {
	cfg config.RiskConfig

	investmentAmount float64

	mu            sync.Mutex
	positions     map[string]*domain.Position // 持仓表：symbol → OPEN 仓位
	history       []*domain.Position          // 全部交易历史（含已平仓）
	dailyTrades   int
	dailyLoss     float64 // 当日累计亏损（正数）
	lastResetDay  string  // YYYYMMDD，用于惰性跨日重置
	lastTradeTime time.Time

	// now 可注入，测试时用固定时钟
	now func() time.Time
}

// NewManager 创建风控管理器
func NewManager(cfg config.RiskConfig, investmentAmount float64) *Manager {
	return &Manager{
		cfg:              cfg,
		investmentAmount: investmentAmount,
		positions:        make(map[string]*domain.Position),
		lastResetDay:     time.Now().Format("20060102"),
		now:              time.Now,
	}
}

// SetClock 注入时钟（测试用）
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
	m.lastResetDay = now().Format("20060102")
}

// CanPlaceTrade 开仓门控。按固定顺序检查，命中第一个失败项即拒绝：
// 1. 惰性跨日重置 2. 当日交易数 3. 当日亏损 4. 冷却时间
// 5. 名义金额超限 6. 同交易对已有持仓
func (m *Manager) CanPlaceTrade(symbol string, proposedNotional float64) (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.resetDailyIfNeeded()

	if m.dailyTrades >= m.cfg.MaxDailyTrades {
		return false, fmt.Sprintf("已达当日交易上限 (%d/%d)", m.dailyTrades, m.cfg.MaxDailyTrades)
	}
	if m.dailyLoss >= m.cfg.MaxDailyLoss {
		return false, fmt.Sprintf("已达当日亏损上限 (%.2f/%.2f)", m.dailyLoss, m.cfg.MaxDailyLoss)
	}
	if !m.lastTradeTime.IsZero() {
		elapsed := m.now().Sub(m.lastTradeTime)
		if elapsed < m.cfg.Cooldown.Duration {
			remaining := m.cfg.Cooldown.Duration - elapsed
			return false, fmt.Sprintf("冷却期未结束，剩余 %d 秒", int64(math.Ceil(remaining.Seconds())))
		}
	}
	maxNotional := m.cfg.MaxPositionSize * m.investmentAmount
	if proposedNotional > maxNotional {
		return false, fmt.Sprintf("名义金额 %.2f 超过单仓上限 %.2f", proposedNotional, maxNotional)
	}
	if _, exists := m.positions[symbol]; exists {
		return false, fmt.Sprintf("%s 已有持仓", symbol)
	}
	return true, ""
}

// resetDailyIfNeeded 日期变更时重置当日计数（调用方必须持锁）
func (m *Manager) resetDailyIfNeeded() {
	today := m.now().Format("20060102")
	if today != m.lastResetDay {
		log.Infof("跨日重置当日计数: %s -> %s", m.lastResetDay, today)
		m.lastResetDay = today
		m.dailyTrades = 0
		m.dailyLoss = 0
	}
}

// PositionSize 计算开仓数量：
// 取余额风险预算与单仓上限中的较小者，price 非正时返回 0。
func (m *Manager) PositionSize(availableBalance, price, riskFraction float64) float64 {
	if price <= 0 {
		return 0
	}
	byBalance := availableBalance * riskFraction / price
	byLimit := m.investmentAmount * m.cfg.MaxPositionSize / price
	qty := math.Min(byBalance, byLimit)
	if qty < 0 {
		return 0
	}
	return qty
}

// StopLossPrice 止损价：多头为入场价下方，空头为上方
func (m *Manager) StopLossPrice(entryPrice float64, side domain.Side) float64 {
	pct := m.cfg.StopLossPct / 100
	if side == domain.SideBuy {
		return entryPrice * (1 - pct)
	}
	return entryPrice * (1 + pct)
}

// TakeProfitPrice 止盈价：多头为入场价上方，空头为下方
func (m *Manager) TakeProfitPrice(entryPrice float64, side domain.Side) float64 {
	pct := m.cfg.TakeProfitPct / 100
	if side == domain.SideBuy {
		return entryPrice * (1 + pct)
	}
	return entryPrice * (1 - pct)
}

// IsRiskAcceptable 收益/风险比不低于 2:1 才接受（边界值包含）。
// 风险为 0 时比率视为 0，直接拒绝。
func (m *Manager) IsRiskAcceptable(entry, stop, target float64) bool {
	risk := math.Abs(entry - stop)
	if risk == 0 {
		return false
	}
	reward := math.Abs(target - entry)
	return reward/risk >= config.MinRiskReward
}

// RecordTrade 订单确认成交后登记仓位。
// 调用方必须先通过 CanPlaceTrade，持仓表中不允许覆盖已有仓位。
func (m *Manager) RecordTrade(symbol string, side domain.Side, qty, entryPrice, stop, target float64, orderID string) *domain.Position {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.resetDailyIfNeeded()

	if _, exists := m.positions[symbol]; exists {
		log.Warnf("⚠️ %s 已有未平仓位，拒绝覆盖登记 订单=%s", symbol, orderID)
		return nil
	}

	pos := &domain.Position{
		Symbol:     symbol,
		Side:       side,
		Quantity:   qty,
		EntryPrice: entryPrice,
		StopLoss:   stop,
		TakeProfit: target,
		OrderID:    orderID,
		EntryTime:  m.now(),
		Status:     domain.PositionStatusOpen,
	}
	m.positions[symbol] = pos
	m.history = append(m.history, pos)
	m.dailyTrades++
	m.lastTradeTime = m.now()

	log.Infof("📈 开仓 %s %s 数量=%.6f 入场=%.4f 止损=%.4f 止盈=%.4f 订单=%s",
		symbol, side, qty, entryPrice, stop, target, orderID)
	return pos.Clone()
}

// ClosePosition 平仓：计算已实现盈亏并移出持仓表。
// 无持仓时仅打警告日志，不报错、不重复计亏。
func (m *Manager) ClosePosition(symbol string, exitPrice float64, reason domain.ExitReason) *domain.Position {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, exists := m.positions[symbol]
	if !exists {
		log.Warnf("尝试平仓但 %s 没有持仓，忽略", symbol)
		return nil
	}

	pnl := pos.RealizedPnL(exitPrice)
	pos.Status = domain.PositionStatusClosed
	pos.ExitPrice = exitPrice
	pos.ExitTime = m.now()
	pos.ExitReason = reason
	pos.PnL = pnl

	delete(m.positions, symbol)

	if pnl < 0 {
		m.resetDailyIfNeeded()
		m.dailyLoss += -pnl
	}

	log.Infof("📉 平仓 %s 出场=%.4f 盈亏=%.4f 原因=%s", symbol, exitPrice, pnl, reason)
	return pos.Clone()
}

// CheckStopLosses 只读扫描持仓，返回触发止损的仓位。
// 多头：价格 ≤ 止损价；空头：价格 ≥ 止损价。不执行平仓。
func (m *Manager) CheckStopLosses(prices map[string]float64) []Trigger {
	m.mu.Lock()
	defer m.mu.Unlock()

	var triggers []Trigger
	for symbol, pos := range m.positions {
		price, ok := prices[symbol]
		if !ok {
			continue
		}
		hit := (pos.Side == domain.SideBuy && price <= pos.StopLoss) ||
			(pos.Side == domain.SideSell && price >= pos.StopLoss)
		if hit {
			triggers = append(triggers, Trigger{Symbol: symbol, Position: pos.Clone(), Price: price})
		}
	}
	return triggers
}

// CheckTakeProfits 只读扫描持仓，返回触发止盈的仓位。
// 多头：价格 ≥ 止盈价；空头：价格 ≤ 止盈价。不执行平仓。
func (m *Manager) CheckTakeProfits(prices map[string]float64) []Trigger {
	m.mu.Lock()
	defer m.mu.Unlock()

	var triggers []Trigger
	for symbol, pos := range m.positions {
		price, ok := prices[symbol]
		if !ok {
			continue
		}
		hit := (pos.Side == domain.SideBuy && price >= pos.TakeProfit) ||
			(pos.Side == domain.SideSell && price <= pos.TakeProfit)
		if hit {
			triggers = append(triggers, Trigger{Symbol: symbol, Position: pos.Clone(), Price: price})
		}
	}
	return triggers
}

// PortfolioSummary 组合概览（只读聚合）
func (m *Manager) PortfolioSummary() domain.PortfolioSummary {
	m.mu.Lock()
	defer m.mu.Unlock()

	summary := domain.PortfolioSummary{
		OpenPositions: len(m.positions),
		TotalTrades:   len(m.history),
		DailyTrades:   m.dailyTrades,
		DailyLoss:     m.dailyLoss,
	}
	for _, pos := range m.history {
		if pos.Status == domain.PositionStatusClosed {
			summary.ClosedTrades++
			summary.TotalPnL += pos.PnL
		}
	}
	for symbol := range m.positions {
		summary.ActiveSymbols = append(summary.ActiveSymbols, symbol)
	}
	sort.Strings(summary.ActiveSymbols)
	return summary
}

// ActivePositions 返回当前持仓的副本
func (m *Manager) ActivePositions() map[string]*domain.Position {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]*domain.Position, len(m.positions))
	for symbol, pos := range m.positions {
		out[symbol] = pos.Clone()
	}
	return out
}

// RecentTrades 返回最近 limit 条交易记录（按时间倒序，最新在前）
func (m *Manager) RecentTrades(limit int) []*domain.Position {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.history)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]*domain.Position, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, m.history[i].Clone())
	}
	return out
}
