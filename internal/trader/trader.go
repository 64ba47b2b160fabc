// Package trader 交易编排：把信号引擎、风控和交易所适配层串成完整周期。
// 所有外部调用都带超时并在锁外执行；单个交易对的失败不会中断整个周期。
package trader

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/swingbot/goswing/internal/domain"
	"github.com/swingbot/goswing/internal/ports"
	"github.com/swingbot/goswing/internal/risk"
	"github.com/swingbot/goswing/internal/signal"
	"github.com/swingbot/goswing/pkg/config"
)

var log = logrus.WithField("module", "trader")

// Journal 交易流水持久化接口（可选，nil 时跳过）。
// 写入失败只记日志，不影响交易状态。
type Journal interface {
	RecordOpen(pos *domain.Position) error
	RecordClose(pos *domain.Position) error
}

// Analysis 单个交易对最近一次的分析结果
type Analysis struct {
	Time   time.Time     `json:"time"`
	Price  float64       `json:"price"`
	Signal domain.Signal `json:"signal"`
}

// Orchestrator 交易编排器
type Orchestrator struct {
	cfg      *config.Config
	risk     *risk.Manager
	engine   *signal.Engine
	market   ports.MarketDataSource
	executor ports.OrderExecutor
	balances ports.BalanceSource
	journal  Journal

	mu               sync.Mutex
	successfulTrades int
	totalPnL         float64
	lastAnalysis     map[string]Analysis
}

// NewOrchestrator 创建交易编排器。journal 可以为 nil。
func NewOrchestrator(
	cfg *config.Config,
	riskMgr *risk.Manager,
	engine *signal.Engine,
	market ports.MarketDataSource,
	executor ports.OrderExecutor,
	balances ports.BalanceSource,
	journal Journal,
) *Orchestrator {
	return &Orchestrator{
		cfg:          cfg,
		risk:         riskMgr,
		engine:       engine,
		market:       market,
		executor:     executor,
		balances:     balances,
		journal:      journal,
		lastAnalysis: make(map[string]Analysis),
	}
}

// callTimeout 单次外部调用的超时
func (o *Orchestrator) callTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, o.cfg.Trading.RequestTimeout.Duration)
}

// RunCycle 完整交易周期：取价、巡检持仓、逐个交易对分析下单、打印组合概览。
func (o *Orchestrator) RunCycle(ctx context.Context) {
	log.Infof("🔄 开始交易周期，共 %d 个交易对", len(o.cfg.Pairs))

	prices := o.fetchPrices(ctx, o.cfg.Pairs)

	// 先巡检已有持仓，再考虑新开仓
	o.CheckPositions(ctx)

	for _, symbol := range o.cfg.Pairs {
		if ctx.Err() != nil {
			return
		}
		price, ok := prices[symbol]
		if !ok {
			log.Warnf("%s 无法获取现价，本周期跳过", symbol)
			continue
		}
		o.analyzeAndTrade(ctx, symbol, price)
	}

	o.logPortfolioSummary()
}

// fetchPrices 拉取一批交易对的现价，失败的交易对缺席返回结果
func (o *Orchestrator) fetchPrices(ctx context.Context, symbols []string) map[string]float64 {
	prices := make(map[string]float64, len(symbols))
	for _, symbol := range symbols {
		callCtx, cancel := o.callTimeout(ctx)
		price, err := o.market.LatestPrice(callCtx, symbol)
		cancel()
		if err != nil {
			log.Warnf("获取 %s 价格失败: %v", symbol, err)
			continue
		}
		prices[symbol] = price
	}
	return prices
}

// analyzeAndTrade 分析单个交易对并在条件满足时下单。
// 任何一步失败都只影响这个交易对。
func (o *Orchestrator) analyzeAndTrade(ctx context.Context, symbol string, price float64) {
	callCtx, cancel := o.callTimeout(ctx)
	history, err := o.market.RecentHistory(callCtx, symbol, o.cfg.Trading.HistoryLimit)
	cancel()
	if err != nil {
		log.Warnf("获取 %s 历史数据失败: %v", symbol, err)
		return
	}

	sig := o.engine.Generate(history)

	o.mu.Lock()
	o.lastAnalysis[symbol] = Analysis{Time: time.Now(), Price: price, Signal: sig}
	o.mu.Unlock()

	log.Infof("%s 分析结果: %s/%s %v", symbol, sig.Direction, sig.Strength, sig.Reasons)

	// 趋势强度门控：不够强时无论信号如何都不开仓
	if !o.engine.IsTrendStrong(history, signal.TrendPeriod) {
		log.Infof("%s 趋势强度不足，跳过", symbol)
		return
	}

	if !sig.IsActionable() {
		return
	}

	side := domain.Side(sig.Direction)

	// 先过风控门控，计划投入为单仓名义上限
	notional := o.cfg.InvestmentAmount * o.cfg.Risk.MaxPositionSize
	if allowed, reason := o.risk.CanPlaceTrade(symbol, notional); !allowed {
		log.Infof("%s 开仓被风控拒绝: %s", symbol, reason)
		return
	}

	callCtx, cancel = o.callTimeout(ctx)
	balance, err := o.balances.AvailableBalance(callCtx, o.cfg.QuoteCurrency)
	cancel()
	if err != nil {
		log.Warnf("获取账户余额失败: %v", err)
		return
	}

	qty := o.risk.PositionSize(balance, price, o.cfg.Risk.MaxPositionSize)
	if qty <= 0 {
		log.Warnf("%s 余额不足，无法开仓", symbol)
		return
	}

	stop := o.risk.StopLossPrice(price, side)
	target := o.risk.TakeProfitPrice(price, side)
	if !o.risk.IsRiskAcceptable(price, stop, target) {
		log.Infof("%s 收益/风险比不足，放弃开仓", symbol)
		return
	}

	callCtx, cancel = o.callTimeout(ctx)
	orderID, err := o.executor.SubmitMarketOrder(callCtx, symbol, side, qty)
	cancel()
	if err != nil {
		// 订单未成交时不登记任何状态
		log.Errorf("%s %s 下单失败: %v", symbol, side, err)
		return
	}

	pos := o.risk.RecordTrade(symbol, side, qty, price, stop, target, orderID)
	o.recordToJournal(pos, false)

	log.Infof("✅ %s %s 下单成功: 数量=%.6f 价格=%.4f 止损=%.4f 止盈=%.4f",
		symbol, side, qty, price, stop, target)
}

// CheckPositions 细周期巡检：对每个持仓取现价，触发止损/止盈则平仓
func (o *Orchestrator) CheckPositions(ctx context.Context) {
	active := o.risk.ActivePositions()
	if len(active) == 0 {
		return
	}

	symbols := make([]string, 0, len(active))
	for symbol := range active {
		symbols = append(symbols, symbol)
	}
	prices := o.fetchPrices(ctx, symbols)

	for _, trig := range o.risk.CheckStopLosses(prices) {
		o.closeTriggered(ctx, trig, domain.ExitReasonStopLoss)
	}
	for _, trig := range o.risk.CheckTakeProfits(prices) {
		o.closeTriggered(ctx, trig, domain.ExitReasonTakeProfit)
	}
}

// closeTriggered 对触发的仓位提交反向市价单，成交后才更新风控状态
func (o *Orchestrator) closeTriggered(ctx context.Context, trig risk.Trigger, reason domain.ExitReason) {
	side := trig.Position.Side.Opposite()

	callCtx, cancel := o.callTimeout(ctx)
	_, err := o.executor.SubmitMarketOrder(callCtx, trig.Symbol, side, trig.Position.Quantity)
	cancel()
	if err != nil {
		log.Errorf("%s 平仓单提交失败: %v", trig.Symbol, err)
		return
	}

	closed := o.risk.ClosePosition(trig.Symbol, trig.Price, reason)
	if closed == nil {
		return
	}
	o.recordToJournal(closed, true)

	o.mu.Lock()
	o.totalPnL += closed.PnL
	if closed.PnL > 0 {
		o.successfulTrades++
	}
	o.mu.Unlock()

	log.Infof("🏁 %s 已平仓 (%s) 盈亏=%.4f", trig.Symbol, reason, closed.PnL)
}

func (o *Orchestrator) recordToJournal(pos *domain.Position, closed bool) {
	if o.journal == nil || pos == nil {
		return
	}
	var err error
	if closed {
		err = o.journal.RecordClose(pos)
	} else {
		err = o.journal.RecordOpen(pos)
	}
	if err != nil {
		log.Warnf("写入交易流水失败: %v", err)
	}
}

// PerformanceStats 业绩统计。
// 胜率 = 盈利平仓数 ÷ 已平仓数 × 100；平均盈亏 = 总盈亏 ÷ 已平仓数。
func (o *Orchestrator) PerformanceStats() domain.PerformanceStats {
	summary := o.risk.PortfolioSummary()

	o.mu.Lock()
	defer o.mu.Unlock()

	stats := domain.PerformanceStats{
		TotalTrades:      summary.TotalTrades,
		ClosedTrades:     summary.ClosedTrades,
		SuccessfulTrades: o.successfulTrades,
		TotalPnL:         o.totalPnL,
	}
	if summary.ClosedTrades > 0 {
		stats.WinRate = float64(o.successfulTrades) / float64(summary.ClosedTrades) * 100
		stats.AveragePnL = o.totalPnL / float64(summary.ClosedTrades)
	}
	return stats
}

// PortfolioSummary 当前组合概览
func (o *Orchestrator) PortfolioSummary() domain.PortfolioSummary {
	return o.risk.PortfolioSummary()
}

// ActivePositions 当前持仓
func (o *Orchestrator) ActivePositions() map[string]*domain.Position {
	return o.risk.ActivePositions()
}

// RecentTrades 最近交易记录
func (o *Orchestrator) RecentTrades(limit int) []*domain.Position {
	return o.risk.RecentTrades(limit)
}

// LastAnalysis 各交易对最近一次的分析结果
func (o *Orchestrator) LastAnalysis() map[string]Analysis {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]Analysis, len(o.lastAnalysis))
	for symbol, a := range o.lastAnalysis {
		out[symbol] = a
	}
	return out
}

// CheckConnectivity 启动前的连通性自检
func (o *Orchestrator) CheckConnectivity(ctx context.Context) error {
	checker, ok := o.market.(ports.ConnectivityChecker)
	if !ok {
		return nil
	}
	callCtx, cancel := o.callTimeout(ctx)
	defer cancel()
	return checker.CheckConnectivity(callCtx)
}

// logPortfolioSummary 周期结束时打印组合概览
func (o *Orchestrator) logPortfolioSummary() {
	summary := o.risk.PortfolioSummary()
	log.Infof("=== 组合概览 ===")
	log.Infof("总盈亏: %.2f | 持仓: %d | 总交易: %d | 当日交易: %d | 当日亏损: %.2f",
		summary.TotalPnL, summary.OpenPositions, summary.TotalTrades,
		summary.DailyTrades, summary.DailyLoss)
}
