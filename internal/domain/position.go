package domain

import "time"

// Side 交易方向
type Side string

const (
	SideBuy  Side = "BUY"  // 做多
	SideSell Side = "SELL" // 做空
)

// Opposite 返回平仓方向（多头用卖单平、空头用买单平）
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// PositionStatus 仓位状态
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "OPEN"   // 持仓中
	PositionStatusClosed PositionStatus = "CLOSED" // 已平仓
)

// ExitReason 平仓原因
type ExitReason string

const (
	ExitReasonStopLoss   ExitReason = "StopLoss"   // 止损触发
	ExitReasonTakeProfit ExitReason = "TakeProfit" // 止盈触发
	ExitReasonManual     ExitReason = "Manual"     // 手动平仓
)

// Position 仓位领域模型。
// 由 RiskManager 在订单确认成交后创建；平仓时一次性写入全部出场字段，
// 此后不再变更（CLOSED 仓位不可复改）。
type Position struct {
	Symbol     string    // 交易对，例如 ETH/USD
	Side       Side      // 方向：BUY=多，SELL=空
	Quantity   float64   // 数量
	EntryPrice float64   // 入场价格
	StopLoss   float64   // 止损价
	TakeProfit float64   // 止盈价
	OrderID    string    // 交易所订单 ID
	EntryTime  time.Time // 入场时间

	Status PositionStatus // 仓位状态

	// 平仓字段（仅 Status == CLOSED 时有效）
	ExitPrice  float64    // 出场价格
	ExitTime   time.Time  // 出场时间
	ExitReason ExitReason // 平仓原因
	PnL        float64    // 已实现盈亏（报价货币）
}

// IsOpen 检查仓位是否持仓中
func (p *Position) IsOpen() bool {
	return p.Status == PositionStatusOpen
}

// RealizedPnL 按出场价计算已实现盈亏。
// 多头：(exit-entry)*qty；空头：(entry-exit)*qty。
func (p *Position) RealizedPnL(exitPrice float64) float64 {
	if p.Side == SideBuy {
		return (exitPrice - p.EntryPrice) * p.Quantity
	}
	return (p.EntryPrice - exitPrice) * p.Quantity
}

// Clone 返回仓位副本（对外暴露时避免共享内部指针）
func (p *Position) Clone() *Position {
	cp := *p
	return &cp
}
