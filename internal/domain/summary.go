package domain

// PortfolioSummary 组合概览（RiskManager 的只读聚合结果）
type PortfolioSummary struct {
	TotalPnL      float64  `json:"total_pnl"`       // 已实现总盈亏
	OpenPositions int      `json:"open_positions"`  // 持仓数量
	TotalTrades   int      `json:"total_trades"`    // 历史交易总数
	ClosedTrades  int      `json:"closed_trades"`   // 已平仓数量
	DailyTrades   int      `json:"daily_trades"`    // 当日交易数
	DailyLoss     float64  `json:"daily_loss"`      // 当日累计亏损（正数）
	ActiveSymbols []string `json:"active_symbols"`  // 持仓中的交易对
}

// PerformanceStats 业绩统计（Orchestrator 维护）
type PerformanceStats struct {
	TotalTrades      int     `json:"total_trades"`      // 交易总数
	ClosedTrades     int     `json:"closed_trades"`     // 已平仓数量
	SuccessfulTrades int     `json:"successful_trades"` // 盈利平仓数量
	WinRate          float64 `json:"win_rate"`          // 胜率（%）
	TotalPnL         float64 `json:"total_pnl"`         // 总盈亏
	AveragePnL       float64 `json:"average_pnl"`       // 平均每笔盈亏
}
