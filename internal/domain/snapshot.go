package domain

import "time"

// MinSignalHistory 信号生成所需的最少周期数。
// 历史不足时引擎必须返回 HOLD/WEAK（"insufficient data"），而不是报错。
const MinSignalHistory = 50

// IndicatorSnapshot 单个周期的指标快照。
// 由行情适配层从 K 线历史计算得出，信号引擎只读取数值，不关心计算过程。
type IndicatorSnapshot struct {
	Time time.Time // 周期时间

	Close float64 // 收盘价

	// 震荡指标（RSI）
	RSI           float64 // 当前 RSI 值
	RSIOverbought float64 // 超买阈值（默认 70）
	RSIOversold   float64 // 超卖阈值（默认 30）

	// 趋势指标（MACD）
	MACD       float64 // 快慢线差值（DIF）
	MACDSignal float64 // 信号线（DEA）
	MACDDiff   float64 // MACD - Signal（柱）

	// 波动带（Bollinger）
	BBUpper  float64 // 上轨
	BBMiddle float64 // 中轨
	BBLower  float64 // 下轨

	// 均线
	SMA20 float64 // 短期均线
	SMA50 float64 // 长期均线

	// 随机指标
	StochK float64 // %K
	StochD float64 // %D

	// 量能：当前成交量 / 20 周期均量
	VolumeRatio float64
}
