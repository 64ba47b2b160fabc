package domain

import "time"

// Candle 单根 K 线（OHLCV）
type Candle struct {
	Time   time.Time // 周期开始时间
	Open   float64   // 开盘价
	High   float64   // 最高价
	Low    float64   // 最低价
	Close  float64   // 收盘价
	Volume float64   // 成交量
}
