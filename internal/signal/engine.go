// Package signal 波段交易信号引擎。
// 基于多指标投票：每个指标独立投 BUY/SELL 票，
// 得票严格多数且不少于 2 票才产生方向信号，否则 HOLD。
package signal

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/swingbot/goswing/internal/domain"
)

var log = logrus.WithField("module", "signal")

// TrendPeriod 趋势强度回归的默认周期
const TrendPeriod = 20

// Engine 信号引擎。无内部状态，可安全并发使用。
type Engine struct{}

// NewEngine 创建信号引擎
func NewEngine() *Engine {
	return &Engine{}
}

// Generate 从指标快照序列生成交易信号。
// history 按时间升序，只读取最后两个周期。
// 历史不足 50 个周期时返回 HOLD/WEAK（不报错）。
func (e *Engine) Generate(history []domain.IndicatorSnapshot) domain.Signal {
	if len(history) < domain.MinSignalHistory {
		return domain.Signal{
			Direction: domain.SignalHold,
			Strength:  domain.StrengthWeak,
			Reasons:   []string{"insufficient data"},
		}
	}

	latest := history[len(history)-1]
	prev := history[len(history)-2]

	var votes []domain.SignalDirection
	var reasons []string

	vote := func(dir domain.SignalDirection, reason string) {
		votes = append(votes, dir)
		reasons = append(reasons, reason)
	}

	// RSI 超买超卖
	if latest.RSI < latest.RSIOversold {
		vote(domain.SignalBuy, fmt.Sprintf("RSI oversold (%.2f)", latest.RSI))
	} else if latest.RSI > latest.RSIOverbought {
		vote(domain.SignalSell, fmt.Sprintf("RSI overbought (%.2f)", latest.RSI))
	}

	// MACD 金叉/死叉：只在本周期发生交叉时投票
	if latest.MACD > latest.MACDSignal && prev.MACD <= prev.MACDSignal {
		vote(domain.SignalBuy, "MACD bullish crossover")
	} else if latest.MACD < latest.MACDSignal && prev.MACD >= prev.MACDSignal {
		vote(domain.SignalSell, "MACD bearish crossover")
	}

	// 布林带突破
	if latest.Close < latest.BBLower {
		vote(domain.SignalBuy, "price below lower Bollinger Band")
	} else if latest.Close > latest.BBUpper {
		vote(domain.SignalSell, "price above upper Bollinger Band")
	}

	// 均线多头/空头排列
	if latest.Close > latest.SMA20 && latest.SMA20 > latest.SMA50 {
		vote(domain.SignalBuy, "price above moving averages (bullish trend)")
	} else if latest.Close < latest.SMA20 && latest.SMA20 < latest.SMA50 {
		vote(domain.SignalSell, "price below moving averages (bearish trend)")
	}

	// 随机指标双线超买超卖
	if latest.StochK < 20 && latest.StochD < 20 {
		vote(domain.SignalBuy, "stochastic oversold")
	} else if latest.StochK > 80 && latest.StochD > 80 {
		vote(domain.SignalSell, "stochastic overbought")
	}

	buyVotes, sellVotes := 0, 0
	for _, v := range votes {
		switch v {
		case domain.SignalBuy:
			buyVotes++
		case domain.SignalSell:
			sellVotes++
		}
	}

	// 量能确认：量比大于 1.5 时信号升级为 STRONG
	strength := domain.StrengthModerate
	if latest.VolumeRatio > 1.5 {
		strength = domain.StrengthStrong
	}

	// 严格多数且至少 2 票，否则保守 HOLD
	switch {
	case buyVotes > sellVotes && buyVotes >= 2:
		log.Debugf("BUY 信号: %d 票买 / %d 票卖", buyVotes, sellVotes)
		return domain.Signal{Direction: domain.SignalBuy, Strength: strength, Reasons: reasons, Votes: votes}
	case sellVotes > buyVotes && sellVotes >= 2:
		log.Debugf("SELL 信号: %d 票买 / %d 票卖", buyVotes, sellVotes)
		return domain.Signal{Direction: domain.SignalSell, Strength: strength, Reasons: reasons, Votes: votes}
	default:
		return domain.Signal{
			Direction: domain.SignalHold,
			Strength:  domain.StrengthWeak,
			Reasons:   []string{"mixed or weak signals"},
			Votes:     votes,
		}
	}
}

// IsTrendStrong 趋势强度门控。
// 对最近 period 个收盘价做线性回归，
// |斜率| > 0.001 且 R² > 0.7 视为趋势成立。
// 非 HOLD 信号只有在该门控通过时才允许下单。
func (e *Engine) IsTrendStrong(history []domain.IndicatorSnapshot, period int) bool {
	if period <= 1 || len(history) < period {
		return false
	}

	closes := history[len(history)-period:]
	n := float64(period)

	// 最小二乘回归：x = 0..period-1, y = close
	var sumX, sumY, sumXY, sumXX, sumYY float64
	for i, snap := range closes {
		x := float64(i)
		y := snap.Close
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
		sumYY += y * y
	}

	denomX := n*sumXX - sumX*sumX
	if denomX == 0 {
		return false
	}
	slope := (n*sumXY - sumX*sumY) / denomX

	denomY := n*sumYY - sumY*sumY
	if denomY <= 0 {
		// 收盘价完全无波动，没有趋势可言
		return false
	}
	r := (n*sumXY - sumX*sumY) / math.Sqrt(denomX*denomY)
	rSquared := r * r

	return math.Abs(slope) > 0.001 && rSquared > 0.7
}
