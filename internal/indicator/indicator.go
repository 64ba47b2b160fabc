// Package indicator 从 K 线序列计算技术指标。
// 所有计算都是纯函数，不依赖外部状态，输出按时间升序排列。
package indicator

import (
	"math"

	"github.com/swingbot/goswing/internal/domain"
)

// Params 指标计算参数（通常来自配置）
type Params struct {
	RSIPeriod       int
	RSIOverbought   float64
	RSIOversold     float64
	MACDFast        int
	MACDSlow        int
	MACDSignal      int
	BollingerPeriod int
	BollingerStd    float64
	StochKPeriod    int // 默认 14
	StochDPeriod    int // 默认 3
	VolumePeriod    int // 均量周期，默认 20
}

// DefaultParams 返回默认指标参数
func DefaultParams() Params {
	return Params{
		RSIPeriod:       14,
		RSIOverbought:   70,
		RSIOversold:     30,
		MACDFast:        12,
		MACDSlow:        26,
		MACDSignal:      9,
		BollingerPeriod: 20,
		BollingerStd:    2,
		StochKPeriod:    14,
		StochDPeriod:    3,
		VolumePeriod:    20,
	}
}

func (p Params) normalized() Params {
	if p.StochKPeriod <= 0 {
		p.StochKPeriod = 14
	}
	if p.StochDPeriod <= 0 {
		p.StochDPeriod = 3
	}
	if p.VolumePeriod <= 0 {
		p.VolumePeriod = 20
	}
	return p
}

// Compute 对整条 K 线序列计算指标快照。
// 暖机期内（数据不足以计算某个指标时）对应字段为 NaN，
// 信号引擎只会读取序列尾部，此时所有指标都已就绪。
func Compute(candles []domain.Candle, params Params) []domain.IndicatorSnapshot {
	params = params.normalized()
	n := len(candles)
	if n == 0 {
		return nil
	}

	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	volumes := make([]float64, n)
	for i, c := range candles {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
		volumes[i] = c.Volume
	}

	rsi := RSI(closes, params.RSIPeriod)
	macd, macdSignal, macdDiff := MACD(closes, params.MACDFast, params.MACDSlow, params.MACDSignal)
	bbUpper, bbMiddle, bbLower := Bollinger(closes, params.BollingerPeriod, params.BollingerStd)
	sma20 := SMA(closes, 20)
	sma50 := SMA(closes, 50)
	stochK, stochD := Stochastic(highs, lows, closes, params.StochKPeriod, params.StochDPeriod)
	volumeSMA := SMA(volumes, params.VolumePeriod)

	out := make([]domain.IndicatorSnapshot, n)
	for i := range candles {
		volumeRatio := math.NaN()
		if !math.IsNaN(volumeSMA[i]) && volumeSMA[i] > 0 {
			volumeRatio = volumes[i] / volumeSMA[i]
		}
		out[i] = domain.IndicatorSnapshot{
			Time:          candles[i].Time,
			Close:         closes[i],
			RSI:           rsi[i],
			RSIOverbought: params.RSIOverbought,
			RSIOversold:   params.RSIOversold,
			MACD:          macd[i],
			MACDSignal:    macdSignal[i],
			MACDDiff:      macdDiff[i],
			BBUpper:       bbUpper[i],
			BBMiddle:      bbMiddle[i],
			BBLower:       bbLower[i],
			SMA20:         sma20[i],
			SMA50:         sma50[i],
			StochK:        stochK[i],
			StochD:        stochD[i],
			VolumeRatio:   volumeRatio,
		}
	}
	return out
}

// SMA 简单移动平均，前 period-1 个值为 NaN
func SMA(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 || len(values) < period {
		return out
	}
	var sum float64
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMA 指数移动平均。
// 用前 period 个值的 SMA 作为种子，之后按 k = 2/(period+1) 递推。
func EMA(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 || len(values) < period {
		return out
	}
	var sum float64
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	prev := sum / float64(period)
	out[period-1] = prev

	k := 2.0 / float64(period+1)
	for i := period; i < len(values); i++ {
		prev = (values[i]-prev)*k + prev
		out[i] = prev
	}
	return out
}

// RSI 相对强弱指标（Wilder 平滑）
func RSI(closes []float64, period int) []float64 {
	out := nanSlice(len(closes))
	if period <= 0 || len(closes) <= period {
		return out
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// MACD 返回 DIF、DEA（信号线）和两者的差值
func MACD(closes []float64, fast, slow, signal int) (macd, signalLine, diff []float64) {
	n := len(closes)
	macd = nanSlice(n)
	signalLine = nanSlice(n)
	diff = nanSlice(n)

	emaFast := EMA(closes, fast)
	emaSlow := EMA(closes, slow)
	for i := 0; i < n; i++ {
		if !math.IsNaN(emaFast[i]) && !math.IsNaN(emaSlow[i]) {
			macd[i] = emaFast[i] - emaSlow[i]
		}
	}

	// 信号线是 DIF 的 EMA，从首个有效 DIF 开始计算
	start := firstValid(macd)
	if start < 0 || n-start < signal {
		return macd, signalLine, diff
	}
	sub := EMA(macd[start:], signal)
	for i, v := range sub {
		signalLine[start+i] = v
	}
	for i := 0; i < n; i++ {
		if !math.IsNaN(macd[i]) && !math.IsNaN(signalLine[i]) {
			diff[i] = macd[i] - signalLine[i]
		}
	}
	return macd, signalLine, diff
}

// Bollinger 布林带：中轨为 SMA，上下轨为中轨 ± std 倍总体标准差
func Bollinger(closes []float64, period int, std float64) (upper, middle, lower []float64) {
	n := len(closes)
	upper = nanSlice(n)
	lower = nanSlice(n)
	middle = SMA(closes, period)
	if period <= 0 || n < period {
		return upper, middle, lower
	}
	for i := period - 1; i < n; i++ {
		mean := middle[i]
		var variance float64
		for j := i - period + 1; j <= i; j++ {
			d := closes[j] - mean
			variance += d * d
		}
		sd := math.Sqrt(variance / float64(period))
		upper[i] = mean + std*sd
		lower[i] = mean - std*sd
	}
	return upper, middle, lower
}

// Stochastic 随机指标：%K 为原始值，%D 为 %K 的 dPeriod 周期 SMA
func Stochastic(highs, lows, closes []float64, kPeriod, dPeriod int) (stochK, stochD []float64) {
	n := len(closes)
	stochK = nanSlice(n)
	stochD = nanSlice(n)
	if kPeriod <= 0 || n < kPeriod {
		return stochK, stochD
	}
	for i := kPeriod - 1; i < n; i++ {
		hi, lo := highs[i], lows[i]
		for j := i - kPeriod + 1; j <= i; j++ {
			if highs[j] > hi {
				hi = highs[j]
			}
			if lows[j] < lo {
				lo = lows[j]
			}
		}
		if hi == lo {
			stochK[i] = 50 // 区间内价格无波动
		} else {
			stochK[i] = (closes[i] - lo) / (hi - lo) * 100
		}
	}
	start := firstValid(stochK)
	if start < 0 || n-start < dPeriod {
		return stochK, stochD
	}
	sub := SMA(stochK[start:], dPeriod)
	for i, v := range sub {
		stochD[start+i] = v
	}
	return stochK, stochD
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func firstValid(values []float64) int {
	for i, v := range values {
		if !math.IsNaN(v) {
			return i
		}
	}
	return -1
}
