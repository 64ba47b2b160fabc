package domain

// SignalDirection 信号方向
type SignalDirection string

const (
	SignalBuy  SignalDirection = "BUY"  // 买入
	SignalSell SignalDirection = "SELL" // 卖出
	SignalHold SignalDirection = "HOLD" // 观望
)

// SignalStrength 信号强度
type SignalStrength string

const (
	StrengthWeak     SignalStrength = "WEAK"     // 弱（HOLD 固定为弱）
	StrengthModerate SignalStrength = "MODERATE" // 中等
	StrengthStrong   SignalStrength = "STRONG"   // 强（量能确认）
)

// Signal 信号引擎的输出。
// 每个周期、每个交易对重新计算，不做持久化。
type Signal struct {
	Direction SignalDirection   // 最终方向
	Strength  SignalStrength    // 强度
	Reasons   []string          // 触发原因（按投票顺序）
	Votes     []SignalDirection // 原始投票列表（用于审计/日志）
}

// IsActionable 信号是否可执行：方向为 BUY/SELL 且强度达到 MODERATE 以上。
func (s Signal) IsActionable() bool {
	if s.Direction != SignalBuy && s.Direction != SignalSell {
		return false
	}
	return s.Strength == StrengthModerate || s.Strength == StrengthStrong
}
