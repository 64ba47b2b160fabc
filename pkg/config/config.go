package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/swingbot/goswing/internal/common"
)

// MinRiskReward 最低可接受的收益/风险比，固定 2:1。
const MinRiskReward = 2.0

// KrakenConfig 交易所接入配置。
// 密钥只从环境变量读取，不写入配置文件。
type KrakenConfig struct {
	APIKey    string // KRAKEN_API_KEY
	SecretKey string // KRAKEN_SECRET_KEY
	RESTURL   string // REST API 地址
	WSURL     string // 公共 WebSocket 地址（为空则禁用 WS 行情）
}

// RiskConfig 风控预算（每次运行期间不可变）
type RiskConfig struct {
	MaxPositionSize    float64         // 单仓位占投资额的最大比例（0.1 = 10%）
	StopLossPct        float64         // 止损百分比（5 表示 5%）
	TakeProfitPct      float64         // 止盈百分比（15 表示 15%）
	MaxDailyTrades     int             // 每日最大交易次数
	MaxDailyLoss       float64         // 每日最大亏损（报价货币）
	Cooldown           common.Duration // 两次开仓之间的冷却时间
}

// IndicatorConfig 技术指标参数
type IndicatorConfig struct {
	RSIPeriod       int     // RSI 周期（默认 14）
	RSIOverbought   float64 // 超买阈值（默认 70）
	RSIOversold     float64 // 超卖阈值（默认 30）
	MACDFast        int     // MACD 快线（默认 12）
	MACDSlow        int     // MACD 慢线（默认 26）
	MACDSignal      int     // MACD 信号线（默认 9）
	BollingerPeriod int     // 布林带周期（默认 20）
	BollingerStd    float64 // 布林带标准差倍数（默认 2）
}

// TradingConfig 调度与行情参数
type TradingConfig struct {
	AnalyzeInterval common.Duration // 完整分析周期（默认 1h）
	MonitorInterval common.Duration // 持仓巡检周期（默认 5m）
	RequestTimeout  common.Duration // 单次外部调用超时（默认 15s）
	CandleInterval  int             // K 线周期（分钟，默认 60）
	HistoryLimit    int             // 拉取的 K 线数量（默认 100）
}

// Config 应用配置
type Config struct {
	Pairs            []string // 交易对列表，例如 ["ETH/USD"]
	QuoteCurrency    string   // 报价货币余额键（Kraken 记法，默认 ZUSD）
	InvestmentAmount float64  // 总投资额（报价货币）

	Risk       RiskConfig
	Indicators IndicatorConfig
	Trading    TradingConfig
	Kraken     KrakenConfig

	DryRun          bool   // 纸交易模式：不发真实订单，只打日志
	JournalPath     string // 交易日志 SQLite 文件路径（为空则禁用）
	DashboardListen string // 监控 HTTP 服务监听地址（为空则禁用）

	LogLevel      string // 日志级别
	LogFile       string // 日志文件路径
	LogMaxSizeMB  int    // 日志轮转：单文件上限（MB）
	LogMaxBackups int    // 日志轮转：保留文件数
	LogMaxAgeDays int    // 日志轮转：保留天数
}

// ConfigFile 配置文件结构（用于 YAML/JSON 解析）
type ConfigFile struct {
	Pairs            []string `yaml:"pairs" json:"pairs"`
	QuoteCurrency    string   `yaml:"quote_currency" json:"quote_currency"`
	InvestmentAmount float64  `yaml:"investment_amount" json:"investment_amount"`

	Risk struct {
		MaxPositionSize float64         `yaml:"max_position_size" json:"max_position_size"`
		StopLossPct     float64         `yaml:"stop_loss_percentage" json:"stop_loss_percentage"`
		TakeProfitPct   float64         `yaml:"take_profit_percentage" json:"take_profit_percentage"`
		MaxDailyTrades  int             `yaml:"max_daily_trades" json:"max_daily_trades"`
		MaxDailyLoss    float64         `yaml:"max_daily_loss" json:"max_daily_loss"`
		Cooldown        common.Duration `yaml:"cooldown" json:"cooldown"`
	} `yaml:"risk" json:"risk"`

	Indicators struct {
		RSIPeriod       int     `yaml:"rsi_period" json:"rsi_period"`
		RSIOverbought   float64 `yaml:"rsi_overbought" json:"rsi_overbought"`
		RSIOversold     float64 `yaml:"rsi_oversold" json:"rsi_oversold"`
		MACDFast        int     `yaml:"macd_fast" json:"macd_fast"`
		MACDSlow        int     `yaml:"macd_slow" json:"macd_slow"`
		MACDSignal      int     `yaml:"macd_signal" json:"macd_signal"`
		BollingerPeriod int     `yaml:"bollinger_period" json:"bollinger_period"`
		BollingerStd    float64 `yaml:"bollinger_std" json:"bollinger_std"`
	} `yaml:"indicators" json:"indicators"`

	Trading struct {
		AnalyzeInterval common.Duration `yaml:"analyze_interval" json:"analyze_interval"`
		MonitorInterval common.Duration `yaml:"monitor_interval" json:"monitor_interval"`
		RequestTimeout  common.Duration `yaml:"request_timeout" json:"request_timeout"`
		CandleInterval  int             `yaml:"candle_interval" json:"candle_interval"`
		HistoryLimit    int             `yaml:"history_limit" json:"history_limit"`
	} `yaml:"trading" json:"trading"`

	Kraken struct {
		RESTURL string `yaml:"rest_url" json:"rest_url"`
		WSURL   string `yaml:"ws_url" json:"ws_url"`
	} `yaml:"kraken" json:"kraken"`

	DryRun          *bool  `yaml:"dry_run" json:"dry_run"`
	JournalPath     string `yaml:"journal_path" json:"journal_path"`
	DashboardListen string `yaml:"dashboard_listen" json:"dashboard_listen"`

	LogLevel      string `yaml:"log_level" json:"log_level"`
	LogFile       string `yaml:"log_file" json:"log_file"`
	LogMaxSizeMB  int    `yaml:"log_max_size_mb" json:"log_max_size_mb"`
	LogMaxBackups int    `yaml:"log_max_backups" json:"log_max_backups"`
	LogMaxAgeDays int    `yaml:"log_max_age_days" json:"log_max_age_days"`
}

// Load 从指定文件加载配置（优先级：配置文件 > 环境变量 > 默认值）。
// filePath 为空时只使用环境变量和默认值。
func Load(filePath string) (*Config, error) {
	var cf *ConfigFile
	if filePath != "" {
		var err error
		cf, err = loadConfigFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("加载配置文件失败 %s: %w", filePath, err)
		}
	}

	cfg := &Config{
		Pairs:            pickPairs(cf),
		QuoteCurrency:    pickString(fileString(cf, func(f *ConfigFile) string { return f.QuoteCurrency }), getEnv("QUOTE_CURRENCY", "ZUSD")),
		InvestmentAmount: pickFloat(fileFloat(cf, func(f *ConfigFile) float64 { return f.InvestmentAmount }), parseFloatEnv("INVESTMENT_AMOUNT", 100)),

		Risk: RiskConfig{
			MaxPositionSize: pickFloat(fileFloat(cf, func(f *ConfigFile) float64 { return f.Risk.MaxPositionSize }), parseFloatEnv("MAX_POSITION_SIZE", 0.1)),
			StopLossPct:     pickFloat(fileFloat(cf, func(f *ConfigFile) float64 { return f.Risk.StopLossPct }), parseFloatEnv("STOP_LOSS_PERCENTAGE", 5)),
			TakeProfitPct:   pickFloat(fileFloat(cf, func(f *ConfigFile) float64 { return f.Risk.TakeProfitPct }), parseFloatEnv("TAKE_PROFIT_PERCENTAGE", 15)),
			MaxDailyTrades:  pickInt(fileInt(cf, func(f *ConfigFile) int { return f.Risk.MaxDailyTrades }), parseIntEnv("MAX_DAILY_TRADES", 10)),
			MaxDailyLoss:    pickFloat(fileFloat(cf, func(f *ConfigFile) float64 { return f.Risk.MaxDailyLoss }), parseFloatEnv("MAX_DAILY_LOSS", 50)),
			Cooldown:        pickDuration(fileDuration(cf, func(f *ConfigFile) common.Duration { return f.Risk.Cooldown }), parseDurationEnv("COOLDOWN_PERIOD", time.Hour)),
		},

		Indicators: IndicatorConfig{
			RSIPeriod:       pickInt(fileInt(cf, func(f *ConfigFile) int { return f.Indicators.RSIPeriod }), parseIntEnv("RSI_PERIOD", 14)),
			RSIOverbought:   pickFloat(fileFloat(cf, func(f *ConfigFile) float64 { return f.Indicators.RSIOverbought }), parseFloatEnv("RSI_OVERBOUGHT", 70)),
			RSIOversold:     pickFloat(fileFloat(cf, func(f *ConfigFile) float64 { return f.Indicators.RSIOversold }), parseFloatEnv("RSI_OVERSOLD", 30)),
			MACDFast:        pickInt(fileInt(cf, func(f *ConfigFile) int { return f.Indicators.MACDFast }), parseIntEnv("MACD_FAST", 12)),
			MACDSlow:        pickInt(fileInt(cf, func(f *ConfigFile) int { return f.Indicators.MACDSlow }), parseIntEnv("MACD_SLOW", 26)),
			MACDSignal:      pickInt(fileInt(cf, func(f *ConfigFile) int { return f.Indicators.MACDSignal }), parseIntEnv("MACD_SIGNAL", 9)),
			BollingerPeriod: pickInt(fileInt(cf, func(f *ConfigFile) int { return f.Indicators.BollingerPeriod }), parseIntEnv("BOLLINGER_PERIOD", 20)),
			BollingerStd:    pickFloat(fileFloat(cf, func(f *ConfigFile) float64 { return f.Indicators.BollingerStd }), parseFloatEnv("BOLLINGER_STD", 2)),
		},

		Trading: TradingConfig{
			AnalyzeInterval: pickDuration(fileDuration(cf, func(f *ConfigFile) common.Duration { return f.Trading.AnalyzeInterval }), parseDurationEnv("ANALYZE_INTERVAL", time.Hour)),
			MonitorInterval: pickDuration(fileDuration(cf, func(f *ConfigFile) common.Duration { return f.Trading.MonitorInterval }), parseDurationEnv("MONITOR_INTERVAL", 5*time.Minute)),
			RequestTimeout:  pickDuration(fileDuration(cf, func(f *ConfigFile) common.Duration { return f.Trading.RequestTimeout }), parseDurationEnv("REQUEST_TIMEOUT", 15*time.Second)),
			CandleInterval:  pickInt(fileInt(cf, func(f *ConfigFile) int { return f.Trading.CandleInterval }), parseIntEnv("CANDLE_INTERVAL", 60)),
			HistoryLimit:    pickInt(fileInt(cf, func(f *ConfigFile) int { return f.Trading.HistoryLimit }), parseIntEnv("HISTORY_LIMIT", 100)),
		},

		Kraken: KrakenConfig{
			APIKey:    os.Getenv("KRAKEN_API_KEY"),
			SecretKey: os.Getenv("KRAKEN_SECRET_KEY"),
			RESTURL:   pickString(fileString(cf, func(f *ConfigFile) string { return f.Kraken.RESTURL }), getEnv("KRAKEN_REST_URL", "https://api.kraken.com")),
			WSURL:     pickString(fileString(cf, func(f *ConfigFile) string { return f.Kraken.WSURL }), getEnv("KRAKEN_WS_URL", "wss://ws.kraken.com")),
		},

		DryRun:          pickBool(cf, parseBoolEnv("DRY_RUN", false)),
		JournalPath:     pickString(fileString(cf, func(f *ConfigFile) string { return f.JournalPath }), getEnv("JOURNAL_PATH", "data/trades.db")),
		DashboardListen: pickString(fileString(cf, func(f *ConfigFile) string { return f.DashboardListen }), getEnv("DASHBOARD_LISTEN", ":8080")),

		LogLevel:      pickString(fileString(cf, func(f *ConfigFile) string { return f.LogLevel }), getEnv("LOG_LEVEL", "info")),
		LogFile:       pickString(fileString(cf, func(f *ConfigFile) string { return f.LogFile }), getEnv("LOG_FILE", "logs/swingbot.log")),
		LogMaxSizeMB:  pickInt(fileInt(cf, func(f *ConfigFile) int { return f.LogMaxSizeMB }), parseIntEnv("LOG_MAX_SIZE_MB", 100)),
		LogMaxBackups: pickInt(fileInt(cf, func(f *ConfigFile) int { return f.LogMaxBackups }), parseIntEnv("LOG_MAX_BACKUPS", 3)),
		LogMaxAgeDays: pickInt(fileInt(cf, func(f *ConfigFile) int { return f.LogMaxAgeDays }), parseIntEnv("LOG_MAX_AGE_DAYS", 7)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}
	return cfg, nil
}

// Validate 验证配置
func (c *Config) Validate() error {
	if !c.DryRun {
		if c.Kraken.APIKey == "" || c.Kraken.SecretKey == "" {
			return fmt.Errorf("KRAKEN_API_KEY / KRAKEN_SECRET_KEY 未配置（或使用 dry_run 模式）")
		}
	}
	if len(c.Pairs) == 0 {
		return fmt.Errorf("至少需要配置一个交易对")
	}
	if c.InvestmentAmount <= 0 {
		return fmt.Errorf("INVESTMENT_AMOUNT 必须大于 0")
	}
	if c.Risk.MaxPositionSize <= 0 || c.Risk.MaxPositionSize > 1 {
		return fmt.Errorf("MAX_POSITION_SIZE 必须在 0 到 1 之间")
	}
	if c.Risk.StopLossPct <= 0 || c.Risk.TakeProfitPct <= 0 {
		return fmt.Errorf("止损/止盈百分比必须大于 0")
	}
	if c.Risk.MaxDailyTrades <= 0 {
		return fmt.Errorf("MAX_DAILY_TRADES 必须大于 0")
	}
	if c.Risk.MaxDailyLoss <= 0 {
		return fmt.Errorf("MAX_DAILY_LOSS 必须大于 0")
	}
	if c.Trading.AnalyzeInterval.Duration <= 0 || c.Trading.MonitorInterval.Duration <= 0 {
		return fmt.Errorf("analyze_interval / monitor_interval 必须大于 0")
	}
	if c.Trading.RequestTimeout.Duration <= 0 {
		return fmt.Errorf("request_timeout 必须大于 0")
	}
	if c.Trading.HistoryLimit < 50 {
		return fmt.Errorf("history_limit 不能小于 50（信号生成需要至少 50 个周期）")
	}
	return nil
}

// loadConfigFile 加载配置文件（支持 YAML 和 JSON）
func loadConfigFile(filePath string) (*ConfigFile, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cf ConfigFile
	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cf); err != nil {
			return nil, fmt.Errorf("解析 YAML 配置文件失败: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cf); err != nil {
			return nil, fmt.Errorf("解析 JSON 配置文件失败: %w", err)
		}
	default:
		return nil, fmt.Errorf("不支持的配置文件格式: %s (支持 .yaml, .yml, .json)", ext)
	}
	return &cf, nil
}

func pickPairs(cf *ConfigFile) []string {
	if cf != nil && len(cf.Pairs) > 0 {
		return cf.Pairs
	}
	return splitList(getEnv("TRADING_PAIRS", "KSM/USD,SUI/USD,DOT/USD,ETH/USD"))
}

// splitList 解析逗号分隔的列表
func splitList(str string) []string {
	parts := strings.Split(str, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func fileString(cf *ConfigFile, getter func(*ConfigFile) string) string {
	if cf == nil {
		return ""
	}
	return getter(cf)
}

func fileFloat(cf *ConfigFile, getter func(*ConfigFile) float64) float64 {
	if cf == nil {
		return 0
	}
	return getter(cf)
}

func fileInt(cf *ConfigFile, getter func(*ConfigFile) int) int {
	if cf == nil {
		return 0
	}
	return getter(cf)
}

func fileDuration(cf *ConfigFile, getter func(*ConfigFile) common.Duration) common.Duration {
	if cf == nil {
		return common.Duration{}
	}
	return getter(cf)
}

// pickString 优先取配置文件里的非空值
func pickString(fileValue, envValue string) string {
	if fileValue != "" {
		return fileValue
	}
	return envValue
}

func pickFloat(fileValue, envValue float64) float64 {
	if fileValue != 0 {
		return fileValue
	}
	return envValue
}

func pickInt(fileValue, envValue int) int {
	if fileValue != 0 {
		return fileValue
	}
	return envValue
}

func pickDuration(fileValue common.Duration, envValue time.Duration) common.Duration {
	if fileValue.Duration != 0 {
		return fileValue
	}
	return common.Duration{Duration: envValue}
}

// pickBool 布尔值：配置文件里显式写了才覆盖环境变量/默认值
func pickBool(cf *ConfigFile, envValue bool) bool {
	if cf != nil && cf.DryRun != nil {
		return *cf.DryRun
	}
	return envValue
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseIntEnv 解析整数环境变量
func parseIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// parseFloatEnv 解析浮点数环境变量
func parseFloatEnv(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// parseBoolEnv 解析布尔环境变量
func parseBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// parseDurationEnv 解析时长环境变量：支持 "1h" 写法，也支持纯秒数（兼容旧配置）
func parseDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
