package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/swingbot/goswing/internal/dashboard"
	"github.com/swingbot/goswing/internal/indicator"
	"github.com/swingbot/goswing/internal/journal"
	"github.com/swingbot/goswing/internal/kraken"
	"github.com/swingbot/goswing/internal/ports"
	"github.com/swingbot/goswing/internal/risk"
	signalengine "github.com/swingbot/goswing/internal/signal"
	"github.com/swingbot/goswing/internal/trader"
	"github.com/swingbot/goswing/pkg/config"
	"github.com/swingbot/goswing/pkg/logger"
	"github.com/swingbot/goswing/pkg/shutdown"
)

// gracefulShutdownPeriod 优雅关闭的最长等待时间
const gracefulShutdownPeriod = 30 * time.Second

func main() {
	configPath := flag.String("config", "", "配置文件路径（支持 .yaml, .yml, .json）")
	testConn := flag.Bool("test", false, "只测试交易所连通性后退出")
	showBalance := flag.Bool("balance", false, "只打印账户余额后退出")
	dryRun := flag.Bool("dry-run", false, "纸交易模式：不提交真实订单")
	flag.Parse()

	// .env 不存在不算错误
	_ = godotenv.Load()

	// -dry-run 优先于配置文件和环境变量
	if *dryRun {
		os.Setenv("DRY_RUN", "true")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.LogLevel,
		OutputFile: cfg.LogFile,
		MaxSize:    cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAge:     cfg.LogMaxAgeDays,
		Compress:   true,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	logrus.Infof("swingbot 启动，交易对: %v dry_run=%v", cfg.Pairs, cfg.DryRun)

	client := kraken.NewClient(cfg.Kraken, cfg.Trading.RequestTimeout.Duration)

	// 快捷子命令：连通性测试 / 余额查询
	if *testConn {
		runConnectivityTest(client, cfg)
		return
	}
	if *showBalance {
		runBalanceQuery(client, cfg)
		return
	}

	shutdownMgr := shutdown.NewManager()
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// WebSocket 行情缓存（可选）
	var feed *kraken.TickerFeed
	if cfg.Kraken.WSURL != "" {
		feed = kraken.NewTickerFeed(cfg.Kraken.WSURL, cfg.Pairs)
		go feed.Run(rootCtx)
	}

	params := indicator.Params{
		RSIPeriod:       cfg.Indicators.RSIPeriod,
		RSIOverbought:   cfg.Indicators.RSIOverbought,
		RSIOversold:     cfg.Indicators.RSIOversold,
		MACDFast:        cfg.Indicators.MACDFast,
		MACDSlow:        cfg.Indicators.MACDSlow,
		MACDSignal:      cfg.Indicators.MACDSignal,
		BollingerPeriod: cfg.Indicators.BollingerPeriod,
		BollingerStd:    cfg.Indicators.BollingerStd,
	}
	marketData := kraken.NewMarketData(client, feed, params, cfg.Trading.CandleInterval)

	var executor ports.OrderExecutor
	var balances ports.BalanceSource
	if cfg.DryRun {
		logrus.Infof("⚠️ 纸交易模式：订单只打日志，余额使用投资额")
		executor = kraken.NewDryRunExecutor()
		balances = staticBalance{amount: cfg.InvestmentAmount}
	} else {
		executor = kraken.NewExecutor(client)
		balances = kraken.NewBalances(client)
	}

	// 交易流水（可选）
	var tradeJournal trader.Journal
	if cfg.JournalPath != "" {
		j, err := journal.Open(cfg.JournalPath)
		if err != nil {
			logrus.Errorf("打开交易流水失败: %v", err)
			os.Exit(1)
		}
		tradeJournal = j
		shutdownMgr.OnShutdown(func(context.Context) {
			if err := j.Close(); err != nil {
				logrus.Warnf("关闭交易流水失败: %v", err)
			}
		})
	}

	riskMgr := risk.NewManager(cfg.Risk, cfg.InvestmentAmount)
	orch := trader.NewOrchestrator(cfg, riskMgr, signalengine.NewEngine(), marketData, executor, balances, tradeJournal)
	sched := trader.NewScheduler(cfg, orch)

	if err := sched.Start(rootCtx); err != nil {
		logrus.Errorf("调度器启动失败: %v", err)
		os.Exit(1)
	}
	shutdownMgr.OnShutdown(func(context.Context) {
		sched.Stop()
	})

	// 监控 API（可选）
	if cfg.DashboardListen != "" {
		server := dashboard.New(cfg.DashboardListen, orch, sched)
		go func() {
			if err := server.Run(); err != nil {
				logrus.Errorf("监控服务异常退出: %v", err)
			}
		}()
		shutdownMgr.OnShutdown(func(ctx context.Context) {
			if err := server.Shutdown(ctx); err != nil {
				logrus.Warnf("监控服务关闭失败: %v", err)
			}
		})
	}

	// 等待退出信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	logrus.Infof("收到信号 %v，开始关闭", sig)

	rootCancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), gracefulShutdownPeriod)
	defer shutdownCancel()
	shutdownMgr.Shutdown(shutdownCtx)

	logrus.Infof("swingbot 已退出")
}

// staticBalance 纸交易模式下的固定余额
type staticBalance struct {
	amount float64
}

func (s staticBalance) AvailableBalance(context.Context, string) (float64, error) {
	return s.amount, nil
}

// runConnectivityTest 测试 REST API 可达性
func runConnectivityTest(client *kraken.Client, cfg *config.Config) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Trading.RequestTimeout.Duration)
	defer cancel()

	serverTime, err := client.ServerTime(ctx)
	if err != nil {
		logrus.Errorf("连通性测试失败: %v", err)
		os.Exit(1)
	}
	logrus.Infof("✅ 连通性正常，服务器时间: %s", serverTime.Format(time.RFC3339))
}

// runBalanceQuery 打印账户所有非零余额
func runBalanceQuery(client *kraken.Client, cfg *config.Config) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Trading.RequestTimeout.Duration)
	defer cancel()

	balances, err := client.Balance(ctx)
	if err != nil {
		logrus.Errorf("查询余额失败: %v", err)
		os.Exit(1)
	}
	if len(balances) == 0 {
		logrus.Infof("账户无余额")
		return
	}
	for asset, amount := range balances {
		logrus.Infof("%s: %.8f", asset, amount)
	}
}
