package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-resty/resty/v2"

	"github.com/swingbot/goswing/internal/domain"
	"github.com/swingbot/goswing/internal/trader"
)

// refreshInterval 数据刷新间隔
const refreshInterval = 2 * time.Second

var (
	// 样式定义
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	profitStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("2")) // 绿色

	lossStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1")) // 红色

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1")).
			Bold(true)
)

// apiClient 轮询 swingbot 的监控 API
type apiClient struct {
	client *resty.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		client: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(5 * time.Second),
	}
}

// snapshot 一次完整的数据拉取结果
type snapshot struct {
	State       string
	Portfolio   domain.PortfolioSummary
	Performance domain.PerformanceStats
	Positions   map[string]*domain.Position
	Trades      []*domain.Position
	Analysis    map[string]trader.Analysis
}

func (a *apiClient) fetch() (*snapshot, error) {
	var status struct {
		State    string                     `json:"state"`
		Analysis map[string]trader.Analysis `json:"analysis"`
	}
	if _, err := a.client.R().SetResult(&status).Get("/api/status"); err != nil {
		return nil, err
	}

	snap := &snapshot{State: status.State, Analysis: status.Analysis}
	if _, err := a.client.R().SetResult(&snap.Portfolio).Get("/api/portfolio"); err != nil {
		return nil, err
	}
	if _, err := a.client.R().SetResult(&snap.Performance).Get("/api/performance"); err != nil {
		return nil, err
	}
	if _, err := a.client.R().SetResult(&snap.Positions).Get("/api/positions"); err != nil {
		return nil, err
	}
	if _, err := a.client.R().SetResult(&snap.Trades).Get("/api/trades?limit=10"); err != nil {
		return nil, err
	}
	return snap, nil
}

func (a *apiClient) post(path string) error {
	_, err := a.client.R().Post(path)
	return err
}

// ---- bubbletea ----

type tickMsg time.Time

type dataMsg struct {
	snap *snapshot
	err  error
}

type model struct {
	api  *apiClient
	snap *snapshot
	err  error
}

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) fetchCmd() tea.Cmd {
	return func() tea.Msg {
		snap, err := m.api.fetch()
		return dataMsg{snap: snap, err: err}
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.fetchCmd(), tickCmd())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "s":
			// 启动调度器
			api := m.api
			return m, func() tea.Msg {
				_ = api.post("/api/start")
				snap, err := api.fetch()
				return dataMsg{snap: snap, err: err}
			}
		case "x":
			// 停止调度器
			api := m.api
			return m, func() tea.Msg {
				_ = api.post("/api/stop")
				snap, err := api.fetch()
				return dataMsg{snap: snap, err: err}
			}
		}

	case tickMsg:
		return m, tea.Batch(m.fetchCmd(), tickCmd())

	case dataMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.err = nil
			m.snap = msg.snap
		}
		return m, nil
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render(" SwingBot 监控面板 "))
	b.WriteString(dimStyle.Render("  [s]启动 [x]停止 [q]退出"))
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(errStyle.Render(fmt.Sprintf("连接失败: %v", m.err)))
		b.WriteString("\n")
		return b.String()
	}
	if m.snap == nil {
		b.WriteString(dimStyle.Render("加载中..."))
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(titleStyle.Render("状态: "))
	b.WriteString(m.snap.State)
	b.WriteString("\n\n")

	b.WriteString(borderStyle.Render(m.renderPortfolio()))
	b.WriteString("\n")
	b.WriteString(borderStyle.Render(m.renderPositions()))
	b.WriteString("\n")
	b.WriteString(borderStyle.Render(m.renderTrades()))
	b.WriteString("\n")

	return b.String()
}

func (m model) renderPortfolio() string {
	p := m.snap.Portfolio
	perf := m.snap.Performance

	var b strings.Builder
	b.WriteString(titleStyle.Render("组合概览"))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("总盈亏: %s  持仓: %d  总交易: %d  已平仓: %d\n",
		pnlText(p.TotalPnL), p.OpenPositions, p.TotalTrades, p.ClosedTrades))
	b.WriteString(fmt.Sprintf("当日交易: %d  当日亏损: %.2f\n", p.DailyTrades, p.DailyLoss))
	b.WriteString(fmt.Sprintf("胜率: %.1f%%  平均盈亏: %s", perf.WinRate, pnlText(perf.AveragePnL)))
	return b.String()
}

func (m model) renderPositions() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("当前持仓"))
	b.WriteString("\n")

	if len(m.snap.Positions) == 0 {
		b.WriteString(dimStyle.Render("无持仓"))
		return b.String()
	}

	symbols := make([]string, 0, len(m.snap.Positions))
	for symbol := range m.snap.Positions {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	for _, symbol := range symbols {
		pos := m.snap.Positions[symbol]
		b.WriteString(fmt.Sprintf("%-10s %-4s 数量=%.6f 入场=%.4f 止损=%.4f 止盈=%.4f\n",
			symbol, pos.Side, pos.Quantity, pos.EntryPrice, pos.StopLoss, pos.TakeProfit))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m model) renderTrades() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("最近交易"))
	b.WriteString("\n")

	if len(m.snap.Trades) == 0 {
		b.WriteString(dimStyle.Render("暂无交易"))
		return b.String()
	}

	for _, trade := range m.snap.Trades {
		line := fmt.Sprintf("%-10s %-4s %s", trade.Symbol, trade.Side, trade.Status)
		if trade.Status == domain.PositionStatusClosed {
			line += fmt.Sprintf("  %s (%s)", pnlText(trade.PnL), trade.ExitReason)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// pnlText 盈利绿色、亏损红色
func pnlText(pnl float64) string {
	text := fmt.Sprintf("%+.2f", pnl)
	if pnl < 0 {
		return lossStyle.Render(text)
	}
	return profitStyle.Render(text)
}

func main() {
	apiURL := flag.String("api", "http://127.0.0.1:8080", "swingbot 监控 API 地址")
	flag.Parse()

	m := model{api: newAPIClient(*apiURL)}
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "启动面板失败: %v\n", err)
		os.Exit(1)
	}
}
