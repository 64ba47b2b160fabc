package trader

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/swingbot/goswing/pkg/config"
)

// State 调度器状态
type State int32

const (
	StateStopped  State = iota // 未运行
	StateStarting              // 启动校验中
	StateRunning               // 运行中
	StateStopping              // 停止中
	StateError                 // 启动失败，终态
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "STOPPED"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Scheduler 双节奏调度器：
// 粗周期跑完整交易分析，细周期只巡检持仓的止损止盈。
// 状态机 STOPPED → STARTING → RUNNING → STOPPING → STOPPED，
// 启动校验失败进入终态 ERROR。
type Scheduler struct {
	cfg  *config.Config
	orch *Orchestrator

	state atomic.Int32

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler 创建调度器
func NewScheduler(cfg *config.Config, orch *Orchestrator) *Scheduler {
	return &Scheduler{cfg: cfg, orch: orch}
}

// State 当前状态
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Start 校验配置和连通性后进入运行循环。
// 任一校验失败则进入 ERROR 终态并返回错误，不会启动循环。
// 启动后立即执行一次完整交易周期。
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateStopped), int32(StateStarting)) {
		return errors.Errorf("调度器当前状态为 %s，无法启动", s.State())
	}

	// 校验期间 Stop 可能把状态切回 STOPPED，失败路径只允许 STARTING→ERROR
	if err := s.cfg.Validate(); err != nil {
		s.state.CompareAndSwap(int32(StateStarting), int32(StateError))
		return errors.Wrap(err, "配置校验失败")
	}
	if err := s.orch.CheckConnectivity(ctx); err != nil {
		s.state.CompareAndSwap(int32(StateStarting), int32(StateError))
		return errors.Wrap(err, "连通性检查失败")
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	// Stop 在校验期间抢先把状态切回 STOPPED 时放弃启动，不进入运行循环
	if !s.state.CompareAndSwap(int32(StateStarting), int32(StateRunning)) {
		cancel()
		s.mu.Lock()
		s.cancel = nil
		s.done = nil
		s.mu.Unlock()
		return errors.New("调度器在启动期间被停止")
	}

	log.Infof("🚀 调度器已启动 (分析周期 %s / 巡检周期 %s)",
		s.cfg.Trading.AnalyzeInterval.Duration, s.cfg.Trading.MonitorInterval.Duration)

	go s.run(runCtx, done)
	return nil
}

// run 两个节奏各自独立计时，互不阻塞。
// 状态安全由 RiskManager 的互斥锁保证。
func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	var wg sync.WaitGroup
	wg.Add(2)

	// 粗周期：启动时立刻跑一次
	go func() {
		defer wg.Done()
		s.orch.RunCycle(ctx)

		ticker := time.NewTicker(s.cfg.Trading.AnalyzeInterval.Duration)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.orch.RunCycle(ctx)
			}
		}
	}()

	// 细周期：只巡检持仓
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(s.cfg.Trading.MonitorInterval.Duration)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.orch.CheckPositions(ctx)
			}
		}
	}()

	wg.Wait()
	close(done)
}

// Stop 停止调度器并等待循环退出。
// 任何时刻调用都是安全的：未启动时是 no-op，可以从任意 goroutine 调用。
func (s *Scheduler) Stop() {
	// STARTING 阶段竞争到的停止请求直接回到 STOPPED
	if s.state.CompareAndSwap(int32(StateStarting), int32(StateStopped)) {
		return
	}
	if !s.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		return
	}

	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	s.state.Store(int32(StateStopped))
	log.Infof("🛑 调度器已停止")
}
