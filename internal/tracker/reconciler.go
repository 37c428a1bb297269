package tracker

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/videre-project/Tracker-sub000/internal/client"
	"github.com/videre-project/Tracker-sub000/internal/config"
	"github.com/videre-project/Tracker-sub000/internal/logger"
	"github.com/videre-project/Tracker-sub000/internal/models"
)

// Entry 确认后的对局日志条目，由日志写入器持久化
type Entry struct {
	GameID    string
	Timestamp int64
	Kind      string
	Payload   models.JSONMap
}

// Sink 日志条目下游
type Sink interface {
	Append(e Entry) error
}

// pendingAction 尚未提交的动作事件
type pendingAction struct {
	ts      int64
	payload models.JSONMap
}

// Reconciler 动作对账器
//
// 客户端的事件通知顺序和提交顺序不一致：动作可能被之后到达的
// undo/cancel撤销。动作先进栈缓存，等到下一次提示推进（或对局
// 结束）再按入栈顺序提交，撤销在缓存上回放，下游只看到真正
// 发生过的动作。立即提交会把从未生效的动作写进日志。
//
// 其余事件类型（阶段、回合、区域、生命、文本、结果）没有撤销
// 歧义，到达即提交。
type Reconciler struct {
	gameID string
	cfg    config.TrackerConfig
	sink   Sink
	log    *zap.Logger

	mu        sync.Mutex
	stack     []pendingAction
	undos     []int64 // 栈上找不到目标动作的undo时间戳
	lastTS    int64   // 最近一次交互时间戳标记
	newAction chan struct{} // 有新动作到达时关闭并更换
	disposed  bool

	unsubscribe func()
	onFinished  func(gameID string)
}

// NewReconciler 创建对账器
func NewReconciler(gameID string, cfg config.TrackerConfig, sink Sink) *Reconciler {
	return &Reconciler{
		gameID:    gameID,
		cfg:       cfg,
		sink:      sink,
		log:       logger.GetModuleLogger("tracker").With(zap.String("game_id", gameID)),
		newAction: make(chan struct{}),
	}
}

// SetUnsubscribe 设置取消订阅回调，对局结束时调用
func (r *Reconciler) SetUnsubscribe(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unsubscribe = fn
}

// SetOnFinished 设置对局结束回调
func (r *Reconciler) SetOnFinished(fn func(gameID string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onFinished = fn
}

// HandleEvent 处理一条对局事件，在客户端的通知线程上被调用
func (r *Reconciler) HandleEvent(ev client.GameEvent) {
	switch ev.Kind {
	case client.GameActionPerformed:
		r.pushAction(ev)
	case client.GameActionUndone:
		r.handleUndo(ev)
	case client.GameActionCancelled:
		r.handleCancel(ev)
	case client.GamePromptChanged:
		r.handlePromptAdvance(ev.Timestamp)
	case client.GameStatusChanged:
		if ev.Finished {
			r.Finish()
		}
	case client.GameResultsChanged:
		payload := ev.Payload
		if payload == nil {
			payload = models.JSONMap{}
		}
		r.emit(Entry{
			GameID:    r.gameID,
			Timestamp: ev.Timestamp,
			Kind:      string(ev.Kind),
			Payload:   payload,
		})
	default:
		// 无撤销歧义的事件到达即提交
		r.emit(Entry{
			GameID:    r.gameID,
			Timestamp: ev.Timestamp,
			Kind:      string(ev.Kind),
			Payload:   ev.Payload,
		})
	}
}

// pushAction 动作进栈并推进时间戳标记
func (r *Reconciler) pushAction(ev client.GameEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return
	}
	r.stack = append(r.stack, pendingAction{ts: ev.Timestamp, payload: ev.Payload})
	r.lastTS = ev.Timestamp
	r.signalNewActionLocked()
}

// handleUndo 撤销栈顶动作
//
// 目标动作还在栈上时直接弹出；栈为空说明目标已经提交，undo
// 记入侧队列，由下一次提示推进消化。
func (r *Reconciler) handleUndo(ev client.GameEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return
	}
	if n := len(r.stack); n > 0 {
		r.stack = r.stack[:n-1]
	} else {
		r.undos = append(r.undos, ev.Timestamp)
	}
	r.lastTS = ev.Timestamp
	r.signalNewActionLocked()
}

// handleCancel 丢弃同一交互内全部未提交动作
func (r *Reconciler) handleCancel(ev client.GameEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return
	}
	kept := r.stack[:0]
	for _, pa := range r.stack {
		if pa.ts != ev.Timestamp {
			kept = append(kept, pa)
		}
	}
	r.stack = kept
	r.signalNewActionLocked()
}

// handlePromptAdvance 提示推进到时间戳T，提交T之前的动作
//
// 先有界等待吸收同一交互内仍在途的动作。这个等待对真实时间
// 天然存在竞态，是文档化的近似而非硬保证；超时可配置以便测试。
func (r *Reconciler) handlePromptAdvance(t int64) {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return
	}
	ch := r.newAction
	r.mu.Unlock()

	if r.cfg.AbsorbTimeout > 0 {
		select {
		case <-ch:
		case <-time.After(r.cfg.AbsorbTimeout):
		}
	}

	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return
	}

	// 已提交动作的迟到undo：消化一条并推进标记，本轮不提交
	if len(r.undos) > 0 && r.undos[0] >= r.lastTS {
		r.lastTS = r.undos[0]
		r.undos = r.undos[1:]
		r.mu.Unlock()
		return
	}

	var confirmed []pendingAction
	for n := len(r.stack); n > 0 && r.stack[n-1].ts < t; n = len(r.stack) {
		confirmed = append(confirmed, r.stack[n-1])
		r.stack = r.stack[:n-1]
	}
	r.mu.Unlock()

	// 弹出序反转回入栈序提交，时间戳相同保持FIFO
	for i := len(confirmed) - 1; i >= 0; i-- {
		r.emit(Entry{
			GameID:    r.gameID,
			Timestamp: confirmed[i].ts,
			Kind:      string(client.GameActionPerformed),
			Payload:   confirmed[i].payload,
		})
	}
}

// Finish 对局结束：按入栈顺序冲刷剩余动作并取消订阅（幂等）
func (r *Reconciler) Finish() {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return
	}
	r.disposed = true
	remaining := r.stack
	r.stack = nil
	r.undos = nil
	unsub := r.unsubscribe
	done := r.onFinished
	r.mu.Unlock()

	for _, pa := range remaining {
		r.emit(Entry{
			GameID:    r.gameID,
			Timestamp: pa.ts,
			Kind:      string(client.GameActionPerformed),
			Payload:   pa.payload,
		})
	}

	if unsub != nil {
		unsub()
	}
	if done != nil {
		done(r.gameID)
	}

	r.log.Info("对局结束，对账器已停用",
		zap.Int("flushed", len(remaining)))
}

// PendingCount 返回未提交动作数，供状态接口观察
func (r *Reconciler) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stack)
}

// emit 向下游提交一条确认事件
func (r *Reconciler) emit(e Entry) {
	logger.LogGameEvent(e.Kind, e.GameID, e.Timestamp)
	if err := r.sink.Append(e); err != nil {
		r.log.Warn("日志条目入队失败，已丢弃",
			zap.String("kind", e.Kind),
			zap.Int64("timestamp", e.Timestamp),
			zap.Error(err))
	}
}

// signalNewActionLocked 通知"有新动作到达"，调用方必须持锁
func (r *Reconciler) signalNewActionLocked() {
	close(r.newAction)
	r.newAction = make(chan struct{})
}
