package tracker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/videre-project/Tracker-sub000/internal/config"
	"github.com/videre-project/Tracker-sub000/internal/errors"
	"github.com/videre-project/Tracker-sub000/internal/logger"
	"github.com/videre-project/Tracker-sub000/internal/models"
	"github.com/videre-project/Tracker-sub000/internal/repository"
)

// LogWriter 日志写入器
//
// 把回调线程上的高频事件生产和可能阻塞在I/O上的持久化解耦。
// 全部对局共用一条有界队列，单消费者循环按序落库，保证同一
// 对局内的提交顺序；跨对局不保证顺序。
type LogWriter struct {
	games repository.GameRepository
	logs  repository.GameLogRepository
	cfg   config.TrackerConfig
	log   *zap.Logger

	queue chan Entry
	quit  chan struct{}
	done  chan struct{}

	mu      sync.Mutex
	closed  bool
	pending map[string]int    // 每个对局排队中的条目数
	flushed chan struct{}     // 任一对局清零时关闭并更换
	refs    map[string]uint   // 外部对局ID -> 行ID缓存
	nextSeq map[uint]int      // 每个对局的下一个序号
}

// NewLogWriter 创建日志写入器
func NewLogWriter(games repository.GameRepository, logs repository.GameLogRepository, cfg config.TrackerConfig) *LogWriter {
	size := cfg.LogQueueSize
	if size <= 0 {
		size = 4096
	}
	return &LogWriter{
		games:   games,
		logs:    logs,
		cfg:     cfg,
		log:     logger.GetModuleLogger("logwriter"),
		queue:   make(chan Entry, size),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		pending: make(map[string]int),
		flushed: make(chan struct{}),
		refs:    make(map[string]uint),
		nextSeq: make(map[uint]int),
	}
}

// Append 入队一条待持久化的日志条目
//
// 队列未满时立即返回；队列满时阻塞到出现空位或写入器关闭。
func (w *LogWriter) Append(e Entry) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return errors.New(errors.ErrLogQueueClosed)
	}
	w.pending[e.GameID]++
	w.mu.Unlock()

	select {
	case w.queue <- e:
		return nil
	case <-w.quit:
		w.markDone(e.GameID)
		return errors.New(errors.ErrLogQueueClosed)
	}
}

// Run 运行持久化消费循环，直到ctx取消
//
// 退出前在有界时间内排空队列里已入队的条目。
func (w *LogWriter) Run(ctx context.Context) {
	defer close(w.done)

	for {
		select {
		case e := <-w.queue:
			w.persist(ctx, e)
		case <-ctx.Done():
			w.shutdown()
			return
		}
	}
}

// shutdown 拒绝新条目并排空队列
func (w *LogWriter) shutdown() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	close(w.quit)

	deadline := time.Now().Add(w.cfg.FlushDrainAfter)
	drainCtx := context.Background()
	for {
		if w.cfg.FlushDrainAfter > 0 && time.Now().After(deadline) {
			w.log.Warn("排空队列超时，丢弃剩余条目",
				zap.Int("remaining", len(w.queue)))
			w.failRemaining()
			return
		}
		select {
		case e := <-w.queue:
			w.persist(drainCtx, e)
		default:
			return
		}
	}
}

// failRemaining 把队列里剩余的条目标记为已处理，避免等待方挂死
func (w *LogWriter) failRemaining() {
	for {
		select {
		case e := <-w.queue:
			w.markDone(e.GameID)
		default:
			return
		}
	}
}

// persist 持久化单条日志
//
// 对局行由成员回调异步创建，可能晚于第一批日志到达，先有界
// 等待父记录出现。单条写入失败只记日志并丢弃，日志是尽力而为
// 的遥测，不是规则正确性的账本，不能让一条坏记录堵死整条队列。
func (w *LogWriter) persist(ctx context.Context, e Entry) {
	defer w.markDone(e.GameID)

	ref, err := w.resolveGameRef(ctx, e.GameID)
	if err != nil {
		w.log.Error("父记录不存在，丢弃日志条目",
			zap.String("game_id", e.GameID),
			zap.String("kind", e.Kind),
			zap.Error(err))
		return
	}

	seq, err := w.allocSeq(ctx, ref)
	if err != nil {
		w.log.Error("分配日志序号失败，丢弃条目",
			zap.String("game_id", e.GameID),
			zap.Error(err))
		return
	}

	entry := &models.GameLogEntry{
		GameRef:   ref,
		Seq:       seq,
		Timestamp: e.Timestamp,
		Kind:      e.Kind,
		Payload:   e.Payload,
	}
	if err := w.logs.Append(ctx, entry); err != nil {
		w.log.Error("写入日志条目失败，已丢弃",
			zap.String("game_id", e.GameID),
			zap.String("kind", e.Kind),
			zap.Int64("timestamp", e.Timestamp),
			zap.Error(err))
		return
	}
	w.mu.Lock()
	w.nextSeq[ref] = seq + 1
	w.mu.Unlock()
}

// resolveGameRef 把外部对局ID解析成行ID，必要时有界等待父记录
func (w *LogWriter) resolveGameRef(ctx context.Context, gameID string) (uint, error) {
	w.mu.Lock()
	if ref, ok := w.refs[gameID]; ok {
		w.mu.Unlock()
		return ref, nil
	}
	w.mu.Unlock()

	poll := w.cfg.ParentRowPoll
	if poll <= 0 {
		poll = 50 * time.Millisecond
	}
	deadline := time.Now().Add(w.cfg.ParentRowWait)

	for {
		game, err := w.games.FindByGameID(ctx, gameID)
		if err == nil {
			w.mu.Lock()
			w.refs[gameID] = game.ID
			w.mu.Unlock()
			return game.ID, nil
		}

		if w.cfg.ParentRowWait <= 0 || time.Now().After(deadline) {
			return 0, errors.Wrap(err, errors.ErrParentRowMissing, gameID)
		}
		select {
		case <-time.After(poll):
		case <-ctx.Done():
			return 0, errors.Wrap(ctx.Err(), errors.ErrParentRowMissing, gameID)
		}
	}
}

// allocSeq 分配对局内单调递增的序号，首次遇到对局时从库里续上
func (w *LogWriter) allocSeq(ctx context.Context, ref uint) (int, error) {
	w.mu.Lock()
	if seq, ok := w.nextSeq[ref]; ok {
		w.mu.Unlock()
		return seq, nil
	}
	w.mu.Unlock()

	last, err := w.logs.LastSeq(ctx, ref)
	if err != nil {
		return 0, err
	}
	return last + 1, nil
}

// markDone 递减对局的排队计数，清零时广播冲刷通知
func (w *LogWriter) markDone(gameID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending[gameID] > 0 {
		w.pending[gameID]--
	}
	if w.pending[gameID] == 0 {
		delete(w.pending, gameID)
		close(w.flushed)
		w.flushed = make(chan struct{})
	}
}

// AwaitFlushed 挂起直到对局全部已入队条目落库（或被丢弃）
func (w *LogWriter) AwaitFlushed(ctx context.Context, gameID string) error {
	for {
		w.mu.Lock()
		if w.pending[gameID] == 0 {
			w.mu.Unlock()
			return nil
		}
		ch := w.flushed
		w.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// QueueDepth 返回当前排队条目数，供状态接口观察
func (w *LogWriter) QueueDepth() int {
	return len(w.queue)
}

// Done 消费循环退出时关闭
func (w *LogWriter) Done() <-chan struct{} {
	return w.done
}
