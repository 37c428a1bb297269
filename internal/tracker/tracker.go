package tracker

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/videre-project/Tracker-sub000/internal/client"
	"github.com/videre-project/Tracker-sub000/internal/config"
	"github.com/videre-project/Tracker-sub000/internal/logger"
	"github.com/videre-project/Tracker-sub000/internal/models"
	"github.com/videre-project/Tracker-sub000/internal/repository"
	"github.com/videre-project/Tracker-sub000/internal/session"
)

// Tracker 对局追踪器
//
// 把客户端的成员回调接到持久化层：赛事/比赛/对局记录在首次
// 被报告时惰性创建，每局一个对账器、每场比赛一个聚合器，
// 全部日志经由共用的写入器落库。
type Tracker struct {
	client   client.Client
	provider *session.Provider
	cfg      config.TrackerConfig
	writer   *LogWriter
	events   repository.EventRepository
	matches  repository.MatchRepository
	games    repository.GameRepository
	log      *zap.Logger

	mu          sync.Mutex
	reconcilers map[string]*Reconciler // 按对局ID
	aggregators map[string]*Aggregator // 按比赛ID
	unsubs      []func()
}

// UpdateConfig 应用热更新后的配置
//
// 只影响之后创建的对账器；队列容量等启动期参数不受影响。
func (t *Tracker) UpdateConfig(cfg config.TrackerConfig) {
	t.mu.Lock()
	t.cfg = cfg
	t.mu.Unlock()
}

// currentCfg 读取当前配置快照
func (t *Tracker) currentCfg() config.TrackerConfig {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cfg
}

// NewTracker 创建追踪器
func NewTracker(c client.Client, provider *session.Provider, cfg config.TrackerConfig, writer *LogWriter, events repository.EventRepository, matches repository.MatchRepository, games repository.GameRepository) *Tracker {
	return &Tracker{
		client:      c,
		provider:    provider,
		cfg:         cfg,
		writer:      writer,
		events:      events,
		matches:     matches,
		games:       games,
		log:         logger.GetModuleLogger("tracker"),
		reconcilers: make(map[string]*Reconciler),
		aggregators: make(map[string]*Aggregator),
	}
}

// Run 跟随会话生命周期运行，直到ctx取消
//
// 每次客户端就绪后热挂载当前已加入的赛事（追踪器可能比客户端
// 晚启动），掉线后清理全部订阅等待下一个会话。
func (t *Tracker) Run(ctx context.Context) {
	for {
		sess, err := t.provider.WaitUntilReady(ctx)
		if err != nil {
			t.detachAll()
			return
		}

		t.attachJoined(ctx)

		err = t.provider.WaitUntilDisconnected(ctx)

		// 清理完成后告知会话，重连循环不必等满清理超时
		t.detachAll()
		if sess != nil {
			sess.FinishTeardown()
		}
		if err != nil {
			return
		}
		t.log.Info("客户端离线，已清理全部订阅")
	}
}

// attachJoined 热挂载客户端当前已加入的赛事
func (t *Tracker) attachJoined(ctx context.Context) {
	joined, err := t.client.JoinedEvents(ctx)
	if err != nil {
		t.log.Warn("枚举已加入赛事失败", zap.Error(err))
		return
	}

	for _, ev := range joined {
		for i := range ev.Matches {
			if err := t.TrackMatch(ctx, ev, &ev.Matches[i]); err != nil {
				t.log.Error("挂载比赛失败",
					zap.String("match_id", ev.Matches[i].MatchID),
					zap.Error(err))
			}
		}
	}
	if len(joined) > 0 {
		t.log.Info("热挂载完成", zap.Int("events", len(joined)))
	}
}

// TrackMatch 开始追踪一场比赛（幂等）
//
// 惰性创建赛事与比赛记录，订阅比赛事件流，并挂载成员信息里
// 已经在进行中的对局。
func (t *Tracker) TrackMatch(ctx context.Context, eventInfo *client.EventInfo, matchInfo *client.MatchInfo) error {
	t.mu.Lock()
	if _, ok := t.aggregators[matchInfo.MatchID]; ok {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	event := &models.Event{
		EventID: eventInfo.EventID,
		Name:    eventInfo.Name,
		Format:  eventInfo.Format,
	}
	if err := t.events.FindOrCreate(ctx, event); err != nil {
		return err
	}

	match := &models.Match{
		MatchID:        matchInfo.MatchID,
		EventRef:       event.ID,
		Status:         models.MatchStatusPlaying,
		RegisteredDeck: matchInfo.Deck,
	}
	if err := t.matches.FindOrCreate(ctx, match); err != nil {
		return err
	}

	agg := NewAggregator(matchInfo.MatchID, matchInfo.Deck, t.matches, t.games, t.writer)

	unsub, err := t.client.SubscribeMatch(matchInfo.MatchID, func(ev client.MatchEvent) {
		t.handleMatchEvent(ctx, match.MatchID, agg, ev)
	})
	if err != nil {
		return err
	}
	agg.SetUnsubscribe(unsub)

	t.mu.Lock()
	t.aggregators[matchInfo.MatchID] = agg
	t.unsubs = append(t.unsubs, unsub)
	t.mu.Unlock()

	t.log.Info("开始追踪比赛",
		zap.String("match_id", matchInfo.MatchID),
		zap.String("event_id", eventInfo.EventID))

	// 成员信息里已开始的对局直接挂载，并补报给聚合器，
	// 否则比赛结束时集合校验会把它们当作多余的持久化记录
	for i := range matchInfo.Games {
		g := matchInfo.Games[i]
		if err := t.trackGame(ctx, match.ID, &g); err != nil {
			t.log.Error("挂载对局失败",
				zap.String("game_id", g.GameID),
				zap.Error(err))
			continue
		}
		agg.OnGameStarted(ctx, &g)
	}

	return nil
}

// handleMatchEvent 比赛事件分发
//
// 新对局先落库再通知聚合器，日志写入器等父记录的时间窗口
// 就越短。
func (t *Tracker) handleMatchEvent(ctx context.Context, matchID string, agg *Aggregator, ev client.MatchEvent) {
	if ev.Kind == client.MatchGameStarted && ev.Game != nil {
		match, err := t.matches.FindByMatchID(ctx, matchID)
		if err != nil {
			t.log.Error("比赛记录缺失，忽略新对局",
				zap.String("match_id", matchID),
				zap.String("game_id", ev.Game.GameID),
				zap.Error(err))
			return
		}
		if err := t.trackGame(ctx, match.ID, ev.Game); err != nil {
			t.log.Error("追踪新对局失败",
				zap.String("game_id", ev.Game.GameID),
				zap.Error(err))
		}
	}

	agg.HandleEvent(ctx, ev)

	if ev.Kind == client.MatchStateChanged && ev.Completed {
		t.mu.Lock()
		delete(t.aggregators, matchID)
		t.mu.Unlock()
	}
}

// trackGame 开始追踪一局（幂等）
func (t *Tracker) trackGame(ctx context.Context, matchRef uint, info *client.GameInfo) error {
	t.mu.Lock()
	if _, ok := t.reconcilers[info.GameID]; ok {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	game := &models.Game{
		GameID:   info.GameID,
		MatchRef: matchRef,
		Number:   info.Number,
		Status:   models.GameStatusPlaying,
	}
	if err := t.games.FindOrCreate(ctx, game); err != nil {
		return err
	}

	rec := NewReconciler(info.GameID, t.currentCfg(), t.writer)
	rec.SetOnFinished(func(gameID string) {
		if err := t.games.MarkFinished(ctx, gameID); err != nil {
			t.log.Error("标记对局结束失败",
				zap.String("game_id", gameID),
				zap.Error(err))
		}
		t.mu.Lock()
		delete(t.reconcilers, gameID)
		t.mu.Unlock()
	})

	gameID := info.GameID
	unsub, err := t.client.SubscribeGame(gameID, func(ev client.GameEvent) {
		// 单局结果落库后比赛结束时才能回读聚合
		if ev.Kind == client.GameResultsChanged && len(ev.Results) > 0 {
			if err := t.games.SetResults(ctx, gameID, ev.Results); err != nil {
				t.log.Error("写入对局结果失败",
					zap.String("game_id", gameID),
					zap.Error(err))
			}
		}
		rec.HandleEvent(ev)
	})
	if err != nil {
		return err
	}
	rec.SetUnsubscribe(unsub)

	t.mu.Lock()
	t.reconcilers[info.GameID] = rec
	t.unsubs = append(t.unsubs, unsub)
	t.mu.Unlock()

	t.log.Info("开始追踪对局",
		zap.String("game_id", info.GameID),
		zap.Int("number", info.Number))

	return nil
}

// detachAll 取消全部订阅并清空追踪状态
func (t *Tracker) detachAll() {
	t.mu.Lock()
	unsubs := t.unsubs
	t.unsubs = nil
	t.reconcilers = make(map[string]*Reconciler)
	t.aggregators = make(map[string]*Aggregator)
	t.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
}

// Status 追踪器状态快照
type Status struct {
	ClientReady   bool `json:"client_ready"`
	ActiveMatches int  `json:"active_matches"`
	ActiveGames   int  `json:"active_games"`
	PendingLogs   int  `json:"pending_logs"`
}

// CurrentStatus 返回状态快照，供状态接口使用
func (t *Tracker) CurrentStatus() Status {
	t.mu.Lock()
	matches := len(t.aggregators)
	games := len(t.reconcilers)
	t.mu.Unlock()

	return Status{
		ClientReady:   t.provider.IsReady(),
		ActiveMatches: matches,
		ActiveGames:   games,
		PendingLogs:   t.writer.QueueDepth(),
	}
}
