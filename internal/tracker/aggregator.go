package tracker

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/videre-project/Tracker-sub000/internal/client"
	"github.com/videre-project/Tracker-sub000/internal/logger"
	"github.com/videre-project/Tracker-sub000/internal/models"
	"github.com/videre-project/Tracker-sub000/internal/repository"
)

// Aggregator 比赛聚合器
//
// 跟踪局间换备牌并在比赛结束后计算最终结果。换备牌差值不立即
// 落库而是排队：客户端在下一局真正开始前可能多次编辑备牌，
// 差值只对"下一局"生效。
type Aggregator struct {
	matchID string
	matches repository.MatchRepository
	games   repository.GameRepository
	writer  *LogWriter
	log     *zap.Logger

	mu            sync.Mutex
	registered    models.Deck
	pendingDeltas []models.CardDeltas // FIFO，进入下一局时出队
	gameIDs       []string            // 已开始对局，按顺序
	completed     bool
	unsubscribe   func()
}

// NewAggregator 创建比赛聚合器
func NewAggregator(matchID string, registered models.Deck, matches repository.MatchRepository, games repository.GameRepository, writer *LogWriter) *Aggregator {
	return &Aggregator{
		matchID:    matchID,
		registered: registered,
		matches:    matches,
		games:      games,
		writer:     writer,
		log:        logger.GetModuleLogger("tracker").With(zap.String("match_id", matchID)),
	}
}

// SetUnsubscribe 设置取消订阅回调，比赛结束时调用
func (a *Aggregator) SetUnsubscribe(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.unsubscribe = fn
}

// HandleEvent 处理一条比赛事件
func (a *Aggregator) HandleEvent(ctx context.Context, ev client.MatchEvent) {
	switch ev.Kind {
	case client.MatchGameStarted:
		if ev.Game != nil {
			a.OnGameStarted(ctx, ev.Game)
		}
	case client.MatchSideboardChanged:
		if ev.Deck != nil {
			a.OnSideboardChanged(*ev.Deck)
		}
	case client.MatchStateChanged:
		if ev.Completed {
			a.OnMatchCompleted(ctx)
		}
	}
}

// OnGameStarted 新一局开始
//
// 锁的获取本身就等到了在途的换备牌计算结束。第一局没有换备牌；
// 之后每一局出队最早的一份差值，作为"进入本局的改动"落库。
func (a *Aggregator) OnGameStarted(ctx context.Context, game *client.GameInfo) {
	a.mu.Lock()
	if a.completed {
		a.mu.Unlock()
		return
	}
	first := len(a.gameIDs) == 0
	a.gameIDs = append(a.gameIDs, game.GameID)

	var delta models.CardDeltas
	if !first && len(a.pendingDeltas) > 0 {
		delta = a.pendingDeltas[0]
		a.pendingDeltas = a.pendingDeltas[1:]
	}
	a.mu.Unlock()

	if delta == nil {
		return
	}
	if err := a.games.SetSideboardDelta(ctx, game.GameID, delta); err != nil {
		a.log.Error("写入换备牌差值失败",
			zap.String("game_id", game.GameID),
			zap.Error(err))
	}
}

// OnSideboardChanged 换备牌完成，差值入队等下一局开始时生效
func (a *Aggregator) OnSideboardChanged(newDeck models.Deck) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.completed {
		return
	}
	a.pendingDeltas = append(a.pendingDeltas, ComputeSideboardDelta(a.registered, newDeck))
}

// OnMatchCompleted 比赛结束，聚合每位玩家的最终结果（幂等）
//
// 逐局等待日志冲刷后再回读结果；持久化的对局集合必须和观察到
// 的完全一致，不一致按数据完整性故障处理：记错误并放弃聚合，
// 绝不猜测。
func (a *Aggregator) OnMatchCompleted(ctx context.Context) {
	a.mu.Lock()
	if a.completed {
		a.mu.Unlock()
		return
	}
	a.completed = true
	expected := make([]string, len(a.gameIDs))
	copy(expected, a.gameIDs)
	unsub := a.unsubscribe
	a.mu.Unlock()

	if unsub != nil {
		unsub()
	}

	for _, gameID := range expected {
		if err := a.writer.AwaitFlushed(ctx, gameID); err != nil {
			a.log.Error("等待对局日志冲刷失败，放弃聚合",
				zap.String("game_id", gameID),
				zap.Error(err))
			return
		}
	}

	match, err := a.matches.FindByMatchID(ctx, a.matchID)
	if err != nil {
		a.log.Error("读取比赛记录失败，放弃聚合", zap.Error(err))
		return
	}
	persisted, err := a.games.FindByMatch(ctx, match.ID)
	if err != nil {
		a.log.Error("读取对局记录失败，放弃聚合", zap.Error(err))
		return
	}

	if !sameGameSet(expected, persisted) {
		a.log.Error("对局集合与持久化记录不一致，放弃聚合",
			zap.Strings("expected", expected),
			zap.Int("persisted", len(persisted)))
		return
	}

	results := aggregateResults(persisted)
	if err := a.matches.SetResults(ctx, a.matchID, results); err != nil {
		a.log.Error("写入比赛结果失败", zap.Error(err))
		return
	}

	a.log.Info("比赛结果已聚合",
		zap.Int("games", len(persisted)),
		zap.Int("players", len(results)))
}

// sameGameSet 校验观察到的对局集合与持久化集合完全相等
func sameGameSet(expected []string, persisted []*models.Game) bool {
	if len(expected) != len(persisted) {
		return false
	}
	set := make(map[string]bool, len(expected))
	for _, id := range expected {
		set[id] = true
	}
	for _, g := range persisted {
		if !set[g.GameID] {
			return false
		}
		delete(set, g.GameID)
	}
	return len(set) == 0
}

// aggregateResults 按玩家统计各局胜负，胜局数严格最多者为胜者
func aggregateResults(games []*models.Game) models.PlayerResults {
	var order []string
	seen := make(map[string]bool)
	wins := make(map[string]int)
	losses := make(map[string]int)

	for _, g := range games {
		for _, pr := range g.Results {
			if !seen[pr.Player] {
				seen[pr.Player] = true
				order = append(order, pr.Player)
			}
			if pr.Won {
				wins[pr.Player]++
			} else {
				losses[pr.Player]++
			}
		}
	}

	maxWins := 0
	for _, p := range order {
		if wins[p] > maxWins {
			maxWins = wins[p]
		}
	}
	topCount := 0
	for _, p := range order {
		if wins[p] == maxWins && maxWins > 0 {
			topCount++
		}
	}

	results := make(models.PlayerResults, 0, len(order))
	for _, p := range order {
		results = append(results, models.PlayerResult{
			Player:     p,
			GameWins:   wins[p],
			GameLosses: losses[p],
			Winner:     maxWins > 0 && topCount == 1 && wins[p] == maxWins,
		})
	}
	return results
}
