package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/videre-project/Tracker-sub000/internal/client"
	"github.com/videre-project/Tracker-sub000/internal/models"
	"github.com/videre-project/Tracker-sub000/internal/repository"
)

// aggFixture 聚合器测试夹具
type aggFixture struct {
	db      *gorm.DB
	matches repository.MatchRepository
	games   repository.GameRepository
	writer  *LogWriter
	match   *models.Match
	agg     *Aggregator
}

func newAggFixture(t *testing.T) *aggFixture {
	t.Helper()
	db := repository.TestDB(t)

	event := repository.CreateTestEvent()
	require.NoError(t, db.Create(event).Error)
	match := repository.CreateTestMatch(event.ID)
	require.NoError(t, db.Create(match).Error)

	matches := repository.NewMatchRepository(db)
	games := repository.NewGameRepository(db)
	writer := NewLogWriter(games, repository.NewGameLogRepository(db), writerCfg())
	startWriter(t, writer)

	return &aggFixture{
		db:      db,
		matches: matches,
		games:   games,
		writer:  writer,
		match:   match,
		agg:     NewAggregator(match.MatchID, match.RegisteredDeck, matches, games, writer),
	}
}

// addGame 造一局并写入单局结果
func (f *aggFixture) addGame(t *testing.T, number int, results models.GameResults) *models.Game {
	t.Helper()
	game := repository.CreateTestGame(f.match.ID, number)
	game.Results = results
	require.NoError(t, f.db.Create(game).Error)
	return game
}

func TestAggregatorSideboardDeltaAppliesToNextGame(t *testing.T) {
	f := newAggFixture(t)
	ctx := context.Background()

	g1 := f.addGame(t, 1, nil)
	g2 := f.addGame(t, 2, nil)

	f.agg.OnGameStarted(ctx, &client.GameInfo{GameID: g1.GameID, MatchID: f.match.MatchID, Number: 1})

	newDeck := models.Deck{Mainboard: []models.CardQuantity{
		{Name: "Lightning Bolt", Quantity: 3},
		{Name: "Mountain", Quantity: 20},
		{Name: "Smash to Smithereens", Quantity: 1},
	}}
	f.agg.OnSideboardChanged(newDeck)
	f.agg.OnGameStarted(ctx, &client.GameInfo{GameID: g2.GameID, MatchID: f.match.MatchID, Number: 2})

	// 第一局没有换备牌记录
	got1, err := f.games.FindByGameID(ctx, g1.GameID)
	require.NoError(t, err)
	assert.Empty(t, got1.SideboardDelta)

	got2, err := f.games.FindByGameID(ctx, g2.GameID)
	require.NoError(t, err)
	assert.Equal(t, models.CardDeltas{
		{Name: "Lightning Bolt", Delta: -1},
		{Name: "Smash to Smithereens", Delta: 1},
	}, got2.SideboardDelta)
}

func TestAggregatorQueuesMultipleSideboardEditsFIFO(t *testing.T) {
	f := newAggFixture(t)
	ctx := context.Background()

	g1 := f.addGame(t, 1, nil)
	g2 := f.addGame(t, 2, nil)
	g3 := f.addGame(t, 3, nil)

	f.agg.OnGameStarted(ctx, &client.GameInfo{GameID: g1.GameID, Number: 1})

	// 下一局开始前的多次编辑依次排队，逐局出队
	f.agg.OnSideboardChanged(models.Deck{Mainboard: []models.CardQuantity{
		{Name: "Lightning Bolt", Quantity: 3}, {Name: "Mountain", Quantity: 20},
	}})
	f.agg.OnSideboardChanged(models.Deck{Mainboard: []models.CardQuantity{
		{Name: "Lightning Bolt", Quantity: 4}, {Name: "Mountain", Quantity: 19},
	}})

	f.agg.OnGameStarted(ctx, &client.GameInfo{GameID: g2.GameID, Number: 2})
	f.agg.OnGameStarted(ctx, &client.GameInfo{GameID: g3.GameID, Number: 3})

	got2, err := f.games.FindByGameID(ctx, g2.GameID)
	require.NoError(t, err)
	assert.Equal(t, models.CardDeltas{{Name: "Lightning Bolt", Delta: -1}}, got2.SideboardDelta)

	got3, err := f.games.FindByGameID(ctx, g3.GameID)
	require.NoError(t, err)
	assert.Equal(t, models.CardDeltas{{Name: "Mountain", Delta: -1}}, got3.SideboardDelta)
}

func TestAggregatorComputesMatchResults(t *testing.T) {
	f := newAggFixture(t)
	ctx := context.Background()

	g1 := f.addGame(t, 1, models.GameResults{
		{Player: "alice", Won: true}, {Player: "bob", Won: false},
	})
	g2 := f.addGame(t, 2, models.GameResults{
		{Player: "alice", Won: false}, {Player: "bob", Won: true},
	})
	g3 := f.addGame(t, 3, models.GameResults{
		{Player: "alice", Won: true}, {Player: "bob", Won: false},
	})

	f.agg.OnGameStarted(ctx, &client.GameInfo{GameID: g1.GameID, Number: 1})
	f.agg.OnGameStarted(ctx, &client.GameInfo{GameID: g2.GameID, Number: 2})
	f.agg.OnGameStarted(ctx, &client.GameInfo{GameID: g3.GameID, Number: 3})

	unsubCalls := 0
	f.agg.SetUnsubscribe(func() { unsubCalls++ })
	f.agg.OnMatchCompleted(ctx)

	got, err := f.matches.FindByMatchID(ctx, f.match.MatchID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusCompleted, got.Status)
	assert.Equal(t, models.PlayerResults{
		{Player: "alice", GameWins: 2, GameLosses: 1, Winner: true},
		{Player: "bob", GameWins: 1, GameLosses: 2, Winner: false},
	}, got.Results)
	assert.Equal(t, 1, unsubCalls)
}

func TestAggregatorCompletionIsIdempotent(t *testing.T) {
	f := newAggFixture(t)
	ctx := context.Background()

	g1 := f.addGame(t, 1, models.GameResults{
		{Player: "alice", Won: true}, {Player: "bob", Won: false},
	})
	f.agg.OnGameStarted(ctx, &client.GameInfo{GameID: g1.GameID, Number: 1})

	unsubCalls := 0
	f.agg.SetUnsubscribe(func() { unsubCalls++ })
	f.agg.OnMatchCompleted(ctx)
	f.agg.OnMatchCompleted(ctx)

	assert.Equal(t, 1, unsubCalls)

	// 结束后的事件被忽略
	f.agg.OnSideboardChanged(models.Deck{Mainboard: []models.CardQuantity{{Name: "Island", Quantity: 20}}})
	f.agg.OnGameStarted(ctx, &client.GameInfo{GameID: "late-game", Number: 2})
}

func TestAggregatorAbortsOnGameSetMismatch(t *testing.T) {
	f := newAggFixture(t)
	ctx := context.Background()

	g1 := f.addGame(t, 1, models.GameResults{
		{Player: "alice", Won: true}, {Player: "bob", Won: false},
	})
	f.agg.OnGameStarted(ctx, &client.GameInfo{GameID: g1.GameID, Number: 1})
	// 观察到但从未持久化的对局
	f.agg.OnGameStarted(ctx, &client.GameInfo{GameID: "ghost-game", Number: 2})

	f.agg.OnMatchCompleted(ctx)

	// 数据完整性故障：放弃聚合而不是写出部分结果
	got, err := f.matches.FindByMatchID(ctx, f.match.MatchID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusPlaying, got.Status)
	assert.Empty(t, got.Results)
}

func TestAggregatorWaitsForLogFlush(t *testing.T) {
	db := repository.TestDB(t)
	event := repository.CreateTestEvent()
	require.NoError(t, db.Create(event).Error)
	match := repository.CreateTestMatch(event.ID)
	require.NoError(t, db.Create(match).Error)

	matches := repository.NewMatchRepository(db)
	games := repository.NewGameRepository(db)
	writer := NewLogWriter(games, repository.NewGameLogRepository(db), writerCfg())

	game := repository.CreateTestGame(match.ID, 1)
	game.Results = models.GameResults{
		{Player: "alice", Won: true}, {Player: "bob", Won: false},
	}
	require.NoError(t, db.Create(game).Error)

	agg := NewAggregator(match.MatchID, match.RegisteredDeck, matches, games, writer)
	ctx := context.Background()
	agg.OnGameStarted(ctx, &client.GameInfo{GameID: game.GameID, Number: 1})

	// 消费循环未启动：入队的日志还没落库，聚合必须等待而不是失败
	require.NoError(t, writer.Append(Entry{GameID: game.GameID, Timestamp: 1, Kind: "action"}))

	done := make(chan struct{})
	go func() {
		agg.OnMatchCompleted(ctx)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("日志尚未冲刷，聚合不应完成")
	case <-time.After(50 * time.Millisecond):
	}

	startWriter(t, writer)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("日志冲刷后聚合未完成")
	}

	got, err := matches.FindByMatchID(ctx, match.MatchID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusCompleted, got.Status)
}
