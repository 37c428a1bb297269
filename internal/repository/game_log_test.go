package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/videre-project/Tracker-sub000/internal/models"
)

func TestGameLogRepository_Append(t *testing.T) {
	db := TestDB(t)
	repo := NewGameLogRepository(db)
	ctx := context.Background()

	_, _, game := SeedTestHierarchy(t, db)

	entries := []*models.GameLogEntry{
		{GameRef: game.ID, Seq: 0, Timestamp: 10, Kind: "turn", Payload: models.JSONMap{"turn": 1}},
		{GameRef: game.ID, Seq: 1, Timestamp: 10, Kind: "action", Payload: models.JSONMap{"action": "play land"}},
		{GameRef: game.ID, Seq: 2, Timestamp: 12, Kind: "life", Payload: models.JSONMap{"life": 18}},
	}
	for _, e := range entries {
		require.NoError(t, repo.Append(ctx, e))
	}

	found, err := repo.FindByGame(ctx, game.ID)
	require.NoError(t, err)
	require.Len(t, found, 3)
	AssertLogOrder(t, found)

	// 时间戳相同的条目保持确认顺序
	assert.Equal(t, "turn", found[0].Kind)
	assert.Equal(t, "action", found[1].Kind)
}

func TestGameLogRepository_Append_Idempotent(t *testing.T) {
	db := TestDB(t)
	repo := NewGameLogRepository(db)
	ctx := context.Background()

	_, _, game := SeedTestHierarchy(t, db)

	entry := &models.GameLogEntry{GameRef: game.ID, Seq: 0, Timestamp: 5, Kind: "action"}
	require.NoError(t, repo.Append(ctx, entry))

	// 至少一次投递：重放同一 (game_ref, seq) 不应报错也不应加行
	replay := &models.GameLogEntry{GameRef: game.ID, Seq: 0, Timestamp: 5, Kind: "action"}
	require.NoError(t, repo.Append(ctx, replay))

	count, err := repo.CountByGame(ctx, game.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestGameLogRepository_LastSeq(t *testing.T) {
	db := TestDB(t)
	repo := NewGameLogRepository(db)
	ctx := context.Background()

	_, _, game := SeedTestHierarchy(t, db)

	// 空对局返回-1
	seq, err := repo.LastSeq(ctx, game.ID)
	require.NoError(t, err)
	assert.Equal(t, -1, seq)

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Append(ctx, &models.GameLogEntry{
			GameRef: game.ID, Seq: i, Timestamp: int64(i), Kind: "action",
		}))
	}

	seq, err = repo.LastSeq(ctx, game.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, seq)
}
