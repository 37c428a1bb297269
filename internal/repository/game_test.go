package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/videre-project/Tracker-sub000/internal/models"
)

func TestGameRepository_FindOrCreate(t *testing.T) {
	db := TestDB(t)
	repo := NewGameRepository(db)
	ctx := context.Background()

	_, match, _ := SeedTestHierarchy(t, db)

	game := CreateTestGame(match.ID, 2)
	require.NoError(t, repo.FindOrCreate(ctx, game))
	firstID := game.ID

	replay := &models.Game{GameID: game.GameID, MatchRef: match.ID}
	require.NoError(t, repo.FindOrCreate(ctx, replay))
	assert.Equal(t, firstID, replay.ID)
}

func TestGameRepository_MarkFinished(t *testing.T) {
	db := TestDB(t)
	repo := NewGameRepository(db)
	ctx := context.Background()

	_, _, game := SeedTestHierarchy(t, db)

	require.NoError(t, repo.MarkFinished(ctx, game.GameID))

	found, err := repo.FindByGameID(ctx, game.GameID)
	require.NoError(t, err)
	assert.Equal(t, models.GameStatusFinished, found.Status)
}

func TestGameRepository_SetSideboardDelta(t *testing.T) {
	db := TestDB(t)
	repo := NewGameRepository(db)
	ctx := context.Background()

	_, _, game := SeedTestHierarchy(t, db)

	delta := models.CardDeltas{
		{Name: "Lightning Bolt", Delta: -1},
		{Name: "Smash to Smithereens", Delta: 1},
	}
	require.NoError(t, repo.SetSideboardDelta(ctx, game.GameID, delta))

	found, err := repo.FindByGameID(ctx, game.GameID)
	require.NoError(t, err)
	require.Len(t, found.SideboardDelta, 2)
	assert.Equal(t, -1, found.SideboardDelta[0].Delta)
}

func TestGameRepository_SetResults(t *testing.T) {
	db := TestDB(t)
	repo := NewGameRepository(db)
	ctx := context.Background()

	_, match, _ := SeedTestHierarchy(t, db)
	game2 := CreateTestGame(match.ID, 2)
	require.NoError(t, repo.Create(ctx, game2))

	results := models.GameResults{
		{Player: "player1", Won: true},
		{Player: "player2", Won: false},
	}
	require.NoError(t, repo.SetResults(ctx, game2.GameID, results))

	games, err := repo.FindByMatch(ctx, match.ID)
	require.NoError(t, err)
	require.Len(t, games, 2)
	// 按局次排序
	assert.Equal(t, 1, games[0].Number)
	assert.Equal(t, 2, games[1].Number)
	require.Len(t, games[1].Results, 2)
	assert.True(t, games[1].Results[0].Won)
}
