package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/videre-project/Tracker-sub000/internal/models"
)

func TestEventRepository_Create(t *testing.T) {
	db := TestDB(t)
	repo := NewEventRepository(db)
	ctx := context.Background()

	event := CreateTestEvent()
	err := repo.Create(ctx, event)
	require.NoError(t, err)
	assert.NotZero(t, event.ID)

	// 验证可按外部ID查回
	found, err := repo.FindByEventID(ctx, event.EventID)
	require.NoError(t, err)
	assert.Equal(t, event.EventID, found.EventID)
	assert.Equal(t, event.Name, found.Name)
}

func TestEventRepository_FindOrCreate(t *testing.T) {
	db := TestDB(t)
	repo := NewEventRepository(db)
	ctx := context.Background()

	event := CreateTestEvent()
	require.NoError(t, repo.FindOrCreate(ctx, event))
	firstID := event.ID

	// 重放同一回调不应创建第二行
	replay := &models.Event{EventID: event.EventID}
	require.NoError(t, repo.FindOrCreate(ctx, replay))
	assert.Equal(t, firstID, replay.ID)

	p := NewPagination(1, 10)
	events, err := repo.List(ctx, p)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestEventRepository_Delete_Cascades(t *testing.T) {
	db := TestDB(t)
	repo := NewEventRepository(db)
	logRepo := NewGameLogRepository(db)
	ctx := context.Background()

	event, _, game := SeedTestHierarchy(t, db)

	// 写入一条日志
	err := logRepo.Append(ctx, &models.GameLogEntry{
		GameRef:   game.ID,
		Seq:       0,
		Timestamp: 1,
		Kind:      "action",
	})
	require.NoError(t, err)

	// 删除赛事后整条链都应消失
	require.NoError(t, repo.Delete(ctx, event.EventID))

	var matchCount, gameCount, logCount int64
	db.Model(&models.Match{}).Count(&matchCount)
	db.Model(&models.Game{}).Count(&gameCount)
	db.Model(&models.GameLogEntry{}).Count(&logCount)
	assert.Zero(t, matchCount)
	assert.Zero(t, gameCount)
	assert.Zero(t, logCount)
}
