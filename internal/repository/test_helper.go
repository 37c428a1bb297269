package repository

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/videre-project/Tracker-sub000/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testIDCounter int64

// nextTestID 生成测试用的唯一外部ID
func nextTestID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, atomic.AddInt64(&testIDCounter, 1))
}

// TestDB 为单个测试创建内存数据库
func TestDB(t *testing.T) *gorm.DB {
	t.Helper()

	// 使用内存数据库进行测试（更快，不需要文件系统）
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// 自动迁移全部模型（父表在前）
	err = db.AutoMigrate(
		&models.Event{},
		&models.Match{},
		&models.Game{},
		&models.GameLogEntry{},
	)
	require.NoError(t, err)

	// 级联删除依赖外键约束
	require.NoError(t, db.Exec("PRAGMA foreign_keys = ON").Error)

	return db
}

// SeedTestHierarchy 创建一条 赛事→比赛→对局 的测试数据链
func SeedTestHierarchy(t *testing.T, db *gorm.DB) (*models.Event, *models.Match, *models.Game) {
	t.Helper()

	event := CreateTestEvent()
	require.NoError(t, db.Create(event).Error)

	match := CreateTestMatch(event.ID)
	require.NoError(t, db.Create(match).Error)

	game := CreateTestGame(match.ID, 1)
	require.NoError(t, db.Create(game).Error)

	return event, match, game
}

// CreateTestEvent 构造测试赛事
func CreateTestEvent() *models.Event {
	return &models.Event{
		EventID: nextTestID("event"),
		Name:    "Preliminary",
		Format:  "Modern",
	}
}

// CreateTestMatch 构造测试比赛
func CreateTestMatch(eventRef uint) *models.Match {
	return &models.Match{
		MatchID:  nextTestID("match"),
		EventRef: eventRef,
		Status:   models.MatchStatusPlaying,
		RegisteredDeck: models.Deck{
			Mainboard: []models.CardQuantity{
				{Name: "Lightning Bolt", Quantity: 4},
				{Name: "Mountain", Quantity: 20},
			},
			Sideboard: []models.CardQuantity{
				{Name: "Smash to Smithereens", Quantity: 2},
			},
		},
	}
}

// CreateTestGame 构造测试对局
func CreateTestGame(matchRef uint, number int) *models.Game {
	return &models.Game{
		GameID:   nextTestID("game"),
		MatchRef: matchRef,
		Number:   number,
		Status:   models.GameStatusPlaying,
	}
}

// AssertLogOrder 断言日志按序号严格递增
func AssertLogOrder(t *testing.T, entries []*models.GameLogEntry) {
	t.Helper()
	for i := 1; i < len(entries); i++ {
		assert.Greater(t, entries[i].Seq, entries[i-1].Seq,
			"日志序号必须严格递增")
	}
}
