package repository

import (
	"context"

	"github.com/videre-project/Tracker-sub000/internal/models"
	"gorm.io/gorm"
)

// GameRepository 对局仓储接口
type GameRepository interface {
	BaseRepository
	Create(ctx context.Context, game *models.Game) error
	FindByGameID(ctx context.Context, gameID string) (*models.Game, error)
	FindOrCreate(ctx context.Context, game *models.Game) error
	FindByMatch(ctx context.Context, matchRef uint) ([]*models.Game, error)
	UpdateByGameID(ctx context.Context, gameID string, updates map[string]interface{}) error
	SetSideboardDelta(ctx context.Context, gameID string, delta models.CardDeltas) error
	SetResults(ctx context.Context, gameID string, results models.GameResults) error
	MarkFinished(ctx context.Context, gameID string) error
}

// gameRepo 对局仓储实现
type gameRepo struct {
	*BaseRepo
}

// NewGameRepository 创建对局仓储
func NewGameRepository(db *gorm.DB) GameRepository {
	return &gameRepo{
		BaseRepo: NewBaseRepo(db),
	}
}

// Create 创建对局
func (r *gameRepo) Create(ctx context.Context, game *models.Game) error {
	return r.db.WithContext(ctx).Create(game).Error
}

// FindByGameID 根据外部对局ID查找
func (r *gameRepo) FindByGameID(ctx context.Context, gameID string) (*models.Game, error) {
	var game models.Game
	err := r.db.WithContext(ctx).
		Where("game_id = ?", gameID).
		First(&game).Error
	if err != nil {
		return nil, err
	}
	return &game, nil
}

// FindOrCreate 查找对局，不存在则创建（幂等）
func (r *gameRepo) FindOrCreate(ctx context.Context, game *models.Game) error {
	return r.db.WithContext(ctx).
		Where("game_id = ?", game.GameID).
		FirstOrCreate(game).Error
}

// FindByMatch 列出比赛下的全部对局（按局次排序）
func (r *gameRepo) FindByMatch(ctx context.Context, matchRef uint) ([]*models.Game, error) {
	var games []*models.Game
	err := r.db.WithContext(ctx).
		Where("match_ref = ?", matchRef).
		Order("number asc").
		Find(&games).Error
	return games, err
}

// UpdateByGameID 根据对局ID更新
func (r *gameRepo) UpdateByGameID(ctx context.Context, gameID string, updates map[string]interface{}) error {
	return r.db.WithContext(ctx).
		Model(&models.Game{}).
		Where("game_id = ?", gameID).
		Updates(updates).Error
}

// SetSideboardDelta 保存进入本局前的换备牌差异
func (r *gameRepo) SetSideboardDelta(ctx context.Context, gameID string, delta models.CardDeltas) error {
	return r.db.WithContext(ctx).
		Model(&models.Game{}).
		Where("game_id = ?", gameID).
		Update("sideboard_delta", delta).Error
}

// SetResults 保存对局内每位玩家的结果
func (r *gameRepo) SetResults(ctx context.Context, gameID string, results models.GameResults) error {
	return r.db.WithContext(ctx).
		Model(&models.Game{}).
		Where("game_id = ?", gameID).
		Update("results", results).Error
}

// MarkFinished 标记对局结束
func (r *gameRepo) MarkFinished(ctx context.Context, gameID string) error {
	return r.db.WithContext(ctx).
		Model(&models.Game{}).
		Where("game_id = ?", gameID).
		Update("status", models.GameStatusFinished).Error
}

// WithTx 使用事务
func (r *gameRepo) WithTx(tx *gorm.DB) BaseRepository {
	return &gameRepo{
		BaseRepo: &BaseRepo{db: tx},
	}
}
