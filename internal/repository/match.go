package repository

import (
	"context"

	"github.com/videre-project/Tracker-sub000/internal/models"
	"gorm.io/gorm"
)

// MatchRepository 比赛仓储接口
type MatchRepository interface {
	BaseRepository
	Create(ctx context.Context, match *models.Match) error
	FindByMatchID(ctx context.Context, matchID string) (*models.Match, error)
	FindOrCreate(ctx context.Context, match *models.Match) error
	FindByEvent(ctx context.Context, eventRef uint, p *Pagination) ([]*models.Match, error)
	UpdateByMatchID(ctx context.Context, matchID string, updates map[string]interface{}) error
	SetResults(ctx context.Context, matchID string, results models.PlayerResults) error
	Delete(ctx context.Context, matchID string) error
}

// matchRepo 比赛仓储实现
type matchRepo struct {
	*BaseRepo
}

// NewMatchRepository 创建比赛仓储
func NewMatchRepository(db *gorm.DB) MatchRepository {
	return &matchRepo{
		BaseRepo: NewBaseRepo(db),
	}
}

// Create 创建比赛
func (r *matchRepo) Create(ctx context.Context, match *models.Match) error {
	return r.db.WithContext(ctx).Create(match).Error
}

// FindByMatchID 根据外部比赛ID查找
func (r *matchRepo) FindByMatchID(ctx context.Context, matchID string) (*models.Match, error) {
	var match models.Match
	err := r.db.WithContext(ctx).
		Where("match_id = ?", matchID).
		First(&match).Error
	if err != nil {
		return nil, err
	}
	return &match, nil
}

// FindOrCreate 查找比赛，不存在则创建（幂等）
func (r *matchRepo) FindOrCreate(ctx context.Context, match *models.Match) error {
	return r.db.WithContext(ctx).
		Where("match_id = ?", match.MatchID).
		FirstOrCreate(match).Error
}

// FindByEvent 列出赛事下的比赛（分页）
func (r *matchRepo) FindByEvent(ctx context.Context, eventRef uint, p *Pagination) ([]*models.Match, error) {
	var matches []*models.Match

	r.db.WithContext(ctx).
		Model(&models.Match{}).
		Where("event_ref = ?", eventRef).
		Count(&p.Total)

	err := r.db.WithContext(ctx).
		Where("event_ref = ?", eventRef).
		Order("created_at asc").
		Scopes(Paginate(p)).
		Find(&matches).Error

	return matches, err
}

// UpdateByMatchID 根据比赛ID更新
func (r *matchRepo) UpdateByMatchID(ctx context.Context, matchID string, updates map[string]interface{}) error {
	return r.db.WithContext(ctx).
		Model(&models.Match{}).
		Where("match_id = ?", matchID).
		Updates(updates).Error
}

// SetResults 保存比赛聚合结果并标记完成
func (r *matchRepo) SetResults(ctx context.Context, matchID string, results models.PlayerResults) error {
	return r.db.WithContext(ctx).
		Model(&models.Match{}).
		Where("match_id = ?", matchID).
		Updates(map[string]interface{}{
			"status":  models.MatchStatusCompleted,
			"results": results,
		}).Error
}

// Delete 删除比赛（级联删除下属对局与日志）
func (r *matchRepo) Delete(ctx context.Context, matchID string) error {
	return r.db.WithContext(ctx).
		Where("match_id = ?", matchID).
		Delete(&models.Match{}).Error
}

// WithTx 使用事务
func (r *matchRepo) WithTx(tx *gorm.DB) BaseRepository {
	return &matchRepo{
		BaseRepo: &BaseRepo{db: tx},
	}
}
