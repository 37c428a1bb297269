package repository

import (
	"context"

	"github.com/videre-project/Tracker-sub000/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GameLogRepository 对局日志仓储接口
type GameLogRepository interface {
	BaseRepository
	Append(ctx context.Context, entry *models.GameLogEntry) error
	FindByGame(ctx context.Context, gameRef uint) ([]*models.GameLogEntry, error)
	CountByGame(ctx context.Context, gameRef uint) (int64, error)
	LastSeq(ctx context.Context, gameRef uint) (int, error)
}

// gameLogRepo 对局日志仓储实现
type gameLogRepo struct {
	*BaseRepo
}

// NewGameLogRepository 创建对局日志仓储
func NewGameLogRepository(db *gorm.DB) GameLogRepository {
	return &gameLogRepo{
		BaseRepo: NewBaseRepo(db),
	}
}

// Append 追加一条日志
//
// 事件投递语义是至少一次，(game_ref, seq) 冲突时忽略重放。
func (r *gameLogRepo) Append(ctx context.Context, entry *models.GameLogEntry) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "game_ref"}, {Name: "seq"}},
			DoNothing: true,
		}).
		Create(entry).Error
}

// FindByGame 按提交顺序列出对局日志
func (r *gameLogRepo) FindByGame(ctx context.Context, gameRef uint) ([]*models.GameLogEntry, error) {
	var entries []*models.GameLogEntry
	err := r.db.WithContext(ctx).
		Where("game_ref = ?", gameRef).
		Order("seq asc").
		Find(&entries).Error
	return entries, err
}

// CountByGame 统计对局日志条数
func (r *gameLogRepo) CountByGame(ctx context.Context, gameRef uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.GameLogEntry{}).
		Where("game_ref = ?", gameRef).
		Count(&count).Error
	return count, err
}

// LastSeq 查询对局当前最大的序号，没有日志时返回 -1
func (r *gameLogRepo) LastSeq(ctx context.Context, gameRef uint) (int, error) {
	var seq *int
	err := r.db.WithContext(ctx).
		Model(&models.GameLogEntry{}).
		Where("game_ref = ?", gameRef).
		Select("MAX(seq)").
		Scan(&seq).Error
	if err != nil {
		return -1, err
	}
	if seq == nil {
		return -1, nil
	}
	return *seq, nil
}

// WithTx 使用事务
func (r *gameLogRepo) WithTx(tx *gorm.DB) BaseRepository {
	return &gameLogRepo{
		BaseRepo: &BaseRepo{db: tx},
	}
}
