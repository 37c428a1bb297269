package repository

import (
	"context"

	"github.com/videre-project/Tracker-sub000/internal/models"
	"gorm.io/gorm"
)

// EventRepository 赛事仓储接口
type EventRepository interface {
	BaseRepository
	Create(ctx context.Context, event *models.Event) error
	FindByEventID(ctx context.Context, eventID string) (*models.Event, error)
	FindOrCreate(ctx context.Context, event *models.Event) error
	List(ctx context.Context, p *Pagination) ([]*models.Event, error)
	Delete(ctx context.Context, eventID string) error
}

// eventRepo 赛事仓储实现
type eventRepo struct {
	*BaseRepo
}

// NewEventRepository 创建赛事仓储
func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepo{
		BaseRepo: NewBaseRepo(db),
	}
}

// Create 创建赛事
func (r *eventRepo) Create(ctx context.Context, event *models.Event) error {
	return r.db.WithContext(ctx).Create(event).Error
}

// FindByEventID 根据外部赛事ID查找
func (r *eventRepo) FindByEventID(ctx context.Context, eventID string) (*models.Event, error) {
	var event models.Event
	err := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		First(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// FindOrCreate 查找赛事，不存在则创建（成员回调可能重放，幂等）
func (r *eventRepo) FindOrCreate(ctx context.Context, event *models.Event) error {
	return r.db.WithContext(ctx).
		Where("event_id = ?", event.EventID).
		FirstOrCreate(event).Error
}

// List 分页列出赛事
func (r *eventRepo) List(ctx context.Context, p *Pagination) ([]*models.Event, error) {
	var events []*models.Event

	r.db.WithContext(ctx).
		Model(&models.Event{}).
		Count(&p.Total)

	err := r.db.WithContext(ctx).
		Order("created_at desc").
		Scopes(Paginate(p)).
		Find(&events).Error

	return events, err
}

// Delete 删除赛事（级联删除下属比赛、对局与日志）
func (r *eventRepo) Delete(ctx context.Context, eventID string) error {
	return r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Delete(&models.Event{}).Error
}

// WithTx 使用事务
func (r *eventRepo) WithTx(tx *gorm.DB) BaseRepository {
	return &eventRepo{
		BaseRepo: &BaseRepo{db: tx},
	}
}
