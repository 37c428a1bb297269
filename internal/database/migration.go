package database

import (
	"fmt"

	"github.com/videre-project/Tracker-sub000/internal/logger"
	"github.com/videre-project/Tracker-sub000/internal/models"
	"go.uber.org/zap"
)

// AutoMigrate 自动迁移数据库表结构
func AutoMigrate() error {
	if DB == nil {
		return fmt.Errorf("数据库未初始化")
	}

	// 迁移顺序遵循外键依赖：父表在前
	migrationModels := []interface{}{
		&models.Event{},
		&models.Match{},
		&models.Game{},
		&models.GameLogEntry{},
	}

	for _, model := range migrationModels {
		if err := DB.AutoMigrate(model); err != nil {
			logger.Error("表迁移失败",
				zap.String("model", fmt.Sprintf("%T", model)),
				zap.Error(err))
			return fmt.Errorf("迁移 %T 失败: %w", model, err)
		}
	}

	// SQLite下显式开启外键约束，否则级联删除不生效
	if DB.Dialector.Name() == "sqlite" {
		if err := DB.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
			logger.Warn("开启外键约束失败", zap.Error(err))
		}
	}

	logger.Info("数据库迁移完成", zap.Int("tables", len(migrationModels)))
	return nil
}
