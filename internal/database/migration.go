package database

import (
	"fmt"
	"strings"

	"github.com/wfunc/loracam/internal/logger"
	"github.com/wfunc/loracam/internal/models"
	"go.uber.org/zap"
)

// 迁移的模型
var migrationModels = []interface{}{
	&models.LinkEvent{},
}

// 额外的组合索引
var extraIndexes = []string{
	"CREATE INDEX IF NOT EXISTS idx_link_events_direction_created ON link_events(direction, created_at)",
	"CREATE INDEX IF NOT EXISTS idx_link_events_session_created ON link_events(session_id, created_at)",
}

// AutoMigrate 自动迁移数据库表结构
func AutoMigrate() error {
	if DB == nil {
		return fmt.Errorf("数据库未初始化")
	}

	// 清理过期锁文件
	CleanupStaleLocks(getDBPath())

	// 获取迁移锁，避免服务与 loractl 同时迁移
	if dbPath := getDBPath(); dbPath != "" {
		lockFile, err := acquireMigrationLock(dbPath)
		if err != nil {
			logger.Error("无法获取迁移锁", zap.Error(err))
			return fmt.Errorf("获取迁移锁失败: %w", err)
		}
		defer releaseMigrationLock(lockFile)
	}

	logger.Info("开始数据库迁移...")

	for _, model := range migrationModels {
		if err := DB.AutoMigrate(model); err != nil {
			logger.Error("迁移失败",
				zap.String("model", fmt.Sprintf("%T", model)),
				zap.Error(err),
			)
			return err
		}
		logger.Debug("迁移成功", zap.String("model", fmt.Sprintf("%T", model)))
	}

	for _, idx := range extraIndexes {
		if err := DB.Exec(idx).Error; err != nil {
			// 忽略索引已存在的错误
			if !strings.Contains(err.Error(), "already exists") {
				logger.Warn("创建索引失败", zap.String("index", idx), zap.Error(err))
			}
		}
	}

	logger.Info("数据库迁移完成")
	return nil
}
