package server

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	pkgAuth "github.com/goadmin/pkg/auth"
	"github.com/goadmin/pkg/logger"
	"github.com/goadmin/services/admin/internal/model"
)

// Migrate 迁移全部表
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(model.All()...)
}

// SeedAdmin 无任何用户时创建超级管理员，password 为空时跳过
func SeedAdmin(ctx context.Context, db *gorm.DB, username, password string, multiLogin bool) error {
	if username == "" || password == "" {
		return nil
	}
	if strings.HasPrefix(password, "${") {
		logger.Warn("管理员密码环境变量未设置，跳过创建", zap.String("placeholder", password))
		return nil
	}

	var count int64
	if err := db.WithContext(ctx).Model(&model.User{}).Unscoped().Count(&count).Error; err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return nil
	}

	hash, err := pkgAuth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	admin := &model.User{
		UUID:         uuid.NewString(),
		Username:     username,
		Nickname:     username,
		Password:     hash,
		Status:       model.StatusEnabled,
		IsSuperuser:  true,
		IsStaff:      true,
		IsMultiLogin: multiLogin,
		JoinTime:     time.Now(),
	}
	if err := db.WithContext(ctx).Create(admin).Error; err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	logger.Info("已创建超级管理员", zap.String("username", username))
	return nil
}
