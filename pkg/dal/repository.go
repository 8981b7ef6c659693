package dal

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/goadmin/pkg/database"
)

// Repository 通用仓储接口
type Repository[T any] interface {
	Create(ctx context.Context, entity *T) error
	Update(ctx context.Context, entity *T) error
	UpdateFields(ctx context.Context, id uint, fields map[string]interface{}) error
	Delete(ctx context.Context, id uint) error
	FindByID(ctx context.Context, id uint, opts ...QueryOption) (*T, error)
	FindOne(ctx context.Context, conditions map[string]interface{}, opts ...QueryOption) (*T, error)
	FindAll(ctx context.Context, conditions map[string]interface{}, opts ...QueryOption) ([]T, error)
	Count(ctx context.Context, conditions map[string]interface{}) (int64, error)
	Exists(ctx context.Context, conditions map[string]interface{}) (bool, error)
	Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error
	DB() *gorm.DB
}

// BaseRepository 基础仓储实现，每次查询带超时
type BaseRepository[T any] struct {
	db      *gorm.DB
	timeout time.Duration
}

// NewBaseRepository 使用指定DB创建基础仓储，timeout<=0 时不设超时
func NewBaseRepository[T any](db *gorm.DB, timeout time.Duration) *BaseRepository[T] {
	return &BaseRepository[T]{
		db:      db,
		timeout: timeout,
	}
}

// DB 获取数据库实例
func (r *BaseRepository[T]) DB() *gorm.DB {
	return r.db
}

// Session 带超时的会话，调用方负责 cancel
func (r *BaseRepository[T]) Session(ctx context.Context) (*gorm.DB, context.CancelFunc) {
	return database.WithTimeout(ctx, r.db, r.timeout)
}

// Create 创建实体
func (r *BaseRepository[T]) Create(ctx context.Context, entity *T) error {
	db, cancel := r.Session(ctx)
	defer cancel()
	return db.Create(entity).Error
}

// Update 更新实体
func (r *BaseRepository[T]) Update(ctx context.Context, entity *T) error {
	db, cancel := r.Session(ctx)
	defer cancel()
	return db.Save(entity).Error
}

// UpdateFields 更新指定字段
func (r *BaseRepository[T]) UpdateFields(ctx context.Context, id uint, fields map[string]interface{}) error {
	var entity T
	db, cancel := r.Session(ctx)
	defer cancel()
	return db.Model(&entity).Where("id = ?", id).Updates(fields).Error
}

// Delete 删除实体(软删除)
func (r *BaseRepository[T]) Delete(ctx context.Context, id uint) error {
	var entity T
	db, cancel := r.Session(ctx)
	defer cancel()
	return db.Where("id = ?", id).Delete(&entity).Error
}

// FindByID 根据ID查找，不存在时返回 nil, nil
func (r *BaseRepository[T]) FindByID(ctx context.Context, id uint, opts ...QueryOption) (*T, error) {
	return r.FindOne(ctx, map[string]interface{}{"id": id}, opts...)
}

// FindOne 查找单个实体
func (r *BaseRepository[T]) FindOne(ctx context.Context, conditions map[string]interface{}, opts ...QueryOption) (*T, error) {
	var entity T
	db, cancel := r.Session(ctx)
	defer cancel()

	for _, opt := range opts {
		db = opt(db)
	}

	if err := db.Where(conditions).First(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entity, nil
}

// FindAll 查找所有符合条件的实体
func (r *BaseRepository[T]) FindAll(ctx context.Context, conditions map[string]interface{}, opts ...QueryOption) ([]T, error) {
	var entities []T
	db, cancel := r.Session(ctx)
	defer cancel()

	for _, opt := range opts {
		db = opt(db)
	}
	if len(conditions) > 0 {
		db = db.Where(conditions)
	}

	if err := db.Find(&entities).Error; err != nil {
		return nil, err
	}
	return entities, nil
}

// Count 统计数量
func (r *BaseRepository[T]) Count(ctx context.Context, conditions map[string]interface{}) (int64, error) {
	var count int64
	var entity T

	db, cancel := r.Session(ctx)
	defer cancel()

	db = db.Model(&entity)
	if len(conditions) > 0 {
		db = db.Where(conditions)
	}

	if err := db.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Exists 检查是否存在
func (r *BaseRepository[T]) Exists(ctx context.Context, conditions map[string]interface{}) (bool, error) {
	count, err := r.Count(ctx, conditions)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Transaction 执行事务
func (r *BaseRepository[T]) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	db, cancel := r.Session(ctx)
	defer cancel()
	return db.Transaction(fn)
}
