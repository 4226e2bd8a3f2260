package registry

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/gns3consolepro/gns3consolepro/internal/model"
)

// SQLiteStore 嵌入式SQLite注册表后端
// 与FileStore同契约；多实例或条目较多的部署选用。
type SQLiteStore struct {
	db *gorm.DB
}

// NewSQLiteStore 创建SQLite注册表
func NewSQLiteStore(db *gorm.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Get 按名称查找条目
func (s *SQLiteStore) Get(name string) (*model.DeviceEntry, error) {
	var entry model.DeviceEntry
	err := s.db.Where("name = ?", name).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("failed to query device %s: %w", name, err)
	}
	return &entry, nil
}

// Put 按名称插入或覆盖条目
func (s *SQLiteStore) Put(entry *model.DeviceEntry) error {
	entry.Normalize()
	if err := entry.Validate(); err != nil {
		return err
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"host", "port", "protocol", "platform", "username", "password", "prompt_pattern", "updated_at",
		}),
	}).Create(entry).Error
	if err != nil {
		return fmt.Errorf("failed to upsert device %s: %w", entry.Name, err)
	}
	return nil
}

// Delete 删除条目
func (s *SQLiteStore) Delete(name string) error {
	result := s.db.Where("name = ?", name).Delete(&model.DeviceEntry{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete device %s: %w", name, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return nil
}

// List 返回按名称排序的全部条目
func (s *SQLiteStore) List() ([]model.DeviceEntry, error) {
	var entries []model.DeviceEntry
	if err := s.db.Order("name asc").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return entries, nil
}
