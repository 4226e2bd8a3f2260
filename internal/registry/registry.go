package registry

import (
	"errors"

	"github.com/gns3consolepro/gns3consolepro/internal/model"
)

// ErrNotFound 注册表中不存在该设备名
var ErrNotFound = errors.New("device not found in registry")

// Store 设备注册表
// 注册表是跨会话共享的进程级状态：首次使用时加载，每次变更时落盘。
// 通过接口暴露以便替换后端（单文件JSON或嵌入式SQLite），会话逻辑不感知。
type Store interface {
	// Get 按名称查找条目
	Get(name string) (*model.DeviceEntry, error)
	// Put 按名称插入或覆盖条目
	Put(entry *model.DeviceEntry) error
	// Delete 删除条目
	Delete(name string) error
	// List 返回按名称排序的全部条目
	List() ([]model.DeviceEntry, error)
}
