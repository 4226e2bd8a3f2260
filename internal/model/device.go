package model

import (
	"fmt"
	"strings"
	"time"
)

// 控制台协议
const (
	ProtocolTelnet = "telnet"
	ProtocolSSH    = "ssh"
)

// DeviceEntry 设备注册表条目
// name 为注册表内唯一键；host+port 允许重复（同一目标多条目合法但不推荐）。
// 由 BootstrapService 或设备管理接口创建，每次会话打开时读取。
type DeviceEntry struct {
	ID            uint      `json:"-" gorm:"primaryKey"`
	Name          string    `json:"name" gorm:"type:varchar(128);not null;uniqueIndex"`
	Host          string    `json:"host" gorm:"type:varchar(128);not null"`
	Port          int       `json:"port" gorm:"not null"`
	Protocol      string    `json:"protocol" gorm:"type:varchar(16);not null;default:telnet"`
	Platform      string    `json:"platform,omitempty" gorm:"type:varchar(32)"`
	Username      string    `json:"username,omitempty" gorm:"type:varchar(64)"`
	Password      string    `json:"password,omitempty" gorm:"type:varchar(256)"`
	PromptPattern string    `json:"prompt_pattern,omitempty" gorm:"type:varchar(256)"`
	CreatedAt     time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 表名
func (DeviceEntry) TableName() string {
	return "device_entries"
}

// Validate 校验条目字段
func (e *DeviceEntry) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return fmt.Errorf("device name is required")
	}
	if strings.TrimSpace(e.Host) == "" {
		return fmt.Errorf("console host is required")
	}
	if e.Port < 1 || e.Port > 65535 {
		return fmt.Errorf("console port %d out of range 1-65535", e.Port)
	}
	switch strings.ToLower(strings.TrimSpace(e.Protocol)) {
	case "", ProtocolTelnet, ProtocolSSH:
	default:
		return fmt.Errorf("unsupported console protocol %q", e.Protocol)
	}
	return nil
}

// Normalize 填充协议默认值并规整字段
func (e *DeviceEntry) Normalize() {
	e.Name = strings.TrimSpace(e.Name)
	e.Host = strings.TrimSpace(e.Host)
	e.Protocol = strings.ToLower(strings.TrimSpace(e.Protocol))
	if e.Protocol == "" {
		e.Protocol = ProtocolTelnet
	}
	e.Platform = strings.ToLower(strings.TrimSpace(e.Platform))
}

// HarvestRecord 配置采集归档索引
// 归档正文写入本地目录或MinIO，此处仅记录索引与截断标记。
type HarvestRecord struct {
	ID         string    `json:"id" gorm:"primaryKey;type:varchar(64)"`
	DeviceName string    `json:"device_name" gorm:"type:varchar(128);not null;index"`
	Command    string    `json:"command" gorm:"type:varchar(256);not null"`
	Location   string    `json:"location" gorm:"type:varchar(512)"`
	Backend    string    `json:"backend" gorm:"type:varchar(16)"`
	Bytes      int       `json:"bytes" gorm:"not null;default:0"`
	Pages      int       `json:"pages" gorm:"not null;default:0"`
	Truncated  bool      `json:"truncated" gorm:"not null;default:false"`
	CapturedAt time.Time `json:"captured_at"`
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName 表名
func (HarvestRecord) TableName() string {
	return "harvest_records"
}
