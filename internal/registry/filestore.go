package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gns3consolepro/gns3consolepro/internal/model"
)

// FileStore 单文件JSON注册表
// 文件键为设备名（原 helper/devices.json 格式的超集）；整体读入、整体重写，
// 写入先落临时文件再rename，避免部分写损坏。进程内单写多读，不提供跨进程协调。
type FileStore struct {
	path    string
	mu      sync.RWMutex
	loaded  bool
	entries map[string]model.DeviceEntry
}

// NewFileStore 创建文件注册表
func NewFileStore(path string) *FileStore {
	return &FileStore{
		path:    path,
		entries: make(map[string]model.DeviceEntry),
	}
}

// Get 按名称查找条目
func (s *FileStore) Get(name string) (*model.DeviceEntry, error) {
	s.mu.RLock()
	if s.loaded {
		defer s.mu.RUnlock()
		return s.lookup(name)
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}
	return s.lookup(name)
}

func (s *FileStore) lookup(name string) (*model.DeviceEntry, error) {
	entry, ok := s.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	copied := entry
	return &copied, nil
}

// Put 插入或覆盖条目并立即落盘
func (s *FileStore) Put(entry *model.DeviceEntry) error {
	entry.Normalize()
	if err := entry.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return err
	}
	s.entries[entry.Name] = *entry
	return s.flush()
}

// Delete 删除条目并立即落盘
func (s *FileStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return err
	}
	if _, ok := s.entries[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	delete(s.entries, name)
	return s.flush()
}

// List 返回按名称排序的全部条目
func (s *FileStore) List() ([]model.DeviceEntry, error) {
	s.mu.RLock()
	if s.loaded {
		defer s.mu.RUnlock()
		return s.snapshot(), nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}
	return s.snapshot(), nil
}

func (s *FileStore) snapshot() []model.DeviceEntry {
	out := make([]model.DeviceEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ensureLoaded 首次使用时加载；文件不存在视为空注册表
func (s *FileStore) ensureLoaded() error {
	if s.loaded {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.loaded = true
			return nil
		}
		return fmt.Errorf("failed to read registry file: %w", err)
	}
	entries := make(map[string]model.DeviceEntry)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &entries); err != nil {
			return fmt.Errorf("failed to parse registry file %s: %w", s.path, err)
		}
	}
	// 键与条目name保持一致
	for name, entry := range entries {
		entry.Name = name
		entry.Normalize()
		entries[name] = entry
	}
	s.entries = entries
	s.loaded = true
	return nil
}

// flush 整体重写：临时文件+rename原子替换
func (s *FileStore) flush() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}

	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode registry: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".devices-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp registry file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp registry file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp registry file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace registry file: %w", err)
	}
	return nil
}
