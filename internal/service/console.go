package service

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gns3consolepro/gns3consolepro/internal/config"
	"github.com/gns3consolepro/gns3consolepro/internal/database"
	"github.com/gns3consolepro/gns3consolepro/internal/model"
	"github.com/gns3consolepro/gns3consolepro/internal/registry"
	"github.com/gns3consolepro/gns3consolepro/internal/util"
	"github.com/gns3consolepro/gns3consolepro/pkg/console"
	"github.com/gns3consolepro/gns3consolepro/pkg/logger"
)

// ConsoleService 控制台自动化服务
// 每个设备至多缓存一条会话；会话为单持有者模型，Run/Harvest 在 pkg/console
// 内部通过会话互斥锁串行化，互不相关的设备并发互不影响。
type ConsoleService struct {
	config  *config.Config
	store   registry.Store
	archive *ArchiveWriter

	mutex    sync.Mutex
	sessions map[string]*console.Session
	locks    map[string]*sync.Mutex
	running  bool
	stopChan chan struct{}
}

// ExecuteRequest 命令执行请求
type ExecuteRequest struct {
	TaskID   string   `json:"task_id,omitempty"`
	Device   string   `json:"device"`
	Commands []string `json:"commands"`
	Timeout  int      `json:"timeout,omitempty"` // 单命令超时（秒）
}

// ExecuteResponse 命令执行响应
type ExecuteResponse struct {
	TaskID     string                  `json:"task_id"`
	Device     string                  `json:"device"`
	Success    bool                    `json:"success"`
	Results    []console.CommandResult `json:"results"`
	DurationMS int64                   `json:"duration_ms"`
	Timestamp  time.Time               `json:"timestamp"`
}

// HarvestRequest 配置采集请求
type HarvestRequest struct {
	TaskID   string `json:"task_id,omitempty"`
	Device   string `json:"device"`
	Command  string `json:"command,omitempty"`
	MaxPages int    `json:"max_pages,omitempty"`
	Timeout  int    `json:"timeout,omitempty"` // 整体捕获超时（秒）
}

// HarvestResponse 配置采集响应
type HarvestResponse struct {
	TaskID     string    `json:"task_id"`
	Device     string    `json:"device"`
	Command    string    `json:"command"`
	Config     string    `json:"config"`
	Pages      int       `json:"pages"`
	Truncated  bool      `json:"truncated"`
	Archived   string    `json:"archived,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	CapturedAt time.Time `json:"captured_at"`
}

// NewConsoleService 创建控制台服务
func NewConsoleService(cfg *config.Config, store registry.Store, archive *ArchiveWriter) *ConsoleService {
	return &ConsoleService{
		config:   cfg,
		store:    store,
		archive:  archive,
		sessions: make(map[string]*console.Session),
		locks:    make(map[string]*sync.Mutex),
		stopChan: make(chan struct{}),
	}
}

// Start 启动服务与会话清理协程
func (s *ConsoleService) Start() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.running {
		return fmt.Errorf("console service already running")
	}
	s.running = true
	go s.reap()
	logger.Info("Console service started")
	return nil
}

// Stop 停止服务并关闭全部会话
func (s *ConsoleService) Stop() {
	s.mutex.Lock()
	if s.running {
		s.running = false
		close(s.stopChan)
	}
	sessions := s.sessions
	s.sessions = make(map[string]*console.Session)
	s.mutex.Unlock()

	for name, sess := range sessions {
		_ = sess.Close()
		logger.Debug("Console session closed", "device", name)
	}
	logger.Info("Console service stopped")
}

// reap 周期清理已关闭/失效的会话条目
func (s *ConsoleService) reap() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.mutex.Lock()
			for name, sess := range s.sessions {
				st := sess.State()
				if st == console.StateClosed || st == console.StateFailed {
					delete(s.sessions, name)
				}
			}
			s.mutex.Unlock()
		}
	}
}

// Execute 对设备按序执行命令
func (s *ConsoleService) Execute(req *ExecuteRequest) (*ExecuteResponse, error) {
	if req.TaskID == "" {
		req.TaskID = uuid.NewString()
	}
	start := time.Now()

	entry, err := s.resolve(req.Device)
	if err != nil {
		return nil, err
	}
	sess, err := s.session(entry)
	if err != nil {
		return nil, err
	}

	perCommand := time.Duration(req.Timeout) * time.Second
	results, err := sess.Run(req.Commands, perCommand)
	if err != nil {
		s.evict(entry.Name, sess)
		return nil, err
	}

	success := true
	for i := range results {
		// 本地化固件的横幅可能是GBK/Big5编码
		results[i].Output = util.EnsureUTF8(results[i].Output)
		logger.DebugConsoleOutput(results[i].Command, results[i].Output, 5)
		if !results[i].Success {
			success = false
		}
	}
	if sess.State() == console.StateFailed {
		s.evict(entry.Name, sess)
	}

	logger.Info("Console execute finished",
		"task_id", req.TaskID, "device", entry.Name,
		"commands", len(req.Commands), "success", success)

	return &ExecuteResponse{
		TaskID:     req.TaskID,
		Device:     entry.Name,
		Success:    success,
		Results:    results,
		DurationMS: time.Since(start).Milliseconds(),
		Timestamp:  time.Now(),
	}, nil
}

// Harvest 采集设备运行配置
func (s *ConsoleService) Harvest(req *HarvestRequest) (*HarvestResponse, error) {
	if req.TaskID == "" {
		req.TaskID = uuid.NewString()
	}
	start := time.Now()

	entry, err := s.resolve(req.Device)
	if err != nil {
		return nil, err
	}
	sess, err := s.session(entry)
	if err != nil {
		return nil, err
	}

	defaults := s.platformDefaults(entry.Platform)

	// 平台前置命令（如进入特权模式、关闭分页）失败不阻断采集
	if len(defaults.PreHarvestCommands) > 0 {
		if pre, err := sess.Run(defaults.PreHarvestCommands, 0); err == nil {
			for _, r := range pre {
				if !r.Success {
					logger.Warn("Pre-harvest command failed", "device", entry.Name, "command", r.Command, "error", r.Error)
				}
			}
		} else {
			s.evict(entry.Name, sess)
			return nil, err
		}
	}

	command := req.Command
	if command == "" {
		command = defaults.HarvestCommand
	}
	maxPages := req.MaxPages
	if maxPages <= 0 {
		maxPages = s.config.Console.MaxPages
	}

	result, err := sess.Harvest(command, maxPages, time.Duration(req.Timeout)*time.Second)
	if err != nil {
		s.evict(entry.Name, sess)
		return nil, err
	}
	result.Device = entry.Name
	result.Text = util.EnsureUTF8(result.Text)

	resp := &HarvestResponse{
		TaskID:     req.TaskID,
		Device:     entry.Name,
		Command:    result.Command,
		Config:     result.Text,
		Pages:      result.Pages,
		Truncated:  result.Truncated,
		DurationMS: time.Since(start).Milliseconds(),
		CapturedAt: result.CapturedAt,
	}

	// 归档为尽力而为：失败只告警，不影响采集结果返回
	if s.archive != nil {
		location, backend, archErr := s.archive.Write(entry.Name, result)
		if archErr != nil {
			logger.Warn("Harvest archive failed", "device", entry.Name, "error", archErr)
		} else {
			resp.Archived = location
			s.recordHarvest(req.TaskID, entry.Name, result, location, backend)
		}
	}

	logger.Info("Config harvest finished",
		"task_id", req.TaskID, "device", entry.Name,
		"bytes", len(result.Text), "pages", result.Pages, "truncated", result.Truncated)
	return resp, nil
}

// recordHarvest 在SQLite中记录归档索引（数据库未初始化时跳过）
func (s *ConsoleService) recordHarvest(taskID, device string, result *console.HarvestResult, location, backend string) {
	db := database.GetDB()
	if db == nil {
		return
	}
	record := &model.HarvestRecord{
		ID:         taskID,
		DeviceName: device,
		Command:    result.Command,
		Location:   location,
		Backend:    backend,
		Bytes:      len(result.Text),
		Pages:      result.Pages,
		Truncated:  result.Truncated,
		CapturedAt: result.CapturedAt,
	}
	if err := db.Create(record).Error; err != nil {
		logger.Warn("Failed to record harvest index", "device", device, "error", err)
	}
}

// resolve 通过注册表解析设备名
func (s *ConsoleService) resolve(name string) (*model.DeviceEntry, error) {
	if strings.TrimSpace(name) == "" {
		return nil, console.NewError(console.KindNotFound, "device name is required")
	}
	entry, err := s.store.Get(name)
	if err != nil {
		return nil, console.WrapError(console.KindNotFound, "resolve device "+name, err)
	}
	return entry, nil
}

// session 获取或新建设备会话；同名设备的开启过程串行化
func (s *ConsoleService) session(entry *model.DeviceEntry) (*console.Session, error) {
	lock := s.deviceLock(entry.Name)
	lock.Lock()
	defer lock.Unlock()

	s.mutex.Lock()
	existing := s.sessions[entry.Name]
	s.mutex.Unlock()

	if existing != nil {
		if existing.State() == console.StateReady {
			return existing, nil
		}
		_ = existing.Close()
	}

	sess, err := console.Open(console.Endpoint{
		Host:     entry.Host,
		Port:     entry.Port,
		Protocol: entry.Protocol,
		Username: entry.Username,
		Password: entry.Password,
	}, s.sessionOptions(entry))
	if err != nil {
		logger.Error("Failed to open console session",
			"device", entry.Name, "host", entry.Host, "port", entry.Port,
			"kind", string(console.KindOf(err)), "error", err)
		return nil, err
	}

	logger.Info("Console session opened",
		"device", entry.Name, "session_id", sess.ID(), "prompt", sess.Prompt())

	s.mutex.Lock()
	s.sessions[entry.Name] = sess
	s.mutex.Unlock()
	return sess, nil
}

// evict 从缓存移除会话并关闭
func (s *ConsoleService) evict(name string, sess *console.Session) {
	s.mutex.Lock()
	if s.sessions[name] == sess {
		delete(s.sessions, name)
	}
	s.mutex.Unlock()
	_ = sess.Close()
}

func (s *ConsoleService) deviceLock(name string) *sync.Mutex {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	lock, ok := s.locks[name]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[name] = lock
	}
	return lock
}

// sessionOptions 组装会话参数：全局配置 + 平台默认 + 设备级覆盖
func (s *ConsoleService) sessionOptions(entry *model.DeviceEntry) console.Options {
	cc := s.config.Console
	defaults := s.platformDefaults(entry.Platform)
	return console.Options{
		ConnectTimeout: cc.ConnectTimeout,
		ReadTimeout:    cc.ReadTimeout,
		Quiescence:     cc.Quiescence,
		IdleTimeout:    cc.IdleTimeout,
		MaxPages:       cc.MaxPages,
		ContinueKey:    defaults.ContinueKey,
		PromptPattern:  entry.PromptPattern,
		PromptSuffixes: defaults.PromptSuffixes,
		PageMarkers:    defaults.PageMarkers,
		ErrorHints:     defaults.ErrorHints,
	}
}

// SessionStates 当前缓存会话的状态快照（运维接口使用）
func (s *ConsoleService) SessionStates() map[string]string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	out := make(map[string]string, len(s.sessions))
	for name, sess := range s.sessions {
		out[name] = sess.State().String()
	}
	return out
}
