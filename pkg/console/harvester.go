package console

import (
	"fmt"
	"time"
)

// DefaultHarvestCommand 未配置平台采集命令时的默认值
const DefaultHarvestCommand = "show running-config"

// Harvest 采集设备运行配置全文
// 反复应答分页提示直到出现真实提示符；续发次数达到maxPages上限时返回
// 已捕获的部分文本并置Truncated标记（部分配置仍有价值，不作为失败）。
func (s *Session) Harvest(command string, maxPages int, timeout time.Duration) (*HarvestResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st := s.State(); st != StateReady {
		return nil, NewError(KindSessionFailed, fmt.Sprintf("session %s is %s, not ready", s.id, st))
	}
	if command == "" {
		command = DefaultHarvestCommand
	}
	if maxPages <= 0 {
		maxPages = s.opts.MaxPages
	}
	if timeout <= 0 {
		timeout = s.opts.ReadTimeout
	}

	s.setState(StateExecuting)
	defer func() {
		if s.State() == StateExecuting {
			s.setState(StateReady)
		}
	}()

	s.drain()
	start := time.Now()

	if err := s.write(command + "\r\n"); err != nil {
		return nil, err
	}

	raw, pages, truncated, err := s.capture(timeout, maxPages)
	if err != nil {
		// 未解析的提示符竞态：会话信任度降级，不可复用
		if IsKind(err, KindPromptTimeout) {
			s.fail()
		}
		return nil, err
	}

	return &HarvestResult{
		Command:    command,
		Text:       s.cleanOutput(command, raw),
		Pages:      pages,
		Truncated:  truncated,
		Elapsed:    time.Since(start),
		CapturedAt: time.Now(),
	}, nil
}
