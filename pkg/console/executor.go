package console

import (
	"fmt"
	"strings"
	"time"
)

// Run 在会话上按序执行一组CLI命令
// 单条命令失败（超时或设备错误提示）记录在对应结果中，不中断后续命令；
// 出现过提示符超时的会话在批次结束后进入Failed，不再复用。
// 注意：命令可能改变设备运行配置，执行器不具备回滚能力。
func (s *Session) Run(commands []string, perCommandTimeout time.Duration) ([]CommandResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st := s.State(); st != StateReady {
		return nil, NewError(KindSessionFailed, fmt.Sprintf("session %s is %s, not ready", s.id, st))
	}
	if perCommandTimeout <= 0 {
		perCommandTimeout = s.opts.ReadTimeout
	}

	s.setState(StateExecuting)
	defer func() {
		if s.State() == StateExecuting {
			s.setState(StateReady)
		}
	}()

	s.drain()

	results := make([]CommandResult, 0, len(commands))
	promptLost := false

	for _, cmd := range commands {
		start := time.Now()
		result := CommandResult{Command: cmd}

		if s.State() == StateFailed || s.State() == StateClosed {
			result.Error = string(KindSessionFailed) + ": session no longer usable"
			result.Elapsed = time.Since(start)
			results = append(results, result)
			continue
		}

		if err := s.write(cmd + "\r\n"); err != nil {
			result.Error = err.Error()
			result.Elapsed = time.Since(start)
			results = append(results, result)
			continue
		}

		raw, _, _, err := s.capture(perCommandTimeout, s.opts.MaxPages)
		result.Output = s.cleanOutput(cmd, raw)
		result.Elapsed = time.Since(start)

		switch {
		case err != nil:
			result.Error = err.Error()
			if IsKind(err, KindPromptTimeout) {
				promptLost = true
			}
		case s.matcher.HasErrorHint(result.Output):
			result.Error = "device reported command error"
		default:
			result.Success = true
		}
		results = append(results, result)
	}

	// 提示符竞态未解析过的会话信任度已降级，标记失效
	if promptLost {
		s.fail()
	}
	return results, nil
}

// cleanOutput 清洗捕获文本：统一换行、剥离回显命令行、尾部提示符与分页残留
func (s *Session) cleanOutput(cmd, raw string) string {
	text := strings.ReplaceAll(raw, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "")
	text = s.matcher.StripPageMarkers(text)

	lines := strings.Split(text, "\n")
	cmdTrim := strings.TrimSpace(cmd)

	// 剥离开头的命令回显（可能带提示符前缀，也可能因终端宽度被拆行）
	start := 0
	for start < len(lines) && start < 3 {
		clean := strings.TrimSpace(sanitizeLine(lines[start]))
		if clean == "" {
			start++
			continue
		}
		if cmdTrim != "" && (clean == cmdTrim || strings.HasSuffix(clean, cmdTrim) || strings.HasPrefix(cmdTrim, clean)) {
			start++
			continue
		}
		break
	}
	lines = lines[start:]

	// 剥离末尾的提示符行
	end := len(lines)
	for end > 0 {
		clean := strings.TrimSpace(sanitizeLine(lines[end-1]))
		if clean == "" {
			end--
			continue
		}
		if s.matcher.AtPrompt(lines[end-1]) {
			end--
		}
		break
	}
	lines = lines[:end]

	out := make([]string, 0, len(lines))
	for _, line := range lines {
		out = append(out, strings.TrimRight(sanitizeLine(line), " \t"))
	}
	return strings.TrimRight(strings.Join(out, "\n"), "\n")
}
