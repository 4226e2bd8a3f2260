package console

import (
	"fmt"
	"regexp"
	"strings"
)

// 登录交互与认证失败的通用模式（Cisco/Huawei/H3C 风格）
var (
	loginPromptRe    = regexp.MustCompile(`(?i)(username|login)\s*:\s*$`)
	passwordPromptRe = regexp.MustCompile(`(?i)password\s*:\s*$`)
	authRejectRe     = regexp.MustCompile(`(?i)(authentication failed|login invalid|access denied|bad passwords|bad secrets|permission denied)`)
)

// Matcher 提示符匹配器
// 将"是否到达提示符"建模为显式判断：缓冲区末行匹配(自定义正则 或 后缀集)，
// 配合会话层的静默窗口共同构成提示符到达的判定条件。
type Matcher struct {
	pattern     *regexp.Regexp
	suffixes    []string
	pageMarkers []string
	errorHints  []string
}

// NewMatcher 创建匹配器；custom 为设备级自定义提示符正则（可为空）
func NewMatcher(custom string, suffixes, pageMarkers, errorHints []string) (*Matcher, error) {
	m := &Matcher{}
	if strings.TrimSpace(custom) != "" {
		re, err := regexp.Compile(custom)
		if err != nil {
			return nil, fmt.Errorf("invalid prompt pattern %q: %w", custom, err)
		}
		m.pattern = re
	}
	for _, s := range suffixes {
		if s != "" {
			m.suffixes = append(m.suffixes, s)
		}
	}
	for _, p := range pageMarkers {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			m.pageMarkers = append(m.pageMarkers, p)
		}
	}
	for _, h := range errorHints {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			m.errorHints = append(m.errorHints, h)
		}
	}
	return m, nil
}

// AtPrompt 判断缓冲区尾部是否停在提示符上
// 要求末行（行边界之后）清洗后非空，且匹配自定义正则或以已知后缀结尾；
// 分页提示不视为提示符。
func (m *Matcher) AtPrompt(tail string) bool {
	line := strings.TrimRight(sanitizeLine(tail), " \t")
	if line == "" {
		return false
	}
	if m.isPageMarker(line) {
		return false
	}
	if m.pattern != nil {
		return m.pattern.MatchString(line)
	}
	for _, suf := range m.suffixes {
		if strings.HasSuffix(line, suf) {
			return true
		}
	}
	return false
}

// AtLoginPrompt 判断尾部是否为用户名登录提示
func (m *Matcher) AtLoginPrompt(tail string) bool {
	return loginPromptRe.MatchString(strings.TrimRight(sanitizeLine(tail), " \t"))
}

// AtPasswordPrompt 判断尾部是否为密码提示
func (m *Matcher) AtPasswordPrompt(tail string) bool {
	return passwordPromptRe.MatchString(strings.TrimRight(sanitizeLine(tail), " \t"))
}

// AuthRejected 判断输出中是否出现认证拒绝横幅
func (m *Matcher) AuthRejected(text string) bool {
	return authRejectRe.MatchString(text)
}

// PageMarker 判断尾部是否停在分页提示上
func (m *Matcher) PageMarker(tail string) bool {
	return m.isPageMarker(sanitizeLine(tail))
}

func (m *Matcher) isPageMarker(line string) bool {
	lower := strings.ToLower(strings.TrimSpace(line))
	if lower == "" {
		return false
	}
	for _, marker := range m.pageMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// HasErrorHint 扫描命令输出中的设备错误提示（如 "% Invalid input"）
func (m *Matcher) HasErrorHint(output string) bool {
	lower := strings.ToLower(output)
	for _, hint := range m.errorHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

// StripPageMarkers 从捕获文本中移除分页提示行及其残留
func (m *Matcher) StripPageMarkers(text string) string {
	if len(m.pageMarkers) == 0 {
		return text
	}
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		clean := sanitizeLine(line)
		if m.isPageMarker(clean) {
			// 分页提示与正文同行时仅移除提示本身
			lower := strings.ToLower(clean)
			kept := clean
			for _, marker := range m.pageMarkers {
				if idx := strings.Index(lower, marker); idx >= 0 {
					kept = strings.TrimRight(clean[:idx], " \t")
					break
				}
			}
			if kept == "" {
				continue
			}
			out = append(out, kept)
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// sanitizeLine 清洗行内容：移除ANSI转义序列、退格与不可见控制符，
// 便于稳定的提示符检测与输出比对。
func sanitizeLine(s string) string {
	b := make([]byte, 0, len(s))
	skip := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if skip {
			// CSI 序列以字母结尾
			if (ch >= 'A' && ch <= 'Z') || (ch >= 'a' && ch <= 'z') {
				skip = false
			}
			continue
		}
		if ch == 0x1b { // ESC
			skip = true
			continue
		}
		if ch == 0x08 { // 退格：分页提示被设备用退格擦除时的残留
			if len(b) > 0 {
				b = b[:len(b)-1]
			}
			continue
		}
		if ch < 0x20 && ch != '\t' {
			continue
		}
		b = append(b, ch)
	}
	return string(b)
}

// tailLine 取缓冲区最后一个换行之后的内容
func tailLine(buf string) string {
	if idx := strings.LastIndexByte(buf, '\n'); idx >= 0 {
		return buf[idx+1:]
	}
	return buf
}
