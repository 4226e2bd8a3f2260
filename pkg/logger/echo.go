package logger

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// OutputLines 表示控制台输出的头部和尾部行
type OutputLines struct {
	HeadLines []string `json:"head_lines"`
	TailLines []string `json:"tail_lines"`
}

// ParseOutputLines 解析控制台输出，提取头部和尾部行
// maxLines: head和tail各自的最大行数
func ParseOutputLines(output string, maxLines int) OutputLines {
	if maxLines <= 0 {
		maxLines = 5
	}

	// 统一换行符处理
	output = strings.ReplaceAll(output, "\r\n", "\n")
	output = strings.ReplaceAll(output, "\r", "\n")

	lines := strings.Split(output, "\n")
	total := len(lines)

	var result OutputLines
	if total == 0 {
		return result
	}

	headCount := maxLines
	if headCount > total {
		headCount = total
	}
	result.HeadLines = make([]string, headCount)
	copy(result.HeadLines, lines[:headCount])

	// 总行数不超过maxLines时head与tail相同
	if total <= maxLines {
		result.TailLines = make([]string, len(result.HeadLines))
		copy(result.TailLines, result.HeadLines)
		return result
	}

	result.TailLines = make([]string, maxLines)
	copy(result.TailLines, lines[total-maxLines:])
	return result
}

// FormatOutputLines 格式化输出行为字符串，用于日志记录
func FormatOutputLines(lines OutputLines) string {
	var parts []string

	if len(lines.HeadLines) > 0 {
		parts = append(parts, "head-lines: ["+strings.Join(lines.HeadLines, " ⟩ ")+"]")
	}

	if len(lines.TailLines) > 0 && !equalLines(lines.HeadLines, lines.TailLines) {
		parts = append(parts, "tail-lines: ["+strings.Join(lines.TailLines, " ⟩ ")+"]")
	}

	return strings.Join(parts, ", ")
}

func equalLines(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// DebugConsoleOutput 在debug级别记录命令输出的head/tail-lines
func DebugConsoleOutput(command string, output string, maxLines int) {
	if GetLogger().Level < logrus.DebugLevel {
		return
	}

	lines := ParseOutputLines(output, maxLines)
	if len(lines.HeadLines) == 0 && len(lines.TailLines) == 0 {
		return
	}

	Debugf("Console echo [%s]: %s", command, FormatOutputLines(lines))
}
