package console

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMatcherAtPrompt 测试提示符末行判定
func TestMatcherAtPrompt(t *testing.T) {
	m, err := NewMatcher("", DefaultPromptSuffixes, DefaultPageMarkers, DefaultErrorHints)
	require.NoError(t, err)

	// 常见厂商提示符
	assert.True(t, m.AtPrompt("Router>"))
	assert.True(t, m.AtPrompt("Router#"))
	assert.True(t, m.AtPrompt("[Huawei]"))
	assert.True(t, m.AtPrompt("Switch# "), "后缀后的空白不影响判定")

	// 非提示符
	assert.False(t, m.AtPrompt(""))
	assert.False(t, m.AtPrompt("Building configuration..."))
	assert.False(t, m.AtPrompt("   "))

	// 分页提示不得误判为提示符
	assert.False(t, m.AtPrompt("--More--"))
	assert.False(t, m.AtPrompt(" --More-- "))
}

// TestMatcherCustomPattern 测试设备级自定义提示符正则
func TestMatcherCustomPattern(t *testing.T) {
	m, err := NewMatcher(`^R\d+[>#]$`, DefaultPromptSuffixes, nil, nil)
	require.NoError(t, err)

	assert.True(t, m.AtPrompt("R1>"))
	assert.True(t, m.AtPrompt("R12#"))
	// 自定义正则优先于后缀集：后缀匹配但正则不匹配的行不算提示符
	assert.False(t, m.AtPrompt("Router>"))

	_, err = NewMatcher(`[invalid(`, nil, nil, nil)
	assert.Error(t, err, "非法正则应该报错")
}

// TestMatcherSanitize 测试ANSI序列与退格清洗
func TestMatcherSanitize(t *testing.T) {
	m, err := NewMatcher("", DefaultPromptSuffixes, DefaultPageMarkers, nil)
	require.NoError(t, err)

	// ANSI着色后的提示符
	assert.True(t, m.AtPrompt("\x1b[32mRouter#\x1b[0m"))
	// 设备用退格擦除分页提示后的残留
	assert.Equal(t, "abc", sanitizeLine("abcd\x08"))
	assert.Equal(t, "", sanitizeLine("\x08\x08"))
}

// TestMatcherPageMarker 测试分页提示识别
func TestMatcherPageMarker(t *testing.T) {
	m, err := NewMatcher("", DefaultPromptSuffixes, DefaultPageMarkers, nil)
	require.NoError(t, err)

	assert.True(t, m.PageMarker("--More--"))
	assert.True(t, m.PageMarker(" -- More -- "))
	assert.True(t, m.PageMarker("Press any key to continue"))
	assert.False(t, m.PageMarker("interface GigabitEthernet0/0"))
}

// TestMatcherErrorHint 测试设备错误提示识别
func TestMatcherErrorHint(t *testing.T) {
	m, err := NewMatcher("", DefaultPromptSuffixes, nil, DefaultErrorHints)
	require.NoError(t, err)

	assert.True(t, m.HasErrorHint("% Invalid input detected at '^' marker."))
	assert.True(t, m.HasErrorHint("Error: Unrecognized command found"))
	assert.False(t, m.HasErrorHint("Cisco IOS Software, Version 15.2"))
}

// TestMatcherStripPageMarkers 测试分页残留剥离
func TestMatcherStripPageMarkers(t *testing.T) {
	m, err := NewMatcher("", DefaultPromptSuffixes, DefaultPageMarkers, nil)
	require.NoError(t, err)

	text := "line one\n--More--\nline two\nline three --More--\nline four"
	out := m.StripPageMarkers(text)
	assert.NotContains(t, out, "--More--")
	assert.Contains(t, out, "line one")
	assert.Contains(t, out, "line two")
	assert.Contains(t, out, "line three")
	assert.Contains(t, out, "line four")
}

// TestLoginPromptDetection 测试登录交互提示识别
func TestLoginPromptDetection(t *testing.T) {
	m, err := NewMatcher("", DefaultPromptSuffixes, nil, nil)
	require.NoError(t, err)

	assert.True(t, m.AtLoginPrompt("Username: "))
	assert.True(t, m.AtLoginPrompt("login:"))
	assert.False(t, m.AtLoginPrompt("Router>"))

	assert.True(t, m.AtPasswordPrompt("Password: "))
	assert.False(t, m.AtPasswordPrompt("Username: "))

	assert.True(t, m.AuthRejected("% Authentication failed"))
	assert.True(t, m.AuthRejected("Access denied"))
	assert.False(t, m.AuthRejected("Welcome to the router"))
}

// TestTailLine 测试缓冲区末行提取
func TestTailLine(t *testing.T) {
	assert.Equal(t, "Router#", tailLine("banner\r\nRouter#"))
	assert.Equal(t, "Router#", tailLine("Router#"))
	assert.Equal(t, "", tailLine("output\n"))
}
