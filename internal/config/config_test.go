package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoadDefaults 测试缺省字段的默认值填充
func TestLoadDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 8088\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8088, cfg.Server.Port, "显式配置的值生效")
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)

	// 控制台时序默认值
	assert.Equal(t, 10*time.Second, cfg.Console.ConnectTimeout)
	assert.Equal(t, 30*time.Second, cfg.Console.ReadTimeout)
	assert.Equal(t, 300*time.Millisecond, cfg.Console.Quiescence)
	assert.Equal(t, 120*time.Second, cfg.Console.IdleTimeout)
	assert.Equal(t, 500, cfg.Console.MaxPages)
	assert.Equal(t, " ", cfg.Console.ContinueKey)

	assert.Equal(t, "file", cfg.Registry.Backend)
	assert.Equal(t, "data/devices.json", cfg.Registry.Path)
	assert.False(t, cfg.Archive.Enabled)
	assert.Equal(t, "info", cfg.Log.Level)
}

// TestLoadDeviceDefaults 测试平台交互参数解析
func TestLoadDeviceDefaults(t *testing.T) {
	content := `
console:
  quiescence: "150ms"
  device_defaults:
    cisco_ios:
      prompt_suffixes: [">", "#"]
      pre_harvest_commands: ["terminal length 0"]
    huawei:
      harvest_command: "display current-configuration"
      continue_key: "\x20"
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 150*time.Millisecond, cfg.Console.Quiescence)

	cisco, ok := cfg.Console.DeviceDefaults["cisco_ios"]
	require.True(t, ok)
	assert.Equal(t, []string{">", "#"}, cisco.PromptSuffixes)
	assert.Equal(t, []string{"terminal length 0"}, cisco.PreHarvestCommands)

	huawei, ok := cfg.Console.DeviceDefaults["huawei"]
	require.True(t, ok)
	assert.Equal(t, "display current-configuration", huawei.HarvestCommand)

	// Get 返回最近一次加载的全局配置
	assert.Same(t, cfg, Get())
}

// TestLoadMissingFile 测试配置文件缺失报错
func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
