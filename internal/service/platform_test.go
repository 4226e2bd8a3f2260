package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gns3consolepro/gns3consolepro/internal/config"
)

// TestPlatformDefaultsBuiltin 测试内置平台默认值
func TestPlatformDefaultsBuiltin(t *testing.T) {
	svc := NewConsoleService(testConfig(), testStore(t), nil)

	cisco := svc.platformDefaults("cisco_ios")
	assert.Equal(t, []string{">", "#"}, cisco.PromptSuffixes)
	assert.Equal(t, "show running-config", cisco.HarvestCommand)
	// 控制台可能处于用户模式，采集前先进特权再关分页
	assert.Equal(t, []string{"enable", "terminal length 0"}, cisco.PreHarvestCommands)

	huawei := svc.platformDefaults("huawei_ce")
	assert.Equal(t, "display current-configuration", huawei.HarvestCommand)
	assert.Contains(t, huawei.PromptSuffixes, "]")

	// 未知平台回退到通用集合
	unknown := svc.platformDefaults("")
	assert.Equal(t, "show running-config", unknown.HarvestCommand)
	assert.NotEmpty(t, unknown.PromptSuffixes)
	assert.NotEmpty(t, unknown.PageMarkers)
	assert.Equal(t, " ", unknown.ContinueKey)
}

// TestPlatformDefaultsCaseInsensitive 测试平台名大小写归一
func TestPlatformDefaultsCaseInsensitive(t *testing.T) {
	svc := NewConsoleService(testConfig(), testStore(t), nil)
	assert.Equal(t, svc.platformDefaults("cisco_ios"), svc.platformDefaults("CISCO_IOS"))
}

// TestPlatformDefaultsConfigOverride 测试配置覆盖与家族键合并
func TestPlatformDefaultsConfigOverride(t *testing.T) {
	cfg := testConfig()
	cfg.Console.DeviceDefaults = map[string]config.PlatformDefaultsConfig{
		"cisco_ios": {
			PromptSuffixes: []string{"#"},
			ContinueKey:    "\r",
		},
		"huawei": {
			HarvestCommand: "display saved-configuration",
		},
	}
	svc := NewConsoleService(cfg, testStore(t), nil)

	cisco := svc.platformDefaults("cisco_ios")
	assert.Equal(t, []string{"#"}, cisco.PromptSuffixes, "配置覆盖内置后缀集")
	assert.Equal(t, "\r", cisco.ContinueKey)
	assert.Contains(t, cisco.PreHarvestCommands, "terminal length 0", "未覆盖的字段保留内置值")

	// huawei_s 未单独配置，合并到家族键 huawei
	hs := svc.platformDefaults("huawei_s")
	assert.Equal(t, "display saved-configuration", hs.HarvestCommand)
}
