package service

import (
	"strings"

	"github.com/gns3consolepro/gns3consolepro/pkg/console"
)

// platformInteractDefaults 平台交互默认值
type platformInteractDefaults struct {
	PromptSuffixes     []string
	PageMarkers        []string
	ErrorHints         []string
	ContinueKey        string
	HarvestCommand     string
	PreHarvestCommands []string
}

// platformDefaults 返回平台内置交互默认值，并按配置覆盖
// 平台名不区分大小写；huawei_*/h3c_* 未配置时合并到家族键。
func (s *ConsoleService) platformDefaults(platform string) platformInteractDefaults {
	p := strings.TrimSpace(strings.ToLower(platform))

	// 先确定内置平台默认
	base := platformInteractDefaults{
		PromptSuffixes: console.DefaultPromptSuffixes,
		PageMarkers:    console.DefaultPageMarkers,
		ErrorHints:     console.DefaultErrorHints,
		ContinueKey:    s.config.Console.ContinueKey,
		HarvestCommand: console.DefaultHarvestCommand,
	}
	switch p {
	case "cisco_ios", "cisco_iosxe":
		base.PromptSuffixes = []string{">", "#"}
		base.PageMarkers = []string{"--more--", "-- more --", "press any key"}
		base.ErrorHints = []string{"% invalid input", "% incomplete command", "% ambiguous command", "invalid autocommand"}
		// 控制台可能停在用户模式（Router>），先enable再关分页；
		// 无使能口令的实验环境直接放行，失败仅记告警不阻断采集。
		base.PreHarvestCommands = []string{"enable", "terminal length 0"}
	case "huawei_s", "huawei_ce", "huawei_ne":
		base.PromptSuffixes = []string{">", "]"}
		base.PageMarkers = []string{"---- more ----", "--more--", "press any key"}
		base.ErrorHints = []string{"error:", "unrecognized command"}
		base.HarvestCommand = "display current-configuration"
		base.PreHarvestCommands = []string{"screen-length 0 temporary"}
	case "h3c_s", "h3c_sr", "h3c_msr":
		base.PromptSuffixes = []string{">", "]"}
		base.PageMarkers = []string{"---- more ----", "--more--", "press any key"}
		base.ErrorHints = []string{"error:", "unrecognized command", "incomplete command"}
		base.HarvestCommand = "display current-configuration"
		base.PreHarvestCommands = []string{"screen-length disable"}
	}

	// 再从配置进行覆盖（console.device_defaults）
	dd, ok := s.config.Console.DeviceDefaults[p]
	if !ok {
		// 合并家族键
		if strings.HasPrefix(p, "huawei") {
			dd, ok = s.config.Console.DeviceDefaults["huawei"]
		} else if strings.HasPrefix(p, "h3c") {
			dd, ok = s.config.Console.DeviceDefaults["h3c"]
		} else if strings.HasPrefix(p, "cisco") {
			dd, ok = s.config.Console.DeviceDefaults["cisco"]
		}
	}
	if ok {
		if len(dd.PromptSuffixes) > 0 {
			base.PromptSuffixes = dd.PromptSuffixes
		}
		if len(dd.PageMarkers) > 0 {
			base.PageMarkers = dd.PageMarkers
		}
		if len(dd.ErrorHints) > 0 {
			base.ErrorHints = dd.ErrorHints
		}
		if dd.ContinueKey != "" {
			base.ContinueKey = dd.ContinueKey
		}
		if dd.HarvestCommand != "" {
			base.HarvestCommand = dd.HarvestCommand
		}
		if len(dd.PreHarvestCommands) > 0 {
			base.PreHarvestCommands = dd.PreHarvestCommands
		}
	}

	return base
}
