package service

import (
	"bufio"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gns3consolepro/gns3consolepro/internal/model"
	"github.com/gns3consolepro/gns3consolepro/pkg/console"
)

// startCiscoLikeConsole 启动一个Cisco风格的模拟设备
func startCiscoLikeConsole(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				r := bufio.NewReader(c)
				// 连接落在用户模式；show running-config 需要先enable
				privileged := false
				prompt := func() string {
					if privileged {
						return "R1#"
					}
					return "R1>"
				}
				c.Write([]byte(prompt()))
				for {
					line, err := r.ReadString('\n')
					if err != nil {
						return
					}
					cmd := strings.TrimSpace(line)
					switch cmd {
					case "enable":
						privileged = true
						c.Write([]byte(cmd + "\r\n" + prompt()))
					case "terminal length 0":
						c.Write([]byte(cmd + "\r\n" + prompt()))
					case "show running-config":
						if privileged {
							c.Write([]byte(cmd + "\r\nhostname R1\r\nend\r\n" + prompt()))
						} else {
							c.Write([]byte(cmd + "\r\n% Invalid input detected at '^' marker.\r\n" + prompt()))
						}
					case "show version":
						c.Write([]byte(cmd + "\r\nCisco IOS Software\r\n" + prompt()))
					default:
						c.Write([]byte(cmd + "\r\n% Invalid input detected at '^' marker.\r\n" + prompt()))
					}
				}
			}(conn)
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port
}

// TestConsoleServiceExecute 测试注册表解析、会话建立与命令执行
func TestConsoleServiceExecute(t *testing.T) {
	port := startCiscoLikeConsole(t)
	store := testStore(t)
	require.NoError(t, store.Put(&model.DeviceEntry{
		Name: "R1", Host: "127.0.0.1", Port: port, Platform: "cisco_ios",
	}))

	svc := NewConsoleService(testConfig(), store, nil)
	defer svc.Stop()

	resp, err := svc.Execute(&ExecuteRequest{
		Device:   "R1",
		Commands: []string{"show version", "show bogus"},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.TaskID, "未指定task_id时自动生成")
	assert.False(t, resp.Success, "批次内任一命令失败则整体置失败")
	require.Len(t, resp.Results, 2)
	assert.True(t, resp.Results[0].Success)
	assert.Contains(t, resp.Results[0].Output, "Cisco IOS Software")
	assert.False(t, resp.Results[1].Success)

	// 会话被缓存复用
	states := svc.SessionStates()
	require.Len(t, states, 1)
	assert.Equal(t, "ready", states["R1"])

	resp2, err := svc.Execute(&ExecuteRequest{Device: "R1", Commands: []string{"show version"}})
	require.NoError(t, err)
	assert.True(t, resp2.Success)
	assert.Len(t, svc.SessionStates(), 1, "第二次执行不应新开会话")
}

// TestConsoleServiceHarvest 测试平台前置命令与配置采集
func TestConsoleServiceHarvest(t *testing.T) {
	port := startCiscoLikeConsole(t)
	store := testStore(t)
	require.NoError(t, store.Put(&model.DeviceEntry{
		Name: "R1", Host: "127.0.0.1", Port: port, Platform: "cisco_ios",
	}))

	svc := NewConsoleService(testConfig(), store, nil)
	defer svc.Stop()

	resp, err := svc.Harvest(&HarvestRequest{Device: "R1"})
	require.NoError(t, err)

	assert.Equal(t, "show running-config", resp.Command, "采集命令来自平台默认")
	assert.Contains(t, resp.Config, "hostname R1", "前置enable后用户模式设备也能完成采集")
	assert.NotContains(t, resp.Config, "% Invalid input")
	assert.False(t, resp.Truncated)
	assert.Empty(t, resp.Archived, "未配置归档时不产生位置")
}

// TestConsoleServiceUnknownDevice 测试未注册设备返回NOT_FOUND
func TestConsoleServiceUnknownDevice(t *testing.T) {
	svc := NewConsoleService(testConfig(), testStore(t), nil)
	defer svc.Stop()

	_, err := svc.Execute(&ExecuteRequest{Device: "ghost", Commands: []string{"show version"}})
	require.Error(t, err)
	assert.True(t, console.IsKind(err, console.KindNotFound))

	_, err = svc.Harvest(&HarvestRequest{Device: ""})
	require.Error(t, err)
	assert.True(t, console.IsKind(err, console.KindNotFound))
}
