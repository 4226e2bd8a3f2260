package service

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gns3consolepro/gns3consolepro/internal/config"
	"github.com/gns3consolepro/gns3consolepro/internal/gns3"
	"github.com/gns3consolepro/gns3consolepro/internal/model"
	"github.com/gns3consolepro/gns3consolepro/internal/registry"
)

func testConfig() *config.Config {
	return &config.Config{
		Console: config.ConsoleConfig{
			ConnectTimeout:   2 * time.Second,
			ReadTimeout:      2 * time.Second,
			Quiescence:       50 * time.Millisecond,
			IdleTimeout:      time.Minute,
			MaxPages:         500,
			ContinueKey:      " ",
			ProbeTimeout:     200 * time.Millisecond,
			ProbeConcurrency: 4,
		},
	}
}

func testStore(t *testing.T) registry.Store {
	t.Helper()
	return registry.NewFileStore(filepath.Join(t.TempDir(), "devices.json"))
}

// TestBootstrapRegistersNodes 测试节点列表写入注册表
func TestBootstrapRegistersNodes(t *testing.T) {
	store := testStore(t)
	svc := NewBootstrapService(testConfig(), store, nil)

	result, err := svc.Bootstrap(context.Background(), []BootstrapNode{
		{Name: "R1", Host: "192.168.1.10", Port: 5000},
		{Name: "R2", Host: "192.168.1.10", Port: 5001, Platform: "cisco_ios"},
		{Name: "", Host: "192.168.1.10", Port: 5002},
		{Name: "R4", Host: "192.168.1.10", Port: 0},
	}, false)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Registered)
	assert.Equal(t, 2, result.Skipped, "无名称或无端口的节点应跳过")

	entry, err := store.Get("R2")
	require.NoError(t, err)
	assert.Equal(t, "telnet", entry.Protocol)
	assert.Equal(t, "cisco_ios", entry.Platform)
}

// TestBootstrapIdempotent 测试重复引导幂等且不清理既有条目
func TestBootstrapIdempotent(t *testing.T) {
	store := testStore(t)
	svc := NewBootstrapService(testConfig(), store, nil)

	// 手工注册的条目不在拓扑中
	require.NoError(t, store.Put(&model.DeviceEntry{Name: "manual", Host: "10.0.0.1", Port: 2000}))

	nodes := []BootstrapNode{{Name: "R1", Host: "192.168.1.10", Port: 5000}}
	_, err := svc.Bootstrap(context.Background(), nodes, false)
	require.NoError(t, err)

	// 端口变化后再次引导：覆盖同名条目
	nodes[0].Port = 5999
	_, err = svc.Bootstrap(context.Background(), nodes, false)
	require.NoError(t, err)

	entries, err := store.List()
	require.NoError(t, err)
	require.Len(t, entries, 2, "引导不得清理拓扑之外的条目")

	entry, err := store.Get("R1")
	require.NoError(t, err)
	assert.Equal(t, 5999, entry.Port)

	_, err = store.Get("manual")
	assert.NoError(t, err)
}

// TestBootstrapProbe 测试可达性探测不阻止注册
func TestBootstrapProbe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()
	openPort := ln.Addr().(*net.TCPAddr).Port

	closed, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	closedPort := closed.Addr().(*net.TCPAddr).Port
	closed.Close()

	store := testStore(t)
	svc := NewBootstrapService(testConfig(), store, nil)

	result, err := svc.Bootstrap(context.Background(), []BootstrapNode{
		{Name: "up", Host: "127.0.0.1", Port: openPort},
		{Name: "down", Host: "127.0.0.1", Port: closedPort},
	}, true)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Registered, "不可达节点仍然注册")
	assert.True(t, result.Probed)
	assert.Equal(t, []string{"down"}, result.Unreachable)
}

// TestBootstrapProject 测试从GNS3拓扑引导与非telnet节点过滤
func TestBootstrapProject(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/projects/p1/nodes", r.URL.Path)
		json.NewEncoder(w).Encode([]gns3.Node{
			{NodeID: "n1", Name: "R1", Console: 5000, ConsoleHost: "0.0.0.0", ConsoleType: "telnet"},
			{NodeID: "n2", Name: "PC1", Console: 5900, ConsoleHost: "0.0.0.0", ConsoleType: "vnc"},
			{NodeID: "n3", Name: "Cloud", Console: 0, ConsoleType: ""},
		})
	}))
	defer server.Close()

	client := gns3.NewClient(config.GNS3Config{URL: server.URL})
	store := testStore(t)
	svc := NewBootstrapService(testConfig(), store, client)

	result, err := svc.BootstrapProject(context.Background(), "p1", false)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Registered)
	assert.Equal(t, 2, result.Skipped, "vnc控制台与无控制台节点应跳过")

	entry, err := store.Get("R1")
	require.NoError(t, err)
	assert.Equal(t, 5000, entry.Port)
	assert.NotEqual(t, "0.0.0.0", entry.Host, "0.0.0.0应回退到GNS3服务器主机")
}
