package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gns3consolepro/gns3consolepro/internal/config"
	"github.com/gns3consolepro/gns3consolepro/internal/registry"
	"github.com/gns3consolepro/gns3consolepro/internal/service"
)

func newMCPTestRouter(t *testing.T) (*gin.Engine, registry.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Console: config.ConsoleConfig{
			ConnectTimeout: 2 * time.Second,
			ReadTimeout:    2 * time.Second,
			Quiescence:     50 * time.Millisecond,
			IdleTimeout:    time.Minute,
			MaxPages:       500,
			ContinueKey:    " ",
		},
	}
	store := registry.NewFileStore(filepath.Join(t.TempDir(), "devices.json"))
	consoleService := service.NewConsoleService(cfg, store, nil)
	bootstrapService := service.NewBootstrapService(cfg, store, nil)

	r := gin.New()
	r.POST("/mcp", NewMCPHandler(consoleService, bootstrapService, store, nil).Handle)
	return r, store
}

func postRPC(t *testing.T, r *gin.Engine, body string) rpcResponse {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp rpcResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

// TestMCPInitialize 测试initialize握手
func TestMCPInitialize(t *testing.T) {
	r, _ := newMCPTestRouter(t)
	resp := postRPC(t, r, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)

	require.Nil(t, resp.Error)
	result := resp.Result.(map[string]interface{})
	assert.Equal(t, "2024-11-05", result["protocolVersion"])
	serverInfo := result["serverInfo"].(map[string]interface{})
	assert.Equal(t, "gns3-console-pro", serverInfo["name"])
}

// TestMCPToolsList 测试工具清单
func TestMCPToolsList(t *testing.T) {
	r, _ := newMCPTestRouter(t)
	resp := postRPC(t, r, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)

	require.Nil(t, resp.Error)
	result := resp.Result.(map[string]interface{})
	tools := result["tools"].([]interface{})
	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.(map[string]interface{})["name"].(string))
	}
	assert.Contains(t, names, "execute_commands")
	assert.Contains(t, names, "harvest_config")
	assert.Contains(t, names, "bootstrap_devices")
	assert.Contains(t, names, "list_devices")
}

// TestMCPParseError 测试非法JSON返回-32700
func TestMCPParseError(t *testing.T) {
	r, _ := newMCPTestRouter(t)
	resp := postRPC(t, r, `{not json`)

	require.NotNil(t, resp.Error)
	assert.Equal(t, -32700, resp.Error.Code)
}

// TestMCPMethodNotFound 测试未知方法返回-32601
func TestMCPMethodNotFound(t *testing.T) {
	r, _ := newMCPTestRouter(t)
	resp := postRPC(t, r, `{"jsonrpc":"2.0","id":3,"method":"resources/list"}`)

	require.NotNil(t, resp.Error)
	assert.Equal(t, -32601, resp.Error.Code)
}

// TestMCPUnknownTool 测试未知工具名返回协议级-32601错误
func TestMCPUnknownTool(t *testing.T) {
	r, _ := newMCPTestRouter(t)
	resp := postRPC(t, r, `{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"no_such_tool","arguments":{}}}`)

	require.NotNil(t, resp.Error, "未知工具名是协议错误，不是业务失败")
	assert.Equal(t, -32601, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "no_such_tool")
	assert.Nil(t, resp.Result)
}

// TestMCPRegisterAndListDevices 测试注册表工具往返
func TestMCPRegisterAndListDevices(t *testing.T) {
	r, store := newMCPTestRouter(t)

	resp := postRPC(t, r, `{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"register_device","arguments":{"name":"R1","host":"192.168.1.10","port":5000,"platform":"cisco_ios"}}}`)
	require.Nil(t, resp.Error)
	result := resp.Result.(map[string]interface{})
	assert.Nil(t, result["isError"])

	entry, err := store.Get("R1")
	require.NoError(t, err)
	assert.Equal(t, 5000, entry.Port)

	resp = postRPC(t, r, `{"jsonrpc":"2.0","id":6,"method":"tools/call","params":{"name":"list_devices","arguments":{}}}`)
	require.Nil(t, resp.Error)
	result = resp.Result.(map[string]interface{})
	content := result["content"].([]interface{})
	text := content[0].(map[string]interface{})["text"].(string)
	assert.Contains(t, text, "R1")
}

// TestMCPExecuteUnknownDevice 测试未注册设备返回NOT_FOUND工具错误
func TestMCPExecuteUnknownDevice(t *testing.T) {
	r, _ := newMCPTestRouter(t)
	resp := postRPC(t, r, `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"execute_commands","arguments":{"device":"ghost","commands":["show version"]}}}`)

	require.Nil(t, resp.Error)
	result := resp.Result.(map[string]interface{})
	assert.Equal(t, true, result["isError"])
	content := result["content"].([]interface{})
	text := content[0].(map[string]interface{})["text"].(string)
	assert.Contains(t, text, "NOT_FOUND")
}
