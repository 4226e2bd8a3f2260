package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gns3consolepro/gns3consolepro/internal/gns3"
	"github.com/gns3consolepro/gns3consolepro/internal/model"
	"github.com/gns3consolepro/gns3consolepro/internal/registry"
	"github.com/gns3consolepro/gns3consolepro/internal/service"
	"github.com/gns3consolepro/gns3consolepro/pkg/console"
	"github.com/gns3consolepro/gns3consolepro/pkg/logger"
)

// MCPHandler MCP协议端点（JSON-RPC 2.0 over HTTP）
// 将控制台自动化与注册表操作以工具形式暴露给LLM客户端。
type MCPHandler struct {
	consoleService   *service.ConsoleService
	bootstrapService *service.BootstrapService
	store            registry.Store
	gns3             *gns3.Client
}

// NewMCPHandler 创建MCP处理器
func NewMCPHandler(consoleService *service.ConsoleService, bootstrapService *service.BootstrapService, store registry.Store, client *gns3.Client) *MCPHandler {
	return &MCPHandler{
		consoleService:   consoleService,
		bootstrapService: bootstrapService,
		store:            store,
		gns3:             client,
	}
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// toolDescriptor 工具描述（tools/list 输出）
type toolDescriptor struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// toolContent 工具输出内容块
type toolContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// toolResult 工具调用结果；业务失败通过isError表达，不走JSON-RPC错误
type toolResult struct {
	Content []toolContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

// Handle 处理 POST /mcp
func (h *MCPHandler) Handle(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusOK, rpcResponse{JSONRPC: "2.0", Error: &rpcError{Code: -32700, Message: "Parse error"}})
		return
	}
	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusOK, rpcResponse{JSONRPC: "2.0", Error: &rpcError{Code: -32700, Message: "Parse error"}})
		return
	}

	resp := rpcResponse{JSONRPC: "2.0", ID: req.ID}
	switch req.Method {
	case "initialize":
		resp.Result = map[string]interface{}{
			"protocolVersion": "2024-11-05",
			"capabilities":    map[string]interface{}{"tools": map[string]interface{}{}},
			"serverInfo": map[string]interface{}{
				"name":    "gns3-console-pro",
				"version": "1.0.0",
			},
		}
	case "notifications/initialized":
		c.Status(http.StatusNoContent)
		return
	case "tools/list":
		resp.Result = map[string]interface{}{"tools": h.tools()}
	case "tools/call":
		result, callErr := h.callTool(c, req.Params)
		if callErr != nil {
			resp.Error = callErr
		} else {
			resp.Result = result
		}
	default:
		resp.Error = &rpcError{Code: -32601, Message: "Method not found: " + req.Method}
	}
	c.JSON(http.StatusOK, resp)
}

// tools 返回全部工具描述
func (h *MCPHandler) tools() []toolDescriptor {
	deviceProp := map[string]interface{}{"type": "string", "description": "Registered device name"}
	return []toolDescriptor{
		{
			Name:        "execute_commands",
			Description: "Run CLI commands on a device console in order and return per-command output",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"device":   deviceProp,
					"commands": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
					"timeout":  map[string]interface{}{"type": "integer", "description": "Per-command timeout in seconds"},
				},
				"required": []string{"device", "commands"},
			},
		},
		{
			Name:        "harvest_config",
			Description: "Capture the device running configuration, following pagination prompts",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"device":    deviceProp,
					"command":   map[string]interface{}{"type": "string", "description": "Override harvest command"},
					"max_pages": map[string]interface{}{"type": "integer"},
				},
				"required": []string{"device"},
			},
		},
		{
			Name:        "list_devices",
			Description: "List all devices in the registry",
			InputSchema: map[string]interface{}{"type": "object", "properties": map[string]interface{}{}},
		},
		{
			Name:        "register_device",
			Description: "Register or overwrite a device registry entry",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"name":     map[string]interface{}{"type": "string"},
					"host":     map[string]interface{}{"type": "string"},
					"port":     map[string]interface{}{"type": "integer"},
					"protocol": map[string]interface{}{"type": "string", "enum": []string{"telnet", "ssh"}},
					"platform": map[string]interface{}{"type": "string"},
				},
				"required": []string{"name", "host", "port"},
			},
		},
		{
			Name:        "bootstrap_devices",
			Description: "Populate the registry from a GNS3 project topology",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"project_id": map[string]interface{}{"type": "string"},
					"probe":      map[string]interface{}{"type": "boolean", "description": "Probe console reachability"},
				},
				"required": []string{"project_id"},
			},
		},
		{
			Name:        "list_projects",
			Description: "List projects on the GNS3 server",
			InputSchema: map[string]interface{}{"type": "object", "properties": map[string]interface{}{}},
		},
		{
			Name:        "get_topology",
			Description: "Get the node and link topology of a GNS3 project",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"project_id": map[string]interface{}{"type": "string"},
				},
				"required": []string{"project_id"},
			},
		},
	}
}

// callTool 分发 tools/call
// 未知工具名属于协议级错误，返回-32601；已知工具的业务失败以isError结果表达。
func (h *MCPHandler) callTool(c *gin.Context, params json.RawMessage) (toolResult, *rpcError) {
	var call struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(params, &call); err != nil {
		return toolError(fmt.Sprintf("invalid tool call params: %v", err)), nil
	}

	logger.Info("MCP tool call", "tool", call.Name)
	switch call.Name {
	case "execute_commands":
		var req service.ExecuteRequest
		if err := json.Unmarshal(call.Arguments, &req); err != nil {
			return toolError("invalid arguments: " + err.Error()), nil
		}
		resp, err := h.consoleService.Execute(&req)
		if err != nil {
			return consoleToolError(err), nil
		}
		return toolJSON(resp), nil
	case "harvest_config":
		var req service.HarvestRequest
		if err := json.Unmarshal(call.Arguments, &req); err != nil {
			return toolError("invalid arguments: " + err.Error()), nil
		}
		resp, err := h.consoleService.Harvest(&req)
		if err != nil {
			return consoleToolError(err), nil
		}
		return toolJSON(resp), nil
	case "list_devices":
		entries, err := h.store.List()
		if err != nil {
			return toolError(err.Error()), nil
		}
		return toolJSON(gin.H{"total": len(entries), "devices": entries}), nil
	case "register_device":
		var entry struct {
			Name     string `json:"name"`
			Host     string `json:"host"`
			Port     int    `json:"port"`
			Protocol string `json:"protocol"`
			Platform string `json:"platform"`
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.Unmarshal(call.Arguments, &entry); err != nil {
			return toolError("invalid arguments: " + err.Error()), nil
		}
		put := &model.DeviceEntry{
			Name:     entry.Name,
			Host:     entry.Host,
			Port:     entry.Port,
			Protocol: entry.Protocol,
			Platform: entry.Platform,
			Username: entry.Username,
			Password: entry.Password,
		}
		if err := h.store.Put(put); err != nil {
			return toolError(err.Error()), nil
		}
		return toolJSON(put), nil
	case "bootstrap_devices":
		var args struct {
			ProjectID string `json:"project_id"`
			Probe     bool   `json:"probe"`
		}
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			return toolError("invalid arguments: " + err.Error()), nil
		}
		result, err := h.bootstrapService.BootstrapProject(c.Request.Context(), args.ProjectID, args.Probe)
		if err != nil {
			return toolError(err.Error()), nil
		}
		return toolJSON(result), nil
	case "list_projects":
		projects, err := h.gns3.ListProjects(c.Request.Context())
		if err != nil {
			return toolError(err.Error()), nil
		}
		return toolJSON(projects), nil
	case "get_topology":
		var args struct {
			ProjectID string `json:"project_id"`
		}
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			return toolError("invalid arguments: " + err.Error()), nil
		}
		topology, err := h.gns3.Topology(c.Request.Context(), args.ProjectID)
		if err != nil {
			return toolError(err.Error()), nil
		}
		return toolJSON(topology), nil
	default:
		return toolResult{}, &rpcError{Code: -32601, Message: "Unknown tool: " + call.Name}
	}
}

func toolJSON(v interface{}) toolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolError("failed to encode tool result: " + err.Error())
	}
	return toolResult{Content: []toolContent{{Type: "text", Text: string(data)}}}
}

func toolError(message string) toolResult {
	return toolResult{
		Content: []toolContent{{Type: "text", Text: message}},
		IsError: true,
	}
}

func consoleToolError(err error) toolResult {
	return toolError(fmt.Sprintf("[%s] %s", console.KindOf(err), err.Error()))
}
