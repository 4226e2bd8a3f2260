package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/gns3consolepro/gns3consolepro/internal/service"
	"github.com/gns3consolepro/gns3consolepro/pkg/logger"
)

// ConsoleHandler 控制台自动化处理器
type ConsoleHandler struct {
	consoleService *service.ConsoleService
}

// NewConsoleHandler 创建控制台处理器
func NewConsoleHandler(consoleService *service.ConsoleService) *ConsoleHandler {
	return &ConsoleHandler{consoleService: consoleService}
}

// Execute 在设备控制台按序执行命令
// @Router /api/v1/console/execute [post]
func (h *ConsoleHandler) Execute(c *gin.Context) {
	var req service.ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_PARAMS",
			Message: "invalid request body: " + err.Error(),
		})
		return
	}
	if err := h.validateExecute(&req); err != "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "VALIDATION_FAILED",
			Message: err,
		})
		return
	}

	resp, err := h.consoleService.Execute(&req)
	if err != nil {
		logger.Error("Console execute failed", "device", req.Device, "error", err)
		writeConsoleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Harvest 采集设备运行配置
// @Router /api/v1/console/harvest [post]
func (h *ConsoleHandler) Harvest(c *gin.Context) {
	var req service.HarvestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_PARAMS",
			Message: "invalid request body: " + err.Error(),
		})
		return
	}
	if strings.TrimSpace(req.Device) == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "VALIDATION_FAILED",
			Message: "device is required",
		})
		return
	}

	resp, err := h.consoleService.Harvest(&req)
	if err != nil {
		logger.Error("Config harvest failed", "device", req.Device, "error", err)
		writeConsoleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Sessions 会话状态快照
// @Router /api/v1/console/sessions [get]
func (h *ConsoleHandler) Sessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": h.consoleService.SessionStates()})
}

// Health 健康检查
// @Router /api/v1/health [get]
func (h *ConsoleHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (h *ConsoleHandler) validateExecute(req *service.ExecuteRequest) string {
	if strings.TrimSpace(req.Device) == "" {
		return "device is required"
	}
	if len(req.Commands) == 0 {
		return "commands cannot be empty"
	}
	for _, cmd := range req.Commands {
		if strings.TrimSpace(cmd) == "" {
			return "commands cannot contain blank entries"
		}
	}
	return ""
}
