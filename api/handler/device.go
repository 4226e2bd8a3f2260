package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gns3consolepro/gns3consolepro/internal/model"
	"github.com/gns3consolepro/gns3consolepro/internal/registry"
	"github.com/gns3consolepro/gns3consolepro/internal/service"
	"github.com/gns3consolepro/gns3consolepro/pkg/logger"
)

// DeviceHandler 设备注册表处理器
type DeviceHandler struct {
	store     registry.Store
	bootstrap *service.BootstrapService
}

// NewDeviceHandler 创建设备处理器
func NewDeviceHandler(store registry.Store, bootstrap *service.BootstrapService) *DeviceHandler {
	return &DeviceHandler{store: store, bootstrap: bootstrap}
}

// ListDevices 列出全部设备条目
// @Router /api/v1/devices [get]
func (h *DeviceHandler) ListDevices(c *gin.Context) {
	entries, err := h.store.List()
	if err != nil {
		logger.Error("Failed to list devices", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "REGISTRY_ERROR",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": len(entries), "devices": entries})
}

// GetDevice 查询单个设备条目
// @Router /api/v1/devices/{name} [get]
func (h *DeviceHandler) GetDevice(c *gin.Context) {
	entry, err := h.store.Get(c.Param("name"))
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Code:    "NOT_FOUND",
				Message: err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "REGISTRY_ERROR",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, entry)
}

// PutDevice 注册或覆盖设备条目
// @Router /api/v1/devices [post]
func (h *DeviceHandler) PutDevice(c *gin.Context) {
	var entry model.DeviceEntry
	if err := c.ShouldBindJSON(&entry); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_PARAMS",
			Message: "invalid request body: " + err.Error(),
		})
		return
	}
	if err := h.store.Put(&entry); err != nil {
		logger.Error("Failed to register device", "device", entry.Name, "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "VALIDATION_FAILED",
			Message: err.Error(),
		})
		return
	}
	logger.Info("Device registered", "device", entry.Name, "host", entry.Host, "port", entry.Port)
	c.JSON(http.StatusOK, entry)
}

// DeleteDevice 删除设备条目
// @Router /api/v1/devices/{name} [delete]
func (h *DeviceHandler) DeleteDevice(c *gin.Context) {
	name := c.Param("name")
	if err := h.store.Delete(name); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Code:    "NOT_FOUND",
				Message: err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "REGISTRY_ERROR",
			Message: err.Error(),
		})
		return
	}
	logger.Info("Device deleted", "device", name)
	c.JSON(http.StatusOK, gin.H{"deleted": name})
}

// BootstrapRequest 注册表引导请求
// 给出project_id时从GNS3拓扑拉取节点；否则使用显式节点列表。
type BootstrapRequest struct {
	ProjectID string                  `json:"project_id,omitempty"`
	Nodes     []service.BootstrapNode `json:"nodes,omitempty"`
	Probe     bool                    `json:"probe,omitempty"`
}

// BootstrapDevices 从拓扑或节点列表引导注册表
// @Router /api/v1/devices/bootstrap [post]
func (h *DeviceHandler) BootstrapDevices(c *gin.Context) {
	var req BootstrapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_PARAMS",
			Message: "invalid request body: " + err.Error(),
		})
		return
	}
	if req.ProjectID == "" && len(req.Nodes) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_PARAMS",
			Message: "project_id or nodes is required",
		})
		return
	}

	var (
		result *service.BootstrapResult
		err    error
	)
	if req.ProjectID != "" {
		result, err = h.bootstrap.BootstrapProject(c.Request.Context(), req.ProjectID, req.Probe)
	} else {
		result, err = h.bootstrap.Bootstrap(c.Request.Context(), req.Nodes, req.Probe)
	}
	if err != nil {
		logger.Error("Registry bootstrap failed", "project_id", req.ProjectID, "error", err)
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Code:    "BOOTSTRAP_FAILED",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, result)
}
