package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/gns3consolepro/gns3consolepro/api/handler"
	"github.com/gns3consolepro/gns3consolepro/internal/gns3"
	"github.com/gns3consolepro/gns3consolepro/internal/registry"
	"github.com/gns3consolepro/gns3consolepro/internal/service"
	"github.com/gns3consolepro/gns3consolepro/pkg/logger"
)

// SetupRouter 设置路由
func SetupRouter(consoleService *service.ConsoleService, bootstrapService *service.BootstrapService, store registry.Store, gns3Client *gns3.Client) *gin.Engine {
	// 创建路由引擎
	r := gin.New()

	// 添加中间件
	r.Use(gin.Recovery())
	r.Use(CORSMiddleware())
	r.Use(RequestIDMiddleware())
	r.Use(LoggingMiddleware())

	// 创建处理器
	consoleHandler := handler.NewConsoleHandler(consoleService)
	deviceHandler := handler.NewDeviceHandler(store, bootstrapService)
	mcpHandler := handler.NewMCPHandler(consoleService, bootstrapService, store, gns3Client)

	// 根路径
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"name":    "GNS3 Console Pro",
			"version": "1.0.0",
			"status":  "running",
		})
	})

	// MCP协议端点
	r.POST("/mcp", mcpHandler.Handle)

	// API v1 路由组
	v1 := r.Group("/api/v1")
	{
		// 健康检查
		v1.GET("/health", consoleHandler.Health)

		// 控制台自动化路由
		console := v1.Group("/console")
		{
			console.POST("/execute", consoleHandler.Execute)
			console.POST("/harvest", consoleHandler.Harvest)
			console.GET("/sessions", consoleHandler.Sessions)
		}

		// 设备注册表路由
		devices := v1.Group("/devices")
		{
			devices.POST("", deviceHandler.PutDevice)
			devices.GET("", deviceHandler.ListDevices)
			devices.GET("/:name", deviceHandler.GetDevice)
			devices.DELETE("/:name", deviceHandler.DeleteDevice)
			devices.POST("/bootstrap", deviceHandler.BootstrapDevices)
		}
	}

	// 404处理
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "NOT_FOUND",
			"message": "接口不存在",
			"path":    c.Request.URL.Path,
		})
	})

	return r
}

// CORSMiddleware 跨域中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// RequestIDMiddleware 请求ID中间件
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)
		c.Set("request_id", requestID)
		c.Next()
	}
}

// LoggingMiddleware 日志中间件
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start)
		requestID := c.GetString("request_id")
		statusCode := c.Writer.Status()

		logger.Info("HTTP Request",
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", statusCode,
			"duration", duration,
			"client_ip", c.ClientIP(),
		)

		if statusCode >= 400 {
			logger.Error("HTTP Error",
				"request_id", requestID,
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"status", statusCode,
				"duration", duration,
			)
		}
	}
}
