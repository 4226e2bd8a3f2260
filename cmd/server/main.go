package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gns3consolepro/gns3consolepro/api/router"
	"github.com/gns3consolepro/gns3consolepro/internal/config"
	"github.com/gns3consolepro/gns3consolepro/internal/database"
	"github.com/gns3consolepro/gns3consolepro/internal/gns3"
	"github.com/gns3consolepro/gns3consolepro/internal/registry"
	"github.com/gns3consolepro/gns3consolepro/internal/service"
	"github.com/gns3consolepro/gns3consolepro/pkg/logger"
)

func main() {
	// 加载配置
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		FilePath:   cfg.Log.FilePath,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	}); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	logger.Info("Starting GNS3 Console Pro Server", "version", "1.0.0")

	if strings.EqualFold(cfg.Server.Mode, "debug") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// 初始化数据库（sqlite注册表后端或归档索引需要）
	needDB := strings.EqualFold(cfg.Registry.Backend, "sqlite") || cfg.Archive.Enabled
	if needDB {
		if err := database.InitSQLite(cfg.Database.SQLite); err != nil {
			logger.Fatal("Failed to initialize database", "error", err)
		}
		defer database.Close()
	}

	// 创建注册表后端
	var store registry.Store
	switch strings.ToLower(cfg.Registry.Backend) {
	case "sqlite":
		store = registry.NewSQLiteStore(database.GetDB())
	default:
		store = registry.NewFileStore(cfg.Registry.Path)
	}
	logger.Info("Device registry ready", "backend", cfg.Registry.Backend, "path", cfg.Registry.Path)

	// GNS3客户端与归档写入器
	gns3Client := gns3.NewClient(cfg.GNS3)
	archive := service.NewArchiveWriter(cfg)

	// 创建控制台服务
	consoleService := service.NewConsoleService(cfg, store, archive)
	if err := consoleService.Start(); err != nil {
		logger.Fatal("Failed to start console service", "error", err)
	}
	defer consoleService.Stop()

	// 创建引导服务
	bootstrapService := service.NewBootstrapService(cfg, store, gns3Client)

	// 设置路由
	r := router.SetupRouter(consoleService, bootstrapService, store, gns3Client)

	// 创建HTTP服务器
	server := &http.Server{
		Addr:           fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:        r,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	// 启动服务器
	go func() {
		logger.Info("Server starting", "addr", server.Addr, "mode", cfg.Server.Mode)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	// 配置文件热更新：日志级别即时生效
	config.Watch(func(newCfg *config.Config) {
		*cfg = *newCfg
		logger.SetLevel(cfg.Log.Level)
		logger.Info("Config reloaded", "log_level", cfg.Log.Level)
	})

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server exited")
}
