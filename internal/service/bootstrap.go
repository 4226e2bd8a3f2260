package service

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gns3consolepro/gns3consolepro/internal/config"
	"github.com/gns3consolepro/gns3consolepro/internal/gns3"
	"github.com/gns3consolepro/gns3consolepro/internal/model"
	"github.com/gns3consolepro/gns3consolepro/internal/registry"
	"github.com/gns3consolepro/gns3consolepro/pkg/logger"
)

// BootstrapService 注册表引导服务
// 从GNS3拓扑节点生成设备条目并写入注册表：同名条目覆盖，
// 拓扑之外的既有条目保持不动（引导只增改、不清理）。
type BootstrapService struct {
	config *config.Config
	store  registry.Store
	gns3   *gns3.Client
}

// BootstrapNode 引导输入节点；由拓扑节点或调用方直接给出
type BootstrapNode struct {
	Name     string `json:"name"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Platform string `json:"platform,omitempty"`
}

// BootstrapResult 引导结果
type BootstrapResult struct {
	Registered  int      `json:"registered"`
	Skipped     int      `json:"skipped"`
	Probed      bool     `json:"probed"`
	Unreachable []string `json:"unreachable,omitempty"`
}

// NewBootstrapService 创建引导服务
func NewBootstrapService(cfg *config.Config, store registry.Store, client *gns3.Client) *BootstrapService {
	return &BootstrapService{config: cfg, store: store, gns3: client}
}

// BootstrapProject 拉取GNS3项目拓扑并引导注册表
func (s *BootstrapService) BootstrapProject(ctx context.Context, projectID string, probe bool) (*BootstrapResult, error) {
	if s.gns3 == nil {
		return nil, fmt.Errorf("GNS3 client is not configured")
	}
	nodes, err := s.gns3.ProjectNodes(ctx, projectID)
	if err != nil {
		return nil, err
	}

	input := make([]BootstrapNode, 0, len(nodes))
	for _, node := range nodes {
		// 仅telnet控制台可直接采集；vnc/spice等跳过
		if node.Console <= 0 || (node.ConsoleType != "" && node.ConsoleType != "telnet") {
			logger.Debug("Skipping node without telnet console",
				"node", node.Name, "console_type", node.ConsoleType)
			continue
		}
		input = append(input, BootstrapNode{
			Name: node.Name,
			Host: s.gns3.ConsoleHostFor(node),
			Port: node.Console,
		})
	}
	result, err := s.Bootstrap(ctx, input, probe)
	if err != nil {
		return nil, err
	}
	result.Skipped += len(nodes) - len(input)
	return result, nil
}

// Bootstrap 将节点列表写入注册表；可选并发探测控制台可达性
// 探测失败只记录，不阻止条目注册（节点可能稍后才启动）。
func (s *BootstrapService) Bootstrap(ctx context.Context, nodes []BootstrapNode, probe bool) (*BootstrapResult, error) {
	result := &BootstrapResult{Probed: probe}

	entries := make([]model.DeviceEntry, 0, len(nodes))
	for _, node := range nodes {
		if strings.TrimSpace(node.Name) == "" || strings.TrimSpace(node.Host) == "" || node.Port <= 0 {
			result.Skipped++
			continue
		}
		entries = append(entries, model.DeviceEntry{
			Name:     node.Name,
			Host:     node.Host,
			Port:     node.Port,
			Protocol: "telnet",
			Platform: node.Platform,
		})
	}

	if probe && len(entries) > 0 {
		result.Unreachable = s.probeEntries(ctx, entries)
	}

	for i := range entries {
		if err := s.store.Put(&entries[i]); err != nil {
			return nil, fmt.Errorf("failed to register device %s: %w", entries[i].Name, err)
		}
		result.Registered++
	}

	logger.Info("Registry bootstrap finished",
		"registered", result.Registered, "skipped", result.Skipped,
		"unreachable", len(result.Unreachable))
	return result, nil
}

// probeEntries 并发TCP探测控制台端口，返回不可达设备名（按名称排序）
func (s *BootstrapService) probeEntries(ctx context.Context, entries []model.DeviceEntry) []string {
	timeout := s.config.Console.ProbeTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	limit := s.config.Console.ProbeConcurrency
	if limit <= 0 {
		limit = 8
	}

	var mu sync.Mutex
	var unreachable []string

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(limit)
	for i := range entries {
		entry := entries[i]
		group.Go(func() error {
			dialer := &net.Dialer{Timeout: timeout}
			conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(entry.Host, strconv.Itoa(entry.Port)))
			if err != nil {
				logger.Warn("Console probe failed",
					"device", entry.Name, "host", entry.Host, "port", entry.Port, "error", err)
				mu.Lock()
				unreachable = append(unreachable, entry.Name)
				mu.Unlock()
				return nil
			}
			conn.Close()
			return nil
		})
	}
	_ = group.Wait()

	sort.Strings(unreachable)
	return unreachable
}
