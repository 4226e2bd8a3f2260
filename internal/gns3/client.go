package gns3

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gns3consolepro/gns3consolepro/internal/config"
)

// Client GNS3 REST API 客户端（拓扑协作方）
// 仅覆盖控制台自动化所需的只读查询与节点启停。
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
}

// Version 服务器版本信息
type Version struct {
	Version string `json:"version"`
	User    string `json:"user,omitempty"`
}

// Project 项目摘要
type Project struct {
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
}

// Node 节点信息；Console 为控制台端口，ConsoleHost 可能为 0.0.0.0
type Node struct {
	NodeID      string `json:"node_id"`
	Name        string `json:"name"`
	NodeType    string `json:"node_type"`
	Status      string `json:"status"`
	Console     int    `json:"console"`
	ConsoleHost string `json:"console_host"`
	ConsoleType string `json:"console_type"`
}

// LinkNode 链路端点
type LinkNode struct {
	NodeID   string `json:"node_id"`
	PortName string `json:"port_name,omitempty"`
}

// Link 链路信息
type Link struct {
	LinkID   string     `json:"link_id"`
	LinkType string     `json:"link_type"`
	Nodes    []LinkNode `json:"nodes"`
}

// Topology 拓扑摘要：BootstrapService 的输入
type Topology struct {
	Project Project `json:"project"`
	Nodes   []Node  `json:"nodes"`
	Links   []Link  `json:"links"`
}

// NewClient 创建客户端
func NewClient(cfg config.GNS3Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		username:   cfg.Username,
		password:   cfg.Password,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// do 发起请求并解析JSON响应
func (c *Client) do(ctx context.Context, method, endpoint string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/v3"+endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach GNS3 server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("GNS3 API error: %d - %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode GNS3 response: %w", err)
	}
	return nil
}

// ServerVersion 查询服务器版本
func (c *Client) ServerVersion(ctx context.Context) (*Version, error) {
	var v Version
	if err := c.do(ctx, http.MethodGet, "/version", nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// ListProjects 列出全部项目
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	var projects []Project
	if err := c.do(ctx, http.MethodGet, "/projects", nil, &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// GetProject 查询项目详情
func (c *Client) GetProject(ctx context.Context, projectID string) (*Project, error) {
	var p Project
	if err := c.do(ctx, http.MethodGet, "/projects/"+projectID, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ProjectNodes 查询项目全部节点
func (c *Client) ProjectNodes(ctx context.Context, projectID string) ([]Node, error) {
	var nodes []Node
	if err := c.do(ctx, http.MethodGet, "/projects/"+projectID+"/nodes", nil, &nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

// ProjectLinks 查询项目全部链路
func (c *Client) ProjectLinks(ctx context.Context, projectID string) ([]Link, error) {
	var links []Link
	if err := c.do(ctx, http.MethodGet, "/projects/"+projectID+"/links", nil, &links); err != nil {
		return nil, err
	}
	return links, nil
}

// StartNode 启动节点
func (c *Client) StartNode(ctx context.Context, projectID, nodeID string) error {
	return c.do(ctx, http.MethodPost, "/projects/"+projectID+"/nodes/"+nodeID+"/start", map[string]interface{}{}, nil)
}

// StopNode 停止节点
func (c *Client) StopNode(ctx context.Context, projectID, nodeID string) error {
	return c.do(ctx, http.MethodPost, "/projects/"+projectID+"/nodes/"+nodeID+"/stop", map[string]interface{}{}, nil)
}

// Topology 查询拓扑摘要
func (c *Client) Topology(ctx context.Context, projectID string) (*Topology, error) {
	project, err := c.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	nodes, err := c.ProjectNodes(ctx, projectID)
	if err != nil {
		return nil, err
	}
	links, err := c.ProjectLinks(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return &Topology{Project: *project, Nodes: nodes, Links: links}, nil
}

// ConsoleHostFor 解析节点控制台主机
// GNS3 常返回 0.0.0.0/:: 表示绑定所有地址，此时回退到服务器主机名。
func (c *Client) ConsoleHostFor(node Node) string {
	host := strings.TrimSpace(node.ConsoleHost)
	if host != "" && host != "0.0.0.0" && host != "::" {
		return host
	}
	if u, err := url.Parse(c.baseURL); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	return host
}
