package service

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/gns3consolepro/gns3consolepro/internal/config"
	"github.com/gns3consolepro/gns3consolepro/pkg/console"
	"github.com/gns3consolepro/gns3consolepro/pkg/logger"
)

var slugRe = regexp.MustCompile(`[^a-z0-9._-]`)

// ArchiveWriter 采集归档写入器
// 按配置路由到本地目录或MinIO对象存储；MinIO失败时回退到本地。
// 对象路径：prefix/device/20060102/150405_command.cfg
type ArchiveWriter struct {
	cfg *config.Config

	client        *minio.Client
	endpoint      string
	bucketEnsured bool
}

// NewArchiveWriter 创建归档写入器；archive.enabled=false 时返回 nil
func NewArchiveWriter(cfg *config.Config) *ArchiveWriter {
	if !cfg.Archive.Enabled {
		return nil
	}
	w := &ArchiveWriter{cfg: cfg}
	if strings.EqualFold(cfg.Archive.Backend, "minio") {
		w.initMinio()
	}
	return w
}

// initMinio 初始化MinIO客户端并预检bucket；失败降级为本地归档
func (w *ArchiveWriter) initMinio() {
	mc := w.cfg.Archive.Minio
	host := strings.TrimSpace(mc.Host)
	if host == "" || mc.Port <= 0 {
		logger.Warn("MinIO configuration incomplete; archive falls back to local")
		return
	}
	w.endpoint = fmt.Sprintf("%s:%d", host, mc.Port)

	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConnsPerHost:   16,
	}
	client, err := minio.New(w.endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(mc.AccessKey, mc.SecretKey, ""),
		Secure:    mc.Secure,
		Transport: transport,
	})
	if err != nil {
		logger.Error("MinIO client initialization failed", "error", err)
		return
	}
	w.client = client

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := w.ensureBucket(ctx); err != nil {
		logger.Warn("MinIO bucket ensure at init failed", "error", err)
	} else {
		w.bucketEnsured = true
	}
}

// Write 归档采集文本，返回落地位置与后端名
func (w *ArchiveWriter) Write(device string, result *console.HarvestResult) (string, string, error) {
	objectName := w.objectName(device, result)
	if w.client != nil {
		location, err := w.writeMinio(objectName, result.Text)
		if err == nil {
			return location, "minio", nil
		}
		logger.Warn("MinIO archive failed; falling back to local", "device", device, "error", err)
	}
	location, err := w.writeLocal(objectName, result.Text)
	if err != nil {
		return "", "", err
	}
	return location, "local", nil
}

// objectName 构造归档对象路径（POSIX风格，本地与MinIO共用）
func (w *ArchiveWriter) objectName(device string, result *console.HarvestResult) string {
	parts := []string{}
	if p := strings.TrimSpace(w.cfg.Archive.Prefix); p != "" {
		parts = append(parts, p)
	}
	parts = append(parts, archiveSlug(device))
	parts = append(parts, result.CapturedAt.Format("20060102"))
	filename := fmt.Sprintf("%s_%s.cfg", result.CapturedAt.Format("150405"), archiveSlug(result.Command))
	return path.Join(append(parts, filename)...)
}

func (w *ArchiveWriter) writeLocal(objectName, text string) (string, error) {
	baseDir := strings.TrimSpace(w.cfg.Archive.Local.BaseDir)
	if baseDir == "" {
		baseDir = "data/archive"
	}
	fullPath := filepath.Join(baseDir, filepath.FromSlash(objectName))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}
	if err := os.WriteFile(fullPath, []byte(text), 0644); err != nil {
		return "", fmt.Errorf("failed to write archive file: %w", err)
	}
	return "file://" + fullPath, nil
}

func (w *ArchiveWriter) writeMinio(objectName, text string) (string, error) {
	bucket := strings.TrimSpace(w.cfg.Archive.Minio.Bucket)
	if bucket == "" {
		return "", fmt.Errorf("minio bucket not configured")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if !w.bucketEnsured {
		if err := w.ensureBucket(ctx); err != nil {
			return "", fmt.Errorf("minio ensure bucket failed: %w", err)
		}
		w.bucketEnsured = true
	}

	data := []byte(text)
	_, err := w.client.PutObject(ctx, bucket, objectName, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "text/plain; charset=utf-8"})
	if err != nil {
		return "", fmt.Errorf("minio put object failed: %w", err)
	}
	return "minio://" + path.Join(bucket, objectName), nil
}

// ensureBucket 校验并按需创建bucket
func (w *ArchiveWriter) ensureBucket(ctx context.Context) error {
	bucket := strings.TrimSpace(w.cfg.Archive.Minio.Bucket)
	if bucket == "" {
		return fmt.Errorf("minio bucket not configured")
	}
	exists, err := w.client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return w.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{})
}

func archiveSlug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = slugRe.ReplaceAllString(s, "")
	if s == "" {
		s = "unknown"
	}
	return s
}
