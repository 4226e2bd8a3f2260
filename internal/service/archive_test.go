package service

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gns3consolepro/gns3consolepro/internal/config"
	"github.com/gns3consolepro/gns3consolepro/pkg/console"
)

// TestArchiveWriterDisabled 测试归档关闭时不创建写入器
func TestArchiveWriterDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Archive.Enabled = false
	assert.Nil(t, NewArchiveWriter(cfg))
}

// TestArchiveWriterLocal 测试本地归档路径与内容
func TestArchiveWriterLocal(t *testing.T) {
	cfg := testConfig()
	cfg.Archive = config.ArchiveConfig{
		Enabled: true,
		Backend: "local",
		Prefix:  "configs",
		Local:   config.LocalArchiveConfig{BaseDir: t.TempDir()},
	}
	w := NewArchiveWriter(cfg)
	require.NotNil(t, w)

	capturedAt := time.Date(2026, 8, 24, 15, 4, 5, 0, time.UTC)
	result := &console.HarvestResult{
		Command:    "show running-config",
		Text:       "hostname R1\nend",
		Pages:      2,
		CapturedAt: capturedAt,
	}

	location, backend, err := w.Write("R1", result)
	require.NoError(t, err)
	assert.Equal(t, "local", backend)
	require.True(t, strings.HasPrefix(location, "file://"))

	path := strings.TrimPrefix(location, "file://")
	assert.Contains(t, path, "configs/r1/20260824/150405_show_running-config.cfg")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hostname R1\nend", string(data))
}

// TestArchiveSlug 测试路径片段清洗
func TestArchiveSlug(t *testing.T) {
	assert.Equal(t, "show_running-config", archiveSlug("show running-config"))
	assert.Equal(t, "r1_core", archiveSlug("R1/Core"))
	assert.Equal(t, "unknown", archiveSlug("  "))
	assert.Equal(t, "sw-01", archiveSlug("SW-01!"))
}
