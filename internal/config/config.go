package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	GNS3     GNS3Config     `mapstructure:"gns3"`
	Registry RegistryConfig `mapstructure:"registry"`
	Database DatabaseConfig `mapstructure:"database"`
	Console  ConsoleConfig  `mapstructure:"console"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// GNS3Config GNS3服务器连接配置（拓扑协作方）
type GNS3Config struct {
	URL      string        `mapstructure:"url"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// RegistryConfig 设备注册表配置
// backend: file（单文件JSON，原子替换写入）| sqlite（嵌入式存储）
type RegistryConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	SQLite SQLiteConfig `mapstructure:"sqlite"`
}

// SQLiteConfig SQLite配置
type SQLiteConfig struct {
	Path            string        `mapstructure:"path"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// ConsoleConfig 控制台会话配置
type ConsoleConfig struct {
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	// Quiescence 提示符静默窗口：尾部匹配提示符且该窗口内无新字节才判定到达
	Quiescence  time.Duration `mapstructure:"quiescence"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	MaxPages    int           `mapstructure:"max_pages"`
	ContinueKey string        `mapstructure:"continue_key"`
	// ProbeTimeout 引导探测的单设备连接超时
	ProbeTimeout     time.Duration `mapstructure:"probe_timeout"`
	ProbeConcurrency int           `mapstructure:"probe_concurrency"`
	// DeviceDefaults 按设备平台加载的交互参数（提示符、分页、采集命令）
	DeviceDefaults map[string]PlatformDefaultsConfig `mapstructure:"device_defaults"`
}

// PlatformDefaultsConfig 平台交互参数覆盖
type PlatformDefaultsConfig struct {
	PromptSuffixes     []string `mapstructure:"prompt_suffixes"`
	PageMarkers        []string `mapstructure:"page_markers"`
	ErrorHints         []string `mapstructure:"error_hints"`
	ContinueKey        string   `mapstructure:"continue_key"`
	HarvestCommand     string   `mapstructure:"harvest_command"`
	PreHarvestCommands []string `mapstructure:"pre_harvest_commands"`
}

// ArchiveConfig 配置采集归档
type ArchiveConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Backend string `mapstructure:"backend"` // local | minio
	Prefix  string `mapstructure:"prefix"`
	Local   LocalArchiveConfig `mapstructure:"local"`
	Minio   MinioConfig        `mapstructure:"minio"`
}

// LocalArchiveConfig 本地归档配置
type LocalArchiveConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// MinioConfig 对象存储配置
type MinioConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Secure    bool   `mapstructure:"secure"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

var globalConfig *Config

// Load 加载配置文件
func Load(configPath string) (*Config, error) {
	viper.SetConfigType("yaml")

	setDefaults()

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath("../configs")
		viper.AddConfigPath("../../configs")
	}

	viper.SetEnvPrefix("GNS3_CONSOLE")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	globalConfig = &config
	return &config, nil
}

// Watch 监听配置文件变更并回调最新配置
func Watch(onChange func(*Config)) {
	viper.OnConfigChange(func(e fsnotify.Event) {
		var config Config
		if err := viper.Unmarshal(&config); err != nil {
			return
		}
		globalConfig = &config
		if onChange != nil {
			onChange(&config)
		}
	})
	viper.WatchConfig()
}

// Get 获取全局配置
func Get() *Config {
	return globalConfig
}

// setDefaults 设置默认配置
func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 9090)
	viper.SetDefault("server.mode", "release")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "60s")

	viper.SetDefault("gns3.url", "http://localhost:3080")
	viper.SetDefault("gns3.timeout", "30s")

	viper.SetDefault("registry.backend", "file")
	viper.SetDefault("registry.path", "data/devices.json")

	viper.SetDefault("database.sqlite.path", "data/console.db")
	viper.SetDefault("database.sqlite.conn_max_lifetime", "1h")

	viper.SetDefault("console.connect_timeout", "10s")
	viper.SetDefault("console.read_timeout", "30s")
	viper.SetDefault("console.quiescence", "300ms")
	viper.SetDefault("console.idle_timeout", "120s")
	viper.SetDefault("console.max_pages", 500)
	viper.SetDefault("console.continue_key", " ")
	viper.SetDefault("console.probe_timeout", "3s")
	viper.SetDefault("console.probe_concurrency", 8)

	viper.SetDefault("archive.enabled", false)
	viper.SetDefault("archive.backend", "local")
	viper.SetDefault("archive.prefix", "configs")
	viper.SetDefault("archive.local.base_dir", "data/archive")
	viper.SetDefault("archive.minio.secure", false)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
	viper.SetDefault("log.output", "console")
	viper.SetDefault("log.file_path", "logs/server.log")
	viper.SetDefault("log.max_size", 100)
	viper.SetDefault("log.max_backups", 10)
	viper.SetDefault("log.max_age", 30)
	viper.SetDefault("log.compress", true)
}
