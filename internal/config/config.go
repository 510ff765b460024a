package config

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// 主配置结构
type Config struct {
	App      App      `yaml:"app"`
	Server   Server   `yaml:"server"`
	Database DB       `yaml:"database"`
	Cache    Cache    `yaml:"cache"`
	Auth     Auth     `yaml:"auth"`
	Redirect Redirect `yaml:"redirect"`
	Tracking Tracking `yaml:"tracking"`
	Listing  Listing  `yaml:"listing"`
	Log      Log      `yaml:"log"`
}

// 应用配置
type App struct {
	Name    string `yaml:"name"`
	Mode    string `yaml:"mode"`
	Version string `yaml:"version"`
}

// 服务器配置，超时单位为秒
type Server struct {
	Port            int `yaml:"port"`
	ReadTimeout     int `yaml:"read_timeout"`
	WriteTimeout    int `yaml:"write_timeout"`
	ShutdownTimeout int `yaml:"shutdown_timeout"`
}

// 数据库配置
type DB struct {
	Driver       string `yaml:"driver"` // mysql | postgres | sqlite
	DSN          string `yaml:"dsn"`    // 非空时优先使用
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Name         string `yaml:"name"`
	Charset      string `yaml:"charset"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// 缓存配置（Redis），仅用于分布式锁与健康检查
type Cache struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// 认证配置
type Auth struct {
	Secret          string `yaml:"secret"`
	Issuer          string `yaml:"issuer"`
	ExpirationHours int    `yaml:"expiration_hours"`
	AdminUsername   string `yaml:"admin_username"`
	AdminPassword   string `yaml:"admin_password"`
}

// 跳转配置
type Redirect struct {
	StatusCode        int  `yaml:"status_code"`
	VerifyDestination bool `yaml:"verify_destination"`
	RecordTimeoutMs   int  `yaml:"record_timeout_ms"`
}

// 点击追踪入口配置
type Tracking struct {
	Path    string `yaml:"path"`
	Page    string `yaml:"page"`
	Action  string `yaml:"action"`
	BaseURL string `yaml:"base_url"`
}

// 列表分页配置
type Listing struct {
	DefaultPageSize int `yaml:"default_page_size"`
	MaxPageSize     int `yaml:"max_page_size"`
}

// 日志配置
type Log struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// Default 返回带默认值的配置
func Default() *Config {
	return &Config{
		App:    App{Name: "link-tracker", Mode: "debug", Version: "1.0.0"},
		Server: Server{Port: 8080, ReadTimeout: 10, WriteTimeout: 10, ShutdownTimeout: 5},
		Database: DB{
			Driver:       "sqlite",
			Name:         "link_tracker.db",
			Charset:      "utf8mb4",
			MaxOpenConns: 20,
			MaxIdleConns: 5,
		},
		Auth: Auth{
			Issuer:          "link-tracker",
			ExpirationHours: 24,
			AdminUsername:   "admin",
		},
		Redirect: Redirect{StatusCode: http.StatusFound, RecordTimeoutMs: 2000},
		Tracking: Tracking{
			Path:    "/admin/tools",
			Page:    "link-tracker",
			Action:  "track_statistics",
			BaseURL: "http://localhost:8080",
		},
		Listing: Listing{DefaultPageSize: 10, MaxPageSize: 100},
		Log:     Log{Level: "info", File: "./logs/app.log", MaxSize: 10, MaxBackups: 5, MaxAge: 30},
	}
}

// 加载配置：默认值 -> yaml 文件 -> 环境变量（支持 .env）
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	// .env 不存在时忽略
	_ = godotenv.Load()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.App.Mode, "APP_MODE")
	setInt(&c.Server.Port, "SERVER_PORT")

	setString(&c.Database.Driver, "DB_DRIVER")
	setString(&c.Database.DSN, "DB_DSN")
	setString(&c.Database.Host, "DB_HOST")
	setInt(&c.Database.Port, "DB_PORT")
	setString(&c.Database.User, "DB_USER")
	setString(&c.Database.Password, "DB_PASSWORD")
	setString(&c.Database.Name, "DB_NAME")

	setString(&c.Cache.Host, "REDIS_HOST")
	setInt(&c.Cache.Port, "REDIS_PORT")
	setString(&c.Cache.Password, "REDIS_PASSWORD")

	setString(&c.Auth.Secret, "AUTH_SECRET")
	setString(&c.Auth.AdminUsername, "ADMIN_USERNAME")
	setString(&c.Auth.AdminPassword, "ADMIN_PASSWORD")

	setInt(&c.Redirect.StatusCode, "REDIRECT_STATUS_CODE")
	setString(&c.Tracking.BaseURL, "TRACKING_BASE_URL")
	setString(&c.Log.Level, "LOG_LEVEL")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("不支持的数据库驱动: %q", c.Database.Driver)
	}

	if c.Redirect.StatusCode != http.StatusMovedPermanently && c.Redirect.StatusCode != http.StatusFound {
		return fmt.Errorf("跳转状态码只能是 301 或 302, 当前为 %d", c.Redirect.StatusCode)
	}

	if !strings.HasPrefix(c.Tracking.Path, "/") {
		return fmt.Errorf("tracking.path 必须以 / 开头: %q", c.Tracking.Path)
	}

	if c.Listing.DefaultPageSize <= 0 || c.Listing.MaxPageSize < c.Listing.DefaultPageSize {
		return fmt.Errorf("分页配置无效: default=%d max=%d", c.Listing.DefaultPageSize, c.Listing.MaxPageSize)
	}

	if c.App.Mode == "production" && c.Auth.Secret == "" {
		return fmt.Errorf("生产环境必须配置 auth.secret")
	}
	return nil
}

// RecordTimeout 点击记录的超时时间
func (r Redirect) RecordTimeout() time.Duration {
	return time.Duration(r.RecordTimeoutMs) * time.Millisecond
}
