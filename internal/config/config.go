package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config aggregates application settings that may be sourced from files or environment variables.
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Render   RenderConfig   `mapstructure:"render"`
	Upload   UploadConfig   `mapstructure:"upload"`
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Port           int    `mapstructure:"port"`
	AllowedOrigins string `mapstructure:"allowed_origins"`
}

// Origins 把逗号分隔的来源列表拆成切片，空配置返回 nil。
func (a APIConfig) Origins() []string {
	raw := strings.TrimSpace(a.AllowedOrigins)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}

// DatabaseConfig contains connection options for PostgreSQL.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RedisConfig 包含 Redis 连接配置。
type RedisConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr 返回 host:port 形式的地址。
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// MinIOConfig contains connection options for MinIO/S3-compatible storage.
type MinIOConfig struct {
	Endpoint         string `mapstructure:"endpoint"`
	PublicEndpoint   string `mapstructure:"public_endpoint"`
	AccessKeyID      string `mapstructure:"access_key_id"`
	SecretAccessKey  string `mapstructure:"secret_access_key"`
	UseSSL           bool   `mapstructure:"use_ssl"`
	Region           string `mapstructure:"region"`
	Bucket           string `mapstructure:"bucket"`
	BucketLookup     string `mapstructure:"bucket_lookup"`
	AutoCreateBucket bool   `mapstructure:"auto_create_bucket"`
}

// AuthConfig 包含 JWT 密钥、令牌有效期与登录保护参数。
type AuthConfig struct {
	PrivateKeyPEM         string `mapstructure:"private_key_pem"`
	PublicKeyPEM          string `mapstructure:"public_key_pem"`
	AccessTTLMinutes      int    `mapstructure:"access_ttl_minutes"`
	RefreshTTLMinutes     int    `mapstructure:"refresh_ttl_minutes"`
	LoginRateLimitPerHour int    `mapstructure:"login_rate_limit_per_hour"`
	LoginLockThreshold    int    `mapstructure:"login_lock_threshold"`
	LoginLockTTLMinutes   int    `mapstructure:"login_lock_ttl_minutes"`
	CookieDomain          string `mapstructure:"cookie_domain"`
}

// RenderConfig 描述渲染 Worker 的协作参数。
type RenderConfig struct {
	// FrontendBaseURL 是承载打印页的前端地址，Worker 用无头浏览器访问它。
	FrontendBaseURL string `mapstructure:"frontend_base_url"`
	// InternalAPIBaseURL 是 Worker 回连本服务内部接口的地址。
	InternalAPIBaseURL string `mapstructure:"internal_api_base_url"`
	// InternalSecret 保护内部渲染数据接口，只允许 Worker 访问。
	InternalSecret string `mapstructure:"internal_secret"`
}

// UploadConfig 约束背景图上传。
type UploadConfig struct {
	MaxBytes  int64  `mapstructure:"max_bytes"`
	ClamdAddr string `mapstructure:"clamd_addr"`
}

// DSN builds a lib/pq compatible connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.Name,
		d.SSLMode,
	)
}

// Load reads configuration solely from environment variables (with optional defaults).
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// MustLoad wraps Load and panics on failure.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.allowed_origins", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "certcanvas")
	v.SetDefault("database.user", "certcanvas")
	v.SetDefault("database.password", "certcanvas")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.public_endpoint", "http://localhost:9000")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket", "certificates")
	v.SetDefault("minio.bucket_lookup", "auto")
	v.SetDefault("minio.auto_create_bucket", true)
	v.SetDefault("auth.access_ttl_minutes", 15)
	v.SetDefault("auth.refresh_ttl_minutes", 60*24*14)
	v.SetDefault("auth.login_rate_limit_per_hour", 10)
	v.SetDefault("auth.login_lock_threshold", 5)
	v.SetDefault("auth.login_lock_ttl_minutes", 15)
	v.SetDefault("auth.cookie_domain", "")
	v.SetDefault("render.frontend_base_url", "http://localhost:3000")
	v.SetDefault("render.internal_api_base_url", "http://localhost:8080")
	v.SetDefault("upload.max_bytes", 15*1024*1024)
	v.SetDefault("upload.clamd_addr", "")
}

func bindEnv(v *viper.Viper) error {
	mappings := map[string]string{
		"api.port":                       "API_PORT",
		"api.allowed_origins":            "API_ALLOWED_ORIGINS",
		"database.host":                  "DATABASE_HOST",
		"database.port":                  "DATABASE_PORT",
		"database.name":                  "POSTGRES_DB",
		"database.user":                  "POSTGRES_USER",
		"database.password":              "POSTGRES_PASSWORD",
		"database.sslmode":               "DATABASE_SSLMODE",
		"redis.host":                     "REDIS_HOST",
		"redis.port":                     "REDIS_PORT",
		"minio.endpoint":                 "MINIO_ENDPOINT",
		"minio.public_endpoint":          "MINIO_PUBLIC_ENDPOINT",
		"minio.access_key_id":            "MINIO_ACCESS_KEY_ID",
		"minio.secret_access_key":        "MINIO_SECRET_ACCESS_KEY",
		"minio.use_ssl":                  "MINIO_USE_SSL",
		"minio.region":                   "MINIO_REGION",
		"minio.bucket":                   "MINIO_BUCKET",
		"minio.bucket_lookup":            "MINIO_BUCKET_LOOKUP",
		"minio.auto_create_bucket":       "MINIO_AUTO_CREATE_BUCKET",
		"auth.private_key_pem":           "AUTH_PRIVATE_KEY_PEM",
		"auth.public_key_pem":            "AUTH_PUBLIC_KEY_PEM",
		"auth.access_ttl_minutes":        "AUTH_ACCESS_TTL_MINUTES",
		"auth.refresh_ttl_minutes":       "AUTH_REFRESH_TTL_MINUTES",
		"auth.login_rate_limit_per_hour": "AUTH_LOGIN_RATE_LIMIT_PER_HOUR",
		"auth.login_lock_threshold":      "AUTH_LOGIN_LOCK_THRESHOLD",
		"auth.login_lock_ttl_minutes":    "AUTH_LOGIN_LOCK_TTL_MINUTES",
		"auth.cookie_domain":             "AUTH_COOKIE_DOMAIN",
		"render.frontend_base_url":       "RENDER_FRONTEND_BASE_URL",
		"render.internal_api_base_url":   "RENDER_INTERNAL_API_BASE_URL",
		"render.internal_secret":         "INTERNAL_API_SECRET",
		"upload.max_bytes":               "UPLOAD_MAX_BYTES",
		"upload.clamd_addr":              "CLAMD_ADDR",
	}

	for key, env := range mappings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s to %s: %w", key, env, err)
		}
	}

	return nil
}

func validate(cfg Config) error {
	if cfg.API.Port <= 0 {
		return errors.New("api port must be positive")
	}
	if cfg.Database.Host == "" {
		return errors.New("database host is required")
	}
	if cfg.Database.Port <= 0 {
		return errors.New("database port must be positive")
	}
	if cfg.Database.Name == "" {
		return errors.New("database name is required")
	}
	if cfg.Database.User == "" {
		return errors.New("database user is required")
	}
	if cfg.Database.Password == "" {
		return errors.New("database password is required")
	}
	if cfg.Database.SSLMode == "" {
		return errors.New("database sslmode is required")
	}
	if cfg.Redis.Host == "" {
		return errors.New("redis host is required")
	}
	if cfg.Redis.Port <= 0 {
		return errors.New("redis port must be positive")
	}
	if cfg.MinIO.Endpoint == "" {
		return errors.New("minio endpoint is required")
	}
	if cfg.MinIO.AccessKeyID == "" {
		return errors.New("minio access key id is required")
	}
	if cfg.MinIO.SecretAccessKey == "" {
		return errors.New("minio secret access key is required")
	}
	if cfg.MinIO.Bucket == "" {
		return errors.New("minio bucket is required")
	}
	if cfg.Upload.MaxBytes <= 0 {
		return errors.New("upload max bytes must be positive")
	}
	return nil
}
