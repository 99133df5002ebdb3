package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/viper"
)

// DefaultJWTSecret 仅用于本地开发，非 local 环境下禁止使用。
const DefaultJWTSecret = "dev_secret_change_me"

// Config 保存应用程序配置。
type Config struct {
	App      AppConfig      `json:"app"`
	Database DatabaseConfig `json:"database"`
	Redis    RedisConfig    `json:"redis"`
	Email    EmailConfig    `json:"email"`
	Security SecurityConfig `json:"security"`
}

// AppConfig 应用程序基础配置。
type AppConfig struct {
	Env             string        `json:"env"`              // 运行环境: local / prod
	LogLevel        string        `json:"log_level"`        // 日志级别: debug / info / warn / error
	HTTPAddr        string        `json:"http_addr"`        // API 服务监听地址
	ShutdownTimeout time.Duration `json:"shutdown_timeout"` // 优雅关闭超时（如 "5s"）
	SeedDemo        bool          `json:"seed_demo"`        // 启动时创建演示账号（仅 local 环境生效）
	TrustedProxies  []string      `json:"trusted_proxies"`  // 可信反向代理 IP/CIDR，为空时忽略 X-Forwarded-For
}

// DatabaseConfig 数据库配置。
type DatabaseConfig struct {
	Driver string `json:"driver"` // mysql / postgres / sqlite
	DSN    string `json:"dsn"`    // 数据库连接字符串
}

// RedisConfig Redis 配置。Addr 为空时关闭限流与幂等功能。
type RedisConfig struct {
	Addr     string `json:"addr"`     // Redis 地址 (host:port)
	Password string `json:"password"` // Redis 密码
	DB       int    `json:"db"`       // Redis 库编号
}

// EmailConfig 邮件通知配置。
type EmailConfig struct {
	SMTPHost  string `json:"smtp_host"`
	SMTPPort  int    `json:"smtp_port"`
	SMTPUser  string `json:"smtp_user"`
	SMTPPass  string `json:"smtp_pass"`
	FromEmail string `json:"from_email"`
}

// SecurityConfig 安全相关配置。
type SecurityConfig struct {
	JWTSecret         string        `json:"jwt_secret"`         // JWT 签名密钥
	JWTIssuer         string        `json:"jwt_issuer"`         // JWT 签发者
	TokenTTL          time.Duration `json:"token_ttl"`          // 令牌有效期（如 "720h"）
	BcryptCost        int           `json:"bcrypt_cost"`        // bcrypt 计算成本
	AuthRateLimit     float64       `json:"auth_rate_limit"`    // 认证接口限流速率（token/s，每个 IP）
	AuthRateBurst     float64       `json:"auth_rate_burst"`    // 认证接口限流桶容量
	IdempotencyWindow time.Duration `json:"idempotency_window"` // Idempotency-Key 保留时长
}

// Load 从 JSON 文件加载配置。
//
// 它会尝试读取 configs/config.json 文件，如果不存在则使用默认值。
// 环境变量始终覆盖文件中的值。
func Load(configPath ...string) (*Config, error) {
	path := "configs/config.json"
	if len(configPath) > 0 && configPath[0] != "" {
		path = configPath[0]
	}

	// 如果配置文件不存在，使用默认配置
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := getDefaultConfig()
		applyEnvOverrides(cfg)
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	return cfg, nil
}

// Validate 校验配置是否可用于启动。
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Security.JWTSecret) == "" {
		errs = append(errs, errors.New("security.jwt_secret is required"))
	} else if c.Security.JWTSecret == DefaultJWTSecret && c.App.Env != "local" {
		errs = append(errs, fmt.Errorf("security.jwt_secret must be changed in %q env", c.App.Env))
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	if c.Security.TokenTTL <= 0 {
		errs = append(errs, errors.New("security.token_ttl must be positive"))
	}
	return errors.Join(errs...)
}

// getDefaultConfig 返回默认配置。
func getDefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Env:             "local",
			LogLevel:        "info",
			HTTPAddr:        ":8080",
			ShutdownTimeout: 5 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: "mysql",
			DSN:    "root:password@tcp(localhost:3306)/supertodo?parseTime=true&loc=Local&charset=utf8mb4",
		},
		Redis: RedisConfig{
			Addr:     "",
			Password: "",
		},
		Email: EmailConfig{
			SMTPHost: "smtp.gmail.com",
			SMTPPort: 587,
		},
		Security: SecurityConfig{
			JWTSecret:         DefaultJWTSecret,
			JWTIssuer:         "supertodo",
			TokenTTL:          30 * 24 * time.Hour,
			BcryptCost:        10,
			AuthRateLimit:     0.2,
			AuthRateBurst:     10,
			IdempotencyWindow: 24 * time.Hour,
		},
	}
}

// applyDefaults 对未设置的字段应用默认值。
func applyDefaults(cfg *Config) {
	defaults := getDefaultConfig()

	if cfg.App.Env == "" {
		cfg.App.Env = defaults.App.Env
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = defaults.App.LogLevel
	}
	if cfg.App.HTTPAddr == "" {
		cfg.App.HTTPAddr = defaults.App.HTTPAddr
	}
	if cfg.App.ShutdownTimeout == 0 {
		cfg.App.ShutdownTimeout = defaults.App.ShutdownTimeout
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = defaults.Database.Driver
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == defaults.Database.Driver {
		cfg.Database.DSN = defaults.Database.DSN
	}
	if cfg.Email.SMTPPort == 0 {
		cfg.Email.SMTPPort = defaults.Email.SMTPPort
	}
	if cfg.Security.JWTSecret == "" {
		cfg.Security.JWTSecret = defaults.Security.JWTSecret
	}
	if cfg.Security.JWTIssuer == "" {
		cfg.Security.JWTIssuer = defaults.Security.JWTIssuer
	}
	if cfg.Security.TokenTTL == 0 {
		cfg.Security.TokenTTL = defaults.Security.TokenTTL
	}
	if cfg.Security.BcryptCost == 0 {
		cfg.Security.BcryptCost = defaults.Security.BcryptCost
	}
	if cfg.Security.AuthRateLimit == 0 {
		cfg.Security.AuthRateLimit = defaults.Security.AuthRateLimit
	}
	if cfg.Security.AuthRateBurst == 0 {
		cfg.Security.AuthRateBurst = defaults.Security.AuthRateBurst
	}
	if cfg.Security.IdempotencyWindow == 0 {
		cfg.Security.IdempotencyWindow = defaults.Security.IdempotencyWindow
	}
}

func applyEnvOverrides(cfg *Config) {
	v := viper.New()
	v.AutomaticEnv()

	_ = v.BindEnv("db_host", "DB_HOST")
	_ = v.BindEnv("db_password", "DB_PASSWORD")
	_ = v.BindEnv("redis_addr", "REDIS_ADDR")
	_ = v.BindEnv("redis_password", "REDIS_PASSWORD")
	_ = v.BindEnv("smtp_pass", "SMTP_PASS")
	_ = v.BindEnv("jwt_secret", "JWT_SECRET")

	if val := os.Getenv("APP_ENV"); val != "" {
		cfg.App.Env = val
	}
	if val := os.Getenv("APP_LOG_LEVEL"); val != "" {
		cfg.App.LogLevel = val
	}
	if val := os.Getenv("APP_HTTP_ADDR"); val != "" {
		cfg.App.HTTPAddr = val
	}
	if val := os.Getenv("APP_SEED_DEMO"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.App.SeedDemo = b
		}
	}
	if val := os.Getenv("APP_TRUSTED_PROXIES"); val != "" {
		cfg.App.TrustedProxies = splitList(val)
	}
	if val := os.Getenv("APP_SHUTDOWN_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.App.ShutdownTimeout = d
		}
	}

	if val := v.GetString("jwt_secret"); val != "" {
		cfg.Security.JWTSecret = val
	}
	if val := os.Getenv("JWT_ISSUER"); val != "" {
		cfg.Security.JWTIssuer = val
	}
	if val := os.Getenv("JWT_TTL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Security.TokenTTL = d
		}
	}
	if val := os.Getenv("BCRYPT_COST"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Security.BcryptCost = i
		}
	}
	if val := os.Getenv("AUTH_RATE_LIMIT"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Security.AuthRateLimit = f
		}
	}
	if val := os.Getenv("AUTH_RATE_BURST"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Security.AuthRateBurst = f
		}
	}
	if val := os.Getenv("IDEMPOTENCY_WINDOW"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Security.IdempotencyWindow = d
		}
	}

	if val := os.Getenv("DB_DRIVER"); val != "" {
		cfg.Database.Driver = strings.ToLower(val)
	}
	if val := os.Getenv("DB_DSN"); val != "" {
		cfg.Database.DSN = val
	} else if isMySQL(cfg.Database.Driver) && (hasAnyEnv("DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME") || v.GetString("db_host") != "" || v.GetString("db_password") != "") {
		parsed := parseMySQLDSN(cfg.Database.DSN)
		if val := v.GetString("db_host"); val != "" {
			port := getenvDefault("DB_PORT", parsed.Addr, "3306")
			parsed.Addr = val + ":" + port
		} else if val := os.Getenv("DB_PORT"); val != "" {
			host := parsed.Addr
			if strings.Contains(host, ":") {
				host = strings.Split(host, ":")[0]
			}
			parsed.Addr = host + ":" + val
		}
		if val := os.Getenv("DB_USER"); val != "" {
			parsed.User = val
		}
		if val := v.GetString("db_password"); val != "" {
			parsed.Passwd = val
		}
		if val := os.Getenv("DB_NAME"); val != "" {
			parsed.DBName = val
		}
		cfg.Database.DSN = parsed.FormatDSN()
	}

	if val := v.GetString("redis_addr"); val != "" {
		cfg.Redis.Addr = val
	}
	if val := v.GetString("redis_password"); val != "" {
		cfg.Redis.Password = val
	}
	if val := os.Getenv("REDIS_DB"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Redis.DB = i
		}
	}

	if val := os.Getenv("SMTP_HOST"); val != "" {
		cfg.Email.SMTPHost = val
	}
	if val := os.Getenv("SMTP_PORT"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Email.SMTPPort = i
		}
	}
	if val := os.Getenv("SMTP_USER"); val != "" {
		cfg.Email.SMTPUser = val
	}
	if val := v.GetString("smtp_pass"); val != "" {
		cfg.Email.SMTPPass = val
	}
	if val := os.Getenv("SMTP_FROM"); val != "" {
		cfg.Email.FromEmail = val
	}
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func isMySQL(driver string) bool {
	return driver == "" || driver == "mysql"
}

func hasAnyEnv(keys ...string) bool {
	for _, key := range keys {
		if os.Getenv(key) != "" {
			return true
		}
	}
	return false
}

func getenvDefault(envKey, fallbackAddr, defaultValue string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	if fallbackAddr == "" {
		return defaultValue
	}
	if strings.Contains(fallbackAddr, ":") {
		parts := strings.Split(fallbackAddr, ":")
		if len(parts) == 2 && parts[1] != "" {
			return parts[1]
		}
	}
	return defaultValue
}

func parseMySQLDSN(dsn string) *mysql.Config {
	fallback := func() *mysql.Config {
		c := mysql.NewConfig()
		c.User = "root"
		c.Net = "tcp"
		c.Addr = "localhost:3306"
		c.DBName = "supertodo"
		c.ParseTime = true
		c.Params = map[string]string{"charset": "utf8mb4"}
		return c
	}
	if dsn == "" {
		return fallback()
	}
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		return fallback()
	}
	return parsed
}

// UnmarshalJSON 自定义 JSON 解析，支持 Duration 字符串。
func (a *AppConfig) UnmarshalJSON(data []byte) error {
	type Alias AppConfig
	aux := &struct {
		ShutdownTimeout string `json:"shutdown_timeout"`
		*Alias
	}{
		Alias: (*Alias)(a),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.ShutdownTimeout != "" {
		d, err := time.ParseDuration(aux.ShutdownTimeout)
		if err != nil {
			return fmt.Errorf("invalid shutdown_timeout format: %w", err)
		}
		a.ShutdownTimeout = d
	}
	return nil
}

// MarshalJSON 自定义 JSON 序列化，将 Duration 转为字符串。
func (a AppConfig) MarshalJSON() ([]byte, error) {
	type Alias AppConfig
	return json.Marshal(&struct {
		ShutdownTimeout string `json:"shutdown_timeout"`
		*Alias
	}{
		ShutdownTimeout: a.ShutdownTimeout.String(),
		Alias:           (*Alias)(&a),
	})
}

// UnmarshalJSON 自定义 JSON 解析，支持 Duration 字符串。
func (s *SecurityConfig) UnmarshalJSON(data []byte) error {
	type Alias SecurityConfig
	aux := &struct {
		TokenTTL          string `json:"token_ttl"`
		IdempotencyWindow string `json:"idempotency_window"`
		*Alias
	}{
		Alias: (*Alias)(s),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.TokenTTL != "" {
		d, err := time.ParseDuration(aux.TokenTTL)
		if err != nil {
			return fmt.Errorf("invalid token_ttl format: %w", err)
		}
		s.TokenTTL = d
	}
	if aux.IdempotencyWindow != "" {
		d, err := time.ParseDuration(aux.IdempotencyWindow)
		if err != nil {
			return fmt.Errorf("invalid idempotency_window format: %w", err)
		}
		s.IdempotencyWindow = d
	}
	return nil
}

// MarshalJSON 自定义 JSON 序列化，将 Duration 转为字符串。
func (s SecurityConfig) MarshalJSON() ([]byte, error) {
	type Alias SecurityConfig
	return json.Marshal(&struct {
		TokenTTL          string `json:"token_ttl"`
		IdempotencyWindow string `json:"idempotency_window"`
		*Alias
	}{
		TokenTTL:          s.TokenTTL.String(),
		IdempotencyWindow: s.IdempotencyWindow.String(),
		Alias:             (*Alias)(&s),
	})
}
