package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/viper"
)

// Config 保存应用程序配置。
type Config struct {
	App      AppConfig             `json:"app"`
	Catalog  CatalogConfig         `json:"catalog"`
	Sites    map[string]SiteConfig `json:"sites"`
	MySQL    MySQLConfig           `json:"mysql"`
	Redis    RedisConfig           `json:"redis"`
	Email    EmailConfig           `json:"email"`
	Security SecurityConfig        `json:"security"`
}

// AppConfig 应用程序基础配置。
type AppConfig struct {
	Env            string        `json:"env"`              // 运行环境: local / prod
	LogLevel       string        `json:"log_level"`        // 日志级别: debug / info / warn / error
	HTTPAddr       string        `json:"http_addr"`        // API 服务监听地址
	ScrapeInterval time.Duration `json:"scrape_interval"`  // 定时抓取间隔（如 "30m"）
	RequestTimeout time.Duration `json:"request_timeout"`  // 单个页面请求超时
	SiteLockTTL    time.Duration `json:"site_lock_ttl"`    // 站点抓取锁 TTL
	WorkerPoolSize int           `json:"worker_pool_size"` // 抓取 Worker Pool 大小
	QueueCapacity  int           `json:"queue_capacity"`   // 抓取任务队列容量
	RateLimit      float64       `json:"rate_limit"`       // 站点翻页限速（页/秒）
	RateBurst      float64       `json:"rate_burst"`       // 限速桶容量
}

// CatalogConfig 目录文档存储配置。
type CatalogConfig struct {
	Path        string   `json:"path"`         // 目录 JSON 文件路径
	BackupDir   string   `json:"backup_dir"`   // 全量保存前的备份目录
	ManualSites []string `json:"manual_sites"` // 只人工维护、从不自动抓取的站点
}

// SiteConfig 单个商店站点的抓取配置。
type SiteConfig struct {
	Enabled bool   `json:"enabled"`  // 是否参与自动抓取
	BaseURL string `json:"base_url"` // 站点根地址
}

// MySQLConfig MySQL 数据库配置。DSN 为空时不记录抓取历史。
type MySQLConfig struct {
	DSN string `json:"dsn"`
}

// RedisConfig Redis 配置，用于站点锁与限速令牌桶。
type RedisConfig struct {
	Addr     string `json:"addr"`     // Redis 地址 (host:port)
	Password string `json:"password"` // Redis 密码
}

// EmailConfig 告警邮件配置。
type EmailConfig struct {
	SMTPHost  string `json:"smtp_host"`
	SMTPPort  int    `json:"smtp_port"`
	SMTPUser  string `json:"smtp_user"`
	SMTPPass  string `json:"smtp_pass"`
	FromEmail string `json:"from_email"`
	ToEmail   string `json:"to_email"`
}

// SecurityConfig 管理端安全配置。
type SecurityConfig struct {
	JWTSecret     string `json:"jwt_secret"`      // JWT 签名密钥
	AdminUser     string `json:"admin_user"`      // 管理员用户名
	AdminPassHash string `json:"admin_pass_hash"` // 管理员密码 bcrypt 哈希
}

// Load 从 JSON 文件加载配置。
//
// 配置文件不存在时使用默认值，环境变量始终可以覆盖。
//
// 参数:
//
//	configPath: 配置文件路径（为空则使用默认路径 "configs/config.json"）
//
// 返回值:
//
//	*Config: 加载完成的配置对象
//	error: 加载失败返回错误
func Load(configPath ...string) (*Config, error) {
	path := "configs/config.json"
	if len(configPath) > 0 && configPath[0] != "" {
		path = configPath[0]
	}

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

// LoadOrDefault 加载配置，失败时回退到默认配置（不报错）。
func LoadOrDefault(configPath ...string) *Config {
	cfg, err := Load(configPath...)
	if err != nil {
		fallback := getDefaultConfig()
		applyEnvOverrides(fallback)
		return fallback
	}
	return cfg
}

// Save 保存配置到 JSON 文件。
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// getDefaultConfig 返回默认配置。
func getDefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Env:            "local",
			LogLevel:       "info",
			HTTPAddr:       ":8081",
			ScrapeInterval: 30 * time.Minute,
			RequestTimeout: 30 * time.Second,
			SiteLockTTL:    10 * time.Minute,
			WorkerPoolSize: 4,
			QueueCapacity:  16,
			RateLimit:      3,
			RateBurst:      5,
		},
		Catalog: CatalogConfig{
			Path:        "data/products.json",
			BackupDir:   "data/backups",
			ManualSites: []string{"galaxyiq"},
		},
		Sites: map[string]SiteConfig{
			"globaliraq": {Enabled: true, BaseURL: "https://globaliraq.net"},
			"alityan":    {Enabled: true, BaseURL: "https://alityan.com"},
			"kolshzin":   {Enabled: true, BaseURL: "https://kolshzin.com"},
			// spniq 走独立 API 域名，店面地址由抓取器自行推导
			"spniq": {Enabled: true, BaseURL: "https://api.spniq.com"},
		},
		MySQL: MySQLConfig{
			DSN: "",
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
		},
		Email: EmailConfig{
			SMTPHost:  "smtp.gmail.com",
			SMTPPort:  587,
			SMTPUser:  "",
			SMTPPass:  "",
			FromEmail: "",
			ToEmail:   "",
		},
		Security: SecurityConfig{
			JWTSecret:     "dev_secret_change_me",
			AdminUser:     "admin",
			AdminPassHash: "",
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
	if cfg.App.ScrapeInterval == 0 {
		cfg.App.ScrapeInterval = defaults.App.ScrapeInterval
	}
	if cfg.App.RequestTimeout == 0 {
		cfg.App.RequestTimeout = defaults.App.RequestTimeout
	}
	if cfg.App.SiteLockTTL == 0 {
		cfg.App.SiteLockTTL = defaults.App.SiteLockTTL
	}
	if cfg.App.WorkerPoolSize == 0 {
		cfg.App.WorkerPoolSize = defaults.App.WorkerPoolSize
	}
	if cfg.App.QueueCapacity == 0 {
		cfg.App.QueueCapacity = defaults.App.QueueCapacity
	}
	if cfg.App.RateLimit == 0 {
		cfg.App.RateLimit = defaults.App.RateLimit
	}
	if cfg.App.RateBurst == 0 {
		cfg.App.RateBurst = defaults.App.RateBurst
	}
	if cfg.Catalog.Path == "" {
		cfg.Catalog.Path = defaults.Catalog.Path
	}
	if cfg.Catalog.BackupDir == "" {
		cfg.Catalog.BackupDir = defaults.Catalog.BackupDir
	}
	if cfg.Catalog.ManualSites == nil {
		cfg.Catalog.ManualSites = defaults.Catalog.ManualSites
	}
	if cfg.Sites == nil {
		cfg.Sites = defaults.Sites
	}
	if cfg.Email.SMTPPort == 0 {
		cfg.Email.SMTPPort = defaults.Email.SMTPPort
	}
	if cfg.Security.JWTSecret == "" {
		cfg.Security.JWTSecret = defaults.Security.JWTSecret
	}
	if cfg.Security.AdminUser == "" {
		cfg.Security.AdminUser = defaults.Security.AdminUser
	}
}

func applyEnvOverrides(cfg *Config) {
	viper.AutomaticEnv()

	_ = viper.BindEnv("db_host", "DB_HOST")
	_ = viper.BindEnv("db_password", "DB_PASSWORD")
	_ = viper.BindEnv("redis_addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis_password", "REDIS_PASSWORD")
	_ = viper.BindEnv("smtp_pass", "SMTP_PASS")
	_ = viper.BindEnv("jwt_secret", "JWT_SECRET")
	_ = viper.BindEnv("admin_pass_hash", "ADMIN_PASS_HASH")

	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.App.Env = v
	}
	if v := os.Getenv("APP_LOG_LEVEL"); v != "" {
		cfg.App.LogLevel = v
	}
	if v := os.Getenv("APP_HTTP_ADDR"); v != "" {
		cfg.App.HTTPAddr = v
	}
	if v := os.Getenv("APP_SCRAPE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.App.ScrapeInterval = d
		}
	}
	if v := os.Getenv("APP_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.App.RequestTimeout = d
		}
	}
	if v := os.Getenv("APP_SITE_LOCK_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.App.SiteLockTTL = d
		}
	}
	if v := os.Getenv("APP_WORKER_POOL_SIZE"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.App.WorkerPoolSize = i
		}
	}
	if v := os.Getenv("APP_QUEUE_CAPACITY"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.App.QueueCapacity = i
		}
	}
	if v := os.Getenv("APP_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.App.RateLimit = f
		}
	}
	if v := os.Getenv("APP_RATE_BURST"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.App.RateBurst = f
		}
	}

	if v := os.Getenv("CATALOG_PATH"); v != "" {
		cfg.Catalog.Path = v
	}
	if v := os.Getenv("CATALOG_BACKUP_DIR"); v != "" {
		cfg.Catalog.BackupDir = v
	}
	if v := os.Getenv("CATALOG_MANUAL_SITES"); v != "" {
		sites := strings.Split(v, ",")
		out := sites[:0]
		for _, s := range sites {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		cfg.Catalog.ManualSites = out
	}

	if v := viper.GetString("jwt_secret"); v != "" {
		cfg.Security.JWTSecret = v
	}
	if v := os.Getenv("ADMIN_USER"); v != "" {
		cfg.Security.AdminUser = v
	}
	if v := viper.GetString("admin_pass_hash"); v != "" {
		cfg.Security.AdminPassHash = v
	}

	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.MySQL.DSN = v
	} else if hasAnyEnv("DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME") || viper.GetString("db_host") != "" || viper.GetString("db_password") != "" {
		parsed := parseMySQLDSN(cfg.MySQL.DSN)
		if v := viper.GetString("db_host"); v != "" {
			port := getenvDefault("DB_PORT", parsed.Addr, "3306")
			parsed.Addr = v + ":" + port
		} else if v := os.Getenv("DB_PORT"); v != "" {
			host := parsed.Addr
			if strings.Contains(host, ":") {
				host = strings.Split(host, ":")[0]
			}
			parsed.Addr = host + ":" + v
		}
		if v := os.Getenv("DB_USER"); v != "" {
			parsed.User = v
		}
		if v := viper.GetString("db_password"); v != "" {
			parsed.Passwd = v
		}
		if v := os.Getenv("DB_NAME"); v != "" {
			parsed.DBName = v
		}
		cfg.MySQL.DSN = parsed.FormatDSN()
	}

	if v := viper.GetString("redis_addr"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := viper.GetString("redis_password"); v != "" {
		cfg.Redis.Password = v
	}

	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.Email.SMTPHost = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Email.SMTPPort = i
		}
	}
	if v := os.Getenv("SMTP_USER"); v != "" {
		cfg.Email.SMTPUser = v
	}
	if v := viper.GetString("smtp_pass"); v != "" {
		cfg.Email.SMTPPass = v
	}
	if v := os.Getenv("SMTP_FROM"); v != "" {
		cfg.Email.FromEmail = v
	}
	if v := os.Getenv("SMTP_TO"); v != "" {
		cfg.Email.ToEmail = v
	}
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
	fallback := &mysql.Config{
		User:   "root",
		Passwd: "",
		Net:    "tcp",
		Addr:   "localhost:3306",
		DBName: "nexuespc",
		Params: map[string]string{
			"parseTime": "true",
			"loc":       "Local",
		},
	}
	if dsn == "" {
		return fallback
	}
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		return fallback
	}
	return parsed
}

// UnmarshalJSON 自定义 JSON 解析，支持 Duration 字符串。
func (a *AppConfig) UnmarshalJSON(data []byte) error {
	type Alias AppConfig
	aux := &struct {
		ScrapeInterval string `json:"scrape_interval"`
		RequestTimeout string `json:"request_timeout"`
		SiteLockTTL    string `json:"site_lock_ttl"`
		*Alias
	}{
		Alias: (*Alias)(a),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.ScrapeInterval != "" {
		d, err := time.ParseDuration(aux.ScrapeInterval)
		if err != nil {
			return fmt.Errorf("invalid scrape_interval format: %w", err)
		}
		a.ScrapeInterval = d
	}
	if aux.RequestTimeout != "" {
		d, err := time.ParseDuration(aux.RequestTimeout)
		if err != nil {
			return fmt.Errorf("invalid request_timeout format: %w", err)
		}
		a.RequestTimeout = d
	}
	if aux.SiteLockTTL != "" {
		d, err := time.ParseDuration(aux.SiteLockTTL)
		if err != nil {
			return fmt.Errorf("invalid site_lock_ttl format: %w", err)
		}
		a.SiteLockTTL = d
	}

	return nil
}

// MarshalJSON 自定义 JSON 序列化，将 Duration 转为字符串。
func (a AppConfig) MarshalJSON() ([]byte, error) {
	type Alias AppConfig
	return json.Marshal(&struct {
		ScrapeInterval string `json:"scrape_interval"`
		RequestTimeout string `json:"request_timeout"`
		SiteLockTTL    string `json:"site_lock_ttl"`
		*Alias
	}{
		ScrapeInterval: a.ScrapeInterval.String(),
		RequestTimeout: a.RequestTimeout.String(),
		SiteLockTTL:    a.SiteLockTTL.String(),
		Alias:          (*Alias)(&a),
	})
}
