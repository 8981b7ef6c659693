package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

var (
	once   sync.Once
	config *Config
)

// MinSecretLength 令牌签名密钥最小长度
const MinSecretLength = 16

// 权限模式
const (
	PermissionModeRoleMenu = "role-menu"
	PermissionModeCasbin   = "casbin"
)

// Config 全局配置结构
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Token      TokenConfig      `mapstructure:"token"`
	Permission PermissionConfig `mapstructure:"permission"`
	Casbin     CasbinConfig     `mapstructure:"casbin"`
	RateLimit  RateLimitConfig  `mapstructure:"rateLimit"`
	Log        LogConfig        `mapstructure:"log"`
}

// AppConfig 应用配置
type AppConfig struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
	// AdminUsername/AdminPassword 首次启动且无用户时创建的超级管理员
	AdminUsername string `mapstructure:"adminUsername"`
	AdminPassword string `mapstructure:"adminPassword"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTP HTTPConfig `mapstructure:"http"`
}

// HTTPConfig HTTP服务配置
type HTTPConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`
	WriteTimeout int    `mapstructure:"writeTimeout"`
	// AllowOrigins 跨域白名单，为空时拒绝所有跨域请求，"*" 放行所有来源但不携带凭证
	AllowOrigins []string `mapstructure:"allowOrigins"`
}

// Addr 监听地址
func (c *HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver       string        `mapstructure:"driver"`
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Database     string        `mapstructure:"database"`
	Username     string        `mapstructure:"username"`
	Password     string        `mapstructure:"password"`
	Charset      string        `mapstructure:"charset"`
	MaxIdleConns int           `mapstructure:"maxIdleConns"`
	MaxOpenConns int           `mapstructure:"maxOpenConns"`
	LogLevel     string        `mapstructure:"logLevel"`
	QueryTimeout time.Duration `mapstructure:"queryTimeout"`
}

// DSN 生成数据库连接字符串
func (c *DatabaseConfig) DSN() string {
	switch c.Driver {
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=Local",
			c.Username, c.Password, c.Host, c.Port, c.Database, c.Charset)
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			c.Host, c.Port, c.Username, c.Password, c.Database)
	case "sqlite":
		if c.Database == "" {
			return ":memory:"
		}
		return c.Database
	default:
		return ""
	}
}

// RedisConfig Redis配置
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	PoolSize int           `mapstructure:"poolSize"`
	Mode     string        `mapstructure:"mode"` // "standalone" 外部 Redis, "memory" 内存模式
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Addr 获取Redis地址
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// TokenConfig 令牌配置
type TokenConfig struct {
	Secret        string        `mapstructure:"secret"`
	Algorithm     string        `mapstructure:"algorithm"`
	Issuer        string        `mapstructure:"issuer"`
	Expire        time.Duration `mapstructure:"expire"`
	RefreshExpire time.Duration `mapstructure:"refreshExpire"`
	AccessPrefix  string        `mapstructure:"accessPrefix"`
	RefreshPrefix string        `mapstructure:"refreshPrefix"`
	MultiLogin    bool          `mapstructure:"multiLogin"`
	StoreTimeout  time.Duration `mapstructure:"storeTimeout"`
	// Exclude 无需认证的路径，支持 /* 前缀匹配
	Exclude []string `mapstructure:"exclude"`
}

// RouteRule 方法+路径
type RouteRule struct {
	Method string `mapstructure:"method"`
	Path   string `mapstructure:"path"`
}

// PermissionConfig 权限配置
type PermissionConfig struct {
	Mode         string        `mapstructure:"mode"`
	CachePrefix  string        `mapstructure:"cachePrefix"`
	StoreTimeout time.Duration `mapstructure:"storeTimeout"`
	// TagExclude 跳过鉴权的权限标识
	TagExclude []string `mapstructure:"tagExclude"`
	// CasbinExclude casbin 模式下放行的 方法+路径
	CasbinExclude []RouteRule `mapstructure:"casbinExclude"`
}

// CasbinConfig Casbin配置
type CasbinConfig struct {
	// ModelPath 为空时使用内置模型
	ModelPath      string        `mapstructure:"modelPath"`
	TablePrefix    string        `mapstructure:"tablePrefix"`
	TableName      string        `mapstructure:"tableName"`
	Channel        string        `mapstructure:"channel"`
	ReloadInterval time.Duration `mapstructure:"reloadInterval"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Login  int           `mapstructure:"login"`
	Window time.Duration `mapstructure:"window"`
	// Prefix 计数在共享存储中的键前缀
	Prefix string `mapstructure:"prefix"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAge     int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// Init 初始化配置
func Init(configPath string) error {
	var err error
	once.Do(func() {
		config, err = Load(configPath)
	})
	return err
}

// Load 加载配置文件，不影响全局实例
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath("../configs")
		v.AddConfigPath("../../configs")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// 加载环境特定配置
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = v.GetString("app.env")
	}

	if env != "" && env != "default" {
		v.SetConfigName(fmt.Sprintf("config.%s", env))
		if err := v.MergeInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to merge env config: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	resolveEnvVars(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults 默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "goadmin")
	v.SetDefault("app.adminUsername", "admin")
	v.SetDefault("server.http.host", "0.0.0.0")
	v.SetDefault("server.http.port", 8000)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.queryTimeout", 5*time.Second)
	v.SetDefault("redis.mode", "memory")
	v.SetDefault("redis.timeout", 3*time.Second)
	v.SetDefault("token.algorithm", "HS256")
	v.SetDefault("token.expire", 24*time.Hour)
	v.SetDefault("token.refreshExpire", 7*24*time.Hour)
	v.SetDefault("token.accessPrefix", "goadmin:token")
	v.SetDefault("token.refreshPrefix", "goadmin:refresh_token")
	v.SetDefault("token.multiLogin", true)
	v.SetDefault("token.storeTimeout", 3*time.Second)
	v.SetDefault("permission.mode", PermissionModeRoleMenu)
	v.SetDefault("permission.cachePrefix", "goadmin:permission")
	v.SetDefault("permission.storeTimeout", 3*time.Second)
	v.SetDefault("casbin.tablePrefix", "sys")
	v.SetDefault("casbin.tableName", "casbin_rule")
	v.SetDefault("casbin.channel", "goadmin:casbin:reload")
	v.SetDefault("rateLimit.login", 5)
	v.SetDefault("rateLimit.window", time.Minute)
	v.SetDefault("rateLimit.prefix", "goadmin:ratelimit")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "console")
}

// Validate 校验关键配置
func (c *Config) Validate() error {
	switch c.Permission.Mode {
	case PermissionModeRoleMenu, PermissionModeCasbin:
	default:
		return fmt.Errorf("invalid permission mode %q", c.Permission.Mode)
	}
	if c.Token.Secret == "" {
		return fmt.Errorf("token.secret is required")
	}
	if isPlaceholder(c.Token.Secret) {
		return fmt.Errorf("token.secret placeholder %s is not resolved", c.Token.Secret)
	}
	if len(c.Token.Secret) < MinSecretLength {
		return fmt.Errorf("token.secret must be at least %d bytes", MinSecretLength)
	}
	if c.Token.Expire <= 0 || c.Token.RefreshExpire <= 0 {
		return fmt.Errorf("token expire must be positive")
	}
	return nil
}

// resolveEnvVars 解析环境变量占位符
func resolveEnvVars(cfg *Config) {
	cfg.Database.Host = resolveEnvVar(cfg.Database.Host)
	cfg.Database.Username = resolveEnvVar(cfg.Database.Username)
	cfg.Database.Password = resolveEnvVar(cfg.Database.Password)
	cfg.Database.Database = resolveEnvVar(cfg.Database.Database)
	cfg.Redis.Host = resolveEnvVar(cfg.Redis.Host)
	cfg.Redis.Password = resolveEnvVar(cfg.Redis.Password)
	cfg.Token.Secret = resolveEnvVar(cfg.Token.Secret)
	cfg.App.AdminPassword = resolveEnvVar(cfg.App.AdminPassword)
}

// isPlaceholder 是否为 ${ENV} 形式的占位符
func isPlaceholder(value string) bool {
	return strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}")
}

// resolveEnvVar 解析单个环境变量，未设置时原样保留
func resolveEnvVar(value string) string {
	if isPlaceholder(value) {
		envKey := strings.TrimSuffix(strings.TrimPrefix(value, "${"), "}")
		if envValue := os.Getenv(envKey); envValue != "" {
			return envValue
		}
	}
	return value
}

// Get 获取配置实例
func Get() *Config {
	if config == nil {
		panic("config not initialized, call Init first")
	}
	return config
}
