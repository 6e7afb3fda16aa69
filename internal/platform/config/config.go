package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 结构体定义了应用程序的所有配置项
// 它与 config.yaml 文件的结构完全对应
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Stats         StatsConfig         `mapstructure:"stats"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Log           LogConfig           `mapstructure:"log"`
}

// ServerConfig 定义了服务器相关的配置
type ServerConfig struct {
	Mode      string          `mapstructure:"mode"`
	Address   string          `mapstructure:"address"`
	Cors      CorsConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rateLimit"`
}

// CorsConfig 定义了CORS相关的配置
type CorsConfig struct {
	AllowedOrigins []string `mapstructure:"allowedOrigins"`
}

// RateLimitConfig 定义了每个用户的请求速率限制
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requestsPerSecond"`
	Burst             int     `mapstructure:"burst"`
}

// DatabaseConfig 定义了数据库和缓存相关的配置
type DatabaseConfig struct {
	Driver string      `mapstructure:"driver"` // sqlite 或 postgres
	DSN    string      `mapstructure:"dsn"`
	Redis  RedisConfig `mapstructure:"redis"`
}

// RedisConfig 定义了Redis的配置
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig 定义了身份令牌的校验方式
type AuthConfig struct {
	// Mode 为 "firebase" 时校验Google签发的ID令牌，为 "hs256" 时使用共享密钥
	Mode      string `mapstructure:"mode"`
	Secret    string `mapstructure:"secret"`
	ProjectID string `mapstructure:"projectId"`
}

// StatsConfig 定义了统计模块的配置
type StatsConfig struct {
	Timezone    string        `mapstructure:"timezone"`
	CacheTTL    time.Duration `mapstructure:"cacheTTL"`
	DefaultDays int           `mapstructure:"defaultDays"`
}

// NotificationsConfig 定义了提醒任务的配置
type NotificationsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"` // 标准5段cron表达式，或 @every 1h 之类的描述符
	Timezone string `mapstructure:"timezone"`
}

// LogConfig 定义了日志输出
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text 或 json
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.cors.allowedOrigins", []string{"http://localhost:3000"})
	v.SetDefault("server.rateLimit.requestsPerSecond", 10.0)
	v.SetDefault("server.rateLimit.burst", 20)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "habits.db")
	v.SetDefault("database.redis.enabled", false)
	v.SetDefault("database.redis.address", "localhost:6379")

	v.SetDefault("auth.mode", "firebase")

	v.SetDefault("stats.timezone", "UTC")
	v.SetDefault("stats.cacheTTL", time.Minute)
	v.SetDefault("stats.defaultDays", 60)

	v.SetDefault("notifications.enabled", true)
	v.SetDefault("notifications.schedule", "0 20 * * *")
	v.SetDefault("notifications.timezone", "UTC")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// LoadConfig 函数负责查找、加载和解析配置文件
// 它会在 ./config 和当前目录中查找名为 config.yaml 的文件，找不到时只使用默认值和环境变量
func LoadConfig() (*Config, error) {
	// .env 文件是可选的，不存在时忽略
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	return load(v)
}

// LoadConfigFile 从指定路径加载配置，主要供测试和命令行覆盖使用
func LoadConfigFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	// 允许通过环境变量覆盖配置，例如 SERVER_ADDRESS=:8888
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查配置中不能在运行时再纠正的错误
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("不支持的数据库驱动: %q", c.Database.Driver)
	}
	switch c.Auth.Mode {
	case "firebase":
		if c.Auth.ProjectID == "" {
			return errors.New("auth.mode=firebase 时必须设置 auth.projectId")
		}
	case "hs256":
		if c.Auth.Secret == "" {
			return errors.New("auth.mode=hs256 时必须设置 auth.secret")
		}
	default:
		return fmt.Errorf("不支持的认证模式: %q", c.Auth.Mode)
	}
	if _, err := time.LoadLocation(c.Stats.Timezone); err != nil {
		return fmt.Errorf("无效的 stats.timezone: %w", err)
	}
	if _, err := time.LoadLocation(c.Notifications.Timezone); err != nil {
		return fmt.Errorf("无效的 notifications.timezone: %w", err)
	}
	if c.Stats.DefaultDays <= 0 {
		return errors.New("stats.defaultDays 必须为正数")
	}
	return nil
}
