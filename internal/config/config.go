package config

import (
	"fmt"
	"os"
	"time"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig MQTT配置
type MQTTConfig struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	TLSEnabled     bool
	CAFile         string // CA证书路径（TLS连接时使用）
	ReconnectDelay time.Duration
}

// TopicsConfig 订阅主题配置（通配符形式，{deviceId} 位置为 +）
type TopicsConfig struct {
	Telemetry   string // 遥测主题，如 "v1/+/telemetry"
	Diagnostics string // 诊断主题，如 "v1/+/diagnostics"
	Crash       string // 碰撞事件主题，如 "v1/+/events/crash"
	Panic       string // 紧急求助主题，如 "v1/+/events/panic"
}

// ProcessorConfig 处理器配置
type ProcessorConfig struct {
	QueueSize     int           // 每类消息的通道缓冲大小
	DBTimeout     time.Duration // 单次持久化操作超时
	MetricsReport time.Duration // 指标上报间隔
}

// NotifierConfig 通知配置
type NotifierConfig struct {
	MaxAttempts    int           // 最大发送尝试次数
	InitialBackoff time.Duration // 初始退避时间（指数退避）
}

// SinkConfig 遥测下游配置
type SinkConfig struct {
	Stream    string        // Redis Streams 名称
	LatestTTL time.Duration // 设备最新样本缓存TTL
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string
	Format string
}

// Config 黑匣子接入服务配置
type Config struct {
	Database  DatabaseConfig
	Redis     RedisConfig
	MQTT      MQTTConfig
	Topics    TopicsConfig
	Processor ProcessorConfig
	Notifier  NotifierConfig
	Sink      SinkConfig
	Log       LogConfig
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	// 从环境变量加载（带默认值）
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "blackbox")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 20)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "ssl://localhost:8883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "blackbox-ingest")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.TLSEnabled = getEnv("MQTT_TLS_ENABLED", "true") == "true"
	cfg.MQTT.CAFile = getEnv("MQTT_CA_FILE", "")
	cfg.MQTT.ReconnectDelay = getEnvDuration("MQTT_RECONNECT_DELAY", 5*time.Second)

	cfg.Topics.Telemetry = getEnv("TOPIC_TELEMETRY", "v1/+/telemetry")
	cfg.Topics.Diagnostics = getEnv("TOPIC_DIAGNOSTICS", "v1/+/diagnostics")
	cfg.Topics.Crash = getEnv("TOPIC_CRASH", "v1/+/events/crash")
	cfg.Topics.Panic = getEnv("TOPIC_PANIC", "v1/+/events/panic")

	cfg.Processor.QueueSize = getEnvInt("PROCESSOR_QUEUE_SIZE", 256)
	cfg.Processor.DBTimeout = getEnvDuration("PROCESSOR_DB_TIMEOUT", 5*time.Second)
	cfg.Processor.MetricsReport = getEnvDuration("PROCESSOR_METRICS_REPORT", 60*time.Second)

	cfg.Notifier.MaxAttempts = getEnvInt("NOTIFIER_MAX_ATTEMPTS", 3)
	cfg.Notifier.InitialBackoff = getEnvDuration("NOTIFIER_INITIAL_BACKOFF", time.Second)

	cfg.Sink.Stream = getEnv("SINK_STREAM", "blackbox:telemetry:stream")
	cfg.Sink.LatestTTL = getEnvDuration("SINK_LATEST_TTL", 10*time.Minute)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var n int
		if _, err := fmt.Sscanf(value, "%d", &n); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
