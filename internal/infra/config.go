package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config - корневая структура конфигурации роутера и консоли.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Engine       EngineConfig       `mapstructure:"engine"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Logger       LoggerConfig       `mapstructure:"logger"`
}

// ServerConfig описывает адреса HTTP/gRPC слушателей.
type ServerConfig struct {
	RouterAddr         string        `mapstructure:"router_addr"`
	ConsoleAddr        string        `mapstructure:"console_addr"`
	GRPCAddr           string        `mapstructure:"grpc_addr"`
	MetricsAddr        string        `mapstructure:"metrics_addr"`
	ConsoleMetricsAddr string        `mapstructure:"console_metrics_addr"` // метрики консоли на отдельном порту
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig описывает подключение к PostgreSQL.
// Пустой URL включает in-memory хранилище (dev-режим).
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
	Migrate  bool   `mapstructure:"migrate"`
}

// RedisConfig описывает подключение к Redis (Pub/Sub и распределенные блокировки).
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig содержит путь к публичному RSA ключу для проверки JWT консоли.
// Без ключа консоль работает без авторизации.
type AuthConfig struct {
	PublicKeyPath string `mapstructure:"public_key_path"`
	RequiredScope string `mapstructure:"required_scope"`
	PublicKey     []byte
}

// EngineConfig содержит настройки Data Plane классификации трафика.
type EngineConfig struct {
	StoreTimeout time.Duration `mapstructure:"store_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// Предохранитель и лимитер для best-effort записей в журнал и метрики
	CBMaxRequests uint32        `mapstructure:"cb_max_requests"`
	CBInterval    time.Duration `mapstructure:"cb_interval"`
	CBTimeout     time.Duration `mapstructure:"cb_timeout"`
	CBFailures    uint32        `mapstructure:"cb_failures"`
	WriteRPS      float64       `mapstructure:"write_rps"`
	WriteBurst    int           `mapstructure:"write_burst"`

	PreferredDecoyCategories []string `mapstructure:"preferred_decoy_categories"`
}

// OrchestratorConfig - настройки Control Plane.
type OrchestratorConfig struct {
	RestartDelay       time.Duration `mapstructure:"restart_delay"`
	StoreTimeout       time.Duration `mapstructure:"store_timeout"`
	DistributedLock    bool          `mapstructure:"distributed_lock"`
	LockTTL            time.Duration `mapstructure:"lock_ttl"`
	AuditBufferSize    int           `mapstructure:"audit_buffer_size"`
	AuditBatchSize     int           `mapstructure:"audit_batch_size"`
	AuditFlushInterval time.Duration `mapstructure:"audit_flush_interval"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
func LoadConfig() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	// ENGINE_STORE_TIMEOUT=1s перекроет engine.store_timeout
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет - работаем на ENV и дефолтах
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.router_addr", ":8080")
	v.SetDefault("server.console_addr", ":8000")
	v.SetDefault("server.grpc_addr", ":50052")
	v.SetDefault("server.metrics_addr", ":9090")
	v.SetDefault("server.console_metrics_addr", ":9091")
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)

	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.migrate", true)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")

	v.SetDefault("auth.required_scope", "honeypots:manage")

	v.SetDefault("engine.store_timeout", 2*time.Second)
	v.SetDefault("engine.write_timeout", 1*time.Second)
	v.SetDefault("engine.cb_max_requests", 3)
	v.SetDefault("engine.cb_interval", 5*time.Second)
	v.SetDefault("engine.cb_timeout", 30*time.Second)
	v.SetDefault("engine.cb_failures", 5)
	v.SetDefault("engine.write_rps", 500.0)
	v.SetDefault("engine.write_burst", 100)
	v.SetDefault("engine.preferred_decoy_categories", []string{"admin", "financial"})

	v.SetDefault("orchestrator.restart_delay", 1*time.Second)
	v.SetDefault("orchestrator.store_timeout", 5*time.Second)
	v.SetDefault("orchestrator.distributed_lock", false)
	v.SetDefault("orchestrator.lock_ttl", 30*time.Second)
	v.SetDefault("orchestrator.audit_buffer_size", 1000)
	v.SetDefault("orchestrator.audit_batch_size", 100)
	v.SetDefault("orchestrator.audit_flush_interval", 500*time.Millisecond)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
}

// Validate отсекает конфигурации, с которыми сервис не сможет корректно работать.
func (c *Config) Validate() error {
	if c.Engine.StoreTimeout <= 0 || c.Engine.WriteTimeout <= 0 {
		return errors.New("config: engine timeouts must be positive")
	}
	if c.Orchestrator.StoreTimeout <= 0 {
		return errors.New("config: orchestrator.store_timeout must be positive")
	}
	if c.Orchestrator.DistributedLock && !c.Redis.Enabled {
		return errors.New("config: orchestrator.distributed_lock requires redis.enabled")
	}
	if c.Orchestrator.LockTTL <= 0 {
		return errors.New("config: orchestrator.lock_ttl must be positive")
	}
	return nil
}

// loadKeyResource - ключ берется из ENV (для Docker/K8s), иначе читается файл по пути из конфига
func loadKeyResource(path string, envDataKey string) []byte {
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
