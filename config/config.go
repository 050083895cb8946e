package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config 从环境变量读取
type Config struct {
	App     AppConfig
	DB      DBConfig
	Redis   RedisConfig
	Web     WebConfig
	Loans   LoansConfig
	Overdue OverdueConfig
}

type AppConfig struct {
	Port      string `envconfig:"PORT" default:"3001"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
	WarnStack bool   `envconfig:"LOG_WARN_STACK" default:"false"`
}

type DBConfig struct {
	URL      string `envconfig:"DATABASE_URL"`
	Host     string `envconfig:"DB_HOST" default:"127.0.0.1"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	User     string `envconfig:"DB_USER" default:"postgres"`
	Password string `envconfig:"DB_PASSWORD"`
	Name     string `envconfig:"DB_NAME" default:"lending"`
	SSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"1h"`
}

// DSN 优先使用 DATABASE_URL，否则按分项拼接
func (c DBConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		c.Host, c.User, c.Password, c.Name, c.Port, c.SSLMode,
	)
}

type RedisConfig struct {
	Addr     string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

type WebConfig struct {
	Origin string `envconfig:"WEB_ORIGIN" default:"http://localhost:5173"`
	RPID   string `envconfig:"RP_ID" default:"localhost"`
	// 逗号分隔，例如 "https://a.example,https://b.example"
	RPOrigins     []string      `envconfig:"RP_ORIGINS" default:"http://localhost:5173"`
	CeremonyTTL   time.Duration `envconfig:"SESSION_TTL" default:"10m"`
	AppSessionTTL time.Duration `envconfig:"APP_SESSION_TTL" default:"24h"`
	SeenThrottle  time.Duration `envconfig:"LAST_SEEN_THROTTLE" default:"5m"`
}

type LoansConfig struct {
	RetryAttempts  int           `envconfig:"LOAN_RETRY_ATTEMPTS" default:"3"`
	RetryBaseDelay time.Duration `envconfig:"LOAN_RETRY_BASE_DELAY" default:"0s"`
}

type OverdueConfig struct {
	SweepInterval time.Duration `envconfig:"OVERDUE_SWEEP_INTERVAL" default:"15m"`
	BlockFor      time.Duration `envconfig:"OVERDUE_BLOCK_FOR" default:"720h"`
	InProcess     bool          `envconfig:"OVERDUE_IN_PROCESS" default:"true"`
	LockKey       string        `envconfig:"OVERDUE_LOCK_KEY" default:"lending:cron:overdue:lock"`
	LockTTL       time.Duration `envconfig:"OVERDUE_LOCK_TTL" default:"10m"`
}

// LoadEnv 读取 .env（不存在则忽略，直接用进程环境变量）
func LoadEnv() {
	if err := godotenv.Load(); err != nil {
		log.Println(".env not found, relying on environment")
	}
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.Loans.RetryAttempts <= 0 {
		return nil, fmt.Errorf("LOAN_RETRY_ATTEMPTS must be positive, got %d", cfg.Loans.RetryAttempts)
	}
	if cfg.Overdue.SweepInterval <= 0 {
		return nil, fmt.Errorf("OVERDUE_SWEEP_INTERVAL must be positive")
	}
	return &cfg, nil
}
