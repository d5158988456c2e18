package app

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// StorageDriver выбирает реализацию хранилища.
type StorageDriver string

const (
	// StorageDriverMemory — in-memory хранилище для разработки и тестов.
	StorageDriverMemory StorageDriver = "memory"
	// StorageDriverPostgres — PostgreSQL для продакшена.
	StorageDriverPostgres StorageDriver = "postgres"
)

// envPrefix — префикс переменных окружения: MARKET_HTTP_ADDR и т.д.
const envPrefix = "market"

// Config описывает настройки запуска приложения.
type Config struct {
	HTTPAddr    string `envconfig:"HTTP_ADDR" default:":8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	StorageDriver       StorageDriver `envconfig:"STORAGE_DRIVER" default:"memory"`
	PostgresDSN         string        `envconfig:"POSTGRES_DSN"`
	PostgresAutoMigrate bool          `envconfig:"POSTGRES_AUTO_MIGRATE" default:"true"`

	KafkaBrokers string `envconfig:"KAFKA_BROKERS"`
	KafkaGroupID string `envconfig:"KAFKA_GROUP_ID" default:"market-notify"`

	AuthAllowDevTokens bool `envconfig:"AUTH_ALLOW_DEV_TOKENS" default:"true"`

	// NotifyBufferSize — ёмкость канала push-подписчика.
	NotifyBufferSize int `envconfig:"NOTIFY_BUFFER_SIZE" default:"16"`

	OutboxPollInterval time.Duration `envconfig:"OUTBOX_POLL_INTERVAL" default:"1s"`
	OutboxBatchSize    int           `envconfig:"OUTBOX_BATCH_SIZE" default:"100"`
	OutboxMaxAttempts  int           `envconfig:"OUTBOX_MAX_ATTEMPTS" default:"3"`
	OutboxRetryDelay   time.Duration `envconfig:"OUTBOX_RETRY_DELAY" default:"100ms"`

	ExpirySweepInterval time.Duration `envconfig:"EXPIRY_SWEEP_INTERVAL" default:"1h"`
	ExpiryBatchSize     int           `envconfig:"EXPIRY_BATCH_SIZE" default:"100"`
	// BuyRequestTTL — срок жизни pending-заявки без ответа продавца (336h = 14 суток).
	BuyRequestTTL time.Duration `envconfig:"BUY_REQUEST_TTL" default:"336h"`
}

// DefaultConfig возвращает конфигурацию со значениями по умолчанию,
// совпадающими с default-тегами envconfig.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:            ":8080",
		MetricsAddr:         ":9090",
		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		KafkaGroupID:        "market-notify",
		AuthAllowDevTokens:  true,
		NotifyBufferSize:    16,
		OutboxPollInterval:  time.Second,
		OutboxBatchSize:     100,
		OutboxMaxAttempts:   3,
		OutboxRetryDelay:    100 * time.Millisecond,
		ExpirySweepInterval: time.Hour,
		ExpiryBatchSize:     100,
		BuyRequestTTL:       14 * 24 * time.Hour,
	}
}

// LoadConfig читает конфигурацию из окружения, подхватывая .env, если он есть.
func LoadConfig() (Config, error) {
	// .env опционален, его отсутствие не ошибка.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("load config from environment: %w", err)
	}
	return cfg, nil
}
