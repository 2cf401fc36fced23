package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env      string   `yaml:"env" env:"ENV" env-default:"local"`
	HTTP     HTTP     `yaml:"http"`
	Postgres PG       `yaml:"postgres"`
	Redis    Redis    `yaml:"redis"`
	Kafka    Kafka    `yaml:"kafka"`
	Gateway  Gateway  `yaml:"gateway"`
	Checkout Checkout `yaml:"checkout"`
	Log      Log      `yaml:"log"`
}

type HTTP struct {
	Port    string        `yaml:"port" env:"HTTP_PORT" env-default:":3000"`
	Timeout time.Duration `yaml:"timeout" env-default:"4s"`
}

type PG struct {
	URL string `yaml:"url" env:"DB_URL"`
}

type Redis struct {
	Addr string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
}

type Kafka struct {
	Brokers     []string `yaml:"brokers" env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	OrderTopic  string   `yaml:"order_topic" env:"KAFKA_ORDER_TOPIC" env-default:"order_events"`
	MirrorGroup string   `yaml:"mirror_group" env:"KAFKA_MIRROR_GROUP" env-default:"storefront-mirror-v1"`
}

// Gateway configures the outbound payment-gateway client and the shared
// secret used to verify inbound callback signatures.
type Gateway struct {
	BaseURL  string        `yaml:"base_url" env:"GATEWAY_BASE_URL"`
	Secret   string        `yaml:"secret" env:"GATEWAY_SECRET"`
	Currency string        `yaml:"currency" env:"GATEWAY_CURRENCY" env-default:"USD"`
	Timeout  time.Duration `yaml:"timeout" env:"GATEWAY_TIMEOUT" env-default:"10s"`
}

type Checkout struct {
	// PaymentTTL bounds how long an order may sit in awaiting_payment before
	// the expiry sweeper cancels it and releases its reservation.
	PaymentTTL    time.Duration `yaml:"payment_ttl" env:"CHECKOUT_PAYMENT_TTL" env-default:"30m"`
	SweepInterval time.Duration `yaml:"sweep_interval" env:"CHECKOUT_SWEEP_INTERVAL" env-default:"1m"`
}

type Log struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
}

func MustLoad() *Config {
	configPath := EnvOr("CONFIG_PATH", "./config/local.yaml")

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("config file does not exists: %v\n", err)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("error reading config: %v", err)
	}

	return &cfg
}

func EnvOr(name string, fallback string) string {
	result := os.Getenv(name)
	if result == "" {
		result = fallback
	}

	return result
}
