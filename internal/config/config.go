package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                string
	StorageDriver       string
	DatabaseURL         string
	RedisURL            string
	KafkaBrokers        string
	KafkaTopic          string
	KafkaSettlement     string
	KafkaGroupID        string
	NatsURL             string
	NatsSubject         string
	JaegerEndpoint      string
	StripeAPIKey        string
	StripeWebhookSecret string
	PaymentCurrency     string
	ProcessorTimeout    time.Duration
	ConfirmLockTTL      time.Duration
}

// Load reads the environment, after an optional .env file in the working
// directory. Unset keys fall back to local development defaults.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:                getEnv("PORT", "8082"),
		StorageDriver:       getEnv("STORAGE_DRIVER", "postgres"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		RedisURL:            os.Getenv("REDIS_URL"),
		KafkaBrokers:        os.Getenv("KAFKA_BROKERS"),
		KafkaTopic:          getEnv("KAFKA_TOPIC", "booking.state.changed"),
		KafkaSettlement:     os.Getenv("KAFKA_SETTLEMENT_TOPIC"),
		KafkaGroupID:        getEnv("KAFKA_GROUP_ID", "booking-engine"),
		NatsURL:             os.Getenv("NATS_URL"),
		NatsSubject:         getEnv("NATS_SUBJECT", "booking.events"),
		JaegerEndpoint:      os.Getenv("JAEGER_ENDPOINT"),
		StripeAPIKey:        os.Getenv("STRIPE_API_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		PaymentCurrency:     getEnv("PAYMENT_CURRENCY", "usd"),
		ProcessorTimeout:    getDuration("PROCESSOR_TIMEOUT", 10*time.Second),
		ConfirmLockTTL:      getDuration("CONFIRM_LOCK_TTL", 30*time.Second),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
