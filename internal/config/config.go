package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Provider holds one payment gateway's credentials and selection weight.
type Provider struct {
	Name       string `json:"name"`
	Weight     int    `json:"weight"`
	APIURL     string `json:"apiUrl"`
	MerchantID string `json:"merchantId"`
	APIKey     string `json:"apiKey"`
	SignKey    string `json:"signKey"`
	HashKey    string `json:"hashKey"`
}

type Config struct {
	DatabaseURL    string
	RedisURL       string
	KafkaBrokers   string
	NatsURL        string
	JaegerEndpoint string
	Port           string
	GRPCPort       string

	MinimumAmount  int64
	Providers      []Provider
	AllowedOrigins []string
	GatewayTimeout time.Duration

	TxStore string
	TxTTL   time.Duration

	ReturnURL string
	CloseURL  string

	EventsTopic         string
	CancelRequestsTopic string
}

func Load() (*Config, error) {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	minimum, err := strconv.ParseInt(getEnv("MINIMUM_AMOUNT", "100"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid MINIMUM_AMOUNT: %w", err)
	}

	timeout, err := time.ParseDuration(getEnv("GATEWAY_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid GATEWAY_TIMEOUT: %w", err)
	}

	ttl, err := time.ParseDuration(getEnv("TX_TTL", "30m"))
	if err != nil {
		return nil, fmt.Errorf("invalid TX_TTL: %w", err)
	}

	var providers []Provider
	if raw := os.Getenv("PG_PROVIDERS"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &providers); err != nil {
			return nil, fmt.Errorf("invalid PG_PROVIDERS: %w", err)
		}
	}

	cfg := &Config{
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		RedisURL:            os.Getenv("REDIS_URL"),
		KafkaBrokers:        os.Getenv("KAFKA_BROKERS"),
		NatsURL:             os.Getenv("NATS_URL"),
		JaegerEndpoint:      os.Getenv("JAEGER_ENDPOINT"),
		Port:                getEnv("PORT", "8082"),
		GRPCPort:            getEnv("GRPC_PORT", "9082"),
		MinimumAmount:       minimum,
		Providers:           providers,
		AllowedOrigins:      splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
		GatewayTimeout:      timeout,
		TxStore:             getEnv("TX_STORE", "memory"),
		TxTTL:               ttl,
		ReturnURL:           getEnv("RETURN_URL", "http://localhost:3000/api/payment/return"),
		CloseURL:            getEnv("CLOSE_URL", "http://localhost:3000/payment/cancel"),
		EventsTopic:         getEnv("EVENTS_TOPIC", "payment.state.changed"),
		CancelRequestsTopic: getEnv("CANCEL_REQUESTS_TOPIC", "payment.cancel.requested"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the invariants the orchestrator relies on.
func (c *Config) Validate() error {
	if c.MinimumAmount <= 0 {
		return errors.New("minimum amount must be positive")
	}
	if len(c.Providers) == 0 {
		return errors.New("at least one PG provider must be configured")
	}
	seen := make(map[string]struct{}, len(c.Providers))
	for _, p := range c.Providers {
		if p.Name == "" {
			return errors.New("PG provider name is required")
		}
		if p.Weight < 0 {
			return fmt.Errorf("PG provider %s has negative weight %d", p.Name, p.Weight)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("PG provider %s configured twice", p.Name)
		}
		seen[p.Name] = struct{}{}
	}
	switch c.TxStore {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown TX_STORE %q", c.TxStore)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
