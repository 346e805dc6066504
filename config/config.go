package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StorageBackendPostgres = "postgres"
	StorageBackendMemory   = "memory"
)

type Config struct {
	ServiceName     string
	HTTPAddr        string
	StorageBackend  string
	ShutdownTimeout time.Duration

	Database Database
	Redis    Redis
	Kafka    Kafka

	JWTSecret string

	TracingEnabled bool
	JaegerEndpoint string

	ProductCacheTTL    time.Duration
	OrderUpdateRetries int
}

type Database struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type Redis struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
}

type Kafka struct {
	Enabled      bool
	Brokers      []string
	OrderTopic   string
	PaymentTopic string
}

func LoadConfig() *Config {
	return &Config{
		ServiceName:     getEnv("SERVICE_NAME", "shop-service"),
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		StorageBackend:  getEnv("STORAGE_BACKEND", StorageBackendPostgres),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		Database: Database{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnvFromFile("DB_PASSWORD_FILE", "DB_PASSWORD", "postgres"),
			Name:            getEnv("DB_NAME", "shopdb"),
			MaxOpenConns:    getInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getDuration("DB_CONN_MAX_IDLE_TIME", time.Minute),
		},
		Redis: Redis{
			Enabled:  getBool("REDIS_ENABLED", true),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnvFromFile("REDIS_PASSWORD_FILE", "REDIS_PASSWORD", ""),
		},
		Kafka: Kafka{
			Enabled:      getBool("KAFKA_ENABLED", true),
			Brokers:      splitList(getEnv("KAFKA_BROKER", "localhost:9092")),
			OrderTopic:   getEnv("KAFKA_ORDER_TOPIC", "order_events"),
			PaymentTopic: getEnv("KAFKA_PAYMENT_TOPIC", "payment_events"),
		},
		JWTSecret:          getEnvFromFile("JWT_SECRET_FILE", "JWT_SECRET", "your-secret-key-change-in-production"),
		TracingEnabled:     getBool("TRACING_ENABLED", true),
		JaegerEndpoint:     getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
		ProductCacheTTL:    getDuration("PRODUCT_CACHE_TTL", 5*time.Minute),
		OrderUpdateRetries: getInt("ORDER_UPDATE_RETRIES", 3),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvFromFile prefers the contents of the file named by fileKey (docker secrets),
// falling back to envKey.
func getEnvFromFile(fileKey, envKey, defaultValue string) string {
	if filePath := os.Getenv(fileKey); filePath != "" {
		if content, err := os.ReadFile(filePath); err == nil {
			return strings.TrimSpace(string(content))
		}
	}
	return getEnv(envKey, defaultValue)
}

func getInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
