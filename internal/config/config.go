package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const minJWTSecretLength = 16

type Config struct {
	AppEnv    string
	HTTPPort  string
	GRPCPort  string
	ServiceID string
	LogLevel  string

	StoreDriver string
	MongoURI    string
	MongoDB     string
	MySQLDSN    string
	RedisAddr   string

	KafkaBrokers []string
	KafkaTopic   string

	JWTSecret        string
	JWTTTL           time.Duration
	AllowAdminSignup bool

	CORSOrigin     string
	RateLimitRPS   float64
	RateLimitBurst int

	OTelEndpoint   string
	OTelAuthHeader string
	ConsulAddr     string
}

func LoadConfig() (*Config, error) {
	serviceID := os.Getenv("SERVICE_ID")
	if serviceID == "" {
		serviceID = uuid.New().String()
	}

	ttl, err := time.ParseDuration(getEnv("JWT_TTL", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_TTL: %w", err)
	}
	rps, err := strconv.ParseFloat(getEnv("RATE_LIMIT_RPS", "20"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_RPS: %w", err)
	}
	burst, err := strconv.Atoi(getEnv("RATE_LIMIT_BURST", "40"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_BURST: %w", err)
	}
	allowAdmin, err := strconv.ParseBool(getEnv("ALLOW_ADMIN_SIGNUP", "true"))
	if err != nil {
		return nil, fmt.Errorf("invalid ALLOW_ADMIN_SIGNUP: %w", err)
	}

	cfg := &Config{
		AppEnv:    getEnv("APP_ENV", "production"),
		HTTPPort:  getEnv("HTTP_PORT", "3000"),
		GRPCPort:  getEnv("GRPC_PORT", "50051"),
		ServiceID: serviceID,
		LogLevel:  getEnv("LOG_LEVEL", "info"),

		StoreDriver: getEnv("STORE_DRIVER", "mongo"),
		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:     getEnv("MONGO_DB", "sweetshop"),
		MySQLDSN:    getEnv("MYSQL_DSN", "root:root@tcp(localhost:3306)/sweetshop?parseTime=true"),
		RedisAddr:   os.Getenv("REDIS_ADDR"),

		KafkaBrokers: parseList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "sweet-events"),

		JWTSecret:        os.Getenv("JWT_SECRET"),
		JWTTTL:           ttl,
		AllowAdminSignup: allowAdmin,

		CORSOrigin:     getEnv("CORS_ORIGIN", "http://localhost:5173"),
		RateLimitRPS:   rps,
		RateLimitBurst: burst,

		OTelEndpoint:   os.Getenv("OTEL_ENDPOINT"),
		OTelAuthHeader: os.Getenv("OTEL_AUTH_HEADER"),
		ConsulAddr:     os.Getenv("CONSUL_ADDR"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Development() bool {
	return c.AppEnv == "development"
}

func (c *Config) Validate() error {
	if c.HTTPPort == "" {
		return fmt.Errorf("HTTP_PORT is required")
	}
	switch c.StoreDriver {
	case "mongo":
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required")
		}
		if c.MongoDB == "" {
			return fmt.Errorf("MONGO_DB is required")
		}
	case "mysql":
		if c.MySQLDSN == "" {
			return fmt.Errorf("MYSQL_DSN is required")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if !c.Development() && len(c.JWTSecret) < minJWTSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters", minJWTSecretLength)
	}
	if c.JWTTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be positive")
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return fmt.Errorf("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	if c.RateLimitRPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS cannot be negative")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
