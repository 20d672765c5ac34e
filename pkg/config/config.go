package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	NATS      NATSConfig
	Dispatch  DispatchConfig
	Payments  PaymentsConfig
	Simulator SimulatorConfig
	Timeouts  TimeoutConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port         string
	Environment  string
	ServiceName  string
	ReadTimeout  int
	WriteTimeout int
	CORSOrigins  string // Comma-separated list of allowed origins
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host           string
	Port           string
	User           string
	Password       string
	DBName         string
	SSLMode        string
	MaxConns       int
	MinConns       int
	MigrationsPath string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// NATSConfig holds event bus configuration
type NATSConfig struct {
	URL        string
	StreamName string
}

// DispatchConfig tunes the matching engine
type DispatchConfig struct {
	SearchRadiusKm    float64
	MaxOffersPerRound int
	OfferTTLSeconds   int
	SweepInterval     time.Duration
	LockLease         time.Duration
}

// PaymentsConfig tunes the payment pipeline
type PaymentsConfig struct {
	CardSuccessProbability float64
	LockLease              time.Duration
	IdempotencyTTL         time.Duration
}

// SimulatorConfig tunes the driver motion simulator
type SimulatorConfig struct {
	Enabled          bool
	SpeedKmh         float64
	TickInterval     time.Duration
	ArrivalThreshold float64 // km
}

// TimeoutConfig holds per-adapter I/O deadlines
type TimeoutConfig struct {
	Request    time.Duration
	Database   time.Duration
	Cache      time.Duration
	BusPublish time.Duration
	PSP        time.Duration
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			Environment:  getEnv("ENVIRONMENT", "development"),
			ServiceName:  serviceName,
			ReadTimeout:  getEnvAsInt("READ_TIMEOUT", 10),
			WriteTimeout: getEnvAsInt("WRITE_TIMEOUT", 10),
			CORSOrigins:  getEnv("CORS_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			Host:           getEnv("DB_HOST", "localhost"),
			Port:           getEnv("DB_PORT", "5432"),
			User:           getEnv("DB_USER", "postgres"),
			Password:       getEnv("DB_PASSWORD", "postgres"),
			DBName:         getEnv("DB_NAME", "dispatch"),
			SSLMode:        getEnv("DB_SSLMODE", "disable"),
			MaxConns:       getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:       getEnvAsInt("DB_MIN_CONNS", 5),
			MigrationsPath: getEnv("DB_MIGRATIONS_PATH", "file://migrations"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		NATS: NATSConfig{
			URL:        getEnv("NATS_URL", "nats://localhost:4222"),
			StreamName: getEnv("NATS_STREAM", "DISPATCH"),
		},
		Dispatch: DispatchConfig{
			SearchRadiusKm:    getEnvAsFloat("DISPATCH_SEARCH_RADIUS_KM", 5.0),
			MaxOffersPerRound: getEnvAsInt("DISPATCH_MAX_OFFERS", 20),
			OfferTTLSeconds:   getEnvAsInt("DISPATCH_OFFER_TTL_SECONDS", 15),
			SweepInterval:     getEnvAsDuration("DISPATCH_SWEEP_INTERVAL", 5*time.Second),
			LockLease:         getEnvAsDuration("DISPATCH_LOCK_LEASE", 5*time.Second),
		},
		Payments: PaymentsConfig{
			CardSuccessProbability: getEnvAsFloat("PAYMENTS_CARD_SUCCESS_PROBABILITY", 0.95),
			LockLease:              getEnvAsDuration("PAYMENTS_LOCK_LEASE", 30*time.Second),
			IdempotencyTTL:         getEnvAsDuration("PAYMENTS_IDEMPOTENCY_TTL", 24*time.Hour),
		},
		Simulator: SimulatorConfig{
			Enabled:          getEnvAsBool("SIMULATOR_ENABLED", true),
			SpeedKmh:         getEnvAsFloat("SIMULATOR_SPEED_KMH", 30.0),
			TickInterval:     getEnvAsDuration("SIMULATOR_TICK_INTERVAL", 2*time.Second),
			ArrivalThreshold: getEnvAsFloat("SIMULATOR_ARRIVAL_THRESHOLD_KM", 0.05),
		},
		Timeouts: TimeoutConfig{
			Request:    getEnvAsDuration("TIMEOUT_REQUEST", 15*time.Second),
			Database:   getEnvAsDuration("TIMEOUT_DATABASE", 10*time.Second),
			Cache:      getEnvAsDuration("TIMEOUT_CACHE", 1*time.Second),
			BusPublish: getEnvAsDuration("TIMEOUT_BUS_PUBLISH", 3*time.Second),
			PSP:        getEnvAsDuration("TIMEOUT_PSP", 5*time.Second),
		},
	}

	if cfg.Dispatch.MaxOffersPerRound <= 0 || cfg.Dispatch.MaxOffersPerRound > 20 {
		cfg.Dispatch.MaxOffersPerRound = 20
	}
	if cfg.Payments.CardSuccessProbability < 0 || cfg.Payments.CardSuccessProbability > 1 {
		return nil, fmt.Errorf("PAYMENTS_CARD_SUCCESS_PROBABILITY must be within [0, 1]")
	}

	return cfg, nil
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// URL returns the database connection URL used by the migration runner.
func (c *DatabaseConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// OfferTTL returns the offer expiry window.
func (c DispatchConfig) OfferTTL() time.Duration {
	return time.Duration(c.OfferTTLSeconds) * time.Second
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
