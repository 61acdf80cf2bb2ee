package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/Tesseract-Nexus/go-shared/secrets"

	"fulfillment-service/internal/carriers"
)

// Config holds all configuration for the fulfillment service
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	RedisURL   string
	NATSURL    string
	StaffURL   string
	StoreID    string
	LogLevel   string
	Shiprocket ShiprocketConfig
	Warehouse  WarehouseConfig
	Tracking   TrackingConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Env  string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// ShiprocketConfig holds the logistics provider account
type ShiprocketConfig struct {
	Email             string
	Password          string
	BaseURL           string
	PickupLocation    string
	PickupPincode     string
	WebhookSecret     string
	RequestsPerSecond float64
	Timeout           time.Duration
}

// WarehouseConfig is the address returns are shipped back to
type WarehouseConfig struct {
	Name     string
	Address1 string
	Address2 string
	City     string
	State    string
	Country  string
	Pincode  string
	Email    string
	Phone    string
}

// TrackingConfig controls the periodic bulk refresh
type TrackingConfig struct {
	Enabled  bool
	Interval time.Duration
	Workers  int
}

var pincodePattern = regexp.MustCompile(`^\d{6}$`)

// Load loads configuration from environment variables
func Load() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8088"),
			Env:  getEnv("NODE_ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: secrets.GetDBPassword(),
			DBName:   getEnv("DB_NAME", "fulfillment"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		RedisURL: getEnv("REDIS_URL", "redis://redis.redis-marketplace.svc.cluster.local:6379/0"),
		NATSURL:  getEnv("NATS_URL", "nats://nats.nats.svc.cluster.local:4222"),
		StaffURL: getEnv("STAFF_SERVICE_URL", "http://staff-service:8080"),
		StoreID:  getEnv("STORE_ID", "jewelry-store"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Shiprocket: ShiprocketConfig{
			Email:             getEnv("SHIPROCKET_EMAIL", ""),
			Password:          getEnv("SHIPROCKET_PASSWORD", ""),
			BaseURL:           getEnv("SHIPROCKET_BASE_URL", "https://apiv2.shiprocket.in"),
			PickupLocation:    getEnv("SHIPROCKET_PICKUP_LOCATION", ""),
			PickupPincode:     getEnv("SHIPROCKET_PICKUP_PINCODE", ""),
			WebhookSecret:     getEnv("SHIPROCKET_WEBHOOK_SECRET", ""),
			RequestsPerSecond: getEnvAsFloat("SHIPROCKET_RPS", 5),
			Timeout:           getEnvAsDuration("SHIPROCKET_TIMEOUT", 30*time.Second),
		},
		Warehouse: WarehouseConfig{
			Name:     getEnv("WAREHOUSE_NAME", "Returns Desk"),
			Address1: getEnv("WAREHOUSE_ADDRESS1", ""),
			Address2: getEnv("WAREHOUSE_ADDRESS2", ""),
			City:     getEnv("WAREHOUSE_CITY", ""),
			State:    getEnv("WAREHOUSE_STATE", ""),
			Country:  getEnv("WAREHOUSE_COUNTRY", "India"),
			Pincode:  getEnv("WAREHOUSE_PINCODE", ""),
			Email:    getEnv("WAREHOUSE_EMAIL", ""),
			Phone:    getEnv("WAREHOUSE_PHONE", ""),
		},
		Tracking: TrackingConfig{
			Enabled:  getEnvBool("TRACKING_SYNC_ENABLED", true),
			Interval: getEnvAsDuration("TRACKING_SYNC_INTERVAL", 30*time.Minute),
			Workers:  getEnvAsInt("TRACKING_SYNC_WORKERS", 5),
		},
	}

	// The warehouse receiving returns defaults to the pickup pincode
	if config.Warehouse.Pincode == "" {
		config.Warehouse.Pincode = config.Shiprocket.PickupPincode
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// GetDatabaseDSN returns the database connection string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
		c.Database.SSLMode,
	)
}

// CarrierConfig builds the logistics client configuration
func (c *Config) CarrierConfig() carriers.Config {
	return carriers.Config{
		Email:             c.Shiprocket.Email,
		Password:          c.Shiprocket.Password,
		BaseURL:           c.Shiprocket.BaseURL,
		PickupLocation:    c.Shiprocket.PickupLocation,
		RequestsPerSecond: c.Shiprocket.RequestsPerSecond,
		Timeout:           c.Shiprocket.Timeout,
		Retry:             carriers.DefaultRetryConfig(),
	}
}

// WarehouseParty is the return destination as a carrier party
func (c *Config) WarehouseParty() carriers.Party {
	w := c.Warehouse
	return carriers.Party{
		Name:     w.Name,
		Address1: w.Address1,
		Address2: w.Address2,
		City:     w.City,
		State:    w.State,
		Country:  w.Country,
		Pincode:  w.Pincode,
		Email:    w.Email,
		Phone:    w.Phone,
	}
}

// IsProduction reports whether NODE_ENV is production
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}

	if c.Shiprocket.Email == "" || c.Shiprocket.Password == "" {
		return fmt.Errorf("SHIPROCKET_EMAIL and SHIPROCKET_PASSWORD are required")
	}

	if !pincodePattern.MatchString(c.Shiprocket.PickupPincode) {
		return fmt.Errorf("SHIPROCKET_PICKUP_PINCODE must be a 6-digit pincode")
	}

	if c.Tracking.Workers <= 0 {
		return fmt.Errorf("TRACKING_SYNC_WORKERS must be positive")
	}

	return nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt gets an integer environment variable or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsFloat gets a float environment variable or returns a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvAsDuration parses values like "30m" or "15s"
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolValue
}
