// Package config provides configuration loading from environment variables.
package config

import (
	"fmt"
	"time"
)

// ServiceConfig holds configuration for the API service.
type ServiceConfig struct {
	Port              string
	MetricsPort       string
	APIKey            string
	ShutdownDrainWait time.Duration // Time to wait for load balancer to drain (0 to skip)
}

// LoadServiceConfig loads service configuration from environment variables.
func LoadServiceConfig() *ServiceConfig {
	apiKey := GetSecretFile(GetEnv("API_KEY_FILE", ""))
	if apiKey == "" {
		apiKey = GetEnv("API_KEY", "")
	}
	return &ServiceConfig{
		Port:              GetEnv("PORT", "8080"),
		MetricsPort:       GetEnv("METRICS_PORT", "9090"),
		APIKey:            apiKey,
		ShutdownDrainWait: GetDurationEnv("SHUTDOWN_DRAIN_WAIT", 5*time.Second),
	}
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// LoadPostgresConfig loads PostgreSQL configuration from environment variables.
func LoadPostgresConfig() PostgresConfig {
	return PostgresConfig{
		Host:     GetEnv("POSTGRES_HOST", "localhost"),
		Port:     GetEnv("POSTGRES_PORT", "5432"),
		User:     GetEnv("POSTGRES_USER", "crmres"),
		Password: GetEnv("POSTGRES_PASSWORD", ""),
		DBName:   GetEnv("POSTGRES_DB", "crmres"),
		SSLMode:  GetEnv("POSTGRES_SSLMODE", "disable"),
	}
}

// DSN returns the PostgreSQL connection string.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// RabbitConfig holds RabbitMQ connection settings.
type RabbitConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	VHost    string
}

// LoadRabbitConfig loads RabbitMQ configuration from environment variables.
func LoadRabbitConfig() RabbitConfig {
	return RabbitConfig{
		Host:     GetEnv("RABBITMQ_HOST", "localhost"),
		Port:     GetEnv("RABBITMQ_PORT", "5672"),
		User:     GetEnv("RABBITMQ_DEFAULT_USER", "guest"),
		Password: GetEnv("RABBITMQ_DEFAULT_PASS", "guest"),
		VHost:    GetEnv("RABBITMQ_VHOST", "/"),
	}
}

// URL returns the AMQP connection URL.
func (c RabbitConfig) URL() string {
	vhost := c.VHost
	if vhost == "/" {
		vhost = ""
	}
	return fmt.Sprintf("amqp://%s:%s@%s:%s/%s", c.User, c.Password, c.Host, c.Port, vhost)
}

// QuietHoursConfig holds the quiet-window API client settings.
type QuietHoursConfig struct {
	URL     string
	Timeout time.Duration
}

// LoadQuietHoursConfig loads quiet-hours API configuration from environment variables.
func LoadQuietHoursConfig() QuietHoursConfig {
	return QuietHoursConfig{
		URL:     GetEnv("QUIET_HOURS_API_URL", "http://localhost:8091/check"),
		Timeout: GetDurationEnv("QUIET_HOURS_API_TIMEOUT", 5*time.Second),
	}
}

// WhatsAppConfig holds the message provider API settings.
type WhatsAppConfig struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
}

// LoadWhatsAppConfig loads provider API configuration from environment variables.
func LoadWhatsAppConfig() WhatsAppConfig {
	token := GetSecretFile(GetEnv("WHATSAPP_TOKEN_FILE", ""))
	if token == "" {
		token = GetEnv("WHATSAPP_ACCESS_TOKEN", "")
	}
	return WhatsAppConfig{
		BaseURL:     GetEnv("WHATSAPP_API_URL", "https://graph.facebook.com/v19.0/0"),
		AccessToken: token,
		Timeout:     GetDurationEnv("WHATSAPP_API_TIMEOUT", 10*time.Second),
	}
}
