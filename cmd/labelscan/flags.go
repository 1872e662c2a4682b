package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env"
)

type Config struct {
	Address            string        `env:"RUN_ADDRESS" envDefault:"localhost:8080"`
	LogLevel           string        `env:"LOG_LEVEL" envDefault:"INFO"`
	DatabaseConnection string        `env:"DATABASE_URI"`
	FileStoragePath    string        `env:"FILE_STORAGE_PATH" envDefault:"./storage"`
	JWTSecret          string        `env:"JWT_SECRET" envDefault:"dontexposethis"`
	JWTTTL             time.Duration `env:"JWT_TTL" envDefault:"24h"`
	AdminEmail         string        `env:"ADMIN_EMAIL"`
	AdminPassword      string        `env:"ADMIN_PASSWORD"`
	APIKey             string        `env:"API_KEY"`
	AllowedIPs         string        `env:"ALLOWED_IPS" envDefault:"*"`
	SMTPHost           string        `env:"SMTP_HOST"`
	SMTPPort           int           `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername       string        `env:"SMTP_USERNAME"`
	SMTPPassword       string        `env:"SMTP_PASSWORD"`
	SMTPEncryption     string        `env:"SMTP_ENCRYPTION" envDefault:"tls"`
	SMTPFromEmail      string        `env:"SMTP_FROM_EMAIL"`
	SMTPFromName       string        `env:"SMTP_FROM_NAME"`
}

func NewConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("ENV JWT_SECRET must be set")
	}

	address := flag.String("a", cfg.Address, "{Host:port} for server")
	loglevel := flag.String("l", cfg.LogLevel, "Log level for server")
	databaseConnection := flag.String("d", cfg.DatabaseConnection, "Database connection string")
	fileStoragePath := flag.String("f", cfg.FileStoragePath, "Root directory for stored documents")
	jwtTTL := flag.Duration("t", cfg.JWTTTL, "TTL for JWT token(e.g. 24h; 30m )")

	flag.Parse()

	cfg.Address = *address
	cfg.LogLevel = *loglevel
	cfg.DatabaseConnection = *databaseConnection
	cfg.FileStoragePath = *fileStoragePath
	cfg.JWTTTL = *jwtTTL

	return cfg, nil
}
