package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	DefaultTokenURL       = "https://oauth2.googleapis.com/token"
	DefaultMessagingScope = "https://www.googleapis.com/auth/firebase.messaging"
	DefaultFCMEndpoint    = "https://fcm.googleapis.com"
	DefaultServiceRole    = "service_role"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Firebase FirebaseConfig `yaml:"firebase"`
	Push     PushConfig     `yaml:"push"`
	Storage  StorageConfig  `yaml:"storage"`
	Auth     AuthConfig     `yaml:"auth"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port int    `yaml:"port" validate:"min=1,max=65535"`
	Host string `yaml:"host"`
}

// DatabaseConfig holds database configuration.
// URL takes precedence over the discrete fields.
type DatabaseConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// FirebaseConfig holds the service account used to reach FCM
type FirebaseConfig struct {
	ProjectID   string `yaml:"project_id" validate:"required"`
	ClientEmail string `yaml:"client_email" validate:"required,email"`
	PrivateKey  string `yaml:"private_key" validate:"required"`
	TokenURL    string `yaml:"token_url" validate:"required,url"`
	Scope       string `yaml:"scope" validate:"required"`
	FCMEndpoint string `yaml:"fcm_endpoint" validate:"required,url"`
}

// PushConfig controls how pushes are sent
type PushConfig struct {
	Timeout           time.Duration `yaml:"timeout" validate:"gt=0"`
	RatePerSecond     float64       `yaml:"rate_per_second" validate:"gte=0"`
	RequireRecipients bool          `yaml:"require_recipients"`
}

// StorageConfig holds S3 configuration used to presign s3:// image URLs.
// Presigning is disabled when Bucket is empty.
type StorageConfig struct {
	Region     string        `yaml:"region"`
	Bucket     string        `yaml:"bucket"`
	AccessKey  string        `yaml:"access_key"`
	SecretKey  string        `yaml:"secret_key"`
	Endpoint   string        `yaml:"endpoint"`
	PresignTTL time.Duration `yaml:"presign_ttl"`
}

// AuthConfig holds the secret used to verify caller JWTs
type AuthConfig struct {
	JWTSecret   string `yaml:"jwt_secret" validate:"required"`
	ServiceRole string `yaml:"service_role" validate:"required"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level      string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Load reads configuration from a YAML file, applies environment overrides
// and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.Firebase.PrivateKey = NormalizePrivateKey(cfg.Firebase.PrivateKey)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			SSLMode: "disable",
		},
		Firebase: FirebaseConfig{
			TokenURL:    DefaultTokenURL,
			Scope:       DefaultMessagingScope,
			FCMEndpoint: DefaultFCMEndpoint,
		},
		Push: PushConfig{Timeout: 10 * time.Second},
		Storage: StorageConfig{
			Region:     "us-east-1",
			PresignTTL: time.Hour,
		},
		Auth: AuthConfig{ServiceRole: DefaultServiceRole},
		Log:  LogConfig{Level: "info"},
	}
}

// applyEnv overrides file values with the variables the hosting platform injects
func (c *Config) applyEnv() error {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}

	setString("FIREBASE_PROJECT_ID", &c.Firebase.ProjectID)
	setString("FIREBASE_CLIENT_EMAIL", &c.Firebase.ClientEmail)
	setString("FIREBASE_PRIVATE_KEY", &c.Firebase.PrivateKey)
	setString("DATABASE_URL", &c.Database.URL)
	setString("SUPABASE_JWT_SECRET", &c.Auth.JWTSecret)
	setString("LOG_LEVEL", &c.Log.Level)

	if v, ok := os.LookupEnv("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	return nil
}

// Validate checks the configuration against its struct tags
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			first := verrs[0]
			return fmt.Errorf("invalid config: %s (rule: %s)", first.Namespace(), first.Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// NormalizePrivateKey turns escaped "\n" sequences, as stored in env vars, into newlines
func NormalizePrivateKey(key string) string {
	return strings.ReplaceAll(key, `\n`, "\n")
}
