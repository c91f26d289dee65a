package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/go-playground/validator/v10"
)

// Config holds all service settings, populated from environment variables.
// The env tag names the variable each field is read from.
type Config struct {
	HTTPAddr        string        `env:"HTTP_ADDR" validate:"required"`
	LogLevel        string        `env:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	LogFormat       string        `env:"LOG_FORMAT" validate:"oneof=json text"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT"`
	CORSOrigins     []string      `env:"CORS_ALLOWED_ORIGINS" validate:"min=1"`

	// Relational store. Empty DatabaseURL disables the store sink and the query API.
	DatabaseURL      string        `env:"DATABASE_URL"`
	DBWriteChunkSize int           `env:"DB_WRITE_CHUNK_SIZE" validate:"min=1,max=3000"`
	QueryTimeout     time.Duration `env:"QUERY_TIMEOUT" validate:"gt=0"`

	InputDir         string `env:"DATA_INPUT_DIR" validate:"required"`
	CleanedDir       string `env:"DATA_CLEANED_DIR" validate:"required"`
	TransformDir     string `env:"DATA_TRANSFORM_DIR" validate:"required"`
	StrictImputation bool   `env:"STRICT_IMPUTATION"`

	// Table event stream. No brokers disables the Kafka sink.
	KafkaBrokers []string `env:"KAFKA_BROKERS"`
	KafkaTopic   string   `env:"KAFKA_TOPIC" validate:"required_with=KafkaBrokers"`

	// Object storage archive. Empty MinioEndpoint disables the MinIO sink.
	MinioEndpoint  string `env:"MINIO_ENDPOINT"`
	MinioAccessKey string `env:"MINIO_ACCESS_KEY" validate:"required_with=MinioEndpoint"`
	MinioSecretKey string `env:"MINIO_SECRET_KEY" validate:"required_with=MinioEndpoint"`
	MinioBucket    string `env:"MINIO_BUCKET" validate:"required_with=MinioEndpoint"`
	MinioUseSSL    bool   `env:"MINIO_USE_SSL"`
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	queryTimeout, err := time.ParseDuration(sharedcfg.EnvOrDefault("QUERY_TIMEOUT", "10s"))
	if err != nil {
		return nil, errors.New("invalid QUERY_TIMEOUT")
	}

	chunkSize, err := strconv.Atoi(sharedcfg.EnvOrDefault("DB_WRITE_CHUNK_SIZE", "1000"))
	if err != nil {
		return nil, errors.New("invalid DB_WRITE_CHUNK_SIZE")
	}

	strict, err := parseBool("STRICT_IMPUTATION")
	if err != nil {
		return nil, err
	}
	useSSL, err := parseBool("MINIO_USE_SSL")
	if err != nil {
		return nil, err
	}

	var brokers []string
	if raw := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); raw != "" {
		brokers = sharedcfg.ParseBrokers(raw)
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		CORSOrigins:     sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("CORS_ALLOWED_ORIGINS", "*")),

		DatabaseURL:      os.Getenv("DATABASE_URL"),
		DBWriteChunkSize: chunkSize,
		QueryTimeout:     queryTimeout,

		InputDir:         sharedcfg.EnvOrDefault("DATA_INPUT_DIR", "data/data_export"),
		CleanedDir:       sharedcfg.EnvOrDefault("DATA_CLEANED_DIR", "data/data_cleaned"),
		TransformDir:     sharedcfg.EnvOrDefault("DATA_TRANSFORM_DIR", "data/data_transform"),
		StrictImputation: strict,

		KafkaBrokers: brokers,
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "air-quality-tables"),

		MinioEndpoint:  os.Getenv("MINIO_ENDPOINT"),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:    sharedcfg.EnvOrDefault("MINIO_BUCKET", "air-quality"),
		MinioUseSSL:    useSSL,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints, reporting violations by env variable name.
func (c *Config) Validate() error {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("env"); name != "" {
			return name
		}
		return f.Name
	})

	err := v.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "required_with":
		return fmt.Sprintf("%s is required when %s is set", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
	case "min", "max", "gt":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must list at least %s value", fe.Field(), fe.Param())
		}
		return fmt.Sprintf("%s must be %s %s", fe.Field(), fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
}

// DatabaseEnabled reports whether a relational store is configured.
func (c *Config) DatabaseEnabled() bool { return c.DatabaseURL != "" }

// KafkaEnabled reports whether the table event stream is configured.
func (c *Config) KafkaEnabled() bool { return len(c.KafkaBrokers) > 0 }

// MinioEnabled reports whether the object storage archive is configured.
func (c *Config) MinioEnabled() bool { return c.MinioEndpoint != "" }

func parseBool(key string) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s", key)
	}
	return b, nil
}
