package config

import (
	"os"
	"time"
)

// Config captures everything main needs to wire the process. Optional
// collaborators (database, redis, kafka, object storage) are enabled by the
// presence of their settings; an empty value means the in-process fallback.
type Config struct {
	Addr        string
	Environment string
	LogFormat   string

	DatabaseURL string
	RedisURL    string

	KafkaBrokers string
	KafkaTopic   string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	JWTSigningKey string

	TimelineDedupTTL time.Duration
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	return Config{
		Addr:        getEnv("DEALFLOW_ADDR", ":8080"),
		Environment: getEnv("ENVIRONMENT", "dev"),
		LogFormat:   getEnv("LOG_FORMAT", "json"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),

		KafkaBrokers: os.Getenv("KAFKA_BROKERS"),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "dealflow.notifications"),

		MinioEndpoint:  os.Getenv("MINIO_ENDPOINT"),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:    getEnv("MINIO_BUCKET", "dealflow-documents"),
		MinioUseSSL:    os.Getenv("MINIO_USE_SSL") == "true",

		JWTSigningKey: jwtSigningKey,

		TimelineDedupTTL: getDuration("TIMELINE_DEDUP_TTL", 30*time.Second),
	}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultValue
	}
	return d
}
