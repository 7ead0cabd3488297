package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment    string
	HTTPAddr       string
	DBDSN          string
	MigrationsPath string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	JWTSecret      string
	JWTIssuer      string
	AccessTokenTTL time.Duration

	TelegramToken string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	MailFrom     string
	VerifyURL    string

	ExpirySweepInterval time.Duration
}

// IsDevelopment reports whether the service runs with development defaults.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func Load() (*Config, error) {
	// Пытаемся загрузить .env файл (игнорируем ошибку, если файла нет)
	if err := godotenv.Load(".env"); err != nil {
		log.Println("⚠️  No .env file found, using environment variables")
	} else {
		log.Println("✅ Loaded configuration from .env file")
	}

	return FromEnv()
}

// FromEnv читает конфигурацию из переменных окружения
func FromEnv() (*Config, error) {
	p := &parser{}

	cfg := &Config{
		Environment:    getenv("ENV", "development"),
		HTTPAddr:       getenv("HTTP_ADDR", ":8080"),
		DBDSN:          os.Getenv("DB_DSN"),
		MigrationsPath: getenv("MIGRATIONS_PATH", "migrations"),

		RedisAddr:     getenv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       p.integer("REDIS_DB", 0),

		MinioEndpoint:  getenv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey: getenv("MINIO_ACCESS_KEY", "minioadmin"),
		MinioSecretKey: getenv("MINIO_SECRET_KEY", "minioadmin"),
		MinioBucket:    getenv("MINIO_BUCKET", "tutorlink"),
		MinioUseSSL:    p.boolean("MINIO_USE_SSL", false),

		JWTSecret:      os.Getenv("JWT_SECRET"),
		JWTIssuer:      getenv("JWT_ISSUER", "tutorlink"),
		AccessTokenTTL: p.duration("ACCESS_TOKEN_TTL", 24*time.Hour),

		TelegramToken: os.Getenv("TELEGRAM_TOKEN"),

		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPPort:     p.integer("SMTP_PORT", 587),
		SMTPUsername: os.Getenv("SMTP_USERNAME"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		MailFrom:     getenv("MAIL_FROM", "TutorLink <no-reply@tutorlink.local>"),
		VerifyURL:    getenv("VERIFY_URL", "http://localhost:8080/api/v1/auth/verify"),

		ExpirySweepInterval: p.duration("EXPIRY_SWEEP_INTERVAL", time.Minute),
	}

	if p.err != nil {
		return nil, p.err
	}

	// Проверяем обязательные поля
	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("DB_DSN is required but not set")
	}
	if cfg.JWTSecret == "" {
		if !cfg.IsDevelopment() {
			return nil, fmt.Errorf("JWT_SECRET is required but not set")
		}
		cfg.JWTSecret = "dev-secret"
	}
	if cfg.AccessTokenTTL <= 0 {
		return nil, fmt.Errorf("ACCESS_TOKEN_TTL must be positive")
	}
	if cfg.ExpirySweepInterval <= 0 {
		return nil, fmt.Errorf("EXPIRY_SWEEP_INTERVAL must be positive")
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// parser запоминает первую ошибку разбора
type parser struct {
	err error
}

func (p *parser) integer(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		p.fail(key, err)
		return fallback
	}
	return n
}

func (p *parser) boolean(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		p.fail(key, err)
		return fallback
	}
	return b
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		p.fail(key, err)
		return fallback
	}
	return d
}

func (p *parser) fail(key string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("parse %s: %w", key, err)
	}
}
