package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DB параметры подключения к Postgres.
type DB struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

// DSN собирает строку подключения для gorm.io/driver/postgres.
func (d DB) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Password, d.Name)
}

// Redis пустой Addr отключает Redis: блокировки и события остаются внутри процесса.
type Redis struct {
	Addr     string
	Password string
	DB       int
}

type JWT struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

type Queue struct {
	FlushGrace       time.Duration
	FlushTimeout     time.Duration
	SubscriberBuffer int
	LockTTL          time.Duration
	RetryAttempts    int
	RetryBackoff     time.Duration
	SweepSpec        string
}

// AppConfig конфигурация сервиса.
type AppConfig struct {
	Address            string
	AllowedOrigins     []string
	DB                 DB
	Redis              Redis
	JWT                JWT
	Queue              Queue
	BroadcastRetention time.Duration
	SubjectsCacheTTL   time.Duration
}

// LoadEnv подгружает .env, если окружение не подготовлено заранее (ENV_CHEK не задан).
func LoadEnv(paths ...string) {
	if os.Getenv("ENV_CHEK") != "" {
		return
	}
	fmt.Println("Подключение к .env")
	if err := godotenv.Load(paths...); err != nil {
		log.Fatal("Ошибка получения .env")
	}
}

// Load читает переменные окружения и подставляет значения по умолчанию.
func Load() AppConfig {
	return AppConfig{
		Address:        firstNonEmpty(os.Getenv("HTTP_ADDR"), ":8080"),
		AllowedOrigins: parseCSV(firstNonEmpty(os.Getenv("CORS_ORIGINS"), "*")),
		DB: DB{
			Host:     os.Getenv("DB_HOST"),
			Port:     os.Getenv("DB_PORT"),
			User:     os.Getenv("DB_USER"),
			Password: os.Getenv("DB_PASSWORD"),
			Name:     os.Getenv("DB_NAME"),
		},
		Redis: Redis{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       parseIntEnv("REDIS_DB", 0),
		},
		JWT: JWT{
			AccessSecret:  []byte(os.Getenv("JWT_ACCESS_SECRET")),
			RefreshSecret: []byte(os.Getenv("JWT_REFRESH_SECRET")),
			AccessTTL:     parseDurationEnv("JWT_ACCESS_TTL", 15*time.Minute, false),
			RefreshTTL:    parseDurationEnv("JWT_REFRESH_TTL", 7*24*time.Hour, false),
		},
		Queue: Queue{
			FlushGrace:       parseDurationEnv("QUEUE_FLUSH_GRACE", 5*time.Second, false),
			FlushTimeout:     parseDurationEnv("QUEUE_FLUSH_TIMEOUT", 10*time.Second, false),
			SubscriberBuffer: parseIntEnv("QUEUE_SUBSCRIBER_BUFFER", 16),
			LockTTL:          parseDurationEnv("QUEUE_LOCK_TTL", 5*time.Second, false),
			RetryAttempts:    parseIntEnv("QUEUE_RETRY_ATTEMPTS", 3),
			RetryBackoff:     parseDurationEnv("QUEUE_RETRY_BACKOFF", 50*time.Millisecond, true),
			SweepSpec:        firstNonEmpty(os.Getenv("QUEUE_SWEEP_SPEC"), "0 * * * * *"),
		},
		BroadcastRetention: parseDurationEnv("BROADCAST_RETENTION", 30*24*time.Hour, false),
		SubjectsCacheTTL:   parseDurationEnv("SUBJECTS_CACHE_TTL", time.Minute, true),
	}
}

// TestingDB параметры тестовой базы; ok == false, если TEST_DB_HOST не задан.
func TestingDB() (DB, bool) {
	db := DB{
		Host:     os.Getenv("TEST_DB_HOST"),
		Port:     os.Getenv("TEST_DB_PORT"),
		User:     os.Getenv("TEST_DB_USER"),
		Password: os.Getenv("TEST_DB_PASSWORD"),
		Name:     os.Getenv("TEST_DB_NAME"),
	}
	return db, db.Host != ""
}

func parseDurationEnv(key string, fallback time.Duration, allowZero bool) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("Некорректное значение %s=%q: %v", key, raw, err)
		return fallback
	}
	if dur < 0 || (dur == 0 && !allowZero) {
		log.Printf("Неположительное значение %s=%q, используется значение по умолчанию", key, raw)
		return fallback
	}
	return dur
}

func parseIntEnv(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		log.Printf("Некорректное значение %s=%q: %v", key, raw, err)
		return fallback
	}
	return v
}

func parseCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
