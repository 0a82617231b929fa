package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPPort        string
	Store           string
	DBUser          string
	DBPassword      string
	DBHost          string
	DBPort          string
	DBName          string
	JWTSecret       string
	RabbitMQURL     string
	EventExchange   string
	TableResetQueue string
	DeadLetterQueue string
	DelayExchange   string
	TableResetDelay time.Duration
	// TableResetMaxAttempts bounds retries of a failed table release before it is dead-lettered
	TableResetMaxAttempts int
	RedisAddress          string
	LockTTL               time.Duration
	// SubscriberBuffer bounds each real-time subscriber queue
	SubscriberBuffer int
	CORSOrigins      []string
}

func init() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()
}

func LoadConfig() *Config {
	return &Config{
		HTTPPort:              getEnv("HTTP_PORT", "8080"),
		Store:                 getEnv("STORE", "mysql"),
		DBUser:                getEnv("DB_USER", "root"),
		DBPassword:            getEnvFromFile("DB_PASSWORD_FILE", "DB_PASSWORD", ""),
		DBHost:                getEnv("DB_HOST", "localhost"),
		DBPort:                getEnv("DB_PORT", "3306"),
		DBName:                getEnv("DB_NAME", "settlement"),
		JWTSecret:             getEnvFromFile("JWT_SECRET_FILE", "JWT_SECRET", "dev-secret-change-me"),
		RabbitMQURL:           getEnv("RABBITMQ_URL", ""),
		EventExchange:         getEnv("EVENT_EXCHANGE", "settlement_events"),
		TableResetQueue:       getEnv("TABLE_RESET_QUEUE", "table_reset_queue"),
		DeadLetterQueue:       getEnv("DEAD_LETTER_QUEUE", "dead_letter_queue"),
		DelayExchange:         getEnv("DELAY_EXCHANGE", "delay_exchange"),
		TableResetDelay:       getEnvDuration("TABLE_RESET_DELAY", 30*time.Second),
		TableResetMaxAttempts: getEnvInt("TABLE_RESET_MAX_ATTEMPTS", 5),
		RedisAddress:          getEnv("REDIS_ADDRESS", ""),
		LockTTL:               getEnvDuration("LOCK_TTL", 5*time.Second),
		SubscriberBuffer:      getEnvInt("SUBSCRIBER_BUFFER", 64),
		CORSOrigins:           getEnvList("CORS_ORIGINS", []string{"*"}),
	}
}

// DSN returns the go-sql-driver/mysql connection string.
func (c *Config) DSN() string {
	return c.DBUser + ":" + c.DBPassword + "@tcp(" + c.DBHost + ":" + c.DBPort + ")/" + c.DBName +
		"?parseTime=true&multiStatements=true"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFromFile(fileKey, envKey, defaultValue string) string {
	if filePath := os.Getenv(fileKey); filePath != "" {
		if content, err := os.ReadFile(filePath); err == nil {
			return strings.TrimSpace(string(content))
		}
	}
	return getEnv(envKey, defaultValue)
}

func getEnvInt(key string, defaultValue int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}

func getEnvList(key string, defaultValue []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
