package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreMongo    = "mongo"
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreMySQL    = "mysql"

	FanoutLocal = "local"
	FanoutRedis = "redis"
)

type Config struct {
	AppPort string
	AppMode string
	LogMode string

	JWTSecret    string
	JWTExpiryMin int

	MessageStore string
	MongoURI     string
	MongoDB      string

	SocialStore string
	DBHost      string
	DBUser      string
	DBPassword  string
	DBName      string
	DBPort      string
	MySQLDSN    string

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	S3Region     string
	S3Bucket     string
	S3AccessKey  string
	S3SecretKey  string
	S3Endpoint   string
	S3PublicBase string
	MaxUploadMB  int

	FanoutMode        string
	IdempotencyTTL    time.Duration
	SendTimeout       time.Duration
	MessageRateLimit  int
	WSSendBuffer      int
	WSSignalPerSecond int

	OTelEndpoint    string
	OTelServiceName string
}

func LoadConfig() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		AppPort: getEnv("APP_PORT", "8080"),
		AppMode: getEnv("APP_MODE", "debug"),
		LogMode: getEnv("LOG_MODE", "development"),

		JWTSecret:    getEnv("JWT_SECRET", "change-me"),
		JWTExpiryMin: getEnvAsInt("JWT_EXPIRY_MIN", 15),

		MessageStore: getEnv("MESSAGE_STORE", StoreMongo),
		MongoURI:     getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:      getEnv("MONGO_DB", "parley"),

		SocialStore: getEnv("SOCIAL_STORE", StorePostgres),
		DBHost:      getEnv("DB_HOST", "localhost"),
		DBUser:      getEnv("DB_USER", "postgres"),
		DBPassword:  getEnv("DB_PASSWORD", "postgres"),
		DBName:      getEnv("DB_NAME", "parley"),
		DBPort:      getEnv("DB_PORT", "5432"),
		MySQLDSN:    getEnv("MYSQL_DSN", ""),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		S3Region:     getEnv("S3_REGION", ""),
		S3Bucket:     getEnv("S3_BUCKET", ""),
		S3AccessKey:  getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:  getEnv("S3_SECRET_KEY", ""),
		S3Endpoint:   getEnv("S3_ENDPOINT", ""),
		S3PublicBase: getEnv("S3_PUBLIC_BASE", ""),
		MaxUploadMB:  getEnvAsInt("MAX_UPLOAD_MB", 25),

		FanoutMode:        getEnv("FANOUT_MODE", FanoutLocal),
		IdempotencyTTL:    getEnvAsDuration("IDEMPOTENCY_TTL", 0),
		SendTimeout:       getEnvAsDuration("SEND_TIMEOUT", 10*time.Second),
		MessageRateLimit:  getEnvAsInt("MESSAGE_RATE_LIMIT", 60),
		WSSendBuffer:      getEnvAsInt("WS_SEND_BUFFER", 256),
		WSSignalPerSecond: getEnvAsInt("WS_SIGNAL_PER_SECOND", 5),

		OTelEndpoint:    getEnv("OTEL_ENDPOINT", ""),
		OTelServiceName: getEnv("OTEL_SERVICE_NAME", "parley-chat"),
	}
}

// PostgresDSN builds the DSN used by the social graph store.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// UsesRedis reports whether any configured component needs a Redis connection.
func (c *Config) UsesRedis() bool {
	return c.FanoutMode == FanoutRedis || c.IdempotencyTTL > 0 || c.MessageRateLimit > 0
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return fallback
}
