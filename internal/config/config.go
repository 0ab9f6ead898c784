package config

import (
	"encoding/base64"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Transfer TransferConfig
	Storage  StorageConfig
	Report   ReportConfig
	SMTP     SMTPConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	GatewayLogPath     string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
}

type DatabaseConfig struct {
	Connection string
}

type AuthConfig struct {
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
}

type TransferConfig struct {
	ChunkSize         int
	MaxBytes          int64
	MaxImageBytes     int64
	SessionIdleTTL    time.Duration
	PublicPath        string
	MaxMessageBytes   int64
	MaxInFlightPerCon int64
}

// chunkEnvelopeOverhead covers the request envelope around a base64 upload chunk.
const chunkEnvelopeOverhead = 4 * 1024

// ReadLimit is the largest websocket message the gateway accepts. It is raised when
// MaxMessageBytes could not carry a full upload chunk.
func (c TransferConfig) ReadLimit() int64 {
	need := int64(base64.StdEncoding.EncodedLen(c.ChunkSize)) + chunkEnvelopeOverhead
	if c.MaxMessageBytes < need {
		return need
	}
	return c.MaxMessageBytes
}

type StorageConfig struct {
	Backend   string // "local", "s3" or "azure"
	LocalRoot string

	S3Bucket       string
	S3Prefix       string
	S3Region       string
	S3Endpoint     string
	S3UsePathStyle bool

	AzureAccount   string
	AzureKey       string
	AzureContainer string
	AzurePrefix    string
}

type ReportConfig struct {
	PollInterval  time.Duration
	RenderTimeout time.Duration
}

type SMTPConfig struct {
	Host       string
	Port       int
	Email      string
	Password   string
	SenderName string
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			GatewayLogPath:     getEnv("GATEWAY_LOG_FILE_PATH", "logs/gateway.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", ""),
			RedisURL:           getEnv("REDIS_URL", ""),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Auth: AuthConfig{
			JWTSecret:   getEnv("JWT_SECRET", ""),
			JWTIssuer:   getEnv("JWT_ISSUER", ""),
			JWTAudience: getEnv("JWT_AUDIENCE", ""),
		},
		Transfer: TransferConfig{
			ChunkSize:         getEnvAsInt("TRANSFER_CHUNK_SIZE", 256*1024),
			MaxBytes:          int64(getEnvAsInt("TRANSFER_MAX_BYTES", 25*1024*1024)),
			MaxImageBytes:     int64(getEnvAsInt("TRANSFER_MAX_IMAGE_BYTES", 5*1024*1024)),
			SessionIdleTTL:    getEnvAsDuration("TRANSFER_SESSION_IDLE_TTL", 15*time.Minute),
			PublicPath:        getEnv("TRANSFER_PUBLIC_PATH", "public/app-logo.png"),
			MaxMessageBytes:   int64(getEnvAsInt("WS_MAX_MESSAGE_BYTES", 512*1024)),
			MaxInFlightPerCon: int64(getEnvAsInt("WS_MAX_IN_FLIGHT", 16)),
		},
		Storage: StorageConfig{
			Backend:        strings.ToLower(getEnv("STORAGE_BACKEND", "local")),
			LocalRoot:      getEnv("STORAGE_LOCAL_ROOT", "./uploads"),
			S3Bucket:       getEnv("S3_BUCKET", ""),
			S3Prefix:       getEnv("S3_PREFIX", ""),
			S3Region:       getEnv("S3_REGION", ""),
			S3Endpoint:     getEnv("S3_ENDPOINT", ""),
			S3UsePathStyle: getEnvAsBool("S3_USE_PATH_STYLE", false),
			AzureAccount:   getEnv("AZURE_STORAGE_ACCOUNT", ""),
			AzureKey:       getEnv("AZURE_STORAGE_KEY", ""),
			AzureContainer: getEnv("AZURE_BLOB_CONTAINER", ""),
			AzurePrefix:    getEnv("AZURE_BLOB_PREFIX", ""),
		},
		Report: ReportConfig{
			PollInterval:  getEnvAsDuration("REPORT_POLL_INTERVAL", 5*time.Second),
			RenderTimeout: getEnvAsDuration("REPORT_RENDER_TIMEOUT", 2*time.Minute),
		},
		SMTP: SMTPConfig{
			Host:       getEnv("SMTP_HOST", ""),
			Port:       getEnvAsInt("SMTP_PORT", 587),
			Email:      getEnv("SMTP_EMAIL", ""),
			Password:   getEnv("SMTP_PASSWORD", ""),
			SenderName: getEnv("SMTP_SENDER_NAME", "Church Portal"),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}
