package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the client configuration, sourced from the environment.
type Config struct {
	APIBaseURL string
	WSBaseURL  string

	// Session store
	StoreBackend string // "file" or "redis"
	DataDir      string
	RedisURL     string

	// Delivery
	DownloadDir string
	SinkBackend string // "local" or "minio"

	// MinIO sink configuration
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	RequestTimeout time.Duration
	HandshakeWait  time.Duration
	AutoClearDelay time.Duration
}

// Load reads configuration from the environment, with a best-effort .env load first.
func Load() *Config {
	// Missing .env is fine, variables may be set directly
	_ = godotenv.Load()

	requestTimeout := getDurationOrDefault("VIDGRAB_REQUEST_TIMEOUT", 30*time.Second)
	handshakeWait := getDurationOrDefault("VIDGRAB_HANDSHAKE_WAIT", 10*time.Second)
	autoClearDelay := getDurationOrDefault("VIDGRAB_AUTO_CLEAR_DELAY", 3*time.Second)

	minioUseSSL, _ := strconv.ParseBool(getEnvOrDefault("MINIO_USE_SSL", "false"))

	return &Config{
		APIBaseURL:     getEnvOrDefault("VIDGRAB_API_URL", "http://127.0.0.1:8000"),
		WSBaseURL:      getEnvOrDefault("VIDGRAB_WS_URL", "ws://127.0.0.1:8000"),
		StoreBackend:   getEnvOrDefault("VIDGRAB_STORE", "file"),
		DataDir:        getEnvOrDefault("VIDGRAB_DATA_DIR", defaultDataDir()),
		RedisURL:       getEnvOrDefault("VIDGRAB_REDIS_URL", "redis://localhost:6379"),
		DownloadDir:    getEnvOrDefault("VIDGRAB_DOWNLOAD_DIR", defaultDownloadDir()),
		SinkBackend:    getEnvOrDefault("VIDGRAB_SINK", "local"),
		MinioEndpoint:  getEnvOrDefault("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey: getEnvOrDefault("MINIO_ACCESS_KEY", "minioadmin"),
		MinioSecretKey: getEnvOrDefault("MINIO_SECRET_KEY", "minioadmin"),
		MinioBucket:    getEnvOrDefault("MINIO_BUCKET", "vidgrab-artifacts"),
		MinioUseSSL:    minioUseSSL,
		RequestTimeout: requestTimeout,
		HandshakeWait:  handshakeWait,
		AutoClearDelay: autoClearDelay,
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".vidgrab"
	}
	return home + "/.vidgrab"
}

func defaultDownloadDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "downloads"
	}
	return home + "/Downloads"
}
