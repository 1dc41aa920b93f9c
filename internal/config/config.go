package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Storage   StorageConfig
	WebSocket WebSocketConfig
	CORS      CORSConfig
	Logging   LoggingConfig
	Collector CollectorConfig
}

type ServerConfig struct {
	Port string
	Host string
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

func (d DatabaseConfig) URL() string {
	return fmt.Sprintf("http://%s:%s@%s:%s", d.User, d.Password, d.Host, d.Port)
}

type StorageConfig struct {
	// Driver selects the record store: "couchdb" or "memory".
	Driver         string
	UploadsDir     string
	MaxUploadBytes int64
}

type WebSocketConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	MaxMessageSize  int64
	WriteWait       time.Duration
	PongWait        time.Duration
	PingPeriod      time.Duration
	MaxConnections  int
}

type CORSConfig struct {
	AllowedOrigins string
	AllowedMethods string
	AllowedHeaders string
}

type LoggingConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type CollectorConfig struct {
	DBPath         string
	ServerURL      string
	ProbeURL       string
	ProbeInterval  time.Duration
	ProbeTimeout   time.Duration
	SyncInterval   time.Duration
	RequestTimeout time.Duration
	CacheTTL       time.Duration
	WatchPaths     []string
}

const (
	StorageCouchDB = "couchdb"
	StorageMemory  = "memory"
)

func Load() (*Config, error) {
	godotenv.Load()

	probeInterval, err := getEnvAsDuration("PROBE_INTERVAL", 10*time.Second)
	if err != nil {
		return nil, err
	}
	probeTimeout, err := getEnvAsDuration("PROBE_TIMEOUT", 2*time.Second)
	if err != nil {
		return nil, err
	}
	syncInterval, err := getEnvAsDuration("SYNC_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, err
	}
	requestTimeout, err := getEnvAsDuration("REQUEST_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	cacheTTL, err := getEnvAsDuration("CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	driver := strings.ToLower(getEnv("STORAGE_DRIVER", StorageCouchDB))
	if driver != StorageCouchDB && driver != StorageMemory {
		return nil, fmt.Errorf("invalid STORAGE_DRIVER %q: want %s or %s", driver, StorageCouchDB, StorageMemory)
	}

	serverURL := strings.TrimRight(getEnv("COLLECTOR_SERVER_URL", "http://localhost:8080"), "/")

	return &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Host: getEnv("HOST", "0.0.0.0"),
			Env:  getEnv("ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5984"),
			User:     getEnv("DB_USER", "admin"),
			Password: getEnv("DB_PASSWORD", "password"),
			Name:     getEnv("DB_NAME", "collections"),
		},
		Storage: StorageConfig{
			Driver:         driver,
			UploadsDir:     getEnv("UPLOADS_DIR", "uploads"),
			MaxUploadBytes: int64(getEnvAsInt("MAX_UPLOAD_BYTES", 10<<20)),
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  getEnvAsInt("WS_READ_BUFFER_SIZE", 4096),
			WriteBufferSize: getEnvAsInt("WS_WRITE_BUFFER_SIZE", 4096),
			MaxMessageSize:  int64(getEnvAsInt("WS_MAX_MESSAGE_SIZE", 65536)),
			WriteWait:       10 * time.Second,
			PongWait:        60 * time.Second,
			PingPeriod:      54 * time.Second,
			MaxConnections:  getEnvAsInt("WS_MAX_CONNECTIONS", 1000),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			AllowedMethods: getEnv("CORS_ALLOWED_METHODS", "GET,POST,OPTIONS"),
			AllowedHeaders: getEnv("CORS_ALLOWED_HEADERS", "Content-Type,Idempotency-Key"),
		},
		Logging: LoggingConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			File:       getEnv("LOG_FILE", ""),
			MaxSizeMB:  getEnvAsInt("LOG_MAX_SIZE_MB", 10),
			MaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 3),
			MaxAgeDays: getEnvAsInt("LOG_MAX_AGE_DAYS", 28),
		},
		Collector: CollectorConfig{
			DBPath:         getEnv("COLLECTOR_DB_PATH", defaultDBPath()),
			ServerURL:      serverURL,
			ProbeURL:       getEnv("COLLECTOR_PROBE_URL", serverURL+"/health"),
			ProbeInterval:  probeInterval,
			ProbeTimeout:   probeTimeout,
			SyncInterval:   syncInterval,
			RequestTimeout: requestTimeout,
			CacheTTL:       cacheTTL,
			WatchPaths:     getEnvAsList("COLLECTOR_WATCH_PATHS", []string{"/etc/resolv.conf"}),
		},
	}, nil
}

func defaultDBPath() string {
	return filepath.Join(xdg.DataHome, "herb-collector", "collector.db")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
