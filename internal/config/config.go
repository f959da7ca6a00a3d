package config

import (
	"os"
	"strconv"
)

// StorageConfig holds chunk storage settings.
type StorageConfig struct {
	// Backend selects the blob backend: "fs" (local directory tree) or "minio".
	Backend string
	// DataDir is the root of the per-tenant layout used by the fs backend.
	DataDir string
	// ChunkSizeBytes is the chunk size advertised to uploading clients.
	ChunkSizeBytes int64
}

// TenantsConfig holds tenant directory settings.
type TenantsConfig struct {
	// FilePath locates the persisted tenant configuration file.
	FilePath string
	// MaxDepth bounds the tenant hierarchy depth (root = depth 1).
	MaxDepth int
	// WatchFile enables hot reload of the tenant file on change.
	WatchFile bool
}

// MetadataConfig selects where file metadata records live.
type MetadataConfig struct {
	// Backend is "fs" (per-tenant JSON files) or "postgres".
	Backend string
}

// DatabaseConfig holds PostgreSQL connection settings for the optional
// postgres metadata backend.
type DatabaseConfig struct {
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
}

// MinIOConfig holds object storage settings for the minio blob backend.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	AppHost  string
	Port     string
	Storage  StorageConfig
	Tenants  TenantsConfig
	Metadata MetadataConfig
	Database DatabaseConfig
	MinIO    MinIOConfig
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() *AppConfig {
	return &AppConfig{
		AppHost: getEnv("APP_HOST", "localhost:8080"),
		Port:    getEnv("PORT", "8080"),
		Storage: StorageConfig{
			Backend:        getEnv("STORAGE_BACKEND", "fs"),
			DataDir:        getEnv("STORAGE_DATA_DIR", "data"),
			ChunkSizeBytes: getEnvInt64("STORAGE_CHUNK_SIZE_BYTES", 1<<20),
		},
		Tenants: TenantsConfig{
			FilePath:  getEnv("TENANTS_FILE", "tenants.json"),
			MaxDepth:  getEnvInt("TENANTS_MAX_DEPTH", 10),
			WatchFile: getEnvBool("TENANTS_WATCH_FILE", true),
		},
		Metadata: MetadataConfig{
			Backend: getEnv("METADATA_BACKEND", "fs"),
		},
		Database: DatabaseConfig{
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", ""),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", ""),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", ""),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.ParseInt(v, 10, 64)
		if err == nil {
			return i
		}
	}
	return def
}
