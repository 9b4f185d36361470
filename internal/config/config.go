package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	API       APIConfig
	Transport TransportConfig
	Crawl     CrawlConfig
	Export    ExportConfig
	MongoDB   MongoDBConfig
	MinIO     MinIOConfig
	Redis     RedisConfig
}

// ServerConfig configures the ops HTTP endpoint (health/metrics only).
type ServerConfig struct {
	Port        string
	Host        string
	Environment string
}

// APIConfig describes the remote document repository being mirrored.
type APIConfig struct {
	BaseURL      string
	RepoName     string
	VDirName     string
	RootFolderID int64
}

type TransportConfig struct {
	ConnectTimeout  time.Duration
	ResponseTimeout time.Duration
	MaxRetries      int
	RetryBaseDelay  time.Duration
}

type CrawlConfig struct {
	PageSize  int
	PageDelay time.Duration
	Interval  time.Duration
	MaxDepth  int
}

type ExportConfig struct {
	PollInterval  time.Duration
	PollBudget    time.Duration
	Concurrency   int
	RetryInterval time.Duration
}

type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env")

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "5002")
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_ENVIRONMENT", "development")
	viper.SetDefault("API_REPO_NAME", "City-Secretary")
	viper.SetDefault("API_VDIR_NAME", "CSODOCS")
	viper.SetDefault("API_ROOT_FOLDER_ID", 80306)
	viper.SetDefault("TRANSPORT_CONNECT_TIMEOUT", 3)
	viper.SetDefault("TRANSPORT_RESPONSE_TIMEOUT", 60)
	viper.SetDefault("TRANSPORT_MAX_RETRIES", 5)
	viper.SetDefault("TRANSPORT_RETRY_BASE_MS", 1000)
	viper.SetDefault("CRAWL_PAGE_SIZE", 40)
	viper.SetDefault("CRAWL_PAGE_DELAY_MS", 500)
	viper.SetDefault("CRAWL_INTERVAL_MINUTES", 1440)
	viper.SetDefault("CRAWL_MAX_DEPTH", 64)
	viper.SetDefault("EXPORT_POLL_INTERVAL", 3)
	viper.SetDefault("EXPORT_POLL_BUDGET_MINUTES", 10)
	viper.SetDefault("EXPORT_CONCURRENCY", 4)
	viper.SetDefault("EXPORT_RETRY_INTERVAL_MINUTES", 60)
	viper.SetDefault("MONGODB_TIMEOUT", 10)
	viper.SetDefault("MINIO_BUCKET", "docmirror")

	cfg := &Config{
		Server: ServerConfig{
			Port:        viper.GetString("SERVER_PORT"),
			Host:        viper.GetString("SERVER_HOST"),
			Environment: viper.GetString("SERVER_ENVIRONMENT"),
		},
		API: APIConfig{
			BaseURL:      getEnvOrPanic("API_BASE_URL"),
			RepoName:     viper.GetString("API_REPO_NAME"),
			VDirName:     viper.GetString("API_VDIR_NAME"),
			RootFolderID: viper.GetInt64("API_ROOT_FOLDER_ID"),
		},
		Transport: TransportConfig{
			ConnectTimeout:  time.Duration(viper.GetInt("TRANSPORT_CONNECT_TIMEOUT")) * time.Second,
			ResponseTimeout: time.Duration(viper.GetInt("TRANSPORT_RESPONSE_TIMEOUT")) * time.Second,
			MaxRetries:      viper.GetInt("TRANSPORT_MAX_RETRIES"),
			RetryBaseDelay:  time.Duration(viper.GetInt("TRANSPORT_RETRY_BASE_MS")) * time.Millisecond,
		},
		Crawl: CrawlConfig{
			PageSize:  viper.GetInt("CRAWL_PAGE_SIZE"),
			PageDelay: time.Duration(viper.GetInt("CRAWL_PAGE_DELAY_MS")) * time.Millisecond,
			Interval:  time.Duration(viper.GetInt("CRAWL_INTERVAL_MINUTES")) * time.Minute,
			MaxDepth:  viper.GetInt("CRAWL_MAX_DEPTH"),
		},
		Export: ExportConfig{
			PollInterval:  time.Duration(viper.GetInt("EXPORT_POLL_INTERVAL")) * time.Second,
			PollBudget:    time.Duration(viper.GetInt("EXPORT_POLL_BUDGET_MINUTES")) * time.Minute,
			Concurrency:   viper.GetInt("EXPORT_CONCURRENCY"),
			RetryInterval: time.Duration(viper.GetInt("EXPORT_RETRY_INTERVAL_MINUTES")) * time.Minute,
		},
		MongoDB: MongoDBConfig{
			URI:      getEnvOrPanic("MONGODB_URI"),
			Database: viper.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(viper.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		MinIO: MinIOConfig{
			Endpoint:  viper.GetString("MINIO_ENDPOINT"),
			AccessKey: viper.GetString("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			UseSSL:    viper.GetBool("MINIO_USE_SSL"),
			Bucket:    viper.GetString("MINIO_BUCKET"),
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       0,
		},
	}

	// Basic validation
	if cfg.Crawl.PageSize <= 0 {
		log.Println("WARNING: CRAWL_PAGE_SIZE must be positive; falling back to 40")
		cfg.Crawl.PageSize = 40
	}

	return cfg, nil
}

func getEnvOrPanic(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("environment variable %s is required", key)
	}
	return v
}
