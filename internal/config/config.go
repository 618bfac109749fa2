package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Address           string   `yaml:"address"`
	Port              string   `yaml:"port"`
	TlsCert           string   `yaml:"tlsCert"`
	TlsKey            string   `yaml:"tlsKey"`
	AllowedOrigins    []string `yaml:"allowedOrigins"`
	PrintHttpRequests bool     `yaml:"printHttpRequests"`
	LogFile           string   `yaml:"logFile"`
	LogLevel          string   `yaml:"logLevel"`

	JwtAccessSecret  string        `yaml:"jwtAccessSecret"`
	JwtRefreshSecret string        `yaml:"jwtRefreshSecret"`
	AccessTokenTTL   time.Duration `yaml:"accessTokenTTL"`
	RefreshTokenTTL  time.Duration `yaml:"refreshTokenTTL"`

	SnowflakeWorkerID int64 `yaml:"snowflakeWorkerID"`

	SelfContained bool   `yaml:"selfContained"`
	SqlitePath    string `yaml:"sqlitePath"`
	DbUser        string `yaml:"dbUser"`
	DbPassword    string `yaml:"dbPassword"`
	DbAddress     string `yaml:"dbAddress"`
	DbPort        string `yaml:"dbPort"`
	DbDatabase    string `yaml:"dbDatabase"`

	RedisAddress  string `yaml:"redisAddress"`
	RedisPassword string `yaml:"redisPassword"`
	RedisDB       int    `yaml:"redisDB"`

	UploadDir       string `yaml:"uploadDir"`
	UploadPublicURL string `yaml:"uploadPublicURL"`
	MaxUploadSize   int64  `yaml:"maxUploadSize"`
	MaxUploadFiles  int    `yaml:"maxUploadFiles"`

	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`
	MinioPublicURL string `yaml:"minioPublicURL"`

	RateLimitRequests int           `yaml:"rateLimitRequests"`
	RateLimitWindow   time.Duration `yaml:"rateLimitWindow"`

	WsAuthTimeout    time.Duration `yaml:"wsAuthTimeout"`
	WsMaxMessageSize int64         `yaml:"wsMaxMessageSize"`
	WsMessagesPerSec float64       `yaml:"wsMessagesPerSec"`
	WsMessageBurst   int           `yaml:"wsMessageBurst"`
	WsSendBufferSize int           `yaml:"wsSendBufferSize"`
}

// Load reads the config file (JSON or YAML), applies CHAT_* environment
// overrides and fills defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	bytes, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(bytes, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	cfg.sanitize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.JwtAccessSecret == "" || c.JwtRefreshSecret == "" {
		return errors.New("jwtAccessSecret and jwtRefreshSecret are required")
	}
	if c.SnowflakeWorkerID < 0 || c.SnowflakeWorkerID > 1023 {
		return fmt.Errorf("snowflakeWorkerID must be between 0 and 1023, got %d", c.SnowflakeWorkerID)
	}
	if !c.SelfContained && c.DbDatabase == "" {
		return errors.New("dbDatabase is required when selfContained is false")
	}
	return nil
}

func (c *Config) IsHttps() bool {
	return c.TlsCert != "" && c.TlsKey != ""
}

func (c *Config) ListenAddress() string {
	return fmt.Sprintf("%s:%s", c.Address, c.Port)
}

func (c *Config) UsesMinio() bool {
	return c.MinioEndpoint != ""
}

func (c *Config) sanitize() {
	if c.Port == "" {
		c.Port = "3000"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.AccessTokenTTL <= 0 {
		c.AccessTokenTTL = 15 * time.Minute
	}
	if c.RefreshTokenTTL <= 0 {
		c.RefreshTokenTTL = 7 * 24 * time.Hour
	}
	if c.SqlitePath == "" {
		c.SqlitePath = "./database.db"
	}
	if c.DbPort == "" {
		c.DbPort = "3306"
	}
	if c.UploadDir == "" {
		c.UploadDir = "./uploads"
	}
	if c.UploadPublicURL == "" {
		c.UploadPublicURL = "/uploads"
	}
	if c.MaxUploadSize <= 0 {
		c.MaxUploadSize = 10 << 20
	}
	if c.MaxUploadFiles <= 0 {
		c.MaxUploadFiles = 5
	}
	if c.MinioBucket == "" {
		c.MinioBucket = "attachments"
	}
	if c.RateLimitRequests <= 0 {
		c.RateLimitRequests = 100
	}
	if c.RateLimitWindow <= 0 {
		c.RateLimitWindow = 15 * time.Minute
	}
	if c.WsAuthTimeout <= 0 {
		c.WsAuthTimeout = 10 * time.Second
	}
	if c.WsMaxMessageSize <= 0 {
		c.WsMaxMessageSize = 64 << 10
	}
	if c.WsMessagesPerSec <= 0 {
		c.WsMessagesPerSec = 10
	}
	if c.WsMessageBurst <= 0 {
		c.WsMessageBurst = 20
	}
	if c.WsSendBufferSize <= 0 {
		c.WsSendBufferSize = 256
	}
	c.UploadPublicURL = strings.TrimSuffix(c.UploadPublicURL, "/")
	c.MinioPublicURL = strings.TrimSuffix(c.MinioPublicURL, "/")
}

func applyEnv(c *Config) {
	setString(&c.Address, "CHAT_ADDRESS")
	setString(&c.Port, "CHAT_PORT")
	setString(&c.TlsCert, "CHAT_TLS_CERT")
	setString(&c.TlsKey, "CHAT_TLS_KEY")
	setString(&c.LogLevel, "CHAT_LOG_LEVEL")
	setString(&c.JwtAccessSecret, "CHAT_JWT_ACCESS_SECRET")
	setString(&c.JwtRefreshSecret, "CHAT_JWT_REFRESH_SECRET")
	setString(&c.SqlitePath, "CHAT_SQLITE_PATH")
	setString(&c.DbUser, "CHAT_DB_USER")
	setString(&c.DbPassword, "CHAT_DB_PASSWORD")
	setString(&c.DbAddress, "CHAT_DB_ADDRESS")
	setString(&c.DbPort, "CHAT_DB_PORT")
	setString(&c.DbDatabase, "CHAT_DB_DATABASE")
	setString(&c.RedisAddress, "CHAT_REDIS_ADDR")
	setString(&c.RedisPassword, "CHAT_REDIS_PASSWORD")
	setString(&c.MinioEndpoint, "CHAT_MINIO_ENDPOINT")
	setString(&c.MinioAccessKey, "CHAT_MINIO_ACCESS_KEY")
	setString(&c.MinioSecretKey, "CHAT_MINIO_SECRET_KEY")
	setString(&c.MinioBucket, "CHAT_MINIO_BUCKET")

	if v, ok := os.LookupEnv("CHAT_SELF_CONTAINED"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.SelfContained = b
		}
	}
	if v, ok := os.LookupEnv("CHAT_SNOWFLAKE_WORKER_ID"); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.SnowflakeWorkerID = n
		}
	}
	if v, ok := os.LookupEnv("CHAT_ALLOWED_ORIGINS"); ok {
		c.AllowedOrigins = nil
		for _, origin := range strings.Split(v, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				c.AllowedOrigins = append(c.AllowedOrigins, origin)
			}
		}
	}
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}
