// Package config has the configuration file for the app
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment is the deployment environment the service runs in
type Environment int

const (
	EnvDevelopment Environment = iota
	EnvStaging
	EnvProduction
	EnvTest
)

func (e Environment) String() string {
	switch e {
	case EnvStaging:
		return "staging"
	case EnvProduction:
		return "prod"
	case EnvTest:
		return "test"
	default:
		return "dev"
	}
}

// ParseEnvironment maps an ENV value to an Environment
func ParseEnvironment(s string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dev", "development":
		return EnvDevelopment, nil
	case "staging":
		return EnvStaging, nil
	case "prod", "production":
		return EnvProduction, nil
	case "test":
		return EnvTest, nil
	}
	return EnvDevelopment, fmt.Errorf("ENV must be one of: [dev staging prod test], got: %s", s)
}

// Config holds all application configuration
type Config struct {
	Port              string
	Address           string
	Env               Environment
	LogLevel          string
	LogDir            string
	LogRetentionWeeks int   // Number of weeks to keep log files
	MaxLogFileSize    int64 // Maximum log file size in bytes
	MaxRequestBody    int64 // Maximum request body size in bytes
	MaxHeaderSize     int64 // Maximum header size in bytes

	MaxUploadSize     int64 // Maximum accepted image upload in bytes
	MaxImageDimension int   // Longest side kept for uploaded images, in pixels

	AutosaveDelay          time.Duration
	SavedIndicatorDuration time.Duration
	WorkspaceIdleTimeout   time.Duration
	SweepIntervalMinutes   int
	IDPolicy               string
	CatalogSource          string // file path or http(s) URL of the medication catalog, empty for the built-in list

	StorageDriver string
	StorageFSRoot string
	SQLitePath    string
	DatabaseURL   string
	S3Bucket      string
	S3Region      string
	S3Endpoint    string
	S3PathStyle   bool

	SubmissionPort    string // port of the submission collaborator, empty to disable it
	SubmissionBaseURL string
	CORSOrigins       []string
}

// Load loads and validates configuration from environment variables
func Load() (*Config, error) {
	env, err := ParseEnvironment(getEnvWithDefault("ENV", "dev"))
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: invalid ENV: %w", err)
	}

	cfg := &Config{
		Port:              getEnvWithDefault("PORT", "8000"),
		Address:           getEnvWithDefault("ADDRESS", "127.0.0.1"),
		Env:               env,
		LogLevel:          getEnvWithDefault("LOG_LEVEL", "info"),
		LogDir:            getEnvWithDefault("LOG_DIR", "logs"),
		LogRetentionWeeks: getIntEnvWithDefault("LOG_RETENTION_WEEKS", 4),         // 4 weeks default
		MaxLogFileSize:    getInt64EnvWithDefault("MAX_LOG_FILE_SIZE", 104857600), // 100MB default
		MaxRequestBody:    getInt64EnvWithDefault("MAX_REQUEST_BODY", 8388608),    // 8MB, room for a multipart image
		MaxHeaderSize:     getInt64EnvWithDefault("MAX_HEADER_SIZE", 1048576),     // 1MB default

		MaxUploadSize:     getInt64EnvWithDefault("MAX_UPLOAD_SIZE", 5242880), // 5MB default
		MaxImageDimension: getIntEnvWithDefault("MAX_IMAGE_DIMENSION", 1024),

		AutosaveDelay:          getDurationEnvWithDefault("AUTOSAVE_DELAY", 5*time.Second),
		SavedIndicatorDuration: getDurationEnvWithDefault("SAVED_INDICATOR_DURATION", 2*time.Second),
		WorkspaceIdleTimeout:   getDurationEnvWithDefault("WORKSPACE_IDLE_TIMEOUT", 30*time.Minute),
		SweepIntervalMinutes:   getIntEnvWithDefault("SWEEP_INTERVAL_MINUTES", 5),
		IDPolicy:               strings.ToLower(getEnvWithDefault("ID_POLICY", "max")),
		CatalogSource:          strings.TrimSpace(os.Getenv("CATALOG_SOURCE")),

		StorageDriver: strings.ToLower(getEnvWithDefault("STORAGE_DRIVER", "fs")),
		StorageFSRoot: getEnvWithDefault("STORAGE_FS_ROOT", "draftdata"),
		SQLitePath:    getEnvWithDefault("SQLITE_PATH", "drafts.db"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		S3Bucket:      os.Getenv("S3_BUCKET"),
		S3Region:      getEnvWithDefault("S3_REGION", "us-east-1"),
		S3Endpoint:    os.Getenv("S3_ENDPOINT"),
		S3PathStyle:   getBoolEnvWithDefault("S3_PATH_STYLE", false),

		SubmissionPort:    getEnvWithDefault("SUBMISSION_PORT", "5000"),
		SubmissionBaseURL: os.Getenv("SUBMISSION_BASE_URL"),
		CORSOrigins:       splitList(getEnvWithDefault("CORS_ORIGINS", "*")),
	}

	if cfg.SubmissionBaseURL == "" && cfg.SubmissionPort != "" {
		cfg.SubmissionBaseURL = "http://" + net.JoinHostPort(cfg.Address, cfg.SubmissionPort)
	}

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// validateConfig validates all configuration values
func validateConfig(cfg *Config) error {
	if err := validatePort(cfg.Port); err != nil {
		return fmt.Errorf("invalid PORT: %w", err)
	}

	if err := validateAddress(cfg.Address); err != nil {
		return fmt.Errorf("invalid ADDRESS: %w", err)
	}

	if err := validateLogLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	if err := validateSizeLimit(cfg.MaxRequestBody, "MAX_REQUEST_BODY"); err != nil {
		return fmt.Errorf("invalid MAX_REQUEST_BODY: %w", err)
	}

	if err := validateSizeLimit(cfg.MaxHeaderSize, "MAX_HEADER_SIZE"); err != nil {
		return fmt.Errorf("invalid MAX_HEADER_SIZE: %w", err)
	}

	if err := validateLogRetentionWeeks(cfg.LogRetentionWeeks); err != nil {
		return fmt.Errorf("invalid LOG_RETENTION_WEEKS: %w", err)
	}

	if err := validateMaxLogFileSize(cfg.MaxLogFileSize); err != nil {
		return fmt.Errorf("invalid MAX_LOG_FILE_SIZE: %w", err)
	}

	// An upload has to fit in a request body
	if err := validateSizeLimit(cfg.MaxUploadSize, "MAX_UPLOAD_SIZE"); err != nil {
		return fmt.Errorf("invalid MAX_UPLOAD_SIZE: %w", err)
	}
	if cfg.MaxUploadSize > cfg.MaxRequestBody {
		return fmt.Errorf("invalid MAX_UPLOAD_SIZE: %d exceeds MAX_REQUEST_BODY %d", cfg.MaxUploadSize, cfg.MaxRequestBody)
	}

	if cfg.MaxImageDimension < 16 || cfg.MaxImageDimension > 8192 {
		return fmt.Errorf("invalid MAX_IMAGE_DIMENSION: must be between 16 and 8192, got: %d", cfg.MaxImageDimension)
	}

	if err := validateDuration(cfg.AutosaveDelay, 100*time.Millisecond, time.Minute); err != nil {
		return fmt.Errorf("invalid AUTOSAVE_DELAY: %w", err)
	}
	if err := validateDuration(cfg.SavedIndicatorDuration, 100*time.Millisecond, time.Minute); err != nil {
		return fmt.Errorf("invalid SAVED_INDICATOR_DURATION: %w", err)
	}
	if err := validateDuration(cfg.WorkspaceIdleTimeout, time.Minute, 7*24*time.Hour); err != nil {
		return fmt.Errorf("invalid WORKSPACE_IDLE_TIMEOUT: %w", err)
	}
	if cfg.SweepIntervalMinutes < 1 || cfg.SweepIntervalMinutes > 1440 {
		return fmt.Errorf("invalid SWEEP_INTERVAL_MINUTES: must be between 1 and 1440, got: %d", cfg.SweepIntervalMinutes)
	}

	if err := oneOf(cfg.IDPolicy, "max", "monotonic"); err != nil {
		return fmt.Errorf("invalid ID_POLICY: %w", err)
	}

	if err := validateStorage(cfg); err != nil {
		return fmt.Errorf("invalid storage configuration: %w", err)
	}

	if cfg.SubmissionPort != "" {
		if err := validatePort(cfg.SubmissionPort); err != nil {
			return fmt.Errorf("invalid SUBMISSION_PORT: %w", err)
		}
		if cfg.SubmissionPort == cfg.Port {
			return fmt.Errorf("invalid SUBMISSION_PORT: must differ from PORT %s", cfg.Port)
		}
	}
	if cfg.SubmissionBaseURL != "" {
		if u, err := url.Parse(cfg.SubmissionBaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid SUBMISSION_BASE_URL: must be an absolute http(s) URL, got: %s", cfg.SubmissionBaseURL)
		}
	}

	return nil
}

func validateStorage(cfg *Config) error {
	if err := oneOf(cfg.StorageDriver, "memory", "fs", "sqlite", "postgres", "s3"); err != nil {
		return fmt.Errorf("STORAGE_DRIVER: %w", err)
	}

	switch cfg.StorageDriver {
	case "fs":
		if cfg.StorageFSRoot == "" {
			return fmt.Errorf("STORAGE_FS_ROOT cannot be empty")
		}
	case "sqlite":
		if cfg.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH cannot be empty")
		}
	case "postgres":
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	case "s3":
		if cfg.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required for the s3 driver")
		}
		if cfg.S3Endpoint != "" {
			if u, err := url.Parse(cfg.S3Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
				return fmt.Errorf("S3_ENDPOINT must be an absolute URL, got: %s", cfg.S3Endpoint)
			}
		}
	}
	return nil
}

// validatePort validates the PORT environment variable
func validatePort(port string) error {
	if port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}

	portNum, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("PORT must be a valid number: %w", err)
	}

	if portNum < 1 || portNum > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}

	if portNum < 1024 {
		return fmt.Errorf("PORT %d is privileged (less than 1024), use ports 1024-65535", portNum)
	}

	return nil
}

// validateAddress validates the ADDRESS environment variable
func validateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("ADDRESS cannot be empty")
	}

	if address == "127.0.0.1" || address == "::1" || address == "localhost" {
		return nil
	}

	ip := net.ParseIP(address)
	if ip == nil {
		return fmt.Errorf("ADDRESS must be a valid IP address or 'localhost', got: %s", address)
	}

	if !ip.IsLoopback() && !ip.IsPrivate() && !ip.IsUnspecified() {
		return fmt.Errorf("ADDRESS %s is a public IP, consider using private network ranges for security", address)
	}

	return nil
}

// validateLogLevel validates the LOG_LEVEL environment variable
func validateLogLevel(logLevel string) error {
	if logLevel == "" {
		return fmt.Errorf("LOG_LEVEL cannot be empty")
	}
	return oneOf(strings.ToLower(logLevel), "debug", "info", "warn", "error")
}

// validateSizeLimit validates size limit configuration values
func validateSizeLimit(size int64, configName string) error {
	if size <= 0 {
		return fmt.Errorf("%s must be positive, got: %d", configName, size)
	}

	if size > 100*1024*1024 { // 100MB
		return fmt.Errorf("%s is too large (max 100MB), got: %d bytes", configName, size)
	}

	return nil
}

// validateLogRetentionWeeks validates the LOG_RETENTION_WEEKS environment variable
func validateLogRetentionWeeks(weeks int) error {
	if weeks <= 0 {
		return fmt.Errorf("LOG_RETENTION_WEEKS must be positive, got: %d", weeks)
	}

	if weeks > 52 { // 1 year maximum
		return fmt.Errorf("LOG_RETENTION_WEEKS is too large (max 52 weeks), got: %d", weeks)
	}

	return nil
}

// validateMaxLogFileSize validates the MAX_LOG_FILE_SIZE environment variable
func validateMaxLogFileSize(size int64) error {
	if size <= 0 {
		return fmt.Errorf("MAX_LOG_FILE_SIZE must be positive, got: %d", size)
	}

	// Minimum 1MB, maximum 1GB
	if size < 1024*1024 {
		return fmt.Errorf("MAX_LOG_FILE_SIZE is too small (min 1MB), got: %d bytes", size)
	}

	if size > 1024*1024*1024 {
		return fmt.Errorf("MAX_LOG_FILE_SIZE is too large (max 1GB), got: %d bytes", size)
	}

	return nil
}

func validateDuration(d, lo, hi time.Duration) error {
	if d < lo || d > hi {
		return fmt.Errorf("must be between %s and %s, got: %s", lo, hi, d)
	}
	return nil
}

func oneOf(value string, valid ...string) error {
	for _, v := range valid {
		if value == v {
			return nil
		}
	}
	return fmt.Errorf("must be one of: %v, got: %s", valid, value)
}

// getEnvWithDefault gets an environment variable with a default value
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnvWithDefault gets an environment variable as int with a default value
func getIntEnvWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getInt64EnvWithDefault gets an environment variable as int64 with a default value
func getInt64EnvWithDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getDurationEnvWithDefault accepts Go durations ("5s") or plain milliseconds
func getDurationEnvWithDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}

func getBoolEnvWithDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// GetEnvVars returns a list of all expected environment variables
func GetEnvVars() []string {
	return []string{
		"PORT",
		"ADDRESS",
		"ENV",
		"LOG_LEVEL",
		"LOG_DIR",
		"LOG_RETENTION_WEEKS",
		"MAX_LOG_FILE_SIZE",
		"MAX_REQUEST_BODY",
		"MAX_HEADER_SIZE",
		"MAX_UPLOAD_SIZE",
		"MAX_IMAGE_DIMENSION",
		"AUTOSAVE_DELAY",
		"SAVED_INDICATOR_DURATION",
		"WORKSPACE_IDLE_TIMEOUT",
		"SWEEP_INTERVAL_MINUTES",
		"ID_POLICY",
		"CATALOG_SOURCE",
		"STORAGE_DRIVER",
		"STORAGE_FS_ROOT",
		"SQLITE_PATH",
		"DATABASE_URL",
		"S3_BUCKET",
		"S3_REGION",
		"S3_ENDPOINT",
		"S3_PATH_STYLE",
		"SUBMISSION_PORT",
		"SUBMISSION_BASE_URL",
		"CORS_ORIGINS",
	}
}
