// Package config provides XML-based configuration management for the detection server.
package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/svg-dedupe/backend/internal/detector"
	"github.com/svg-dedupe/backend/internal/scheduler"
	"github.com/svg-dedupe/backend/internal/similarity"
)

// AppConfig represents the root XML configuration structure
type AppConfig struct {
	XMLName xml.Name `xml:"SVGDedupe"`

	// Server configuration
	Server ServerConfig `xml:"Server"`

	// Detection pipeline configuration
	Detection DetectionConfig `xml:"Detection"`

	// Job lifecycle configuration
	Jobs JobsConfig `xml:"Jobs"`

	// Advanced options
	Advanced AdvancedConfig `xml:"Advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `xml:"Port"`
	BindAddress  string `xml:"BindAddress"`
	EnableCORS   bool   `xml:"EnableCORS"`
	AllowOrigins string `xml:"AllowOrigins"`
	ReadTimeout  int    `xml:"ReadTimeoutSeconds"`
	WriteTimeout int    `xml:"WriteTimeoutSeconds"`
	IdleTimeout  int    `xml:"IdleTimeoutSeconds"`
	BodyLimit    string `xml:"BodyLimit"`
}

// DetectionConfig contains comparison settings
type DetectionConfig struct {
	Mode           string `xml:"Mode"`
	BatchSize      int    `xml:"BatchSize"`
	MaxWorkers     int    `xml:"MaxWorkers"`
	TimeoutSeconds int    `xml:"TimeoutSeconds"`
	ThresholdsFile string `xml:"ThresholdsFile"`
	IncludeSources bool   `xml:"IncludeSources"`
}

// JobsConfig contains retention and admission settings
type JobsConfig struct {
	RetentionMinutes       int `xml:"RetentionMinutes"`
	CleanupIntervalMinutes int `xml:"CleanupIntervalMinutes"`
	MaxConcurrentJobs      int `xml:"MaxConcurrentJobs"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	LogLevel                string `xml:"LogLevel"`
	LogFormat               string `xml:"LogFormat"`
	DevelopmentLogging      bool   `xml:"DevelopmentLogging"`
	EnableRequestLogging    bool   `xml:"EnableRequestLogging"`
	ExposeErrorDetails      bool   `xml:"ExposeErrorDetails"`
	EnableCompression       bool   `xml:"EnableCompression"`
	CompressionLevel        int    `xml:"CompressionLevel"`
	WebSocketPollIntervalMs int    `xml:"WebSocketPollIntervalMs"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         5000,
			BindAddress:  "0.0.0.0",
			EnableCORS:   true,
			AllowOrigins: "*",
			ReadTimeout:  60,
			WriteTimeout: 60,
			IdleTimeout:  120,
			BodyLimit:    "256M",
		},
		Detection: DetectionConfig{
			Mode:           string(similarity.ModeStrict),
			BatchSize:      10,
			MaxWorkers:     4,
			TimeoutSeconds: 300,
			IncludeSources: true,
		},
		Jobs: JobsConfig{
			RetentionMinutes:       60,
			CleanupIntervalMinutes: 5,
			MaxConcurrentJobs:      10,
		},
		Advanced: AdvancedConfig{
			LogLevel:                "info",
			LogFormat:               "json",
			EnableRequestLogging:    true,
			EnableCompression:       true,
			CompressionLevel:        5,
			WebSocketPollIntervalMs: 500,
		},
	}
}

// LoadConfig loads configuration from XML file
func LoadConfig(configPath string) (*AppConfig, error) {
	// If file doesn't exist, create default
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		config := DefaultConfig()
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		config.applyEnvironmentOverrides()
		return config, config.Validate()
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Unset elements keep their defaults
	config := DefaultConfig()
	if err := xml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyEnvironmentOverrides()
	config.resolvePaths(filepath.Dir(configPath))

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Save saves the configuration to XML file
func (c *AppConfig) Save(configPath string) error {
	output, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(xml.Header + "\n<!-- SVG Duplicate Detector Configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
	content := append(header, output...)

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate rejects values the pipeline cannot run with
func (c *AppConfig) Validate() error {
	if _, err := similarity.ParseMode(c.Detection.Mode); err != nil {
		return err
	}
	if c.Detection.BatchSize <= 0 {
		return fmt.Errorf("detection batch size must be positive, got %d", c.Detection.BatchSize)
	}
	if c.Detection.MaxWorkers <= 0 {
		return fmt.Errorf("detection max workers must be positive, got %d", c.Detection.MaxWorkers)
	}
	if c.Jobs.RetentionMinutes <= 0 {
		return fmt.Errorf("job retention minutes must be positive, got %d", c.Jobs.RetentionMinutes)
	}
	if c.Jobs.CleanupIntervalMinutes <= 0 {
		return fmt.Errorf("job cleanup interval minutes must be positive, got %d", c.Jobs.CleanupIntervalMinutes)
	}
	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	overrideInt("PORT", &c.Server.Port)
	overrideInt("MAX_WORKERS", &c.Detection.MaxWorkers)
	overrideInt("BATCH_SIZE", &c.Detection.BatchSize)
	overrideInt("DETECTION_TIMEOUT_SECONDS", &c.Detection.TimeoutSeconds)
	overrideInt("JOB_RETENTION_MINUTES", &c.Jobs.RetentionMinutes)
	overrideInt("MAX_CONCURRENT_JOBS", &c.Jobs.MaxConcurrentJobs)

	if mode := os.Getenv("DETECTION_MODE"); mode != "" {
		c.Detection.Mode = strings.ToLower(strings.TrimSpace(mode))
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Advanced.LogLevel = level
	}
}

func overrideInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	if c.Detection.ThresholdsFile != "" && !filepath.IsAbs(c.Detection.ThresholdsFile) {
		c.Detection.ThresholdsFile = filepath.Join(configDir, c.Detection.ThresholdsFile)
	}
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// SchedulerConfig converts the detection section into scheduler settings.
// A negative timeout disables the comparison budget.
func (c *AppConfig) SchedulerConfig() scheduler.Config {
	timeout := time.Duration(c.Detection.TimeoutSeconds) * time.Second
	if c.Detection.TimeoutSeconds < 0 {
		timeout = -1
	}
	return scheduler.Config{
		BatchSize:  c.Detection.BatchSize,
		MaxWorkers: c.Detection.MaxWorkers,
		Timeout:    timeout,
	}
}

// DetectorConfig converts the job section into detector settings
func (c *AppConfig) DetectorConfig() detector.Config {
	return detector.Config{
		MaxConcurrentJobs: c.Jobs.MaxConcurrentJobs,
		IncludeSources:    c.Detection.IncludeSources,
	}
}

// RetentionPeriod is how long a job stays queryable after creation
func (c *AppConfig) RetentionPeriod() time.Duration {
	return time.Duration(c.Jobs.RetentionMinutes) * time.Minute
}

// CleanupInterval is the reaper tick period
func (c *AppConfig) CleanupInterval() time.Duration {
	return time.Duration(c.Jobs.CleanupIntervalMinutes) * time.Minute
}

// WebSocketPollInterval is how often progress streams sample the job
func (c *AppConfig) WebSocketPollInterval() time.Duration {
	if c.Advanced.WebSocketPollIntervalMs <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(c.Advanced.WebSocketPollIntervalMs) * time.Millisecond
}
