// Package config provides XML-based configuration with .env and
// environment overrides.
package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// FileName is the config file created next to the executable.
const FileName = "flowpi.config"

// AppConfig represents the root XML configuration structure
type AppConfig struct {
	XMLName xml.Name `xml:"FlowPi"`

	Server    ServerConfig    `xml:"Server"`
	Storage   StorageConfig   `xml:"Storage"`
	Execution ExecutionConfig `xml:"Execution"`
	Editor    EditorConfig    `xml:"Editor"`
	Advanced  AdvancedConfig  `xml:"Advanced"`
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

// StorageConfig contains file storage settings. Sub-directories are
// relative to DataDirectory unless absolute.
type StorageConfig struct {
	DataDirectory     string `xml:"DataDirectory"`
	ProjectsDirectory string `xml:"ProjectsDirectory"`
	BackupDirectory   string `xml:"BackupDirectory"`
	ArtifactDirectory string `xml:"ArtifactDirectory"`
	HistoryDatabase   string `xml:"HistoryDatabase"`
}

// ExecutionConfig contains the default board connection
type ExecutionConfig struct {
	Host                   string `xml:"Host"`
	Port                   int    `xml:"Port"`
	User                   string `xml:"User"`
	Password               string `xml:"Password"`
	ConnectTimeoutSeconds  int    `xml:"ConnectTimeoutSeconds"`
	MPRemoteBinary         string `xml:"MPRemoteBinary"`
	PicoDevice             string `xml:"PicoDevice"`
	HistoryRetentionDays   int    `xml:"HistoryRetentionDays"`
	CleanupIntervalMinutes int    `xml:"CleanupIntervalMinutes"`
}

// EditorConfig contains editor behaviour settings
type EditorConfig struct {
	AutosaveIntervalMinutes int    `xml:"AutosaveIntervalMinutes"`
	Language                string `xml:"Language"`
	RecentProjects          int    `xml:"RecentProjects"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	LogLevel                string `xml:"LogLevel"`
	EnableRequestLogging    bool   `xml:"EnableRequestLogging"`
	WebSocketMaxMessageSize int    `xml:"WebSocketMaxMessageSizeKB"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8089,
			BindAddress:  "127.0.0.1",
			EnableCORS:   true,
			AllowOrigins: "*",
			ReadTimeout:  30,
			WriteTimeout: 30,
			IdleTimeout:  120,
			BodyLimit:    "32M",
		},
		Storage: StorageConfig{
			DataDirectory:     "./data",
			ProjectsDirectory: "projects",
			BackupDirectory:   "backup",
			ArtifactDirectory: "build",
			HistoryDatabase:   "history.duckdb",
		},
		Execution: ExecutionConfig{
			Host:                   "raspberrypi.local",
			Port:                   22,
			User:                   "pi",
			ConnectTimeoutSeconds:  10,
			MPRemoteBinary:         "mpremote",
			HistoryRetentionDays:   30,
			CleanupIntervalMinutes: 60,
		},
		Editor: EditorConfig{
			AutosaveIntervalMinutes: 5,
			Language:                "en",
			RecentProjects:          10,
		},
		Advanced: AdvancedConfig{
			LogLevel:                "info",
			EnableRequestLogging:    true,
			WebSocketMaxMessageSize: 64,
		},
	}
}

// LoadConfig loads configuration from XML file, creating it with defaults
// when missing. A .env file next to it is loaded before the environment
// overrides are applied.
func LoadConfig(configPath string) (*AppConfig, error) {
	configDir := filepath.Dir(configPath)
	_ = godotenv.Load(filepath.Join(configDir, ".env"))

	config := DefaultConfig()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := xml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.applyEnvironmentOverrides()
	config.resolvePaths(configDir)
	return config, nil
}

// Save saves the configuration to XML file
func (c *AppConfig) Save(configPath string) error {
	output, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(xml.Header + "\n<!-- FlowPi Configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
	content := append(header, output...)

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
	}
	if host := os.Getenv("RPI_HOST"); host != "" {
		c.Execution.Host = host
	}
	if user := os.Getenv("RPI_USER"); user != "" {
		c.Execution.User = user
	}
	if password := os.Getenv("RPI_PASSWORD"); password != "" {
		c.Execution.Password = password
	}
	if lang := os.Getenv("FLOWPI_LANGUAGE"); lang != "" {
		c.Editor.Language = lang
	}
}

// resolvePaths converts relative paths to absolute ones: DataDirectory
// against the config location, everything else against DataDirectory.
func (c *AppConfig) resolvePaths(configDir string) {
	if !filepath.IsAbs(c.Storage.DataDirectory) {
		c.Storage.DataDirectory = filepath.Join(configDir, c.Storage.DataDirectory)
	}
	for _, p := range []*string{
		&c.Storage.ProjectsDirectory,
		&c.Storage.BackupDirectory,
		&c.Storage.ArtifactDirectory,
		&c.Storage.HistoryDatabase,
	} {
		if !filepath.IsAbs(*p) {
			*p = filepath.Join(c.Storage.DataDirectory, *p)
		}
	}
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// AutosaveInterval returns the autosave tick, at least one minute.
func (c *AppConfig) AutosaveInterval() time.Duration {
	return time.Duration(max(c.Editor.AutosaveIntervalMinutes, 1)) * time.Minute
}

// ConnectTimeout returns the board connect timeout.
func (c *AppConfig) ConnectTimeout() time.Duration {
	if c.Execution.ConnectTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Execution.ConnectTimeoutSeconds) * time.Second
}

// HistoryRetention returns how long run history is kept.
func (c *AppConfig) HistoryRetention() time.Duration {
	return time.Duration(max(c.Execution.HistoryRetentionDays, 1)) * 24 * time.Hour
}

// CleanupInterval returns the history cleanup tick.
func (c *AppConfig) CleanupInterval() time.Duration {
	return time.Duration(max(c.Execution.CleanupIntervalMinutes, 1)) * time.Minute
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.ProjectsDirectory,
		c.Storage.BackupDirectory,
		c.Storage.ArtifactDirectory,
		filepath.Dir(c.Storage.HistoryDatabase),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
