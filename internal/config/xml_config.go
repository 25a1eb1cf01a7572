// Package config provides XML-based configuration management for the harvester.
package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/nggdpp/ndc-harvester/internal/catalog"
	"github.com/nggdpp/ndc-harvester/internal/fetch"
	"github.com/nggdpp/ndc-harvester/internal/normalizer"
	"github.com/nggdpp/ndc-harvester/internal/storage"
)

// DefaultConfigFile is the file name used when no path is given.
const DefaultConfigFile = "NDCHarvester.config"

// AppConfig represents the root XML configuration structure
type AppConfig struct {
	XMLName xml.Name `xml:"NDCHarvester"`

	Server    ServerConfig    `xml:"Server"`
	Storage   StorageConfig   `xml:"Storage"`
	Harvest   HarvestConfig   `xml:"Harvest"`
	Messaging MessagingConfig `xml:"Messaging"`
	Schedule  ScheduleConfig  `xml:"Schedule"`
	Advanced  AdvancedConfig  `xml:"Advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port           int    `xml:"Port"`
	BindAddress    string `xml:"BindAddress"`
	EnableCORS     bool   `xml:"EnableCORS"`
	AllowOrigins   string `xml:"AllowOrigins"`
	ReadTimeout    int    `xml:"ReadTimeoutSeconds"`
	WriteTimeout   int    `xml:"WriteTimeoutSeconds"`
	IdleTimeout    int    `xml:"IdleTimeoutSeconds"`
	RequestTimeout int    `xml:"RequestTimeoutSeconds"`
	BodyLimit      string `xml:"BodyLimit"`
}

// StorageConfig selects the record store and its directories
type StorageConfig struct {
	Backend          string `xml:"Backend"` // duckdb, mongo or memory
	DataDirectory    string `xml:"DataDirectory"`
	UploadsDirectory string `xml:"UploadsDirectory"`
	DuckDBFile       string `xml:"DuckDBFile"`
	MongoURI         string `xml:"MongoURI"`
	MongoDatabase    string `xml:"MongoDatabase"`
}

// HarvestConfig contains fetch and normalization settings
type HarvestConfig struct {
	FetchTimeoutSeconds    int    `xml:"FetchTimeoutSeconds"`
	UserAgent              string `xml:"UserAgent"`
	MaxBodySize            string `xml:"MaxBodySize"`
	ListingExtension       string `xml:"ListingExtension"`
	CatalogURL             string `xml:"CatalogURL"`
	CommaAllowedColumns    string `xml:"CommaAllowedColumns"`
	DateColumns            string `xml:"DateColumns"`
	AcceptableContentTypes string `xml:"AcceptableContentTypes"` // comma separated
	MaxConcurrentJobs      int    `xml:"MaxConcurrentJobs"`
	JobRetentionMinutes    int    `xml:"JobRetentionMinutes"`
}

// MessagingConfig contains the NATS event publisher settings
type MessagingConfig struct {
	Enabled bool   `xml:"Enabled"`
	NATSURL string `xml:"NATSURL"`
	Subject string `xml:"Subject"`
}

// ScheduleConfig contains periodic harvest settings
type ScheduleConfig struct {
	Enabled     bool   `xml:"Enabled"`
	Cron        string `xml:"Cron"`
	SourcesFile string `xml:"SourcesFile"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	LogLevel             string `xml:"LogLevel"`
	EnableRequestLogging bool   `xml:"EnableRequestLogging"`
	DuckDBThreads        int    `xml:"DuckDBThreads"`
	DuckDBMemoryLimit    string `xml:"DuckDBMemoryLimit"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:           8089,
			BindAddress:    "0.0.0.0",
			EnableCORS:     true,
			AllowOrigins:   "*",
			ReadTimeout:    30,
			WriteTimeout:   30,
			IdleTimeout:    120,
			RequestTimeout: 120,
			BodyLimit:      "200M",
		},
		Storage: StorageConfig{
			Backend:          storage.BackendDuckDB,
			DataDirectory:    "./data",
			UploadsDirectory: "./data/uploads",
			DuckDBFile:       "./data/ndc.duckdb",
			MongoURI:         "mongodb://localhost:27017",
			MongoDatabase:    "ndc",
		},
		Harvest: HarvestConfig{
			FetchTimeoutSeconds: 60,
			UserAgent:           "ndc-harvester/1.0",
			MaxBodySize:         "200M",
			ListingExtension:    "xml",
			CatalogURL:          catalog.DefaultBaseURL,
			MaxConcurrentJobs:   2,
			JobRetentionMinutes: 30,
		},
		Messaging: MessagingConfig{
			Enabled: false,
			NATSURL: "nats://localhost:4222",
			Subject: "ndc.harvest.batches",
		},
		Schedule: ScheduleConfig{
			Enabled:     false,
			Cron:        "0 0 3 * * *",
			SourcesFile: "./sources.yaml",
		},
		Advanced: AdvancedConfig{
			LogLevel:             "info",
			EnableRequestLogging: true,
			DuckDBThreads:        4,
			DuckDBMemoryLimit:    "1GB",
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
		config.resolvePaths(filepath.Dir(configPath))
		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := xml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyEnvironmentOverrides()
	config.resolvePaths(filepath.Dir(configPath))

	return config, nil
}

// Save saves the configuration to XML file
func (c *AppConfig) Save(configPath string) error {
	output, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(xml.Header + "\n<!-- NDC Harvester Configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
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
	if uri := os.Getenv("MONGODB_URI"); uri != "" {
		c.Storage.MongoURI = uri
	}
	if backend := os.Getenv("STORE_BACKEND"); backend != "" {
		c.Storage.Backend = strings.ToLower(backend)
	}
	// Setting a NATS URL turns publishing on.
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		c.Messaging.NATSURL = natsURL
		c.Messaging.Enabled = true
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	for _, p := range []*string{
		&c.Storage.DataDirectory,
		&c.Storage.UploadsDirectory,
		&c.Storage.DuckDBFile,
		&c.Schedule.SourcesFile,
	} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(configDir, *p)
		}
	}
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.UploadsDirectory,
		filepath.Dir(c.Storage.DuckDBFile),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// FetchOptions returns the fetch client settings.
func (c *AppConfig) FetchOptions() fetch.Options {
	return fetch.Options{
		Timeout:   time.Duration(c.Harvest.FetchTimeoutSeconds) * time.Second,
		UserAgent: c.Harvest.UserAgent,
		MaxBytes:  ParseSize(c.Harvest.MaxBodySize),
	}
}

// NormalizerOptions returns the column lists, falling back to the built-in
// lists for any left empty.
func (c *AppConfig) NormalizerOptions() normalizer.Options {
	opts := normalizer.DefaultOptions()
	if cols := splitList(c.Harvest.CommaAllowedColumns, ","); len(cols) > 0 {
		opts.CommaAllowed = cols
	}
	if cols := splitList(c.Harvest.DateColumns, ","); len(cols) > 0 {
		opts.DateColumns = cols
	}
	return opts
}

// AcceptableContentTypes returns the catalog file content types to harvest.
func (c *AppConfig) AcceptableContentTypes() []string {
	if types := splitList(c.Harvest.AcceptableContentTypes, ","); len(types) > 0 {
		return types
	}
	return catalog.DefaultAcceptableContentTypes
}

// StoreOptions returns the record store settings.
func (c *AppConfig) StoreOptions() storage.Options {
	return storage.Options{
		Backend:           c.Storage.Backend,
		DuckDBPath:        c.Storage.DuckDBFile,
		DuckDBThreads:     c.Advanced.DuckDBThreads,
		DuckDBMemoryLimit: c.Advanced.DuckDBMemoryLimit,
		MongoURI:          c.Storage.MongoURI,
		MongoDatabase:     c.Storage.MongoDatabase,
	}
}

// JobRetention is how long finished jobs are kept.
func (c *AppConfig) JobRetention() time.Duration {
	return time.Duration(c.Harvest.JobRetentionMinutes) * time.Minute
}

func splitList(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ParseSize reads sizes such as "200M", "2G" or "512K". Plain numbers are
// bytes; anything unreadable is 0.
func ParseSize(s string) int64 {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.TrimSuffix(s, "B")
	mult := int64(1)
	switch {
	case strings.HasSuffix(s, "K"):
		mult = 1 << 10
	case strings.HasSuffix(s, "M"):
		mult = 1 << 20
	case strings.HasSuffix(s, "G"):
		mult = 1 << 30
	}
	if mult > 1 {
		s = s[:len(s)-1]
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n * mult
}
