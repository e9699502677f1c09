package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type AdminConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// FolderMapping is a pre-provisioned (shop, kind) -> folder reference entry.
// Shops without a mapping fall back to discovery against the staging area.
type FolderMapping struct {
	ShopID   string `yaml:"shop_id"`
	Kind     string `yaml:"kind"` // unprocessed|processed|failed
	FolderID string `yaml:"folder_id"`
}

type StagingConfig struct {
	Kind string `yaml:"kind"` // drive | local
	// Local staging root, used when kind == "local".
	Root string `yaml:"root"`
	// Drive API settings, used when kind == "drive".
	Drive struct {
		BaseURL     string `yaml:"base_url"`
		AccessToken string `yaml:"access_token"`
		RootFolder  string `yaml:"root_folder"`
	} `yaml:"drive"`
	Folders []FolderMapping `yaml:"folders"`
}

type StorageConfig struct {
	Root    string        `yaml:"root"`     // object store root directory
	BaseURL string        `yaml:"base_url"` // public base for presigned URLs
	SignKey string        `yaml:"sign_key"` // HMAC key for presigned tokens
	URLTTL  time.Duration `yaml:"url_ttl"`
}

type AIConfig struct {
	Provider       string        `yaml:"provider"` // openai | gemini | noop
	OpenAIKey      string        `yaml:"openai_key"`
	OpenAIBaseURL  string        `yaml:"openai_base_url"`
	GeminiKey      string        `yaml:"gemini_key"`
	GeminiURL      string        `yaml:"gemini_url"`
	Model          string        `yaml:"model"`
	CallsPerMinute int           `yaml:"calls_per_minute"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type WorkerConfig struct {
	// IdleInterval is the fixed delay between polls when the queue is empty
	// or a job errored.
	IdleInterval time.Duration `yaml:"idle_interval"`
}

type ScanConfig struct {
	// Shops lists the tenant ids whose unprocessed folders a scan walks.
	Shops []string `yaml:"shops"`
	// Extensions allowed during discovery; others are recorded as skipped.
	Extensions []string `yaml:"extensions"`
}

type Config struct {
	Log      LogConfig      `yaml:"log"`
	Admin    AdminConfig    `yaml:"admin"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Staging  StagingConfig  `yaml:"staging"`
	Storage  StorageConfig  `yaml:"storage"`
	AI       AIConfig       `yaml:"ai"`
	Worker   WorkerConfig   `yaml:"worker"`
	Scan     ScanConfig     `yaml:"scan"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Admin.Port == 0 {
		cfg.Admin.Port = 8080
	}
	if cfg.Worker.IdleInterval <= 0 {
		cfg.Worker.IdleInterval = 5 * time.Second
	}
	if cfg.Storage.URLTTL <= 0 {
		cfg.Storage.URLTTL = 15 * time.Minute
	}
	if cfg.AI.Model == "" {
		cfg.AI.Model = "gpt-4o-mini"
	}
	if cfg.AI.Provider == "" {
		cfg.AI.Provider = "openai"
	}
	if cfg.AI.CallsPerMinute <= 0 {
		cfg.AI.CallsPerMinute = 30
	}
	if cfg.AI.RequestTimeout <= 0 {
		cfg.AI.RequestTimeout = 60 * time.Second
	}
	if cfg.Staging.Kind == "" {
		cfg.Staging.Kind = "local"
	}
	if cfg.Staging.Drive.BaseURL == "" {
		cfg.Staging.Drive.BaseURL = "https://www.googleapis.com/drive/v3"
	}
	if len(cfg.Scan.Extensions) == 0 {
		cfg.Scan.Extensions = []string{"pdf", "png", "jpg", "jpeg", "tiff"}
	}

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Storage.Root == "" {
		return nil, errors.New("storage.root is required")
	}
	if cfg.Staging.Kind == "local" && cfg.Staging.Root == "" {
		return nil, errors.New("staging.root is required for local staging")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

// FolderFor returns the configured folder mapping for (shop, kind), or ""
// when the shop relies on discovery.
func (c *StagingConfig) FolderFor(shopID, kind string) string {
	for _, m := range c.Folders {
		if m.ShopID == shopID && m.Kind == kind {
			return m.FolderID
		}
	}
	return ""
}
