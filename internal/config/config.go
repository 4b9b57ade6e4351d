package config

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/swhefti/ai-news-intelligence-hub/internal/chunk"
)

//go:embed default_config.yaml
var defaultConfigFS embed.FS

const (
	EnvDatabaseURL = "NEWSHUB_DATABASE_URL"
	EnvAIKey       = "NEWSHUB_AI_KEY"
	EnvLogLevel    = "NEWSHUB_LOG_LEVEL"
)

type Source struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	URL      string `yaml:"url"`
	Category string `yaml:"category,omitempty"`
	Priority string `yaml:"priority,omitempty"`
	Enabled  bool   `yaml:"enabled"`
}

type IngestionConfig struct {
	MaxArticlesPerFeed int    `yaml:"max_articles_per_feed"`
	FetchTimeout       string `yaml:"fetch_timeout"`
	MaxAge             string `yaml:"max_age"`
	// FullContent fetches article pages when a feed only carries a teaser.
	FullContent bool `yaml:"full_content"`
}

type SelectionConfig struct {
	DefaultWindowDays int    `yaml:"default_window_days"`
	DefaultMode       string `yaml:"default_mode"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "postgres"
	DSN    string `yaml:"dsn,omitempty"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type AIConfig struct {
	Provider string `yaml:"provider"` // "claude", "openai" or "gemini"
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
}

type Config struct {
	RefreshInterval string          `yaml:"refresh_interval"`
	Retention       string          `yaml:"retention"`
	Ingestion       IngestionConfig `yaml:"ingestion"`
	Chunking        chunk.Config    `yaml:"chunking"`
	Selection       SelectionConfig `yaml:"selection"`
	Database        DatabaseConfig  `yaml:"database"`
	Log             LogConfig       `yaml:"log"`
	Sources         []Source        `yaml:"sources"`
	AI              *AIConfig       `yaml:"ai,omitempty"`
}

// AIEnabled returns true if AI is configured with a valid API key.
func (c *Config) AIEnabled() bool {
	return c.AI != nil && c.AIKey() != ""
}

// AIKey returns the resolved API key (config or env var).
func (c *Config) AIKey() string {
	if c.AI != nil && c.AI.APIKey != "" {
		return c.AI.APIKey
	}
	return os.Getenv(EnvAIKey)
}

func (c *Config) RefreshDuration() time.Duration {
	return parseDuration(c.RefreshInterval, 6*time.Hour)
}

func (c *Config) RetentionDuration() time.Duration {
	return parseDuration(c.Retention, 90*24*time.Hour)
}

func (c IngestionConfig) FetchTimeoutDuration() time.Duration {
	return parseDuration(c.FetchTimeout, 30*time.Second)
}

func (c IngestionConfig) MaxAgeDuration() time.Duration {
	return parseDuration(c.MaxAge, 7*24*time.Hour)
}

// parseDuration accepts Go durations and an "Nd" day syntax, returning
// fallback for empty or malformed values.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	if len(s) > 1 && s[len(s)-1] == 'd' {
		var days int
		if _, err := fmt.Sscanf(s, "%dd", &days); err == nil && days > 0 {
			return time.Duration(days) * 24 * time.Hour
		}
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// ParseDuration is parseDuration without a fallback, for command flags.
func ParseDuration(s string) (time.Duration, error) {
	d := parseDuration(s, 0)
	if d == 0 {
		return 0, fmt.Errorf("invalid duration %q (use e.g. 30d or 12h)", s)
	}
	return d, nil
}

func (c *Config) EnabledSources() []Source {
	var out []Source
	for _, s := range c.Sources {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}

// FilterSources keeps the sources whose category is in categories and whose
// priority is in priorities. An empty list does not filter. Unknown values
// are rejected so a typo does not silently select nothing.
func FilterSources(sources []Source, categories, priorities []string) ([]Source, error) {
	cats, err := valueSet(categories, validCategories, "category")
	if err != nil {
		return nil, err
	}
	prios, err := valueSet(priorities, validPriorities, "priority")
	if err != nil {
		return nil, err
	}
	var out []Source
	for _, s := range sources {
		if len(cats) > 0 && !cats[s.Category] {
			continue
		}
		if len(prios) > 0 && !prios[s.Priority] {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func valueSet(values []string, valid map[string]bool, kind string) (map[string]bool, error) {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if !valid[v] {
			return nil, fmt.Errorf("unknown %s %q", kind, v)
		}
		set[v] = true
	}
	return set, nil
}

func (c *Config) SourceNames() []string {
	var names []string
	for _, s := range c.EnabledSources() {
		names = append(names, s.Name)
	}
	return names
}

// DatabaseDSN returns the configured DSN, or the sqlite file under the XDG
// data directory when none is set.
func (c *Config) DatabaseDSN() string {
	if c.Database.DSN != "" {
		return c.Database.DSN
	}
	if c.Database.Driver == "" || c.Database.Driver == "sqlite" {
		return DataPath()
	}
	return ""
}

func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, "newshub", "config.yaml")
}

func DataPath() string {
	return filepath.Join(xdg.DataHome, "newshub", "newshub.db")
}

// LoadEnv reads KEY=value pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

func loadDefaults() (*Config, error) {
	data, err := defaultConfigFS.ReadFile("default_config.yaml")
	if err != nil {
		return nil, fmt.Errorf("reading embedded config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded config: %w", err)
	}
	return &cfg, nil
}

func Load(path string) (*Config, error) {
	defaults, err := loadDefaults()
	if err != nil {
		return nil, err
	}

	if path == "" {
		path = DefaultConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// First run; failing to write the file is not fatal.
			_ = writeDefaults(path)
			applyEnv(defaults)
			return defaults, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	mergeDefaultSources(&cfg, defaults)
	fillDefaults(&cfg, defaults)
	applyEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// mergeDefaultSources updates user sources that share a name with a default
// source and appends defaults the user does not have. The user's enabled flag
// is kept.
func mergeDefaultSources(cfg, defaults *Config) {
	index := make(map[string]int, len(cfg.Sources))
	for i, s := range cfg.Sources {
		index[s.Name] = i
	}
	for _, d := range defaults.Sources {
		i, ok := index[d.Name]
		if !ok {
			cfg.Sources = append(cfg.Sources, d)
			continue
		}
		s := &cfg.Sources[i]
		s.URL = d.URL
		s.Type = d.Type
		if d.Category != "" {
			s.Category = d.Category
		}
		if d.Priority != "" {
			s.Priority = d.Priority
		}
	}
}

// fillDefaults copies every section the user left at its zero value.
func fillDefaults(cfg, defaults *Config) {
	if cfg.RefreshInterval == "" {
		cfg.RefreshInterval = defaults.RefreshInterval
	}
	if cfg.Retention == "" {
		cfg.Retention = defaults.Retention
	}
	if cfg.Ingestion.MaxArticlesPerFeed <= 0 {
		cfg.Ingestion.MaxArticlesPerFeed = defaults.Ingestion.MaxArticlesPerFeed
	}
	if cfg.Ingestion.FetchTimeout == "" {
		cfg.Ingestion.FetchTimeout = defaults.Ingestion.FetchTimeout
	}
	if cfg.Ingestion.MaxAge == "" {
		cfg.Ingestion.MaxAge = defaults.Ingestion.MaxAge
	}
	if cfg.Chunking == (chunk.Config{}) {
		cfg.Chunking = defaults.Chunking
	}
	if cfg.Selection.DefaultWindowDays == 0 {
		cfg.Selection.DefaultWindowDays = defaults.Selection.DefaultWindowDays
	}
	if cfg.Selection.DefaultMode == "" {
		cfg.Selection.DefaultMode = defaults.Selection.DefaultMode
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = defaults.Database.Driver
	}
	if cfg.Log == (LogConfig{}) {
		cfg.Log = defaults.Log
	}
	for i := range cfg.Sources {
		if cfg.Sources[i].Priority == "" {
			cfg.Sources[i].Priority = "medium"
		}
	}
}

func applyEnv(cfg *Config) {
	if dsn := os.Getenv(EnvDatabaseURL); dsn != "" {
		cfg.Database.DSN = dsn
		if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
			cfg.Database.Driver = "postgres"
		}
	}
	if lvl := os.Getenv(EnvLogLevel); lvl != "" {
		cfg.Log.Level = lvl
	}
}

func writeDefaults(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, _ := defaultConfigFS.ReadFile("default_config.yaml")
	return os.WriteFile(path, data, 0o644)
}

var (
	validTypes      = map[string]bool{"rss": true, "atom": true}
	validCategories = map[string]bool{"ai_company": true, "tech_news": true, "research": true, "community": true}
	validPriorities = map[string]bool{"high": true, "medium": true, "low": true}
	validDrivers    = map[string]bool{"": true, "sqlite": true, "postgres": true}
	validProviders  = map[string]bool{"claude": true, "openai": true, "gemini": true}
)

func validate(cfg *Config) error {
	for i, s := range cfg.Sources {
		if s.Name == "" {
			return fmt.Errorf("source %d: name is required", i)
		}
		if s.URL == "" {
			return fmt.Errorf("source %q: url is required", s.Name)
		}
		u, err := url.Parse(s.URL)
		if err != nil {
			return fmt.Errorf("source %q: invalid url: %w", s.Name, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("source %q: url scheme must be http or https, got %q", s.Name, u.Scheme)
		}
		if !validTypes[s.Type] {
			return fmt.Errorf("source %q: unknown type %q (valid: rss, atom)", s.Name, s.Type)
		}
		if s.Category != "" && !validCategories[s.Category] {
			return fmt.Errorf("source %q: unknown category %q (valid: ai_company, tech_news, research, community)", s.Name, s.Category)
		}
		if s.Priority != "" && !validPriorities[s.Priority] {
			return fmt.Errorf("source %q: unknown priority %q (valid: high, medium, low)", s.Name, s.Priority)
		}
	}
	if !validDrivers[cfg.Database.Driver] {
		return fmt.Errorf("database: unknown driver %q (valid: sqlite, postgres)", cfg.Database.Driver)
	}
	if cfg.Database.Driver == "postgres" && cfg.Database.DSN == "" {
		return fmt.Errorf("database: postgres requires a dsn or %s", EnvDatabaseURL)
	}
	if c := cfg.Chunking; c.Size > 0 && c.Overlap >= c.Size {
		return fmt.Errorf("chunking: overlap %d must be smaller than size %d", c.Overlap, c.Size)
	}
	if cfg.AI != nil && !validProviders[cfg.AI.Provider] {
		return fmt.Errorf("ai: unknown provider %q (valid: claude, openai, gemini)", cfg.AI.Provider)
	}
	return nil
}
