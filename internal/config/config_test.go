package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/swhefti/ai-news-intelligence-hub/internal/chunk"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := loadDefaults()
	if err != nil {
		t.Fatalf("loadDefaults: %v", err)
	}
	if len(cfg.Sources) == 0 {
		t.Error("expected at least one default source")
	}
	if cfg.RefreshInterval == "" {
		t.Error("expected refresh_interval to be set")
	}
}

func TestRefreshDuration(t *testing.T) {
	cfg := &Config{RefreshInterval: "30m"}
	d := cfg.RefreshDuration()
	if d.Minutes() != 30 {
		t.Errorf("expected 30m, got %v", d)
	}

	cfg.RefreshInterval = "invalid"
	d = cfg.RefreshDuration()
	if d.Hours() != 6 {
		t.Errorf("expected 6h default for invalid interval, got %v", d)
	}
}

func TestRetentionDuration(t *testing.T) {
	tests := []struct {
		input    string
		wantDays int
	}{
		{"90d", 90},
		{"30d", 30},
		{"720h", 30},
		{"", 90},        // default
		{"invalid", 90}, // fallback to default
	}
	for _, tt := range tests {
		cfg := &Config{Retention: tt.input}
		got := cfg.RetentionDuration()
		wantHours := float64(tt.wantDays * 24)
		if got.Hours() != wantHours {
			t.Errorf("RetentionDuration(%q) = %v, want %dd", tt.input, got, tt.wantDays)
		}
	}
}

func TestEnabledSources(t *testing.T) {
	cfg := &Config{
		Sources: []Source{
			{Name: "A", Enabled: true},
			{Name: "B", Enabled: false},
			{Name: "C", Enabled: true},
		},
	}
	enabled := cfg.EnabledSources()
	if len(enabled) != 2 {
		t.Fatalf("expected 2 enabled sources, got %d", len(enabled))
	}
	if enabled[0].Name != "A" || enabled[1].Name != "C" {
		t.Errorf("unexpected enabled sources: %v", enabled)
	}
}

func TestSourceNames(t *testing.T) {
	cfg := &Config{
		Sources: []Source{
			{Name: "Alpha", Enabled: true},
			{Name: "Beta", Enabled: false},
			{Name: "Gamma", Enabled: true},
		},
	}
	names := cfg.SourceNames()
	if len(names) != 2 {
		t.Fatalf("expected 2 names, got %d", len(names))
	}
	if names[0] != "Alpha" || names[1] != "Gamma" {
		t.Errorf("unexpected names: %v", names)
	}
}

func TestLoadFromFile(t *testing.T) {
	t.Setenv(EnvDatabaseURL, "")
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	content := `refresh_interval: 2h
sources:
  - name: Test
    type: rss
    url: https://example.com/feed
    enabled: true
`
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RefreshInterval != "2h" {
		t.Errorf("expected 2h, got %s", cfg.RefreshInterval)
	}
	// First source should be the user-defined one
	if cfg.Sources[0].Name != "Test" {
		t.Errorf("expected first source name Test, got %s", cfg.Sources[0].Name)
	}
	// Default sources should be merged in
	if len(cfg.Sources) <= 1 {
		t.Errorf("expected default sources to be merged, got %d total", len(cfg.Sources))
	}
	// Unset sections come from the embedded defaults
	if cfg.Chunking.Size != 1000 || cfg.Ingestion.MaxArticlesPerFeed != 25 {
		t.Errorf("expected default chunking and ingestion, got %+v %+v", cfg.Chunking, cfg.Ingestion)
	}
	if cfg.Database.Driver != "sqlite" || cfg.DatabaseDSN() != DataPath() {
		t.Errorf("expected sqlite under the data dir, got %q %q", cfg.Database.Driver, cfg.DatabaseDSN())
	}
	if cfg.Sources[0].Priority != "medium" {
		t.Errorf("expected missing priority to default to medium, got %q", cfg.Sources[0].Priority)
	}
}

func TestLoadNonexistentFallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "sub", "config.yaml")

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Sources) == 0 {
		t.Error("expected default sources when config doesn't exist")
	}
	if _, err := os.Stat(cfgPath); err != nil {
		t.Errorf("expected defaults written on first run: %v", err)
	}
}

func TestMergeDefaultSources(t *testing.T) {
	cfg := &Config{
		Sources: []Source{
			{Name: "Existing", Type: "rss", URL: "https://example.com/feed", Enabled: true},
			{Name: "Shared", Type: "rss", URL: "https://old.com/feed", Enabled: true},
		},
	}
	defaults := &Config{
		Sources: []Source{
			{Name: "Shared", Type: "atom", URL: "https://new.com/feed", Enabled: true},
			{Name: "NewSource", Type: "rss", URL: "https://new-source.com/feed", Enabled: true},
		},
	}
	mergeDefaultSources(cfg, defaults)

	if len(cfg.Sources) != 3 {
		t.Fatalf("expected 3 sources after merge, got %d", len(cfg.Sources))
	}
	// User-only source preserved
	if cfg.Sources[0].Name != "Existing" {
		t.Errorf("expected first source Existing, got %s", cfg.Sources[0].Name)
	}
	// Shared source URL updated to default
	if cfg.Sources[1].URL != "https://new.com/feed" {
		t.Errorf("expected Shared URL updated, got %s", cfg.Sources[1].URL)
	}
	if cfg.Sources[1].Type != "atom" {
		t.Errorf("expected Shared type updated to atom, got %s", cfg.Sources[1].Type)
	}
	// New default source appended
	if cfg.Sources[2].Name != "NewSource" {
		t.Errorf("expected NewSource appended, got %s", cfg.Sources[2].Name)
	}
}

func TestValidateMissingName(t *testing.T) {
	cfg := &Config{Sources: []Source{{Type: "rss", URL: "https://example.com"}}}
	err := validate(cfg)
	if err == nil {
		t.Error("expected error for missing name")
	}
}

func TestValidateMissingURL(t *testing.T) {
	cfg := &Config{Sources: []Source{{Name: "Test", Type: "rss"}}}
	err := validate(cfg)
	if err == nil {
		t.Error("expected error for missing URL")
	}
}

func TestValidateInvalidType(t *testing.T) {
	cfg := &Config{Sources: []Source{{Name: "Test", Type: "json", URL: "https://example.com"}}}
	err := validate(cfg)
	if err == nil {
		t.Error("expected error for invalid type")
	}
}

func TestValidateInvalidURLScheme(t *testing.T) {
	cfg := &Config{Sources: []Source{{Name: "Test", Type: "rss", URL: "file:///etc/passwd"}}}
	err := validate(cfg)
	if err == nil {
		t.Error("expected error for file:// URL scheme")
	}
}

func TestValidateAcceptsHTTPS(t *testing.T) {
	cfg := &Config{Sources: []Source{{Name: "Test", Type: "rss", URL: "https://example.com/feed"}}}
	err := validate(cfg)
	if err != nil {
		t.Errorf("unexpected error for https URL: %v", err)
	}
}

func TestValidateAcceptsHTTP(t *testing.T) {
	cfg := &Config{Sources: []Source{{Name: "Test", Type: "rss", URL: "http://example.com/feed"}}}
	err := validate(cfg)
	if err != nil {
		t.Errorf("unexpected error for http URL: %v", err)
	}
}

func TestLoadDefaultsFeedList(t *testing.T) {
	cfg, err := loadDefaults()
	if err != nil {
		t.Fatalf("loadDefaults: %v", err)
	}
	if err := validate(cfg); err != nil {
		t.Fatalf("embedded config invalid: %v", err)
	}
	if len(cfg.Sources) != 25 {
		t.Errorf("expected 25 default sources, got %d", len(cfg.Sources))
	}
	if got := cfg.RetentionDuration(); got != 90*24*time.Hour {
		t.Errorf("expected 90d retention, got %v", got)
	}
	if cfg.Selection.DefaultWindowDays != 7 || cfg.Selection.DefaultMode != "concise" {
		t.Errorf("unexpected selection defaults %+v", cfg.Selection)
	}
}

func TestIngestionDurations(t *testing.T) {
	c := IngestionConfig{FetchTimeout: "10s", MaxAge: "3d"}
	if c.FetchTimeoutDuration() != 10*time.Second {
		t.Errorf("fetch timeout = %v", c.FetchTimeoutDuration())
	}
	if c.MaxAgeDuration() != 72*time.Hour {
		t.Errorf("max age = %v", c.MaxAgeDuration())
	}
	var zero IngestionConfig
	if zero.FetchTimeoutDuration() != 30*time.Second || zero.MaxAgeDuration() != 7*24*time.Hour {
		t.Error("expected defaults for empty ingestion config")
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"30d", 30 * 24 * time.Hour, false},
		{"12h", 12 * time.Hour, false},
		{"0d", 0, true},
		{"-5h", 0, true},
		{"soon", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseDuration(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseDuration(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvDatabaseURL, "postgres://u:p@localhost/newshub")
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvAIKey, "from-env")

	cfg := &Config{AI: &AIConfig{Provider: "claude"}}
	applyEnv(cfg)
	if cfg.Database.Driver != "postgres" || cfg.DatabaseDSN() != "postgres://u:p@localhost/newshub" {
		t.Errorf("unexpected database %+v", cfg.Database)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected debug level, got %q", cfg.Log.Level)
	}
	if !cfg.AIEnabled() || cfg.AIKey() != "from-env" {
		t.Errorf("expected AI key from env, got %q", cfg.AIKey())
	}
	cfg.AI.APIKey = "from-file"
	if cfg.AIKey() != "from-file" {
		t.Errorf("config key should win, got %q", cfg.AIKey())
	}
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	if err := LoadEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("missing file should be ignored: %v", err)
	}

	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("NEWSHUB_TEST_ONLY=loaded\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("NEWSHUB_TEST_ONLY", "")
	os.Unsetenv("NEWSHUB_TEST_ONLY")
	if err := LoadEnv(path); err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if got := os.Getenv("NEWSHUB_TEST_ONLY"); got != "loaded" {
		t.Errorf("expected loaded, got %q", got)
	}
}

func TestValidateRejects(t *testing.T) {
	base := Source{Name: "Test", Type: "rss", URL: "https://example.com/feed"}
	tests := map[string]*Config{
		"category": {Sources: []Source{{Name: "T", Type: "rss", URL: "https://e.com", Category: "sports"}}},
		"priority": {Sources: []Source{{Name: "T", Type: "rss", URL: "https://e.com", Priority: "urgent"}}},
		"driver":   {Sources: []Source{base}, Database: DatabaseConfig{Driver: "mysql"}},
		"postgres": {Database: DatabaseConfig{Driver: "postgres"}},
		"overlap":  {Chunking: chunk.Config{Size: 100, Overlap: 100}},
		"provider": {AI: &AIConfig{Provider: "llama"}},
	}
	for name, cfg := range tests {
		if err := validate(cfg); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestFilterSources(t *testing.T) {
	sources := []Source{
		{Name: "OpenAI Blog", Category: "ai_company", Priority: "high"},
		{Name: "The Verge AI", Category: "tech_news", Priority: "medium"},
		{Name: "arXiv", Category: "research", Priority: "high"},
		{Name: "Hacker News", Category: "community", Priority: "low"},
	}
	names := func(ss []Source) []string {
		var out []string
		for _, s := range ss {
			out = append(out, s.Name)
		}
		return out
	}

	tests := []struct {
		name       string
		categories []string
		priorities []string
		want       []string
	}{
		{"no filter", nil, nil, []string{"OpenAI Blog", "The Verge AI", "arXiv", "Hacker News"}},
		{"category", []string{"ai_company", "Tech_News"}, nil, []string{"OpenAI Blog", "The Verge AI"}},
		{"priority", nil, []string{"high"}, []string{"OpenAI Blog", "arXiv"}},
		{"both", []string{"ai_company", "tech_news"}, []string{"high"}, []string{"OpenAI Blog"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FilterSources(sources, tt.categories, tt.priorities)
			if err != nil {
				t.Fatalf("FilterSources: %v", err)
			}
			if strings.Join(names(got), ",") != strings.Join(tt.want, ",") {
				t.Errorf("got %v, want %v", names(got), tt.want)
			}
		})
	}

	if _, err := FilterSources(sources, []string{"blogs"}, nil); err == nil {
		t.Error("expected error for unknown category")
	}
	if _, err := FilterSources(sources, nil, []string{"urgent"}); err == nil {
		t.Error("expected error for unknown priority")
	}
}
