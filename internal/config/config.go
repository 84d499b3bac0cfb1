package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces environment overrides, e.g. FIXCAL_LISTEN or
// FIXCAL_CACHE_BACKEND.
const EnvPrefix = "FIXCAL"

const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// BasicAuthConfig holds HTTP Basic Auth credentials. Auth is disabled when
// either field is empty.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// ProviderConfig points at the fixture provider's mobile service.
type ProviderConfig struct {
	BaseURL string        `yaml:"base_url" json:"base_url"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// CacheDir keeps the last good response per team so a provider outage
	// still serves a feed.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`
}

// CacheConfig controls memoization of team details.
type CacheConfig struct {
	Backend string        `yaml:"backend" json:"backend"`
	TTL     time.Duration `yaml:"ttl" json:"ttl"`
	// Prefetch is the fraction of TTL after which a read triggers a
	// background refresh.
	Prefetch float64 `yaml:"prefetch" json:"prefetch"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
}

// ReconcileConfig tunes the reconciliation engine.
type ReconcileConfig struct {
	YearPolicy                   string `yaml:"year_policy" json:"year_policy"`
	MergeOverlappingPlaceholders bool   `yaml:"merge_overlapping_placeholders" json:"merge_overlapping_placeholders"`
	// DefaultStart/DefaultEnd ("HH:MM") time placeholders when the feed
	// metadata carries no fixture times.
	DefaultStart string `yaml:"default_start" json:"default_start"`
	DefaultEnd   string `yaml:"default_end" json:"default_end"`
}

// TeamRef identifies a team at the provider.
type TeamRef struct {
	CentreID string `yaml:"centre_id" json:"centre_id"`
	TeamID   string `yaml:"team_id" json:"team_id"`
}

// WarmConfig schedules background refreshes of frequently used teams.
type WarmConfig struct {
	Cron  string    `yaml:"cron" json:"cron"`
	Teams []TeamRef `yaml:"teams" json:"teams"`
}

type LogConfig struct {
	Level       string `yaml:"level" json:"level"`
	Format      string `yaml:"format" json:"format"`
	Development bool   `yaml:"development" json:"development"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone used when a feed's metadata names none.
	Timezone string `yaml:"timezone" json:"timezone"`

	Provider  ProviderConfig  `yaml:"provider" json:"provider"`
	Cache     CacheConfig     `yaml:"cache" json:"cache"`
	Redis     RedisConfig     `yaml:"redis" json:"redis"`
	Reconcile ReconcileConfig `yaml:"reconcile" json:"reconcile"`
	Warm      WarmConfig      `yaml:"warm" json:"warm"`
	Log       LogConfig       `yaml:"log" json:"log"`
	Metrics   MetricsConfig   `yaml:"metrics" json:"metrics"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:   "127.0.0.1:8080",
		Timezone: "Australia/Sydney",
		Provider: ProviderConfig{
			BaseURL:  "https://api.fixionline.com/MobService.svc",
			Timeout:  15 * time.Second,
			CacheDir: "./var/fixture-cache",
		},
		Cache: CacheConfig{
			Backend:  CacheMemory,
			TTL:      24 * time.Hour,
			Prefetch: 0.8,
		},
		Redis: RedisConfig{Addr: "localhost:6379"},
		Reconcile: ReconcileConfig{
			YearPolicy:   "bounding_window",
			DefaultStart: "19:00",
			DefaultEnd:   "20:00",
		},
		Warm: WarmConfig{
			Cron:  "0 */6 * * *",
			Teams: []TeamRef{},
		},
		Log:     LogConfig{Level: "info", Format: "json"},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// Normalize fills in missing/zero values with defaults so partially
// filled configs still behave.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.Provider.BaseURL == "" {
		c.Provider.BaseURL = def.Provider.BaseURL
	}
	c.Provider.BaseURL = strings.TrimRight(c.Provider.BaseURL, "/")
	if c.Provider.Timeout <= 0 {
		c.Provider.Timeout = def.Provider.Timeout
	}
	if c.Provider.CacheDir == "" {
		c.Provider.CacheDir = def.Provider.CacheDir
	}

	c.Cache.Backend = strings.ToLower(strings.TrimSpace(c.Cache.Backend))
	if c.Cache.Backend == "" {
		c.Cache.Backend = CacheMemory
	}
	if c.Cache.TTL <= 0 {
		c.Cache.TTL = def.Cache.TTL
	}
	if c.Cache.Prefetch <= 0 || c.Cache.Prefetch > 1 {
		c.Cache.Prefetch = def.Cache.Prefetch
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = def.Redis.Addr
	}

	if c.Reconcile.YearPolicy == "" {
		c.Reconcile.YearPolicy = def.Reconcile.YearPolicy
	}
	if c.Reconcile.DefaultStart == "" {
		c.Reconcile.DefaultStart = def.Reconcile.DefaultStart
	}
	if c.Reconcile.DefaultEnd == "" {
		c.Reconcile.DefaultEnd = def.Reconcile.DefaultEnd
	}

	if c.Warm.Cron == "" {
		c.Warm.Cron = def.Warm.Cron
	}
	if c.Warm.Teams == nil {
		c.Warm.Teams = []TeamRef{}
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}
}

// Validate reports values Normalize cannot repair.
func (c *Config) Validate() error {
	var errs []error
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}
	switch c.Cache.Backend {
	case CacheMemory, CacheRedis:
	default:
		errs = append(errs, fmt.Errorf("cache.backend: unknown backend %q", c.Cache.Backend))
	}
	for name, v := range map[string]string{
		"reconcile.default_start": c.Reconcile.DefaultStart,
		"reconcile.default_end":   c.Reconcile.DefaultEnd,
	} {
		if _, err := time.Parse("15:04", v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %q is not HH:MM", name, v))
		}
	}
	for i, t := range c.Warm.Teams {
		if t.CentreID == "" || t.TeamID == "" {
			errs = append(errs, fmt.Errorf("warm.teams[%d]: centre_id and team_id are required", i))
		}
	}
	return errors.Join(errs...)
}

// Load reads the YAML config at path, applies .env and FIXCAL_*
// environment overrides, then normalizes and validates.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - If the file exists:
//   - read YAML over the defaults
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, ".env")
}

// LoadWithEnv is Load with an explicit dotenv file. An empty or missing
// envFile is ignored.
func LoadWithEnv(path, envFile string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// First run: create default config file.
		if err := Save(path, cfg); err != nil {
			return cfg, err
		}
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg, envFile); err != nil {
		return nil, err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	strs := map[string]*string{
		"listen":                  &cfg.Listen,
		"timezone":                &cfg.Timezone,
		"provider.base_url":       &cfg.Provider.BaseURL,
		"provider.cache_dir":      &cfg.Provider.CacheDir,
		"cache.backend":           &cfg.Cache.Backend,
		"redis.addr":              &cfg.Redis.Addr,
		"redis.password":          &cfg.Redis.Password,
		"reconcile.year_policy":   &cfg.Reconcile.YearPolicy,
		"reconcile.default_start": &cfg.Reconcile.DefaultStart,
		"reconcile.default_end":   &cfg.Reconcile.DefaultEnd,
		"warm.cron":               &cfg.Warm.Cron,
		"log.level":               &cfg.Log.Level,
		"log.format":              &cfg.Log.Format,
	}
	for key, dst := range strs {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}

	durations := map[string]*time.Duration{
		"provider.timeout": &cfg.Provider.Timeout,
		"cache.ttl":        &cfg.Cache.TTL,
	}
	for key, dst := range durations {
		if v.IsSet(key) {
			*dst = v.GetDuration(key)
		}
	}

	if v.IsSet("cache.prefetch") {
		cfg.Cache.Prefetch = v.GetFloat64("cache.prefetch")
	}
	if v.IsSet("redis.db") {
		cfg.Redis.DB = v.GetInt("redis.db")
	}
	if v.IsSet("reconcile.merge_overlapping_placeholders") {
		cfg.Reconcile.MergeOverlappingPlaceholders = v.GetBool("reconcile.merge_overlapping_placeholders")
	}
	if v.IsSet("metrics.enabled") {
		cfg.Metrics.Enabled = v.GetBool("metrics.enabled")
	}
	if v.IsSet("log.development") {
		cfg.Log.Development = v.GetBool("log.development")
	}

	if v.IsSet("basic_auth.username") || v.IsSet("basic_auth.password") {
		if cfg.BasicAuth == nil {
			cfg.BasicAuth = &BasicAuthConfig{}
		}
		if v.IsSet("basic_auth.username") {
			cfg.BasicAuth.Username = v.GetString("basic_auth.username")
		}
		if v.IsSet("basic_auth.password") {
			cfg.BasicAuth.Password = v.GetString("basic_auth.password")
		}
	}
	return nil
}

// Save writes cfg to path atomically via a temp file + rename, with 0600
// permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".fixcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func (c *Config) Save(path string) error {
	return Save(path, c)
}

// Location loads the configured timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
