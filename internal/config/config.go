package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/nhle/review-notifier/internal/credential"
)

// Sink kinds.
const (
	SinkTelegram = "telegram"
	SinkFeishu   = "feishu"
)

// Interval bounds in minutes.
const (
	MinIntervalMinutes     = 1
	MaxIntervalMinutes     = 60
	DefaultIntervalMinutes = 2
)

// DefaultCycleLeaseTTL bounds how long a crashed process can block cycles in
// other processes sharing the state database.
const DefaultCycleLeaseTTL = 15 * time.Minute

// EnvPrefix is prepended to every environment override, e.g.
// NOTIFIER_GITLAB_TOKEN for gitlab.token.
const EnvPrefix = "NOTIFIER"

// Settings is the fully resolved notifier configuration. Defaults are
// applied once at load time and the core never mutates it.
type Settings struct {
	// Enabled turns all polling on or off.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Identity is the username whose activity is relevant. Empty means every
	// item is relevant.
	Identity string `mapstructure:"identity" yaml:"identity"`

	// MonitoredProjects holds numeric project ids or full paths.
	MonitoredProjects []string `mapstructure:"monitored_projects" yaml:"monitored_projects"`

	IntervalMinutes int           `mapstructure:"interval_minutes" yaml:"interval_minutes"`
	InitialDelay    time.Duration `mapstructure:"initial_delay" yaml:"initial_delay"`

	NotifyComments    bool `mapstructure:"notify_comments" yaml:"notify_comments"`
	NotifyPipelines   bool `mapstructure:"notify_pipelines" yaml:"notify_pipelines"`
	NotifyOwnComments bool `mapstructure:"notify_own_comments" yaml:"notify_own_comments"`
	ShowLocalAlerts   bool `mapstructure:"show_local_alerts" yaml:"show_local_alerts"`
	SkipSystemNotes   bool `mapstructure:"skip_system_notes" yaml:"skip_system_notes"`

	// BatchSize bounds concurrent participant lookups.
	BatchSize int `mapstructure:"batch_size" yaml:"batch_size"`

	// MaxSendAttempts caps failed sends per item before it is abandoned.
	// Zero retries forever.
	MaxSendAttempts int `mapstructure:"max_send_attempts" yaml:"max_send_attempts"`

	SeedWatermarksOnFirstRun bool `mapstructure:"seed_watermarks_on_first_run" yaml:"seed_watermarks_on_first_run"`

	CommentMaxAge  time.Duration `mapstructure:"comment_max_age" yaml:"comment_max_age"`
	DedupRetention time.Duration `mapstructure:"dedup_retention" yaml:"dedup_retention"`

	// CycleLeaseTTL must exceed the longest expected cycle.
	CycleLeaseTTL time.Duration `mapstructure:"cycle_lease_ttl" yaml:"cycle_lease_ttl"`

	// Timezone is an IANA name used for message timestamps.
	Timezone string `mapstructure:"timezone" yaml:"timezone"`

	GitLab   GitLabConfig   `mapstructure:"gitlab" yaml:"gitlab"`
	Sink     SinkConfig     `mapstructure:"sink" yaml:"sink"`
	Telegram TelegramConfig `mapstructure:"telegram" yaml:"telegram"`
	Feishu   FeishuConfig   `mapstructure:"feishu" yaml:"feishu"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
}

// GitLabConfig holds the remote platform connection.
type GitLabConfig struct {
	URL            string        `mapstructure:"url" yaml:"url"`
	Token          string        `mapstructure:"token" yaml:"token"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// SinkConfig selects the messaging sink.
type SinkConfig struct {
	Kind    string        `mapstructure:"kind" yaml:"kind"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// TelegramConfig holds Telegram bot credentials.
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token" yaml:"bot_token"`
	ChatID   string `mapstructure:"chat_id" yaml:"chat_id"`
	APIURL   string `mapstructure:"api_url" yaml:"api_url"`
}

// FeishuConfig holds Feishu/Lark app credentials.
type FeishuConfig struct {
	AppID     string `mapstructure:"app_id" yaml:"app_id"`
	AppSecret string `mapstructure:"app_secret" yaml:"app_secret"`
	ChatID    string `mapstructure:"chat_id" yaml:"chat_id"`
}

// DatabaseConfig points at the local state file.
type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// ServerConfig controls the ops HTTP surface.
type ServerConfig struct {
	Enabled         bool          `mapstructure:"enabled" yaml:"enabled"`
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	MetricsEnabled  bool          `mapstructure:"metrics_enabled" yaml:"metrics_enabled"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	OutputPath string `mapstructure:"output_path" yaml:"output_path"`
}

// SecretLookup resolves a secret by credential key. It returns an empty
// string when the secret is not stored.
type SecretLookup func(key string) (string, error)

type loadOptions struct {
	lookup SecretLookup
}

// Option customises Load.
type Option func(*loadOptions)

// WithSecretLookup replaces the keyring fallback for empty secrets.
func WithSecretLookup(fn SecretLookup) Option {
	return func(o *loadOptions) { o.lookup = fn }
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/review-notifier/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "review-notifier", "config.yaml")
}

// DefaultDatabasePath returns ~/.config/review-notifier/state.db.
func DefaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "state.db")
	}
	return filepath.Join(home, ".config", "review-notifier", "state.db")
}

// LoadDotEnv loads environment overrides from .env files. Missing files are
// not an error.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("enabled", true)
	v.SetDefault("identity", "")
	v.SetDefault("monitored_projects", []string{})
	v.SetDefault("interval_minutes", DefaultIntervalMinutes)
	v.SetDefault("initial_delay", "6s")

	v.SetDefault("notify_comments", true)
	v.SetDefault("notify_pipelines", true)
	v.SetDefault("notify_own_comments", false)
	v.SetDefault("show_local_alerts", true)
	v.SetDefault("skip_system_notes", false)

	v.SetDefault("batch_size", 10)
	v.SetDefault("max_send_attempts", 5)
	v.SetDefault("seed_watermarks_on_first_run", true)
	v.SetDefault("comment_max_age", "168h")
	v.SetDefault("dedup_retention", "720h")
	v.SetDefault("cycle_lease_ttl", "15m")
	v.SetDefault("timezone", "Local")

	v.SetDefault("gitlab.url", "")
	v.SetDefault("gitlab.token", "")
	v.SetDefault("gitlab.request_timeout", "30s")

	v.SetDefault("sink.kind", SinkTelegram)
	v.SetDefault("sink.timeout", "15s")

	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.api_url", "https://api.telegram.org")

	v.SetDefault("feishu.app_id", "")
	v.SetDefault("feishu.app_secret", "")
	v.SetDefault("feishu.chat_id", "")

	v.SetDefault("database.path", DefaultDatabasePath())

	v.SetDefault("server.enabled", true)
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 9464)
	v.SetDefault("server.metrics_enabled", true)
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output_path", "stdout")
}

// Load reads configuration from the given YAML file path using Viper,
// applies NOTIFIER_* environment overrides and fills empty secrets from the
// system keyring. A missing file yields the defaults.
func Load(path string, opts ...Option) (*Settings, error) {
	o := loadOptions{lookup: credential.Lookup}
	for _, opt := range opts {
		opt(&o)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		var pathErr *os.PathError
		if !errors.As(err, &notFound) && !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if o.lookup != nil {
		fillSecret(&s.GitLab.Token, credential.KeyGitLabToken, o.lookup)
		fillSecret(&s.Telegram.BotToken, credential.KeyTelegramBotToken, o.lookup)
		fillSecret(&s.Feishu.AppSecret, credential.KeyFeishuAppSecret, o.lookup)
	}

	if err := s.normalize(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &s, nil
}

// fillSecret leaves dst untouched when the keyring is unavailable; the
// readiness check then reports the secret as missing.
func fillSecret(dst *string, key string, lookup SecretLookup) {
	if *dst != "" {
		return
	}
	if v, err := lookup(key); err == nil {
		*dst = v
	}
}

func (s *Settings) normalize() error {
	s.Identity = strings.TrimSpace(s.Identity)
	s.GitLab.URL = strings.TrimRight(strings.TrimSpace(s.GitLab.URL), "/")
	s.Telegram.APIURL = strings.TrimRight(s.Telegram.APIURL, "/")

	projects := s.MonitoredProjects[:0]
	for _, p := range s.MonitoredProjects {
		if p = strings.TrimSpace(p); p != "" {
			projects = append(projects, p)
		}
	}
	s.MonitoredProjects = projects

	if s.IntervalMinutes == 0 {
		s.IntervalMinutes = DefaultIntervalMinutes
	}
	s.IntervalMinutes = min(max(s.IntervalMinutes, MinIntervalMinutes), MaxIntervalMinutes)

	if s.BatchSize < 1 {
		s.BatchSize = 10
	}
	if s.MaxSendAttempts < 0 {
		s.MaxSendAttempts = 0
	}
	if s.CycleLeaseTTL <= 0 {
		s.CycleLeaseTTL = DefaultCycleLeaseTTL
	}

	// A dedup record must outlive the age window, or the sweep could forget
	// a note that is still young enough to be surfaced again.
	if s.DedupRetention > 0 && s.DedupRetention < s.CommentMaxAge {
		return fmt.Errorf("dedup_retention %s is shorter than comment_max_age %s", s.DedupRetention, s.CommentMaxAge)
	}

	s.Sink.Kind = strings.ToLower(strings.TrimSpace(s.Sink.Kind))
	switch s.Sink.Kind {
	case SinkTelegram, SinkFeishu:
	default:
		return fmt.Errorf("sink.kind %q is not one of %s, %s", s.Sink.Kind, SinkTelegram, SinkFeishu)
	}

	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return fmt.Errorf("timezone %q: %w", s.Timezone, err)
	}
	return nil
}

// Interval returns the polling period.
func (s *Settings) Interval() time.Duration {
	return time.Duration(s.IntervalMinutes) * time.Minute
}

// Location returns the time zone used to format message timestamps.
func (s *Settings) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Ready reports whether a cycle may run. The reason names the first missing
// precondition.
func (s *Settings) Ready() (bool, string) {
	switch {
	case !s.Enabled:
		return false, "notifier disabled"
	case s.GitLab.URL == "" || s.GitLab.Token == "":
		return false, "gitlab url or token not configured"
	}
	switch s.Sink.Kind {
	case SinkTelegram:
		if s.Telegram.BotToken == "" || s.Telegram.ChatID == "" {
			return false, "telegram bot token or chat id not configured"
		}
	case SinkFeishu:
		if s.Feishu.AppID == "" || s.Feishu.AppSecret == "" || s.Feishu.ChatID == "" {
			return false, "feishu app id, secret or chat id not configured"
		}
	}
	return true, ""
}

// SaveMonitoredProjects rewrites monitored_projects in the YAML file at
// path, keeping every other key, creating the file if needed.
func SaveMonitoredProjects(path string, projects []string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	v.Set("monitored_projects", projects)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
