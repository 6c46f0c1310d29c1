package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/spf13/viper"

	"github.com/semmidev/sitekeep/internal/domain"
)

// Version is stamped into manifests and the {ver} naming token.
var Version = "0.3.0"

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Site     SiteConfig     `mapstructure:"site"`
	Backup   BackupConfig   `mapstructure:"backup"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Database DatabaseConfig `mapstructure:"database"`
	Store    StoreConfig    `mapstructure:"store"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Notify   NotifyConfig   `mapstructure:"notify"`
}

type AppConfig struct {
	Name     string `mapstructure:"name"`
	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`
}

type SiteConfig struct {
	Root     string `mapstructure:"root"`
	URL      string `mapstructure:"url"`
	Name     string `mapstructure:"name"`
	Timezone string `mapstructure:"timezone"`
}

type BackupConfig struct {
	Destination     string        `mapstructure:"destination"`
	RetainDays      int           `mapstructure:"retain_days"`
	ExcludeDirs     []string      `mapstructure:"exclude_dirs"`
	ExcludePatterns []string      `mapstructure:"exclude_patterns"`
	NamePattern     string        `mapstructure:"name_pattern"`
	BatchSize       int           `mapstructure:"batch_size"`
	JobTTL          time.Duration `mapstructure:"job_ttl"`
	LockTTL         time.Duration `mapstructure:"lock_ttl"`
}

type ScheduleConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Frequency string `mapstructure:"frequency"`
	Time      string `mapstructure:"time"`
}

type DatabaseConfig struct {
	Driver           string `mapstructure:"driver"`
	Host             string `mapstructure:"host"`
	Port             int    `mapstructure:"port"`
	Username         string `mapstructure:"username"`
	Password         string `mapstructure:"password"`
	Name             string `mapstructure:"name"`
	Path             string `mapstructure:"path"`
	SSLMode          string `mapstructure:"ssl_mode"`
	UseDumpTool      bool   `mapstructure:"use_dump_tool"`
	DumpTool         string `mapstructure:"dump_tool"`
	ChunkRows        int    `mapstructure:"chunk_rows"`
	CompressionLevel int    `mapstructure:"compression_level"`
}

type StoreConfig struct {
	Type       string        `mapstructure:"type"`
	Path       string        `mapstructure:"path"`
	RedisURL   string        `mapstructure:"redis_url"`
	GCInterval time.Duration `mapstructure:"gc_interval"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

var scheduleTimeRe = regexp.MustCompile(`^([01]?\d|2[0-3]):([0-5]\d)$`)

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("SITEKEEP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "sitekeep")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("site.name", "site")
	v.SetDefault("site.timezone", "Local")

	v.SetDefault("backup.retain_days", 7)
	v.SetDefault("backup.exclude_dirs", []string{"cache", "backups", "backup", "w3tc", "node_modules"})
	v.SetDefault("backup.exclude_patterns", []string{"*.log", "*.tmp", "*.DS_Store"})
	v.SetDefault("backup.name_pattern", "site-{YYYY}{MM}{DD}-{HH}{mm}{SS}")
	v.SetDefault("backup.batch_size", 300)
	v.SetDefault("backup.job_ttl", 2*time.Hour)
	v.SetDefault("backup.lock_ttl", 30*time.Minute)

	v.SetDefault("schedule.enabled", false)
	v.SetDefault("schedule.frequency", "daily")
	v.SetDefault("schedule.time", "03:00")

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.host", "127.0.0.1")
	v.SetDefault("database.use_dump_tool", true)
	v.SetDefault("database.chunk_rows", 1000)
	v.SetDefault("database.compression_level", gzip.DefaultCompression)

	v.SetDefault("store.type", "badger")
	v.SetDefault("store.path", "data/jobs")
	v.SetDefault("store.gc_interval", 10*time.Minute)

	v.SetDefault("http.addr", ":8080")
}

func (c *Config) Validate() error {
	if c.Site.Root == "" {
		return fmt.Errorf("site.root is required")
	}

	if c.Backup.Destination == "" {
		return fmt.Errorf("backup.destination is required")
	}

	if c.Backup.BatchSize <= 0 {
		return fmt.Errorf("backup.batch_size must be positive")
	}

	if _, err := domain.ParseFrequency(c.Schedule.Frequency); err != nil {
		return fmt.Errorf("schedule.frequency: %w", err)
	}

	if !scheduleTimeRe.MatchString(c.Schedule.Time) {
		return fmt.Errorf("schedule.time must be HH:MM, got %q", c.Schedule.Time)
	}

	if _, err := c.Location(); err != nil {
		return fmt.Errorf("site.timezone: %w", err)
	}

	switch c.Database.Driver {
	case "mysql", "postgres":
		if c.Database.Name == "" {
			return fmt.Errorf("database.name is required for %s", c.Database.Driver)
		}
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	default:
		return fmt.Errorf("unsupported database.driver: %s", c.Database.Driver)
	}

	if c.Database.CompressionLevel < gzip.HuffmanOnly || c.Database.CompressionLevel > gzip.BestCompression {
		return fmt.Errorf("database.compression_level must be between %d and %d", gzip.HuffmanOnly, gzip.BestCompression)
	}

	switch c.Store.Type {
	case "badger":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for badger")
		}
	case "redis":
		if c.Store.RedisURL == "" {
			return fmt.Errorf("store.redis_url is required for redis")
		}
	default:
		return fmt.Errorf("unsupported store.type: %s", c.Store.Type)
	}

	if c.Notify.Telegram.Enabled && (c.Notify.Telegram.BotToken == "" || c.Notify.Telegram.ChatID == "") {
		return fmt.Errorf("notify.telegram requires bot_token and chat_id")
	}

	return nil
}

// Location resolves site.timezone; empty or "Local" means the process zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Site.Timezone == "" || c.Site.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Site.Timezone)
}

// Settings returns a frozen copy of the job-relevant configuration.
func (c *Config) Settings() domain.Settings {
	s := domain.Settings{
		Site: domain.Site{
			Root:       c.Site.Root,
			URL:        c.Site.URL,
			Name:       c.Site.Name,
			AppVersion: Version,
		},
		Destination:     strings.TrimRight(c.Backup.Destination, "/"),
		RetainDays:      c.Backup.RetainDays,
		ExcludeDirs:     c.Backup.ExcludeDirs,
		ExcludePatterns: c.Backup.ExcludePatterns,
		NamePattern:     c.Backup.NamePattern,
	}
	return s.Clone()
}

func (c *Config) ScheduleSettings() domain.Schedule {
	freq, _ := domain.ParseFrequency(c.Schedule.Frequency)
	loc, err := c.Location()
	if err != nil {
		loc = time.Local
	}
	return domain.Schedule{
		Enabled:   c.Schedule.Enabled,
		Frequency: freq,
		Time:      c.Schedule.Time,
		Location:  loc,
	}
}
