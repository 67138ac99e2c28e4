package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config captures the settings of the scheduler service.
type Config struct {
	HTTPPort     int
	DatabaseURL  string
	DatabaseName string
	LogLevel     string
	// APIKeyHash is an argon2id hash; empty disables the API key guard.
	APIKeyHash          string
	ConflictHorizon     time.Duration
	MaxCandidates       int
	TZCacheSize         int
	FreeBusyCacheTTL    time.Duration
	MaintenanceSchedule string
	EventRetention      time.Duration
}

// DSN returns DatabaseURL, or a file named after DatabaseName.
func (c Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("file:%s.db", c.DatabaseName)
}

// fileConfig is the YAML layout read from SCHEDULER_CONFIG_FILE. Durations
// use Go syntax ("90m", "2160h").
type fileConfig struct {
	HTTPPort     int    `yaml:"http_port"`
	DatabaseURL  string `yaml:"database_url"`
	DatabaseName string `yaml:"database_name"`
	LogLevel     string `yaml:"log_level"`
	APIKeyHash   string `yaml:"api_key_hash"`
	Scheduling   struct {
		ConflictHorizon  string `yaml:"conflict_horizon"`
		MaxCandidates    int    `yaml:"max_candidates"`
		TZCacheSize      int    `yaml:"tz_cache_size"`
		FreeBusyCacheTTL string `yaml:"freebusy_cache_ttl"`
	} `yaml:"scheduling"`
	Maintenance struct {
		Schedule       string `yaml:"schedule"`
		EventRetention string `yaml:"event_retention"`
	} `yaml:"maintenance"`
}

func defaults() Config {
	return Config{
		HTTPPort:            8080,
		DatabaseName:        "scheduler",
		LogLevel:            "info",
		ConflictHorizon:     90 * 24 * time.Hour,
		MaxCandidates:       100000,
		TZCacheSize:         128,
		FreeBusyCacheTTL:    time.Minute,
		MaintenanceSchedule: "@daily",
		EventRetention:      365 * 24 * time.Hour,
	}
}

// Load builds the configuration from defaults, the optional YAML file named by
// SCHEDULER_CONFIG_FILE and the process environment, in increasing priority.
// Every invalid name is reported in one error.
func Load() (Config, error) {
	cfg := defaults()
	invalid := make([]string, 0, 2)

	if path := strings.TrimSpace(os.Getenv("SCHEDULER_CONFIG_FILE")); path != "" {
		file, err := readFile(path)
		if err != nil {
			return Config{}, err
		}
		invalid = append(invalid, applyFile(&cfg, file)...)
	}
	invalid = append(invalid, applyEnv(&cfg)...)
	invalid = append(invalid, validate(cfg)...)

	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("環境変数の値が不正です: %s", strings.Join(dedupe(invalid), ", "))
	}
	return cfg, nil
}

func readFile(path string) (fileConfig, error) {
	var file fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return file, fmt.Errorf("設定ファイルを読み込めません: %w", err)
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return file, fmt.Errorf("設定ファイルの形式が不正です: %w", err)
	}
	return file, nil
}

func applyFile(cfg *Config, file fileConfig) []string {
	var invalid []string
	if file.HTTPPort != 0 {
		cfg.HTTPPort = file.HTTPPort
	}
	setString(&cfg.DatabaseURL, file.DatabaseURL)
	setString(&cfg.DatabaseName, file.DatabaseName)
	setString(&cfg.LogLevel, file.LogLevel)
	setString(&cfg.APIKeyHash, file.APIKeyHash)
	if file.Scheduling.MaxCandidates != 0 {
		cfg.MaxCandidates = file.Scheduling.MaxCandidates
	}
	if file.Scheduling.TZCacheSize != 0 {
		cfg.TZCacheSize = file.Scheduling.TZCacheSize
	}
	setString(&cfg.MaintenanceSchedule, file.Maintenance.Schedule)

	durations := []struct {
		name   string
		value  string
		target *time.Duration
	}{
		{"scheduling.conflict_horizon", file.Scheduling.ConflictHorizon, &cfg.ConflictHorizon},
		{"scheduling.freebusy_cache_ttl", file.Scheduling.FreeBusyCacheTTL, &cfg.FreeBusyCacheTTL},
		{"maintenance.event_retention", file.Maintenance.EventRetention, &cfg.EventRetention},
	}
	for _, d := range durations {
		if strings.TrimSpace(d.value) == "" {
			continue
		}
		parsed, err := time.ParseDuration(strings.TrimSpace(d.value))
		if err != nil {
			invalid = append(invalid, d.name)
			continue
		}
		*d.target = parsed
	}
	return invalid
}

func applyEnv(cfg *Config) []string {
	var invalid []string

	if value := env("SCHEDULER_HTTP_PORT"); value != "" {
		port, err := strconv.Atoi(value)
		if err != nil {
			invalid = append(invalid, "SCHEDULER_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}
	setString(&cfg.DatabaseURL, env("SCHEDULER_DATABASE_URL"))
	setString(&cfg.DatabaseName, env("SCHEDULER_DATABASE_NAME"))
	setString(&cfg.LogLevel, env("SCHEDULER_LOG_LEVEL"))
	setString(&cfg.APIKeyHash, env("SCHEDULER_API_KEY_HASH"))
	setString(&cfg.MaintenanceSchedule, env("SCHEDULER_MAINTENANCE_SCHEDULE"))

	ints := []struct {
		name   string
		target *int
	}{
		{"SCHEDULER_MAX_CANDIDATES", &cfg.MaxCandidates},
		{"SCHEDULER_TZ_CACHE_SIZE", &cfg.TZCacheSize},
	}
	for _, i := range ints {
		value := env(i.name)
		if value == "" {
			continue
		}
		parsed, err := strconv.Atoi(value)
		if err != nil {
			invalid = append(invalid, i.name)
			continue
		}
		*i.target = parsed
	}

	durations := []struct {
		name   string
		target *time.Duration
	}{
		{"SCHEDULER_CONFLICT_HORIZON", &cfg.ConflictHorizon},
		{"SCHEDULER_FREEBUSY_CACHE_TTL", &cfg.FreeBusyCacheTTL},
		{"SCHEDULER_EVENT_RETENTION", &cfg.EventRetention},
	}
	for _, d := range durations {
		value := env(d.name)
		if value == "" {
			continue
		}
		parsed, err := time.ParseDuration(value)
		if err != nil {
			invalid = append(invalid, d.name)
			continue
		}
		*d.target = parsed
	}
	return invalid
}

// validate reports the env name of each out-of-range value.
func validate(cfg Config) []string {
	var invalid []string
	if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		invalid = append(invalid, "SCHEDULER_HTTP_PORT")
	}
	if cfg.DatabaseURL == "" && strings.TrimSpace(cfg.DatabaseName) == "" {
		invalid = append(invalid, "SCHEDULER_DATABASE_NAME")
	}
	switch strings.ToLower(cfg.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		invalid = append(invalid, "SCHEDULER_LOG_LEVEL")
	}
	if cfg.APIKeyHash != "" && !strings.HasPrefix(cfg.APIKeyHash, "$argon2id$") {
		invalid = append(invalid, "SCHEDULER_API_KEY_HASH")
	}
	if cfg.ConflictHorizon <= 0 {
		invalid = append(invalid, "SCHEDULER_CONFLICT_HORIZON")
	}
	if cfg.MaxCandidates <= 0 {
		invalid = append(invalid, "SCHEDULER_MAX_CANDIDATES")
	}
	if cfg.TZCacheSize <= 0 {
		invalid = append(invalid, "SCHEDULER_TZ_CACHE_SIZE")
	}
	if cfg.FreeBusyCacheTTL < 0 {
		invalid = append(invalid, "SCHEDULER_FREEBUSY_CACHE_TTL")
	}
	if cfg.EventRetention <= 0 {
		invalid = append(invalid, "SCHEDULER_EVENT_RETENTION")
	}
	if _, err := cron.ParseStandard(cfg.MaintenanceSchedule); err != nil {
		invalid = append(invalid, "SCHEDULER_MAINTENANCE_SCHEDULE")
	}
	return invalid
}

func env(name string) string {
	return strings.TrimSpace(os.Getenv(name))
}

func setString(target *string, value string) {
	if value = strings.TrimSpace(value); value != "" {
		*target = value
	}
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := values[:0]
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
