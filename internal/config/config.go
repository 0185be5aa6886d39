package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("config: invalid value")

type Config struct {
	DatabasePath            string        `yaml:"database_path"`
	DaysAhead               int           `yaml:"days_ahead"`
	RefreshInterval         time.Duration `yaml:"refresh_interval"`
	ClockCheckInterval      time.Duration `yaml:"clock_check_interval"`
	ClockSkewTolerance      time.Duration `yaml:"clock_skew_tolerance"`
	HolidayBaseURL          string        `yaml:"holiday_base_url"`
	HolidaySyncOnStart      bool          `yaml:"holiday_sync_on_start"`
	DesktopNotifications    bool          `yaml:"desktop_notifications"`
	SchedulerBuffer         int           `yaml:"scheduler_buffer"`
	APIAddr                 string        `yaml:"api_addr"`
	LogLevel                string        `yaml:"log_level"`
	LogFile                 string        `yaml:"log_file"`
	CompleteSilentOnDismiss bool          `yaml:"complete_silent_on_dismiss"`
	AlarmRingInterval       time.Duration `yaml:"alarm_ring_interval"`
	GeminiAPIKey            string        `yaml:"gemini_api_key"`
	GeminiModel             string        `yaml:"gemini_model"`
	GmailCredentialsFile    string        `yaml:"gmail_credentials_file"`
	GmailSubject            string        `yaml:"gmail_subject"`
}

func Default() Config {
	return Config{
		DatabasePath:       "shiftd.db",
		DaysAhead:          30,
		RefreshInterval:    6 * time.Hour,
		ClockCheckInterval: time.Minute,
		ClockSkewTolerance: 2 * time.Minute,
		HolidayBaseURL:     "https://cdn.jsdelivr.net/",
		HolidaySyncOnStart: true,
		SchedulerBuffer:    64,
		LogLevel:           "info",
		AlarmRingInterval:  2 * time.Second,
		GeminiModel:        "gemini-1.5-flash",
	}
}

// Load reads defaults, then the optional YAML file, then SHIFTD_* env vars.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg = FromEnv(cfg)
	if cfg.LogFile == "" {
		cfg.LogFile = filepath.Join(filepath.Dir(cfg.DatabasePath), "shiftd.log")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func FromEnv(base Config) Config {
	cfg := base
	if v, ok := getEnvString("SHIFTD_DB_PATH"); ok {
		cfg.DatabasePath = v
	}
	if v, ok := getEnvInt("SHIFTD_DAYS_AHEAD"); ok && v > 0 {
		cfg.DaysAhead = v
	}
	if v, ok := getEnvDuration("SHIFTD_REFRESH_INTERVAL"); ok && v > 0 {
		cfg.RefreshInterval = v
	}
	if v, ok := getEnvDuration("SHIFTD_CLOCK_CHECK_INTERVAL"); ok && v > 0 {
		cfg.ClockCheckInterval = v
	}
	if v, ok := getEnvDuration("SHIFTD_CLOCK_SKEW_TOLERANCE"); ok && v > 0 {
		cfg.ClockSkewTolerance = v
	}
	if v, ok := getEnvString("SHIFTD_HOLIDAY_BASE_URL"); ok {
		cfg.HolidayBaseURL = v
	}
	if v, ok := getEnvBool("SHIFTD_HOLIDAY_SYNC_ON_START"); ok {
		cfg.HolidaySyncOnStart = v
	}
	if v, ok := getEnvBool("SHIFTD_DESKTOP_NOTIFICATIONS"); ok {
		cfg.DesktopNotifications = v
	}
	if v, ok := getEnvInt("SHIFTD_SCHEDULER_BUFFER"); ok && v > 0 {
		cfg.SchedulerBuffer = v
	}
	if v, ok := getEnvString("SHIFTD_API_ADDR"); ok {
		cfg.APIAddr = v
	}
	if v, ok := getEnvString("SHIFTD_LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := getEnvString("SHIFTD_LOG_FILE"); ok {
		cfg.LogFile = v
	}
	if v, ok := getEnvBool("SHIFTD_COMPLETE_SILENT_ON_DISMISS"); ok {
		cfg.CompleteSilentOnDismiss = v
	}
	if v, ok := getEnvDuration("SHIFTD_ALARM_RING_INTERVAL"); ok && v > 0 {
		cfg.AlarmRingInterval = v
	}
	if v, ok := getEnvString("SHIFTD_GEMINI_API_KEY"); ok {
		cfg.GeminiAPIKey = v
	}
	if v, ok := getEnvString("SHIFTD_GEMINI_MODEL"); ok {
		cfg.GeminiModel = v
	}
	if v, ok := getEnvString("SHIFTD_GMAIL_CREDENTIALS_FILE"); ok {
		cfg.GmailCredentialsFile = v
	}
	if v, ok := getEnvString("SHIFTD_GMAIL_SUBJECT"); ok {
		cfg.GmailSubject = v
	}
	return cfg
}

func (c Config) Validate() error {
	switch {
	case strings.TrimSpace(c.DatabasePath) == "":
		return fmt.Errorf("%w: database_path is required", ErrInvalid)
	case c.DaysAhead <= 0:
		return fmt.Errorf("%w: days_ahead must be positive", ErrInvalid)
	case c.SchedulerBuffer <= 0:
		return fmt.Errorf("%w: scheduler_buffer must be positive", ErrInvalid)
	case c.RefreshInterval <= 0, c.ClockCheckInterval <= 0, c.ClockSkewTolerance <= 0, c.AlarmRingInterval <= 0:
		return fmt.Errorf("%w: intervals must be positive", ErrInvalid)
	}
	return nil
}

// AssistEnabled reports whether both Gmail and Gemini credentials are set.
func (c Config) AssistEnabled() bool {
	return strings.TrimSpace(c.GeminiAPIKey) != "" && strings.TrimSpace(c.GmailCredentialsFile) != ""
}

func getEnvString(name string) (string, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return "", false
	}
	return raw, true
}

func getEnvInt(name string) (int, bool) {
	raw, ok := getEnvString(name)
	if !ok {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func getEnvDuration(name string) (time.Duration, bool) {
	raw, ok := getEnvString(name)
	if !ok {
		return 0, false
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func getEnvBool(name string) (bool, bool) {
	raw, ok := getEnvString(name)
	if !ok {
		return false, false
	}
	switch strings.ToLower(raw) {
	case "1", "true", "yes", "y", "on":
		return true, true
	case "0", "false", "no", "n", "off":
		return false, true
	default:
		return false, false
	}
}
