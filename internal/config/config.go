package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"

	"repschema/internal/schedule"
)

const defaultPath = "configs/config.yaml"

type Config struct {
	Telegram struct {
		BotToken           string  `yaml:"bot_token"`
		Debug              bool    `yaml:"debug"`
		ScheduleChatID     int64   `yaml:"schedule_chat_id"`
		ScheduleMessageID  int     `yaml:"schedule_message_id"`
		NotificationChatID int64   `yaml:"notification_chat_id"`
		SendRatePerSecond  float64 `yaml:"send_rate_per_second"`
	} `yaml:"telegram"`

	TeamUp struct {
		BaseURL         string `yaml:"base_url"`
		Timezone        string `yaml:"timezone"`
		WindowDays      int    `yaml:"window_days"`
		TimeoutSeconds  int    `yaml:"timeout_seconds"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	} `yaml:"teamup"`

	Schedule struct {
		Performer                    string `yaml:"performer"`
		PollIntervalMinutes          int    `yaml:"poll_interval_minutes"`
		SuppressInitialNotifications bool   `yaml:"suppress_initial_notifications"`
		Locale                       Locale `yaml:"locale"`
	} `yaml:"schedule"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// Locale overrides the user-facing strings; empty fields keep the defaults.
type Locale struct {
	Weekdays    []string `yaml:"weekdays"`
	RoomLabel   string   `yaml:"room_label"`
	Title       string   `yaml:"title"`
	NewBooking  string   `yaml:"new_booking"`
	NoBookings  string   `yaml:"no_bookings"`
	Unavailable string   `yaml:"unavailable"`
	Updated     string   `yaml:"updated"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = defaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML config, expanding ${ENV_VAR} placeholders and applying defaults.
func Parse(data []byte) (*Config, error) {
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.TeamUp.Timezone == "" {
		cfg.TeamUp.Timezone = "Europe/Stockholm"
	}
	if cfg.TeamUp.WindowDays <= 0 {
		cfg.TeamUp.WindowDays = 7
	}
	if cfg.Schedule.PollIntervalMinutes <= 0 {
		cfg.Schedule.PollIntervalMinutes = 15
	}
	if cfg.Telegram.SendRatePerSecond <= 0 {
		cfg.Telegram.SendRatePerSecond = 1
	}
	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	if cfg.Monitoring.PrometheusPort == 0 {
		cfg.Monitoring.PrometheusPort = 9090
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	return &cfg, nil
}

// Validate reports every missing or invalid required value.
func (c *Config) Validate() error {
	var problems []string
	if c.Telegram.BotToken == "" || c.Telegram.BotToken == "YOUR_BOT_TOKEN_HERE" {
		problems = append(problems, "telegram.bot_token")
	}
	if c.Telegram.ScheduleChatID == 0 {
		problems = append(problems, "telegram.schedule_chat_id")
	}
	if c.Telegram.NotificationChatID == 0 {
		problems = append(problems, "telegram.notification_chat_id")
	}
	if c.TeamUp.BaseURL == "" {
		problems = append(problems, "teamup.base_url")
	}
	if strings.TrimSpace(c.Schedule.Performer) == "" {
		problems = append(problems, "schedule.performer")
	}
	if n := len(c.Schedule.Locale.Weekdays); n != 0 && n != 7 {
		problems = append(problems, "schedule.locale.weekdays (need 7 names, Monday first)")
	}
	if _, err := time.LoadLocation(c.TeamUp.Timezone); err != nil {
		problems = append(problems, "teamup.timezone")
	}
	if len(problems) > 0 {
		return errors.New("invalid config: " + strings.Join(problems, ", "))
	}
	return nil
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Schedule.PollIntervalMinutes) * time.Minute
}

// FetchTimeout is zero, meaning no client timeout, unless configured.
func (c *Config) FetchTimeout() time.Duration {
	if c.TeamUp.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.TeamUp.TimeoutSeconds) * time.Second
}

func (c *Config) CacheTTL() time.Duration {
	if c.TeamUp.CacheTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.TeamUp.CacheTTLSeconds) * time.Second
}

// Location loads the calendar timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.TeamUp.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.TeamUp.Timezone, err)
	}
	return loc, nil
}

// ScheduleLocale converts the configured strings into a schedule.Locale.
func (c *Config) ScheduleLocale() schedule.Locale {
	l := c.Schedule.Locale
	out := schedule.Locale{
		RoomLabel:   l.RoomLabel,
		Title:       l.Title,
		NewBooking:  l.NewBooking,
		NoBookings:  l.NoBookings,
		Unavailable: l.Unavailable,
		Updated:     l.Updated,
	}
	copy(out.Weekdays[:], l.Weekdays)
	return out
}
