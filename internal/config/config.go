package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config is the root application configuration, read from the environment
// (a local .env file is loaded first when present).
type Config struct {
	Telegram  TelegramConfig
	Database  DatabaseConfig
	OpenAI    OpenAIConfig
	Quiz      QuizConfig
	Reminders ReminderConfig
	Log       LogConfig
}

// TelegramConfig holds bot API settings.
type TelegramConfig struct {
	Token        string `env:"TELEGRAM_BOT_TOKEN" env-required:"true"`
	AdminUserIDs string `env:"ADMIN_USER_IDS"`
}

// DatabaseConfig selects the backing store. Driver is "sqlite3" or "postgres".
type DatabaseConfig struct {
	Driver string `env:"DB_DRIVER" env-default:"sqlite3"`
	DSN    string `env:"DB_DSN" env-default:"data/lingobot.db"`
}

// OpenAIConfig holds settings for the external translator / judge /
// question generator.
type OpenAIConfig struct {
	APIKey         string        `env:"OPENAI_API_KEY" env-required:"true"`
	BaseURL        string        `env:"OPENAI_BASE_URL" env-default:"https://api.openai.com/v1/chat/completions"`
	Model          string        `env:"OPENAI_MODEL" env-default:"gpt-4o-mini"`
	RequestTimeout time.Duration `env:"OPENAI_REQUEST_TIMEOUT" env-default:"30s"`
	MaxAttempts    int           `env:"OPENAI_MAX_ATTEMPTS" env-default:"3"`
	RetryBaseDelay time.Duration `env:"OPENAI_RETRY_BASE_DELAY" env-default:"500ms"`
	RetryMaxDelay  time.Duration `env:"OPENAI_RETRY_MAX_DELAY" env-default:"8s"`
	PricingTTL     time.Duration `env:"OPENAI_PRICING_TTL" env-default:"1h"`
}

// QuizConfig holds scheduler defaults. QuizFrequency is the number of
// lookups between quiz triggers; per-user settings override it.
type QuizConfig struct {
	QuizFrequency int `env:"QUIZ_FREQUENCY" env-default:"5"`
}

// ReminderConfig bounds the hours during which due-review pings are sent.
type ReminderConfig struct {
	Enabled   bool `env:"REMINDERS_ENABLED" env-default:"true"`
	StartHour int  `env:"REMINDER_START_HOUR" env-default:"8"`
	EndHour   int  `env:"REMINDER_END_HOUR" env-default:"22"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" env-default:"info"`
	Format string `env:"LOG_FORMAT" env-default:"text"`
}

// Load reads .env (if present) and then the environment.
func Load() (*Config, error) {
	// Missing .env is fine; the environment may be set directly.
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: read env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	if c.Quiz.QuizFrequency < 1 {
		return fmt.Errorf("QUIZ_FREQUENCY must be at least 1")
	}
	if c.Reminders.StartHour < 0 || c.Reminders.StartHour > 23 ||
		c.Reminders.EndHour < 0 || c.Reminders.EndHour > 23 {
		return fmt.Errorf("reminder hours must be within 0..23")
	}
	if c.OpenAI.MaxAttempts < 1 {
		return fmt.Errorf("OPENAI_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}
