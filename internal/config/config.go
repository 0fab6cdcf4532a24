package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"    validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database"  validate:"required"`
	Consumer  ConsumerConfig  `mapstructure:"consumer"  validate:"required"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" validate:"required"`
	LLM       LLMConfig       `mapstructure:"llm"`
}

// ServerConfig contains the HTTP surface and logging settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// ConsumerConfig controls the event consumer worker pool and its retry
// policy. Retries use exponential backoff from RetryBaseDelay capped at
// RetryMaxDelay.
type ConsumerConfig struct {
	Workers        int           `mapstructure:"workers"          validate:"required,gt=0,lte=64"`
	MaxRetries     int           `mapstructure:"max_retries"      validate:"gte=0,lte=10"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay" validate:"required,gt=0"`
	RetryMaxDelay  time.Duration `mapstructure:"retry_max_delay"  validate:"required,gt=0"`
}

// SchedulerConfig controls reminder trigger scheduling.
// FirePastDue selects the policy for reminders whose trigger instant has
// already passed when they are scheduled: fire immediately (true) or drop
// (false). ToleranceWindow is the span within which two reminder instants
// for the same task are treated as the same logical reminder.
type SchedulerConfig struct {
	FirePastDue     bool          `mapstructure:"fire_past_due"`
	ToleranceWindow time.Duration `mapstructure:"tolerance_window" validate:"required,gt=0"`
	SweepSchedule   string        `mapstructure:"sweep_schedule"   validate:"required"`
}

// LLMConfig contains settings for the AI message generation provider.
// An empty API key disables the primary path entirely; the template
// fallback then serves all reminders.
type LLMConfig struct {
	GeminiAPIKey   string        `mapstructure:"gemini_api_key"`
	ModelName      string        `mapstructure:"model_name"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	SenderName     string        `mapstructure:"sender_name"`
}
