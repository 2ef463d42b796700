package config

// Config is the root configuration document.
//
// The file may be JSON or YAML; both are decoded strictly (unknown fields are
// rejected) so typos fail loudly at load time instead of being ignored.
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Engine   EngineConfig   `json:"engine"`
	AI       AIConfig       `json:"ai"`
	Payments PaymentsConfig `json:"payments"`
	Notifier NotifierConfig `json:"notifier,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string        `json:"level,omitempty"`
	Console bool          `json:"console"`
	File    LogFileConfig `json:"file,omitempty"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// StorageConfig controls the sqlite persistence layer.
type StorageConfig struct {
	Path string `json:"path"`
	// BusyTimeout is a Go duration string.
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// EngineConfig controls the schedule engine.
//
// Defaults (when fields are omitted/zero):
//   - lease_window: "120s"
//   - prompt_cap: 10
//   - payment_cap: 50
type EngineConfig struct {
	// LeaseWindow is how long a tick holds the execution lease. Go duration string.
	LeaseWindow string `json:"lease_window,omitempty"`
	// PromptCap / PaymentCap bound active schedules per group, per action kind.
	// The two caps are intentionally distinct values.
	PromptCap  int `json:"prompt_cap,omitempty"`
	PaymentCap int `json:"payment_cap,omitempty"`
}

type AIConfig struct {
	// APIKey may be left empty and supplied via GEMINI_API_KEY.
	APIKey          string  `json:"api_key,omitempty"`
	Model           string  `json:"model,omitempty"`
	MaxOutputTokens int32   `json:"max_output_tokens,omitempty"`
	Temperature     float32 `json:"temperature,omitempty"`
	// HistoryLimit bounds the retained conversation turns per schedule.
	HistoryLimit int `json:"history_limit,omitempty"`
}

type PaymentsConfig struct {
	BaseURL string `json:"base_url"`
	Network string `json:"network,omitempty"`
	// Timeout is a Go duration string for the outbound HTTP call.
	Timeout string `json:"timeout,omitempty"`
}

type NotifierConfig struct {
	RatePerSec int `json:"rate_per_sec,omitempty"`
}
