package notifications

import "context"

// Alert levels
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
	LevelSuccess = "success"
)

// Notifier defines the interface for notification services
type Notifier interface {
	// SendAlert sends an alert with the specified level and message
	SendAlert(ctx context.Context, level, message string) error
}

// Config selects the notifier; an empty token disables notifications
type Config struct {
	TelegramToken string `yaml:"telegram_token,omitempty" json:"-"`
	TelegramChat  string `yaml:"telegram_chat,omitempty" json:"telegram_chat,omitempty"`
}

// New returns a Telegram notifier when cfg has a token and chat, otherwise
// a notifier that drops every alert
func New(cfg Config) Notifier {
	if cfg.TelegramToken == "" || cfg.TelegramChat == "" {
		return Nop{}
	}
	return NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChat)
}

// Nop discards alerts
type Nop struct{}

func (Nop) SendAlert(context.Context, string, string) error { return nil }
