package notification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"coinbase-trading-bot/internal/events"
	"coinbase-trading-bot/internal/logging"
)

// Config enables the notification channels. Tokens come from the
// environment, not from here.
type Config struct {
	TelegramEnabled  bool   `json:"telegram_enabled"`
	TelegramChatID   string `json:"telegram_chat_id"`
	DiscordEnabled   bool   `json:"discord_enabled"`
	DiscordWebhook   string `json:"-"`
	TelegramBotToken string `json:"-"`
}

// Notifier delivers one message to one channel
type Notifier interface {
	Send(title, message string) error
	Name() string
}

// Manager fans significant events out to the configured notifiers.
// Delivery failures are logged and dropped; notifications never block
// or fail trading.
type Manager struct {
	notifiers []Notifier
	logger    *logging.Logger
}

// NewManager builds the manager from config
func NewManager(config Config) *Manager {
	manager := &Manager{logger: logging.WithComponent("notification")}

	if config.TelegramEnabled && config.TelegramBotToken != "" && config.TelegramChatID != "" {
		manager.notifiers = append(manager.notifiers, &telegramNotifier{
			token:  config.TelegramBotToken,
			chatID: config.TelegramChatID,
			client: &http.Client{Timeout: 10 * time.Second},
		})
	}
	if config.DiscordEnabled && config.DiscordWebhook != "" {
		manager.notifiers = append(manager.notifiers, &discordNotifier{
			webhook: config.DiscordWebhook,
			client:  &http.Client{Timeout: 10 * time.Second},
		})
	}

	if len(manager.notifiers) == 0 {
		manager.logger.Info("No notification channels configured")
	} else {
		for _, n := range manager.notifiers {
			manager.logger.Info("Notification channel enabled", "channel", n.Name())
		}
	}
	return manager
}

// Attach subscribes the manager to the events worth telling a human about
func (m *Manager) Attach(bus *events.EventBus) {
	bus.Subscribe(events.EventEmergencyStop, func(event events.Event) {
		m.Notify("EMERGENCY STOP", fmt.Sprintf("Trading halted: %v", event.Data["reason"]))
	})
	bus.Subscribe(events.EventCircuitTripped, func(event events.Event) {
		m.Notify("Circuit breaker tripped", fmt.Sprintf("%v", event.Data["reason"]))
	})
	bus.Subscribe(events.EventTradeClosed, func(event events.Event) {
		m.Notify("Trade closed", fmt.Sprintf("%v %v, PnL %v", event.Data["product"], event.Data["reason"], event.Data["pnl"]))
	})
	bus.Subscribe(events.EventBotStarted, func(event events.Event) {
		m.Notify("Bot started", fmt.Sprintf("mode=%v", event.Data["mode"]))
	})
	bus.Subscribe(events.EventBotStopped, func(event events.Event) {
		m.Notify("Bot stopped", "")
	})
}

// Notify sends to every channel, logging failures
func (m *Manager) Notify(title, message string) {
	for _, notifier := range m.notifiers {
		if err := notifier.Send(title, message); err != nil {
			m.logger.Warn("Notification delivery failed", "channel", notifier.Name(), "error", err.Error())
		}
	}
}

type telegramNotifier struct {
	token  string
	chatID string
	client *http.Client
}

func (t *telegramNotifier) Name() string { return "telegram" }

func (t *telegramNotifier) Send(title, message string) error {
	text := "*" + title + "*"
	if message != "" {
		text += "\n" + message
	}

	payload, _ := json.Marshal(map[string]string{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "Markdown",
	})

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.token)
	resp, err := t.client.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram returned %d", resp.StatusCode)
	}
	return nil
}

type discordNotifier struct {
	webhook string
	client  *http.Client
}

func (d *discordNotifier) Name() string { return "discord" }

func (d *discordNotifier) Send(title, message string) error {
	payload, _ := json.Marshal(map[string]interface{}{
		"embeds": []map[string]string{{
			"title":       title,
			"description": message,
		}},
	})

	resp, err := d.client.Post(d.webhook, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("discord returned %d", resp.StatusCode)
	}
	return nil
}
