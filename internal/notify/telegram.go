package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/patrickkettner/homebridge-smart-diffuser-lbslm/internal/amos"
)

// lowLevelThreshold is the liquid level below which an alert fires.
const lowLevelThreshold = 10

// Notifier pushes a Telegram message when a diffuser runs low on liquid.
// It implements amos.StateSink, so it observes every successful poll.
// Each device alerts once per low episode: the flag clears only after the
// level recovers (a refill), so a diffuser sitting at 3% does not spam the
// chat every 30 seconds.
type Notifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
	logger *slog.Logger

	mu      sync.Mutex
	alerted map[string]bool
}

// NewNotifier creates a notifier against the production Telegram API.
func NewNotifier(token string, chatID int64, logger *slog.Logger) (*Notifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}
	return newNotifier(api, chatID, logger), nil
}

// NewNotifierWithEndpoint creates a notifier against a custom API endpoint.
func NewNotifierWithEndpoint(token, endpoint string, chatID int64, logger *slog.Logger) (*Notifier, error) {
	api, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}
	return newNotifier(api, chatID, logger), nil
}

func newNotifier(api *tgbotapi.BotAPI, chatID int64, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		api:     api,
		chatID:  chatID,
		logger:  logger.With("component", "notify"),
		alerted: make(map[string]bool),
	}
}

// SaveDeviceState checks the polled liquid level and alerts on the
// high-to-low transition.
func (n *Notifier) SaveDeviceState(ctx context.Context, nid string, state amos.State) error {
	n.mu.Lock()
	low := state.LiquidLevel < lowLevelThreshold
	fire := low && !n.alerted[nid]
	n.alerted[nid] = low
	n.mu.Unlock()

	if !fire {
		return nil
	}

	text := fmt.Sprintf("💧 Diffuser *%s* is low on liquid (%d%%). Time to refill.",
		nid, state.LiquidLevel)

	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = "Markdown"

	if _, err := n.api.Send(msg); err != nil {
		// Clear the flag so the next poll retries the alert.
		n.mu.Lock()
		n.alerted[nid] = false
		n.mu.Unlock()

		n.logger.Error("Failed to send low-liquid alert",
			"nid", nid,
			"error", err,
		)
		return fmt.Errorf("failed to send low-liquid alert: %w", err)
	}

	n.logger.Info("Low-liquid alert sent",
		"nid", nid,
		"liquid_level", state.LiquidLevel,
	)
	return nil
}
