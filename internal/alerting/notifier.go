package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Notifier delivers one alert text to the outbound channel. The
// alerting path treats failures as silent no-ops: losing one alert is
// acceptable, blocking the pipeline is not.
type Notifier interface {
	SendText(ctx context.Context, text string) error
}

// TelegramNotifier pushes messages through the Telegram Bot API with
// its own local rate limiting.
type TelegramNotifier struct {
	botToken    string
	chatID      string
	baseURL     string
	client      *http.Client
	logger      zerolog.Logger
	minInterval time.Duration

	mu       sync.Mutex
	lastSent time.Time
}

// NewTelegramNotifier constructs a Telegram notifier. minInterval
// throttles consecutive sends; zero disables the limiter.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout, minInterval time.Duration, logger zerolog.Logger) (*TelegramNotifier, error) {
	if botToken == "" {
		return nil, fmt.Errorf("telegram: bot token required")
	}
	if chatID == "" {
		return nil, fmt.Errorf("telegram: chat id required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken:    botToken,
		chatID:      chatID,
		baseURL:     strings.TrimRight(baseURL, "/"),
		client:      &http.Client{Timeout: timeout},
		logger:      logger.With().Str("component", "alert_telegram").Logger(),
		minInterval: minInterval,
	}, nil
}

// SendText calls the sendMessage API. Sends arriving inside the local
// rate-limit window are dropped with an error, not queued.
func (n *TelegramNotifier) SendText(ctx context.Context, text string) error {
	if !n.admit() {
		return fmt.Errorf("telegram: rate limited, dropping message")
	}

	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    text,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram unexpected status: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil && !result.OK {
		return fmt.Errorf("telegram returned ok=false")
	}

	n.logger.Debug().Int("chars", len(text)).Msg("alert delivered")
	return nil
}

func (n *TelegramNotifier) admit() bool {
	if n.minInterval <= 0 {
		return true
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	now := time.Now()
	if now.Sub(n.lastSent) < n.minInterval {
		return false
	}
	n.lastSent = now
	return true
}

var _ Notifier = (*TelegramNotifier)(nil)
