package alerting

import (
	"context"

	"github.com/rs/zerolog"
)

// LogNotifier writes alert texts to the log. It is the fallback
// channel when no outbound transport is configured, which keeps the
// alerting path exercisable in development.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier constructs a log-backed notifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "alert_log").Logger()}
}

// SendText logs the alert and always succeeds.
func (n *LogNotifier) SendText(_ context.Context, text string) error {
	n.logger.Info().Str("text", text).Msg("alert")
	return nil
}

var _ Notifier = (*LogNotifier)(nil)
