package notification

import (
	"context"
	"log/slog"
)

const (
	// KindVoucherCreated is sent to the recipient when funds are earmarked.
	KindVoucherCreated = "voucher_created"
	// KindVoucherClaimed is sent when a voucher pays out.
	KindVoucherClaimed = "voucher_claimed"
	// KindVoucherCancelled is sent when a maintainer returns funds to the organization.
	KindVoucherCancelled = "voucher_cancelled"
	// KindVoucherExpired is sent when an unclaimed voucher lapses.
	KindVoucherExpired = "voucher_expired"
)

// Message describes a notification payload.
type Message struct {
	Kind        string
	Destination string
	Body        string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier records every voucher event as one structured log line.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier builds a notifier that writes to logger. A nil logger
// drops events.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send logs the event under "voucher_event" with its kind, destination and body.
func (n *LoggerNotifier) Send(ctx context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.LogAttrs(ctx, slog.LevelInfo, "voucher_event",
		slog.String("kind", message.Kind),
		slog.String("destination", message.Destination),
		slog.String("body", message.Body),
	)
	return nil
}
