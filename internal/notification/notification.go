package notification

import (
	"context"
	"log/slog"
	"time"
)

// Event kinds published after a movement commits.
const (
	KindFund     = "transaction.fund"
	KindWithdraw = "transaction.withdraw"
	KindTransfer = "transaction.transfer"
)

// Event describes a committed wallet movement.
type Event struct {
	Kind            string    `json:"kind"`
	TransactionID   string    `json:"transaction_id"`
	WalletID        string    `json:"wallet_id"`
	RelatedWalletID string    `json:"related_wallet_id,omitempty"`
	OwnerID         string    `json:"owner_id"`
	Amount          string    `json:"amount"`
	Currency        string    `json:"currency"`
	Reference       string    `json:"reference"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// Notifier delivers events to downstream systems. Delivery is best effort:
// callers log failures and carry on.
type Notifier interface {
	Publish(ctx context.Context, event Event) error
}

// LoggerNotifier writes events to the structured logger. Used when no broker
// is configured.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Publish writes the event to the structured logger.
func (n *LoggerNotifier) Publish(_ context.Context, event Event) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("wallet event",
		"kind", event.Kind,
		"wallet_id", event.WalletID,
		"reference", event.Reference,
		"amount", event.Amount,
	)
	return nil
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
