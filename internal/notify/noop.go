package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/finbridge/ledger-service/internal/domain"
)

// NoopDispatcher logs outbound messages instead of delivering them.
// Used when no broker is configured, in development and in tests.
type NoopDispatcher struct {
	logger *zap.Logger
}

func NewNoopDispatcher(logger *zap.Logger) *NoopDispatcher {
	return &NoopDispatcher{logger: logger}
}

func (d *NoopDispatcher) Dispatch(_ context.Context, msg domain.OutboundMessage) error {
	d.logger.Debug("notification suppressed, no dispatcher configured",
		zap.String("user_id", msg.UserID.String()),
		zap.String("title", msg.Title),
	)
	return nil
}
