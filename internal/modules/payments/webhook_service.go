package payments

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"vending-dispatch/pkg/payment"
)

// ServiceInterface applies verified gateway events to orders.
type ServiceInterface interface {
	Handle(ctx context.Context, ev payment.Event) (bool, error)
}

type Service struct {
	repo   RepositoryInterface
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo RepositoryInterface, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// Handle reports whether the event changed an order. Events without an
// order reference, and event types with no payment outcome, are ignored.
func (s *Service) Handle(ctx context.Context, ev payment.Event) (bool, error) {
	if ev.Type == "" {
		return false, nil
	}
	if ev.OrderID == "" {
		s.logger.WarnContext(ctx, "payment event without order reference", "event_id", ev.ID, "type", ev.Type)
		return false, nil
	}

	var (
		changed bool
		err     error
	)
	switch ev.Type {
	case payment.EventPaymentSucceeded:
		changed, err = s.repo.MarkPaid(ctx, ev.OrderID, ev.GatewayOrderID, ev.GatewayPaymentID, s.now().UTC())
	case payment.EventPaymentFailed:
		changed, err = s.repo.MarkFailed(ctx, ev.OrderID)
	default:
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("service.Handle: %w", err)
	}

	if changed {
		s.logger.InfoContext(ctx, "payment_recorded", "event_id", ev.ID, "order_id", ev.OrderID, "type", ev.Type)
	} else {
		s.logger.InfoContext(ctx, "payment event replayed or order not unpaid", "event_id", ev.ID, "order_id", ev.OrderID)
	}
	return changed, nil
}
