// Package reconcile reports dispense claims that no device acknowledged.
// A claim is never re-offered; an operator settles it by hand.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"vending-dispatch/internal/models"
)

// Source lists claims that stayed unacknowledged longer than grace.
type Source interface {
	ListUnacknowledged(ctx context.Context, grace time.Duration) ([]*models.Order, error)
}

// Notifier delivers a non-empty report to an operator.
type Notifier interface {
	Notify(ctx context.Context, r *Report) error
}

type Report struct {
	GeneratedAt time.Time       `json:"generated_at"`
	Grace       string          `json:"grace"`
	Orders      []*models.Order `json:"orders"`
	Notified    bool            `json:"notified"`
}

// Total is the amount collected for orders whose delivery is unconfirmed.
func (r *Report) Total() float64 {
	var sum float64
	for _, o := range r.Orders {
		sum += o.Amount
	}
	return sum
}

// String renders the report as the plain-text body operators receive.
func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generated %s. Claims older than %s with no device acknowledgment:\n\n",
		r.GeneratedAt.Format("2006-01-02 15:04:05 MST"), r.Grace)
	for _, o := range r.Orders {
		dispensedAt := "-"
		if o.DispensedAt != nil {
			dispensedAt = o.DispensedAt.UTC().Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(&b, "  %s  machine=%s  amount=%.2f  dispensed_at=%s\n", o.ID, o.MachineID, o.Amount, dispensedAt)
	}
	fmt.Fprintf(&b, "\nTotal: %.2f\n", r.Total())
	return b.String()
}

type Service struct {
	source   Source
	notifier Notifier
	grace    time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewService accepts a nil notifier, in which case reports are only logged.
func NewService(source Source, notifier Notifier, grace time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{source: source, notifier: notifier, grace: grace, logger: logger, now: time.Now}
}

// Run builds one report. A notifier failure is logged and leaves Notified false;
// only a failure to read the store is returned.
func (s *Service) Run(ctx context.Context) (*Report, error) {
	orders, err := s.source.ListUnacknowledged(ctx, s.grace)
	if err != nil {
		return nil, fmt.Errorf("reconcile.Run: %w", err)
	}
	if orders == nil {
		orders = []*models.Order{}
	}

	r := &Report{
		GeneratedAt: s.now().UTC(),
		Grace:       s.grace.String(),
		Orders:      orders,
	}
	if len(orders) == 0 {
		s.logger.DebugContext(ctx, "no unacknowledged dispense claims")
		return r, nil
	}

	s.logger.WarnContext(ctx, "unacknowledged dispense claims", "count", len(orders), "total", r.Total())
	if s.notifier == nil {
		return r, nil
	}
	if err := s.notifier.Notify(ctx, r); err != nil {
		s.logger.ErrorContext(ctx, "reconcile notification failed", "err", err)
		return r, nil
	}
	r.Notified = true
	return r, nil
}
