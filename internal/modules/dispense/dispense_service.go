package dispense

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"vending-dispatch/internal/models"

	"github.com/google/uuid"
)

// MachineRegistry is the part of the machine registry the resolver depends on.
type MachineRegistry interface {
	Resolve(ctx context.Context, mac string) (*models.Machine, error)
	FindByCode(ctx context.Context, code string) (*models.Machine, error)
	Touch(ctx context.Context, machineID string, upd models.TelemetryUpdate) error
}

// ServiceInterface is consumed by the poll handler and the reconciliation job.
type ServiceInterface interface {
	ClaimNextPendingOrder(ctx context.Context, machineID string) (*models.ClaimedOrder, error)
	Poll(ctx context.Context, q models.PollQuery) (*PollOutcome, error)
	Acknowledge(ctx context.Context, req models.AckRequest) (bool, error)
	RecordCoinSale(ctx context.Context, req models.CoinSaleRequest) (*models.Order, error)
	ListUnacknowledged(ctx context.Context, grace time.Duration) ([]*models.Order, error)
}

// PollOutcome is what a poll resolved to. Claim is nil when there is nothing
// to dispense, which includes an unknown device.
type PollOutcome struct {
	Machine *models.Machine
	Claim   *models.ClaimedOrder
}

// Service implements the dispense resolver. It keeps no state between calls;
// all coordination happens through the repository's conditional updates.
type Service struct {
	repo     RepositoryInterface
	machines MachineRegistry
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

func NewService(repo RepositoryInterface, machines MachineRegistry, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		machines: machines,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// ClaimNextPendingOrder claims the oldest paid, undispensed order of a machine.
// It returns models.ErrNoPendingOrder when the queue is empty or when another
// caller won the conditional update; it never retries.
//
// Once the update commits the claim is final. Item metadata is best effort
// from then on: failures degrade the result (Partial) instead of failing it.
func (s *Service) ClaimNextPendingOrder(ctx context.Context, machineID string) (*models.ClaimedOrder, error) {
	pending, err := s.repo.FindOldestPending(ctx, machineID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNoPendingOrder
		}
		return nil, fmt.Errorf("service.ClaimNextPendingOrder: find pending: %w", err)
	}

	order, err := s.repo.MarkDispensed(ctx, pending.ID, s.now().UTC())
	if err != nil {
		if errors.Is(err, models.ErrClaimLost) {
			s.logger.InfoContext(ctx, "dispense_claim_lost", "machine_id", machineID, "order_id", pending.ID)
			return nil, models.ErrNoPendingOrder
		}
		return nil, fmt.Errorf("service.ClaimNextPendingOrder: mark dispensed: %w", err)
	}

	claim := &models.ClaimedOrder{Order: *order}
	items, err := s.repo.ListLineItems(ctx, order.ID)
	if err != nil {
		s.logger.WarnContext(ctx, "line items unavailable for claimed order",
			"machine_id", machineID, "order_id", order.ID, "err", err)
		claim.Items = []models.ResolvedItem{}
		claim.Partial = true
		return claim, nil
	}

	for i := range items {
		if !items[i].Resolved {
			items[i].Name = models.UnknownProductName
			claim.Partial = true
		}
	}
	if claim.Partial {
		s.logger.WarnContext(ctx, "claimed order has unresolved products", "machine_id", machineID, "order_id", order.ID)
	}
	if items == nil {
		items = []models.ResolvedItem{}
	}
	claim.Items = items

	s.logger.InfoContext(ctx, "dispense_claimed", "machine_id", machineID, "order_id", order.ID, "items", len(items))
	return claim, nil
}

// Poll runs one device poll: resolve, touch, claim.
// Only a store failure inside the claim itself is returned as an error.
func (s *Service) Poll(ctx context.Context, q models.PollQuery) (*PollOutcome, error) {
	m, err := s.machines.Resolve(ctx, q.MAC)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrConflict), errors.Is(err, models.ErrInvalidInput):
			s.logger.DebugContext(ctx, "poll from unprovisioned device", "mac", q.MAC)
		default:
			s.logger.ErrorContext(ctx, "machine resolution failed", "mac", q.MAC, "err", err)
		}
		return &PollOutcome{}, nil
	}

	upd := models.TelemetryUpdate{}
	if fw := strings.TrimSpace(q.Firmware); fw != "" {
		upd.FirmwareVersion = &fw
	}
	if err := s.machines.Touch(ctx, m.ID, upd); err != nil {
		s.logger.WarnContext(ctx, "liveness touch failed", "machine_id", m.ID, "err", err)
	}

	claim, err := s.ClaimNextPendingOrder(ctx, m.ID)
	if err != nil {
		if errors.Is(err, models.ErrNoPendingOrder) {
			s.logger.DebugContext(ctx, "no pending order", "machine_id", m.ID)
			return &PollOutcome{Machine: m}, nil
		}
		s.logger.ErrorContext(ctx, "dispense claim failed", "machine_id", m.ID, "err", err)
		return nil, err
	}
	return &PollOutcome{Machine: m, Claim: claim}, nil
}

// Acknowledge records that the device physically completed a claimed order.
// Unknown devices and already-acknowledged orders report false.
func (s *Service) Acknowledge(ctx context.Context, req models.AckRequest) (bool, error) {
	m, err := s.machines.Resolve(ctx, req.MAC)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrConflict) {
			return false, nil
		}
		return false, fmt.Errorf("service.Acknowledge: %w", err)
	}
	ok, err := s.repo.Acknowledge(ctx, req.TransactionID, m.ID, s.now().UTC())
	if err != nil {
		return false, fmt.Errorf("service.Acknowledge: %w", err)
	}
	return ok, nil
}

// RecordCoinSale stores a sale the machine settled in cash and already
// dispensed. The order is written paid and dispensed in one step, so it never
// enters the pending queue.
func (s *Service) RecordCoinSale(ctx context.Context, req models.CoinSaleRequest) (*models.Order, error) {
	m, err := s.machines.FindByCode(ctx, req.MachineID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	items := make([]models.LineItem, 0, len(req.Items))
	var total float64
	for i, it := range req.Items {
		items = append(items, models.LineItem{
			Position:  i,
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.Price,
		})
		total += it.Price * float64(it.Quantity)
	}
	amount := req.Amount
	if amount == 0 {
		amount = total
	}

	order := &models.Order{
		ID:              s.newID(),
		MachineID:       m.ID,
		PaymentStatus:   models.PaymentPaid,
		PaymentMethod:   models.PaymentMethodCoin,
		Amount:          amount,
		Dispensed:       true,
		DispensedAt:     &now,
		DispenseAckedAt: &now,
		PaidAt:          &now,
		CreatedAt:       now,
	}
	if err := s.repo.InsertDispensedSale(ctx, order, items); err != nil {
		return nil, fmt.Errorf("service.RecordCoinSale: %w", err)
	}
	s.logger.InfoContext(ctx, "coin_sale_recorded", "machine_id", m.ID, "order_id", order.ID, "amount", amount)
	return order, nil
}

// ListUnacknowledged lists claims older than grace that no device confirmed.
func (s *Service) ListUnacknowledged(ctx context.Context, grace time.Duration) ([]*models.Order, error) {
	orders, err := s.repo.ListUnacknowledged(ctx, s.now().UTC().Add(-grace))
	if err != nil {
		return nil, fmt.Errorf("service.ListUnacknowledged: %w", err)
	}
	return orders, nil
}
