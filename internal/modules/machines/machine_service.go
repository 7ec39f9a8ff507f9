package machines

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"vending-dispatch/internal/models"
)

// ServiceInterface is the machine registry as seen by handlers and the dispense module.
type ServiceInterface interface {
	Resolve(ctx context.Context, mac string) (*models.Machine, error)
	FindByCode(ctx context.Context, code string) (*models.Machine, error)
	Touch(ctx context.Context, machineID string, upd models.TelemetryUpdate) error
	ReportTelemetry(ctx context.Context, req models.HeartbeatRequest) (bool, error)
	ListMachines(ctx context.Context) ([]*models.Machine, error)
	SweepOffline(ctx context.Context) (int64, error)
}

// Service resolves devices to machines and records their liveness.
type Service struct {
	repo         RepositoryInterface
	logger       *slog.Logger
	offlineAfter time.Duration
	now          func() time.Time
}

func NewService(repo RepositoryInterface, logger *slog.Logger, offlineAfter time.Duration) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:         repo,
		logger:       logger,
		offlineAfter: offlineAfter,
		now:          time.Now,
	}
}

// Resolve maps a hardware address to its machine. Unknown and duplicated
// addresses come back as models.ErrNotFound / models.ErrConflict; callers
// treat both as "device not provisioned".
func (s *Service) Resolve(ctx context.Context, mac string) (*models.Machine, error) {
	mac = strings.TrimSpace(mac)
	if mac == "" {
		return nil, models.ErrInvalidInput
	}
	m, err := s.repo.FindByHardwareAddress(ctx, mac)
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			s.logger.WarnContext(ctx, "hardware address matches several machines", "mac", mac)
		}
		return nil, err
	}
	return m, nil
}

// FindByCode looks a machine up by its logical code.
func (s *Service) FindByCode(ctx context.Context, code string) (*models.Machine, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, models.ErrInvalidInput
	}
	return s.repo.FindByLogicalCode(ctx, code)
}

func (s *Service) Touch(ctx context.Context, machineID string, upd models.TelemetryUpdate) error {
	if err := s.repo.Touch(ctx, machineID, upd, s.now().UTC()); err != nil {
		return fmt.Errorf("service.Touch: %w", err)
	}
	return nil
}

// ReportTelemetry applies a heartbeat to the machine named by its logical code.
// It reports false, nil when the code is unknown: a heartbeat from an
// unprovisioned machine is a no-op, not an error.
func (s *Service) ReportTelemetry(ctx context.Context, req models.HeartbeatRequest) (bool, error) {
	code := strings.TrimSpace(req.MachineID)
	if code == "" {
		return false, nil
	}
	m, err := s.repo.FindByLogicalCode(ctx, code)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrConflict) {
			s.logger.DebugContext(ctx, "heartbeat from unknown machine", "machine_code", code)
			return false, nil
		}
		return false, fmt.Errorf("service.ReportTelemetry: %w", err)
	}
	if err := s.Touch(ctx, m.ID, req.Telemetry()); err != nil {
		return true, err
	}
	return true, nil
}

func (s *Service) ListMachines(ctx context.Context) ([]*models.Machine, error) {
	return s.repo.ListMachines(ctx)
}

// SweepOffline marks machines silent for longer than offlineAfter as offline.
func (s *Service) SweepOffline(ctx context.Context) (int64, error) {
	now := s.now().UTC()
	n, err := s.repo.MarkStaleOffline(ctx, now.Add(-s.offlineAfter), now)
	if err != nil {
		return 0, fmt.Errorf("service.SweepOffline: %w", err)
	}
	return n, nil
}
