package dispense

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"vending-dispatch/internal/models"
)

// fakeRepo is an in-memory order store. The mutex makes MarkDispensed a real
// compare-and-swap so concurrent claims can be exercised.
type fakeRepo struct {
	mu       sync.Mutex
	orders   map[string]*models.Order
	items    map[string][]models.LineItem
	products map[string]models.PollProduct

	findErr  error
	markErr  error
	itemsErr error

	// beforeMark runs between the select and the conditional update.
	beforeMark func()
	inserted   []*models.Order
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		orders:   make(map[string]*models.Order),
		items:    make(map[string][]models.LineItem),
		products: make(map[string]models.PollProduct),
	}
}

func (f *fakeRepo) addOrder(o models.Order, items ...models.LineItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o.PaymentMethod == "" {
		o.PaymentMethod = models.PaymentMethodOnline
	}
	f.orders[o.ID] = &o
	f.items[o.ID] = items
}

func (f *fakeRepo) order(id string) models.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.orders[id]
}

func (f *fakeRepo) FindOldestPending(ctx context.Context, machineID string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	var pending []*models.Order
	for _, o := range f.orders {
		if o.MachineID == machineID && o.IsPending() {
			pending = append(pending, o)
		}
	}
	if len(pending) == 0 {
		return nil, models.ErrNotFound
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].ID < pending[j].ID
		}
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	cp := *pending[0]
	return &cp, nil
}

func (f *fakeRepo) MarkDispensed(ctx context.Context, orderID string, now time.Time) (*models.Order, error) {
	if f.beforeMark != nil {
		f.beforeMark()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return nil, f.markErr
	}
	o, ok := f.orders[orderID]
	if !ok || o.Dispensed || o.PaymentStatus != models.PaymentPaid {
		return nil, models.ErrClaimLost
	}
	o.Dispensed = true
	o.DispensedAt = &now
	cp := *o
	return &cp, nil
}

func (f *fakeRepo) ListLineItems(ctx context.Context, orderID string) ([]models.ResolvedItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.itemsErr != nil {
		return nil, f.itemsErr
	}
	var out []models.ResolvedItem
	for _, it := range f.items[orderID] {
		ri := models.ResolvedItem{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: it.UnitPrice}
		if p, ok := f.products[it.ProductID]; ok {
			ri.Name, ri.Description, ri.Resolved = p.Name, p.Description, true
		}
		out = append(out, ri)
	}
	return out, nil
}

func (f *fakeRepo) Acknowledge(ctx context.Context, orderID, machineID string, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok || o.MachineID != machineID || !o.Dispensed || o.DispenseAckedAt != nil {
		return false, nil
	}
	o.DispenseAckedAt = &now
	return true, nil
}

func (f *fakeRepo) ListUnacknowledged(ctx context.Context, before time.Time) ([]*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Order
	for _, o := range f.orders {
		if o.Dispensed && o.DispenseAckedAt == nil && o.PaymentMethod == models.PaymentMethodOnline &&
			o.DispensedAt != nil && o.DispensedAt.Before(before) {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeRepo) InsertDispensedSale(ctx context.Context, order *models.Order, items []models.LineItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *order
	f.orders[order.ID] = &cp
	f.items[order.ID] = items
	f.inserted = append(f.inserted, &cp)
	return nil
}

// fakeRegistry stands in for the machine registry.
type fakeRegistry struct {
	mu         sync.Mutex
	machines   []*models.Machine
	touchErr   error
	resolveErr error
	touched    map[string]models.TelemetryUpdate
}

func newFakeRegistry(ms ...*models.Machine) *fakeRegistry {
	return &fakeRegistry{machines: ms, touched: make(map[string]models.TelemetryUpdate)}
}

func (r *fakeRegistry) Resolve(ctx context.Context, mac string) (*models.Machine, error) {
	if r.resolveErr != nil {
		return nil, r.resolveErr
	}
	for _, m := range r.machines {
		if strings.EqualFold(m.HardwareAddress, strings.TrimSpace(mac)) {
			return m, nil
		}
	}
	return nil, models.ErrNotFound
}

func (r *fakeRegistry) FindByCode(ctx context.Context, code string) (*models.Machine, error) {
	if strings.TrimSpace(code) == "" {
		return nil, models.ErrInvalidInput
	}
	for _, m := range r.machines {
		if m.LogicalCode == code {
			return m, nil
		}
	}
	return nil, models.ErrNotFound
}

func (r *fakeRegistry) Touch(ctx context.Context, machineID string, upd models.TelemetryUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touched[machineID] = upd
	return r.touchErr
}

func (r *fakeRegistry) wasTouched(machineID string) (models.TelemetryUpdate, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	upd, ok := r.touched[machineID]
	return upd, ok
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var (
	t0      = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	claimAt = time.Date(2024, 5, 1, 9, 0, 30, 0, time.UTC)
)

func lobbyMachine() *models.Machine {
	return &models.Machine{ID: "m1", HardwareAddress: "AA:BB:CC:DD:EE:01", LogicalCode: "VM-001", Name: "Lobby"}
}

func newTestService(fr *fakeRepo, reg *fakeRegistry) *Service {
	svc := NewService(fr, reg, discardLogger())
	svc.now = func() time.Time { return claimAt }
	return svc
}

func paidOrder(id, machineID string, createdAt time.Time) models.Order {
	return models.Order{
		ID:            id,
		MachineID:     machineID,
		PaymentStatus: models.PaymentPaid,
		Amount:        50,
		CreatedAt:     createdAt,
	}
}
