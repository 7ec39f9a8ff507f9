package machines

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"vending-dispatch/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRepo keeps machines in memory and mirrors the partial-update semantics
// of the SQL repository.
type fakeRepo struct {
	mu        sync.Mutex
	machines  map[string]*models.Machine
	touchErr  error
	findErr   error
	touches   int
	sweptWith time.Time
	sweptAt   time.Time
}

func newFakeRepo(ms ...*models.Machine) *fakeRepo {
	fr := &fakeRepo{machines: make(map[string]*models.Machine)}
	for _, m := range ms {
		fr.machines[m.ID] = m
	}
	return fr
}

func (f *fakeRepo) find(match func(*models.Machine) bool) (*models.Machine, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	var found []*models.Machine
	for _, m := range f.machines {
		if match(m) {
			found = append(found, m)
		}
	}
	switch len(found) {
	case 0:
		return nil, models.ErrNotFound
	case 1:
		cp := *found[0]
		return &cp, nil
	default:
		return nil, models.ErrConflict
	}
}

func (f *fakeRepo) FindByHardwareAddress(ctx context.Context, mac string) (*models.Machine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.find(func(m *models.Machine) bool { return strings.EqualFold(m.HardwareAddress, mac) })
}

func (f *fakeRepo) FindByLogicalCode(ctx context.Context, code string) (*models.Machine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.find(func(m *models.Machine) bool { return m.LogicalCode == code })
}

func (f *fakeRepo) Touch(ctx context.Context, machineID string, upd models.TelemetryUpdate, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touches++
	if f.touchErr != nil {
		return f.touchErr
	}
	m, ok := f.machines[machineID]
	if !ok {
		return models.ErrNotFound
	}
	m.Online = true
	m.LastContactAt = &now
	if upd.FirmwareVersion != nil {
		m.FirmwareVersion = upd.FirmwareVersion
	}
	if upd.WifiRSSI != nil {
		m.WifiRSSI = upd.WifiRSSI
	}
	if upd.FreeHeap != nil {
		m.FreeHeap = upd.FreeHeap
	}
	if upd.UptimeSeconds != nil {
		m.UptimeSeconds = upd.UptimeSeconds
	}
	if upd.StockLevel != nil {
		m.StockLevel = upd.StockLevel
	}
	return nil
}

func (f *fakeRepo) ListMachines(ctx context.Context) ([]*models.Machine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.Machine, 0, len(f.machines))
	for _, m := range f.machines {
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeRepo) MarkStaleOffline(ctx context.Context, before, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sweptWith = before
	f.sweptAt = now
	var n int64
	for _, m := range f.machines {
		if m.Online && (m.LastContactAt == nil || m.LastContactAt.Before(before)) {
			m.Online = false
			n++
		}
	}
	return n, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(fr *fakeRepo, now time.Time) *Service {
	svc := NewService(fr, discardLogger(), 2*time.Minute)
	svc.now = func() time.Time { return now }
	return svc
}

func ptr[T any](v T) *T { return &v }

func TestResolveIsCaseInsensitive(t *testing.T) {
	fr := newFakeRepo(&models.Machine{ID: "m1", HardwareAddress: "AA:BB:CC:DD:EE:01", LogicalCode: "VM-001"})
	svc := newTestService(fr, time.Now())

	m, err := svc.Resolve(context.Background(), "  aa:bb:cc:dd:ee:01 ")
	require.NoError(t, err)
	assert.Equal(t, "m1", m.ID)
}

func TestResolveMissesAndDuplicates(t *testing.T) {
	fr := newFakeRepo(
		&models.Machine{ID: "m1", HardwareAddress: "AA:AA"},
		&models.Machine{ID: "m2", HardwareAddress: "aa:aa"},
	)
	svc := newTestService(fr, time.Now())
	ctx := context.Background()

	_, err := svc.Resolve(ctx, "BB:BB")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = svc.Resolve(ctx, "AA:AA")
	assert.ErrorIs(t, err, models.ErrConflict)

	_, err = svc.Resolve(ctx, "   ")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestTouchLeavesUnreportedTelemetryUntouched(t *testing.T) {
	fr := newFakeRepo(&models.Machine{
		ID:       "m1",
		WifiRSSI: ptr(-61),
		FreeHeap: ptr(int64(120000)),
	})
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(fr, now)

	err := svc.Touch(context.Background(), "m1", models.TelemetryUpdate{FirmwareVersion: ptr("1.4.2")})
	require.NoError(t, err)

	m := fr.machines["m1"]
	assert.True(t, m.Online)
	assert.Equal(t, now, *m.LastContactAt)
	assert.Equal(t, "1.4.2", *m.FirmwareVersion)
	assert.Equal(t, -61, *m.WifiRSSI)
	assert.Equal(t, int64(120000), *m.FreeHeap)
}

func TestReportTelemetryByLogicalCode(t *testing.T) {
	fr := newFakeRepo(&models.Machine{ID: "m1", LogicalCode: "VM-001", StockLevel: ptr(3)})
	svc := newTestService(fr, time.Now())
	ctx := context.Background()

	known, err := svc.ReportTelemetry(ctx, models.HeartbeatRequest{MachineID: "VM-001", Uptime: ptr(int64(3600))})
	require.NoError(t, err)
	assert.True(t, known)
	assert.Equal(t, int64(3600), *fr.machines["m1"].UptimeSeconds)
	assert.Equal(t, 3, *fr.machines["m1"].StockLevel)

	known, err = svc.ReportTelemetry(ctx, models.HeartbeatRequest{MachineID: "VM-404"})
	require.NoError(t, err)
	assert.False(t, known)

	known, err = svc.ReportTelemetry(ctx, models.HeartbeatRequest{})
	require.NoError(t, err)
	assert.False(t, known)
	assert.Equal(t, 1, fr.touches)
}

func TestReportTelemetryPropagatesStoreFailure(t *testing.T) {
	fr := newFakeRepo()
	fr.findErr = errors.New("connection reset")
	svc := newTestService(fr, time.Now())

	_, err := svc.ReportTelemetry(context.Background(), models.HeartbeatRequest{MachineID: "VM-001"})
	assert.Error(t, err)
}

func TestSweepOffline(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	fresh := now.Add(-30 * time.Second)
	stale := now.Add(-10 * time.Minute)
	fr := newFakeRepo(
		&models.Machine{ID: "fresh", Online: true, LastContactAt: &fresh},
		&models.Machine{ID: "stale", Online: true, LastContactAt: &stale},
		&models.Machine{ID: "never", Online: true},
	)
	svc := newTestService(fr, now)

	n, err := svc.SweepOffline(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, now.Add(-2*time.Minute), fr.sweptWith)
	assert.Equal(t, now, fr.sweptAt)
	assert.True(t, fr.machines["fresh"].Online)
	assert.False(t, fr.machines["stale"].Online)
	assert.False(t, fr.machines["never"].Online)
}

func TestSweeperStopsWithContext(t *testing.T) {
	fr := newFakeRepo(&models.Machine{ID: "m1", Online: true})
	sw := NewSweeper(newTestService(fr, time.Now()), 5*time.Millisecond, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sw.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		fr.mu.Lock()
		defer fr.mu.Unlock()
		return !fr.machines["m1"].Online
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}
