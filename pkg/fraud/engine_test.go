package fraud

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/freshbasket/fulfillment-core/pkg"
	"github.com/freshbasket/fulfillment-core/pkg/database"
	"github.com/freshbasket/fulfillment-core/pkg/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeRunner executes the transaction body with a nil tx; the fake
// repositories below never touch it.
type fakeRunner struct{}

func (fakeRunner) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	return fn(ctx, nil)
}

type fakeOrderRepo struct {
	orders map[uuid.UUID]models.Order
}

func (f *fakeOrderRepo) Create(_ context.Context, _ pgx.Tx, order models.Order) (pgconn.CommandTag, error) {
	f.orders[order.ID] = order
	return pgconn.CommandTag{}, nil
}

func (f *fakeOrderRepo) CreateLines(context.Context, pgx.Tx, []models.OrderLine) error { return nil }

func (f *fakeOrderRepo) FindByID(_ context.Context, _ pgx.Tx, orderID uuid.UUID) (models.Order, error) {
	order, ok := f.orders[orderID]
	if !ok {
		return models.Order{}, pgx.ErrNoRows
	}
	return order, nil
}

func (f *fakeOrderRepo) FindByIDWithLines(_ context.Context, _ *database.DB, orderID uuid.UUID) (models.Order, error) {
	return f.FindByID(context.Background(), nil, orderID)
}

func (f *fakeOrderRepo) ListByUser(context.Context, *database.DB, uuid.UUID, int) ([]models.Order, error) {
	return nil, nil
}

func (f *fakeOrderRepo) ListCreatedSince(_ context.Context, _ *database.DB, since time.Time) ([]models.Order, error) {
	var out []models.Order
	for _, order := range f.orders {
		if !order.CreatedAt.Before(since) {
			out = append(out, order)
		}
	}
	return out, nil
}

func (f *fakeOrderRepo) UpdateStatus(context.Context, pgx.Tx, uuid.UUID, pkg.OrderStatus, string) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

type fakeUserRepo struct {
	users map[uuid.UUID]models.User
}

func (f *fakeUserRepo) Create(_ context.Context, _ pgx.Tx, user models.User) (pgconn.CommandTag, error) {
	f.users[user.ID] = user
	return pgconn.CommandTag{}, nil
}

func (f *fakeUserRepo) FindByID(_ context.Context, _ pgx.Tx, userID uuid.UUID) (models.User, error) {
	user, ok := f.users[userID]
	if !ok {
		return models.User{}, pgx.ErrNoRows
	}
	return user, nil
}

type fakeSlotRepo struct {
	slots map[uuid.UUID]models.DeliverySlot
}

func (f *fakeSlotRepo) Create(_ context.Context, _ pgx.Tx, slot models.DeliverySlot) (pgconn.CommandTag, error) {
	f.slots[slot.ID] = slot
	return pgconn.CommandTag{}, nil
}

func (f *fakeSlotRepo) FindByID(_ context.Context, _ pgx.Tx, slotID uuid.UUID) (models.DeliverySlot, error) {
	slot, ok := f.slots[slotID]
	if !ok {
		return models.DeliverySlot{}, pgx.ErrNoRows
	}
	return slot, nil
}

func (f *fakeSlotRepo) FindAvailable(context.Context, pgx.Tx, time.Time) ([]models.DeliverySlot, error) {
	return nil, nil
}

func (f *fakeSlotRepo) Reserve(context.Context, pgx.Tx, uuid.UUID) error { return nil }

func (f *fakeSlotRepo) Release(context.Context, pgx.Tx, uuid.UUID) (bool, error) { return true, nil }

func (f *fakeSlotRepo) List(context.Context, *database.DB, bool, *time.Time, *time.Time) ([]models.DeliverySlot, error) {
	return nil, nil
}

type fakeAlertRepo struct {
	alerts   []models.RiskAlert
	failures int // number of Create calls to fail before recovering
}

func (f *fakeAlertRepo) Create(_ context.Context, _ pgx.Tx, alert models.RiskAlert) (pgconn.CommandTag, error) {
	if f.failures > 0 {
		f.failures--
		return pgconn.CommandTag{}, errors.New("connection reset")
	}
	f.alerts = append(f.alerts, alert)
	return pgconn.CommandTag{}, nil
}

func (f *fakeAlertRepo) List(context.Context, *database.DB, pkg.RiskAlertStatus, float64, int) ([]models.RiskAlert, error) {
	return f.alerts, nil
}

type fakeNotifier struct {
	calls []map[string]string
}

func (f *fakeNotifier) NotifyAdmin(_ context.Context, templateKey string, data map[string]string) {
	data["templateKey"] = templateKey
	f.calls = append(f.calls, data)
}

type fakeMarker struct {
	seen map[uuid.UUID]bool
}

func (f *fakeMarker) Mark(_ context.Context, orderID uuid.UUID) (bool, error) {
	if f.seen[orderID] {
		return false, nil
	}
	f.seen[orderID] = true
	return true, nil
}

func (f *fakeMarker) Unmark(_ context.Context, orderID uuid.UUID) error {
	delete(f.seen, orderID)
	return nil
}

type engineFixture struct {
	engine    *Engine
	orderRepo *fakeOrderRepo
	userRepo  *fakeUserRepo
	slotRepo  *fakeSlotRepo
	alertRepo *fakeAlertRepo
	notifier  *fakeNotifier
	marker    *fakeMarker
}

func newEngineFixture() *engineFixture {
	f := &engineFixture{
		orderRepo: &fakeOrderRepo{orders: make(map[uuid.UUID]models.Order)},
		userRepo:  &fakeUserRepo{users: make(map[uuid.UUID]models.User)},
		slotRepo:  &fakeSlotRepo{slots: make(map[uuid.UUID]models.DeliverySlot)},
		alertRepo: &fakeAlertRepo{},
		notifier:  &fakeNotifier{},
		marker:    &fakeMarker{seen: make(map[uuid.UUID]bool)},
	}
	f.engine = NewEngine(nil, fakeRunner{}, f.orderRepo, f.userRepo, f.slotRepo, f.alertRepo,
		DefaultRules(), f.marker, f.notifier, zap.NewNop())
	return f
}

func (f *engineFixture) seedOrder(total float64, slotID *uuid.UUID, userAge time.Duration) models.Order {
	user := models.User{ID: uuid.New(), CreatedAt: orderedAt.Add(-userAge)}
	f.userRepo.users[user.ID] = user
	order := models.Order{
		ID:             uuid.New(),
		UserID:         user.ID,
		DeliverySlotID: slotID,
		TotalAmount:    total,
		Status:         pkg.OrderStatusPending,
		CreatedAt:      orderedAt,
	}
	f.orderRepo.orders[order.ID] = order
	return order
}

func TestEvaluateOrder_HighValueProducesHighRiskAlert(t *testing.T) {
	f := newEngineFixture()
	order := f.seedOrder(1200, nil, 30*24*time.Hour)

	verdict, err := f.engine.EvaluateOrder(context.Background(), "t-1", order.ID, nil)

	require.NoError(t, err)
	require.NotNil(t, verdict.Alert)
	assert.Equal(t, 0.9, verdict.Score)
	assert.Equal(t, pkg.RiskCategoryHigh, verdict.Category)
	assert.Equal(t, "HighValueOrder", verdict.TopRule)
	assert.Equal(t, string(pkg.RiskCategoryHigh), verdict.Alert.RiskType)
	assert.Equal(t, pkg.RiskAlertPending, verdict.Alert.Status)

	require.Len(t, f.notifier.calls, 1)
	assert.Equal(t, "high_risk_order", f.notifier.calls[0]["templateKey"])
	assert.Equal(t, "HighValueOrder", f.notifier.calls[0]["riskType"])
}

func TestEvaluateOrder_CleanOrderProducesNoAlert(t *testing.T) {
	f := newEngineFixture()
	order := f.seedOrder(100, nil, 30*24*time.Hour)

	verdict, err := f.engine.EvaluateOrder(context.Background(), "t-2", order.ID, nil)

	require.NoError(t, err)
	assert.Nil(t, verdict.Alert)
	assert.Zero(t, verdict.Score)
	assert.Empty(t, f.alertRepo.alerts)
	assert.Empty(t, f.notifier.calls)
}

func TestEvaluateOrder_AggregateIsMaxWithAllEvidence(t *testing.T) {
	f := newEngineFixture()
	slot := models.DeliverySlot{
		ID:           uuid.New(),
		StartTime:    orderedAt.Add(24 * time.Hour), // Thursday morning
		EndTime:      orderedAt.Add(26 * time.Hour),
		MaxCapacity:  10,
		CurrentUsage: 9,
		IsActive:     true,
	}
	f.slotRepo.slots[slot.ID] = slot
	order := f.seedOrder(1200, &slot.ID, 30*24*time.Hour)

	verdict, err := f.engine.EvaluateOrder(context.Background(), "t-3", order.ID, nil)

	require.NoError(t, err)
	require.NotNil(t, verdict.Alert)
	assert.Equal(t, 0.9, verdict.Score)
	assert.Equal(t, "HighValueOrder", verdict.TopRule)
	assert.Contains(t, verdict.Alert.Details, "[HighValueOrder]")
	assert.Contains(t, verdict.Alert.Details, "[PeakSlotUsage]")
}

func TestEvaluateOrder_MediumValueStaysBelowAdminThreshold(t *testing.T) {
	f := newEngineFixture()
	order := f.seedOrder(600, nil, 30*24*time.Hour)

	verdict, err := f.engine.EvaluateOrder(context.Background(), "t-4", order.ID, nil)

	require.NoError(t, err)
	require.NotNil(t, verdict.Alert)
	assert.Equal(t, 0.6, verdict.Score)
	assert.Equal(t, string(pkg.RiskCategoryLow), verdict.Alert.RiskType)
	assert.Empty(t, f.notifier.calls)
}

func TestEvaluateOrder_SlotSelectionContextFeedsAnomalyRule(t *testing.T) {
	f := newEngineFixture()
	slot := models.DeliverySlot{
		ID:          uuid.New(),
		StartTime:   orderedAt.Add(time.Hour),
		EndTime:     orderedAt.Add(3 * time.Hour),
		MaxCapacity: 10,
		IsActive:    true,
	}
	f.slotRepo.slots[slot.ID] = slot
	order := f.seedOrder(400, &slot.ID, 30*24*time.Hour)

	verdict, err := f.engine.EvaluateOrder(context.Background(), "t-5", order.ID,
		&SlotSelection{WasRequested: true, Fulfilled: true})

	require.NoError(t, err)
	require.NotNil(t, verdict.Alert)
	assert.Equal(t, "UserSelectedSlotAnomaly", verdict.TopRule)
	assert.Contains(t, verdict.Alert.Details, "[UserSelectedSlotAnomaly]")
}

func TestEvaluateOrder_MarkerDeduplicatesPasses(t *testing.T) {
	f := newEngineFixture()
	order := f.seedOrder(1200, nil, 30*24*time.Hour)
	ctx := context.Background()

	first, err := f.engine.EvaluateOrder(ctx, "t-6", order.ID, nil)
	require.NoError(t, err)
	require.NotNil(t, first.Alert)

	second, err := f.engine.EvaluateOrder(ctx, "t-6", order.ID, nil)
	require.NoError(t, err)
	assert.True(t, second.Skipped)
	assert.Len(t, f.alertRepo.alerts, 1)
}

func TestEvaluateOrder_FailedPassReleasesMarkerForRetry(t *testing.T) {
	f := newEngineFixture()
	f.alertRepo.failures = 1
	order := f.seedOrder(1200, nil, 30*24*time.Hour)
	ctx := context.Background()

	_, err := f.engine.EvaluateOrder(ctx, "t-9", order.ID, nil)
	require.Error(t, err)
	assert.Empty(t, f.alertRepo.alerts)

	// The redelivered job must evaluate again, not be skipped by a stale
	// dedupe claim from the failed pass.
	verdict, err := f.engine.EvaluateOrder(ctx, "t-9", order.ID, nil)
	require.NoError(t, err)
	assert.False(t, verdict.Skipped)
	require.NotNil(t, verdict.Alert)
	assert.Len(t, f.alertRepo.alerts, 1)
}

func TestScanRecentOrders_EvaluatesUnscannedOrders(t *testing.T) {
	f := newEngineFixture()
	risky := f.seedOrder(1500, nil, 30*24*time.Hour)
	clean := f.seedOrder(50, nil, 30*24*time.Hour)
	// Pin creation times inside the scan window.
	now := time.Now().UTC()
	for _, id := range []uuid.UUID{risky.ID, clean.ID} {
		order := f.orderRepo.orders[id]
		order.CreatedAt = now.Add(-time.Hour)
		f.orderRepo.orders[id] = order
	}

	scanned, alerted, err := f.engine.ScanRecentOrders(context.Background(), "t-7", 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, scanned)
	assert.Equal(t, 1, alerted)

	// A second pass sees everything marked and does nothing.
	scanned, alerted, err = f.engine.ScanRecentOrders(context.Background(), "t-7", 24*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, scanned)
	assert.Zero(t, alerted)
	assert.Len(t, f.alertRepo.alerts, 1)
}

func TestEvaluateOrder_MissingOrderFails(t *testing.T) {
	f := newEngineFixture()

	_, err := f.engine.EvaluateOrder(context.Background(), "t-8", uuid.New(), nil)
	assert.Error(t, err)
}
