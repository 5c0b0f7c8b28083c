package services

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/freshbasket/fulfillment-core/pkg"
	"github.com/freshbasket/fulfillment-core/pkg/database"
	"github.com/freshbasket/fulfillment-core/pkg/delivery"
	"github.com/freshbasket/fulfillment-core/pkg/models"
	"github.com/freshbasket/fulfillment-core/pkg/views"
	"github.com/freshbasket/fulfillment-core/services/order-api/configs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// In-memory fakes. All repository methods ignore their tx/db arguments, so
// the service runs against a fakeRunner that passes a nil transaction.

type fakeRunner struct{}

func (fakeRunner) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	return fn(ctx, nil)
}

type fakeOrderRepo struct {
	orders map[uuid.UUID]models.Order
	lines  map[uuid.UUID][]models.OrderLine
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{
		orders: make(map[uuid.UUID]models.Order),
		lines:  make(map[uuid.UUID][]models.OrderLine),
	}
}

func (f *fakeOrderRepo) Create(_ context.Context, _ pgx.Tx, order models.Order) (pgconn.CommandTag, error) {
	f.orders[order.ID] = order
	return pgconn.CommandTag{}, nil
}

func (f *fakeOrderRepo) CreateLines(_ context.Context, _ pgx.Tx, lines []models.OrderLine) error {
	for _, line := range lines {
		f.lines[line.OrderID] = append(f.lines[line.OrderID], line)
	}
	return nil
}

func (f *fakeOrderRepo) FindByID(_ context.Context, _ pgx.Tx, orderID uuid.UUID) (models.Order, error) {
	order, ok := f.orders[orderID]
	if !ok {
		return models.Order{}, pgx.ErrNoRows
	}
	return order, nil
}

func (f *fakeOrderRepo) FindByIDWithLines(_ context.Context, _ *database.DB, orderID uuid.UUID) (models.Order, error) {
	order, ok := f.orders[orderID]
	if !ok {
		return models.Order{}, pgx.ErrNoRows
	}
	order.Lines = f.lines[orderID]
	return order, nil
}

func (f *fakeOrderRepo) ListByUser(_ context.Context, _ *database.DB, userID uuid.UUID, _ int) ([]models.Order, error) {
	var out []models.Order
	for _, order := range f.orders {
		if order.UserID == userID {
			out = append(out, order)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeOrderRepo) ListCreatedSince(context.Context, *database.DB, time.Time) ([]models.Order, error) {
	return nil, nil
}

func (f *fakeOrderRepo) UpdateStatus(_ context.Context, _ pgx.Tx, orderID uuid.UUID, status pkg.OrderStatus, note string) (pgconn.CommandTag, error) {
	order := f.orders[orderID]
	order.Status = status
	order.Notes = note
	f.orders[orderID] = order
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

type fakeProductRepo struct {
	products map[string]models.Product
}

func (f *fakeProductRepo) Create(_ context.Context, _ pgx.Tx, product models.Product) (pgconn.CommandTag, error) {
	f.products[product.SKU] = product
	return pgconn.CommandTag{}, nil
}

func (f *fakeProductRepo) FindBySKUs(_ context.Context, _ pgx.Tx, skus []string) (map[string]models.Product, error) {
	out := make(map[string]models.Product)
	for _, sku := range skus {
		if product, ok := f.products[sku]; ok {
			out[sku] = product
		}
	}
	return out, nil
}

type fakeSlotRepo struct {
	slots map[uuid.UUID]*models.DeliverySlot
}

func (f *fakeSlotRepo) Create(_ context.Context, _ pgx.Tx, slot models.DeliverySlot) (pgconn.CommandTag, error) {
	f.slots[slot.ID] = &slot
	return pgconn.CommandTag{}, nil
}

func (f *fakeSlotRepo) FindByID(_ context.Context, _ pgx.Tx, slotID uuid.UUID) (models.DeliverySlot, error) {
	slot, ok := f.slots[slotID]
	if !ok {
		return models.DeliverySlot{}, pgx.ErrNoRows
	}
	return *slot, nil
}

func (f *fakeSlotRepo) FindAvailable(_ context.Context, _ pgx.Tx, now time.Time) ([]models.DeliverySlot, error) {
	var out []models.DeliverySlot
	for _, slot := range f.slots {
		if slot.IsActive && !slot.IsFull() && slot.StartTime.After(now) {
			out = append(out, *slot)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (f *fakeSlotRepo) Reserve(_ context.Context, _ pgx.Tx, slotID uuid.UUID) error {
	slot, ok := f.slots[slotID]
	if !ok || slot.IsFull() {
		return pkg.ErrSlotCapacityExceeded
	}
	slot.CurrentUsage++
	return nil
}

func (f *fakeSlotRepo) Release(_ context.Context, _ pgx.Tx, slotID uuid.UUID) (bool, error) {
	slot, ok := f.slots[slotID]
	if !ok || slot.CurrentUsage == 0 {
		return false, nil
	}
	slot.CurrentUsage--
	return true, nil
}

func (f *fakeSlotRepo) List(context.Context, *database.DB, bool, *time.Time, *time.Time) ([]models.DeliverySlot, error) {
	return nil, nil
}

type notifierCall struct {
	template string
	data     map[string]string
}

type recordingNotifier struct {
	mu    sync.Mutex
	user  []notifierCall
	admin []notifierCall
}

func (r *recordingNotifier) NotifyUser(_ context.Context, _ uuid.UUID, _ *uuid.UUID, templateKey string, data map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.user = append(r.user, notifierCall{template: templateKey, data: data})
}

func (r *recordingNotifier) NotifyAdmin(_ context.Context, templateKey string, data map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.admin = append(r.admin, notifierCall{template: templateKey, data: data})
}

type recordingDispatcher struct {
	jobs []views.RiskScanJob
}

func (r *recordingDispatcher) Dispatch(_ context.Context, job views.RiskScanJob) {
	r.jobs = append(r.jobs, job)
}

func (r *recordingDispatcher) Close() {}

type fixture struct {
	service    OrderService
	orderRepo  *fakeOrderRepo
	userRepo   *fakeUserRepo
	products   *fakeProductRepo
	slots      *fakeSlotRepo
	notifier   *recordingNotifier
	dispatcher *recordingDispatcher
}

func newFixture() *fixture {
	logger := zap.NewNop()
	f := &fixture{
		orderRepo:  newFakeOrderRepo(),
		userRepo:   &fakeUserRepo{users: make(map[uuid.UUID]models.User)},
		products:   &fakeProductRepo{products: make(map[string]models.Product)},
		slots:      &fakeSlotRepo{slots: make(map[uuid.UUID]*models.DeliverySlot)},
		notifier:   &recordingNotifier{},
		dispatcher: &recordingDispatcher{},
	}
	cfg := &configs.Config{
		DefaultSlotStrategy: delivery.StrategyEarliestAvailable,
		OrderListLimit:      50,
	}
	registry := delivery.NewStrategyRegistry(cfg.DefaultSlotStrategy)
	registry.Register(delivery.NewEarliestAvailableStrategy(f.slots))
	registry.Register(delivery.NewWeekendPriorityStrategy(f.slots))
	allocator := delivery.NewAllocator(f.slots, registry, logger)

	inventory := NewInventoryService(logger, f.products)
	pricing := NewPricingService(logger, f.products)
	f.service = NewOrderService(logger, cfg, nil, fakeRunner{}, f.orderRepo, f.userRepo,
		inventory, pricing, allocator, f.notifier, f.dispatcher)
	return f
}

func (f *fixture) seedUser(age time.Duration) models.User {
	user := models.User{
		ID:        uuid.New(),
		Email:     "test@example.com",
		IsActive:  true,
		CreatedAt: time.Now().UTC().Add(-age),
	}
	f.userRepo.users[user.ID] = user
	return user
}

func (f *fixture) seedProduct(sku string, price float64, stock int, active bool) {
	f.products.products[sku] = models.Product{
		SKU: sku, Name: sku, Price: price, Stock: stock, Active: active,
	}
}

func (f *fixture) seedSlot(startIn time.Duration, capacity, usage int) models.DeliverySlot {
	start := time.Now().UTC().Add(startIn)
	slot := models.DeliverySlot{
		ID:           uuid.New(),
		StartTime:    start,
		EndTime:      start.Add(2 * time.Hour),
		MaxCapacity:  capacity,
		CurrentUsage: usage,
		IsActive:     true,
	}
	f.slots.slots[slot.ID] = &slot
	return slot
}

func validRequest(userID uuid.UUID) views.OrderRequest {
	return views.OrderRequest{
		UserID:    userID.String(),
		AddressID: uuid.New().String(),
		Items: []views.OrderItemInput{
			{SKU: "SKU001", Quantity: 2},
			{SKU: "SKU002", Quantity: 1},
		},
	}
}

func TestCreateOrder_HappyPath(t *testing.T) {
	f := newFixture()
	user := f.seedUser(30 * 24 * time.Hour)
	f.seedProduct("SKU001", 10.00, 100, true)
	f.seedProduct("SKU002", 5.50, 100, true)
	slot := f.seedSlot(24*time.Hour, 10, 0)

	resp, err := f.service.CreateOrder(context.Background(), "t-1", validRequest(user.ID))

	require.NoError(t, err)
	assert.Equal(t, pkg.OrderStatusPending, resp.Status)
	assert.InDelta(t, 25.50, resp.TotalAmount, 1e-9)
	require.NotNil(t, resp.DeliverySlotID)
	assert.Equal(t, slot.ID.String(), *resp.DeliverySlotID)
	assert.False(t, resp.SlotAssignment.WasRequested)
	assert.Equal(t, 1, f.slots.slots[slot.ID].CurrentUsage)

	orderID := uuid.MustParse(resp.OrderID)
	lines := f.orderRepo.lines[orderID]
	require.Len(t, lines, 2)
	assert.InDelta(t, 20.00, lines[0].Subtotal, 1e-9)
	assert.InDelta(t, 5.50, lines[1].Subtotal, 1e-9)

	require.Len(t, f.notifier.user, 1)
	assert.Equal(t, "order_created", f.notifier.user[0].template)

	require.Len(t, f.dispatcher.jobs, 1)
	assert.Equal(t, resp.OrderID, f.dispatcher.jobs[0].OrderID)
	assert.False(t, f.dispatcher.jobs[0].WasSlotRequested)
}

func TestCreateOrder_RequestedSlotHonored(t *testing.T) {
	f := newFixture()
	user := f.seedUser(30 * 24 * time.Hour)
	f.seedProduct("SKU001", 10.00, 100, true)
	f.seedProduct("SKU002", 5.50, 100, true)
	f.seedSlot(4*time.Hour, 10, 0) // earlier slot the strategy would pick
	wanted := f.seedSlot(48*time.Hour, 10, 0)

	req := validRequest(user.ID)
	req.DeliverySlotID = wanted.ID.String()
	resp, err := f.service.CreateOrder(context.Background(), "t-2", req)

	require.NoError(t, err)
	require.NotNil(t, resp.DeliverySlotID)
	assert.Equal(t, wanted.ID.String(), *resp.DeliverySlotID)
	assert.True(t, resp.SlotAssignment.WasRequested)
	assert.False(t, resp.SlotAssignment.WasFallback)

	require.Len(t, f.dispatcher.jobs, 1)
	assert.True(t, f.dispatcher.jobs[0].WasSlotRequested)
	assert.True(t, f.dispatcher.jobs[0].RequestFulfilled)
}

func TestCreateOrder_FullRequestedSlotFallsBack(t *testing.T) {
	f := newFixture()
	user := f.seedUser(30 * 24 * time.Hour)
	f.seedProduct("SKU001", 10.00, 100, true)
	f.seedProduct("SKU002", 5.50, 100, true)
	full := f.seedSlot(48*time.Hour, 5, 5)
	open := f.seedSlot(24*time.Hour, 10, 0)

	req := validRequest(user.ID)
	req.DeliverySlotID = full.ID.String()
	resp, err := f.service.CreateOrder(context.Background(), "t-3", req)

	require.NoError(t, err)
	require.NotNil(t, resp.DeliverySlotID)
	assert.Equal(t, open.ID.String(), *resp.DeliverySlotID)
	assert.True(t, resp.SlotAssignment.WasFallback)

	require.Len(t, f.dispatcher.jobs, 1)
	assert.True(t, f.dispatcher.jobs[0].WasSlotRequested)
	assert.False(t, f.dispatcher.jobs[0].RequestFulfilled)
}

func TestCreateOrder_NoCapacityProceedsUnslotted(t *testing.T) {
	f := newFixture()
	user := f.seedUser(30 * 24 * time.Hour)
	f.seedProduct("SKU001", 10.00, 100, true)
	f.seedProduct("SKU002", 5.50, 100, true)

	resp, err := f.service.CreateOrder(context.Background(), "t-4", validRequest(user.ID))

	require.NoError(t, err)
	assert.Nil(t, resp.DeliverySlotID)
	assert.Nil(t, resp.SlotAssignment.Assigned)
}

func TestCreateOrder_InventoryFailureAborts(t *testing.T) {
	f := newFixture()
	user := f.seedUser(30 * 24 * time.Hour)
	f.seedProduct("SKU001", 10.00, 1, true) // under-stocked for qty 2

	_, err := f.service.CreateOrder(context.Background(), "t-5", validRequest(user.ID))

	require.Error(t, err)
	var appErr pkg.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, pkg.ErrInventoryCode.Code, appErr.Code.Code)
	assert.Contains(t, appErr.Message, "insufficient stock for SKU001")
	assert.Contains(t, appErr.Message, "unknown product SKU002")
	assert.Empty(t, f.orderRepo.orders)
	assert.Empty(t, f.dispatcher.jobs)
}

func TestCreateOrder_UnknownUserAborts(t *testing.T) {
	f := newFixture()
	f.seedProduct("SKU001", 10.00, 100, true)
	f.seedProduct("SKU002", 5.50, 100, true)

	_, err := f.service.CreateOrder(context.Background(), "t-6", validRequest(uuid.New()))

	require.Error(t, err)
	var appErr pkg.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, pkg.ErrRecordNotFoundCode.Code, appErr.Code.Code)
	assert.Empty(t, f.orderRepo.orders)
}

func TestCancelOrder_ReleasesSlotAndNotifies(t *testing.T) {
	f := newFixture()
	user := f.seedUser(30 * 24 * time.Hour)
	f.seedProduct("SKU001", 10.00, 100, true)
	f.seedProduct("SKU002", 5.50, 100, true)
	slot := f.seedSlot(24*time.Hour, 10, 0)

	resp, err := f.service.CreateOrder(context.Background(), "t-7", validRequest(user.ID))
	require.NoError(t, err)
	require.Equal(t, 1, f.slots.slots[slot.ID].CurrentUsage)
	orderID := uuid.MustParse(resp.OrderID)

	err = f.service.CancelOrder(context.Background(), "t-7", orderID, "changed my mind")
	require.NoError(t, err)

	assert.Equal(t, pkg.OrderStatusCancelled, f.orderRepo.orders[orderID].Status)
	assert.Equal(t, 0, f.slots.slots[slot.ID].CurrentUsage)
	require.Len(t, f.notifier.user, 2)
	assert.Equal(t, "order_cancelled", f.notifier.user[1].template)
}

func TestCancelOrder_TerminalStatusRejected(t *testing.T) {
	f := newFixture()
	orderID := uuid.New()
	f.orderRepo.orders[orderID] = models.Order{
		ID: orderID, UserID: uuid.New(), Status: pkg.OrderStatusDelivered,
	}

	err := f.service.CancelOrder(context.Background(), "t-8", orderID, "too late")

	require.Error(t, err)
	var appErr pkg.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, pkg.ErrBusinessRuleCode.Code, appErr.Code.Code)
}

func TestRefundOrder_NotifiesUserAndAdmin(t *testing.T) {
	f := newFixture()
	user := f.seedUser(30 * 24 * time.Hour)
	f.seedProduct("SKU001", 10.00, 100, true)
	f.seedProduct("SKU002", 5.50, 100, true)

	resp, err := f.service.CreateOrder(context.Background(), "t-9", validRequest(user.ID))
	require.NoError(t, err)
	orderID := uuid.MustParse(resp.OrderID)

	err = f.service.RefundOrder(context.Background(), "t-9", orderID, "damaged goods")
	require.NoError(t, err)

	assert.Equal(t, pkg.OrderStatusRefunded, f.orderRepo.orders[orderID].Status)
	require.Len(t, f.notifier.user, 2)
	assert.Equal(t, "order_refunded", f.notifier.user[1].template)
	require.Len(t, f.notifier.admin, 1)
	assert.Equal(t, "refund_processed", f.notifier.admin[0].template)
	assert.Equal(t, "damaged goods", f.notifier.admin[0].data["reason"])
}

func TestGetOrder_ReturnsLines(t *testing.T) {
	f := newFixture()
	user := f.seedUser(30 * 24 * time.Hour)
	f.seedProduct("SKU001", 10.00, 100, true)
	f.seedProduct("SKU002", 5.50, 100, true)

	resp, err := f.service.CreateOrder(context.Background(), "t-10", validRequest(user.ID))
	require.NoError(t, err)

	detail, err := f.service.GetOrder(context.Background(), "t-10", uuid.MustParse(resp.OrderID))
	require.NoError(t, err)
	assert.Equal(t, resp.OrderID, detail.OrderID)
	require.Len(t, detail.Lines, 2)

	_, err = f.service.GetOrder(context.Background(), "t-10", uuid.New())
	var appErr pkg.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, pkg.ErrRecordNotFoundCode.Code, appErr.Code.Code)
}

func TestListUserOrders(t *testing.T) {
	f := newFixture()
	user := f.seedUser(30 * 24 * time.Hour)
	f.seedProduct("SKU001", 10.00, 100, true)
	f.seedProduct("SKU002", 5.50, 100, true)

	for i := 0; i < 3; i++ {
		_, err := f.service.CreateOrder(context.Background(), "t-11", validRequest(user.ID))
		require.NoError(t, err)
	}

	orders, err := f.service.ListUserOrders(context.Background(), "t-11", user.ID)
	require.NoError(t, err)
	assert.Len(t, orders, 3)

	orders, err = f.service.ListUserOrders(context.Background(), "t-11", uuid.New())
	require.NoError(t, err)
	assert.Empty(t, orders)
}
