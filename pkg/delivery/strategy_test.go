package delivery

import (
	"context"
	"sort"
	"time"

	"github.com/freshbasket/fulfillment-core/pkg"
	"github.com/freshbasket/fulfillment-core/pkg/database"
	"github.com/freshbasket/fulfillment-core/pkg/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSlotRepo is an in-memory SlotRepository. The tx argument is ignored, so
// tests drive the allocator with a nil transaction.
type fakeSlotRepo struct {
	slots        map[uuid.UUID]*models.DeliverySlot
	failReserves int // first N Reserve calls lose the capacity race
	reserves     []uuid.UUID
}

func newFakeSlotRepo(slots ...models.DeliverySlot) *fakeSlotRepo {
	repo := &fakeSlotRepo{slots: make(map[uuid.UUID]*models.DeliverySlot)}
	for i := range slots {
		s := slots[i]
		repo.slots[s.ID] = &s
	}
	return repo
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
	f.reserves = append(f.reserves, slotID)
	if f.failReserves > 0 {
		f.failReserves--
		return pkg.ErrSlotCapacityExceeded
	}
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

func (f *fakeSlotRepo) List(_ context.Context, _ *database.DB, _ bool, _, _ *time.Time) ([]models.DeliverySlot, error) {
	return nil, nil
}

// baseTime is a Wednesday.
var baseTime = time.Date(2025, 6, 4, 8, 0, 0, 0, time.UTC)

func slotAt(start time.Time, capacity, usage int, active bool) models.DeliverySlot {
	return models.DeliverySlot{
		ID:           uuid.New(),
		StartTime:    start,
		EndTime:      start.Add(2 * time.Hour),
		MaxCapacity:  capacity,
		CurrentUsage: usage,
		IsActive:     active,
	}
}

func TestEarliestAvailable_PicksSoonestSlot(t *testing.T) {
	later := slotAt(baseTime.Add(48*time.Hour), 10, 0, true)
	sooner := slotAt(baseTime.Add(4*time.Hour), 10, 0, true)
	repo := newFakeSlotRepo(later, sooner)

	strategy := NewEarliestAvailableStrategy(repo)
	got, err := strategy.Propose(context.Background(), nil, baseTime)

	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, sooner.ID, got.ID)
}

func TestEarliestAvailable_SkipsFullInactiveAndPast(t *testing.T) {
	full := slotAt(baseTime.Add(2*time.Hour), 5, 5, true)
	inactive := slotAt(baseTime.Add(3*time.Hour), 5, 0, false)
	past := slotAt(baseTime.Add(-2*time.Hour), 5, 0, true)
	open := slotAt(baseTime.Add(6*time.Hour), 5, 4, true)
	repo := newFakeSlotRepo(full, inactive, past, open)

	strategy := NewEarliestAvailableStrategy(repo)
	got, err := strategy.Propose(context.Background(), nil, baseTime)

	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, open.ID, got.ID)
}

func TestEarliestAvailable_NoCapacityReturnsNil(t *testing.T) {
	repo := newFakeSlotRepo(slotAt(baseTime.Add(time.Hour), 3, 3, true))

	strategy := NewEarliestAvailableStrategy(repo)
	got, err := strategy.Propose(context.Background(), nil, baseTime)

	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestWeekendPriority_PrefersWeekendOverSoonerWeekday(t *testing.T) {
	thursday := slotAt(baseTime.Add(24*time.Hour), 10, 0, true)
	saturday := slotAt(baseTime.Add(72*time.Hour), 10, 0, true)
	require.Equal(t, time.Saturday, saturday.StartTime.Weekday())
	repo := newFakeSlotRepo(thursday, saturday)

	strategy := NewWeekendPriorityStrategy(repo)
	got, err := strategy.Propose(context.Background(), nil, baseTime)

	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, saturday.ID, got.ID)
}

func TestWeekendPriority_FallsBackToEarliestWeekday(t *testing.T) {
	thursday := slotAt(baseTime.Add(24*time.Hour), 10, 0, true)
	friday := slotAt(baseTime.Add(48*time.Hour), 10, 0, true)
	repo := newFakeSlotRepo(friday, thursday)

	strategy := NewWeekendPriorityStrategy(repo)
	got, err := strategy.Propose(context.Background(), nil, baseTime)

	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, thursday.ID, got.ID)
}

func TestStrategyRegistry_ResolvesByName(t *testing.T) {
	repo := newFakeSlotRepo()
	registry := NewStrategyRegistry(StrategyEarliestAvailable)
	registry.Register(NewEarliestAvailableStrategy(repo))
	registry.Register(NewWeekendPriorityStrategy(repo))

	weekend, err := registry.Get(StrategyWeekendPriority)
	require.NoError(t, err)
	assert.Equal(t, StrategyWeekendPriority, weekend.Name())

	assert.Equal(t, StrategyEarliestAvailable, registry.Default().Name())

	_, err = registry.Get("round_robin")
	assert.Error(t, err)
}
