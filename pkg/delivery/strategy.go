package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/freshbasket/fulfillment-core/pkg/models"
	"github.com/freshbasket/fulfillment-core/pkg/repositories"
	"github.com/jackc/pgx/v5"
)

// Strategy names accepted in configuration and allocation requests.
const (
	StrategyEarliestAvailable = "earliest_available"
	StrategyWeekendPriority   = "weekend_priority"
)

// SlotStrategy proposes a delivery slot when the caller did not request one,
// or when the requested slot could not be honored. Propose returns nil with a
// nil error when no slot qualifies.
type SlotStrategy interface {
	Name() string
	Propose(ctx context.Context, tx pgx.Tx, now time.Time) (*models.DeliverySlot, error)
}

// EarliestAvailableStrategy picks the soonest upcoming slot with spare
// capacity. This is the default assignment policy.
type EarliestAvailableStrategy struct {
	slotRepo repositories.SlotRepository
}

func NewEarliestAvailableStrategy(slotRepo repositories.SlotRepository) *EarliestAvailableStrategy {
	return &EarliestAvailableStrategy{slotRepo: slotRepo}
}

func (s EarliestAvailableStrategy) Name() string {
	return StrategyEarliestAvailable
}

func (s EarliestAvailableStrategy) Propose(ctx context.Context, tx pgx.Tx, now time.Time) (*models.DeliverySlot, error) {
	candidates, err := s.slotRepo.FindAvailable(ctx, tx, now)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	return &candidates[0], nil
}

// WeekendPriorityStrategy prefers the earliest weekend slot and falls back to
// the earliest slot of any day when no weekend capacity exists.
type WeekendPriorityStrategy struct {
	slotRepo repositories.SlotRepository
}

func NewWeekendPriorityStrategy(slotRepo repositories.SlotRepository) *WeekendPriorityStrategy {
	return &WeekendPriorityStrategy{slotRepo: slotRepo}
}

func (s WeekendPriorityStrategy) Name() string {
	return StrategyWeekendPriority
}

func (s WeekendPriorityStrategy) Propose(ctx context.Context, tx pgx.Tx, now time.Time) (*models.DeliverySlot, error) {
	candidates, err := s.slotRepo.FindAvailable(ctx, tx, now)
	if err != nil {
		return nil, err
	}
	for i := range candidates {
		if candidates[i].IsWeekend() {
			return &candidates[i], nil
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	return &candidates[0], nil
}

// StrategyRegistry resolves strategy names to implementations. Strategies are
// registered at wiring time; the zero registry rejects every lookup.
type StrategyRegistry struct {
	strategies  map[string]SlotStrategy
	defaultName string
}

func NewStrategyRegistry(defaultName string) *StrategyRegistry {
	return &StrategyRegistry{
		strategies:  make(map[string]SlotStrategy),
		defaultName: defaultName,
	}
}

func (r *StrategyRegistry) Register(strategy SlotStrategy) {
	r.strategies[strategy.Name()] = strategy
}

func (r *StrategyRegistry) Get(name string) (SlotStrategy, error) {
	strategy, ok := r.strategies[name]
	if !ok {
		return nil, fmt.Errorf("unknown slot strategy %q", name)
	}
	return strategy, nil
}

// Default returns the configured default strategy. Panics when the default
// was never registered, which is a wiring bug rather than a runtime state.
func (r *StrategyRegistry) Default() SlotStrategy {
	strategy, ok := r.strategies[r.defaultName]
	if !ok {
		panic(fmt.Sprintf("default slot strategy %q is not registered", r.defaultName))
	}
	return strategy
}
