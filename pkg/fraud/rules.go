package fraud

import (
	"fmt"
	"strings"
	"time"

	"github.com/freshbasket/fulfillment-core/pkg/models"
	"github.com/google/uuid"
)

// SlotSelection carries how the order's slot was resolved. It is only
// available on the first evaluation pass right after checkout; retrospective
// scans run without it.
type SlotSelection struct {
	WasRequested     bool
	RequestedSlotID  *uuid.UUID
	Fulfilled        bool // requested slot is the one reserved
	FallbackOccurred bool
}

// RuleInput is the order snapshot every rule evaluates against.
// Slot and Selection may be nil; rules that need them stay untriggered.
type RuleInput struct {
	Order     models.Order
	User      models.User
	Slot      *models.DeliverySlot
	Selection *SlotSelection
}

// RuleResult is one rule's verdict.
type RuleResult struct {
	Score     float64
	Triggered bool
	Evidence  string
}

// RiskRule scores one dimension of an order.
type RiskRule interface {
	Name() string
	Evaluate(input RuleInput) RuleResult
}

// HighValueRule flags orders by total amount.
type HighValueRule struct{}

func (HighValueRule) Name() string { return "HighValueOrder" }

func (HighValueRule) Evaluate(input RuleInput) RuleResult {
	total := input.Order.TotalAmount
	switch {
	case total >= 1000:
		return RuleResult{Score: 0.9, Triggered: true,
			Evidence: fmt.Sprintf("order total %.2f exceeds 1000", total)}
	case total >= 500:
		return RuleResult{Score: 0.6, Triggered: true,
			Evidence: fmt.Sprintf("order total %.2f exceeds 500", total)}
	}
	return RuleResult{}
}

// WeekendDeliveryRule scores combinations of weekend, evening and
// high-demand delivery windows.
type WeekendDeliveryRule struct{}

func (WeekendDeliveryRule) Name() string { return "WeekendPeakDelivery" }

func (WeekendDeliveryRule) Evaluate(input RuleInput) RuleResult {
	slot := input.Slot
	if slot == nil {
		return RuleResult{}
	}
	weekend := slot.IsWeekend()
	evening := slot.StartTime.Hour() >= 18
	highDemand := slot.UsageRatio() >= 0.8

	var score float64
	switch {
	case weekend && evening && highDemand:
		score = 0.8
	case weekend && evening:
		score = 0.6
	case weekend && highDemand:
		score = 0.5
	case weekend:
		score = 0.3
	case evening && highDemand:
		score = 0.4
	default:
		return RuleResult{}
	}
	return RuleResult{Score: score, Triggered: true,
		Evidence: fmt.Sprintf("delivery window weekend=%t evening=%t highDemand=%t", weekend, evening, highDemand)}
}

// PeakSlotRule flags orders landing on nearly exhausted slots.
type PeakSlotRule struct{}

func (PeakSlotRule) Name() string { return "PeakSlotUsage" }

func (PeakSlotRule) Evaluate(input RuleInput) RuleResult {
	slot := input.Slot
	if slot == nil {
		return RuleResult{}
	}
	ratio := slot.UsageRatio()
	switch {
	case ratio >= 0.9:
		return RuleResult{Score: 0.7, Triggered: true,
			Evidence: fmt.Sprintf("slot usage at %.0f%% of capacity", ratio*100)}
	case ratio >= 0.75:
		return RuleResult{Score: 0.4, Triggered: true,
			Evidence: fmt.Sprintf("slot usage at %.0f%% of capacity", ratio*100)}
	}
	return RuleResult{}
}

// NewAccountRule flags orders from freshly created accounts. Account age is
// measured at order creation so retrospective scans reproduce the original
// verdict.
type NewAccountRule struct{}

func (NewAccountRule) Name() string { return "NewAccount" }

func (NewAccountRule) Evaluate(input RuleInput) RuleResult {
	age := input.Order.CreatedAt.Sub(input.User.CreatedAt)
	switch {
	case age < time.Hour:
		return RuleResult{Score: 0.8, Triggered: true,
			Evidence: fmt.Sprintf("account created %s before ordering", age.Round(time.Minute))}
	case age < 24*time.Hour:
		return RuleResult{Score: 0.5, Triggered: true,
			Evidence: fmt.Sprintf("account created %s before ordering", age.Round(time.Minute))}
	case age < 72*time.Hour:
		return RuleResult{Score: 0.2, Triggered: true,
			Evidence: fmt.Sprintf("account created %s before ordering", age.Round(time.Hour))}
	}
	return RuleResult{}
}

// SlotSelectionRule scores anomalies around explicitly user-requested slots.
// Unlike the other rules its sub-scores are additive. Time references use the
// order's creation instant, not evaluation time, so a scan hours later scores
// the same order identically.
type SlotSelectionRule struct{}

func (SlotSelectionRule) Name() string { return "UserSelectedSlotAnomaly" }

func (SlotSelectionRule) Evaluate(input RuleInput) RuleResult {
	sel := input.Selection
	if sel == nil || !sel.WasRequested {
		return RuleResult{}
	}

	var score float64
	var reasons []string
	orderedAt := input.Order.CreatedAt

	if input.Slot != nil && input.Slot.StartTime.Sub(orderedAt) < 2*time.Hour {
		score += 0.4
		reasons = append(reasons, "short-notice delivery")
	}
	if input.Slot != nil {
		hour := input.Slot.StartTime.Hour()
		if hour >= 22 || hour < 6 {
			score += 0.3
			reasons = append(reasons, "late-night delivery")
		}
	}
	if input.Order.TotalAmount > 300 {
		score += 0.2
		reasons = append(reasons, "high-value with explicit slot selection")
	}
	if sel.FallbackOccurred {
		score += 0.1
		reasons = append(reasons, "requested slot unavailable, fallback used")
	}
	if orderedAt.Sub(input.User.CreatedAt) < 24*time.Hour {
		score += 0.3
		reasons = append(reasons, "new account with explicit slot selection")
	}

	if score > 1.0 {
		score = 1.0
	}
	if score <= 0.3 {
		return RuleResult{}
	}
	return RuleResult{Score: score, Triggered: true,
		Evidence: strings.Join(reasons, "; ")}
}

// DefaultRules returns the production rule set in evaluation order.
func DefaultRules() []RiskRule {
	return []RiskRule{
		HighValueRule{},
		WeekendDeliveryRule{},
		PeakSlotRule{},
		NewAccountRule{},
		SlotSelectionRule{},
	}
}
