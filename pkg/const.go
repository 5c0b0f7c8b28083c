package pkg

const (
	HeaderTraceId   string = "X-Trace-Id"
	HeaderRequestId string = "X-Request-Id"
)

const (
	TraceId string = "trace_id"
	OrderId string = "order_id"
	SlotId  string = "slot_id"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

// orderTransitions describes the forward lifecycle. Cancelled and refunded are
// terminal and reachable from any non-terminal state.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusConfirmed, OrderStatusCancelled, OrderStatusRefunded},
	OrderStatusConfirmed:  {OrderStatusProcessing, OrderStatusCancelled, OrderStatusRefunded},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled, OrderStatusRefunded},
	OrderStatusShipped:    {OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded},
	OrderStatusDelivered:  {},
	OrderStatusCancelled:  {},
	OrderStatusRefunded:   {},
}

// IsTerminal reports whether no further status change is allowed.
func (s OrderStatus) IsTerminal() bool {
	return len(orderTransitions[s]) == 0
}

// CanTransitionTo reports whether the lifecycle permits moving to next.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type RiskCategory string

const (
	RiskCategoryLow    RiskCategory = "low_risk"
	RiskCategoryMedium RiskCategory = "medium_risk"
	RiskCategoryHigh   RiskCategory = "high_risk"
)

type RiskAlertStatus string

const (
	RiskAlertPending  RiskAlertStatus = "pending"
	RiskAlertReviewed RiskAlertStatus = "reviewed"
	RiskAlertCleared  RiskAlertStatus = "cleared"
	RiskAlertFlagged  RiskAlertStatus = "flagged"
)
