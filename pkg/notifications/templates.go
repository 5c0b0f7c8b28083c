package notifications

import (
	"strings"
	"time"
)

// Template is a title/body pair with {key} placeholders.
type Template struct {
	Title string
	Body  string
}

// User-facing template keys follow order lifecycle transitions.
var userTemplates = map[string]Template{
	"order_created": {
		Title: "Order received",
		Body:  "Your order {orderId} for {total} has been received. {slotInfo}",
	},
	"order_confirmed": {
		Title: "Order confirmed",
		Body:  "Your order {orderId} is confirmed and being prepared.",
	},
	"order_shipped": {
		Title: "Order on its way",
		Body:  "Your order {orderId} is out for delivery.",
	},
	"order_delivered": {
		Title: "Order delivered",
		Body:  "Your order {orderId} has been delivered. Enjoy!",
	},
	"order_cancelled": {
		Title: "Order cancelled",
		Body:  "Your order {orderId} was cancelled. Reason: {reason}",
	},
	"order_refunded": {
		Title: "Refund processed",
		Body:  "Your order {orderId} was refunded ({total}). Reason: {reason}",
	},
}

var adminTemplates = map[string]Template{
	"high_risk_order": {
		Title: "High risk order {orderId}",
		Body:  "Risk type {riskType} scored {riskScore}.\n{details}",
	},
	"refund_processed": {
		Title: "Refund on order {orderId}",
		Body:  "Order {orderId} ({total}) was refunded. Reason: {reason}",
	},
	"slot_capacity_warning": {
		Title: "Delivery slot near capacity",
		Body:  "Slot {slotId} starting {startTime} is at {usagePercentage}% capacity.",
	},
	"inventory_low": {
		Title: "Low stock for {skuId}",
		Body:  "Product {skuId} has {stock} units left.",
	},
}

// Render substitutes {key} placeholders with values from data. Unknown
// placeholders are left as-is so a missing value is visible downstream
// instead of silently vanishing.
func Render(tpl Template, data map[string]string) (title, body string) {
	title = tpl.Title
	body = tpl.Body
	for key, value := range data {
		placeholder := "{" + key + "}"
		title = strings.ReplaceAll(title, placeholder, value)
		body = strings.ReplaceAll(body, placeholder, value)
	}
	return title, body
}

// UserTemplate looks up a user-facing template by key.
func UserTemplate(key string) (Template, bool) {
	tpl, ok := userTemplates[key]
	return tpl, ok
}

// AdminTemplate looks up an admin-facing template by key.
func AdminTemplate(key string) (Template, bool) {
	tpl, ok := adminTemplates[key]
	return tpl, ok
}

// SlotOutcomeLine phrases how the delivery slot was resolved, for inclusion
// in the order-created notification.
func SlotOutcomeLine(wasRequested, fulfilled bool, fallbackReason string, slotStart *time.Time) string {
	switch {
	case slotStart == nil:
		return "No delivery slot is currently available; we will assign one shortly."
	case wasRequested && fulfilled:
		return "Delivery is booked for your chosen slot starting " + slotStart.Format(time.RFC1123) + "."
	case wasRequested:
		line := "Your requested slot was unavailable"
		if fallbackReason != "" {
			line += " (" + fallbackReason + ")"
		}
		return line + "; delivery is now booked for " + slotStart.Format(time.RFC1123) + "."
	default:
		return "Delivery is booked for " + slotStart.Format(time.RFC1123) + "."
	}
}
