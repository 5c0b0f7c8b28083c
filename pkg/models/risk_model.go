package models

import (
	"time"

	"github.com/freshbasket/fulfillment-core/pkg"
	"github.com/google/uuid"
)

// RiskAlert maps to table `risk_alerts`.
// At most one alert is created per evaluation pass of an order, and none when
// the aggregate score is zero.
type RiskAlert struct {
	ID         uuid.UUID
	OrderID    uuid.UUID
	RiskType   string  // stored category band: low_risk / medium_risk / high_risk
	RiskScore  float64 // maximum triggered rule score, in [0,1]
	Details    string  // one line per triggered rule, prefixed with the rule name
	Status     pkg.RiskAlertStatus
	ReviewedBy *string
	ReviewedAt *time.Time
	CreatedAt  time.Time
}

// BandForScore maps an aggregate score to its category band.
func BandForScore(score float64) pkg.RiskCategory {
	switch {
	case score >= 0.9:
		return pkg.RiskCategoryHigh
	case score >= 0.7:
		return pkg.RiskCategoryMedium
	default:
		return pkg.RiskCategoryLow
	}
}
