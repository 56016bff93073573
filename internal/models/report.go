package models

import "time"

// Report kinds, one per external text-generation call.
const (
	ReportKindVisitSummary      = "visit_summary"
	ReportKindInventoryForecast = "inventory_forecast"
	ReportKindHealthTrend       = "health_trend"
)

type Report struct {
	ID         string    `db:"id"`
	Kind       string    `db:"kind"`
	PeriodFrom time.Time `db:"period_from"`
	PeriodTo   time.Time `db:"period_to"`
	Content    string    `db:"content"`
	Model      string    `db:"model"`
	CreatedBy  string    `db:"created_by"`
	CreatedAt  time.Time `db:"created_at"`
}

// IsValidReportKind reports whether kind names a supported generation call.
func IsValidReportKind(kind string) bool {
	switch kind {
	case ReportKindVisitSummary, ReportKindInventoryForecast, ReportKindHealthTrend:
		return true
	}
	return false
}
