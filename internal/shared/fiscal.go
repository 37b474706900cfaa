package shared

import (
	"errors"
	"time"
)

// Fiscal year statuses reused outside the masterdata module.
const (
	FiscalYearStatusOpen   = "open"
	FiscalYearStatusClosed = "closed"
)

// FiscalYear is the posting window documents must fall into.
type FiscalYear struct {
	ID        int64
	CompanyID int64
	Label     string
	StartDate time.Time
	EndDate   time.Time
	Status    string
}

// ErrDateOutsideFiscalYear indicates a document date outside the active window.
var ErrDateOutsideFiscalYear = errors.New("date outside fiscal year window")

// Contains reports whether d falls within the fiscal year, inclusive on both ends.
// Only the calendar date matters, not the time of day.
func (fy FiscalYear) Contains(d time.Time) bool {
	day := d.Truncate(24 * time.Hour)
	return !day.Before(fy.StartDate.Truncate(24*time.Hour)) && !day.After(fy.EndDate.Truncate(24*time.Hour))
}

// ValidateDocumentDate checks a document date against the fiscal year window.
func (fy FiscalYear) ValidateDocumentDate(d time.Time) error {
	if d.IsZero() {
		return InvalidArgumentf("date", "required")
	}
	if !fy.Contains(d) {
		return ErrDateOutsideFiscalYear
	}
	return nil
}
