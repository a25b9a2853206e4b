package models

import "time"

// Month selects one calendar month of treatment history.
type Month struct {
	Year  int
	Month time.Month
}

func (m Month) IsZero() bool { return m.Year == 0 }

// Contains reports whether t falls in m in loc.
func (m Month) Contains(t time.Time, loc *time.Location) bool {
	lt := t.In(loc)
	return lt.Year() == m.Year && lt.Month() == m.Month
}

// HistoryFilter narrows a member history read.
type HistoryFilter struct {
	Month        Month // zero means every month
	LastPayments int   // zero means every payment
}

// History is a read-only view of an account's records, newest last.
type History struct {
	Balance    Balance     `json:"balance"`
	Payments   []Payment   `json:"payments"`
	Treatments []Treatment `json:"treatments"`
}
