package models

import (
	"strings"
	"time"

	dErrors "mutuelle/pkg/domain-errors"
)

// RenewalPolicy says what a payment does to the quota counters.
type RenewalPolicy string

const (
	// RenewalReset starts a new period: both counters go back to the plan caps.
	RenewalReset RenewalPolicy = "reset"
	// RenewalTopUp records the payment and reactivates without touching quotas.
	RenewalTopUp RenewalPolicy = "top_up"
)

func (p RenewalPolicy) IsValid() bool {
	return p == RenewalReset || p == RenewalTopUp
}

// ParseRenewalPolicy defaults an empty value to RenewalReset.
func ParseRenewalPolicy(s string) (RenewalPolicy, error) {
	if s == "" {
		return RenewalReset, nil
	}
	p := RenewalPolicy(s)
	if !p.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "renewal policy must be 'reset' or 'top_up'")
	}
	return p, nil
}

// Plan is the forfait configuration shared by every member.
//
// Coverage is by calendar year in Location: a payment for year Y covers
// [Y-01-01, Y+1-01-01) local time.
type Plan struct {
	HospitalizationCap int
	AmbulatoryCap      int
	Location           *time.Location
}

const (
	DefaultHospitalizationCap = 3
	DefaultAmbulatoryCap      = 5
)

func DefaultPlan() Plan {
	return Plan{
		HospitalizationCap: DefaultHospitalizationCap,
		AmbulatoryCap:      DefaultAmbulatoryCap,
		Location:           time.UTC,
	}
}

func (p Plan) Validate() error {
	if p.HospitalizationCap < 0 || p.AmbulatoryCap < 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "plan caps must be non-negative")
	}
	if p.Location == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "plan location is required")
	}
	return nil
}

// PeriodOf returns the plan year t falls in.
func (p Plan) PeriodOf(t time.Time) int {
	return t.In(p.loc()).Year()
}

// LocalDay truncates t to midnight of its local day.
func (p Plan) LocalDay(t time.Time) time.Time {
	lt := t.In(p.loc())
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, p.loc())
}

// ParseDay reads a calendar day (2006-01-02) in the plan zone or an RFC 3339
// timestamp.
func (p Plan) ParseDay(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, dErrors.New(dErrors.CodeInvalidInput, "treatment date is required")
	}
	if t, err := time.ParseInLocation(time.DateOnly, s, p.loc()); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, dErrors.New(dErrors.CodeInvalidInput, "treatment date must be YYYY-MM-DD or RFC 3339")
	}
	return t, nil
}

func (p Plan) loc() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}
