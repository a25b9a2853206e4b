package models

import (
	"time"

	id "mutuelle/pkg/domain"
	dErrors "mutuelle/pkg/domain-errors"
)

// Account is a member's entitlement state: the subscription flag, the two
// quota counters and the append-only payment and treatment histories.
//
// Invariants (checked by CheckInvariants after every mutation):
//   - both counters are >= 0
//   - histories only grow
type Account struct {
	MemberID                  id.MemberID
	Active                    bool
	HospitalizationsRemaining int
	AmbulatoryRemaining       int
	Payments                  []Payment
	Treatments                []Treatment
	CreatedAt                 time.Time
	UpdatedAt                 time.Time
}

// Payment is immutable once recorded.
type Payment struct {
	Year      int       `json:"year"`
	Amount    int64     `json:"amount"`
	PaidAt    time.Time `json:"paid_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Treatment is immutable once recorded. Appending one is the only way a
// counter decreases.
type Treatment struct {
	ID          id.TreatmentID   `json:"id"`
	MemberID    id.MemberID      `json:"member_id"`
	Kind        id.TreatmentKind `json:"kind"`
	Date        time.Time        `json:"date"`
	Description string           `json:"description"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Balance is the read-side snapshot returned to callers.
type Balance struct {
	MemberID                  id.MemberID `json:"member_id"`
	Active                    bool        `json:"active"`
	HospitalizationsRemaining int         `json:"hospitalizations_remaining"`
	AmbulatoryRemaining       int         `json:"ambulatory_remaining"`
}

// NewAccount opens an account with no payment: inactive, counters at the
// plan caps so a first top-up payment activates a usable forfait.
func NewAccount(memberID id.MemberID, plan Plan, now time.Time) (*Account, error) {
	if memberID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "member id is required")
	}
	return &Account{
		MemberID:                  memberID,
		HospitalizationsRemaining: plan.HospitalizationCap,
		AmbulatoryRemaining:       plan.AmbulatoryCap,
		CreatedAt:                 now,
		UpdatedAt:                 now,
	}, nil
}

func (a *Account) Balance() Balance {
	return Balance{
		MemberID:                  a.MemberID,
		Active:                    a.Active,
		HospitalizationsRemaining: a.HospitalizationsRemaining,
		AmbulatoryRemaining:       a.AmbulatoryRemaining,
	}
}

// Remaining returns the counter that kind draws from.
func (a *Account) Remaining(kind id.TreatmentKind) int {
	switch kind {
	case id.TreatmentHospitalization:
		return a.HospitalizationsRemaining
	case id.TreatmentAmbulatory:
		return a.AmbulatoryRemaining
	}
	dErrors.Fault("account %s: unknown treatment kind %q", a.MemberID, kind)
	return 0
}

// CanConsume reports why a treatment of kind cannot be covered, or nil.
// Inactivity is checked before the counter, so an expired forfait with
// leftover quota still reads as subscription_inactive.
func (a *Account) CanConsume(kind id.TreatmentKind) error {
	if !a.Active {
		return dErrors.New(dErrors.CodeSubscriptionInactive, "member subscription is inactive")
	}
	if a.Remaining(kind) <= 0 {
		return dErrors.Newf(dErrors.CodeQuotaExhausted, "no %s treatments remaining", kind)
	}
	return nil
}

// Consume decrements the counter for t.Kind and appends t. Callers must have
// checked CanConsume on the same state.
func (a *Account) Consume(t Treatment, now time.Time) {
	switch t.Kind {
	case id.TreatmentHospitalization:
		a.HospitalizationsRemaining--
	case id.TreatmentAmbulatory:
		a.AmbulatoryRemaining--
	default:
		dErrors.Fault("account %s: unknown treatment kind %q", a.MemberID, t.Kind)
	}
	a.Treatments = append(a.Treatments, t)
	a.UpdatedAt = now
	a.CheckInvariants()
}

// Credit appends p and activates the forfait. Under RenewalReset both
// counters return to the plan caps; under RenewalTopUp they are untouched.
func (a *Account) Credit(p Payment, policy RenewalPolicy, plan Plan, now time.Time) {
	a.Payments = append(a.Payments, p)
	a.Active = true
	if policy == RenewalReset {
		a.HospitalizationsRemaining = plan.HospitalizationCap
		a.AmbulatoryRemaining = plan.AmbulatoryCap
	}
	a.UpdatedAt = now
	a.CheckInvariants()
}

// Covers reports whether some payment covers the given plan year.
func (a *Account) Covers(year int) bool {
	for _, p := range a.Payments {
		if p.Year == year {
			return true
		}
	}
	return false
}

// Expire clears the active flag when no payment covers year. It reports
// whether anything changed.
func (a *Account) Expire(year int, now time.Time) bool {
	if !a.Active || a.Covers(year) {
		return false
	}
	a.Active = false
	a.UpdatedAt = now
	return true
}

// CheckInvariants aborts through dErrors.Fault if the account is corrupt.
func (a *Account) CheckInvariants() {
	if a.HospitalizationsRemaining < 0 || a.AmbulatoryRemaining < 0 {
		dErrors.Fault("account %s: negative balance (hospitalizations=%d ambulatory=%d)",
			a.MemberID, a.HospitalizationsRemaining, a.AmbulatoryRemaining)
	}
}

// Clone returns a deep copy so committed state is never shared with writers.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	c.Payments = append([]Payment(nil), a.Payments...)
	c.Treatments = append([]Treatment(nil), a.Treatments...)
	return &c
}
