package models

import (
	"time"

	id "mutuelle/pkg/domain"
)

// ZoneSummary aggregates a zone for its administrator's overview.
type ZoneSummary struct {
	Zone          Zone             `json:"zone"`
	StructureIDs  []id.StructureID `json:"structure_ids"`
	MemberIDs     []id.MemberID    `json:"member_ids"`
	ActiveMembers int              `json:"active_members"`
	// TreatmentsThisMonth counts treatments dated in the current plan month.
	TreatmentsThisMonth int `json:"treatments_this_month"`
}

// PaymentLine is one row of the payments report: the payment joined with
// the member's placement and current balance.
type PaymentLine struct {
	MemberID                  id.MemberID `json:"member_id"`
	MemberName                string      `json:"member_name"`
	ZoneID                    id.ZoneID   `json:"zone_id"`
	ZoneName                  string      `json:"zone_name"`
	Active                    bool        `json:"active"`
	HospitalizationsRemaining int         `json:"hospitalizations_remaining"`
	AmbulatoryRemaining       int         `json:"ambulatory_remaining"`
	Year                      int         `json:"year"`
	Amount                    int64       `json:"amount"`
	PaidAt                    time.Time   `json:"paid_at"`
}

// MemberFilter narrows member listings. Zero fields do not filter.
type MemberFilter struct {
	ZoneID      id.ZoneID
	StructureID id.StructureID
}
