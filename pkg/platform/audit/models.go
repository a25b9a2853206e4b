package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	id "mutuelle/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies and routing.
type EventCategory string

const (
	// CategoryCompliance covers changes to entitlements and the member
	// directory: treatments, payments, expiries, member creation.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers sign-in failures and access denials.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine reads such as card verification.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID         uuid.UUID
	Category   EventCategory
	Timestamp  time.Time
	OperatorID id.OperatorID
	MemberID   id.MemberID
	Action     string
	Decision   string
	Reason     string
	// Channel is the verification channel (nfc, qr, manual) when relevant.
	Channel string
	// Terminal describes the client that issued the request, derived from
	// its User-Agent.
	Terminal  string
	ClientIP  string
	RequestID string
}

type AuditEvent string

const (
	EventMemberVerified      AuditEvent = "member_verified"
	EventVerificationFailed  AuditEvent = "verification_failed"
	EventTreatmentRecorded   AuditEvent = "treatment_recorded"
	EventTreatmentRejected   AuditEvent = "treatment_rejected"
	EventPaymentApplied      AuditEvent = "payment_applied"
	EventSubscriptionExpired AuditEvent = "subscription_expired"
	EventMemberCreated       AuditEvent = "member_created"
	EventZoneCreated         AuditEvent = "zone_created"
	EventZoneDeleted         AuditEvent = "zone_deleted"
	EventStructureCreated    AuditEvent = "structure_created"
	EventStructureDeleted    AuditEvent = "structure_deleted"
	EventOperatorCreated     AuditEvent = "operator_created"
	EventOperatorSignedIn    AuditEvent = "operator_signed_in"
	EventSignInFailed        AuditEvent = "sign_in_failed"
	EventAccessDenied        AuditEvent = "access_denied"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventTreatmentRecorded:   CategoryCompliance,
	EventPaymentApplied:      CategoryCompliance,
	EventSubscriptionExpired: CategoryCompliance,
	EventMemberCreated:       CategoryCompliance,
	EventZoneCreated:         CategoryCompliance,
	EventZoneDeleted:         CategoryCompliance,
	EventStructureCreated:    CategoryCompliance,
	EventStructureDeleted:    CategoryCompliance,
	EventOperatorCreated:     CategoryCompliance,

	EventSignInFailed:      CategorySecurity,
	EventAccessDenied:      CategorySecurity,
	EventTreatmentRejected: CategorySecurity,

	EventMemberVerified:     CategoryOperations,
	EventVerificationFailed: CategoryOperations,
	EventOperatorSignedIn:   CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists events. Implementations must be safe for concurrent use.
type Store interface {
	Append(ctx context.Context, event Event) error
}
