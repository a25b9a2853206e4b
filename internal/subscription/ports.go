package subscription

import (
	"context"
	"time"

	"mutuelle/internal/access"
	ledger "mutuelle/internal/ledger/models"
	id "mutuelle/pkg/domain"
	"mutuelle/pkg/platform/audit"
)

type Authorizer interface {
	Check(ctx context.Context, subject access.Subject, action access.Action, ref access.Ref) (access.Target, error)
}

// Ledger is the write side used by payments.
type Ledger interface {
	Plan() ledger.Plan
	Credit(ctx context.Context, memberID id.MemberID, payment ledger.Payment, policy ledger.RenewalPolicy) (*ledger.Balance, error)
}

type Auditor interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Expirer is the housekeeping side of the ledger.
type Expirer interface {
	MemberIDs(ctx context.Context) ([]id.MemberID, error)
	ExpireIfStale(ctx context.Context, memberID id.MemberID, asOf time.Time) (bool, error)
}
