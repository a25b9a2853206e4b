package subscription

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	ledger "mutuelle/internal/ledger/models"
	ledgerservice "mutuelle/internal/ledger/service"
	ledgerstore "mutuelle/internal/ledger/store"
	"mutuelle/internal/subscription/mocks"
	id "mutuelle/pkg/domain"
	dErrors "mutuelle/pkg/domain-errors"
	"mutuelle/pkg/platform/audit"
	"mutuelle/pkg/platform/audit/publisher"
	auditmemory "mutuelle/pkg/platform/audit/store/memory"
	"mutuelle/pkg/requestcontext"
)

func TestSweepExpiresLapsedMembers(t *testing.T) {
	ctx := context.Background()
	asOf := time.Date(2026, 1, 3, 8, 0, 0, 0, time.UTC)
	accounts := ledgerstore.NewInMemory()

	open := func(memberID id.MemberID, active bool, years ...int) {
		acct := &ledger.Account{MemberID: memberID, Active: active}
		for _, y := range years {
			acct.Payments = append(acct.Payments, ledger.Payment{Year: y, Amount: 15000})
		}
		require.NoError(t, accounts.Open(ctx, acct))
	}
	open(1, true, 2025)
	open(2, true, 2025, 2026)
	open(3, false)
	open(4, true, 2024)

	svc, err := ledgerservice.New(accounts, ledger.DefaultPlan())
	require.NoError(t, err)
	events := auditmemory.NewInMemoryStore()
	sweeper, err := NewSweeper(svc, WithSweepConcurrency(2), WithSweepAuditor(publisher.NewPublisher(events)))
	require.NoError(t, err)

	res, err := sweeper.Sweep(ctx, asOf)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Checked)
	assert.Equal(t, []id.MemberID{1, 4}, res.Expired)
	assert.Zero(t, res.Failed)

	for memberID, active := range map[id.MemberID]bool{1: false, 2: true, 3: false, 4: false} {
		b, err := svc.GetBalance(ctx, memberID)
		require.NoError(t, err)
		assert.Equal(t, active, b.Active, "member %d", memberID)
	}

	expired, err := events.ListByAction(ctx, audit.EventSubscriptionExpired)
	require.NoError(t, err)
	assert.Len(t, expired, 2)
	for _, e := range expired {
		assert.Equal(t, asOf, e.Timestamp)
	}

	again, err := sweeper.Sweep(ctx, asOf)
	require.NoError(t, err)
	assert.Empty(t, again.Expired, "second pass is a no-op")
}

func TestSweepSkipsBusyMembers(t *testing.T) {
	ctrl := gomock.NewController(t)
	expirer := mocks.NewMockExpirer(ctrl)
	asOf := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	expirer.EXPECT().MemberIDs(gomock.Any()).Return([]id.MemberID{1, 2}, nil)
	expirer.EXPECT().ExpireIfStale(gomock.Any(), id.MemberID(1), asOf).
		Return(false, dErrors.New(dErrors.CodeBusy, "member record is busy"))
	expirer.EXPECT().ExpireIfStale(gomock.Any(), id.MemberID(2), asOf).Return(true, nil)

	sweeper, err := NewSweeper(expirer)
	require.NoError(t, err)
	res, err := sweeper.Sweep(context.Background(), asOf)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, []id.MemberID{2}, res.Expired)
}

func TestSweepUsesOneInstantForTheBatch(t *testing.T) {
	ctrl := gomock.NewController(t)
	expirer := mocks.NewMockExpirer(ctrl)
	asOf := time.Date(2026, 12, 31, 23, 59, 59, 0, time.UTC)
	seen := func(ctx context.Context, memberID id.MemberID, at time.Time) (bool, error) {
		assert.Equal(t, asOf, requestcontext.Now(ctx), "member %d", memberID)
		return false, nil
	}

	expirer.EXPECT().MemberIDs(gomock.Any()).DoAndReturn(func(ctx context.Context) ([]id.MemberID, error) {
		assert.Equal(t, asOf, requestcontext.Now(ctx))
		return []id.MemberID{1, 2, 3}, nil
	})
	expirer.EXPECT().ExpireIfStale(gomock.Any(), gomock.Any(), asOf).DoAndReturn(seen).Times(3)

	sweeper, err := NewSweeper(expirer, WithSweepConcurrency(3))
	require.NoError(t, err)
	_, err = sweeper.Sweep(context.Background(), asOf)
	require.NoError(t, err)
}

func TestSweepStopsOnInfrastructureError(t *testing.T) {
	ctrl := gomock.NewController(t)
	expirer := mocks.NewMockExpirer(ctrl)
	boom := errors.New("connection reset")

	expirer.EXPECT().MemberIDs(gomock.Any()).Return([]id.MemberID{1}, nil)
	expirer.EXPECT().ExpireIfStale(gomock.Any(), id.MemberID(1), gomock.Any()).Return(false, boom)

	sweeper, err := NewSweeper(expirer)
	require.NoError(t, err)
	_, err = sweeper.Sweep(context.Background(), time.Now())
	assert.ErrorIs(t, err, boom)
}

func TestSweeperRunStopsOnCancel(t *testing.T) {
	ctrl := gomock.NewController(t)
	expirer := mocks.NewMockExpirer(ctrl)
	expirer.EXPECT().MemberIDs(gomock.Any()).Return(nil, nil).MinTimes(1)

	sweeper, err := NewSweeper(expirer, WithSweepInterval(time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, sweeper.Run(ctx), context.DeadlineExceeded)
}

func TestNewSweeperRequiresLedger(t *testing.T) {
	_, err := NewSweeper(nil)
	assert.EqualError(t, err, "ledger is required")
}
