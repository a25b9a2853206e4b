package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"mutuelle/internal/ledger/models"
	id "mutuelle/pkg/domain"
	"mutuelle/pkg/platform/sentinel"
)

const (
	pgLockNotAvailable = "55P03"
	pgUniqueViolation  = "23505"
)

// PostgresStore keeps accounts in member_accounts with their histories in
// member_payments and member_treatments. Writers serialize on the account
// row (SELECT ... FOR UPDATE); readers use a repeatable-read snapshot and
// never wait for writers.
type PostgresStore struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

type PostgresOption func(*PostgresStore)

func WithPostgresLockTimeout(d time.Duration) PostgresOption {
	return func(s *PostgresStore) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

func NewPostgres(pool *pgxpool.Pool, opts ...PostgresOption) *PostgresStore {
	s := &PostgresStore{pool: pool, lockTimeout: DefaultLockTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// lockTimeoutStatement rounds d up to whole milliseconds. Postgres reads
// '0ms' as no timeout, so the result is never below 1ms.
func lockTimeoutStatement(d time.Duration) string {
	ms := (d + time.Millisecond - 1).Milliseconds()
	return fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", max(ms, 1))
}

func (s *PostgresStore) Open(ctx context.Context, acct *models.Account) error {
	const query = `
INSERT INTO member_accounts (member_id, active, hospitalizations_remaining, ambulatory_remaining, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (member_id) DO NOTHING`
	tag, err := s.pool.Exec(ctx, query,
		int64(acct.MemberID), acct.Active, acct.HospitalizationsRemaining, acct.AmbulatoryRemaining,
		acct.CreatedAt, acct.UpdatedAt)
	if err != nil {
		return fmt.Errorf("open account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account %s: %w", acct.MemberID, sentinel.ErrConflict)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, memberID id.MemberID) (*models.Account, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("begin read: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	acct, err := loadAccount(ctx, tx, memberID, false)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit read: %w", err)
	}
	return acct, nil
}

// Execute locks the account row, applies fn, then writes the new counters
// and any records fn appended. Nothing is written if fn fails.
func (s *PostgresStore) Execute(ctx context.Context, memberID id.MemberID, fn func(acct *models.Account) error) (*models.Account, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin write: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, lockTimeoutStatement(s.lockTimeout)); err != nil {
		return nil, fmt.Errorf("set lock timeout: %w", err)
	}

	acct, err := loadAccount(ctx, tx, memberID, true)
	if err != nil {
		return nil, err
	}
	paid, treated := len(acct.Payments), len(acct.Treatments)

	if err := fn(acct); err != nil {
		return nil, err
	}
	acct.CheckInvariants()

	const update = `
UPDATE member_accounts
SET active = $2, hospitalizations_remaining = $3, ambulatory_remaining = $4, updated_at = $5
WHERE member_id = $1`
	if _, err := tx.Exec(ctx, update,
		int64(memberID), acct.Active, acct.HospitalizationsRemaining, acct.AmbulatoryRemaining, acct.UpdatedAt); err != nil {
		return nil, fmt.Errorf("update account: %w", err)
	}

	batch := &pgx.Batch{}
	for i, p := range acct.Payments[paid:] {
		batch.Queue(`
INSERT INTO member_payments (member_id, seq, year, amount, paid_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			int64(memberID), paid+i, p.Year, p.Amount, p.PaidAt, p.CreatedAt, p.UpdatedAt)
	}
	for i, t := range acct.Treatments[treated:] {
		batch.Queue(`
INSERT INTO member_treatments (id, member_id, seq, kind, treated_on, description, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			uuid.UUID(t.ID), int64(memberID), treated+i, string(t.Kind), t.Date, t.Description, t.CreatedAt, t.UpdatedAt)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			if isCode(err, pgUniqueViolation) {
				return nil, fmt.Errorf("append records: %w", sentinel.ErrConflict)
			}
			return nil, fmt.Errorf("append records: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit write: %w", err)
	}
	return acct, nil
}

func (s *PostgresStore) ListMemberIDs(ctx context.Context) ([]id.MemberID, error) {
	rows, err := s.pool.Query(ctx, `SELECT member_id FROM member_accounts ORDER BY member_id`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	ids, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (id.MemberID, error) {
		var v int64
		err := row.Scan(&v)
		return id.MemberID(v), err
	})
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return ids, nil
}

func loadAccount(ctx context.Context, tx pgx.Tx, memberID id.MemberID, forUpdate bool) (*models.Account, error) {
	query := `
SELECT active, hospitalizations_remaining, ambulatory_remaining, created_at, updated_at
FROM member_accounts WHERE member_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	acct := &models.Account{MemberID: memberID}
	err := tx.QueryRow(ctx, query, int64(memberID)).Scan(
		&acct.Active, &acct.HospitalizationsRemaining, &acct.AmbulatoryRemaining, &acct.CreatedAt, &acct.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("account %s: %w", memberID, sentinel.ErrNotFound)
		}
		if isCode(err, pgLockNotAvailable) {
			return nil, fmt.Errorf("account %s: %w", memberID, sentinel.ErrLockTimeout)
		}
		return nil, fmt.Errorf("load account: %w", err)
	}

	payRows, err := tx.Query(ctx, `
SELECT year, amount, paid_at, created_at, updated_at
FROM member_payments WHERE member_id = $1 ORDER BY seq`, int64(memberID))
	if err != nil {
		return nil, fmt.Errorf("load payments: %w", err)
	}
	acct.Payments, err = pgx.CollectRows(payRows, func(row pgx.CollectableRow) (models.Payment, error) {
		var p models.Payment
		err := row.Scan(&p.Year, &p.Amount, &p.PaidAt, &p.CreatedAt, &p.UpdatedAt)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("load payments: %w", err)
	}

	treatRows, err := tx.Query(ctx, `
SELECT id, kind, treated_on, description, created_at, updated_at
FROM member_treatments WHERE member_id = $1 ORDER BY seq`, int64(memberID))
	if err != nil {
		return nil, fmt.Errorf("load treatments: %w", err)
	}
	acct.Treatments, err = pgx.CollectRows(treatRows, func(row pgx.CollectableRow) (models.Treatment, error) {
		var (
			t    models.Treatment
			tid  uuid.UUID
			kind string
		)
		err := row.Scan(&tid, &kind, &t.Date, &t.Description, &t.CreatedAt, &t.UpdatedAt)
		t.ID = id.TreatmentID(tid)
		t.MemberID = memberID
		t.Kind = id.TreatmentKind(kind)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("load treatments: %w", err)
	}
	return acct, nil
}

func isCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
