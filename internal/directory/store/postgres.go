package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"mutuelle/internal/access"
	"mutuelle/internal/directory/models"
	id "mutuelle/pkg/domain"
	"mutuelle/pkg/platform/sentinel"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// PostgresStore persists the directory in the zones, structures, operators
// and members tables. Referential integrity is enforced by the schema:
// inserting with a missing parent yields ErrNotFound, deleting a referenced
// row yields ErrConflict.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) CreateZone(ctx context.Context, z *models.Zone) error {
	const query = `
INSERT INTO zones (name, responsible_operator_id, created_at, updated_at)
VALUES ($1, $2, $3, $4)
RETURNING id`
	var zoneID int64
	err := s.pool.QueryRow(ctx, query, z.Name, nullable(int64(z.ResponsibleID)), z.CreatedAt, z.UpdatedAt).Scan(&zoneID)
	if err != nil {
		return insertErr("zone", err)
	}
	z.ID = id.ZoneID(zoneID)
	return nil
}

func (s *PostgresStore) GetZone(ctx context.Context, zoneID id.ZoneID) (*models.Zone, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, name, responsible_operator_id, created_at, updated_at
FROM zones WHERE id = $1`, int64(zoneID))
	if err != nil {
		return nil, fmt.Errorf("get zone: %w", err)
	}
	z, err := pgx.CollectExactlyOneRow(rows, scanZone)
	if err != nil {
		return nil, notFound(fmt.Sprintf("zone %s", zoneID), err)
	}
	return z, nil
}

func (s *PostgresStore) ListZones(ctx context.Context) ([]*models.Zone, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, name, responsible_operator_id, created_at, updated_at
FROM zones ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list zones: %w", err)
	}
	zones, err := pgx.CollectRows(rows, scanZone)
	if err != nil {
		return nil, fmt.Errorf("list zones: %w", err)
	}
	return zones, nil
}

func (s *PostgresStore) DeleteZone(ctx context.Context, zoneID id.ZoneID) error {
	return s.deleteByID(ctx, "zones", "zone", int64(zoneID))
}

func (s *PostgresStore) CreateStructure(ctx context.Context, st *models.Structure) error {
	const query = `
INSERT INTO structures (zone_id, name, created_at, updated_at)
VALUES ($1, $2, $3, $4)
RETURNING id`
	var structureID int64
	if err := s.pool.QueryRow(ctx, query, int64(st.ZoneID), st.Name, st.CreatedAt, st.UpdatedAt).Scan(&structureID); err != nil {
		return insertErr("structure", err)
	}
	st.ID = id.StructureID(structureID)
	return nil
}

func (s *PostgresStore) GetStructure(ctx context.Context, structureID id.StructureID) (*models.Structure, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, zone_id, name, created_at, updated_at
FROM structures WHERE id = $1`, int64(structureID))
	if err != nil {
		return nil, fmt.Errorf("get structure: %w", err)
	}
	st, err := pgx.CollectExactlyOneRow(rows, scanStructure)
	if err != nil {
		return nil, notFound(fmt.Sprintf("structure %s", structureID), err)
	}
	return st, nil
}

func (s *PostgresStore) ListStructures(ctx context.Context, zoneID id.ZoneID) ([]*models.Structure, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, zone_id, name, created_at, updated_at
FROM structures WHERE ($1::bigint = 0 OR zone_id = $1) ORDER BY id`, int64(zoneID))
	if err != nil {
		return nil, fmt.Errorf("list structures: %w", err)
	}
	structures, err := pgx.CollectRows(rows, scanStructure)
	if err != nil {
		return nil, fmt.Errorf("list structures: %w", err)
	}
	return structures, nil
}

func (s *PostgresStore) DeleteStructure(ctx context.Context, structureID id.StructureID) error {
	return s.deleteByID(ctx, "structures", "structure", int64(structureID))
}

func (s *PostgresStore) CreateOperator(ctx context.Context, o *models.Operator) error {
	const query = `
INSERT INTO operators (name, email, password_hash, role, zone_id, structure_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id`
	zoneID, structureID := access.ScopeIDs(o.Scope)
	var operatorID int64
	err := s.pool.QueryRow(ctx, query,
		o.Name, o.Email, o.PasswordHash, string(o.Role()),
		nullable(int64(zoneID)), nullable(int64(structureID)), o.CreatedAt, o.UpdatedAt).Scan(&operatorID)
	if err != nil {
		return insertErr("operator", err)
	}
	o.ID = id.OperatorID(operatorID)
	return nil
}

const operatorColumns = `id, name, email, password_hash, role, zone_id, structure_id, created_at, updated_at`

func (s *PostgresStore) GetOperator(ctx context.Context, operatorID id.OperatorID) (*models.Operator, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+operatorColumns+` FROM operators WHERE id = $1`, int64(operatorID))
	if err != nil {
		return nil, fmt.Errorf("get operator: %w", err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOperator)
	if err != nil {
		return nil, notFound(fmt.Sprintf("operator %s", operatorID), err)
	}
	return o, nil
}

func (s *PostgresStore) FindOperatorByEmail(ctx context.Context, email string) (*models.Operator, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+operatorColumns+` FROM operators WHERE email = $1`, email)
	if err != nil {
		return nil, fmt.Errorf("find operator: %w", err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOperator)
	if err != nil {
		return nil, notFound(fmt.Sprintf("operator %q", email), err)
	}
	return o, nil
}

func (s *PostgresStore) ListOperators(ctx context.Context) ([]*models.Operator, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+operatorColumns+` FROM operators ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list operators: %w", err)
	}
	operators, err := pgx.CollectRows(rows, scanOperator)
	if err != nil {
		return nil, fmt.Errorf("list operators: %w", err)
	}
	return operators, nil
}

func (s *PostgresStore) CountOperators(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM operators`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count operators: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) CreateMember(ctx context.Context, m *models.Member) error {
	const query = `
INSERT INTO members (name, zone_id, structure_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id`
	var memberID int64
	err := s.pool.QueryRow(ctx, query,
		m.Name, int64(m.ZoneID), nullable(int64(m.StructureID)), m.CreatedAt, m.UpdatedAt).Scan(&memberID)
	if err != nil {
		return insertErr("member", err)
	}
	m.ID = id.MemberID(memberID)
	return nil
}

func (s *PostgresStore) GetMember(ctx context.Context, memberID id.MemberID) (*models.Member, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, name, zone_id, structure_id, created_at, updated_at
FROM members WHERE id = $1`, int64(memberID))
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	m, err := pgx.CollectExactlyOneRow(rows, scanMember)
	if err != nil {
		return nil, notFound(fmt.Sprintf("member %s", memberID), err)
	}
	return m, nil
}

func (s *PostgresStore) ListMembers(ctx context.Context, filter models.MemberFilter) ([]*models.Member, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, name, zone_id, structure_id, created_at, updated_at
FROM members
WHERE ($1::bigint = 0 OR zone_id = $1) AND ($2::bigint = 0 OR structure_id = $2)
ORDER BY id`, int64(filter.ZoneID), int64(filter.StructureID))
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	members, err := pgx.CollectRows(rows, scanMember)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

// DeleteMember removes a member whose account could not be opened. Ledger
// rows reference members, so this fails with ErrConflict once an account
// exists.
func (s *PostgresStore) DeleteMember(ctx context.Context, memberID id.MemberID) error {
	return s.deleteByID(ctx, "members", "member", int64(memberID))
}

// table is one of a fixed set of names, never caller input.
func (s *PostgresStore) deleteByID(ctx context.Context, table, kind string, rowID int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM `+table+` WHERE id = $1`, rowID)
	if err != nil {
		if isCode(err, pgForeignKeyViolation) {
			return fmt.Errorf("%s %d is still referenced: %w", kind, rowID, sentinel.ErrConflict)
		}
		return fmt.Errorf("delete %s: %w", kind, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %d: %w", kind, rowID, sentinel.ErrNotFound)
	}
	return nil
}

func scanZone(row pgx.CollectableRow) (*models.Zone, error) {
	var (
		z           models.Zone
		zoneID      int64
		responsible *int64
	)
	if err := row.Scan(&zoneID, &z.Name, &responsible, &z.CreatedAt, &z.UpdatedAt); err != nil {
		return nil, err
	}
	z.ID = id.ZoneID(zoneID)
	if responsible != nil {
		z.ResponsibleID = id.OperatorID(*responsible)
	}
	return &z, nil
}

func scanStructure(row pgx.CollectableRow) (*models.Structure, error) {
	var (
		st                  models.Structure
		structureID, zoneID int64
	)
	if err := row.Scan(&structureID, &zoneID, &st.Name, &st.CreatedAt, &st.UpdatedAt); err != nil {
		return nil, err
	}
	st.ID = id.StructureID(structureID)
	st.ZoneID = id.ZoneID(zoneID)
	return &st, nil
}

func scanOperator(row pgx.CollectableRow) (*models.Operator, error) {
	var (
		o                   models.Operator
		operatorID          int64
		role                string
		zoneID, structureID *int64
		createdAt, updated  time.Time
	)
	if err := row.Scan(&operatorID, &o.Name, &o.Email, &o.PasswordHash, &role,
		&zoneID, &structureID, &createdAt, &updated); err != nil {
		return nil, err
	}
	parsed, err := access.ParseRole(role)
	if err != nil {
		return nil, fmt.Errorf("operator %d: %w", operatorID, err)
	}
	scope, err := access.NewScope(parsed, id.ZoneID(deref(zoneID)), id.StructureID(deref(structureID)))
	if err != nil {
		return nil, fmt.Errorf("operator %d: %w", operatorID, err)
	}
	o.ID = id.OperatorID(operatorID)
	o.Scope = scope
	o.CreatedAt, o.UpdatedAt = createdAt, updated
	return &o, nil
}

func scanMember(row pgx.CollectableRow) (*models.Member, error) {
	var (
		m                models.Member
		memberID, zoneID int64
		structureID      *int64
	)
	if err := row.Scan(&memberID, &m.Name, &zoneID, &structureID, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.ID = id.MemberID(memberID)
	m.ZoneID = id.ZoneID(zoneID)
	m.StructureID = id.StructureID(deref(structureID))
	return &m, nil
}

func insertErr(kind string, err error) error {
	switch {
	case isCode(err, pgUniqueViolation):
		return fmt.Errorf("%s already exists: %w", kind, sentinel.ErrConflict)
	case isCode(err, pgForeignKeyViolation):
		return fmt.Errorf("%s references a missing parent: %w", kind, sentinel.ErrNotFound)
	}
	return fmt.Errorf("create %s: %w", kind, err)
}

func notFound(what string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, sentinel.ErrNotFound)
	}
	return fmt.Errorf("load %s: %w", what, err)
}

func nullable(v int64) *int64 {
	if v <= 0 {
		return nil
	}
	return &v
}

func deref(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

func isCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
