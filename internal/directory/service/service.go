// Package service manages the territorial directory: zones, structures,
// operators and members. It is also the placement source the access
// resolver consults, with lookups cached and collapsed per key.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"mutuelle/internal/access"
	"mutuelle/internal/auth/password"
	"mutuelle/internal/directory/cache"
	"mutuelle/internal/directory/models"
	ledger "mutuelle/internal/ledger/models"
	id "mutuelle/pkg/domain"
	dErrors "mutuelle/pkg/domain-errors"
	"mutuelle/pkg/email"
	"mutuelle/pkg/platform/audit"
	"mutuelle/pkg/platform/circuit"
	"mutuelle/pkg/platform/sentinel"
	"mutuelle/pkg/requestcontext"
)

type Store interface {
	CreateZone(ctx context.Context, z *models.Zone) error
	GetZone(ctx context.Context, zoneID id.ZoneID) (*models.Zone, error)
	ListZones(ctx context.Context) ([]*models.Zone, error)
	DeleteZone(ctx context.Context, zoneID id.ZoneID) error
	CreateStructure(ctx context.Context, st *models.Structure) error
	GetStructure(ctx context.Context, structureID id.StructureID) (*models.Structure, error)
	ListStructures(ctx context.Context, zoneID id.ZoneID) ([]*models.Structure, error)
	DeleteStructure(ctx context.Context, structureID id.StructureID) error
	CreateOperator(ctx context.Context, o *models.Operator) error
	GetOperator(ctx context.Context, operatorID id.OperatorID) (*models.Operator, error)
	ListOperators(ctx context.Context) ([]*models.Operator, error)
	CreateMember(ctx context.Context, m *models.Member) error
	GetMember(ctx context.Context, memberID id.MemberID) (*models.Member, error)
	ListMembers(ctx context.Context, filter models.MemberFilter) ([]*models.Member, error)
	DeleteMember(ctx context.Context, memberID id.MemberID) error
}

// Ledger is the slice of the entitlement ledger the directory reads from
// and opens accounts in.
type Ledger interface {
	Plan() ledger.Plan
	OpenAccount(ctx context.Context, memberID id.MemberID) (*ledger.Balance, error)
	GetBalance(ctx context.Context, memberID id.MemberID) (*ledger.Balance, error)
	History(ctx context.Context, memberID id.MemberID, filter ledger.HistoryFilter) (*ledger.History, error)
}

type Auditor interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	store    Store
	ledger   Ledger
	cache    cache.Cache
	cacheTTL time.Duration
	breaker  *circuit.Breaker
	lookups  singleflight.Group
	resolver *access.Resolver
	auditor  Auditor
	logger   *slog.Logger
	tracer   trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithCache puts placement lookups behind c. Without it every lookup hits
// the store.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = c
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(s *Service) {
		s.breaker = b
	}
}

func WithAuditor(a Auditor) Option {
	return func(s *Service) {
		s.auditor = a
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

func New(store Store, ledger Ledger, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("directory store is required")
	}
	if ledger == nil {
		return nil, errors.New("ledger is required")
	}
	s := &Service{
		store:    store,
		ledger:   ledger,
		cacheTTL: cache.DefaultTTL,
		breaker:  circuit.New("placement-cache"),
		logger:   slog.Default(),
		tracer:   otel.Tracer("mutuelle/directory"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.resolver = access.NewResolver(s, access.WithLogger(s.logger))
	return s, nil
}

// Resolver authorizes against this directory's placements.
func (s *Service) Resolver() *access.Resolver {
	return s.resolver
}

// ===== zones and structures =====

type CreateZoneRequest struct {
	Name          string        `json:"name"`
	ResponsibleID id.OperatorID `json:"responsible_operator_id,omitempty"`
}

func (s *Service) CreateZone(ctx context.Context, subject access.Subject, req CreateZoneRequest) (*models.Zone, error) {
	if err := s.manage(ctx, subject); err != nil {
		return nil, err
	}
	z, err := models.NewZone(req.Name, req.ResponsibleID, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateZone(ctx, z); err != nil {
		return nil, translate(err, "zone")
	}
	s.emit(ctx, audit.Event{Action: string(audit.EventZoneCreated), Reason: z.Name})
	s.logger.InfoContext(ctx, "zone created", "zone_id", z.ID, "operator_id", subject.OperatorID)
	return z, nil
}

func (s *Service) DeleteZone(ctx context.Context, subject access.Subject, zoneID id.ZoneID) error {
	if err := s.manage(ctx, subject); err != nil {
		return err
	}
	if err := s.store.DeleteZone(ctx, zoneID); err != nil {
		return translate(err, "zone")
	}
	s.emit(ctx, audit.Event{Action: string(audit.EventZoneDeleted), Reason: zoneID.String()})
	return nil
}

// ListZones returns every zone for a global administrator and the own zone
// for a zone administrator.
func (s *Service) ListZones(ctx context.Context, subject access.Subject) ([]*models.Zone, error) {
	switch sc := subject.Scope.(type) {
	case access.ZoneScope:
		z, err := s.store.GetZone(ctx, sc.Zone)
		if err != nil {
			return nil, translate(err, "zone")
		}
		return []*models.Zone{z}, nil
	case access.GlobalScope:
		zones, err := s.store.ListZones(ctx)
		if err != nil {
			return nil, translate(err, "zone")
		}
		return zones, nil
	default:
		return nil, access.Decision{Reason: access.ReasonRoleInsufficient}.Err()
	}
}

type CreateStructureRequest struct {
	ZoneID id.ZoneID `json:"zone_id"`
	Name   string    `json:"name"`
}

func (s *Service) CreateStructure(ctx context.Context, subject access.Subject, req CreateStructureRequest) (*models.Structure, error) {
	if err := s.manage(ctx, subject); err != nil {
		return nil, err
	}
	st, err := models.NewStructure(req.ZoneID, req.Name, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateStructure(ctx, st); err != nil {
		return nil, translate(err, "zone")
	}
	s.emit(ctx, audit.Event{Action: string(audit.EventStructureCreated), Reason: st.Name})
	s.logger.InfoContext(ctx, "structure created",
		"structure_id", st.ID, "zone_id", st.ZoneID, "operator_id", subject.OperatorID)
	return st, nil
}

// ListStructures lists the structures subject can see: all of them for a
// global administrator, the zone's for a zone administrator and the own
// structure for an agent. A non-zero zoneID narrows the list and must lie
// inside the scope.
func (s *Service) ListStructures(ctx context.Context, subject access.Subject, zoneID id.ZoneID) ([]*models.Structure, error) {
	scopeZone, scopeStructure := access.ScopeIDs(subject.Scope)
	ref := access.ZoneRef(zoneID)
	switch {
	case !scopeStructure.IsNil():
		ref = access.StructureRef(scopeStructure)
	case zoneID.IsNil():
		ref = access.ZoneRef(scopeZone)
	}
	target, err := s.resolver.Check(ctx, subject, access.ActionListStructures, ref)
	if err != nil {
		s.denied(ctx, subject, 0, err)
		return nil, err
	}
	if !zoneID.IsNil() && zoneID != target.Zone {
		err := access.Decision{Reason: access.ReasonOutOfScope}.Err()
		s.denied(ctx, subject, 0, err)
		return nil, err
	}

	if !target.Structure.IsNil() {
		st, err := s.store.GetStructure(ctx, target.Structure)
		if err != nil {
			return nil, translate(err, "structure")
		}
		return []*models.Structure{st}, nil
	}
	if !target.Zone.IsNil() {
		if _, err := s.store.GetZone(ctx, target.Zone); err != nil {
			return nil, translate(err, "zone")
		}
	}
	structures, err := s.store.ListStructures(ctx, target.Zone)
	if err != nil {
		return nil, translate(err, "structure")
	}
	return structures, nil
}

func (s *Service) DeleteStructure(ctx context.Context, subject access.Subject, structureID id.StructureID) error {
	if err := s.manage(ctx, subject); err != nil {
		return err
	}
	if err := s.store.DeleteStructure(ctx, structureID); err != nil {
		return translate(err, "structure")
	}
	s.invalidate(ctx, cache.StructureKey(structureID))
	s.emit(ctx, audit.Event{Action: string(audit.EventStructureDeleted), Reason: structureID.String()})
	return nil
}

// ===== operators =====

type CreateOperatorRequest struct {
	Name        string         `json:"name"`
	Email       string         `json:"email"`
	Password    string         `json:"password"`
	Role        access.Role    `json:"role"`
	ZoneID      id.ZoneID      `json:"zone_id,omitempty"`
	StructureID id.StructureID `json:"structure_id,omitempty"`
}

func (s *Service) CreateOperator(ctx context.Context, subject access.Subject, req CreateOperatorRequest) (*models.Operator, error) {
	if err := s.manage(ctx, subject); err != nil {
		return nil, err
	}
	return s.createOperator(ctx, req)
}

// Bootstrap creates the first global administrator. It is only reachable
// from the command line.
func (s *Service) Bootstrap(ctx context.Context, req CreateOperatorRequest) (*models.Operator, error) {
	req.Role = access.RoleGlobalAdmin
	req.ZoneID, req.StructureID = 0, 0
	return s.createOperator(ctx, req)
}

func (s *Service) createOperator(ctx context.Context, req CreateOperatorRequest) (*models.Operator, error) {
	addr, err := email.Normalize(req.Email)
	if err != nil {
		return nil, err
	}
	role, err := access.ParseRole(string(req.Role))
	if err != nil {
		return nil, err
	}
	scope, err := access.NewScope(role, req.ZoneID, req.StructureID)
	if err != nil {
		return nil, err
	}
	hash, err := password.Hash(req.Password)
	if err != nil {
		return nil, err
	}
	name := req.Name
	if name == "" {
		name = email.DisplayName(addr)
	}
	op, err := models.NewOperator(name, addr, hash, scope, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateOperator(ctx, op); err != nil {
		return nil, translate(err, "operator")
	}
	s.emit(ctx, audit.Event{Action: string(audit.EventOperatorCreated), Reason: string(role)})
	s.logger.InfoContext(ctx, "operator created", "new_operator_id", op.ID, "role", role)
	return op, nil
}

func (s *Service) GetOperator(ctx context.Context, operatorID id.OperatorID) (*models.Operator, error) {
	op, err := s.store.GetOperator(ctx, operatorID)
	if err != nil {
		return nil, translate(err, "operator")
	}
	return op, nil
}

// ListOperators lists every operator for a global administrator. A zone
// administrator sees the operators bound to the zone or to one of its
// structures. Agents are refused.
func (s *Service) ListOperators(ctx context.Context, subject access.Subject) ([]*models.Operator, error) {
	zoneID, _ := access.ScopeIDs(subject.Scope)
	if _, err := s.resolver.Check(ctx, subject, access.ActionListOperators, access.ZoneRef(zoneID)); err != nil {
		s.denied(ctx, subject, 0, err)
		return nil, err
	}
	operators, err := s.store.ListOperators(ctx)
	if err != nil {
		return nil, translate(err, "operator")
	}
	if zoneID.IsNil() {
		return operators, nil
	}

	structures, err := s.store.ListStructures(ctx, zoneID)
	if err != nil {
		return nil, translate(err, "structure")
	}
	inZone := make(map[id.StructureID]bool, len(structures))
	for _, st := range structures {
		inZone[st.ID] = true
	}
	scoped := make([]*models.Operator, 0, len(operators))
	for _, op := range operators {
		switch sc := op.Scope.(type) {
		case access.ZoneScope:
			if sc.Zone == zoneID {
				scoped = append(scoped, op)
			}
		case access.StructureScope:
			if inZone[sc.Structure] {
				scoped = append(scoped, op)
			}
		}
	}
	return scoped, nil
}

// ===== members =====

type CreateMemberRequest struct {
	Name        string         `json:"name"`
	ZoneID      id.ZoneID      `json:"zone_id,omitempty"`
	StructureID id.StructureID `json:"structure_id,omitempty"`
}

// CreateMemberResult is the new member with its freshly opened account:
// full plan balances, inactive until the first payment.
type CreateMemberResult struct {
	Member  *models.Member `json:"member"`
	Balance ledger.Balance `json:"balance"`
}

// CreateMember registers a member in a zone, optionally attached to one of
// the zone's structures, and opens their ledger account. When only a
// structure is given the zone is taken from it.
func (s *Service) CreateMember(ctx context.Context, subject access.Subject, req CreateMemberRequest) (*CreateMemberResult, error) {
	ctx, span := s.tracer.Start(ctx, "directory.CreateMember")
	defer span.End()

	ref := access.ZoneRef(req.ZoneID)
	if !req.StructureID.IsNil() {
		ref = access.StructureRef(req.StructureID)
	}
	target, err := s.resolver.Check(ctx, subject, access.ActionCreateMember, ref)
	if err != nil {
		s.denied(ctx, subject, 0, err)
		return nil, err
	}
	if !req.ZoneID.IsNil() && req.ZoneID != target.Zone {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "structure %s is not in zone %s", req.StructureID, req.ZoneID)
	}

	m, err := models.NewMember(req.Name, target.Zone, target.Structure, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateMember(ctx, m); err != nil {
		return nil, translate(err, "zone")
	}
	span.SetAttributes(attribute.Int64("member_id", int64(m.ID)))

	balance, err := s.ledger.OpenAccount(ctx, m.ID)
	if err != nil {
		if delErr := s.store.DeleteMember(context.WithoutCancel(ctx), m.ID); delErr != nil {
			s.logger.ErrorContext(ctx, "failed to roll back member without account",
				"member_id", m.ID, "error", delErr)
		}
		return nil, err
	}

	s.emit(ctx, audit.Event{MemberID: m.ID, Action: string(audit.EventMemberCreated)})
	s.logger.InfoContext(ctx, "member created",
		"member_id", m.ID, "zone_id", m.ZoneID, "structure_id", m.StructureID, "operator_id", subject.OperatorID)
	return &CreateMemberResult{Member: m, Balance: *balance}, nil
}

func (s *Service) GetMember(ctx context.Context, subject access.Subject, memberID id.MemberID) (*models.Member, error) {
	if _, err := s.resolver.Check(ctx, subject, access.ActionViewMember, access.MemberRef(memberID)); err != nil {
		s.denied(ctx, subject, memberID, err)
		return nil, err
	}
	m, err := s.store.GetMember(ctx, memberID)
	if err != nil {
		return nil, translate(err, "member")
	}
	return m, nil
}

// MemberBalance returns the member's balance to an operator allowed to view
// the member.
func (s *Service) MemberBalance(ctx context.Context, subject access.Subject, memberID id.MemberID) (*ledger.Balance, error) {
	if _, err := s.resolver.Check(ctx, subject, access.ActionViewMember, access.MemberRef(memberID)); err != nil {
		s.denied(ctx, subject, memberID, err)
		return nil, err
	}
	return s.ledger.GetBalance(ctx, memberID)
}

// MemberHistory returns the member's payments and treatments, narrowed by
// filter, under the same rule as MemberBalance.
func (s *Service) MemberHistory(ctx context.Context, subject access.Subject, memberID id.MemberID, filter ledger.HistoryFilter) (*ledger.History, error) {
	if _, err := s.resolver.Check(ctx, subject, access.ActionViewMember, access.MemberRef(memberID)); err != nil {
		s.denied(ctx, subject, memberID, err)
		return nil, err
	}
	if !filter.Month.IsZero() && (filter.Month.Month < time.January || filter.Month.Month > time.December) {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "month must be between 1 and 12")
	}
	if filter.LastPayments < 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "payment limit must be non-negative")
	}
	return s.ledger.History(ctx, memberID, filter)
}

// MemberView is a member with the balance shown on the members page.
type MemberView struct {
	*models.Member
	Balance ledger.Balance `json:"balance"`
}

// ListMembers lists members inside subject's scope. An empty filter means
// the whole scope; a non-empty one must itself be inside the scope.
func (s *Service) ListMembers(ctx context.Context, subject access.Subject, filter models.MemberFilter) ([]MemberView, error) {
	filter, err := s.scopeFilter(ctx, subject, access.ActionListMembers, filter)
	if err != nil {
		return nil, err
	}
	members, err := s.store.ListMembers(ctx, filter)
	if err != nil {
		return nil, translate(err, "member")
	}
	views := make([]MemberView, 0, len(members))
	for _, m := range members {
		b, err := s.ledger.GetBalance(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		views = append(views, MemberView{Member: m, Balance: *b})
	}
	return views, nil
}

// ===== reports =====

// ZoneSummary aggregates one zone for its dashboard.
func (s *Service) ZoneSummary(ctx context.Context, subject access.Subject, zoneID id.ZoneID) (*models.ZoneSummary, error) {
	if _, err := s.resolver.Check(ctx, subject, access.ActionViewZone, access.ZoneRef(zoneID)); err != nil {
		s.denied(ctx, subject, 0, err)
		return nil, err
	}
	z, err := s.store.GetZone(ctx, zoneID)
	if err != nil {
		return nil, translate(err, "zone")
	}
	structures, err := s.store.ListStructures(ctx, zoneID)
	if err != nil {
		return nil, translate(err, "structure")
	}
	members, err := s.store.ListMembers(ctx, models.MemberFilter{ZoneID: zoneID})
	if err != nil {
		return nil, translate(err, "member")
	}

	now := requestcontext.Now(ctx).In(s.ledger.Plan().Location)
	month := ledger.Month{Year: now.Year(), Month: now.Month()}

	summary := &models.ZoneSummary{
		Zone:         *z,
		StructureIDs: make([]id.StructureID, 0, len(structures)),
		MemberIDs:    make([]id.MemberID, 0, len(members)),
	}
	for _, st := range structures {
		summary.StructureIDs = append(summary.StructureIDs, st.ID)
	}
	for _, m := range members {
		summary.MemberIDs = append(summary.MemberIDs, m.ID)
		h, err := s.ledger.History(ctx, m.ID, ledger.HistoryFilter{Month: month, LastPayments: 1})
		if err != nil {
			return nil, err
		}
		if h.Balance.Active {
			summary.ActiveMembers++
		}
		summary.TreatmentsThisMonth += len(h.Treatments)
	}
	return summary, nil
}

// PaymentsReport lists every payment of the members in subject's scope,
// joined with member and zone names and current balances.
func (s *Service) PaymentsReport(ctx context.Context, subject access.Subject, filter models.MemberFilter) ([]models.PaymentLine, error) {
	filter, err := s.scopeFilter(ctx, subject, access.ActionViewPayments, filter)
	if err != nil {
		return nil, err
	}
	members, err := s.store.ListMembers(ctx, filter)
	if err != nil {
		return nil, translate(err, "member")
	}

	zoneNames := make(map[id.ZoneID]string)
	var lines []models.PaymentLine
	for _, m := range members {
		name, ok := zoneNames[m.ZoneID]
		if !ok {
			z, err := s.store.GetZone(ctx, m.ZoneID)
			if err != nil {
				return nil, translate(err, "zone")
			}
			name = z.Name
			zoneNames[m.ZoneID] = name
		}
		h, err := s.ledger.History(ctx, m.ID, ledger.HistoryFilter{})
		if err != nil {
			return nil, err
		}
		for _, p := range h.Payments {
			lines = append(lines, models.PaymentLine{
				MemberID:                  m.ID,
				MemberName:                m.Name,
				ZoneID:                    m.ZoneID,
				ZoneName:                  name,
				Active:                    h.Balance.Active,
				HospitalizationsRemaining: h.Balance.HospitalizationsRemaining,
				AmbulatoryRemaining:       h.Balance.AmbulatoryRemaining,
				Year:                      p.Year,
				Amount:                    p.Amount,
				PaidAt:                    p.PaidAt,
			})
		}
	}
	return lines, nil
}

// ===== placement lookups (access.Directory) =====

// MemberPlacement returns the zone and structure of a member.
func (s *Service) MemberPlacement(ctx context.Context, memberID id.MemberID) (access.Placement, error) {
	var p access.Placement
	err := s.cached(ctx, cache.MemberKey(memberID), &p, func() (any, error) {
		m, err := s.store.GetMember(ctx, memberID)
		if err != nil {
			return nil, translate(err, "member")
		}
		return m.Placement(), nil
	})
	return p, err
}

// StructureZone returns the zone a structure belongs to.
func (s *Service) StructureZone(ctx context.Context, structureID id.StructureID) (id.ZoneID, error) {
	var zoneID id.ZoneID
	err := s.cached(ctx, cache.StructureKey(structureID), &zoneID, func() (any, error) {
		st, err := s.store.GetStructure(ctx, structureID)
		if err != nil {
			return nil, translate(err, "structure")
		}
		return st.ZoneID, nil
	})
	return zoneID, err
}

// cached serves key from the cache when the breaker allows it, otherwise
// loads it once per key across concurrent callers and stores the result.
func (s *Service) cached(ctx context.Context, key string, dst any, load func() (any, error)) error {
	if s.cache != nil && !s.breaker.IsOpen() {
		raw, err := s.cache.Get(ctx, key)
		switch {
		case err == nil:
			s.cacheSucceeded(ctx)
			if json.Unmarshal(raw, dst) == nil {
				return nil
			}
		case errors.Is(err, cache.ErrCacheMiss):
			s.cacheSucceeded(ctx)
		default:
			s.cacheFailed(ctx, err)
		}
	}

	v, err, _ := s.lookups.Do(key, func() (any, error) {
		v, err := load()
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "encode placement")
		}
		if s.cache != nil && !s.breaker.IsOpen() {
			if err := s.cache.Set(ctx, key, raw, s.cacheTTL); err != nil {
				s.cacheFailed(ctx, err)
			}
		}
		return raw, nil
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(v.([]byte), dst); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "decode placement")
	}
	return nil
}

func (s *Service) cacheFailed(ctx context.Context, err error) {
	if _, change := s.breaker.RecordFailure(); change.Opened {
		s.logger.WarnContext(ctx, "placement cache disabled after repeated failures",
			"breaker", s.breaker.Name(), "error", err)
	}
}

func (s *Service) cacheSucceeded(ctx context.Context) {
	if _, change := s.breaker.RecordSuccess(); change.Closed {
		s.logger.InfoContext(ctx, "placement cache re-enabled", "breaker", s.breaker.Name())
	}
}

func (s *Service) invalidate(ctx context.Context, key string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, key); err != nil {
		s.cacheFailed(ctx, err)
	}
}

// ===== helpers =====

func (s *Service) manage(ctx context.Context, subject access.Subject) error {
	if _, err := s.resolver.Check(ctx, subject, access.ActionManageDirectory, access.Ref{}); err != nil {
		s.denied(ctx, subject, 0, err)
		return err
	}
	return nil
}

// scopeFilter narrows filter to subject's territory and authorizes action on
// whatever the filter then names.
func (s *Service) scopeFilter(ctx context.Context, subject access.Subject, action access.Action, filter models.MemberFilter) (models.MemberFilter, error) {
	if filter.ZoneID.IsNil() && filter.StructureID.IsNil() {
		zoneID, structureID := access.ScopeIDs(subject.Scope)
		filter = models.MemberFilter{ZoneID: zoneID, StructureID: structureID}
	}
	ref := access.ZoneRef(filter.ZoneID)
	if !filter.StructureID.IsNil() {
		ref = access.StructureRef(filter.StructureID)
	}
	target, err := s.resolver.Check(ctx, subject, action, ref)
	if err != nil {
		s.denied(ctx, subject, 0, err)
		return models.MemberFilter{}, err
	}
	if !filter.StructureID.IsNil() && !filter.ZoneID.IsNil() && filter.ZoneID != target.Zone {
		return models.MemberFilter{}, dErrors.Newf(dErrors.CodeInvalidInput,
			"structure %s is not in zone %s", filter.StructureID, filter.ZoneID)
	}
	return filter, nil
}

func (s *Service) denied(ctx context.Context, subject access.Subject, memberID id.MemberID, err error) {
	if !dErrors.HasCode(err, dErrors.CodeForbidden) {
		return
	}
	s.emit(ctx, audit.Event{
		OperatorID: subject.OperatorID,
		MemberID:   memberID,
		Action:     string(audit.EventAccessDenied),
		Decision:   "denied",
		Reason:     err.Error(),
	})
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "action", event.Action, "error", err)
	}
}

// translate maps store sentinels onto directory error codes. kind names the
// entity a missing reference is reported as.
func translate(err error, kind string) error {
	var de *dErrors.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		if kind == "member" {
			return dErrors.New(dErrors.CodeMemberNotFound, "member not found")
		}
		return dErrors.Newf(dErrors.CodeNotFound, "%s not found", kind)
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "directory conflict")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "directory operation failed")
	}
}
