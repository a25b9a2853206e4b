// Package service signs operators in: it checks email and password against
// the directory and issues a bearer token carrying the operator's scope.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"mutuelle/internal/access"
	"mutuelle/internal/auth/password"
	"mutuelle/internal/directory/models"
	id "mutuelle/pkg/domain"
	dErrors "mutuelle/pkg/domain-errors"
	"mutuelle/pkg/email"
	"mutuelle/pkg/platform/audit"
	"mutuelle/pkg/platform/sentinel"
	"mutuelle/pkg/requestcontext"
)

type OperatorStore interface {
	FindOperatorByEmail(ctx context.Context, email string) (*models.Operator, error)
}

type TokenIssuer interface {
	Issue(subject access.Subject, now time.Time) (string, time.Time, error)
	Validate(tokenString string) (access.Subject, error)
}

// Lockout throttles repeated failures for one email.
type Lockout interface {
	Check(ctx context.Context, identifier string) error
	RecordFailure(ctx context.Context, identifier string) error
	Clear(ctx context.Context, identifier string) error
}

type Auditor interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	operators OperatorStore
	tokens    TokenIssuer
	lockout   Lockout
	auditor   Auditor
	logger    *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithLockout(l Lockout) Option {
	return func(s *Service) {
		s.lockout = l
	}
}

func WithAuditor(a Auditor) Option {
	return func(s *Service) {
		s.auditor = a
	}
}

func New(operators OperatorStore, tokens TokenIssuer, opts ...Option) (*Service, error) {
	if operators == nil {
		return nil, errors.New("operator store is required")
	}
	if tokens == nil {
		return nil, errors.New("token issuer is required")
	}
	s := &Service{operators: operators, tokens: tokens, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type OperatorView struct {
	ID          id.OperatorID  `json:"id"`
	Name        string         `json:"name"`
	Email       string         `json:"email"`
	Role        access.Role    `json:"role"`
	ZoneID      id.ZoneID      `json:"zone_id,omitempty"`
	StructureID id.StructureID `json:"structure_id,omitempty"`
}

// NewOperatorView strips the password hash and flattens the scope.
func NewOperatorView(op *models.Operator) OperatorView {
	zoneID, structureID := access.ScopeIDs(op.Scope)
	return OperatorView{
		ID:          op.ID,
		Name:        op.Name,
		Email:       op.Email,
		Role:        op.Role(),
		ZoneID:      zoneID,
		StructureID: structureID,
	}
}

type SignInResult struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresAt   time.Time    `json:"expires_at"`
	Operator    OperatorView `json:"operator"`
}

// dummyHash keeps the cost of an unknown email equal to a wrong password.
var dummyHash, _ = password.Hash("not-a-real-password")

// SignIn returns a token for valid credentials. Unknown emails and wrong
// passwords fail identically.
func (s *Service) SignIn(ctx context.Context, req SignInRequest) (*SignInResult, error) {
	addr, err := email.Normalize(req.Email)
	if err != nil {
		return nil, err
	}
	if req.Password == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "password is required")
	}
	if s.lockout != nil {
		if err := s.lockout.Check(ctx, addr); err != nil {
			return nil, err
		}
	}

	op, err := s.operators.FindOperatorByEmail(ctx, addr)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		_ = password.Verify(req.Password, dummyHash)
		return nil, s.failed(ctx, addr, 0)
	case err != nil:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up operator")
	}
	if err := password.Verify(req.Password, op.PasswordHash); err != nil {
		if dErrors.HasCode(err, dErrors.CodeUnauthorized) {
			return nil, s.failed(ctx, addr, op.ID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify password")
	}

	if s.lockout != nil {
		if err := s.lockout.Clear(ctx, addr); err != nil {
			s.logger.WarnContext(ctx, "failed to clear sign-in failures", "error", err)
		}
	}
	signed, expiresAt, err := s.tokens.Issue(op.Subject(), requestcontext.Now(ctx))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue token")
	}

	s.emit(ctx, audit.Event{OperatorID: op.ID, Action: string(audit.EventOperatorSignedIn), Decision: "granted"})
	s.logger.InfoContext(ctx, "operator signed in", "operator_id", op.ID, "role", op.Role())

	return &SignInResult{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
		Operator:    NewOperatorView(op),
	}, nil
}

// Authenticate validates a bearer token and returns its subject.
func (s *Service) Authenticate(tokenString string) (access.Subject, error) {
	return s.tokens.Validate(tokenString)
}

func (s *Service) failed(ctx context.Context, addr string, operatorID id.OperatorID) error {
	if s.lockout != nil {
		if err := s.lockout.RecordFailure(ctx, addr); err != nil {
			s.logger.WarnContext(ctx, "failed to record sign-in failure", "error", err)
		}
	}
	s.emit(ctx, audit.Event{
		OperatorID: operatorID,
		Action:     string(audit.EventSignInFailed),
		Decision:   "denied",
		Reason:     "invalid_credentials",
	})
	return dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "action", event.Action, "error", err)
	}
}
