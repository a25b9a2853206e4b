// Package verification resolves a presented credential (card, QR code or
// typed id) to a member and their current entitlement. It only reads.
package verification

import (
	"context"
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"mutuelle/internal/access"
	dirmodels "mutuelle/internal/directory/models"
	ledger "mutuelle/internal/ledger/models"
	id "mutuelle/pkg/domain"
	dErrors "mutuelle/pkg/domain-errors"
	"mutuelle/pkg/platform/audit"
)

// Members looks a member up on behalf of subject, enforcing view_member.
type Members interface {
	GetMember(ctx context.Context, subject access.Subject, memberID id.MemberID) (*dirmodels.Member, error)
}

type Balances interface {
	GetBalance(ctx context.Context, memberID id.MemberID) (*ledger.Balance, error)
}

type Auditor interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Outcome string

const (
	OutcomeResolved    Outcome = "resolved"
	OutcomeNotFound    Outcome = "not_found"
	OutcomeReaderError Outcome = "reader_error"
)

// Result is the outcome of one verification. Member and Balance are set
// only when resolved; Message only when not.
type Result struct {
	Outcome  Outcome           `json:"outcome"`
	Channel  Channel           `json:"channel"`
	MemberID id.MemberID       `json:"member_id,omitempty"`
	Member   *dirmodels.Member `json:"member,omitempty"`
	Balance  *ledger.Balance   `json:"balance,omitempty"`
	Message  string            `json:"message,omitempty"`
}

type Gateway struct {
	members  Members
	balances Balances
	auditor  Auditor
	logger   *slog.Logger
	outcomes *prometheus.CounterVec
}

type Option func(*Gateway)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

func WithAuditor(a Auditor) Option {
	return func(g *Gateway) {
		g.auditor = a
	}
}

// WithMetrics registers the verification outcome counter on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(g *Gateway) {
		g.outcomes = promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "mutuelle_verifications_total",
			Help: "Verification attempts by channel and outcome",
		}, []string{"channel", "outcome"})
	}
}

func New(members Members, balances Balances, opts ...Option) (*Gateway, error) {
	if members == nil {
		return nil, errors.New("member directory is required")
	}
	if balances == nil {
		return nil, errors.New("balance reader is required")
	}
	g := &Gateway{members: members, balances: balances, logger: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Verify decodes c and looks the member up. Undecodable credentials and
// unknown members are results, not errors; errors are reserved for denied
// access and infrastructure failures. Every result is counted and audited.
func (g *Gateway) Verify(ctx context.Context, subject access.Subject, c Credential) (*Result, error) {
	res, err := g.resolve(ctx, subject, c)
	if err != nil {
		return nil, err
	}
	g.finish(ctx, subject, res)
	return res, nil
}

// NewSession opens a scan session for subject on this gateway.
func (g *Gateway) NewSession(subject access.Subject) *Session {
	return NewSession(g, subject)
}

// resolve is Verify without the metric and the audit event.
func (g *Gateway) resolve(ctx context.Context, subject access.Subject, c Credential) (*Result, error) {
	res := &Result{Channel: c.Channel}

	memberID, err := Decode(c)
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeReaderError) {
			return nil, err
		}
		g.logger.InfoContext(ctx, "credential unreadable", "channel", c.Channel, "error", err)
		res.Outcome = OutcomeReaderError
		res.Message = dErrors.Message(dErrors.CodeReaderError)
		return res, nil
	}
	res.MemberID = memberID

	member, err := g.members.GetMember(ctx, subject, memberID)
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeMemberNotFound) {
			return nil, err
		}
		res.Outcome = OutcomeNotFound
		res.Message = dErrors.Message(dErrors.CodeMemberNotFound)
		return res, nil
	}
	balance, err := g.balances.GetBalance(ctx, memberID)
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeMemberNotFound) {
			return nil, err
		}
		res.Outcome = OutcomeNotFound
		res.Message = dErrors.Message(dErrors.CodeMemberNotFound)
		return res, nil
	}

	res.Outcome = OutcomeResolved
	res.Member = member
	res.Balance = balance
	return res, nil
}

func (g *Gateway) finish(ctx context.Context, subject access.Subject, res *Result) {
	if g.outcomes != nil {
		g.outcomes.WithLabelValues(string(res.Channel), string(res.Outcome)).Inc()
	}
	if g.auditor == nil {
		return
	}
	event := audit.Event{
		OperatorID: subject.OperatorID,
		MemberID:   res.MemberID,
		Action:     string(audit.EventMemberVerified),
		Decision:   string(res.Outcome),
		Channel:    string(res.Channel),
	}
	if res.Outcome != OutcomeResolved {
		event.Action = string(audit.EventVerificationFailed)
	}
	if err := g.auditor.Emit(ctx, event); err != nil {
		g.logger.WarnContext(ctx, "failed to emit audit event", "action", event.Action, "error", err)
	}
}
