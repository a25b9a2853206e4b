package access

import (
	"context"
	"log/slog"

	id "mutuelle/pkg/domain"
)

// Placement is where a member sits in the hierarchy. Structure is zero for
// members attached to their zone only.
type Placement struct {
	Zone      id.ZoneID
	Structure id.StructureID
}

// Directory looks up placements. Implementations return coded errors:
// member_not_found for unknown members, not_found for unknown structures.
type Directory interface {
	MemberPlacement(ctx context.Context, memberID id.MemberID) (Placement, error)
	StructureZone(ctx context.Context, structureID id.StructureID) (id.ZoneID, error)
}

// Ref names the object of an action before resolution. Set the most specific
// field available; the others are derived.
type Ref struct {
	Zone      id.ZoneID
	Structure id.StructureID
	Member    id.MemberID
}

func MemberRef(memberID id.MemberID) Ref          { return Ref{Member: memberID} }
func StructureRef(structureID id.StructureID) Ref { return Ref{Structure: structureID} }
func ZoneRef(zoneID id.ZoneID) Ref                { return Ref{Zone: zoneID} }

// Resolver turns references into targets and applies Authorize.
type Resolver struct {
	directory Directory
	logger    *slog.Logger
}

type ResolverOption func(*Resolver)

func WithLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = logger
	}
}

func NewResolver(directory Directory, opts ...ResolverOption) *Resolver {
	r := &Resolver{directory: directory, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve fills in the zone (and structure, for members) of ref.
func (r *Resolver) Resolve(ctx context.Context, ref Ref) (Target, error) {
	switch {
	case !ref.Member.IsNil():
		p, err := r.directory.MemberPlacement(ctx, ref.Member)
		if err != nil {
			return Target{}, err
		}
		return Target{Zone: p.Zone, Structure: p.Structure, Member: ref.Member}, nil
	case !ref.Structure.IsNil():
		zone, err := r.directory.StructureZone(ctx, ref.Structure)
		if err != nil {
			return Target{}, err
		}
		return Target{Zone: zone, Structure: ref.Structure}, nil
	default:
		return Target{Zone: ref.Zone}, nil
	}
}

// Check resolves ref and authorizes subject against it. It returns the
// resolved target on success and a forbidden error on denial.
func (r *Resolver) Check(ctx context.Context, subject Subject, action Action, ref Ref) (Target, error) {
	target, err := r.Resolve(ctx, ref)
	if err != nil {
		return Target{}, err
	}
	decision := Authorize(subject, action, target)
	if !decision.Allowed {
		r.logger.WarnContext(ctx, "access denied",
			"operator_id", subject.OperatorID,
			"role", subject.Role(),
			"action", action,
			"reason", decision.Reason,
			"zone_id", target.Zone,
			"structure_id", target.Structure,
			"member_id", target.Member,
		)
		return target, decision.Err()
	}
	return target, nil
}

type subjectKey struct{}

// WithSubject stores the authenticated subject in ctx.
func WithSubject(ctx context.Context, subject Subject) context.Context {
	return context.WithValue(ctx, subjectKey{}, subject)
}

// SubjectFromContext returns the subject stored by WithSubject.
func SubjectFromContext(ctx context.Context) (Subject, bool) {
	s, ok := ctx.Value(subjectKey{}).(Subject)
	return s, ok && s.Scope != nil
}
