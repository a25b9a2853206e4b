// Package token issues and validates operator bearer tokens. A token
// carries the operator's role and territory so requests can be authorized
// without a directory round trip.
package token

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"mutuelle/internal/access"
	id "mutuelle/pkg/domain"
	dErrors "mutuelle/pkg/domain-errors"
)

const DefaultTTL = 12 * time.Hour

// Claims are the JWT claims of an operator access token. The subject claim
// holds the operator id.
type Claims struct {
	Role        string `json:"role"`
	ZoneID      int64  `json:"zone_id,omitempty"`
	StructureID int64  `json:"structure_id,omitempty"`
	jwt.RegisteredClaims
}

type Service struct {
	signingKey []byte
	issuer     string
	audience   string
	ttl        time.Duration
}

func NewService(signingKey, issuer, audience string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
		ttl:        ttl,
	}
}

// Issue signs a token for subject valid from now for the configured TTL.
func (s *Service) Issue(subject access.Subject, now time.Time) (string, time.Time, error) {
	zoneID, structureID := access.ScopeIDs(subject.Scope)
	expiresAt := now.Add(s.ttl)
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role:        string(subject.Role()),
		ZoneID:      int64(zoneID),
		StructureID: int64(structureID),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject.OperatorID.String(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        uuid.NewString(),
		},
	})
	signed, err := t.SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Validate parses tokenString and rebuilds the subject it was issued for.
// Every failure is unauthorized.
func (s *Service) Validate(tokenString string) (access.Subject, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithAudience(s.audience))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return access.Subject{}, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return access.Subject{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return access.Subject{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	operatorID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || operatorID <= 0 {
		return access.Subject{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token subject")
	}
	role, err := access.ParseRole(claims.Role)
	if err != nil {
		return access.Subject{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token role")
	}
	scope, err := access.NewScope(role, id.ZoneID(claims.ZoneID), id.StructureID(claims.StructureID))
	if err != nil {
		return access.Subject{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token scope")
	}
	return access.Subject{OperatorID: id.OperatorID(operatorID), Scope: scope}, nil
}
