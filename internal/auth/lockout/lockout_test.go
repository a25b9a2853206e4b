package lockout

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	dErrors "mutuelle/pkg/domain-errors"
	"mutuelle/pkg/requestcontext"
)

type GuardSuite struct {
	suite.Suite
	guard *Guard
	start time.Time
}

func TestGuardSuite(t *testing.T) {
	suite.Run(t, new(GuardSuite))
}

func (s *GuardSuite) SetupTest() {
	var err error
	s.guard, err = New(NewInMemoryStore(), WithLimits(3, 10*time.Minute))
	s.Require().NoError(err)
	s.start = time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
}

func (s *GuardSuite) at(offset time.Duration) context.Context {
	return requestcontext.WithTime(context.Background(), s.start.Add(offset))
}

func (s *GuardSuite) TestLocksAfterMaxAttempts() {
	for i := range 3 {
		s.Require().NoError(s.guard.Check(s.at(0), "a@example.org"), "attempt %d", i)
		s.Require().NoError(s.guard.RecordFailure(s.at(0), "a@example.org"))
	}
	err := s.guard.Check(s.at(time.Minute), "a@example.org")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeRateLimited))

	s.NoError(s.guard.Check(s.at(time.Minute), "b@example.org"), "other identifiers are unaffected")
}

func (s *GuardSuite) TestWindowExpires() {
	for range 3 {
		s.Require().NoError(s.guard.RecordFailure(s.at(0), "a@example.org"))
	}
	s.Error(s.guard.Check(s.at(9*time.Minute), "a@example.org"))
	s.NoError(s.guard.Check(s.at(10*time.Minute), "a@example.org"))
}

func (s *GuardSuite) TestClearResets() {
	for range 3 {
		s.Require().NoError(s.guard.RecordFailure(s.at(0), "a@example.org"))
	}
	s.Require().NoError(s.guard.Clear(s.at(0), "a@example.org"))
	s.NoError(s.guard.Check(s.at(0), "a@example.org"))
}

func (s *GuardSuite) TestRequiresStore() {
	_, err := New(nil)
	s.Error(err)
}
