package verification

import (
	"context"
	"errors"
	"sync"

	"mutuelle/internal/access"
	dErrors "mutuelle/pkg/domain-errors"
)

// State of a scan session. A session moves Idle -> Scanning -> one of the
// terminal states, and back to Idle on Reset, on the next Scan, or
// directly from Scanning on abort.
type State string

const (
	StateIdle        State = "idle"
	StateScanning    State = "scanning"
	StateResolved    State = "resolved"
	StateNotFound    State = "not_found"
	StateReaderError State = "reader_error"
)

// ErrAborted is returned by Scan when the scan was cancelled before a
// terminal state was reached. No result is produced.
var ErrAborted = errors.New("scan aborted")

// Source delivers the next presented credential. Next blocks until one is
// available or ctx is done.
type Source interface {
	Next(ctx context.Context) (Credential, error)
}

// ChanSource adapts a channel fed by a reader driver.
type ChanSource <-chan Credential

func (c ChanSource) Next(ctx context.Context) (Credential, error) {
	select {
	case cred, ok := <-c:
		if !ok {
			return Credential{}, dErrors.New(dErrors.CodeReaderError, "reader closed")
		}
		return cred, nil
	case <-ctx.Done():
		return Credential{}, ctx.Err()
	}
}

// Presented is a Source holding a credential that was already read, such as
// one posted by a terminal.
type Presented Credential

func (p Presented) Next(ctx context.Context) (Credential, error) {
	if err := ctx.Err(); err != nil {
		return Credential{}, err
	}
	return Credential(p), nil
}

// Session runs scans for one operator at one terminal, one at a time. A scan
// is counted and audited only once it reaches a terminal state; an aborted
// scan leaves no trace.
type Session struct {
	gateway *Gateway
	subject access.Subject

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	result *Result
}

func NewSession(gateway *Gateway, subject access.Subject) *Session {
	return &Session{gateway: gateway, subject: subject, state: StateIdle}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Result returns the result of the last completed scan, nil when idle or
// scanning.
func (s *Session) Result() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Scan waits for one credential from src and verifies it.
func (s *Session) Scan(ctx context.Context, src Source) (*Result, error) {
	s.mu.Lock()
	if s.state == StateScanning {
		s.mu.Unlock()
		return nil, dErrors.New(dErrors.CodeConflict, "a scan is already in progress")
	}
	ctx, cancel := context.WithCancel(ctx)
	s.state = StateScanning
	s.cancel = cancel
	s.result = nil
	s.mu.Unlock()
	defer cancel()

	cred, err := src.Next(ctx)
	if err == nil {
		var res *Result
		res, err = s.gateway.resolve(ctx, s.subject, cred)
		if err == nil {
			if err := s.complete(ctx, res); err != nil {
				return nil, err
			}
			s.gateway.finish(context.WithoutCancel(ctx), s.subject, res)
			return res, nil
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state, s.cancel = StateIdle, nil
	if ctx.Err() != nil {
		return nil, ErrAborted
	}
	if dErrors.HasCode(err, dErrors.CodeReaderError) {
		s.state = StateReaderError
		s.result = &Result{Outcome: OutcomeReaderError, Message: dErrors.Message(dErrors.CodeReaderError)}
		return s.result, nil
	}
	return nil, err
}

// complete records res unless the scan was aborted meanwhile. Once it has
// returned nil, Abort no longer applies to this scan.
func (s *Session) complete(ctx context.Context, res *Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel = nil
	if ctx.Err() != nil {
		s.state = StateIdle
		return ErrAborted
	}
	switch res.Outcome {
	case OutcomeResolved:
		s.state = StateResolved
	case OutcomeNotFound:
		s.state = StateNotFound
	default:
		s.state = StateReaderError
	}
	s.result = res
	return nil
}

// Abort cancels a running scan. It has no effect in any other state.
func (s *Session) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateScanning && s.cancel != nil {
		s.cancel()
	}
}

// Reset returns a finished session to Idle.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateScanning {
		s.state = StateIdle
		s.result = nil
	}
}
