package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"mutuelle/internal/ledger/models"
	id "mutuelle/pkg/domain"
	"mutuelle/pkg/platform/sentinel"
)

// DefaultLockTimeout bounds how long a writer waits for a member's lock.
const DefaultLockTimeout = 2 * time.Second

// entry holds one member's committed state and its writer lock.
//
// lock is a one-slot semaphore: a send acquires, a receive releases. Unlike
// sync.Mutex it can be acquired with a deadline.
//
// current is replaced wholesale on commit and never mutated afterwards, so
// readers load it without taking lock and always see a complete state.
type entry struct {
	lock    chan struct{}
	current atomic.Pointer[models.Account]
}

// InMemoryStore serializes writers per member and lets readers proceed
// without blocking. Different members never contend.
type InMemoryStore struct {
	mu          sync.RWMutex
	accounts    map[id.MemberID]*entry
	lockTimeout time.Duration
}

type MemoryOption func(*InMemoryStore)

// WithLockTimeout overrides DefaultLockTimeout.
func WithLockTimeout(d time.Duration) MemoryOption {
	return func(s *InMemoryStore) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

func NewInMemory(opts ...MemoryOption) *InMemoryStore {
	s := &InMemoryStore{
		accounts:    make(map[id.MemberID]*entry),
		lockTimeout: DefaultLockTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemoryStore) Open(_ context.Context, acct *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[acct.MemberID]; ok {
		return fmt.Errorf("account %s: %w", acct.MemberID, sentinel.ErrConflict)
	}
	e := &entry{lock: make(chan struct{}, 1)}
	e.current.Store(acct.Clone())
	s.accounts[acct.MemberID] = e
	return nil
}

func (s *InMemoryStore) lookup(memberID id.MemberID) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.accounts[memberID]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", memberID, sentinel.ErrNotFound)
	}
	return e, nil
}

// Get returns a copy of the last committed state.
func (s *InMemoryStore) Get(_ context.Context, memberID id.MemberID) (*models.Account, error) {
	e, err := s.lookup(memberID)
	if err != nil {
		return nil, err
	}
	return e.current.Load().Clone(), nil
}

// Execute runs fn against a private copy of the member's account while
// holding that member's lock, and commits the copy only if fn succeeds.
// A lock not acquired within the timeout yields sentinel.ErrLockTimeout.
func (s *InMemoryStore) Execute(ctx context.Context, memberID id.MemberID, fn func(acct *models.Account) error) (*models.Account, error) {
	e, err := s.lookup(memberID)
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(s.lockTimeout)
	defer timer.Stop()
	select {
	case e.lock <- struct{}{}:
	case <-timer.C:
		return nil, fmt.Errorf("account %s: %w", memberID, sentinel.ErrLockTimeout)
	case <-ctx.Done():
		return nil, fmt.Errorf("account %s: %w: %w", memberID, sentinel.ErrLockTimeout, ctx.Err())
	}
	defer func() { <-e.lock }()

	working := e.current.Load().Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	working.CheckInvariants()
	e.current.Store(working)
	return working.Clone(), nil
}

// ListMemberIDs returns every account's member id in ascending order.
func (s *InMemoryStore) ListMemberIDs(_ context.Context) ([]id.MemberID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]id.MemberID, 0, len(s.accounts))
	for memberID := range s.accounts {
		ids = append(ids, memberID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
