package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"mutuelle/internal/access"
	"mutuelle/internal/directory/models"
	id "mutuelle/pkg/domain"
	"mutuelle/pkg/platform/sentinel"
)

// InMemoryStore keeps the directory in maps guarded by one lock, so
// referential checks and the write they protect are atomic.
type InMemoryStore struct {
	mu         sync.RWMutex
	zones      map[id.ZoneID]*models.Zone
	structures map[id.StructureID]*models.Structure
	operators  map[id.OperatorID]*models.Operator
	members    map[id.MemberID]*models.Member
	nextID     int64
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		zones:      make(map[id.ZoneID]*models.Zone),
		structures: make(map[id.StructureID]*models.Structure),
		operators:  make(map[id.OperatorID]*models.Operator),
		members:    make(map[id.MemberID]*models.Member),
	}
}

// next hands out ids from one sequence; callers hold mu.
func (s *InMemoryStore) next() int64 {
	s.nextID++
	return s.nextID
}

func (s *InMemoryStore) CreateZone(_ context.Context, z *models.Zone) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.zones {
		if existing.Name == z.Name {
			return fmt.Errorf("zone %q: %w", z.Name, sentinel.ErrConflict)
		}
	}
	if !z.ResponsibleID.IsNil() {
		if _, ok := s.operators[z.ResponsibleID]; !ok {
			return fmt.Errorf("responsible operator %s: %w", z.ResponsibleID, sentinel.ErrNotFound)
		}
	}
	z.ID = id.ZoneID(s.next())
	cp := *z
	s.zones[z.ID] = &cp
	return nil
}

func (s *InMemoryStore) GetZone(_ context.Context, zoneID id.ZoneID) (*models.Zone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	z, ok := s.zones[zoneID]
	if !ok {
		return nil, fmt.Errorf("zone %s: %w", zoneID, sentinel.ErrNotFound)
	}
	cp := *z
	return &cp, nil
}

func (s *InMemoryStore) ListZones(_ context.Context) ([]*models.Zone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Zone, 0, len(s.zones))
	for _, z := range s.zones {
		cp := *z
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemoryStore) DeleteZone(_ context.Context, zoneID id.ZoneID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.zones[zoneID]; !ok {
		return fmt.Errorf("zone %s: %w", zoneID, sentinel.ErrNotFound)
	}
	for _, st := range s.structures {
		if st.ZoneID == zoneID {
			return fmt.Errorf("zone %s still has structures: %w", zoneID, sentinel.ErrConflict)
		}
	}
	for _, m := range s.members {
		if m.ZoneID == zoneID {
			return fmt.Errorf("zone %s still has members: %w", zoneID, sentinel.ErrConflict)
		}
	}
	for _, o := range s.operators {
		if sc, ok := o.Scope.(access.ZoneScope); ok && sc.Zone == zoneID {
			return fmt.Errorf("zone %s still has operators: %w", zoneID, sentinel.ErrConflict)
		}
	}
	delete(s.zones, zoneID)
	return nil
}

func (s *InMemoryStore) CreateStructure(_ context.Context, st *models.Structure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.zones[st.ZoneID]; !ok {
		return fmt.Errorf("zone %s: %w", st.ZoneID, sentinel.ErrNotFound)
	}
	for _, existing := range s.structures {
		if existing.ZoneID == st.ZoneID && existing.Name == st.Name {
			return fmt.Errorf("structure %q: %w", st.Name, sentinel.ErrConflict)
		}
	}
	st.ID = id.StructureID(s.next())
	cp := *st
	s.structures[st.ID] = &cp
	return nil
}

func (s *InMemoryStore) GetStructure(_ context.Context, structureID id.StructureID) (*models.Structure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.structures[structureID]
	if !ok {
		return nil, fmt.Errorf("structure %s: %w", structureID, sentinel.ErrNotFound)
	}
	cp := *st
	return &cp, nil
}

// ListStructures lists the structures of zoneID, or all when zoneID is zero.
func (s *InMemoryStore) ListStructures(_ context.Context, zoneID id.ZoneID) ([]*models.Structure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Structure
	for _, st := range s.structures {
		if zoneID.IsNil() || st.ZoneID == zoneID {
			cp := *st
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemoryStore) DeleteStructure(_ context.Context, structureID id.StructureID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.structures[structureID]; !ok {
		return fmt.Errorf("structure %s: %w", structureID, sentinel.ErrNotFound)
	}
	for _, m := range s.members {
		if m.StructureID == structureID {
			return fmt.Errorf("structure %s still has members: %w", structureID, sentinel.ErrConflict)
		}
	}
	for _, o := range s.operators {
		if sc, ok := o.Scope.(access.StructureScope); ok && sc.Structure == structureID {
			return fmt.Errorf("structure %s still has operators: %w", structureID, sentinel.ErrConflict)
		}
	}
	delete(s.structures, structureID)
	return nil
}

func (s *InMemoryStore) CreateOperator(_ context.Context, o *models.Operator) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.operators {
		if existing.Email == o.Email {
			return fmt.Errorf("operator %q: %w", o.Email, sentinel.ErrConflict)
		}
	}
	switch sc := o.Scope.(type) {
	case access.ZoneScope:
		if _, ok := s.zones[sc.Zone]; !ok {
			return fmt.Errorf("zone %s: %w", sc.Zone, sentinel.ErrNotFound)
		}
	case access.StructureScope:
		if _, ok := s.structures[sc.Structure]; !ok {
			return fmt.Errorf("structure %s: %w", sc.Structure, sentinel.ErrNotFound)
		}
	}
	o.ID = id.OperatorID(s.next())
	cp := *o
	s.operators[o.ID] = &cp
	return nil
}

func (s *InMemoryStore) GetOperator(_ context.Context, operatorID id.OperatorID) (*models.Operator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.operators[operatorID]
	if !ok {
		return nil, fmt.Errorf("operator %s: %w", operatorID, sentinel.ErrNotFound)
	}
	cp := *o
	return &cp, nil
}

func (s *InMemoryStore) FindOperatorByEmail(_ context.Context, email string) (*models.Operator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.operators {
		if o.Email == email {
			cp := *o
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("operator %q: %w", email, sentinel.ErrNotFound)
}

func (s *InMemoryStore) ListOperators(_ context.Context) ([]*models.Operator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Operator, 0, len(s.operators))
	for _, o := range s.operators {
		cp := *o
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemoryStore) CountOperators(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.operators), nil
}

func (s *InMemoryStore) CreateMember(_ context.Context, m *models.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.zones[m.ZoneID]; !ok {
		return fmt.Errorf("zone %s: %w", m.ZoneID, sentinel.ErrNotFound)
	}
	if !m.StructureID.IsNil() {
		st, ok := s.structures[m.StructureID]
		if !ok || st.ZoneID != m.ZoneID {
			return fmt.Errorf("structure %s in zone %s: %w", m.StructureID, m.ZoneID, sentinel.ErrNotFound)
		}
	}
	m.ID = id.MemberID(s.next())
	cp := *m
	s.members[m.ID] = &cp
	return nil
}

func (s *InMemoryStore) GetMember(_ context.Context, memberID id.MemberID) (*models.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[memberID]
	if !ok {
		return nil, fmt.Errorf("member %s: %w", memberID, sentinel.ErrNotFound)
	}
	cp := *m
	return &cp, nil
}

func (s *InMemoryStore) ListMembers(_ context.Context, filter models.MemberFilter) ([]*models.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Member
	for _, m := range s.members {
		if !filter.ZoneID.IsNil() && m.ZoneID != filter.ZoneID {
			continue
		}
		if !filter.StructureID.IsNil() && m.StructureID != filter.StructureID {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemoryStore) DeleteMember(_ context.Context, memberID id.MemberID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[memberID]; !ok {
		return fmt.Errorf("member %s: %w", memberID, sentinel.ErrNotFound)
	}
	delete(s.members, memberID)
	return nil
}
