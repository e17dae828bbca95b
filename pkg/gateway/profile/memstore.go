package profile

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemStore is an in-process Store for tests and the dev mode of the gateway.
// Mutating operations take the store lock, so the read-increment-write
// contract on the exchange counter holds across concurrent calls. Reads and
// writes exchange deep copies, matching the value semantics of a row store:
// mutating a returned profile never touches the stored one.
type MemStore struct {
	mu      sync.Mutex
	byID    map[string]*Profile
	byPhone map[string]string
}

func NewMemStore() *MemStore {
	return &MemStore{
		byID:    make(map[string]*Profile),
		byPhone: make(map[string]string),
	}
}

func (s *MemStore) Get(ctx context.Context, id string) (*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneProfile(p), nil
}

func (s *MemStore) GetByPhone(ctx context.Context, phone string) (*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byPhone[phone]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneProfile(s.byID[id]), nil
}

func (s *MemStore) Create(ctx context.Context, p *Profile) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("profile id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[p.ID]; exists {
		return fmt.Errorf("profile %s already exists", p.ID)
	}
	cp := cloneProfile(p)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	if cp.Tier == "" {
		cp.Tier = TierFree
	}
	s.byID[cp.ID] = cp
	if cp.Phone != "" {
		s.byPhone[cp.Phone] = cp.ID
	}
	return nil
}

func (s *MemStore) Update(ctx context.Context, id string, patch Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Tier != nil {
		p.Tier = *patch.Tier
	}
	if patch.GreetingIdx != nil {
		p.GreetingIdx = *patch.GreetingIdx
	}
	if patch.LastCallAt != nil {
		t := *patch.LastCallAt
		p.LastCallAt = &t
	}
	if patch.Memory != nil {
		p.Memory = cloneMemory(*patch.Memory)
	}
	return nil
}

func (s *MemStore) IncrementExchanges(ctx context.Context, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return 0, ErrNotFound
	}
	p.TotalExchanges++
	return p.TotalExchanges, nil
}

func (s *MemStore) SaveFlow(ctx context.Context, id string, fs FlowState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	p.Flow = cloneFlow(fs)
	return nil
}

func (s *MemStore) MarkLinkSent(ctx context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return false, ErrNotFound
	}
	if p.PaymentLinkSentAt != nil {
		return false, nil
	}
	t := at.UTC()
	p.PaymentLinkSentAt = &t
	return true, nil
}

func (s *MemStore) ClearLinkSent(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	p.PaymentLinkSentAt = nil
	return nil
}

func (s *MemStore) Merge(ctx context.Context, dstID, srcID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dst, ok := s.byID[dstID]
	if !ok {
		return fmt.Errorf("merge dst: %w", ErrNotFound)
	}
	src, ok := s.byID[srcID]
	if !ok {
		return fmt.Errorf("merge src: %w", ErrNotFound)
	}
	out := merged(dst, src)
	s.byID[dstID] = out
	delete(s.byID, srcID)
	if src.Phone != "" {
		s.byPhone[src.Phone] = dstID
	}
	if out.Phone != "" {
		s.byPhone[out.Phone] = dstID
	}
	return nil
}

func cloneProfile(p *Profile) *Profile {
	cp := *p
	cp.PaymentLinkSentAt = cloneTime(p.PaymentLinkSentAt)
	cp.LastCallAt = cloneTime(p.LastCallAt)
	cp.Flow = cloneFlow(p.Flow)
	cp.Memory = cloneMemory(p.Memory)
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

func cloneFlow(fs FlowState) FlowState {
	if fs.LastPhrase != nil {
		m := make(map[string]int, len(fs.LastPhrase))
		for k, v := range fs.LastPhrase {
			m[k] = v
		}
		fs.LastPhrase = m
	}
	return fs
}

func cloneMemory(m Memory) Memory {
	m.Relationships = append([]Relationship(nil), m.Relationships...)
	m.PastEvents = append([]Event(nil), m.PastEvents...)
	m.UpcomingEvents = append([]Event(nil), m.UpcomingEvents...)
	m.EmotionalPatterns = append([]string(nil), m.EmotionalPatterns...)
	m.Goals = append([]Goal(nil), m.Goals...)
	m.Challenges = append([]string(nil), m.Challenges...)
	m.Wins = append([]string(nil), m.Wins...)
	m.RecentTopics = append([]Topic(nil), m.RecentTopics...)
	m.Preferences = append([]string(nil), m.Preferences...)
	m.Insights = append([]Insight(nil), m.Insights...)
	m.NextActions = append([]string(nil), m.NextActions...)
	summaries := append([]Summary(nil), m.Summaries...)
	for i := range summaries {
		summaries[i].KeyPoints = append([]string(nil), summaries[i].KeyPoints...)
	}
	m.Summaries = summaries
	return m
}
