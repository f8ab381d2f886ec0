package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/sweet-shop/internal/core/domain"
)

// MemoryAdapter keeps sweets and users in process memory. It backs
// STORE_DRIVER=memory and the handler and service tests.
type MemoryAdapter struct {
	mu     sync.Mutex
	sweets map[string]domain.Sweet
	users  map[string]domain.User
	seq    map[string]uint64 // insertion order of sweets
	next   uint64
	now    func() time.Time
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		sweets: make(map[string]domain.Sweet),
		users:  make(map[string]domain.User),
		seq:    make(map[string]uint64),
		now:    time.Now,
	}
}

func (m *MemoryAdapter) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *MemoryAdapter) FindAll(ctx context.Context) ([]domain.Sweet, error) {
	return m.FindByFilter(ctx, domain.SweetFilter{})
}

func (m *MemoryAdapter) FindByID(ctx context.Context, id string) (*domain.Sweet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sweets[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *MemoryAdapter) FindByFilter(ctx context.Context, filter domain.SweetFilter) ([]domain.Sweet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]domain.Sweet, 0, len(m.sweets))
	for _, s := range m.sweets {
		if filter.Matches(s) {
			result = append(result, s)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return m.seq[result[i].ID] > m.seq[result[j].ID]
	})
	return result, nil
}

func (m *MemoryAdapter) Insert(ctx context.Context, sweet domain.Sweet) (*domain.Sweet, error) {
	if err := sweet.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	sweet.ID = uuid.NewString()
	sweet.Version = 1
	sweet.CreatedAt = now
	sweet.UpdatedAt = now
	m.sweets[sweet.ID] = sweet
	m.next++
	m.seq[sweet.ID] = m.next
	return &sweet, nil
}

func (m *MemoryAdapter) Update(ctx context.Context, id string, patch domain.SweetPatch) (*domain.Sweet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.sweets[id]
	if !ok {
		return nil, domain.ErrNotFound
	}

	merged := patch.Apply(current)
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	merged.Version++
	merged.UpdatedAt = m.now()
	m.sweets[id] = merged
	return &merged, nil
}

func (m *MemoryAdapter) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sweets[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.sweets, id)
	delete(m.seq, id)
	return nil
}

func (m *MemoryAdapter) DecrementQuantity(ctx context.Context, id string, n int) (*domain.Sweet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sweets[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if s.Quantity < n {
		return nil, &domain.InsufficientStockError{Available: s.Quantity}
	}
	s.Quantity -= n
	s.Version++
	s.UpdatedAt = m.now()
	m.sweets[id] = s
	return &s, nil
}

func (m *MemoryAdapter) IncrementQuantity(ctx context.Context, id string, n int) (*domain.Sweet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sweets[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if n > domain.MaxQuantity-s.Quantity {
		return nil, domain.ErrInvalidQuantity
	}
	s.Quantity += n
	s.Version++
	s.UpdatedAt = m.now()
	m.sweets[id] = s
	return &s, nil
}

func (m *MemoryAdapter) CreateUser(ctx context.Context, user domain.User) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Email == user.Email {
			return nil, domain.ErrEmailTaken
		}
	}
	user.ID = uuid.NewString()
	user.CreatedAt = m.now()
	m.users[user.ID] = user
	return &user, nil
}

func (m *MemoryAdapter) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, nil
}

func (m *MemoryAdapter) FindUserByID(ctx context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}
