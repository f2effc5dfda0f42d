package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/dkuznetsov/link-registry/internal/models"
	"github.com/dkuznetsov/link-registry/internal/repository"
)

// MockLinkRepository реализует repository.LinkRepository в памяти.
// Семантика конфликтов повторяет констрейнт БД: проверка и запись
// выполняются под одним мьютексом.
type MockLinkRepository struct {
	mu    sync.RWMutex
	links map[string]*models.Link
}

func NewMockLinkRepository() *MockLinkRepository {
	return &MockLinkRepository{
		links: make(map[string]*models.Link),
	}
}

func (m *MockLinkRepository) Create(ctx context.Context, link *models.Link) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.links[link.ShortCode]; exists {
		return repository.ErrCodeExists
	}

	stored := *link
	stored.AccessLog = nil
	m.links[link.ShortCode] = &stored
	return nil
}

func (m *MockLinkRepository) GetByShortCode(ctx context.Context, code string) (*models.Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	link, exists := m.links[code]
	if !exists {
		return nil, repository.ErrLinkNotFound
	}
	return copyLink(link), nil
}

func (m *MockLinkRepository) ListAll(ctx context.Context) ([]*models.Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	links := make([]*models.Link, 0, len(m.links))
	for _, link := range m.links {
		links = append(links, copyLink(link))
	}
	return links, nil
}

func (m *MockLinkRepository) Rename(ctx context.Context, oldCode, newCode string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	link, exists := m.links[oldCode]
	if !exists {
		return repository.ErrLinkNotFound
	}
	if _, taken := m.links[newCode]; taken {
		return repository.ErrCodeExists
	}

	delete(m.links, oldCode)
	link.ShortCode = newCode
	m.links[newCode] = link
	return nil
}

func (m *MockLinkRepository) Delete(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.links[code]; !exists {
		return repository.ErrLinkNotFound
	}
	delete(m.links, code)
	return nil
}

func (m *MockLinkRepository) AppendAccess(ctx context.Context, code string, event *models.AccessEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	link, exists := m.links[code]
	if !exists {
		// Гонка с удалением: тихий no-op, как в хранилище.
		return nil
	}

	link.AccessCount++
	link.AccessLog = append(link.AccessLog, *event)
	return nil
}

func (m *MockLinkRepository) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links = make(map[string]*models.Link)
}

func copyLink(link *models.Link) *models.Link {
	cp := *link
	if link.Owner != nil {
		owner := *link.Owner
		cp.Owner = &owner
	}
	cp.AccessLog = append([]models.AccessEvent(nil), link.AccessLog...)
	return &cp
}

// MockUserRepository реализует repository.UserRepository в памяти.
type MockUserRepository struct {
	mu    sync.RWMutex
	users map[string]*models.User
}

func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{
		users: make(map[string]*models.User),
	}
}

func (m *MockUserRepository) Register(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.users[user.Username]; exists {
		return repository.ErrUserExists
	}

	user.CreatedAt = time.Now()
	stored := *user
	m.users[user.Username] = &stored
	return nil
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, exists := m.users[username]
	if !exists {
		return nil, repository.ErrUserNotFound
	}
	cp := *user
	return &cp, nil
}

func (m *MockUserRepository) UpdateRole(ctx context.Context, username, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, exists := m.users[username]
	if !exists {
		return repository.ErrUserNotFound
	}
	user.Role = role
	return nil
}
