package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/SergeiKhy/tinylink/internal/models"
	"github.com/SergeiKhy/tinylink/internal/repository"
)

// MockLinkRepository implements repository.LinkRepository for testing.
// Err hooks, when set, are consulted before the in-memory behaviour.
type MockLinkRepository struct {
	mu     sync.Mutex
	links  map[string]*models.Link
	nextID int64

	CreateErr      func(link *models.Link) error
	RecordClickErr func(code string, attempt int) error
	PingErr        error

	CreateCalls      int
	RecordClickCalls int
}

func NewMockLinkRepository() *MockLinkRepository {
	return &MockLinkRepository{
		links:  make(map[string]*models.Link),
		nextID: 1,
	}
}

func (m *MockLinkRepository) Create(ctx context.Context, link *models.Link) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CreateCalls++
	if m.CreateErr != nil {
		if err := m.CreateErr(link); err != nil {
			return err
		}
	}

	if _, exists := m.links[link.Code]; exists {
		return repository.ErrCodeExists
	}

	link.ID = m.nextID
	m.nextID++
	m.links[link.Code] = link.Clone()
	return nil
}

func (m *MockLinkRepository) GetByCode(ctx context.Context, code string) (*models.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	link, exists := m.links[code]
	if !exists {
		return nil, repository.ErrLinkNotFound
	}
	return link.Clone(), nil
}

func (m *MockLinkRepository) List(ctx context.Context) ([]*models.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	links := make([]*models.Link, 0, len(m.links))
	for _, link := range m.links {
		links = append(links, link.Clone())
	}
	sort.Slice(links, func(i, j int) bool { return links[i].ID < links[j].ID })
	return links, nil
}

func (m *MockLinkRepository) RecordClick(ctx context.Context, code string, at time.Time) (*models.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.RecordClickCalls++
	if m.RecordClickErr != nil {
		if err := m.RecordClickErr(code, m.RecordClickCalls); err != nil {
			return nil, err
		}
	}

	link, exists := m.links[code]
	if !exists {
		return nil, repository.ErrLinkNotFound
	}
	link.Clicks++
	clickedAt := at
	link.LastClicked = &clickedAt
	return link.Clone(), nil
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

func (m *MockLinkRepository) Ping(ctx context.Context) error {
	return m.PingErr
}

func (m *MockLinkRepository) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links = make(map[string]*models.Link)
	m.nextID = 1
	m.CreateCalls = 0
	m.RecordClickCalls = 0
}

// MockReachabilityChecker records checked targets and returns Err
type MockReachabilityChecker struct {
	mu      sync.Mutex
	Err     error
	Checked []string
}

func (m *MockReachabilityChecker) Check(ctx context.Context, target string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Checked = append(m.Checked, target)
	return m.Err
}
