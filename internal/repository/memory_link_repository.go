package repository

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SergeiKhy/tinylink/internal/models"
)

const defaultShardCount = 32

// memoryShard часть пространства кодов со своим мьютексом
type memoryShard struct {
	mu    sync.RWMutex
	links map[string]*models.Link
}

// memoryLinkRepository хранит ссылки в памяти процесса.
// Код хешируется в один из шардов, поэтому операции над разными кодами
// почти не конкурируют за блокировку.
type memoryLinkRepository struct {
	shards []*memoryShard
	seq    atomic.Int64
}

// NewMemoryLinkRepository создаёт in-memory хранилище с заданным числом шардов
func NewMemoryLinkRepository(shardCount int) LinkRepository {
	if shardCount <= 0 {
		shardCount = defaultShardCount
	}

	shards := make([]*memoryShard, shardCount)
	for i := range shards {
		shards[i] = &memoryShard{links: make(map[string]*models.Link)}
	}

	return &memoryLinkRepository{shards: shards}
}

func (r *memoryLinkRepository) shard(code string) *memoryShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(code))
	return r.shards[h.Sum32()%uint32(len(r.shards))]
}

func (r *memoryLinkRepository) Create(ctx context.Context, link *models.Link) error {
	s := r.shard(link.Code)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.links[link.Code]; exists {
		return ErrCodeExists
	}

	link.ID = r.seq.Add(1)
	link.Clicks = 0
	link.LastClicked = nil
	s.links[link.Code] = link.Clone()
	return nil
}

func (r *memoryLinkRepository) GetByCode(ctx context.Context, code string) (*models.Link, error) {
	s := r.shard(code)
	s.mu.RLock()
	defer s.mu.RUnlock()

	link, exists := s.links[code]
	if !exists {
		return nil, ErrLinkNotFound
	}
	return link.Clone(), nil
}

func (r *memoryLinkRepository) List(ctx context.Context) ([]*models.Link, error) {
	links := make([]*models.Link, 0)
	for _, s := range r.shards {
		s.mu.RLock()
		for _, link := range s.links {
			links = append(links, link.Clone())
		}
		s.mu.RUnlock()
	}

	// Порядок вставки
	sort.Slice(links, func(i, j int) bool {
		return links[i].ID < links[j].ID
	})

	return links, nil
}

func (r *memoryLinkRepository) RecordClick(ctx context.Context, code string, at time.Time) (*models.Link, error) {
	s := r.shard(code)
	s.mu.Lock()
	defer s.mu.Unlock()

	link, exists := s.links[code]
	if !exists {
		return nil, ErrLinkNotFound
	}

	link.Clicks++
	clickedAt := at
	link.LastClicked = &clickedAt
	return link.Clone(), nil
}

func (r *memoryLinkRepository) Delete(ctx context.Context, code string) error {
	s := r.shard(code)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.links[code]; !exists {
		return ErrLinkNotFound
	}
	delete(s.links, code)
	return nil
}

func (r *memoryLinkRepository) Ping(ctx context.Context) error {
	return nil
}
