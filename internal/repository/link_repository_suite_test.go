package repository_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/SergeiKhy/tinylink/internal/models"
	"github.com/SergeiKhy/tinylink/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runLinkRepositorySuite проверяет контракт LinkRepository на любой реализации.
// newRepo должен возвращать пустое хранилище.
func runLinkRepositorySuite(t *testing.T, newRepo func(t *testing.T) repository.LinkRepository) {
	t.Run("создание и чтение", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		created := newLink("Tst123a", "http://x/y")
		require.NoError(t, repo.Create(ctx, created))
		assert.NotZero(t, created.ID)
		assert.Zero(t, created.Clicks)
		assert.Nil(t, created.LastClicked)

		got, err := repo.GetByCode(ctx, "Tst123a")
		require.NoError(t, err)
		assert.Equal(t, "Tst123a", got.Code)
		assert.Equal(t, "http://x/y", got.Target)
		assert.Zero(t, got.Clicks)
		assert.Nil(t, got.LastClicked)
	})

	t.Run("повторный код", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		require.NoError(t, repo.Create(ctx, newLink("dup0001", "http://a/1")))
		err := repo.Create(ctx, newLink("dup0001", "http://b/2"))
		assert.ErrorIs(t, err, repository.ErrCodeExists)

		got, err := repo.GetByCode(ctx, "dup0001")
		require.NoError(t, err)
		assert.Equal(t, "http://a/1", got.Target, "проигравший create не должен перезаписать цель")
	})

	t.Run("несуществующий код", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.GetByCode(ctx, "nothere")
		assert.ErrorIs(t, err, repository.ErrLinkNotFound)

		_, err = repo.RecordClick(ctx, "nothere", time.Now())
		assert.ErrorIs(t, err, repository.ErrLinkNotFound)

		assert.ErrorIs(t, repo.Delete(ctx, "nothere"), repository.ErrLinkNotFound)
	})

	t.Run("клик", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		require.NoError(t, repo.Create(ctx, newLink("click01", "http://x/c")))

		at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		link, err := repo.RecordClick(ctx, "click01", at)
		require.NoError(t, err)
		assert.Equal(t, int64(1), link.Clicks)
		assert.Equal(t, "http://x/c", link.Target)
		require.NotNil(t, link.LastClicked)
		assert.True(t, at.Equal(*link.LastClicked))

		got, err := repo.GetByCode(ctx, "click01")
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.Clicks)
		require.NotNil(t, got.LastClicked)
	})

	t.Run("список в порядке вставки", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		codes := []string{"list001", "list002", "list003"}
		for _, code := range codes {
			require.NoError(t, repo.Create(ctx, newLink(code, "http://x/"+code)))
		}
		require.NoError(t, repo.Delete(ctx, "list002"))

		links, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, links, 2)
		assert.Equal(t, "list001", links[0].Code)
		assert.Equal(t, "list003", links[1].Code)
	})

	t.Run("удаление видно сразу", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		require.NoError(t, repo.Create(ctx, newLink("gone001", "http://x/g")))

		require.NoError(t, repo.Delete(ctx, "gone001"))

		_, err := repo.GetByCode(ctx, "gone001")
		assert.ErrorIs(t, err, repository.ErrLinkNotFound)
		_, err = repo.RecordClick(ctx, "gone001", time.Now())
		assert.ErrorIs(t, err, repository.ErrLinkNotFound)
		assert.ErrorIs(t, repo.Delete(ctx, "gone001"), repository.ErrLinkNotFound)

		// Удалённый код можно занять снова
		require.NoError(t, repo.Create(ctx, newLink("gone001", "http://x/new")))
		got, err := repo.GetByCode(ctx, "gone001")
		require.NoError(t, err)
		assert.Zero(t, got.Clicks)
		assert.Equal(t, "http://x/new", got.Target)
	})

	t.Run("конкурентные клики не теряются", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		require.NoError(t, repo.Create(ctx, newLink("race001", "http://x/r")))

		const n = 100
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.RecordClick(ctx, "race001", time.Now())
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		got, err := repo.GetByCode(ctx, "race001")
		require.NoError(t, err)
		assert.Equal(t, int64(n), got.Clicks)
	})

	t.Run("конкурентное создание одного кода", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		const n = 20
		var wins, conflicts atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				err := repo.Create(ctx, newLink("same001", fmt.Sprintf("http://x/%d", i)))
				switch {
				case err == nil:
					wins.Add(1)
				case assert.ErrorIs(t, err, repository.ErrCodeExists):
					conflicts.Add(1)
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, int32(1), wins.Load())
		assert.Equal(t, int32(n-1), conflicts.Load())
	})

	t.Run("клик после конкурентного удаления", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		require.NoError(t, repo.Create(ctx, newLink("race002", "http://x/d")))

		var wg sync.WaitGroup
		var clicked atomic.Int64
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := repo.RecordClick(ctx, "race002", time.Now()); err == nil {
					clicked.Add(1)
				} else {
					assert.ErrorIs(t, err, repository.ErrLinkNotFound)
				}
			}()
		}
		require.NoError(t, repo.Delete(ctx, "race002"))
		wg.Wait()

		// Запись не должна "воскреснуть" после удаления
		_, err := repo.GetByCode(ctx, "race002")
		assert.ErrorIs(t, err, repository.ErrLinkNotFound)
		links, err := repo.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, links)
	})

	t.Run("ping", func(t *testing.T) {
		repo := newRepo(t)
		assert.NoError(t, repo.Ping(context.Background()))
	})
}

func newLink(code, target string) *models.Link {
	return &models.Link{
		Code:      code,
		Target:    target,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
}
