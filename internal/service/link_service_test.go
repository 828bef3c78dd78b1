package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/SergeiKhy/tinylink/internal/models"
	"github.com/SergeiKhy/tinylink/internal/repository"
	"github.com/SergeiKhy/tinylink/internal/service"
	"github.com/SergeiKhy/tinylink/internal/service/mocks"
	"github.com/SergeiKhy/tinylink/internal/shortcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

// setupTestService создаёт тестовое окружение с моковым репозиторием
func setupTestService(t *testing.T, opts service.LinkServiceOptions) (service.LinkService, *mocks.MockLinkRepository) {
	t.Helper()

	linkRepo := mocks.NewMockLinkRepository()
	logger := zap.NewNop()

	processor := service.NewClickProcessor(linkRepo, service.ClickProcessorConfig{Workers: 2, QueueSize: 16}, logger)
	processor.Start()
	t.Cleanup(processor.Stop)

	opts.ClickProcessor = processor
	opts.Logger = logger
	if opts.Now == nil {
		opts.Now = func() time.Time { return fixedNow }
	}

	linkService, err := service.NewLinkService(linkRepo, opts)
	require.NoError(t, err)
	return linkService, linkRepo
}

func strPtr(s string) *string {
	return &s
}

// TestLinkService_CreateLink_Success проверяет создание ссылки с генерируемым кодом
func TestLinkService_CreateLink_Success(t *testing.T) {
	linkService, _ := setupTestService(t, service.LinkServiceOptions{})

	link, err := linkService.CreateLink(context.Background(), &models.CreateLinkInput{
		Target: "https://example.com/test",
	})

	require.NoError(t, err)
	assert.True(t, shortcode.IsValid(link.Code), "невалидный код %q", link.Code)
	assert.Equal(t, "https://example.com/test", link.Target)
	assert.Zero(t, link.Clicks)
	assert.Nil(t, link.LastClicked)
	assert.Equal(t, fixedNow, link.CreatedAt)
}

// TestLinkService_CreateLink_WithCustomCode проверяет создание ссылки с кастомным кодом
func TestLinkService_CreateLink_WithCustomCode(t *testing.T) {
	linkService, _ := setupTestService(t, service.LinkServiceOptions{})
	ctx := context.Background()

	link, err := linkService.CreateLink(ctx, &models.CreateLinkInput{
		Target: "http://x/y",
		Code:   strPtr("Tst123a"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Tst123a", link.Code)

	got, err := linkService.GetLink(ctx, "Tst123a")
	require.NoError(t, err)
	assert.Equal(t, "http://x/y", got.Target)
}

// TestLinkService_CreateLink_EmptyCodeIsGenerated пустой код означает генерацию
func TestLinkService_CreateLink_EmptyCodeIsGenerated(t *testing.T) {
	linkService, _ := setupTestService(t, service.LinkServiceOptions{
		Generator: shortcode.Sequence("gen0001"),
	})

	link, err := linkService.CreateLink(context.Background(), &models.CreateLinkInput{
		Target: "http://x/y",
		Code:   strPtr(""),
	})
	require.NoError(t, err)
	assert.Equal(t, "gen0001", link.Code)
}

// TestLinkService_CreateLink_Duplicate повторный код отклоняется независимо от цели
func TestLinkService_CreateLink_Duplicate(t *testing.T) {
	linkService, _ := setupTestService(t, service.LinkServiceOptions{})
	ctx := context.Background()

	_, err := linkService.CreateLink(ctx, &models.CreateLinkInput{Target: "http://x/y", Code: strPtr("Tst123a")})
	require.NoError(t, err)

	for _, target := range []string{"http://x/y", "http://other/z"} {
		link, err := linkService.CreateLink(ctx, &models.CreateLinkInput{Target: target, Code: strPtr("Tst123a")})
		assert.ErrorIs(t, err, repository.ErrCodeExists)
		assert.Nil(t, link)
	}
}

// TestLinkService_CreateLink_InvalidCustomCode проверяет валидацию кастомного кода
func TestLinkService_CreateLink_InvalidCustomCode(t *testing.T) {
	linkService, linkRepo := setupTestService(t, service.LinkServiceOptions{})

	invalidCodes := []string{"ab", "abcde", "toolong12", "inv@lid", "my-custom"}
	for _, code := range invalidCodes {
		link, err := linkService.CreateLink(context.Background(), &models.CreateLinkInput{
			Target: "https://example.com/test",
			Code:   strPtr(code),
		})
		assert.ErrorIs(t, err, service.ErrInvalidCode, "код %q", code)
		assert.Nil(t, link)
	}
	assert.Zero(t, linkRepo.CreateCalls, "невалидный код не должен доходить до хранилища")
}

// TestLinkService_CreateLink_InvalidURL проверяет валидацию цели
func TestLinkService_CreateLink_InvalidURL(t *testing.T) {
	linkService, _ := setupTestService(t, service.LinkServiceOptions{})

	invalidURLs := []string{"", "not-a-url", "example.com", "ftp://example.com", "http://", "javascript:alert(1)"}
	for _, target := range invalidURLs {
		link, err := linkService.CreateLink(context.Background(), &models.CreateLinkInput{Target: target})
		assert.ErrorIs(t, err, service.ErrInvalidURL, "URL должен быть невалидным: %q", target)
		assert.Nil(t, link)
	}
}

// TestLinkService_CreateLink_RetriesCollisions коллизии генератора повторяются прозрачно
func TestLinkService_CreateLink_RetriesCollisions(t *testing.T) {
	linkService, linkRepo := setupTestService(t, service.LinkServiceOptions{
		Generator: shortcode.Sequence("taken01", "taken01", "free001"),
	})
	ctx := context.Background()

	_, err := linkService.CreateLink(ctx, &models.CreateLinkInput{Target: "http://x/1", Code: strPtr("taken01")})
	require.NoError(t, err)

	link, err := linkService.CreateLink(ctx, &models.CreateLinkInput{Target: "http://x/2"})
	require.NoError(t, err)
	assert.Equal(t, "free001", link.Code)
	assert.Equal(t, 4, linkRepo.CreateCalls)
}

// TestLinkService_CreateLink_CodeSpaceExhausted генерация сдаётся после MaxAttempts
func TestLinkService_CreateLink_CodeSpaceExhausted(t *testing.T) {
	linkService, linkRepo := setupTestService(t, service.LinkServiceOptions{
		Generator:   shortcode.Sequence("taken01"),
		MaxAttempts: 5,
	})
	ctx := context.Background()

	_, err := linkService.CreateLink(ctx, &models.CreateLinkInput{Target: "http://x/1", Code: strPtr("taken01")})
	require.NoError(t, err)

	_, err = linkService.CreateLink(ctx, &models.CreateLinkInput{Target: "http://x/2"})
	assert.ErrorIs(t, err, service.ErrCodeSpaceExhausted)
	assert.Equal(t, 6, linkRepo.CreateCalls)
}

// TestLinkService_CreateLink_BadGenerator генератор с кодом неверного формата - внутренняя ошибка
func TestLinkService_CreateLink_BadGenerator(t *testing.T) {
	linkService, _ := setupTestService(t, service.LinkServiceOptions{
		Generator: shortcode.Sequence("bad"),
	})

	_, err := linkService.CreateLink(context.Background(), &models.CreateLinkInput{Target: "http://x/1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, shortcode.ErrInvalidFormat)
}

// TestLinkService_CreateLink_StoreError ошибка хранилища не маскируется
func TestLinkService_CreateLink_StoreError(t *testing.T) {
	storeErr := errors.New("connection refused")
	linkService, linkRepo := setupTestService(t, service.LinkServiceOptions{})
	linkRepo.CreateErr = func(*models.Link) error { return storeErr }

	_, err := linkService.CreateLink(context.Background(), &models.CreateLinkInput{Target: "http://x/1"})
	assert.ErrorIs(t, err, storeErr)
	assert.Equal(t, 1, linkRepo.CreateCalls)
}

// TestLinkService_CreateLink_Reachability проверка доступности вызывается до вставки
func TestLinkService_CreateLink_Reachability(t *testing.T) {
	checker := &mocks.MockReachabilityChecker{}
	linkService, linkRepo := setupTestService(t, service.LinkServiceOptions{Checker: checker})
	ctx := context.Background()

	_, err := linkService.CreateLink(ctx, &models.CreateLinkInput{Target: "https://example.com/ok"})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/ok"}, checker.Checked)

	checker.Err = fmt.Errorf("%w: DNS lookup failed", service.ErrUnreachable)
	_, err = linkService.CreateLink(ctx, &models.CreateLinkInput{Target: "https://nowhere.invalid/"})
	assert.ErrorIs(t, err, service.ErrUnreachable)
	assert.Equal(t, 1, linkRepo.CreateCalls)
}

// TestLinkService_ListLinks проверяет список в порядке создания
func TestLinkService_ListLinks(t *testing.T) {
	linkService, _ := setupTestService(t, service.LinkServiceOptions{})
	ctx := context.Background()

	for _, code := range []string{"first01", "second1", "third01"} {
		_, err := linkService.CreateLink(ctx, &models.CreateLinkInput{Target: "http://x/" + code, Code: strPtr(code)})
		require.NoError(t, err)
	}

	links, err := linkService.ListLinks(ctx)
	require.NoError(t, err)
	require.Len(t, links, 3)
	assert.Equal(t, "first01", links[0].Code)
	assert.Equal(t, "third01", links[2].Code)
}

// TestLinkService_GetLink_NotFound проверяет обработку несуществующей ссылки
func TestLinkService_GetLink_NotFound(t *testing.T) {
	linkService, _ := setupTestService(t, service.LinkServiceOptions{})

	for _, code := range []string{"nothere", "favicon.ico", "x"} {
		link, err := linkService.GetLink(context.Background(), code)
		assert.ErrorIs(t, err, repository.ErrLinkNotFound)
		assert.Nil(t, link)
	}
}

// TestLinkService_ResolveLink_CountsClick редирект синхронно увеличивает счётчик
func TestLinkService_ResolveLink_CountsClick(t *testing.T) {
	linkService, _ := setupTestService(t, service.LinkServiceOptions{})
	ctx := context.Background()

	_, err := linkService.CreateLink(ctx, &models.CreateLinkInput{Target: "http://x/y", Code: strPtr("Tst123a")})
	require.NoError(t, err)

	link, err := linkService.ResolveLink(ctx, &models.ClickEvent{Code: "Tst123a"})
	require.NoError(t, err)
	assert.Equal(t, "http://x/y", link.Target)
	assert.Equal(t, int64(1), link.Clicks)

	stats, err := linkService.GetLink(ctx, "Tst123a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Clicks)
	require.NotNil(t, stats.LastClicked)
	assert.Equal(t, fixedNow, *stats.LastClicked)
}

// TestLinkService_ResolveLink_NotFound неизвестный или невалидный код
func TestLinkService_ResolveLink_NotFound(t *testing.T) {
	linkService, linkRepo := setupTestService(t, service.LinkServiceOptions{})

	_, err := linkService.ResolveLink(context.Background(), &models.ClickEvent{Code: "nothere"})
	assert.ErrorIs(t, err, repository.ErrLinkNotFound)

	_, err = linkService.ResolveLink(context.Background(), &models.ClickEvent{Code: "favicon.ico"})
	assert.ErrorIs(t, err, repository.ErrLinkNotFound)
	assert.Equal(t, 1, linkRepo.RecordClickCalls, "невалидный код не должен доходить до хранилища")
}

// TestLinkService_DeleteLink проверяет удаление и немедленную невидимость
func TestLinkService_DeleteLink(t *testing.T) {
	linkService, _ := setupTestService(t, service.LinkServiceOptions{})
	ctx := context.Background()

	_, err := linkService.CreateLink(ctx, &models.CreateLinkInput{Target: "http://x/y", Code: strPtr("Tst123a")})
	require.NoError(t, err)

	require.NoError(t, linkService.DeleteLink(ctx, "Tst123a"))

	_, err = linkService.GetLink(ctx, "Tst123a")
	assert.ErrorIs(t, err, repository.ErrLinkNotFound)
	_, err = linkService.ResolveLink(ctx, &models.ClickEvent{Code: "Tst123a"})
	assert.ErrorIs(t, err, repository.ErrLinkNotFound)
	assert.ErrorIs(t, linkService.DeleteLink(ctx, "Tst123a"), repository.ErrLinkNotFound)
	assert.ErrorIs(t, linkService.DeleteLink(ctx, "bad!"), repository.ErrLinkNotFound)
}

// TestLinkService_ConcurrentResolve N параллельных редиректов дают ровно N кликов
func TestLinkService_ConcurrentResolve(t *testing.T) {
	linkService, _ := setupTestService(t, service.LinkServiceOptions{})
	ctx := context.Background()

	_, err := linkService.CreateLink(ctx, &models.CreateLinkInput{Target: "http://x/y", Code: strPtr("Tst123a")})
	require.NoError(t, err)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := linkService.ResolveLink(ctx, &models.ClickEvent{Code: "Tst123a"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stats, err := linkService.GetLink(ctx, "Tst123a")
	require.NoError(t, err)
	assert.Equal(t, int64(n), stats.Clicks)
}

// TestLinkService_ConcurrentCreate проверяет потокобезопасность при одновременном создании
func TestLinkService_ConcurrentCreate(t *testing.T) {
	linkService, _ := setupTestService(t, service.LinkServiceOptions{})
	ctx := context.Background()

	var wg sync.WaitGroup
	codes := make(chan string, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			link, err := linkService.CreateLink(ctx, &models.CreateLinkInput{
				Target: fmt.Sprintf("https://example.com/test%d", id),
			})
			if assert.NoError(t, err) {
				codes <- link.Code
			}
		}(i)
	}
	wg.Wait()
	close(codes)

	seen := make(map[string]bool)
	for code := range codes {
		assert.False(t, seen[code], "код выдан дважды: %s", code)
		seen[code] = true
	}
	assert.Len(t, seen, 10)
}

func TestNewLinkService_RequiresClickProcessor(t *testing.T) {
	_, err := service.NewLinkService(mocks.NewMockLinkRepository(), service.LinkServiceOptions{})
	assert.Error(t, err)
}
