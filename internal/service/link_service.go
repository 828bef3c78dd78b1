package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/SergeiKhy/tinylink/internal/models"
	"github.com/SergeiKhy/tinylink/internal/repository"
	"github.com/SergeiKhy/tinylink/internal/shortcode"
	"go.uber.org/zap"
)

// Ошибки сервиса
var (
	ErrInvalidURL         = errors.New("target must be an absolute http(s) URL")
	ErrInvalidCode        = errors.New("short code must be 6-8 alphanumeric characters")
	ErrCodeSpaceExhausted = errors.New("failed to generate a unique short code")
)

const defaultMaxAttempts = 100

// LinkService интерфейс сервиса ссылок
type LinkService interface {
	CreateLink(ctx context.Context, input *models.CreateLinkInput) (*models.Link, error)
	ListLinks(ctx context.Context) ([]*models.Link, error)
	GetLink(ctx context.Context, code string) (*models.Link, error)
	DeleteLink(ctx context.Context, code string) error
	ResolveLink(ctx context.Context, event *models.ClickEvent) (*models.Link, error)
	Ping(ctx context.Context) error
}

// LinkServiceOptions зависимости сервиса, кроме хранилища
type LinkServiceOptions struct {
	Generator      shortcode.Generator
	Checker        ReachabilityChecker // nil - проверка доступности отключена
	ClickProcessor ClickProcessor
	MaxAttempts    int
	Logger         *zap.Logger
	Now            func() time.Time
}

// linkService реализация сервиса ссылок
type linkService struct {
	linkRepo    repository.LinkRepository
	generator   shortcode.Generator
	checker     ReachabilityChecker
	clicks      ClickProcessor
	maxAttempts int
	logger      *zap.Logger
	now         func() time.Time
}

// NewLinkService создаёт новый экземпляр сервиса
func NewLinkService(linkRepo repository.LinkRepository, opts LinkServiceOptions) (LinkService, error) {
	if opts.Generator == nil {
		gen, err := shortcode.NewRandomGenerator(shortcode.MinLength)
		if err != nil {
			return nil, err
		}
		opts.Generator = gen
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ClickProcessor == nil {
		return nil, errors.New("click processor is required")
	}

	return &linkService{
		linkRepo:    linkRepo,
		generator:   opts.Generator,
		checker:     opts.Checker,
		clicks:      opts.ClickProcessor,
		maxAttempts: opts.MaxAttempts,
		logger:      opts.Logger,
		now:         opts.Now,
	}, nil
}

// CreateLink создаёт новую короткую ссылку
func (s *linkService) CreateLink(ctx context.Context, input *models.CreateLinkInput) (*models.Link, error) {
	target := strings.TrimSpace(input.Target)
	if err := validateURL(target); err != nil {
		return nil, err
	}

	// Кастомный код проверяем до обращения к сети
	custom := input.Code != nil && *input.Code != ""
	if custom {
		if err := shortcode.Validate(*input.Code); err != nil {
			return nil, ErrInvalidCode
		}
	}

	if s.checker != nil {
		if err := s.checker.Check(ctx, target); err != nil {
			return nil, err
		}
	}

	if custom {
		link := &models.Link{
			Code:      *input.Code,
			Target:    target,
			CreatedAt: s.now(),
		}
		if err := s.linkRepo.Create(ctx, link); err != nil {
			return nil, err
		}
		return link, nil
	}

	// Коллизии сгенерированного кода повторяем прозрачно для клиента
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		code, err := s.generator.Generate()
		if err != nil {
			return nil, fmt.Errorf("failed to generate code: %w", err)
		}
		if err := shortcode.Validate(code); err != nil {
			return nil, fmt.Errorf("generator produced %q: %w", code, err)
		}

		link := &models.Link{
			Code:      code,
			Target:    target,
			CreatedAt: s.now(),
		}
		err = s.linkRepo.Create(ctx, link)
		if err == nil {
			return link, nil
		}
		if !errors.Is(err, repository.ErrCodeExists) {
			return nil, err
		}

		s.logger.Debug("Коллизия сгенерированного кода, повторяем",
			zap.String("code", code),
			zap.Int("attempt", attempt),
		)
	}

	return nil, ErrCodeSpaceExhausted
}

// ListLinks возвращает все живые ссылки в порядке создания
func (s *linkService) ListLinks(ctx context.Context) ([]*models.Link, error) {
	return s.linkRepo.List(ctx)
}

// GetLink получает ссылку со статистикой по короткому коду
func (s *linkService) GetLink(ctx context.Context, code string) (*models.Link, error) {
	// Код неверного формата не может существовать
	if !shortcode.IsValid(code) {
		return nil, repository.ErrLinkNotFound
	}
	return s.linkRepo.GetByCode(ctx, code)
}

// DeleteLink удаляет ссылку по короткому коду
func (s *linkService) DeleteLink(ctx context.Context, code string) error {
	if !shortcode.IsValid(code) {
		return repository.ErrLinkNotFound
	}
	return s.linkRepo.Delete(ctx, code)
}

// ResolveLink разрешает код в целевой URL и засчитывает клик.
// Клик применяется до возврата, поэтому статистика сразу видит переход.
func (s *linkService) ResolveLink(ctx context.Context, event *models.ClickEvent) (*models.Link, error) {
	if !shortcode.IsValid(event.Code) {
		return nil, repository.ErrLinkNotFound
	}
	if event.ClickedAt.IsZero() {
		event.ClickedAt = s.now()
	}
	return s.clicks.RecordClick(ctx, event)
}

func (s *linkService) Ping(ctx context.Context) error {
	return s.linkRepo.Ping(ctx)
}

// validateURL допускает только абсолютные http/https URL с хостом
func validateURL(raw string) error {
	if raw == "" {
		return ErrInvalidURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ErrInvalidURL
	}
	scheme := strings.ToLower(u.Scheme)
	if (scheme != "http" && scheme != "https") || u.Host == "" {
		return ErrInvalidURL
	}
	return nil
}
