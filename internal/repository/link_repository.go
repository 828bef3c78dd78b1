package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SergeiKhy/tinylink/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrLinkNotFound = errors.New("link not found")
	ErrCodeExists   = errors.New("short code already exists")
)

// LinkRepository хранилище ссылок. Все реализации гарантируют:
//   - Create атомарно проверяет существование кода и вставляет запись;
//   - RecordClick не теряет инкременты при конкурентных вызовах;
//   - после успешного Delete код сразу не виден ни одной операции.
type LinkRepository interface {
	Create(ctx context.Context, link *models.Link) error
	GetByCode(ctx context.Context, code string) (*models.Link, error)
	List(ctx context.Context) ([]*models.Link, error)
	RecordClick(ctx context.Context, code string, at time.Time) (*models.Link, error)
	Delete(ctx context.Context, code string) error
	Ping(ctx context.Context) error
}

const uniqueViolationCode = "23505"

type linkRepository struct {
	db *PostgresDB
}

// NewLinkRepository создаёт хранилище ссылок поверх PostgreSQL
func NewLinkRepository(db *PostgresDB) LinkRepository {
	return &linkRepository{db: db}
}

func (r *linkRepository) Create(ctx context.Context, link *models.Link) error {
	query := `
		INSERT INTO links (code, target, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (code) DO NOTHING
		RETURNING id, clicks, last_clicked, created_at
	`

	err := r.db.Pool.QueryRow(
		ctx,
		query,
		link.Code,
		link.Target,
		link.CreatedAt,
	).Scan(&link.ID, &link.Clicks, &link.LastClicked, &link.CreatedAt)

	if err != nil {
		// ON CONFLICT DO NOTHING не возвращает строку
		if errors.Is(err, pgx.ErrNoRows) || isUniqueViolation(err) {
			return ErrCodeExists
		}
		return fmt.Errorf("failed to create link: %w", err)
	}

	return nil
}

func (r *linkRepository) GetByCode(ctx context.Context, code string) (*models.Link, error) {
	query := `
		SELECT id, code, target, clicks, last_clicked, created_at
		FROM links
		WHERE code = $1
	`

	link, err := scanLink(r.db.Pool.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to get link: %w", err)
	}

	return link, nil
}

func (r *linkRepository) List(ctx context.Context) ([]*models.Link, error) {
	query := `
		SELECT id, code, target, clicks, last_clicked, created_at
		FROM links
		ORDER BY id
	`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	defer rows.Close()

	links := make([]*models.Link, 0)
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		links = append(links, link)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating links: %w", err)
	}

	return links, nil
}

// RecordClick инкрементирует счётчик одной командой UPDATE: строка блокируется
// на время обновления, поэтому конкурентные клики не теряются.
func (r *linkRepository) RecordClick(ctx context.Context, code string, at time.Time) (*models.Link, error) {
	query := `
		UPDATE links
		SET clicks = clicks + 1, last_clicked = $2
		WHERE code = $1
		RETURNING id, code, target, clicks, last_clicked, created_at
	`

	link, err := scanLink(r.db.Pool.QueryRow(ctx, query, code, at))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to record click: %w", err)
	}

	return link, nil
}

func (r *linkRepository) Delete(ctx context.Context, code string) error {
	query := `DELETE FROM links WHERE code = $1`

	result, err := r.db.Pool.Exec(ctx, query, code)
	if err != nil {
		return fmt.Errorf("failed to delete link: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrLinkNotFound
	}

	return nil
}

func (r *linkRepository) Ping(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

func scanLink(row pgx.Row) (*models.Link, error) {
	link := &models.Link{}
	err := row.Scan(
		&link.ID,
		&link.Code,
		&link.Target,
		&link.Clicks,
		&link.LastClicked,
		&link.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return link, nil
}

// Проверка на нарушение уникальности
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
