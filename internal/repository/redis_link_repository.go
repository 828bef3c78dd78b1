package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/SergeiKhy/tinylink/internal/models"
	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "tinylink:"

// Каждая мутация выполняется одним Lua-скриптом, Redis исполняет его атомарно.
var (
	// KEYS: link, index, seq. ARGV: code, target, created_at
	createLinkScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
local id = redis.call('INCR', KEYS[3])
redis.call('HSET', KEYS[1], 'id', id, 'code', ARGV[1], 'target', ARGV[2], 'clicks', 0, 'created_at', ARGV[3])
redis.call('ZADD', KEYS[2], id, ARGV[1])
return id
`)

	// KEYS: link. ARGV: clicked_at
	recordClickScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return false
end
redis.call('HINCRBY', KEYS[1], 'clicks', 1)
redis.call('HSET', KEYS[1], 'last_clicked', ARGV[1])
return redis.call('HGETALL', KEYS[1])
`)

	// KEYS: link, index. ARGV: code
	deleteLinkScript = redis.NewScript(`
if redis.call('DEL', KEYS[1]) == 0 then
	return 0
end
redis.call('ZREM', KEYS[2], ARGV[1])
return 1
`)
)

type redisLinkRepository struct {
	redis  *RedisDB
	prefix string
}

// NewRedisLinkRepository создаёт хранилище ссылок поверх Redis.
// Ссылка хранится в хеше <prefix>link:<code>, порядок вставки - в sorted set <prefix>links.
func NewRedisLinkRepository(db *RedisDB, prefix string) LinkRepository {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &redisLinkRepository{redis: db, prefix: prefix}
}

func (r *redisLinkRepository) Create(ctx context.Context, link *models.Link) error {
	id, err := createLinkScript.Run(ctx, r.redis.Client,
		[]string{r.key(link.Code), r.indexKey(), r.seqKey()},
		link.Code, link.Target, formatTime(link.CreatedAt),
	).Int64()
	if err != nil {
		return fmt.Errorf("failed to create link: %w", err)
	}
	if id == 0 {
		return ErrCodeExists
	}

	link.ID = id
	link.Clicks = 0
	link.LastClicked = nil
	return nil
}

func (r *redisLinkRepository) GetByCode(ctx context.Context, code string) (*models.Link, error) {
	fields, err := r.redis.Client.HGetAll(ctx, r.key(code)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get link: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrLinkNotFound
	}

	return linkFromHash(fields)
}

func (r *redisLinkRepository) List(ctx context.Context) ([]*models.Link, error) {
	codes, err := r.redis.Client.ZRange(ctx, r.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}

	links := make([]*models.Link, 0, len(codes))
	if len(codes) == 0 {
		return links, nil
	}

	pipe := r.redis.Client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(codes))
	for i, code := range codes {
		cmds[i] = pipe.HGetAll(ctx, r.key(code))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to load links: %w", err)
	}

	for _, cmd := range cmds {
		fields := cmd.Val()
		// Удалена между ZRANGE и HGETALL
		if len(fields) == 0 {
			continue
		}
		link, err := linkFromHash(fields)
		if err != nil {
			return nil, err
		}
		links = append(links, link)
	}

	return links, nil
}

func (r *redisLinkRepository) RecordClick(ctx context.Context, code string, at time.Time) (*models.Link, error) {
	reply, err := recordClickScript.Run(ctx, r.redis.Client,
		[]string{r.key(code)},
		formatTime(at),
	).StringSlice()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to record click: %w", err)
	}

	fields := make(map[string]string, len(reply)/2)
	for i := 0; i+1 < len(reply); i += 2 {
		fields[reply[i]] = reply[i+1]
	}

	return linkFromHash(fields)
}

func (r *redisLinkRepository) Delete(ctx context.Context, code string) error {
	deleted, err := deleteLinkScript.Run(ctx, r.redis.Client,
		[]string{r.key(code), r.indexKey()},
		code,
	).Int64()
	if err != nil {
		return fmt.Errorf("failed to delete link: %w", err)
	}
	if deleted == 0 {
		return ErrLinkNotFound
	}

	return nil
}

func (r *redisLinkRepository) Ping(ctx context.Context) error {
	return r.redis.Client.Ping(ctx).Err()
}

func (r *redisLinkRepository) key(code string) string {
	return r.prefix + "link:" + code
}

func (r *redisLinkRepository) indexKey() string {
	return r.prefix + "links"
}

func (r *redisLinkRepository) seqKey() string {
	return r.prefix + "links:seq"
}

func linkFromHash(fields map[string]string) (*models.Link, error) {
	link := &models.Link{
		Code:   fields["code"],
		Target: fields["target"],
	}

	var err error
	if link.ID, err = strconv.ParseInt(fields["id"], 10, 64); err != nil {
		return nil, fmt.Errorf("failed to parse link id: %w", err)
	}
	if link.Clicks, err = strconv.ParseInt(fields["clicks"], 10, 64); err != nil {
		return nil, fmt.Errorf("failed to parse clicks: %w", err)
	}
	if link.CreatedAt, err = time.Parse(time.RFC3339Nano, fields["created_at"]); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if raw, ok := fields["last_clicked"]; ok && raw != "" {
		lastClicked, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse last_clicked: %w", err)
		}
		link.LastClicked = &lastClicked
	}

	return link, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
