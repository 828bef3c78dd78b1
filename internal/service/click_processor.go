package service

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/SergeiKhy/tinylink/internal/models"
	"github.com/SergeiKhy/tinylink/internal/repository"
	"go.uber.org/zap"
)

// Константы worker pool
const (
	defaultWorkerCount   = 4    // Количество воркеров
	defaultChannelBuffer = 1024 // Общий размер буфера очередей
	maxRetries           = 3    // Максимальное количество попыток записи
	defaultWriteTimeout  = 5 * time.Second
	defaultWaitTimeout   = 2 * time.Second
)

var ErrProcessorStopped = errors.New("click processor stopped")

// ClickProcessor применяет клики к хранилищу через ограниченный пул воркеров.
// RecordClick синхронный: возвращает обновлённую ссылку после записи клика.
type ClickProcessor interface {
	Start()
	Stop()
	RecordClick(ctx context.Context, event *models.ClickEvent) (*models.Link, error)
	Stats() ChannelStats
}

// ClickProcessorConfig параметры пула
type ClickProcessorConfig struct {
	Workers      int
	QueueSize    int           // Общая ёмкость, делится между воркерами
	WriteTimeout time.Duration // Таймаут одной записи клика в хранилище
	WaitTimeout  time.Duration // Сколько вызывающий ждёт очередь и результат
}

type clickResult struct {
	link *models.Link
	err  error
}

// clickJob событие клика и канал для ответа (буфер 1, воркер никогда не блокируется на ответе)
type clickJob struct {
	event  *models.ClickEvent
	result chan clickResult
}

// clickProcessor реализация процессора кликов с использованием Worker Pool.
// У каждого воркера своя очередь, код всегда попадает в одну и ту же,
// поэтому медленная запись одного кода не задерживает коды других очередей.
type clickProcessor struct {
	linkRepo     repository.LinkRepository
	logger       *zap.Logger
	queues       []chan *clickJob // Очередь на каждого воркера
	writeTimeout time.Duration
	waitTimeout  time.Duration
	wg           sync.WaitGroup // WaitGroup для ожидания завершения воркеров
	ctx          context.Context
	cancel       context.CancelFunc
	startOnce    sync.Once
	stopOnce     sync.Once
}

// NewClickProcessor создаёт новый экземпляр процессора кликов
func NewClickProcessor(
	linkRepo repository.LinkRepository,
	cfg ClickProcessorConfig,
	logger *zap.Logger,
) ClickProcessor {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkerCount
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultChannelBuffer
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = defaultWaitTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	perQueue := (cfg.QueueSize + cfg.Workers - 1) / cfg.Workers
	queues := make([]chan *clickJob, cfg.Workers)
	for i := range queues {
		queues[i] = make(chan *clickJob, perQueue)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &clickProcessor{
		linkRepo:     linkRepo,
		logger:       logger,
		queues:       queues,
		writeTimeout: cfg.WriteTimeout,
		waitTimeout:  cfg.WaitTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start запускает worker pool
func (p *clickProcessor) Start() {
	p.startOnce.Do(func() {
		p.logger.Info("Запуск воркеров процессора кликов", zap.Int("count", len(p.queues)))

		for i := range p.queues {
			p.wg.Add(1)
			go p.worker(i)
		}
	})
}

// Stop останавливает worker pool и дожидается завершения текущих записей
func (p *clickProcessor) Stop() {
	p.stopOnce.Do(func() {
		p.logger.Info("Остановка процессора кликов...")
		p.cancel()
		p.wg.Wait()
		p.logger.Info("Процессор кликов остановлен")
	})
}

// shard номер очереди для кода
func (p *clickProcessor) shard(code string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(code))
	return int(h.Sum32() % uint32(len(p.queues)))
}

// worker обрабатывает задания своей очереди
func (p *clickProcessor) worker(id int) {
	defer p.wg.Done()

	p.logger.Debug("Воркер кликов запущен", zap.Int("id", id))

	jobs := p.queues[id]
	for {
		select {
		case <-p.ctx.Done():
			p.logger.Debug("Воркер кликов остановлен", zap.Int("id", id))
			return

		case job := <-jobs:
			link, err := p.processClick(job.event)
			job.result <- clickResult{link: link, err: err}
		}
	}
}

// processClick записывает один клик с retry логикой.
// Запись не привязана к контексту запроса: начатый клик доводится до конца.
func (p *clickProcessor) processClick(event *models.ClickEvent) (*models.Link, error) {
	var lastErr error
	for i := 0; i < maxRetries; i++ {
		link, err := p.writeClick(event)
		if err == nil {
			p.logger.Debug("Клик записан",
				zap.String("code", event.Code),
				zap.String("ip", event.IPAddress),
				zap.String("user_agent", event.UserAgent),
				zap.Int64("clicks", link.Clicks),
			)
			return link, nil
		}
		if errors.Is(err, repository.ErrLinkNotFound) {
			return nil, err
		}
		lastErr = err

		if i < maxRetries-1 {
			p.logger.Debug("Повторная попытка записи клика",
				zap.String("code", event.Code),
				zap.Int("attempt", i+1),
				zap.Error(err),
			)
			time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
		}
	}

	p.logger.Warn("Не удалось записать клик после всех попыток",
		zap.String("code", event.Code),
		zap.Error(lastErr),
	)
	return nil, lastErr
}

func (p *clickProcessor) writeClick(event *models.ClickEvent) (*models.Link, error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.writeTimeout)
	defer cancel()
	return p.linkRepo.RecordClick(ctx, event.Code, event.ClickedAt)
}

// RecordClick ставит клик в очередь его кода и ждёт результата не дольше waitTimeout.
// По таймауту возвращается context.DeadlineExceeded, клик при этом ещё может быть записан.
func (p *clickProcessor) RecordClick(ctx context.Context, event *models.ClickEvent) (*models.Link, error) {
	if p.ctx.Err() != nil {
		return nil, ErrProcessorStopped
	}

	ctx, cancel := context.WithTimeout(ctx, p.waitTimeout)
	defer cancel()

	job := &clickJob{
		event:  event,
		result: make(chan clickResult, 1),
	}

	select {
	case <-p.ctx.Done():
		return nil, ErrProcessorStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	case p.queues[p.shard(event.Code)] <- job:
	}

	select {
	case res := <-job.result:
		return res.link, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.ctx.Done():
		// Воркер мог успеть взять задание, даём ему завершить запись
		select {
		case res := <-job.result:
			return res.link, res.err
		case <-ctx.Done():
			return nil, ErrProcessorStopped
		}
	}
}

// Stats возвращает статистику очередей для мониторинга
func (p *clickProcessor) Stats() ChannelStats {
	stats := ChannelStats{WorkerCount: len(p.queues)}
	for _, q := range p.queues {
		stats.BufferSize += cap(q)
		stats.BufferUsed += len(q)
	}
	return stats
}

// ChannelStats статистика очередей worker pool
type ChannelStats struct {
	BufferSize  int `json:"buffer_size"`  // Общая ёмкость очередей
	BufferUsed  int `json:"buffer_used"`  // Текущее использование
	WorkerCount int `json:"worker_count"` // Количество воркеров
}
