package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fastygo/taskflow/internal/infrastructure/buffer"
)

// Probe checks one backing service. A nil Probe means the service is not configured.
type Probe func(ctx context.Context) error

func PostgresProbe(pool *pgxpool.Pool) Probe {
	if pool == nil {
		return nil
	}
	return pool.Ping
}

func RedisProbe(client *redislib.Client) Probe {
	if client == nil {
		return nil
	}
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}

type Options struct {
	Postgres Probe
	Redis    Probe
	Buffer   *buffer.Store
	Interval time.Duration
	Timeout  time.Duration
}

// Monitor periodically runs the configured probes and keeps the last result.
type Monitor struct {
	postgres Probe
	redis    Probe
	buffer   *buffer.Store

	status   Status
	mu       sync.RWMutex
	interval time.Duration
	timeout  time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	logger   *zap.Logger
}

func New(opts Options, logger *zap.Logger) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = 10 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		postgres: opts.Postgres,
		redis:    opts.Redis,
		buffer:   opts.Buffer,
		status: Status{
			PostgreSQL: Dependency{Configured: opts.Postgres != nil},
			Redis:      Dependency{Configured: opts.Redis != nil},
		},
		interval: opts.Interval,
		timeout:  opts.Timeout,
		stopCh:   make(chan struct{}),
		logger:   logger,
	}
}

// Start runs a first check synchronously, then keeps checking in the background.
func (m *Monitor) Start() {
	m.Refresh()
	go m.loop()
}

func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.Healthy()
}

func (m *Monitor) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Monitor) loop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Refresh()
		case <-m.stopCh:
			return
		}
	}
}

// Refresh runs every probe once and records the outcome.
func (m *Monitor) Refresh() {
	bufferOK, bufferSize := m.checkBuffer()
	status := Status{
		PostgreSQL: m.check("postgresql", m.postgres),
		Redis:      m.check("redis", m.redis),
		Buffer:     bufferOK,
		BufferSize: bufferSize,
		LastCheck:  time.Now(),
	}

	m.mu.Lock()
	prev := m.status
	m.status = status
	m.mu.Unlock()

	if prev.Healthy() == status.Healthy() || prev.LastCheck.IsZero() {
		return
	}
	if status.Healthy() {
		m.logger.Info("dependencies recovered")
		return
	}
	m.logger.Warn("dependencies degraded",
		zap.Bool("postgresql", status.PostgreSQL.Up()),
		zap.Bool("redis", status.Redis.Up()))
}

func (m *Monitor) check(name string, probe Probe) Dependency {
	if probe == nil {
		return Dependency{}
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	if err := probe(ctx); err != nil {
		m.logger.Debug("probe failed", zap.String("dependency", name), zap.Error(err))
		return Dependency{Configured: true, Error: err.Error()}
	}
	return Dependency{Configured: true, Online: true}
}

func (m *Monitor) checkBuffer() (bool, int) {
	if m.buffer == nil {
		return false, 0
	}
	size, err := m.buffer.Size()
	if err != nil {
		m.logger.Warn("buffer size check failed", zap.Error(err))
		return false, size
	}
	return true, size
}
