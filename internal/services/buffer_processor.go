package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/fastygo/taskflow/domain"
	"github.com/fastygo/taskflow/internal/infrastructure/buffer"
	"github.com/fastygo/taskflow/pkg/logger"
	"github.com/fastygo/taskflow/repository"
	"github.com/fastygo/taskflow/usecase"
)

var (
	// ErrBufferFull is returned when the buffer already holds MaxSize items.
	ErrBufferFull = errors.New("write buffer is full")
	// ErrWritesPending is returned by Settle when older writes for a record
	// could not be replayed yet.
	ErrWritesPending = errors.New("buffered writes still pending")
)

// ConnectionHealth abstracts the connection monitor functionality.
type ConnectionHealth interface {
	IsOnline() bool
}

// ProcessorConfig controls how frequently the buffer is drained and how long items are kept.
type ProcessorConfig struct {
	Interval   time.Duration
	BatchSize  int
	MaxRetries int
	MaxSize    int
	Retention  time.Duration
}

// BufferProcessor replays buffered writes against primary storage.
type BufferProcessor struct {
	store    *buffer.Store
	monitor  ConnectionHealth
	userRepo repository.UserRepository
	taskRepo repository.TaskRepository
	logger   *zap.Logger
	cron     *cron.Cron
	cfg      ProcessorConfig

	// replayMu keeps Drain and Settle from replaying the same item twice.
	replayMu sync.Mutex
}

func NewBufferProcessor(
	store *buffer.Store,
	monitor ConnectionHealth,
	userRepo repository.UserRepository,
	taskRepo repository.TaskRepository,
	logger *zap.Logger,
	cfg ProcessorConfig,
) (*BufferProcessor, error) {
	if cfg.Interval < time.Second {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	bp := &BufferProcessor{
		store:    store,
		monitor:  monitor,
		userRepo: userRepo,
		taskRepo: taskRepo,
		logger:   logger,
		cfg:      cfg,
		cron:     cron.New(cron.WithSeconds()),
	}

	schedule := fmt.Sprintf("@every %ds", int(cfg.Interval.Seconds()))
	if _, err := bp.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Interval)
		defer cancel()
		if err := bp.Drain(ctx); err != nil {
			bp.logger.Error("buffer drain failed", zap.Error(err))
		}
	}); err != nil {
		return nil, fmt.Errorf("schedule buffer drain: %w", err)
	}
	if _, err := bp.cron.AddFunc("@hourly", bp.cleanup); err != nil {
		return nil, fmt.Errorf("schedule buffer cleanup: %w", err)
	}

	return bp, nil
}

// Start launches the cron scheduler.
func (bp *BufferProcessor) Start() {
	if bp == nil || bp.cron == nil {
		return
	}
	bp.cron.Start()
	bp.logger.Info("buffer processor started", zap.Duration("interval", bp.cfg.Interval))
}

// Stop gracefully stops the scheduler.
func (bp *BufferProcessor) Stop(ctx context.Context) {
	if bp == nil || bp.cron == nil {
		return
	}
	stopCtx := bp.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	bp.logger.Info("buffer processor stopped")
}

// Drain replays buffered items in order. It stops at the first item that
// fails for an infrastructure reason so later writes never overtake it.
func (bp *BufferProcessor) Drain(ctx context.Context) error {
	if bp == nil || bp.store == nil {
		return nil
	}
	if bp.monitor != nil && !bp.monitor.IsOnline() {
		bp.logger.Debug("skipping buffer drain (offline)")
		return nil
	}

	bp.replayMu.Lock()
	defer bp.replayMu.Unlock()

	items, err := bp.store.GetBatch(bp.cfg.BatchSize)
	if err != nil {
		return err
	}
	for _, item := range items {
		if err := bp.replay(ctx, item, true); err != nil {
			return fmt.Errorf("replay %s %s: %w", item.Entity, item.Operation, err)
		}
	}
	return nil
}

// Settle replays the writes still buffered for one record, oldest first, so a
// direct write that follows cannot be overtaken by them. It returns
// ErrWritesPending when some remain; the caller must then buffer its own write.
func (bp *BufferProcessor) Settle(ctx context.Context, entity, key string) error {
	if bp == nil || bp.store == nil {
		return nil
	}
	bp.replayMu.Lock()
	defer bp.replayMu.Unlock()

	items, err := bp.store.Pending(entity, key)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWritesPending, err)
	}
	for _, item := range items {
		if err := bp.replay(ctx, item, false); err != nil {
			logger.WithRequestID(ctx, bp.logger).Debug("record still has buffered writes",
				zap.String("entity", entity),
				zap.String("key", key),
				zap.Error(err))
			return fmt.Errorf("%w: %v", ErrWritesPending, err)
		}
	}
	return nil
}

// replay applies one item and removes it unless it failed for an
// infrastructure reason, in which case that error is returned. Only scheduled
// drains count towards MaxRetries.
func (bp *BufferProcessor) replay(ctx context.Context, item buffer.Item, countRetry bool) error {
	err := bp.processItem(ctx, item)
	switch {
	case err == nil:
		if err := bp.store.Remove(item); err != nil {
			bp.logger.Warn("failed to purge processed buffer item", zap.Error(err))
		}
		return nil
	case domain.IsDomain(err):
		bp.logger.Warn("dropping rejected buffer item",
			zap.String("item_id", item.ID),
			zap.String("entity", item.Entity),
			zap.String("operation", item.Operation),
			zap.Error(err))
		_ = bp.store.Remove(item)
		return nil
	case !countRetry:
		return err
	case item.Retries+1 >= bp.cfg.MaxRetries:
		bp.logger.Error("dropping buffer item (max retries reached)",
			zap.String("item_id", item.ID),
			zap.Error(err))
		_ = bp.store.Remove(item)
		return nil
	default:
		if retryErr := bp.store.Retry(item); retryErr != nil {
			bp.logger.Error("failed to record buffer retry", zap.Error(retryErr))
		}
		return err
	}
}

// BufferOperation persists a write that primary storage just refused.
func (bp *BufferProcessor) BufferOperation(ctx context.Context, item buffer.Item) error {
	if bp == nil || bp.store == nil {
		return fmt.Errorf("buffer processor not configured")
	}
	if bp.cfg.MaxSize > 0 && bp.Size() >= bp.cfg.MaxSize {
		return ErrBufferFull
	}
	if err := bp.store.Enqueue(item); err != nil {
		return err
	}
	logger.WithRequestID(ctx, bp.logger).Info("write buffered",
		zap.String("entity", item.Entity),
		zap.String("operation", item.Operation))
	return nil
}

// Size returns the number of buffered items.
func (bp *BufferProcessor) Size() int {
	if bp == nil || bp.store == nil {
		return 0
	}
	size, err := bp.store.Size()
	if err != nil {
		return 0
	}
	return size
}

func (bp *BufferProcessor) cleanup() {
	removed, err := bp.store.Cleanup(time.Now().Add(-bp.cfg.Retention))
	if err != nil {
		bp.logger.Error("buffer cleanup failed", zap.Error(err))
		return
	}
	if removed > 0 {
		bp.logger.Warn("expired buffer items discarded", zap.Int("count", removed))
	}
}

func (bp *BufferProcessor) processItem(ctx context.Context, item buffer.Item) error {
	if ctx == nil {
		ctx = context.Background()
	}

	switch item.Entity {
	case buffer.EntityProfile:
		var patch domain.ProfilePatch
		if err := item.Decode(&patch); err != nil {
			return domain.WrapError(domain.ErrCodeInvalid, "corrupt profile item", err)
		}
		_, err := bp.userRepo.UpdateProfile(ctx, item.UserID, patch)
		return err

	case buffer.EntityTask:
		var op usecase.TaskOperation
		if err := item.Decode(&op); err != nil {
			return domain.WrapError(domain.ErrCodeInvalid, "corrupt task item", err)
		}
		switch item.Operation {
		case usecase.OperationCreate:
			if op.Task == nil {
				return domain.ErrInvalidPayload
			}
			_, err := bp.taskRepo.Create(ctx, op.Task)
			return err
		case usecase.OperationUpdate:
			if op.Patch == nil {
				return domain.ErrInvalidPayload
			}
			_, err := bp.taskRepo.Update(ctx, op.TaskID, *op.Patch)
			return err
		case usecase.OperationDelete:
			err := bp.taskRepo.Delete(ctx, op.TaskID)
			if domain.IsDomainError(err, domain.ErrCodeNotFound) {
				return nil
			}
			return err
		default:
			return domain.NewError(domain.ErrCodeInvalid, "unsupported operation "+item.Operation)
		}
	default:
		return domain.NewError(domain.ErrCodeInvalid, "unsupported entity "+item.Entity)
	}
}
