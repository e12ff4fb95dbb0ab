package services

import (
	"context"

	"github.com/fastygo/taskflow/domain"
	"github.com/fastygo/taskflow/internal/infrastructure/buffer"
	"github.com/fastygo/taskflow/usecase"
)

// BufferBridge adapts the processor to the use-case facing OperationBuffer port.
type BufferBridge struct {
	processor *BufferProcessor
}

func NewBufferBridge(processor *BufferProcessor) *BufferBridge {
	return &BufferBridge{processor: processor}
}

func (b *BufferBridge) BufferProfile(ctx context.Context, userID string, patch domain.ProfilePatch) error {
	if b.processor == nil || userID == "" {
		return domain.ErrInvalidPayload
	}
	item, err := buffer.NewItem(buffer.EntityProfile, usecase.OperationUpdate, userID, patch)
	if err != nil {
		return err
	}
	item.Key = userID
	return b.processor.BufferOperation(ctx, item)
}

func (b *BufferBridge) SettleProfile(ctx context.Context, userID string) error {
	return b.processor.Settle(ctx, buffer.EntityProfile, userID)
}

func (b *BufferBridge) SettleTask(ctx context.Context, taskID string) error {
	return b.processor.Settle(ctx, buffer.EntityTask, taskID)
}

func (b *BufferBridge) BufferTask(ctx context.Context, operation string, op usecase.TaskOperation) error {
	if b.processor == nil || op.TaskID == "" {
		return domain.ErrInvalidPayload
	}
	switch operation {
	case usecase.OperationCreate:
		if op.Task == nil {
			return domain.ErrInvalidPayload
		}
	case usecase.OperationUpdate:
		if op.Patch == nil {
			return domain.ErrInvalidPayload
		}
	case usecase.OperationDelete:
	default:
		return domain.ErrInvalidPayload
	}
	item, err := buffer.NewItem(buffer.EntityTask, operation, op.OwnerID, op)
	if err != nil {
		return err
	}
	item.Key = op.TaskID
	return b.processor.BufferOperation(ctx, item)
}

var _ usecase.OperationBuffer = (*BufferBridge)(nil)
