package usecase

import (
	"context"

	"github.com/fastygo/taskflow/domain"
)

// Buffered write operations.
const (
	OperationCreate = "create"
	OperationUpdate = "update"
	OperationDelete = "delete"
)

// TaskOperation is a task write captured for later replay. Task is set for
// creates, Patch for updates; deletes only need TaskID.
type TaskOperation struct {
	TaskID  string            `json:"task_id"`
	OwnerID string            `json:"owner_id"`
	Task    *domain.Task      `json:"task,omitempty"`
	Patch   *domain.TaskPatch `json:"patch,omitempty"`
}

// OperationBuffer abstracts the buffer processor so use cases stay storage-agnostic.
//
// The Settle methods replay whatever is still buffered for one record. A
// non-nil error means older writes remain queued, and any later write to that
// record has to be buffered behind them to keep request order.
type OperationBuffer interface {
	BufferProfile(ctx context.Context, userID string, patch domain.ProfilePatch) error
	BufferTask(ctx context.Context, operation string, op TaskOperation) error
	SettleProfile(ctx context.Context, userID string) error
	SettleTask(ctx context.Context, taskID string) error
}

// TokenValidator resolves a bearer token to the user it was issued to.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (string, error)
}
