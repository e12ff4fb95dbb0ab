package profile

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/fastygo/taskflow/domain"
	"github.com/fastygo/taskflow/pkg/logger"
	"github.com/fastygo/taskflow/repository"
	"github.com/fastygo/taskflow/usecase"
)

var errWritesQueued = errors.New("earlier profile writes are still buffered")

// UseCase edits the caller's own profile. The identity always comes from the
// token, so one user can never address another's profile.
type UseCase struct {
	users  repository.UserRepository
	auth   usecase.TokenValidator
	buffer usecase.OperationBuffer
	logger *zap.Logger
}

func New(users repository.UserRepository, auth usecase.TokenValidator, buffer usecase.OperationBuffer, log *zap.Logger) *UseCase {
	if log == nil {
		log = zap.NewNop()
	}
	return &UseCase{
		users:  users,
		auth:   auth,
		buffer: buffer,
		logger: log,
	}
}

// Authorize checks the token alone.
func (uc *UseCase) Authorize(ctx context.Context, token string) error {
	if _, err := uc.auth.Validate(ctx, token); err != nil {
		return domain.ErrUnauthorized
	}
	return nil
}

func (uc *UseCase) UpdateProfile(ctx context.Context, token string, patch domain.ProfilePatch) (*domain.UserSummary, error) {
	userID, err := uc.auth.Validate(ctx, token)
	if err != nil {
		return nil, domain.ErrUnauthorized
	}

	queued := uc.settle(ctx, userID)
	current, err := uc.users.GetByID(ctx, userID)
	if err != nil {
		if domain.IsDomainError(err, domain.ErrCodeNotFound) {
			return nil, domain.ErrUnauthorized
		}
		return nil, err
	}
	if patch.IsEmpty() {
		return current.Summary(), nil
	}

	log := logger.WithRequestID(ctx, uc.logger)
	err = errWritesQueued
	if !queued {
		updated, updateErr := uc.users.UpdateProfile(ctx, userID, patch)
		if updateErr == nil {
			return updated.Summary(), nil
		}
		if domain.IsDomain(updateErr) || uc.buffer == nil {
			return nil, updateErr
		}
		err = updateErr
	}

	if err := patch.Apply(current); err != nil {
		return nil, err
	}
	if bufErr := uc.buffer.BufferProfile(ctx, userID, patch); bufErr != nil {
		log.Error("failed to buffer profile update", zap.Error(bufErr))
		return nil, err
	}
	log.Warn("profile update buffered", zap.Error(err))
	return current.Summary(), nil
}

// settle replays profile writes still buffered for userID and reports whether
// any remain queued.
func (uc *UseCase) settle(ctx context.Context, userID string) bool {
	if uc.buffer == nil {
		return false
	}
	if err := uc.buffer.SettleProfile(ctx, userID); err != nil {
		logger.WithRequestID(ctx, uc.logger).Warn("profile has queued writes", zap.Error(err))
		return true
	}
	return false
}
