package auth

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fastygo/taskflow/domain"
	"github.com/fastygo/taskflow/pkg/logger"
	"github.com/fastygo/taskflow/pkg/token"
	"github.com/fastygo/taskflow/repository"
)

// Config holds the credential policy.
type Config struct {
	PasswordMinLength int
	BcryptCost        int
	MaxLoginAttempts  int
	LoginWindow       time.Duration
}

// UseCase is the authenticator: it owns registration, login and token validation.
type UseCase struct {
	users    repository.UserRepository
	attempts repository.LoginAttemptRepository
	tokens   *token.Manager
	hasher   *hasher
	cfg      Config
	logger   *zap.Logger
}

func New(
	users repository.UserRepository,
	attempts repository.LoginAttemptRepository,
	tokens *token.Manager,
	cfg Config,
	log *zap.Logger,
) *UseCase {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.PasswordMinLength <= 0 {
		cfg.PasswordMinLength = 8
	}
	if cfg.LoginWindow <= 0 {
		cfg.LoginWindow = 15 * time.Minute
	}
	return &UseCase{
		users:    users,
		attempts: attempts,
		tokens:   tokens,
		hasher:   newHasher(cfg.BcryptCost),
		cfg:      cfg,
		logger:   log,
	}
}

// Register creates a user and returns its public summary.
func (uc *UseCase) Register(ctx context.Context, email, name, password string) (*domain.UserSummary, error) {
	email = domain.NormalizeEmail(email)
	if err := uc.validateEmail(email); err != nil {
		return nil, err
	}
	if len(password) < uc.cfg.PasswordMinLength {
		return nil, domain.NewFieldError("password", "password is too short")
	}

	if _, err := uc.users.GetByEmail(ctx, email); err == nil {
		return nil, domain.ErrDuplicateEmail
	} else if !domain.IsDomainError(err, domain.ErrCodeNotFound) {
		return nil, err
	}

	hash, err := uc.hasher.hash(password)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeInternal, "failed to hash password", err)
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = email[:strings.IndexByte(email, '@')]
	}
	user := &domain.User{
		Email:        email,
		Name:         name,
		Avatar:       domain.DefaultAvatar(name),
		PasswordHash: hash,
	}
	if err := uc.users.Create(ctx, user); err != nil {
		return nil, err
	}

	logger.WithRequestID(ctx, uc.logger).Info("user registered", zap.String("user_id", user.ID))
	return user.Summary(), nil
}

// Login verifies credentials and issues a token. Unknown emails and wrong
// passwords produce the same error.
func (uc *UseCase) Login(ctx context.Context, email, password string) (*domain.Session, error) {
	log := logger.WithRequestID(ctx, uc.logger)
	email = domain.NormalizeEmail(email)

	if uc.throttled(ctx, email) {
		log.Warn("login throttled", zap.String("email", email))
		return nil, domain.ErrTooManyAttempts
	}

	user, err := uc.users.GetByEmail(ctx, email)
	if err != nil {
		if !domain.IsDomainError(err, domain.ErrCodeNotFound) {
			return nil, err
		}
		uc.hasher.burn(password)
		uc.recordFailure(ctx, email)
		return nil, domain.ErrInvalidCredentials
	}
	if !uc.hasher.matches(user.PasswordHash, password) {
		uc.recordFailure(ctx, email)
		return nil, domain.ErrInvalidCredentials
	}

	signed, expiresAt, err := uc.tokens.Issue(user.ID)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeInternal, "failed to issue token", err)
	}
	if uc.attempts != nil {
		if err := uc.attempts.Reset(ctx, email); err != nil {
			log.Warn("failed to reset login attempts", zap.Error(err))
		}
	}

	return &domain.Session{
		Token:     signed,
		UserID:    user.ID,
		ExpiresAt: expiresAt,
		User:      user.Summary(),
	}, nil
}

// Validate resolves a token to the user it was issued to.
func (uc *UseCase) Validate(_ context.Context, tokenString string) (string, error) {
	userID, err := uc.tokens.Parse(tokenString)
	if err != nil {
		return "", domain.ErrUnauthorized
	}
	return userID, nil
}

// Me returns the caller's profile.
func (uc *UseCase) Me(ctx context.Context, tokenString string) (*domain.UserSummary, error) {
	userID, err := uc.Validate(ctx, tokenString)
	if err != nil {
		return nil, err
	}
	user, err := uc.users.GetByID(ctx, userID)
	if err != nil {
		if domain.IsDomainError(err, domain.ErrCodeNotFound) {
			return nil, domain.ErrUnauthorized
		}
		return nil, err
	}
	return user.Summary(), nil
}

func (uc *UseCase) validateEmail(email string) error {
	invalid := domain.NewFieldError("email", "email is invalid")
	if email == "" {
		return invalid
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.IndexByte(email, '@'):], ".") {
		return invalid
	}
	return nil
}

func (uc *UseCase) throttled(ctx context.Context, email string) bool {
	if uc.attempts == nil || uc.cfg.MaxLoginAttempts <= 0 {
		return false
	}
	n, err := uc.attempts.Count(ctx, email)
	if err != nil {
		uc.logger.Warn("login attempt lookup failed", zap.Error(err))
		return false
	}
	return n >= uc.cfg.MaxLoginAttempts
}

func (uc *UseCase) recordFailure(ctx context.Context, email string) {
	if uc.attempts == nil || uc.cfg.MaxLoginAttempts <= 0 {
		return
	}
	if _, err := uc.attempts.Increment(ctx, email, uc.cfg.LoginWindow); err != nil {
		uc.logger.Warn("failed to record login attempt", zap.Error(err))
	}
}
