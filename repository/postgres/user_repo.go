package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastygo/taskflow/domain"
	"github.com/fastygo/taskflow/repository"
)

const userColumns = `id, email, name, avatar, password_hash, created_at, updated_at`

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository instantiates a Postgres-backed credential store.
func NewUserRepository(pool *pgxpool.Pool) repository.UserRepository {
	return &userRepository{pool: pool}
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, domain.NormalizeEmail(email))
	return scanUser(row)
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	if user == nil || user.Email == "" {
		return domain.ErrInvalidPayload
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.Email = domain.NormalizeEmail(user.Email)

	const query = `
	INSERT INTO users (id, email, name, avatar, password_hash)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING created_at, updated_at
	`
	if err := r.pool.QueryRow(ctx, query,
		user.ID,
		user.Email,
		user.Name,
		user.Avatar,
		user.PasswordHash,
	).Scan(&user.CreatedAt, &user.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateEmail
		}
		return err
	}
	return nil
}

func (r *userRepository) UpdateProfile(ctx context.Context, id string, patch domain.ProfilePatch) (*domain.User, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	user, err := scanUser(tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	if err := patch.Apply(user); err != nil {
		return nil, err
	}

	const query = `
	UPDATE users
	SET name = $2,
		avatar = $3,
		updated_at = NOW()
	WHERE id = $1
	RETURNING updated_at
	`
	if err := tx.QueryRow(ctx, query, user.ID, user.Name, user.Avatar).Scan(&user.UpdatedAt); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return user, nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	if err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.Avatar,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}
