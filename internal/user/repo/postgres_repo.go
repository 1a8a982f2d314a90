package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ovaphlow/pitchfork/service-account-go/internal/user/entity"
)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// userRow maps a users row. Hash is empty unless selected.
type userRow struct {
	ID           string    `db:"id"`
	Email        string    `db:"email"`
	Name         string    `db:"name"`
	Bio          *string   `db:"bio"`
	PasswordHash string    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r userRow) toEntity() *entity.User {
	return &entity.User{
		ID:           r.ID,
		Email:        r.Email,
		Name:         r.Name,
		Bio:          r.Bio,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

const profileColumns = `id::text AS id, email, name, bio, created_at, updated_at`

// PostgresUserRepo provides data access for the users table using sqlx.
type PostgresUserRepo struct {
	db *sqlx.DB
}

func NewPostgresUserRepo(db *sqlx.DB) *PostgresUserRepo { return &PostgresUserRepo{db: db} }

// EnsureIndexes creates the users table and its unique email constraint if
// they do not exist. Email is compared exactly as stored.
func (r *PostgresUserRepo) EnsureIndexes(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS users (
  id BIGSERIAL PRIMARY KEY,
  email TEXT NOT NULL,
  name TEXT NOT NULL,
  bio TEXT,
  password_hash TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(email);
`
	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure users table: %w", err)
	}
	return nil
}

// Create inserts a new user row and returns it without the hash.
func (r *PostgresUserRepo) Create(ctx context.Context, u *entity.User) (*entity.User, error) {
	const q = `INSERT INTO users (email, name, bio, password_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + profileColumns
	var row userRow
	if err := r.db.QueryRowxContext(ctx, q, u.Email, u.Name, u.Bio, u.PasswordHash).StructScan(&row); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return row.toEntity(), nil
}

func (r *PostgresUserRepo) GetByID(ctx context.Context, id string) (*entity.User, error) {
	key, ok := parseKey(id)
	if !ok {
		return nil, ErrNotFound
	}
	const q = `SELECT ` + profileColumns + ` FROM users WHERE id=$1`
	return r.get(ctx, q, key)
}

// GetByEmail returns the user including the password hash.
func (r *PostgresUserRepo) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	const q = `SELECT ` + profileColumns + `, password_hash FROM users WHERE email=$1`
	return r.get(ctx, q, email)
}

func (r *PostgresUserRepo) get(ctx context.Context, q string, arg any) (*entity.User, error) {
	var row userRow
	if err := r.db.GetContext(ctx, &row, q, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select user: %w", err)
	}
	return row.toEntity(), nil
}

// Update changes the non-nil fields of patch and bumps updated_at.
func (r *PostgresUserRepo) Update(ctx context.Context, id string, patch entity.UserPatch) (*entity.User, error) {
	key, ok := parseKey(id)
	if !ok {
		return nil, ErrNotFound
	}
	const q = `UPDATE users SET
		name = COALESCE($2, name),
		email = COALESCE($3, email),
		bio = COALESCE($4, bio),
		updated_at = NOW()
		WHERE id=$1
		RETURNING ` + profileColumns
	var row userRow
	if err := r.db.QueryRowxContext(ctx, q, key, patch.Name, patch.Email, patch.Bio).StructScan(&row); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, ErrNotFound
		case isUniqueViolation(err):
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	return row.toEntity(), nil
}

// SetPasswordHash replaces the stored hash.
func (r *PostgresUserRepo) SetPasswordHash(ctx context.Context, id string, hash string) error {
	key, ok := parseKey(id)
	if !ok {
		return ErrNotFound
	}
	const q = `UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1`
	res, err := r.db.ExecContext(ctx, q, key, hash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return expectOne(res)
}

func (r *PostgresUserRepo) Delete(ctx context.Context, id string) error {
	key, ok := parseKey(id)
	if !ok {
		return ErrNotFound
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id=$1`, key)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return expectOne(res)
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// parseKey rejects ids that cannot be a BIGSERIAL value.
func parseKey(id string) (int64, bool) {
	key, err := strconv.ParseInt(id, 10, 64)
	if err != nil || key <= 0 {
		return 0, false
	}
	return key, true
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
