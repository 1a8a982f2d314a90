package user

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-account-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-account-go/internal/user/repo"
)

// PasswordHasher defines the hashing interface used by the workflow.
type PasswordHasher interface {
	Hash(pw string) (string, error)
	Verify(hash, pw string) bool
	NeedsRehash(hash string) bool
}

// TokenIssuer mints bearer tokens for a user id.
type TokenIssuer interface {
	Issue(subject string) (string, error)
}

// Directory persists user records.
type Directory interface {
	Create(ctx context.Context, u *entity.User) (*entity.User, error)
	GetByID(ctx context.Context, id string) (*entity.User, error)
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	Update(ctx context.Context, id string, patch entity.UserPatch) (*entity.User, error)
	SetPasswordHash(ctx context.Context, id string, hash string) error
	Delete(ctx context.Context, id string) error
}

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrDuplicateEmail     = userrepo.ErrDuplicateEmail
)

// SignupInput is the signup request body.
type SignupInput struct {
	Email    string  `json:"email" validate:"required,email"`
	Password string  `json:"password" validate:"required,min=6,bcryptlen"`
	Name     string  `json:"name" validate:"required,min=2"`
	Bio      *string `json:"bio,omitempty"`
}

// LoginInput is the login request body.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// UpdateInput is the profile update body; absent fields stay unchanged.
type UpdateInput struct {
	Name  *string `json:"name,omitempty" validate:"omitnil,min=2"`
	Email *string `json:"email,omitempty" validate:"omitnil,email"`
	Bio   *string `json:"bio,omitempty"`
}

// AuthResult is returned by signup and login.
type AuthResult struct {
	User  entity.Profile `json:"user"`
	Token string         `json:"token"`
}

// UserService orchestrates signup, login and profile operations.
type UserService struct {
	dir    Directory
	hasher PasswordHasher
	tokens TokenIssuer
	logger *zap.SugaredLogger

	dummyOnce sync.Once
	dummy     string
}

func NewUserService(dir Directory, hasher PasswordHasher, tokens TokenIssuer, logger *zap.SugaredLogger) *UserService {
	return &UserService{dir: dir, hasher: hasher, tokens: tokens, logger: logger}
}

// Signup validates input, stores the user with a hashed password and issues a
// token. A duplicate email is reported by the store, not pre-checked.
func (s *UserService) Signup(ctx context.Context, in SignupInput) (*AuthResult, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u, err := s.dir.Create(ctx, &entity.User{
		Email:        in.Email,
		Name:         in.Name,
		Bio:          in.Bio,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, userrepo.ErrDuplicateEmail) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.logger.Infow("user signed up", "user_id", u.ID)

	// The record exists even if issuing fails; the client can log in.
	token, err := s.tokens.Issue(u.ID)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &AuthResult{User: u.Profile(), Token: token}, nil
}

// Login checks credentials. Unknown email and wrong password both yield
// ErrInvalidCredentials.
func (s *UserService) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	u, err := s.dir.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			// spend the same bcrypt work as a wrong password
			s.hasher.Verify(s.dummyHash(), in.Password)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	if u.PasswordHash == "" || !s.hasher.Verify(u.PasswordHash, in.Password) {
		s.logger.Debugw("password mismatch", "user_id", u.ID)
		return nil, ErrInvalidCredentials
	}

	if s.hasher.NeedsRehash(u.PasswordHash) {
		s.rehash(ctx, u.ID, in.Password)
	}

	token, err := s.tokens.Issue(u.ID)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &AuthResult{User: u.Profile(), Token: token}, nil
}

// dummyHash is a hash at the current cost that no submitted password matches
// in practice. It is computed on first use.
func (s *UserService) dummyHash() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash("not-a-real-account-password")
		if err != nil {
			s.logger.Warnw("dummy hash failed", "err", err)
			return
		}
		s.dummy = h
	})
	return s.dummy
}

// rehash upgrades a stored hash to the current cost. Failures only log.
func (s *UserService) rehash(ctx context.Context, id, password string) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.Warnw("rehash failed", "user_id", id, "err", err)
		return
	}
	if err := s.dir.SetPasswordHash(ctx, id, hash); err != nil {
		s.logger.Warnw("store rehashed password failed", "user_id", id, "err", err)
	}
}

// Profile returns the public projection of user id.
func (s *UserService) Profile(ctx context.Context, id string) (*entity.Profile, error) {
	u, err := s.dir.GetByID(ctx, id)
	if err != nil {
		return nil, mapNotFound(err, "get user")
	}
	p := u.Profile()
	return &p, nil
}

// UpdateProfile applies the supplied fields to user id. An empty update
// returns the current profile without touching updatedAt.
func (s *UserService) UpdateProfile(ctx context.Context, id string, in UpdateInput) (*entity.Profile, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	patch := entity.UserPatch{Name: in.Name, Email: in.Email, Bio: in.Bio}
	if patch.Empty() {
		return s.Profile(ctx, id)
	}
	u, err := s.dir.Update(ctx, id, patch)
	if err != nil {
		if errors.Is(err, userrepo.ErrDuplicateEmail) {
			return nil, ErrDuplicateEmail
		}
		return nil, mapNotFound(err, "update user")
	}
	p := u.Profile()
	return &p, nil
}

// DeleteAccount removes user id.
func (s *UserService) DeleteAccount(ctx context.Context, id string) error {
	if err := s.dir.Delete(ctx, id); err != nil {
		return mapNotFound(err, "delete user")
	}
	s.logger.Infow("user deleted", "user_id", id)
	return nil
}

func mapNotFound(err error, op string) error {
	if errors.Is(err, userrepo.ErrNotFound) {
		return ErrUserNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
