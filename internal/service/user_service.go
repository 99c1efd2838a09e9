package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/savannah-faces/data-service/internal/models"
	"github.com/savannah-faces/data-service/internal/repository"
	"github.com/savannah-faces/data-service/internal/utils"
	"go.uber.org/zap"
)

// PasswordHasher is satisfied by *utils.PasswordHasher.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
}

type UserService struct {
	uow    UnitOfWork
	users  *repository.UserRepository
	hasher PasswordHasher
	tokens *utils.TokenManager
	log    *zap.Logger

	// dummyHash is verified against when the email is unknown so that a
	// failed lookup costs as much as a wrong password.
	dummyHash string
}

func NewUserService(
	uow UnitOfWork,
	users *repository.UserRepository,
	hasher PasswordHasher,
	tokens *utils.TokenManager,
	log *zap.Logger,
) *UserService {
	dummyHash, err := hasher.Hash("savannah-faces-unknown-user")
	if err != nil {
		log.Error("Failed to prepare dummy password hash", zap.Error(err))
	}

	return &UserService{
		uow:       uow,
		users:     users,
		hasher:    hasher,
		tokens:    tokens,
		log:       log,
		dummyHash: dummyHash,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an account. A taken email fails with repository.ErrConflict
// and nothing is written.
func (s *UserService) Register(ctx context.Context, in models.UserCreate) (*models.UserRead, error) {
	start := time.Now()

	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalizeEmail(in.Email)
	if err := models.Validate(in); err != nil {
		s.log.Debug("Registration validation failed", zap.Error(err))
		return nil, err
	}

	hashStart := time.Now()
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	hashDuration := time.Since(hashStart)

	user := &models.User{
		ID:           models.NewID(models.PrefixUser),
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
	}

	err = s.uow.WithinTransaction(ctx, func(ctx context.Context) error {
		_, err := s.users.GetByEmail(ctx, in.Email)
		if err == nil {
			return fmt.Errorf("register %s: %w", in.Email, repository.ErrConflict)
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		// the unique index still catches a concurrent registration
		return s.users.Create(ctx, user)
	})
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			s.log.Warn("Email already registered", zap.String("email", in.Email))
		} else {
			s.log.Error("Failed to register user", zap.String("email", in.Email), zap.Error(err))
		}
		return nil, err
	}

	s.log.Info("User registered successfully",
		zap.String("user_id", user.ID),
		zap.String("email", user.Email),
		zap.Duration("hash_duration", hashDuration),
		zap.Duration("total_duration", time.Since(start)),
	)

	read := user.ToRead()
	return &read, nil
}

// Authenticate checks an email and password pair. Unknown emails and wrong
// passwords both fail with ErrInvalidCredentials; only the log tells them apart.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	email = normalizeEmail(email)

	var user *models.User
	err := s.uow.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		user, err = s.users.GetByEmail(ctx, email)
		return err
	})
	if errors.Is(err, repository.ErrNotFound) {
		_, _ = s.hasher.Verify(password, s.dummyHash)
		s.log.Warn("Login failed: user not found", zap.String("email", email))
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	verifyStart := time.Now()
	valid, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		s.log.Error("Failed to verify password",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
		return nil, ErrInvalidCredentials
	}
	if !valid {
		s.log.Warn("Login failed: invalid password", zap.String("user_id", user.ID))
		return nil, ErrInvalidCredentials
	}

	s.log.Debug("Password verified", zap.Duration("verify_duration", time.Since(verifyStart)))
	return user, nil
}

// Login authenticates and issues a session token for the user.
func (s *UserService) Login(ctx context.Context, email, password string) (string, *models.UserRead, error) {
	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return "", nil, err
	}

	token, err := s.tokens.Issue(user.Email)
	if err != nil {
		return "", nil, fmt.Errorf("issue token: %w", err)
	}

	s.log.Info("User logged in successfully", zap.String("user_id", user.ID))

	read := user.ToRead()
	return token, &read, nil
}

// CurrentUser resolves a session token to its user. Any failure, including a
// user deleted after the token was issued, is ErrUnauthorized.
func (s *UserService) CurrentUser(ctx context.Context, token string) (*models.UserRead, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		s.log.Debug("Session token rejected", zap.Error(err))
		return nil, ErrUnauthorized
	}

	user, err := s.GetByEmail(ctx, claims.Subject)
	if errors.Is(err, repository.ErrNotFound) {
		s.log.Debug("Session subject no longer exists", zap.String("email", claims.Subject))
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *UserService) Get(ctx context.Context, id string) (*models.UserRead, error) {
	var user *models.User
	err := s.uow.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		user, err = s.users.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	read := user.ToRead()
	return &read, nil
}

func (s *UserService) GetByEmail(ctx context.Context, email string) (*models.UserRead, error) {
	var user *models.User
	err := s.uow.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		user, err = s.users.GetByEmail(ctx, normalizeEmail(email))
		return err
	})
	if err != nil {
		return nil, err
	}
	read := user.ToRead()
	return &read, nil
}

func (s *UserService) List(ctx context.Context, page repository.Page) ([]models.UserRead, error) {
	var users []models.User
	err := s.uow.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		users, err = s.users.List(ctx, page)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([]models.UserRead, 0, len(users))
	for i := range users {
		out = append(out, users[i].ToRead())
	}
	return out, nil
}

func (s *UserService) Update(ctx context.Context, id string, upd models.UserUpdate) (*models.UserRead, error) {
	if upd.Email != nil {
		email := normalizeEmail(*upd.Email)
		upd.Email = &email
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		upd.Name = &name
	}
	if err := models.Validate(upd); err != nil {
		return nil, err
	}

	var user *models.User
	err := s.uow.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		user, err = s.users.Update(ctx, id, upd)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("User updated", zap.String("user_id", id))
	read := user.ToRead()
	return &read, nil
}

func (s *UserService) Delete(ctx context.Context, id string) error {
	err := s.uow.WithinTransaction(ctx, func(ctx context.Context) error {
		return s.users.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	s.log.Info("User deleted", zap.String("user_id", id))
	return nil
}

// EnsureDefaultUser registers the seed account unless its email is already
// taken. created reports whether a new row was written.
func (s *UserService) EnsureDefaultUser(ctx context.Context, name, email, password string) (user *models.UserRead, created bool, err error) {
	existing, err := s.GetByEmail(ctx, email)
	if err == nil {
		s.log.Info("Default user already exists", zap.String("email", existing.Email))
		return existing, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, err
	}

	user, err = s.Register(ctx, models.UserCreate{Name: name, Email: email, Password: password})
	if err != nil {
		return nil, false, err
	}
	return user, true, nil
}
