package services

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/chatify/apiserver/types"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/crypto/bcrypt"
)

const defaultSaveTimeout = 10 * time.Second

// UserSaver persists the full user collection.
type UserSaver interface {
	SaveUsers(ctx context.Context, users []types.User) error
}

// RegisterInput holds the fields of a new account.
type RegisterInput struct {
	Name       string `json:"name" validate:"required,max=100"`
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,min=8,max=72"`
	Department string `json:"department" validate:"max=100"`
	Year       string `json:"year" validate:"max=20"`
	Role       string `json:"role" validate:"omitempty,oneof=student faculty"`
}

// UserService is the in-memory user directory. Registrations are written
// through to the store.
type UserService struct {
	mu     sync.RWMutex
	users  []types.User
	ready  chan struct{}
	loaded bool

	saver  UserSaver
	logger *slog.Logger
	now    func() time.Time
}

func NewUserService(saver UserSaver, logger *slog.Logger) *UserService {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserService{
		ready:  make(chan struct{}),
		saver:  saver,
		logger: logger.With("component", "users"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Hydrate installs the loaded users. Only the first call has an effect.
func (s *UserService) Hydrate(users []types.User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loaded {
		return
	}
	s.users = slices.Clone(users)
	s.loaded = true
	close(s.ready)
}

func (s *UserService) wait(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get returns the public view of the user with the given id.
func (s *UserService) Get(id string) (types.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := slices.IndexFunc(s.users, func(u types.User) bool { return u.ID == id })
	if i < 0 {
		return types.User{}, ErrUserNotFound
	}
	return s.users[i].Public(), nil
}

// List returns the public view of every user.
func (s *UserService) List() []types.User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.User, len(s.users))
	for i, u := range s.users {
		out[i] = u.Public()
	}
	return out
}

// Register creates an account. Emails are compared case-insensitively.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (types.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Role = types.CanonicalRole(strings.ToLower(strings.TrimSpace(in.Role)))
	if err := validateStruct(in); err != nil {
		return types.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return types.User{}, fmt.Errorf("hash password: %w", err)
	}
	id, err := gonanoid.New()
	if err != nil {
		return types.User{}, fmt.Errorf("generate user id: %w", err)
	}

	role := types.RoleStudent
	if in.Role != "" {
		role = types.Role(in.Role)
	}
	user := types.User{
		ID:           id,
		Name:         in.Name,
		Email:        in.Email,
		Department:   strings.TrimSpace(in.Department),
		Year:         strings.TrimSpace(in.Year),
		Role:         role,
		PasswordHash: string(hash),
		CreatedAt:    s.now(),
	}

	if err := s.wait(ctx); err != nil {
		return types.User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexByEmail(in.Email) >= 0 {
		return types.User{}, ErrEmailTaken
	}
	s.users = append(s.users, user)
	s.persist(ctx)

	s.logger.Info("User registered", "user_id", user.ID, "role", user.Role)
	return user.Public(), nil
}

// Login checks the password for email and returns the user.
func (s *UserService) Login(ctx context.Context, email, password string) (types.User, error) {
	if err := s.wait(ctx); err != nil {
		return types.User{}, err
	}

	s.mu.RLock()
	i := s.indexByEmail(strings.ToLower(strings.TrimSpace(email)))
	var user types.User
	if i >= 0 {
		user = s.users[i]
	}
	s.mu.RUnlock()

	if i < 0 || user.PasswordHash == "" {
		return types.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return types.User{}, ErrInvalidCredentials
	}
	return user.Public(), nil
}

func (s *UserService) indexByEmail(email string) int {
	return slices.IndexFunc(s.users, func(u types.User) bool {
		return strings.EqualFold(u.Email, email)
	})
}

// persist must be called with s.mu held.
func (s *UserService) persist(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultSaveTimeout)
	defer cancel()

	if err := s.saver.SaveUsers(ctx, s.users); err != nil {
		s.logger.Error("Failed to persist users", "error", err)
	}
}
