package services_test

import (
	"context"
	"sync"
	"testing"

	"github.com/chatify/apiserver/internal/services"
	"github.com/chatify/apiserver/types"
	"github.com/stretchr/testify/require"
)

type userSaver struct {
	mu    sync.Mutex
	saved []types.User
}

func (s *userSaver) SaveUsers(_ context.Context, users []types.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append([]types.User(nil), users...)
	return nil
}

func newUsers(t *testing.T, seed ...types.User) (*services.UserService, *userSaver) {
	t.Helper()
	saver := &userSaver{}
	users := services.NewUserService(saver, nil)
	users.Hydrate(seed)
	return users, saver
}

func TestUserService_Register(t *testing.T) {
	t.Parallel()

	t.Run("creates account", func(t *testing.T) {
		t.Parallel()

		users, saver := newUsers(t)
		user, err := users.Register(context.Background(), services.RegisterInput{
			Name:       " Grace Hopper ",
			Email:      "Grace@University.edu",
			Password:   "correct horse",
			Department: "Mathematics",
			Year:       "Faculty",
			Role:       "senior",
		})
		require.NoError(t, err)
		require.NotEmpty(t, user.ID)
		require.Equal(t, "Grace Hopper", user.Name)
		require.Equal(t, "grace@university.edu", user.Email)
		require.Equal(t, types.RoleFaculty, user.Role)
		require.Empty(t, user.PasswordHash)

		require.Len(t, saver.saved, 1)
		require.NotEmpty(t, saver.saved[0].PasswordHash)

		got, err := users.Get(user.ID)
		require.NoError(t, err)
		require.Empty(t, got.PasswordHash)
	})

	t.Run("defaults to student", func(t *testing.T) {
		t.Parallel()

		users, _ := newUsers(t)
		user, err := users.Register(context.Background(), services.RegisterInput{
			Name: "Ada", Email: "ada@university.edu", Password: "12345678",
		})
		require.NoError(t, err)
		require.Equal(t, types.RoleStudent, user.Role)
	})

	t.Run("rejects duplicate email", func(t *testing.T) {
		t.Parallel()

		users, _ := newUsers(t, types.User{ID: "u1", Email: "ada@university.edu"})
		_, err := users.Register(context.Background(), services.RegisterInput{
			Name: "Ada", Email: "ADA@university.edu", Password: "12345678",
		})
		require.ErrorIs(t, err, services.ErrEmailTaken)
	})

	t.Run("validates input", func(t *testing.T) {
		t.Parallel()

		users, saver := newUsers(t)
		cases := []services.RegisterInput{
			{Name: "Ada", Email: "ada@university.edu", Password: "short"},
			{Name: "Ada", Email: "not-an-email", Password: "12345678"},
			{Name: "", Email: "ada@university.edu", Password: "12345678"},
			{Name: "Ada", Email: "ada@university.edu", Password: "12345678", Role: "dean"},
		}
		for _, in := range cases {
			_, err := users.Register(context.Background(), in)
			require.ErrorIs(t, err, services.ErrInvalidInput)
		}
		require.Empty(t, saver.saved)
	})
}

func TestUserService_Login(t *testing.T) {
	t.Parallel()

	users, _ := newUsers(t, types.User{ID: "seed", Email: "seed@university.edu"})
	registered, err := users.Register(context.Background(), services.RegisterInput{
		Name: "Ada", Email: "ada@university.edu", Password: "12345678",
	})
	require.NoError(t, err)

	user, err := users.Login(context.Background(), " ADA@university.edu", "12345678")
	require.NoError(t, err)
	require.Equal(t, registered.ID, user.ID)
	require.Empty(t, user.PasswordHash)

	_, err = users.Login(context.Background(), "ada@university.edu", "wrong-password")
	require.ErrorIs(t, err, services.ErrInvalidCredentials)

	_, err = users.Login(context.Background(), "nobody@university.edu", "12345678")
	require.ErrorIs(t, err, services.ErrInvalidCredentials)

	_, err = users.Login(context.Background(), "seed@university.edu", "")
	require.ErrorIs(t, err, services.ErrInvalidCredentials)
}

func TestUserService_Get(t *testing.T) {
	t.Parallel()

	users, _ := newUsers(t, types.User{ID: "u1", Name: "Ada", PasswordHash: "hash"})

	user, err := users.Get("u1")
	require.NoError(t, err)
	require.Equal(t, "Ada", user.Name)
	require.Empty(t, user.PasswordHash)
	require.Len(t, users.List(), 1)

	_, err = users.Get("u2")
	require.ErrorIs(t, err, services.ErrUserNotFound)
}
