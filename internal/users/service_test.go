package users

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/gastromanager/gastromanager/internal/shared"
)

type memoryRepo struct {
	users  map[int64]User
	hashes map[int64]string
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{users: make(map[int64]User), hashes: make(map[int64]string)}
}

func (r *memoryRepo) ListUsers(ctx context.Context) ([]User, error) {
	out := make([]User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	return out, nil
}

func (r *memoryRepo) GetUser(ctx context.Context, id int64) (User, error) {
	if u, ok := r.users[id]; ok {
		return u, nil
	}
	return User{}, shared.ErrNotFound
}

func (r *memoryRepo) CreateUser(ctx context.Context, input CreateInput, passwordHash string) (User, error) {
	for _, u := range r.users {
		if u.Username == input.Username {
			return User{}, ErrDuplicateUsername
		}
	}
	r.nextID++
	u := User{ID: r.nextID, Username: input.Username, FullName: input.FullName, Level: input.Level, IsActive: true}
	r.users[u.ID] = u
	r.hashes[u.ID] = passwordHash
	return u, nil
}

func (r *memoryRepo) UpdateUser(ctx context.Context, id int64, input UpdateInput, passwordHash string) error {
	u, ok := r.users[id]
	if !ok {
		return shared.ErrNotFound
	}
	u.FullName = input.FullName
	u.Level = input.Level
	u.IsActive = input.IsActive
	r.users[id] = u
	if passwordHash != "" {
		r.hashes[id] = passwordHash
	}
	return nil
}

func TestCreateUserHashesPassword(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)

	created, err := svc.CreateUser(context.Background(), CreateInput{
		Username: "Scooper", FullName: "S. Cooper", Level: "service", Password: "gelato-rules",
	})
	require.NoError(t, err)
	require.Equal(t, "scooper", created.Username, "usernames are normalised to lowercase")
	require.True(t, created.IsActive)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.hashes[created.ID]), []byte("gelato-rules")))
}

func TestCreateUserValidation(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, CreateInput{Username: "ab", Level: "service", Password: "longenough"})
	require.Error(t, err)

	_, err = svc.CreateUser(ctx, CreateInput{Username: "valid", Level: "owner", Password: "longenough"})
	require.Error(t, err)

	_, err = svc.CreateUser(ctx, CreateInput{Username: "valid", Level: "manager", Password: "short"})
	require.Error(t, err)
}

func TestCreateUserDuplicate(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, CreateInput{Username: "taken", FullName: "A", Level: "manager", Password: "longenough"})
	require.NoError(t, err)
	_, err = svc.CreateUser(ctx, CreateInput{Username: "taken", FullName: "B", Level: "service", Password: "longenough"})
	require.ErrorIs(t, err, ErrDuplicateUsername)
}

func TestUpdateUserKeepsPasswordWhenBlank(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	created, err := svc.CreateUser(ctx, CreateInput{Username: "keeper", FullName: "K", Level: "production", Password: "originalpass"})
	require.NoError(t, err)
	originalHash := repo.hashes[created.ID]

	err = svc.UpdateUser(ctx, created.ID, UpdateInput{FullName: "K. Updated", Level: "manager", IsActive: false})
	require.NoError(t, err)
	require.Equal(t, originalHash, repo.hashes[created.ID])

	updated, err := svc.GetUser(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "manager", updated.Level)
	require.False(t, updated.IsActive)
}
