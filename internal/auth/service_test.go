package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/gatehouse-iam/gatehouse/internal/shared"
)

type stubAuthRepo struct {
	users    map[string]*User
	sessions map[string]uuid.UUID
}

func newStubAuthRepo() *stubAuthRepo {
	return &stubAuthRepo{users: map[string]*User{}, sessions: map[string]uuid.UUID{}}
}

func (s *stubAuthRepo) FindByEmail(ctx context.Context, email string) (*User, error) {
	user, ok := s.users[email]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return user, nil
}

func (s *stubAuthRepo) CreateSession(ctx context.Context, id string, userID uuid.UUID, expiresAt time.Time, ip, ua string) error {
	s.sessions[id] = userID
	return nil
}

func (s *stubAuthRepo) DeleteSession(ctx context.Context, id string) error {
	delete(s.sessions, id)
	return nil
}

func (s *stubAuthRepo) addUser(email, password string, active bool) *User {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	user := &User{ID: uuid.New(), Email: email, PasswordHash: string(hash), IsActive: active}
	s.users[email] = user
	return user
}

func TestAuthenticateSuccess(t *testing.T) {
	repo := newStubAuthRepo()
	want := repo.addUser("admin@example.com", "hunter22", true)
	svc := NewService(repo)

	user, err := svc.Authenticate(context.Background(), "admin@example.com", "hunter22")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if user.ID != want.ID {
		t.Fatalf("wrong user returned")
	}
}

func TestAuthenticateFailuresAreUniform(t *testing.T) {
	repo := newStubAuthRepo()
	repo.addUser("admin@example.com", "hunter22", true)
	repo.addUser("gone@example.com", "hunter22", false)
	svc := NewService(repo)
	ctx := context.Background()

	cases := []struct{ email, password string }{
		{"nobody@example.com", "hunter22"},
		{"admin@example.com", "wrong"},
		{"gone@example.com", "hunter22"},
	}
	for _, tc := range cases {
		_, err := svc.Authenticate(ctx, tc.email, tc.password)
		if !errors.Is(err, shared.ErrInvalidCredentials) {
			t.Fatalf("%s: expected ErrInvalidCredentials, got %v", tc.email, err)
		}
	}
}

func TestSessionLifecycle(t *testing.T) {
	repo := newStubAuthRepo()
	svc := NewService(repo)
	ctx := context.Background()
	userID := uuid.New()

	if err := svc.RegisterSession(ctx, "sess-1", userID, time.Now().Add(time.Hour), "127.0.0.1", "test"); err != nil {
		t.Fatalf("register session: %v", err)
	}
	if repo.sessions["sess-1"] != userID {
		t.Fatalf("session not stored")
	}
	if err := svc.RemoveSession(ctx, "sess-1"); err != nil {
		t.Fatalf("remove session: %v", err)
	}
	if _, ok := repo.sessions["sess-1"]; ok {
		t.Fatalf("session not removed")
	}
}
