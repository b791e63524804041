package main

import (
	"context"
	"testing"
	"time"

	"github.com/steno/steno/internal/domain/identity"
	"github.com/steno/steno/internal/platform/auth"
)

// -- DirectoryAdapter tests --

type stubUserRepo struct {
	users map[string]*identity.User
}

func (s *stubUserRepo) Create(_ context.Context, u *identity.User) error {
	if _, ok := s.users[u.UID]; ok {
		return identity.ErrDuplicate
	}
	u.CreatedAt = time.Now()
	s.users[u.UID] = u
	return nil
}

func (s *stubUserRepo) GetByUID(_ context.Context, uid string) (*identity.User, error) {
	u, ok := s.users[uid]
	if !ok {
		return nil, identity.ErrNotFound
	}
	return u, nil
}

func (s *stubUserRepo) GetByEmail(_ context.Context, email string) (*identity.User, error) {
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, identity.ErrNotFound
}

func (s *stubUserRepo) ListByRole(_ context.Context, role string) ([]*identity.User, error) {
	var out []*identity.User
	for _, u := range s.users {
		if u.Role == role {
			out = append(out, u)
		}
	}
	return out, nil
}

func TestDirectoryAdapter_FindPatient(t *testing.T) {
	repo := &stubUserRepo{users: map[string]*identity.User{
		"p1": {UID: "p1", Name: "Jane Doe", Email: "jane@example.com", Role: auth.RolePatient},
		"c1": {UID: "c1", Name: "Clinic", Email: "clinic@example.com", Role: auth.RoleClinic},
	}}
	adapter := NewDirectoryAdapter(identity.NewService(repo))

	p, err := adapter.FindPatient(context.Background(), "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.UID != "p1" || p.Name != "Jane Doe" || p.Email != "jane@example.com" {
		t.Errorf("adapter lost identity fields: %+v", p)
	}

	if _, err := adapter.FindPatient(context.Background(), "jane@example.com"); err != nil {
		t.Errorf("email lookup failed: %v", err)
	}
	if _, err := adapter.FindPatient(context.Background(), "c1"); err == nil {
		t.Error("non-patient must not resolve as a patient")
	}
	if _, err := adapter.FindPatient(context.Background(), "ghost"); err == nil {
		t.Error("unknown reference must not resolve")
	}
}
