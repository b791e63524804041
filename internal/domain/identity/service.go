package identity

import (
	"context"
	"fmt"

	"github.com/steno/steno/internal/platform/auth"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Register stores a role record for an identity the external auth provider
// has already issued. One record per uid; the role is fixed at registration.
func (s *Service) Register(ctx context.Context, u *User) error {
	if u.UID == "" {
		return fmt.Errorf("uid is required")
	}
	if u.Name == "" {
		return fmt.Errorf("name is required")
	}
	if u.Email == "" {
		return fmt.Errorf("email is required")
	}
	if !auth.ValidRole(u.Role) {
		return fmt.Errorf("invalid role: %s", u.Role)
	}
	return s.repo.Create(ctx, u)
}

func (s *Service) GetByUID(ctx context.Context, uid string) (*User, error) {
	return s.repo.GetByUID(ctx, uid)
}

// FindPatient resolves a patient reference, which may be a uid or an email
// address. Only users registered with the patient role resolve.
func (s *Service) FindPatient(ctx context.Context, ref string) (*User, error) {
	u, err := s.repo.GetByUID(ctx, ref)
	if err != nil {
		u, err = s.repo.GetByEmail(ctx, ref)
	}
	if err != nil {
		return nil, err
	}
	if u.Role != auth.RolePatient {
		return nil, ErrNotFound
	}
	return u, nil
}

// ListPatients returns the patient directory used by clinic intake.
func (s *Service) ListPatients(ctx context.Context) ([]*User, error) {
	return s.repo.ListByRole(ctx, auth.RolePatient)
}
