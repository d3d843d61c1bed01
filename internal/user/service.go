package user

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/suPer8Hu/echo-chat/internal/common"
)

type Service struct {
	store Store
}

func NewService(store Store) *Service { return &Service{store: store} }

type LoginInput struct {
	Name       string
	Email      string
	ProviderID string
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", fmt.Errorf("email is required: %w", common.ErrBadRequest)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", fmt.Errorf("invalid email: %w", common.ErrBadRequest)
	}
	return email, nil
}

// Login finds the user by email or provisions one. An existing user's name
// is refreshed and a provider id is linked if none was recorded yet.
func (s *Service) Login(ctx context.Context, in LoginInput) (*User, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("name is required: %w", common.ErrBadRequest)
	}
	providerID := strings.TrimSpace(in.ProviderID)

	u, err := s.store.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, common.ErrNotFound):
		return s.create(ctx, name, email, providerID)
	case err != nil:
		return nil, err
	}

	changed := false
	if u.Name != name {
		u.Name = name
		changed = true
	}
	if providerID != "" && (u.ProviderID == nil || *u.ProviderID == "") {
		u.ProviderID = &providerID
		changed = true
	}
	if changed {
		if err := s.store.Save(ctx, u); err != nil {
			return nil, err
		}
	}
	return u, nil
}

func (s *Service) create(ctx context.Context, name, email, providerID string) (*User, error) {
	u := &User{ID: common.NewULID(), Name: name, Email: email}
	if providerID != "" {
		u.ProviderID = &providerID
	}
	if err := s.store.Create(ctx, u); err != nil {
		// a concurrent first login may have won the insert
		if existing, ferr := s.store.FindByEmail(ctx, email); ferr == nil {
			return existing, nil
		}
		return nil, err
	}
	return u, nil
}

// Identity is what an external identity provider asserts about a user.
type Identity struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
}

// EnsureExternal maps a provider subject to a local user, provisioning on
// first sight. An existing local account is only linked when the provider
// has verified the email and the account has no other identity attached.
func (s *Service) EnsureExternal(ctx context.Context, id Identity) (*User, error) {
	subject := strings.TrimSpace(id.Subject)
	if subject == "" {
		return nil, fmt.Errorf("subject is required: %w", common.ErrUnauthorized)
	}
	u, err := s.store.FindByProviderID(ctx, subject)
	if err == nil {
		if id.Name != "" && u.Name != id.Name {
			u.Name = id.Name
			if err := s.store.Save(ctx, u); err != nil {
				return nil, err
			}
		}
		return u, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	email, err := normalizeEmail(id.Email)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(id.Name)
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}

	existing, err := s.store.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, common.ErrNotFound):
		u, err := s.create(ctx, name, email, subject)
		if err != nil {
			return nil, fmt.Errorf("provision %s: %w", subject, err)
		}
		if u.ProviderID == nil || *u.ProviderID != subject {
			// lost a race against a local login for the same email
			return s.link(ctx, u, id, subject)
		}
		return u, nil
	case err != nil:
		return nil, err
	}
	return s.link(ctx, existing, id, subject)
}

func (s *Service) link(ctx context.Context, u *User, id Identity, subject string) (*User, error) {
	if !id.EmailVerified {
		return nil, fmt.Errorf("email %s not verified by provider: %w", u.Email, common.ErrForbidden)
	}
	if u.ProviderID != nil && *u.ProviderID != "" && *u.ProviderID != subject {
		return nil, fmt.Errorf("account %s is linked to another identity: %w", u.ID, common.ErrForbidden)
	}
	u.ProviderID = &subject
	if name := strings.TrimSpace(id.Name); name != "" {
		u.Name = name
	}
	if err := s.store.Save(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	return s.store.FindByID(ctx, id)
}
