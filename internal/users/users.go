// Package users maps identity-provider subjects onto local accounts.
package users

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/illegalcall/imaginify/internal/cache"
	"github.com/illegalcall/imaginify/internal/models"
	"github.com/illegalcall/imaginify/internal/store"
)

// Defaults applied to accounts created on first sight.
type Defaults struct {
	StartingBalance int
	PlanID          int
}

type Service struct {
	users       *store.Users
	defaults    Defaults
	invalidator cache.Invalidator
	logger      *slog.Logger
}

func NewService(db sqlx.ExtContext, defaults Defaults, invalidator cache.Invalidator, logger *slog.Logger) *Service {
	if invalidator == nil {
		invalidator = cache.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		users:       store.NewUsers(db),
		defaults:    defaults,
		invalidator: invalidator,
		logger:      logger,
	}
}

// ResolveOrCreate returns the user matching the identity's external id or
// email, creating it with the default balance and plan when none exists.
// A concurrent creation that loses the unique race reads the winner's row.
func (s *Service) ResolveOrCreate(ctx context.Context, identity models.Identity) (*models.User, error) {
	if identity.ExternalID == "" || identity.Email == "" {
		return nil, fmt.Errorf("%w: identity requires subject and email", models.ErrInvalidInput)
	}
	if identity.Username == "" {
		identity.Username = identity.Email
	}

	user, err := s.users.FindByExternalIDOrEmail(ctx, identity.ExternalID, identity.Email)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return user, nil
	}

	user, err = s.users.Insert(ctx, identity, s.defaults.StartingBalance, s.defaults.PlanID)
	if err != nil {
		return nil, err
	}
	if user != nil {
		s.logger.Info("👤 User created", "userID", user.ID, "externalID", user.ExternalID, "balance", user.CreditBalance)
		return user, nil
	}

	user, err = s.users.FindByExternalIDOrEmail(ctx, identity.ExternalID, identity.Email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("%w: user %s conflicts on a unique field", models.ErrInvalidInput, identity.ExternalID)
	}
	return user, nil
}

// FetchByExternalID returns (nil, nil) when no user has the external id.
func (s *Service) FetchByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	return s.users.FindByExternalID(ctx, externalID)
}

func (s *Service) FetchByID(ctx context.Context, id string) (*models.User, error) {
	return s.users.FindByID(ctx, id)
}

// Update applies a partial profile update and returns (nil, nil) when the
// user does not exist.
func (s *Service) Update(ctx context.Context, externalID string, update models.UserUpdate) (*models.User, error) {
	if update.Empty() {
		return s.users.FindByExternalID(ctx, externalID)
	}
	return s.users.UpdateByExternalID(ctx, externalID, update)
}

// Delete removes the user and invalidates views rooted at "/".
func (s *Service) Delete(ctx context.Context, externalID string) (*models.User, error) {
	user, err := s.users.DeleteByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, nil
	}

	s.logger.Info("🗑️ User deleted", "userID", user.ID, "externalID", externalID)
	s.invalidator.Invalidate(ctx, "/")
	return user, nil
}
