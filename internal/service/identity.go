package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/teresa-solution/tenancy-allocation-service/internal/model"
)

// IdentityResolver finds or creates the tenant profile for a contact.
type IdentityResolver struct {
	*base
}

// Resolve returns the profile with the given email, creating a tenant
// profile if there is none. Concurrent calls with the same email return the
// same profile: the loser of a creation race re-reads the winner's row.
func (r *IdentityResolver) Resolve(ctx context.Context, email, name, phone string) (*model.Profile, error) {
	normalized := model.NormalizeEmail(email)
	if normalized == "" {
		return nil, fmt.Errorf("%w: email is required", model.ErrInvalidInput)
	}

	profile, err := r.store.FindProfileByEmail(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("find profile: %w", err)
	}
	if profile != nil {
		return profile, nil
	}

	profile = &model.Profile{
		Email:     normalized,
		Name:      name,
		Phone:     phone,
		Role:      model.RoleTenant,
		CreatedAt: r.now(),
	}
	err = r.store.CreateProfile(ctx, profile)
	if err == nil {
		log.Info().Str("profile_id", profile.ID.String()).Msg("Tenant profile created")
		return profile, nil
	}
	if !errors.Is(err, model.ErrDuplicate) {
		return nil, fmt.Errorf("create profile: %w", err)
	}

	winner, err := r.store.FindProfileByEmail(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("find profile: %w", err)
	}
	if winner == nil {
		return nil, fmt.Errorf("%w: profile for %s vanished after duplicate insert", model.ErrConflict, normalized)
	}
	return winner, nil
}
