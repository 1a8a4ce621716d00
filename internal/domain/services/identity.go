package services

import (
	"context"
	"errors"

	"civicpulse/internal/infrastructure/database/repository"
	"civicpulse/pkg/logger"
)

// IdentityResolver maps a sender phone to a registered account
type IdentityResolver struct {
	store       IdentityStore
	countryCode string
	logger      *logger.Logger
}

// NewIdentityResolver creates a new identity resolver
func NewIdentityResolver(store IdentityStore, countryCode string, log *logger.Logger) *IdentityResolver {
	return &IdentityResolver{
		store:       store,
		countryCode: countryCode,
		logger:      log.WithComponent("identity"),
	}
}

// Resolve tries each stored phone encoding in order and returns the first
// linked account. Lookup errors count as no match.
func (r *IdentityResolver) Resolve(ctx context.Context, phone string) (string, bool) {
	for _, variant := range PhoneVariants(phone, r.countryCode) {
		accountID, err := r.store.FindAccountByPhone(ctx, variant)
		if err != nil {
			if !errors.Is(err, repository.ErrNotFound) {
				r.logger.Warn().Err(err).Str("sender", phone).Str("variant", variant).Msg("identity lookup failed")
			}
			continue
		}
		if accountID != "" {
			return accountID, true
		}
	}
	return "", false
}
