// Package seed inserts the initial directory accounts for non-production
// environments.
package seed

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/smallbiznis/smallbiznis-users/internal/config"
	"github.com/smallbiznis/smallbiznis-users/internal/domain"
	"github.com/smallbiznis/smallbiznis-users/internal/password"
	"github.com/smallbiznis/smallbiznis-users/internal/repository"
)

type seedAccount struct {
	account  domain.Account
	password string
}

// Seeder populates initial accounts.
type Seeder struct {
	accounts repository.AccountRepository
	hasher   *password.Hasher
	cfg      config.Config
	logger   *zap.Logger
}

func New(accounts repository.AccountRepository, hasher *password.Hasher, cfg config.Config, logger *zap.Logger) *Seeder {
	return &Seeder{accounts: accounts, hasher: hasher, cfg: cfg, logger: logger}
}

// Run inserts the seed accounts. Existing accounts are left alone unless
// SEED_RESET forces a re-create. Production environments are never seeded.
func (s *Seeder) Run(ctx context.Context) error {
	if !s.cfg.SeedOnStart || s.cfg.Environment == "production" {
		return nil
	}

	seeds := []seedAccount{
		{
			account: domain.Account{
				FirstName: "Maria",
				LastName:  "Doe",
				Username:  "mariadoe",
				Email:     "maria@example.com",
				Plan:      domain.PlanFree,
				Role:      domain.RoleUser,
			},
			password: "maria123",
		},
		{
			account: domain.Account{
				FirstName: "John",
				LastName:  "Doe",
				Username:  "johndoe",
				Email:     "juan@example.com",
				Plan:      domain.PlanPremium,
				Role:      domain.RoleUser,
			},
			password: "john123",
		},
		{
			account: domain.Account{
				FirstName: "Admin",
				LastName:  "User",
				Username:  s.cfg.AdminUsername,
				Email:     s.cfg.AdminEmail,
				Plan:      domain.PlanPro,
				Role:      domain.RoleAdmin,
			},
			password: s.cfg.AdminPassword,
		},
	}

	for _, seed := range seeds {
		if err := s.ensure(ctx, seed); err != nil {
			return err
		}
	}
	return nil
}

func (s *Seeder) ensure(ctx context.Context, seed seedAccount) error {
	_, err := s.accounts.GetByUsername(ctx, seed.account.Username)
	switch {
	case err == nil:
		if !s.cfg.SeedReset {
			return nil
		}
		if err := s.accounts.Delete(ctx, seed.account.Username); err != nil {
			return fmt.Errorf("reset seed account %q: %w", seed.account.Username, err)
		}
	case !errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("check seed account %q: %w", seed.account.Username, err)
	}

	hash, err := s.hasher.Hash(seed.password)
	if err != nil {
		return err
	}
	seed.account.PasswordHash = hash
	if seed.account.ProfilePictureURL == "" {
		seed.account.ProfilePictureURL = s.cfg.DefaultPictureURL
	}

	if _, err := s.accounts.Create(ctx, seed.account); err != nil {
		return fmt.Errorf("seed account %q: %w", seed.account.Username, err)
	}

	s.logger.Info("seeded account", zap.String("username", seed.account.Username))
	return nil
}
