package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dmehra2102/storefront/internal/identity/domain"
)

type Service struct {
	log   *slog.Logger
	users UserRepository
}

func NewService(log *slog.Logger, users UserRepository) *Service {
	return &Service{log: log, users: users}
}

// Register records a verified identity the first time it is seen.
func (s *Service) Register(ctx context.Context, who domain.Identity) error {
	return s.users.Ensure(ctx, who.UserID, who.Email)
}

// Promote grants admin to the configured user ids, creating rows as needed.
func (s *Service) Promote(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if id == "" {
			continue
		}
		if err := s.users.Ensure(ctx, id, ""); err != nil {
			return fmt.Errorf("ensure admin %s: %w", id, err)
		}
		if err := s.users.SetAdmin(ctx, id, true); err != nil {
			return fmt.Errorf("promote admin %s: %w", id, err)
		}
		s.log.Info("admin promoted", "user_id", id)
	}
	return nil
}
