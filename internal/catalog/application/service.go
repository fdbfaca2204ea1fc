package application

import (
	"context"
	"log/slog"

	"github.com/dmehra2102/storefront/internal/catalog/domain"
	"github.com/dmehra2102/storefront/pkg/validation"
)

type Service struct {
	log      *slog.Logger
	repo     ProductRepository
	validate *validation.Validator
}

func NewService(log *slog.Logger, repo ProductRepository) *Service {
	return &Service{log: log, repo: repo, validate: validation.New()}
}

func (s *Service) List(ctx context.Context) ([]domain.Product, error) {
	return s.repo.List(ctx)
}

func (s *Service) Get(ctx context.Context, id int64) (domain.Product, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, in domain.NewProduct) (domain.Product, error) {
	if err := s.validate.Struct(in); err != nil {
		return domain.Product{}, err
	}
	p, err := s.repo.Create(ctx, in)
	if err != nil {
		return domain.Product{}, err
	}
	s.log.Info("product created", "product_id", p.ID, "name", p.Name)
	return p, nil
}

func (s *Service) Update(ctx context.Context, id int64, patch domain.ProductPatch) (domain.Product, error) {
	if err := s.validate.Struct(patch); err != nil {
		return domain.Product{}, err
	}
	if patch.Empty() {
		return s.repo.Get(ctx, id)
	}
	p, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		return domain.Product{}, err
	}
	s.log.Info("product updated", "product_id", p.ID)
	return p, nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info("product deleted", "product_id", id)
	return nil
}
