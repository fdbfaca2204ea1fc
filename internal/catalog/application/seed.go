package application

import (
	"context"
	"fmt"

	"github.com/dmehra2102/storefront/internal/catalog/domain"
)

var demoProducts = []domain.NewProduct{
	{
		Name:           "Grandma's Chicken Noodle",
		Description:    "Classic comfort food with homemade noodles.",
		PriceCents:     800,
		Category:       "soup",
		ImageURL:       "https://images.unsplash.com/photo-1547592166-23ac45744acd?auto=format&fit=crop&q=80&w=800",
		InventoryCount: 20,
	},
	{
		Name:           "Spicy Tomato Basil",
		Description:    "Rich tomato soup with a kick of fresh basil and chili.",
		PriceCents:     750,
		Category:       "soup",
		ImageURL:       "https://images.unsplash.com/photo-1596450523032-4740a6b729bc?auto=format&fit=crop&q=80&w=800",
		InventoryCount: 15,
	},
	{
		Name:           "Soulful Mug",
		Description:    "Keep your soup warm in style.",
		PriceCents:     1200,
		Category:       "merch",
		ImageURL:       "https://images.unsplash.com/photo-1514228742587-6b1558fcca3d?auto=format&fit=crop&q=80&w=800",
		InventoryCount: 50,
	},
}

// SeedIfEmpty inserts the demo catalog on first boot. It returns the number of products added.
func (s *Service) SeedIfEmpty(ctx context.Context) (int, error) {
	n, err := s.repo.Count(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		return 0, nil
	}
	s.log.Info("seeding catalog", "products", len(demoProducts))
	for i, p := range demoProducts {
		if _, err := s.repo.Create(ctx, p); err != nil {
			return i, fmt.Errorf("seed product %q: %w", p.Name, err)
		}
	}
	return len(demoProducts), nil
}
