// Package catalog seeds the labeling catalog: the fixed category and option
// set for pet-photo annotation, a default admin account, and a batch of mock
// images for evaluation setups. Seeding is idempotent; populated tables are
// left untouched.
package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"petlabel/internal/logging"
	"petlabel/internal/store"
)

const component = "catalog"

type seedOption struct {
	label   string
	typical bool
}

type seedCategory struct {
	name         string
	displayOrder int
	options      []seedOption
}

var seedCategories = []seedCategory{
	{
		name:         "Lighting Variation",
		displayOrder: 1,
		options: []seedOption{
			{"Dusk-dawn lighting", false},
			{"Harsh outdoor sunlight with shadows", false},
			{"Low light conditions", false},
			{"Well-lit conditions (typical)", true},
		},
	},
	{
		name:         "Angle & Perspective Variation",
		displayOrder: 2,
		options: []seedOption{
			{"Front-facing at eye level (typical)", true},
			{"Ground-level view", false},
			{"No head showing", false},
			{"Partial view (head only)", false},
			{"Top-down view", false},
		},
	},
	{
		name:         "Environmental Context Variation",
		displayOrder: 3,
		options: []seedOption{
			{"In car-carrier", false},
			{"Indoor setting (typical)", true},
			{"Outdoor dirt road", false},
			{"Snow environment", false},
			{"Vet clinic", false},
			{"Yard with a complex background", false},
		},
	},
	{
		name:         "Occlusion & Partial Visibility",
		displayOrder: 4,
		options: []seedOption{
			{"Behind furniture (face only)", false},
			{"Full-body, unobstructed (typical)", true},
			{"Partially hidden under a blanket", false},
			{"Peeking out of box-carrier", false},
			{"Toy obscuring part of body", false},
		},
	},
	{
		name:         "Activity & Motion",
		displayOrder: 5,
		options: []seedOption{
			{"Eating-drinking", false},
			{"Jumping to catch toy", false},
			{"Playing with another pet", false},
			{"Running with motion blur", false},
			{"Sitting still-posed (typical)", true},
			{"Sleeping-curled up", false},
		},
	},
	{
		name:         "Multi-Pet Disambiguation",
		displayOrder: 6,
		options: []seedOption{
			{"Pet with breed lookalike", false},
			{"Single pet (typical)", true},
			{"Three pets of same breed", false},
			{"Two similar-looking pets together", false},
		},
	},
}

const mockImageCount = 20

// Seed populates empty catalog tables: the six pet-photo categories with
// their options, an admin account, and twenty deterministic mock images.
// Each table is seeded only when empty, so re-running is safe.
func Seed(ctx context.Context, st *store.Store, adminUsername string, logger *slog.Logger) error {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, component)

	if adminUsername != "" {
		existing, err := st.GetWorkerByUsername(ctx, adminUsername)
		if err != nil {
			return fmt.Errorf("look up admin: %w", err)
		}
		if existing == nil {
			if _, err := st.CreateWorker(ctx, adminUsername, "", store.RoleAdmin); err != nil {
				return fmt.Errorf("create admin: %w", err)
			}
			logger.Info("seeded admin account", logging.String(logging.FieldWorkerID, adminUsername))
		}
	}

	count, err := st.CategoryCount(ctx)
	if err != nil {
		return fmt.Errorf("count categories: %w", err)
	}
	if count == 0 {
		for _, category := range seedCategories {
			options := make([]store.Option, len(category.options))
			for i, option := range category.options {
				options[i] = store.Option{
					Label:        option.label,
					IsTypical:    option.typical,
					DisplayOrder: i + 1,
				}
			}
			if _, err := st.CreateCategory(ctx, category.name, category.displayOrder, options); err != nil {
				return fmt.Errorf("seed category %q: %w", category.name, err)
			}
		}
		logger.Info("seeded categories", logging.Int("count", len(seedCategories)))
	}

	itemCount, err := st.ItemCount(ctx)
	if err != nil {
		return fmt.Errorf("count items: %w", err)
	}
	if itemCount == 0 {
		for i := 1; i <= mockImageCount; i++ {
			filename := fmt.Sprintf("pet_%03d.jpg", i)
			url := fmt.Sprintf("https://picsum.photos/seed/pet%d/800/600", i)
			if _, err := st.AddItem(ctx, filename, url); err != nil {
				return fmt.Errorf("seed image %q: %w", filename, err)
			}
		}
		logger.Info("seeded mock images", logging.Int("count", mockImageCount))
	}

	return nil
}
