package seed

import (
	"context"
	"fmt"

	"donationledger/internal/utils"
	"donationledger/pkg/types"
)

// CategoryCatalog is the part of the ledger catalog the category sync needs.
type CategoryCatalog interface {
	Categories(ctx context.Context) ([]*types.Category, error)
	UpsertCategory(ctx context.Context, category *types.Category) error
	DeleteCategory(ctx context.Context, id string) error
}

// categories is the source of truth for project categories. Run the seed
// command after editing: new entries are inserted, changed ones updated and
// entries removed from this list are deleted from the database.
//
// To generate new IDs: `go run ./cmd/donationledger nanoid`
var categories = []types.Category{
	{
		ID:           "ehAIZ65SBy8ewyOWiJVpRdP9W78STAse",
		Title:        "Housing & Shelter",
		Slug:         "housing-shelter",
		Description:  utils.StringPtr("Beds, bedding, furniture and shelter supplies"),
		DisplayOrder: 1,
	},
	{
		ID:           "MkeMQP08IH9k5rXHspDUer2xQWOLjHza",
		Title:        "Food & Nutrition",
		Slug:         "food-nutrition",
		Description:  utils.StringPtr("Pantry staples, fresh produce and meal kits"),
		DisplayOrder: 2,
	},
	{
		ID:           "8kzJOd6irR67jH2MPq8LxoqIK7tJ3CV6",
		Title:        "Medical & Healthcare",
		Slug:         "medical-healthcare",
		Description:  utils.StringPtr("First aid kits, hygiene products and mobility aids"),
		DisplayOrder: 3,
	},
	{
		ID:           "0Yis9XuFbdESHRF8yNRt4vzHfBEUZzVt",
		Title:        "Transportation",
		Slug:         "transportation",
		Description:  utils.StringPtr("Bicycles, transit passes and car seats"),
		DisplayOrder: 4,
	},
	{
		ID:           "SbikmS7HyVZOusy0MFcHVJpBVCqd6CQd",
		Title:        "Education & Training",
		Slug:         "education-training",
		Description:  utils.StringPtr("School supplies, books and laptops"),
		DisplayOrder: 5,
	},
	{
		ID:           "Lkk49SMHJ1x91O2Nn16zPFkw2ZUfFHov",
		Title:        "Family & Childcare",
		Slug:         "family-childcare",
		Description:  utils.StringPtr("Diapers, formula, clothing and toys"),
		DisplayOrder: 6,
	},
	{
		ID:           "3O25B8RXOmCmhFiBqVS99wvOMhRmOWsH",
		Title:        "Emergency & Crisis",
		Slug:         "emergency-crisis",
		Description:  utils.StringPtr("Disaster relief kits, water and blankets"),
		DisplayOrder: 7,
	},
}

// SeedCategories syncs the database with the category list above.
func SeedCategories(ctx context.Context, catalog CategoryCatalog) error {
	fmt.Println("Starting category sync...")
	fmt.Printf("  Seed file contains %d categories\n", len(categories))

	seedIDs := make(map[string]bool, len(categories))
	for _, category := range categories {
		seedIDs[category.ID] = true
	}

	existing, err := catalog.Categories(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch existing categories: %w", err)
	}
	fmt.Printf("  Database contains %d categories\n", len(existing))

	deletedCount := 0
	for _, category := range existing {
		if seedIDs[category.ID] {
			continue
		}
		fmt.Printf("  Deleting category: %s (id: %s)\n", category.Title, category.ID)
		if err := catalog.DeleteCategory(ctx, category.ID); err != nil {
			return fmt.Errorf("failed to delete category %s: %w", category.ID, err)
		}
		deletedCount++
	}

	upsertedCount := 0
	for _, category := range categories {
		fmt.Printf("  Upserting category: %s (slug: %s)\n", category.Title, category.Slug)
		if err := catalog.UpsertCategory(ctx, &category); err != nil {
			return fmt.Errorf("failed to upsert category %s: %w", category.Slug, err)
		}
		upsertedCount++
	}

	fmt.Printf("\nSync complete: %d upserted, %d deleted\n", upsertedCount, deletedCount)
	return nil
}
