package seed

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"donationledger/internal/ledger"
	"donationledger/internal/utils"
	"donationledger/pkg/types"
)

// Seeded projects carry this title prefix so a reset can find them.
const seedPrefix = "[seed] "

var fakeOrganizations = []types.Organization{
	{Name: "Harbor House", Website: utils.StringPtr("https://harborhouse.example.org"), ContactEmail: utils.StringPtr("hello@harborhouse.example.org")},
	{Name: "Northside Pantry", Description: utils.StringPtr("Volunteer run food pantry")},
	{Name: "Bright Start Families", ContactEmail: utils.StringPtr("team@brightstart.example.org")},
}

var fakeProjectTitles = []string{
	"Winter Shelter Beds",
	"Back to School Backpacks",
	"Weekend Meal Kits",
	"Bikes for Commuters",
	"Newborn Essentials",
	"Flood Relief Supplies",
	"Community Clinic Kits",
	"Laptop Lending Library",
}

var fakeNeedNames = []string{
	"Blankets", "Pillows", "Notebooks", "Canned vegetables", "Rice (5kg)", "Bike locks",
	"Diapers", "Bottled water", "First aid kits", "Chargers", "Winter coats", "Toothbrushes",
}

type weightedProjectStatus struct {
	Status types.ProjectStatus
	Weight int
}

var weightedStatuses = []weightedProjectStatus{
	{Status: types.ProjectStatusDraft, Weight: 15},
	{Status: types.ProjectStatusActive, Weight: 60},
	{Status: types.ProjectStatusPaused, Weight: 10},
	{Status: types.ProjectStatusCompleted, Weight: 15},
}

var fakeDonors = []types.Principal{
	{ID: "seed-donor-ava", Email: "ava.williams+seed1@example.com", Authenticated: true},
	{ID: "seed-donor-liam", Email: "liam.johnson+seed2@example.com", Authenticated: true},
	{ID: "seed-donor-mia", Email: "mia.davis+seed3@example.com", Authenticated: true},
	{ID: "seed-donor-noah", Authenticated: true},
}

// SeedOrganizations creates the fake organizations that do not exist yet,
// matching on name, and returns every organization.
func SeedOrganizations(ctx context.Context, catalog *ledger.Catalog) ([]*types.Organization, error) {
	existing, err := catalog.Organizations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch organizations: %w", err)
	}

	byName := make(map[string]bool, len(existing))
	for _, org := range existing {
		byName[org.Name] = true
	}

	created := 0
	for _, org := range fakeOrganizations {
		if byName[org.Name] {
			continue
		}
		if err := catalog.CreateOrganization(ctx, &org); err != nil {
			return nil, fmt.Errorf("failed to create organization %s: %w", org.Name, err)
		}
		existing = append(existing, &org)
		created++
	}

	fmt.Printf("Organizations seeded: %d created, %d total\n", created, len(existing))
	return existing, nil
}

// SeedFakeProjects creates count projects with needs in random states and
// records donations against the active ones through the recorder, so every
// counter is backed by donation rows.
func SeedFakeProjects(ctx context.Context, catalog *ledger.Catalog, recorder *ledger.Recorder, count int, reset bool) error {
	if reset {
		deleted, err := resetFakeProjects(ctx, catalog)
		if err != nil {
			return err
		}
		fmt.Printf("Reset seeded fake projects: %d deleted\n", deleted)
	}

	if count <= 0 {
		fmt.Println("Skipping fake projects seed because count <= 0")
		return nil
	}

	orgs, err := SeedOrganizations(ctx, catalog)
	if err != nil {
		return err
	}

	categories, err := catalog.Categories(ctx)
	if err != nil {
		return fmt.Errorf("failed to load categories for fake projects: %w", err)
	}
	if len(categories) == 0 {
		return fmt.Errorf("no categories found; run category seed first")
	}

	rng := rand.New(rand.NewSource(rand.Int63()))

	created, donations := 0, 0
	for i := 0; i < count; i++ {
		project := &types.Project{
			OrganizationID: orgs[rng.Intn(len(orgs))].ID,
			CategoryID:     utils.StringPtr(categories[rng.Intn(len(categories))].ID),
			Title:          seedPrefix + fakeProjectTitles[rng.Intn(len(fakeProjectTitles))],
			Urgency:        []types.Urgency{types.UrgencyLow, types.UrgencyMedium, types.UrgencyHigh, types.UrgencyCritical}[rng.Intn(4)],
			Location:       utils.StringPtr("Springfield"),
		}
		if err := catalog.CreateProject(ctx, project); err != nil {
			return fmt.Errorf("failed to create fake project %d: %w", i+1, err)
		}

		needCount := rng.Intn(4) + 1
		needs := make([]*types.Need, 0, needCount)
		for j := 0; j < needCount; j++ {
			need := &types.Need{
				Name:                   fakeNeedNames[rng.Intn(len(fakeNeedNames))],
				QuantityNeeded:         (rng.Intn(20) + 1) * 5,
				Priority:               []types.NeedPriority{types.NeedPriorityLow, types.NeedPriorityMedium, types.NeedPriorityHigh, types.NeedPriorityUrgent}[rng.Intn(4)],
				EstimatedUnitCostCents: utils.Int64Ptr(int64(rng.Intn(5000) + 100)),
			}
			if err := catalog.CreateNeed(ctx, project.ID, need); err != nil {
				return fmt.Errorf("failed to create need for fake project %s: %w", project.ID, err)
			}
			needs = append(needs, need)
		}

		status := pickWeightedStatus(rng)
		if status != types.ProjectStatusDraft {
			if _, err := catalog.TransitionProject(ctx, project.ID, types.ProjectStatusActive); err != nil {
				return fmt.Errorf("failed to activate fake project %s: %w", project.ID, err)
			}

			recorded, err := seedDonations(ctx, recorder, project.ID, needs, rng)
			if err != nil {
				return err
			}
			donations += recorded

			if status != types.ProjectStatusActive {
				if _, err := catalog.TransitionProject(ctx, project.ID, status); err != nil {
					return fmt.Errorf("failed to move fake project %s to %s: %w", project.ID, status, err)
				}
			}
		}

		created++
	}

	fmt.Printf("Fake projects seeded: %d created, %d donations recorded\n", created, donations)
	return nil
}

func seedDonations(ctx context.Context, recorder *ledger.Recorder, projectID string, needs []*types.Need, rng *rand.Rand) (int, error) {
	recorded := 0
	for _, need := range needs {
		gifts := rng.Intn(4)
		for k := 0; k < gifts; k++ {
			donor := fakeDonors[rng.Intn(len(fakeDonors))]
			input := types.RecordDonationInput{
				ProjectID:      projectID,
				NeedID:         utils.StringPtr(need.ID),
				Quantity:       rng.Intn(need.QuantityNeeded/2+1) + 1,
				IdempotencyKey: fmt.Sprintf("seed-%s-%d", need.ID, k),
			}
			if _, err := recorder.RecordDonation(ctx, donor, input); err != nil {
				return recorded, fmt.Errorf("failed to record donation for need %s: %w", need.ID, err)
			}
			recorded++
		}
	}
	return recorded, nil
}

func resetFakeProjects(ctx context.Context, catalog *ledger.Catalog) (int, error) {
	projects, err := catalog.ListProjects(ctx, types.ProjectFilter{Status: types.ProjectStatusAll, Limit: types.MaxProjectLimit})
	if err != nil {
		return 0, fmt.Errorf("failed to list projects for reset: %w", err)
	}

	deleted := 0
	for _, project := range projects {
		if !strings.HasPrefix(project.Title, seedPrefix) {
			continue
		}
		if err := catalog.DeleteProject(ctx, project.ID); err != nil {
			return deleted, fmt.Errorf("failed to delete seeded project %s: %w", project.ID, err)
		}
		deleted++
	}
	return deleted, nil
}

func pickWeightedStatus(rng *rand.Rand) types.ProjectStatus {
	total := 0
	for _, item := range weightedStatuses {
		total += item.Weight
	}

	roll := rng.Intn(total)
	running := 0
	for _, item := range weightedStatuses {
		running += item.Weight
		if roll < running {
			return item.Status
		}
	}

	return types.ProjectStatusDraft
}
