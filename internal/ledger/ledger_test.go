package ledger_test

import (
	"context"
	"testing"

	"donationledger/internal/ledger"
	"donationledger/internal/ledger/ledgertest"
	"donationledger/internal/utils"
	"donationledger/pkg/types"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	mem        *ledgertest.Memory
	catalog    *ledger.Catalog
	recorder   *ledger.Recorder
	projector  *ledger.Projector
	reconciler *ledger.Reconciler

	org      *types.Organization
	category *types.Category
	project  *types.Project
	need     *types.Need
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger, _ := test.NewNullLogger()
	mem := ledgertest.NewMemory()
	stores := mem.Stores()

	f := &fixture{
		mem:        mem,
		catalog:    ledger.NewCatalog(logger, stores, mem),
		recorder:   ledger.NewRecorder(logger, stores, mem, ledger.RecorderConfig{}),
		projector:  ledger.NewProjector(stores),
		reconciler: ledger.NewReconciler(logger, stores),
	}

	ctx := context.Background()

	f.category = &types.Category{Title: "Shelter", Slug: "shelter"}
	require.NoError(t, f.catalog.UpsertCategory(ctx, f.category))

	f.org = &types.Organization{Name: "Harbor House"}
	require.NoError(t, f.catalog.CreateOrganization(ctx, f.org))

	f.project = f.activeProject(t, "Winter Shelter")
	f.need = f.addNeed(t, f.project.ID, "Bedding sets", 50)

	return f
}

// activeProject creates a project in the fixture's category and activates it.
func (f *fixture) activeProject(t *testing.T, title string) *types.Project {
	t.Helper()
	ctx := context.Background()

	project := &types.Project{
		OrganizationID: f.org.ID,
		CategoryID:     utils.StringPtr(f.category.ID),
		Title:          title,
		Urgency:        types.UrgencyHigh,
	}
	require.NoError(t, f.catalog.CreateProject(ctx, project))

	activated, err := f.catalog.TransitionProject(ctx, project.ID, types.ProjectStatusActive)
	require.NoError(t, err)
	return activated
}

func (f *fixture) addNeed(t *testing.T, projectID, name string, needed int) *types.Need {
	t.Helper()

	need := &types.Need{Name: name, QuantityNeeded: needed, Priority: types.NeedPriorityHigh}
	require.NoError(t, f.catalog.CreateNeed(context.Background(), projectID, need))
	return need
}

func (f *fixture) fulfilled(t *testing.T, needID string) int {
	t.Helper()

	need, err := f.catalog.GetNeed(context.Background(), needID)
	require.NoError(t, err)
	return need.QuantityFulfilled
}

func donor(id string) types.Principal {
	return types.Principal{ID: id, Email: id + "@example.org", Authenticated: true}
}
