package store

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"donationledger/internal/db"
	"donationledger/internal/ledger"
	"donationledger/internal/utils"
	"donationledger/pkg/types"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

const testDatabaseEnv = "LEDGER_TEST_DATABASE_URL"

func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	url := os.Getenv(testDatabaseEnv)
	if url == "" {
		t.Skipf("%s not set, skipping Postgres integration test", testDatabaseEnv)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, db.MigrateUp(ctx, pool))
	return pool
}

type fixture struct {
	project *types.Project
	need    *types.Need
}

func seedFixture(t *testing.T, stores ledger.Stores, needed int) fixture {
	t.Helper()
	ctx := context.Background()

	org := &types.Organization{Name: "Test Org " + utils.NanoID()}
	require.NoError(t, stores.Organizations.CreateOrganization(ctx, org))

	project := &types.Project{
		OrganizationID: org.ID,
		Title:          "Winter Coats",
		Status:         types.ProjectStatusActive,
		Urgency:        types.UrgencyHigh,
	}
	require.NoError(t, stores.Projects.CreateProject(ctx, project))

	need := &types.Need{
		ProjectID:      project.ID,
		Name:           "Coats",
		QuantityNeeded: needed,
		Priority:       types.NeedPriorityHigh,
	}
	require.NoError(t, stores.Needs.CreateNeed(ctx, need))

	t.Cleanup(func() {
		_ = stores.Organizations.DeleteOrganization(context.Background(), org.ID)
	})

	return fixture{project: project, need: need}
}

func TestPostgresConcurrentIncrementsAreNotLost(t *testing.T) {
	pool := testPool(t)
	stores := NewStores(pool)
	tx := NewTransactor(db.NewUnitOfWork(pool))
	fx := seedFixture(t, stores, 100)

	const donors = 25
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < donors; i++ {
		g.Go(func() error {
			return tx.WithinTx(ctx, func(ctx context.Context, s ledger.Stores) error {
				_, err := s.Needs.AdjustFulfilled(ctx, fx.need.ID, 2)
				return err
			})
		})
	}
	require.NoError(t, g.Wait())

	need, err := stores.Needs.Need(context.Background(), fx.need.ID)
	require.NoError(t, err)
	assert.Equal(t, donors*2, need.QuantityFulfilled)
}

func TestPostgresFailedTransactionLeavesNoTrace(t *testing.T) {
	pool := testPool(t)
	stores := NewStores(pool)
	tx := NewTransactor(db.NewUnitOfWork(pool))
	fx := seedFixture(t, stores, 30)
	ctx := context.Background()

	donorID := "donor-" + utils.NanoID()
	boom := errors.New("boom")

	var donationID string
	err := tx.WithinTx(ctx, func(ctx context.Context, s ledger.Stores) error {
		require.NoError(t, s.Donors.UpsertDonor(ctx, &types.Donor{ID: donorID}))

		donation := &types.Donation{
			DonorID:        donorID,
			ProjectID:      fx.project.ID,
			NeedID:         &fx.need.ID,
			Quantity:       5,
			Status:         types.DonationStatusPending,
			IdempotencyKey: utils.NanoID(),
		}
		require.NoError(t, s.Donations.CreateDonation(ctx, donation))
		donationID = donation.ID

		_, err := s.Needs.AdjustFulfilled(ctx, fx.need.ID, 5)
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = stores.Donations.Donation(ctx, donationID)
	assert.ErrorIs(t, err, types.ErrDonationNotFound)

	need, err := stores.Needs.Need(ctx, fx.need.ID)
	require.NoError(t, err)
	assert.Zero(t, need.QuantityFulfilled)
}

func TestPostgresNeedMustBelongToProject(t *testing.T) {
	pool := testPool(t)
	stores := NewStores(pool)
	ctx := context.Background()
	a := seedFixture(t, stores, 10)
	b := seedFixture(t, stores, 10)

	donorID := "donor-" + utils.NanoID()
	require.NoError(t, stores.Donors.UpsertDonor(ctx, &types.Donor{ID: donorID}))

	err := stores.Donations.CreateDonation(ctx, &types.Donation{
		DonorID:        donorID,
		ProjectID:      a.project.ID,
		NeedID:         &b.need.ID,
		Quantity:       1,
		Status:         types.DonationStatusPending,
		IdempotencyKey: utils.NanoID(),
	})
	assert.ErrorIs(t, err, types.ErrInvalidReference)
}

func TestPostgresDiscrepanciesAndStatusTransitions(t *testing.T) {
	pool := testPool(t)
	stores := NewStores(pool)
	ctx := context.Background()
	fx := seedFixture(t, stores, 10)

	_, err := stores.Needs.AdjustFulfilled(ctx, fx.need.ID, 3)
	require.NoError(t, err)

	discrepancies, err := stores.Donations.Discrepancies(ctx)
	require.NoError(t, err)

	var found *types.Discrepancy
	for _, d := range discrepancies {
		if d.NeedID == fx.need.ID {
			found = d
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, 3, found.Drift())

	err = stores.Projects.UpdateProjectStatus(ctx, fx.project.ID, types.ProjectStatusDraft, types.ProjectStatusActive)
	assert.ErrorIs(t, err, types.ErrConflict)

	require.NoError(t, stores.Projects.UpdateProjectStatus(ctx, fx.project.ID, types.ProjectStatusActive, types.ProjectStatusPaused))
	project, err := stores.Projects.Project(ctx, fx.project.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ProjectStatusPaused, project.Status)
}

func TestPostgresAdvisoryLockSerialisesSameKey(t *testing.T) {
	pool := testPool(t)
	tx := NewTransactor(db.NewUnitOfWork(pool))
	ctx := context.Background()

	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
	)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < 5; i++ {
		g.Go(func() error {
			return tx.WithinTx(gctx, func(ctx context.Context, s ledger.Stores) error {
				if err := s.Donations.LockIdempotencyKey(ctx, "donor-lock", "same-key"); err != nil {
					return err
				}
				mu.Lock()
				inside++
				maxSeen = max(maxSeen, inside)
				mu.Unlock()

				time.Sleep(20 * time.Millisecond)

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, 1, maxSeen)
}
