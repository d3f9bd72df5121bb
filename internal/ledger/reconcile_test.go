package ledger_test

import (
	"context"
	"testing"

	"donationledger/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcileReportsCounterDrift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.recorder.RecordDonation(ctx, donor("donor-1"), types.RecordDonationInput{ProjectID: f.project.ID, NeedID: &f.need.ID, Quantity: 4})
	require.NoError(t, err)

	discrepancies, err := f.reconciler.Reconcile(ctx)
	require.NoError(t, err)
	assert.Empty(t, discrepancies)

	// a correction applied outside the recorder
	_, err = f.catalog.AdjustFulfilled(ctx, f.need.ID, 3)
	require.NoError(t, err)

	discrepancies, err = f.reconciler.Reconcile(ctx)
	require.NoError(t, err)
	require.Len(t, discrepancies, 1)

	d := discrepancies[0]
	assert.Equal(t, f.need.ID, d.NeedID)
	assert.Equal(t, f.project.ID, d.ProjectID)
	assert.Equal(t, 7, d.QuantityFulfilled)
	assert.Equal(t, 4, d.DonatedQuantity)
	assert.Equal(t, 3, d.Drift())
}

func TestReconcilePropagatesStorageFailure(t *testing.T) {
	f := newFixture(t)
	f.mem.Faults.Discrepancies = types.ErrUnavailable

	_, err := f.reconciler.Reconcile(context.Background())
	assert.ErrorIs(t, err, types.ErrUnavailable)
}
