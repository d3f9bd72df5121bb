package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"donationledger/internal/ledger"
	"donationledger/internal/utils"
	"donationledger/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestRecordDonationRequiresAuthenticatedPrincipal(t *testing.T) {
	f := newFixture(t)
	commits := f.mem.Commits()

	principals := []types.Principal{
		{},
		{ID: "donor-1"},
		{Authenticated: true},
	}

	for _, principal := range principals {
		_, err := f.recorder.RecordDonation(context.Background(), principal, types.RecordDonationInput{
			ProjectID: f.project.ID,
			NeedID:    &f.need.ID,
			Quantity:  1,
		})
		assert.ErrorIs(t, err, types.ErrUnauthenticated)
	}

	assert.Equal(t, commits, f.mem.Commits())
	assert.Zero(t, f.fulfilled(t, f.need.ID))
}

func TestRecordDonationValidatesInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	commits := f.mem.Commits()

	longNote := make([]rune, ledger.MaxNoteLength+1)
	for i := range longNote {
		longNote[i] = 'é'
	}

	tests := []struct {
		name  string
		input types.RecordDonationInput
	}{
		{"zero quantity", types.RecordDonationInput{ProjectID: f.project.ID, Quantity: 0}},
		{"negative quantity", types.RecordDonationInput{ProjectID: f.project.ID, Quantity: -3}},
		{"quantity beyond column range", types.RecordDonationInput{ProjectID: f.project.ID, Quantity: types.MaxQuantity + 1}},
		{"missing project", types.RecordDonationInput{Quantity: 1}},
		{"note too long", types.RecordDonationInput{ProjectID: f.project.ID, Quantity: 1, Note: utils.StringPtr(string(longNote))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.recorder.RecordDonation(ctx, donor("donor-1"), tt.input)
			assert.ErrorIs(t, err, types.ErrValidation)
		})
	}

	_, err := f.recorder.RecordDonation(ctx, donor("donor-1"), types.RecordDonationInput{ProjectID: f.project.ID})
	assert.ErrorIs(t, err, types.ErrInvalidQuantity)

	assert.Equal(t, commits, f.mem.Commits())
}

func TestRecordDonationIncrementsNeed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	donation, err := f.recorder.RecordDonation(ctx, donor("donor-1"), types.RecordDonationInput{
		ProjectID: f.project.ID,
		NeedID:    &f.need.ID,
		Quantity:  7,
		Note:      utils.StringPtr("  for the family shelter "),
	})
	require.NoError(t, err)

	assert.False(t, donation.Replayed)
	assert.Equal(t, types.DonationStatusPending, donation.Status)
	assert.Equal(t, "for the family shelter", utils.PtrString(donation.Note))
	assert.NotEmpty(t, donation.IdempotencyKey)
	assert.Equal(t, 7, f.fulfilled(t, f.need.ID))

	stored, err := f.recorder.Donation(ctx, donor("donor-1"), donation.ID)
	require.NoError(t, err)
	assert.Equal(t, donation.ID, stored.ID)
}

func TestRecordDonationUntargetedLeavesNeedsAlone(t *testing.T) {
	f := newFixture(t)

	donation, err := f.recorder.RecordDonation(context.Background(), donor("donor-1"), types.RecordDonationInput{
		ProjectID: f.project.ID,
		Quantity:  2500,
	})
	require.NoError(t, err)
	assert.Nil(t, donation.NeedID)
	assert.Zero(t, f.fulfilled(t, f.need.ID))
}

func TestRecordDonationConcurrentDonorsLoseNoUpdates(t *testing.T) {
	f := newFixture(t)

	const donors = 50
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < donors; i++ {
		g.Go(func() error {
			_, err := f.recorder.RecordDonation(ctx, donor(fmt.Sprintf("donor-%d", i)), types.RecordDonationInput{
				ProjectID: f.project.ID,
				NeedID:    &f.need.ID,
				Quantity:  1,
			})
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, donors, f.fulfilled(t, f.need.ID))

	discrepancies, err := f.reconciler.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Empty(t, discrepancies)
}

func TestRecordDonationSameKeyCountsOnce(t *testing.T) {
	f := newFixture(t)
	input := types.RecordDonationInput{
		ProjectID:      f.project.ID,
		NeedID:         &f.need.ID,
		Quantity:       4,
		IdempotencyKey: "checkout-7f3a",
	}

	first, err := f.recorder.RecordDonation(context.Background(), donor("donor-1"), input)
	require.NoError(t, err)

	g, ctx := errgroup.WithContext(context.Background())
	replays := make([]*types.Donation, 5)
	for i := range replays {
		g.Go(func() error {
			donation, err := f.recorder.RecordDonation(ctx, donor("donor-1"), input)
			replays[i] = donation
			return err
		})
	}
	require.NoError(t, g.Wait())

	for _, replay := range replays {
		assert.True(t, replay.Replayed)
		assert.Equal(t, first.ID, replay.ID)
	}

	donations, err := f.recorder.DonationsByDonor(context.Background(), donor("donor-1"), 0)
	require.NoError(t, err)
	assert.Len(t, donations, 1)
	assert.Equal(t, 4, f.fulfilled(t, f.need.ID))
}

func TestRecordDonationKeysAreScopedPerDonor(t *testing.T) {
	f := newFixture(t)
	input := types.RecordDonationInput{ProjectID: f.project.ID, NeedID: &f.need.ID, Quantity: 1, IdempotencyKey: "same"}

	a, err := f.recorder.RecordDonation(context.Background(), donor("donor-a"), input)
	require.NoError(t, err)
	b, err := f.recorder.RecordDonation(context.Background(), donor("donor-b"), input)
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.False(t, b.Replayed)
	assert.Equal(t, 2, f.fulfilled(t, f.need.ID))
}

func TestRecordDonationDerivedKeyCollapsesRetries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	submitted := time.Date(2026, 5, 1, 10, 0, 5, 0, time.UTC)
	ledger.SetClock(f.recorder, func() time.Time { return submitted })

	input := types.RecordDonationInput{ProjectID: f.project.ID, NeedID: &f.need.ID, Quantity: 3}

	first, err := f.recorder.RecordDonation(ctx, donor("donor-1"), input)
	require.NoError(t, err)

	submitted = submitted.Add(30 * time.Second)
	retry, err := f.recorder.RecordDonation(ctx, donor("donor-1"), input)
	require.NoError(t, err)
	assert.True(t, retry.Replayed)
	assert.Equal(t, first.ID, retry.ID)

	submitted = submitted.Add(time.Minute)
	later, err := f.recorder.RecordDonation(ctx, donor("donor-1"), input)
	require.NoError(t, err)
	assert.False(t, later.Replayed)
	assert.NotEqual(t, first.IdempotencyKey, later.IdempotencyKey)

	assert.Equal(t, 6, f.fulfilled(t, f.need.ID))
}

func TestRecordDonationKeyExpiresAfterWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	input := types.RecordDonationInput{ProjectID: f.project.ID, NeedID: &f.need.ID, Quantity: 1, IdempotencyKey: "k-1"}

	first, err := f.recorder.RecordDonation(ctx, donor("donor-1"), input)
	require.NoError(t, err)

	ledger.SetClock(f.recorder, func() time.Time { return time.Now().Add(48 * time.Hour) })

	second, err := f.recorder.RecordDonation(ctx, donor("donor-1"), input)
	require.NoError(t, err)
	assert.False(t, second.Replayed)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 2, f.fulfilled(t, f.need.ID))
}

func TestDeriveIdempotencyKey(t *testing.T) {
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	input := types.RecordDonationInput{ProjectID: "p1", NeedID: utils.StringPtr("n1"), Quantity: 2}

	key := ledger.DeriveIdempotencyKey("d1", input, at, time.Minute)
	assert.Equal(t, key, ledger.DeriveIdempotencyKey("d1", input, at.Add(59*time.Second), time.Minute))
	assert.NotEqual(t, key, ledger.DeriveIdempotencyKey("d1", input, at.Add(time.Minute), time.Minute))
	assert.NotEqual(t, key, ledger.DeriveIdempotencyKey("d2", input, at, time.Minute))

	untargeted := input
	untargeted.NeedID = nil
	assert.NotEqual(t, key, ledger.DeriveIdempotencyKey("d1", untargeted, at, time.Minute))

	more := input
	more.Quantity = 3
	assert.NotEqual(t, key, ledger.DeriveIdempotencyKey("d1", more, at, time.Minute))
}

func TestRecordDonationRejectsForeignNeed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	other := f.activeProject(t, "Food Pantry")
	cans := f.addNeed(t, other.ID, "Canned goods", 200)
	commits := f.mem.Commits()

	_, err := f.recorder.RecordDonation(ctx, donor("donor-1"), types.RecordDonationInput{
		ProjectID: f.project.ID,
		NeedID:    &cans.ID,
		Quantity:  5,
	})
	assert.ErrorIs(t, err, types.ErrInvalidReference)

	_, err = f.recorder.RecordDonation(ctx, donor("donor-1"), types.RecordDonationInput{
		ProjectID: f.project.ID,
		NeedID:    utils.StringPtr("missing"),
		Quantity:  5,
	})
	assert.ErrorIs(t, err, types.ErrInvalidReference)

	assert.Equal(t, commits, f.mem.Commits())
	assert.Zero(t, f.fulfilled(t, cans.ID))
	assert.Zero(t, f.fulfilled(t, f.need.ID))

	donations, err := f.recorder.DonationsByDonor(ctx, donor("donor-1"), 0)
	require.NoError(t, err)
	assert.Empty(t, donations)
}

func TestRecordDonationRequiresActiveProject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.catalog.TransitionProject(ctx, f.project.ID, types.ProjectStatusPaused)
	require.NoError(t, err)

	_, err = f.recorder.RecordDonation(ctx, donor("donor-1"), types.RecordDonationInput{ProjectID: f.project.ID, NeedID: &f.need.ID, Quantity: 1})
	assert.ErrorIs(t, err, types.ErrProjectNotAccepting)
	assert.ErrorIs(t, err, types.ErrValidation)

	_, err = f.recorder.RecordDonation(ctx, donor("donor-1"), types.RecordDonationInput{ProjectID: "missing", Quantity: 1})
	assert.ErrorIs(t, err, types.ErrProjectNotFound)
}

func TestRecordDonationRollsBackWhenIncrementFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	commits := f.mem.Commits()

	storageDown := fmt.Errorf("failed to adjust fulfilled quantity: %w", types.ErrUnavailable)
	f.mem.Faults.AdjustFulfilled = storageDown

	_, err := f.recorder.RecordDonation(ctx, donor("donor-1"), types.RecordDonationInput{
		ProjectID: f.project.ID,
		NeedID:    &f.need.ID,
		Quantity:  5,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrUnavailable)

	assert.Equal(t, commits, f.mem.Commits())

	donations, err := f.recorder.DonationsByDonor(ctx, donor("donor-1"), 0)
	require.NoError(t, err)
	assert.Empty(t, donations)
	assert.Zero(t, f.fulfilled(t, f.need.ID))

	f.mem.Faults.AdjustFulfilled = nil

	donation, err := f.recorder.RecordDonation(ctx, donor("donor-1"), types.RecordDonationInput{
		ProjectID: f.project.ID,
		NeedID:    &f.need.ID,
		Quantity:  5,
	})
	require.NoError(t, err)
	assert.False(t, donation.Replayed)
	assert.Equal(t, 5, f.fulfilled(t, f.need.ID))
}

func TestRecordDonationRollsBackWhenInsertFails(t *testing.T) {
	f := newFixture(t)
	f.mem.Faults.CreateDonation = types.ErrUnavailable

	_, err := f.recorder.RecordDonation(context.Background(), donor("donor-1"), types.RecordDonationInput{
		ProjectID: f.project.ID,
		NeedID:    &f.need.ID,
		Quantity:  5,
	})
	assert.ErrorIs(t, err, types.ErrUnavailable)
	assert.Zero(t, f.fulfilled(t, f.need.ID))
}

func TestRecordDonationCancelledBeforeCommit(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.recorder.RecordDonation(ctx, donor("donor-1"), types.RecordDonationInput{
		ProjectID: f.project.ID,
		NeedID:    &f.need.ID,
		Quantity:  5,
	})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Zero(t, f.fulfilled(t, f.need.ID))
}

func TestRecordDonationRejectsCounterOverflow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.recorder.RecordDonation(ctx, donor("donor-1"), types.RecordDonationInput{
		ProjectID: f.project.ID,
		NeedID:    &f.need.ID,
		Quantity:  types.MaxQuantity,
	})
	require.NoError(t, err)

	_, err = f.recorder.RecordDonation(ctx, donor("donor-1"), types.RecordDonationInput{
		ProjectID: f.project.ID,
		NeedID:    &f.need.ID,
		Quantity:  1,
	})
	assert.ErrorIs(t, err, types.ErrValidation)
	assert.NotErrorIs(t, err, types.ErrUnavailable)

	assert.Equal(t, types.MaxQuantity, f.fulfilled(t, f.need.ID))
	donations, err := f.recorder.DonationsByDonor(ctx, donor("donor-1"), 0)
	require.NoError(t, err)
	assert.Len(t, donations, 1)
}

func TestConfirmPaymentStoresReference(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	donation, err := f.recorder.RecordDonation(ctx, donor("donor-1"), types.RecordDonationInput{
		ProjectID: f.project.ID,
		NeedID:    &f.need.ID,
		Quantity:  3,
	})
	require.NoError(t, err)
	assert.Nil(t, donation.PaymentReference)

	_, err = f.recorder.ConfirmPayment(ctx, donation.ID, "  ")
	assert.ErrorIs(t, err, types.ErrValidation)

	confirmed, err := f.recorder.ConfirmPayment(ctx, donation.ID, "pi_123")
	require.NoError(t, err)
	assert.Equal(t, types.DonationStatusConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.PaymentReference)
	assert.Equal(t, "pi_123", *confirmed.PaymentReference)

	// a redelivered confirmation keeps the first reference
	again, err := f.recorder.ConfirmPayment(ctx, donation.ID, "pi_456")
	require.NoError(t, err)
	assert.Equal(t, "pi_123", *again.PaymentReference)

	delivered, err := f.recorder.TransitionDonation(ctx, donation.ID, types.DonationStatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, "pi_123", *delivered.PaymentReference)
}

func TestTransitionDonation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	donation, err := f.recorder.RecordDonation(ctx, donor("donor-1"), types.RecordDonationInput{
		ProjectID: f.project.ID,
		NeedID:    &f.need.ID,
		Quantity:  2,
	})
	require.NoError(t, err)

	_, err = f.recorder.TransitionDonation(ctx, donation.ID, types.DonationStatusDelivered)
	assert.ErrorIs(t, err, types.ErrInvalidTransition)

	confirmed, err := f.recorder.TransitionDonation(ctx, donation.ID, types.DonationStatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, types.DonationStatusConfirmed, confirmed.Status)

	again, err := f.recorder.TransitionDonation(ctx, donation.ID, types.DonationStatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, types.DonationStatusConfirmed, again.Status)

	_, err = f.recorder.TransitionDonation(ctx, donation.ID, types.DonationStatusCancelled)
	assert.ErrorIs(t, err, types.ErrInvalidTransition)

	delivered, err := f.recorder.TransitionDonation(ctx, donation.ID, types.DonationStatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, types.DonationStatusDelivered, delivered.Status)

	_, err = f.recorder.TransitionDonation(ctx, "missing", types.DonationStatusConfirmed)
	assert.ErrorIs(t, err, types.ErrDonationNotFound)

	_, err = f.recorder.TransitionDonation(ctx, donation.ID, "refunded")
	assert.ErrorIs(t, err, types.ErrValidation)

	assert.Equal(t, 2, f.fulfilled(t, f.need.ID))
}

func TestDonationVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	donation, err := f.recorder.RecordDonation(ctx, donor("donor-1"), types.RecordDonationInput{ProjectID: f.project.ID, Quantity: 1})
	require.NoError(t, err)

	_, err = f.recorder.Donation(ctx, donor("donor-2"), donation.ID)
	assert.ErrorIs(t, err, types.ErrDonationNotFound)

	admin := donor("admin-1")
	admin.Admin = true
	found, err := f.recorder.Donation(ctx, admin, donation.ID)
	require.NoError(t, err)
	assert.Equal(t, donation.ID, found.ID)

	_, err = f.recorder.Donation(ctx, types.Principal{}, donation.ID)
	assert.ErrorIs(t, err, types.ErrUnauthenticated)

	_, err = f.recorder.DonationsByDonor(ctx, types.Principal{}, 10)
	assert.ErrorIs(t, err, types.ErrUnauthenticated)
}

func TestConcurrentDonorsEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.catalog.AdjustFulfilled(ctx, f.need.ID, 30)
	require.NoError(t, err)

	fromA := types.RecordDonationInput{ProjectID: f.project.ID, NeedID: &f.need.ID, Quantity: 5, IdempotencyKey: "a-checkout-1"}

	first, err := f.recorder.RecordDonation(ctx, donor("donor-a"), fromA)
	require.NoError(t, err)
	require.False(t, first.Replayed)

	after, err := f.catalog.GetNeed(ctx, f.need.ID)
	require.NoError(t, err)
	assert.Equal(t, 35, after.QuantityFulfilled)
	assert.Equal(t, types.BucketModerate, ledger.NeedStatusBucket(after))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := f.recorder.RecordDonation(gctx, donor("donor-b"), types.RecordDonationInput{ProjectID: f.project.ID, NeedID: &f.need.ID, Quantity: 10})
		return err
	})
	g.Go(func() error {
		_, err := f.recorder.RecordDonation(gctx, donor("donor-a"), fromA)
		return err
	})
	require.NoError(t, g.Wait())

	final, err := f.catalog.GetNeed(ctx, f.need.ID)
	require.NoError(t, err)

	// donor-a's second submission is a client retry of the first
	assert.Equal(t, 45, final.QuantityFulfilled)
	assert.Equal(t, types.BucketWellStocked, ledger.NeedStatusBucket(final))

	progress, err := f.projector.ProjectProgress(ctx, f.project.ID)
	require.NoError(t, err)
	assert.Equal(t, 90, progress.Percent)
}
