package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"donationledger/internal/metrics"
	"donationledger/internal/utils"
	"donationledger/pkg/types"

	"github.com/sirupsen/logrus"
)

const (
	MaxNoteLength           = 1000
	MaxIdempotencyKeyLength = 128
)

type RecorderConfig struct {
	// Duplicate submissions inside this window return the original donation.
	IdempotencyWindow time.Duration
	// Width of the time bucket used when a key has to be derived.
	IdempotencyBucket time.Duration
}

func RecorderConfigFrom(config *types.Config) RecorderConfig {
	return RecorderConfig{
		IdempotencyWindow: time.Duration(config.IdempotencyWindowSec) * time.Second,
		IdempotencyBucket: time.Duration(config.IdempotencyBucketSec) * time.Second,
	}
}

// Recorder commits donations. Every donation and the fulfilled-counter
// increment it implies are written in one transaction.
type Recorder struct {
	logger *logrus.Logger
	stores Stores
	tx     Transactor
	config RecorderConfig
	now    func() time.Time
}

func NewRecorder(logger *logrus.Logger, stores Stores, tx Transactor, config RecorderConfig) *Recorder {
	if config.IdempotencyBucket <= 0 {
		config.IdempotencyBucket = time.Minute
	}
	if config.IdempotencyWindow <= 0 {
		config.IdempotencyWindow = 24 * time.Hour
	}

	return &Recorder{
		logger: logger,
		stores: stores,
		tx:     tx,
		config: config,
		now:    time.Now,
	}
}

// DeriveIdempotencyKey builds the key used when the caller did not supply
// one, so a retried submission inside the same bucket collapses into one.
func DeriveIdempotencyKey(donorID string, input types.RecordDonationInput, submittedAt time.Time, bucket time.Duration) string {
	var needID string
	if input.NeedID != nil {
		needID = *input.NeedID
	}

	parts := []string{
		donorID,
		input.ProjectID,
		needID,
		strconv.Itoa(input.Quantity),
		strconv.FormatInt(submittedAt.Truncate(bucket).Unix(), 10),
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return "derived:" + hex.EncodeToString(sum[:])
}

// RecordDonation validates the input and commits the donation together with
// the need's counter increment. A repeated idempotency key from the same
// donor inside the window returns the first donation with Replayed set.
func (r *Recorder) RecordDonation(ctx context.Context, principal types.Principal, input types.RecordDonationInput) (*types.Donation, error) {
	started := r.now()

	donation, err := r.recordDonation(ctx, principal, input, started)

	outcome := metrics.OutcomeRecorded
	switch {
	case err != nil && isRejection(err):
		outcome = metrics.OutcomeRejected
	case err != nil:
		outcome = metrics.OutcomeFailed
	case donation.Replayed:
		outcome = metrics.OutcomeReplayed
	}
	metrics.RecordDonation(outcome, input.Quantity, time.Since(started))

	if err != nil {
		entry := r.logger.WithError(err).WithFields(logrus.Fields{
			"donor_id":   principal.ID,
			"project_id": input.ProjectID,
		})
		if outcome == metrics.OutcomeFailed {
			entry.Error("failed to record donation")
		} else {
			entry.Debug("donation rejected")
		}
		return nil, err
	}

	return donation, nil
}

func (r *Recorder) recordDonation(ctx context.Context, principal types.Principal, input types.RecordDonationInput, submittedAt time.Time) (*types.Donation, error) {
	if !principal.IsAuthenticated() {
		return nil, fmt.Errorf("%w: a signed-in donor is required", types.ErrUnauthenticated)
	}

	input, err := normalizeDonationInput(input)
	if err != nil {
		return nil, err
	}

	key := input.IdempotencyKey
	if key == "" {
		key = DeriveIdempotencyKey(principal.ID, input, submittedAt, r.config.IdempotencyBucket)
	}
	windowStart := submittedAt.Add(-r.config.IdempotencyWindow)

	var result *types.Donation
	err = r.tx.WithinTx(ctx, func(ctx context.Context, s Stores) error {
		if err := s.Donations.LockIdempotencyKey(ctx, principal.ID, key); err != nil {
			return err
		}

		existing, err := s.Donations.DonationByIdempotencyKey(ctx, principal.ID, key, windowStart)
		switch {
		case err == nil:
			existing.Replayed = true
			result = existing
			return nil
		case !errors.Is(err, types.ErrDonationNotFound):
			return err
		}

		project, err := s.Projects.Project(ctx, input.ProjectID)
		if err != nil {
			return err
		}
		if project.Status != types.ProjectStatusActive {
			return fmt.Errorf("%w: project %s is %s", types.ErrProjectNotAccepting, project.ID, project.Status)
		}

		if input.NeedID != nil {
			need, err := s.Needs.Need(ctx, *input.NeedID)
			if err != nil {
				if types.IsNotFound(err) {
					return fmt.Errorf("%w: need %s does not exist", types.ErrInvalidReference, *input.NeedID)
				}
				return err
			}
			if need.ProjectID != project.ID {
				return fmt.Errorf("%w: need %s does not belong to project %s", types.ErrInvalidReference, need.ID, project.ID)
			}
		}

		donor := &types.Donor{ID: principal.ID}
		if principal.Email != "" {
			donor.Email = utils.StringPtr(principal.Email)
		}
		if err := s.Donors.UpsertDonor(ctx, donor); err != nil {
			return err
		}

		donation := &types.Donation{
			DonorID:        principal.ID,
			ProjectID:      project.ID,
			NeedID:         input.NeedID,
			Quantity:       input.Quantity,
			Note:           input.Note,
			Status:         types.DonationStatusPending,
			IdempotencyKey: key,
		}
		if err := s.Donations.CreateDonation(ctx, donation); err != nil {
			return err
		}

		if donation.NeedID != nil {
			if _, err := s.Needs.AdjustFulfilled(ctx, *donation.NeedID, donation.Quantity); err != nil {
				return fmt.Errorf("failed to count donation %s: %w", donation.ID, err)
			}
		}

		result = donation
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.Replayed {
		r.logger.WithFields(logrus.Fields{
			"donation_id": result.ID,
			"donor_id":    result.DonorID,
			"project_id":  result.ProjectID,
			"need_id":     utils.PtrString(result.NeedID),
			"quantity":    result.Quantity,
		}).Info("donation recorded")
	}

	return result, nil
}

func normalizeDonationInput(input types.RecordDonationInput) (types.RecordDonationInput, error) {
	input.ProjectID = strings.TrimSpace(input.ProjectID)
	input.NeedID = utils.TrimmedPtr(input.NeedID)
	input.Note = utils.TrimmedPtr(input.Note)
	input.IdempotencyKey = strings.TrimSpace(input.IdempotencyKey)

	if input.ProjectID == "" {
		return input, types.NewValidationError("projectId", "is required")
	}
	if input.Quantity <= 0 || input.Quantity > types.MaxQuantity {
		return input, types.ErrInvalidQuantity
	}
	if input.Note != nil && utf8.RuneCountInString(*input.Note) > MaxNoteLength {
		return input, types.NewValidationError("note", fmt.Sprintf("must be at most %d characters", MaxNoteLength))
	}
	if len(input.IdempotencyKey) > MaxIdempotencyKeyLength {
		return input, types.NewValidationError("idempotencyKey", fmt.Sprintf("must be at most %d bytes", MaxIdempotencyKeyLength))
	}

	return input, nil
}

// TransitionDonation advances a donation through its fulfillment workflow.
// Cancellation is refused since no compensating decrement is defined.
func (r *Recorder) TransitionDonation(ctx context.Context, id string, to types.DonationStatus) (*types.Donation, error) {
	return r.transitionDonation(ctx, id, to, nil)
}

// ConfirmPayment marks a pending donation confirmed and stores the reference
// of the payment that settled it. A donation that is already confirmed is
// returned unchanged.
func (r *Recorder) ConfirmPayment(ctx context.Context, id, paymentReference string) (*types.Donation, error) {
	paymentReference = strings.TrimSpace(paymentReference)
	if paymentReference == "" {
		return nil, types.NewValidationError("paymentReference", "is required")
	}

	return r.transitionDonation(ctx, id, types.DonationStatusConfirmed, &paymentReference)
}

func (r *Recorder) transitionDonation(ctx context.Context, id string, to types.DonationStatus, paymentReference *string) (*types.Donation, error) {
	if !to.Valid() {
		return nil, types.NewValidationError("status", fmt.Sprintf("unknown donation status %q", to))
	}

	var updated *types.Donation
	err := r.tx.WithinTx(ctx, func(ctx context.Context, s Stores) error {
		donation, err := s.Donations.Donation(ctx, id)
		if err != nil {
			return err
		}

		if donation.Status == to {
			updated = donation
			return nil
		}
		if !donation.Status.CanTransitionTo(to) {
			return fmt.Errorf("%w: donation %s cannot move from %s to %s", types.ErrInvalidTransition, id, donation.Status, to)
		}

		updated, err = s.Donations.UpdateDonationStatus(ctx, id, donation.Status, to, paymentReference)
		return err
	})
	if err != nil {
		return nil, err
	}

	r.logger.WithFields(logrus.Fields{
		"donation_id":       id,
		"status":            updated.Status,
		"payment_reference": utils.PtrString(updated.PaymentReference),
	}).Info("donation status changed")

	return updated, nil
}

// Donation returns one of the principal's donations. Another donor's
// donation is reported as missing; admins see every donation.
func (r *Recorder) Donation(ctx context.Context, principal types.Principal, id string) (*types.Donation, error) {
	if !principal.IsAuthenticated() {
		return nil, types.ErrUnauthenticated
	}

	donation, err := r.stores.Donations.Donation(ctx, id)
	if err != nil {
		return nil, err
	}
	if donation.DonorID != principal.ID && !principal.Admin {
		return nil, types.ErrDonationNotFound
	}

	return donation, nil
}

func (r *Recorder) DonationsByDonor(ctx context.Context, principal types.Principal, limit uint64) ([]*types.Donation, error) {
	if !principal.IsAuthenticated() {
		return nil, types.ErrUnauthenticated
	}
	if limit == 0 || limit > types.MaxProjectLimit {
		limit = types.DefaultProjectLimit
	}

	return r.stores.Donations.DonationsByDonor(ctx, principal.ID, limit)
}

// isRejection reports whether err is a business-rule failure rather than an
// infrastructure one.
func isRejection(err error) bool {
	for _, kind := range []error{
		types.ErrUnauthenticated,
		types.ErrValidation,
		types.ErrInvalidReference,
		types.ErrNotFound,
		types.ErrInvalidTransition,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
