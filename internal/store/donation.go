package store

import (
	"context"
	"fmt"
	"time"

	"donationledger/internal/db"
	"donationledger/internal/utils"
	"donationledger/pkg/types"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
)

const donationTableName = "ledger.donations"

var donationColumns = utils.StructTagValues(types.Donation{})

type DonationRepository struct {
	db db.DBTX
}

func NewDonationRepository(db db.DBTX) *DonationRepository {
	return &DonationRepository{db: db}
}

func (r *DonationRepository) Donation(ctx context.Context, id string) (*types.Donation, error) {
	query, args, err := psql().Select(donationColumns...).From(donationTableName).
		Where(sq.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate donation query: %w", err)
	}

	var donation = new(types.Donation)
	err = pgxscan.Get(ctx, r.db, donation, query, args...)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, types.ErrDonationNotFound
		}
		return nil, wrapError(err, "failed to fetch donation")
	}

	return donation, nil
}

// DonationByIdempotencyKey returns the newest donation the donor submitted
// under key at or after since.
func (r *DonationRepository) DonationByIdempotencyKey(ctx context.Context, donorID, key string, since time.Time) (*types.Donation, error) {
	query, args, err := psql().Select(donationColumns...).From(donationTableName).
		Where(sq.Eq{"donor_id": donorID, "idempotency_key": key}).
		Where(sq.GtOrEq{"created_at": since}).
		OrderBy("created_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate idempotency lookup query: %w", err)
	}

	var donation = new(types.Donation)
	err = pgxscan.Get(ctx, r.db, donation, query, args...)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, types.ErrDonationNotFound
		}
		return nil, wrapError(err, "failed to look up idempotency key")
	}

	return donation, nil
}

func (r *DonationRepository) DonationsByDonor(ctx context.Context, donorID string, limit uint64) ([]*types.Donation, error) {
	builder := psql().Select(donationColumns...).From(donationTableName).
		Where(sq.Eq{"donor_id": donorID}).
		OrderBy("created_at DESC", "id ASC")
	if limit > 0 {
		builder = builder.Limit(limit)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate donor donations query: %w", err)
	}

	var donations = make([]*types.Donation, 0)
	err = pgxscan.Select(ctx, r.db, &donations, query, args...)
	if err != nil {
		return nil, wrapError(err, "failed to fetch donor donations")
	}

	return donations, nil
}

func (r *DonationRepository) CreateDonation(ctx context.Context, donation *types.Donation) error {
	now := time.Now()
	if donation.ID == "" {
		donation.ID = utils.NanoID()
	}
	donation.CreatedAt = now
	donation.UpdatedAt = now

	query, args, err := psql().Insert(donationTableName).SetMap(utils.StructToMap(donation)).ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate insert donation query: %w", err)
	}

	_, err = r.db.Exec(ctx, query, args...)
	return wrapError(err, "failed to create donation")
}

// UpdateDonationStatus moves a donation from one status to another and
// returns types.ErrConflict when the stored status is no longer from.
func (r *DonationRepository) UpdateDonationStatus(ctx context.Context, id string, from, to types.DonationStatus, paymentReference *string) (*types.Donation, error) {
	query, args, err := donationStatusQuery(id, from, to, paymentReference, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to generate donation status query for donation %s: %w", id, err)
	}

	var donation = new(types.Donation)
	err = pgxscan.Get(ctx, r.db, donation, query, args...)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, fmt.Errorf("donation %s is no longer %s: %w", id, from, types.ErrConflict)
		}
		return nil, wrapError(err, "failed to update donation status")
	}

	return donation, nil
}

// donationStatusQuery is a conditional update: it only matches while the row
// is still in the from status. A nil payment reference leaves the column as is.
func donationStatusQuery(id string, from, to types.DonationStatus, paymentReference *string, now time.Time) (string, []any, error) {
	update := psql().Update(donationTableName).
		Set("status", to)
	if paymentReference != nil {
		update = update.Set("payment_reference", *paymentReference)
	}

	return update.
		Set("updated_at", now).
		Where(sq.Eq{"id": id, "status": from}).
		Suffix(returning(donationColumns)).
		ToSql()
}

// LockIdempotencyKey takes a transaction-scoped advisory lock. It is a no-op
// outside a transaction since the lock is released at statement end.
func (r *DonationRepository) LockIdempotencyKey(ctx context.Context, donorID, key string) error {
	_, err := r.db.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtextextended($1, 0))", donorID+"|"+key)
	return wrapError(err, "failed to lock idempotency key")
}

func (r *DonationRepository) Discrepancies(ctx context.Context) ([]*types.Discrepancy, error) {
	query, args, err := discrepanciesQuery()
	if err != nil {
		return nil, fmt.Errorf("failed to generate discrepancies query: %w", err)
	}

	var discrepancies = make([]*types.Discrepancy, 0)
	err = pgxscan.Select(ctx, r.db, &discrepancies, query, args...)
	if err != nil {
		return nil, wrapError(err, "failed to fetch discrepancies")
	}

	return discrepancies, nil
}

func discrepanciesQuery() (string, []any, error) {
	return psql().
		Select(
			"pi.id AS need_id",
			"pi.project_id",
			"pi.quantity_fulfilled",
			"COALESCE(SUM(d.quantity), 0) AS donated_quantity",
		).
		From(needTableName+" pi").
		LeftJoin(donationTableName+" d ON d.need_id = pi.id AND d.status <> ?", types.DonationStatusCancelled).
		GroupBy("pi.id", "pi.project_id", "pi.quantity_fulfilled").
		Having("pi.quantity_fulfilled <> COALESCE(SUM(d.quantity), 0)").
		OrderBy("pi.project_id", "pi.id").
		ToSql()
}
