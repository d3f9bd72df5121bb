package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"donationledger/internal/db"
	"donationledger/pkg/types"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
)

const donorTableName = "ledger.donors"

type DonorRepository struct {
	db db.DBTX
}

func NewDonorRepository(db db.DBTX) *DonorRepository {
	return &DonorRepository{db: db}
}

func (r *DonorRepository) Donor(ctx context.Context, donorID string) (*types.Donor, error) {
	query, args, err := psql().
		Select("id", "email", "created_at", "updated_at").
		From(donorTableName).
		Where(sq.Eq{"id": donorID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate donor query: %w", err)
	}

	var donor types.Donor
	err = pgxscan.Get(ctx, r.db, &donor, query, args...)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, types.ErrDonorNotFound
		}
		return nil, wrapError(err, "failed to fetch donor")
	}

	return &donor, nil
}

// UpsertDonor records the identity-provider subject. A blank email never
// overwrites one that is already known.
func (r *DonorRepository) UpsertDonor(ctx context.Context, donor *types.Donor) error {
	now := time.Now()
	donor.CreatedAt = now
	donor.UpdatedAt = now

	var emailPtr *string
	if donor.Email != nil {
		trimmedEmail := strings.TrimSpace(*donor.Email)
		if trimmedEmail != "" {
			emailPtr = &trimmedEmail
		}
	}

	query, args, err := psql().
		Insert(donorTableName).
		Columns("id", "email", "created_at", "updated_at").
		Values(donor.ID, emailPtr, now, now).
		Suffix("ON CONFLICT (id) DO UPDATE SET email = COALESCE(EXCLUDED.email, donors.email), updated_at = EXCLUDED.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate upsert donor query: %w", err)
	}

	_, err = r.db.Exec(ctx, query, args...)
	return wrapError(err, "failed to upsert donor")
}
