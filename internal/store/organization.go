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

const organizationTableName = "ledger.organizations"

var organizationColumns = utils.StructTagValues(types.Organization{})

type OrganizationRepository struct {
	db db.DBTX
}

func NewOrganizationRepository(db db.DBTX) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

func (r *OrganizationRepository) Organization(ctx context.Context, id string) (*types.Organization, error) {
	query, args, err := psql().
		Select(organizationColumns...).
		From(organizationTableName).
		Where(sq.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate organization query: %w", err)
	}

	var org types.Organization
	err = pgxscan.Get(ctx, r.db, &org, query, args...)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, types.ErrOrganizationNotFound
		}
		return nil, wrapError(err, "failed to fetch organization")
	}

	return &org, nil
}

func (r *OrganizationRepository) Organizations(ctx context.Context) ([]*types.Organization, error) {
	query, args, err := psql().
		Select(organizationColumns...).
		From(organizationTableName).
		OrderBy("name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate organizations query: %w", err)
	}

	var orgs []*types.Organization
	if err := pgxscan.Select(ctx, r.db, &orgs, query, args...); err != nil {
		return nil, wrapError(err, "failed to fetch organizations")
	}

	return orgs, nil
}

func (r *OrganizationRepository) CreateOrganization(ctx context.Context, org *types.Organization) error {
	now := time.Now()
	if org.ID == "" {
		org.ID = utils.NanoID()
	}
	org.CreatedAt = now
	org.UpdatedAt = now

	query, args, err := psql().
		Insert(organizationTableName).
		SetMap(utils.StructToMap(org)).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate insert organization query: %w", err)
	}

	_, err = r.db.Exec(ctx, query, args...)
	return wrapError(err, "failed to create organization")
}

func (r *OrganizationRepository) UpdateOrganization(ctx context.Context, id string, org *types.Organization) error {
	org.ID = id
	org.UpdatedAt = time.Now()

	query, args, err := psql().
		Update(organizationTableName).
		SetMap(utils.StructToMap(org, "id", "created_at")).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate update organization query for %s: %w", id, err)
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return wrapError(err, "failed to update organization")
	}
	if tag.RowsAffected() == 0 {
		return types.ErrOrganizationNotFound
	}

	return nil
}

func (r *OrganizationRepository) DeleteOrganization(ctx context.Context, id string) error {
	query, args, err := psql().Delete(organizationTableName).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate delete organization query for %s: %w", id, err)
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return wrapError(err, "failed to delete organization")
	}
	if tag.RowsAffected() == 0 {
		return types.ErrOrganizationNotFound
	}

	return nil
}
