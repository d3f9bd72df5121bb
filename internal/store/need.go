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

const needTableName = "ledger.project_items"

var needColumns = utils.StructTagValues(types.Need{})

type NeedRepository struct {
	db db.DBTX
}

func NewNeedRepository(db db.DBTX) *NeedRepository {
	return &NeedRepository{db: db}
}

func (r *NeedRepository) Need(ctx context.Context, needID string) (*types.Need, error) {

	query, args, err := psql().Select(needColumns...).From(needTableName).
		Where(sq.Eq{"id": needID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate need query: %w", err)
	}

	var need = new(types.Need)
	err = pgxscan.Get(ctx, r.db, need, query, args...)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, types.ErrNeedNotFound
		}
		return nil, wrapError(err, "failed to fetch need")
	}

	return need, nil

}

func (r *NeedRepository) NeedsByProjects(ctx context.Context, projectIDs []string) ([]*types.Need, error) {

	var needs = make([]*types.Need, 0)
	if len(projectIDs) == 0 {
		return needs, nil
	}

	query, args, err := psql().Select(needColumns...).From(needTableName).
		Where(sq.Eq{"project_id": projectIDs}).
		OrderBy("created_at ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate project needs query: %w", err)
	}

	err = pgxscan.Select(ctx, r.db, &needs, query, args...)
	if err != nil {
		return nil, wrapError(err, "failed to fetch project needs")
	}

	return needs, nil
}

func (r *NeedRepository) CreateNeed(ctx context.Context, need *types.Need) error {

	now := time.Now()
	if need.ID == "" {
		need.ID = utils.NanoID()
	}
	need.UpdatedAt = now
	need.CreatedAt = now

	query, args, err := psql().Insert(needTableName).SetMap(utils.StructToMap(need)).ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate insert need query: %w", err)
	}

	_, err = r.db.Exec(ctx, query, args...)
	return wrapError(err, "failed to create need")

}

// UpdateNeed never touches quantity_fulfilled; only AdjustFulfilled moves it.
func (r *NeedRepository) UpdateNeed(ctx context.Context, needID string, need *types.Need) error {

	need.ID = needID
	need.UpdatedAt = time.Now()

	needMap := utils.StructToMap(need, "id", "project_id", "quantity_fulfilled", "created_at")

	query, args, err := psql().Update(needTableName).SetMap(needMap).Where(sq.Eq{"id": needID}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate update need query for need %s: %w", needID, err)
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return wrapError(err, "failed to update need")
	}
	if tag.RowsAffected() == 0 {
		return types.ErrNeedNotFound
	}

	return nil

}

func (r *NeedRepository) DeleteNeed(ctx context.Context, needID string) error {

	query, args, err := psql().Delete(needTableName).Where(sq.Eq{"id": needID}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate delete need query for need %s: %w", needID, err)
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return wrapError(err, "failed to delete need")
	}
	if tag.RowsAffected() == 0 {
		return types.ErrNeedNotFound
	}

	return nil

}

// AdjustFulfilled increments inside the UPDATE itself so concurrent donors
// never lose each other's writes; the row lock is held until commit.
func (r *NeedRepository) AdjustFulfilled(ctx context.Context, needID string, delta int) (*types.Need, error) {

	query, args, err := adjustFulfilledQuery(needID, delta, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to generate adjust fulfilled query for need %s: %w", needID, err)
	}

	var need = new(types.Need)
	err = pgxscan.Get(ctx, r.db, need, query, args...)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, types.ErrNeedNotFound
		}
		return nil, wrapError(err, "failed to adjust fulfilled quantity")
	}

	return need, nil

}

func adjustFulfilledQuery(needID string, delta int, now time.Time) (string, []any, error) {
	return psql().Update(needTableName).
		Set("quantity_fulfilled", sq.Expr("quantity_fulfilled + ?", delta)).
		Set("updated_at", now).
		Where(sq.Eq{"id": needID}).
		Suffix(returning(needColumns)).
		ToSql()
}
