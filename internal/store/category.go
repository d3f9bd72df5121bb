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

const categoryTableName = "ledger.categories"

var categoryColumns = utils.StructTagValues(types.Category{})

type CategoryRepository struct {
	db db.DBTX
}

func NewCategoryRepository(db db.DBTX) *CategoryRepository {
	return &CategoryRepository{db: db}
}

func (r *CategoryRepository) Categories(ctx context.Context) ([]*types.Category, error) {
	query, args, err := psql().
		Select(categoryColumns...).
		From(categoryTableName).
		OrderBy("display_order ASC", "title ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate categories query: %w", err)
	}

	var categories []*types.Category
	err = pgxscan.Select(ctx, r.db, &categories, query, args...)
	if err != nil {
		return nil, wrapError(err, "failed to fetch categories")
	}

	return categories, nil
}

func (r *CategoryRepository) Category(ctx context.Context, id string) (*types.Category, error) {
	query, args, err := psql().
		Select(categoryColumns...).
		From(categoryTableName).
		Where(sq.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate category query: %w", err)
	}

	var category types.Category
	err = pgxscan.Get(ctx, r.db, &category, query, args...)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, types.ErrCategoryNotFound
		}
		return nil, wrapError(err, "failed to fetch category")
	}

	return &category, nil
}

// UpsertCategory inserts the category or overwrites every column except id
// and created_at. Seeds rely on this to converge on the code-defined list.
func (r *CategoryRepository) UpsertCategory(ctx context.Context, category *types.Category) error {
	now := time.Now()
	if category.ID == "" {
		category.ID = utils.NanoID()
	}
	if category.CreatedAt.IsZero() {
		category.CreatedAt = now
	}
	category.UpdatedAt = now

	categoryMap := utils.StructToMap(category)
	updateMap := utils.StructToMap(category, "id", "created_at")

	query, args, err := psql().
		Insert(categoryTableName).
		SetMap(categoryMap).
		Suffix("ON CONFLICT (id) DO UPDATE SET " + buildUpdateClause(updateMap)).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate upsert query: %w", err)
	}

	_, err = r.db.Exec(ctx, query, args...)
	return wrapError(err, "failed to upsert category")
}

func (r *CategoryRepository) DeleteCategory(ctx context.Context, id string) error {
	query, args, err := psql().
		Delete(categoryTableName).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate delete query: %w", err)
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return wrapError(err, "failed to delete category")
	}
	if tag.RowsAffected() == 0 {
		return types.ErrCategoryNotFound
	}

	return nil
}
