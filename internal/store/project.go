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

const projectTableName = "ledger.projects"

var projectColumns = utils.StructTagValues(types.Project{})

type ProjectRepository struct {
	db db.DBTX
}

func NewProjectRepository(db db.DBTX) *ProjectRepository {
	return &ProjectRepository{db: db}
}

func (r *ProjectRepository) Project(ctx context.Context, id string) (*types.Project, error) {
	query, args, err := psql().Select(projectColumns...).From(projectTableName).
		Where(sq.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate project query: %w", err)
	}

	var project = new(types.Project)
	err = pgxscan.Get(ctx, r.db, project, query, args...)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, types.ErrProjectNotFound
		}
		return nil, wrapError(err, "failed to fetch project")
	}

	return project, nil
}

// Projects expects a normalized filter; see types.ProjectFilter.Normalize.
func (r *ProjectRepository) Projects(ctx context.Context, filter types.ProjectFilter) ([]*types.Project, error) {
	query, args, err := projectsQuery(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to generate projects query: %w", err)
	}

	var projects = make([]*types.Project, 0)
	err = pgxscan.Select(ctx, r.db, &projects, query, args...)
	if err != nil {
		return nil, wrapError(err, "failed to fetch projects")
	}

	return projects, nil
}

func projectsQuery(filter types.ProjectFilter) (string, []any, error) {
	builder := psql().Select(projectColumns...).From(projectTableName)

	if filter.Status != "" && filter.Status != types.ProjectStatusAll {
		builder = builder.Where(sq.Eq{"status": filter.Status})
	}
	if filter.CategoryID != "" {
		builder = builder.Where(sq.Eq{"category_id": filter.CategoryID})
	}
	if filter.Limit > 0 {
		builder = builder.Limit(filter.Limit)
	}

	return builder.OrderBy("created_at DESC", "id ASC").ToSql()
}

func (r *ProjectRepository) CreateProject(ctx context.Context, project *types.Project) error {

	now := time.Now()
	if project.ID == "" {
		project.ID = utils.NanoID()
	}
	project.UpdatedAt = now
	project.CreatedAt = now

	query, args, err := psql().Insert(projectTableName).SetMap(utils.StructToMap(project)).ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate insert project query: %w", err)
	}

	_, err = r.db.Exec(ctx, query, args...)
	return wrapError(err, "failed to create project")

}

// UpdateProject rewrites metadata. Status and image have their own paths.
func (r *ProjectRepository) UpdateProject(ctx context.Context, id string, project *types.Project) error {

	project.ID = id
	project.UpdatedAt = time.Now()

	projectMap := utils.StructToMap(project, "id", "status", "image_key", "created_at")

	query, args, err := psql().Update(projectTableName).SetMap(projectMap).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate update project query for project %s: %w", id, err)
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return wrapError(err, "failed to update project")
	}
	if tag.RowsAffected() == 0 {
		return types.ErrProjectNotFound
	}

	return nil

}

func (r *ProjectRepository) UpdateProjectStatus(ctx context.Context, id string, from, to types.ProjectStatus) error {

	query, args, err := psql().Update(projectTableName).
		Set("status", to).
		Set("updated_at", time.Now()).
		Where(sq.Eq{"id": id, "status": from}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate project status query for project %s: %w", id, err)
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return wrapError(err, "failed to update project status")
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("project %s is no longer %s: %w", id, from, types.ErrConflict)
	}

	return nil

}

func (r *ProjectRepository) SetProjectImage(ctx context.Context, id string, imageKey *string) error {

	query, args, err := psql().Update(projectTableName).
		Set("image_key", imageKey).
		Set("updated_at", time.Now()).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate project image query for project %s: %w", id, err)
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return wrapError(err, "failed to set project image")
	}
	if tag.RowsAffected() == 0 {
		return types.ErrProjectNotFound
	}

	return nil

}

func (r *ProjectRepository) DeleteProject(ctx context.Context, id string) error {

	query, args, err := psql().Delete(projectTableName).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate delete project query for project %s: %w", id, err)
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return wrapError(err, "failed to delete project")
	}
	if tag.RowsAffected() == 0 {
		return types.ErrProjectNotFound
	}

	return nil

}

func (r *ProjectRepository) CountActiveByCategory(ctx context.Context, categoryID string) (int, error) {
	query, args, err := psql().
		Select("count(*)").
		From(projectTableName).
		Where(sq.Eq{"category_id": categoryID, "status": types.ProjectStatusActive}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to generate category project count query: %w", err)
	}

	var count int
	if err := pgxscan.Get(ctx, r.db, &count, query, args...); err != nil {
		return 0, wrapError(err, "failed to count category projects")
	}

	return count, nil
}

type categoryCount struct {
	CategoryID   string `db:"category_id"`
	ProjectCount int    `db:"project_count"`
}

func (r *ProjectRepository) ActiveCountsByCategory(ctx context.Context) (map[string]int, error) {
	query, args, err := psql().
		Select("category_id", "count(*) AS project_count").
		From(projectTableName).
		Where(sq.Eq{"status": types.ProjectStatusActive}).
		Where(sq.NotEq{"category_id": nil}).
		GroupBy("category_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate category counts query: %w", err)
	}

	var rows []*categoryCount
	if err := pgxscan.Select(ctx, r.db, &rows, query, args...); err != nil {
		return nil, wrapError(err, "failed to count projects per category")
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.CategoryID] = row.ProjectCount
	}

	return counts, nil
}
