package ledger

import (
	"context"
	"fmt"
	"strings"

	"donationledger/internal/utils"
	"donationledger/pkg/types"

	"github.com/sirupsen/logrus"
)

// Catalog is the source of truth for projects, needs, categories and
// organizations, and the only path that moves a need's fulfilled counter.
type Catalog struct {
	logger *logrus.Logger
	stores Stores
	tx     Transactor
}

func NewCatalog(logger *logrus.Logger, stores Stores, tx Transactor) *Catalog {
	return &Catalog{logger: logger, stores: stores, tx: tx}
}

func (c *Catalog) GetProject(ctx context.Context, id string) (*types.Project, error) {
	return loadProject(ctx, c.stores, id)
}

func loadProject(ctx context.Context, stores Stores, id string) (*types.Project, error) {
	project, err := stores.Projects.Project(ctx, id)
	if err != nil {
		return nil, err
	}

	needs, err := stores.Needs.NeedsByProjects(ctx, []string{project.ID})
	if err != nil {
		return nil, fmt.Errorf("failed to load needs for project %s: %w", id, err)
	}

	rollup(project, needs)
	return project, nil
}

// ListProjects returns projects newest first with their needs and rollups.
// An empty status lists active projects only.
func (c *Catalog) ListProjects(ctx context.Context, filter types.ProjectFilter) ([]*types.Project, error) {
	if filter.Status != "" && filter.Status != types.ProjectStatusAll && !filter.Status.Valid() {
		return nil, types.NewValidationError("status", fmt.Sprintf("unknown project status %q", filter.Status))
	}

	projects, err := c.stores.Projects.Projects(ctx, filter.Normalize())
	if err != nil {
		return nil, err
	}
	if len(projects) == 0 {
		return projects, nil
	}

	projectIDs := make([]string, 0, len(projects))
	for _, project := range projects {
		projectIDs = append(projectIDs, project.ID)
	}

	needs, err := c.stores.Needs.NeedsByProjects(ctx, projectIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load needs for projects: %w", err)
	}

	byProject := make(map[string][]*types.Need, len(projects))
	for _, need := range needs {
		byProject[need.ProjectID] = append(byProject[need.ProjectID], need)
	}
	for _, project := range projects {
		rollup(project, byProject[project.ID])
	}

	return projects, nil
}

func (c *Catalog) GetNeed(ctx context.Context, id string) (*types.Need, error) {
	return c.stores.Needs.Need(ctx, id)
}

// AdjustFulfilled raises the need's counter by delta. Corrections that lower
// it are not supported here.
func (c *Catalog) AdjustFulfilled(ctx context.Context, needID string, delta int) (*types.Need, error) {
	if delta <= 0 || delta > types.MaxQuantity {
		return nil, fmt.Errorf("%w: delta must be a positive integer no larger than %d, got %d", types.ErrInvalidDelta, types.MaxQuantity, delta)
	}

	return c.stores.Needs.AdjustFulfilled(ctx, needID, delta)
}

func (c *Catalog) CreateProject(ctx context.Context, project *types.Project) error {
	if project.Urgency == "" {
		project.Urgency = types.UrgencyMedium
	}
	if err := validateProject(project); err != nil {
		return err
	}

	project.ID = ""
	project.Status = types.ProjectStatusDraft

	if _, err := c.stores.Organizations.Organization(ctx, project.OrganizationID); err != nil {
		return referenceError("organizationId", err)
	}
	if err := checkCategory(ctx, c.stores, project.CategoryID); err != nil {
		return err
	}

	if err := c.stores.Projects.CreateProject(ctx, project); err != nil {
		return err
	}

	c.logger.WithFields(logrus.Fields{
		"project_id":      project.ID,
		"organization_id": project.OrganizationID,
	}).Info("project created")

	return nil
}

// UpdateProject replaces the project's metadata. Status changes go through
// TransitionProject and images through SetProjectImage.
func (c *Catalog) UpdateProject(ctx context.Context, id string, project *types.Project) (*types.Project, error) {
	if project.Urgency == "" {
		project.Urgency = types.UrgencyMedium
	}
	if err := validateProject(project); err != nil {
		return nil, err
	}

	var updated *types.Project
	err := c.tx.WithinTx(ctx, func(ctx context.Context, s Stores) error {
		current, err := s.Projects.Project(ctx, id)
		if err != nil {
			return err
		}
		if current.OrganizationID != project.OrganizationID {
			if _, err := s.Organizations.Organization(ctx, project.OrganizationID); err != nil {
				return referenceError("organizationId", err)
			}
		}
		if err := checkCategory(ctx, s, project.CategoryID); err != nil {
			return err
		}

		if err := s.Projects.UpdateProject(ctx, id, project); err != nil {
			return err
		}

		updated, err = loadProject(ctx, s, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// TransitionProject moves a project along its lifecycle. The store applies the
// change only if nobody else moved the project in the meantime.
func (c *Catalog) TransitionProject(ctx context.Context, id string, to types.ProjectStatus) (*types.Project, error) {
	if !to.Valid() {
		return nil, types.NewValidationError("status", fmt.Sprintf("unknown project status %q", to))
	}

	var (
		from    types.ProjectStatus
		updated *types.Project
	)
	err := c.tx.WithinTx(ctx, func(ctx context.Context, s Stores) error {
		project, err := s.Projects.Project(ctx, id)
		if err != nil {
			return err
		}

		from = project.Status
		if !from.CanTransitionTo(to) {
			return fmt.Errorf("%w: project %s cannot move from %s to %s", types.ErrInvalidTransition, id, from, to)
		}

		if err := s.Projects.UpdateProjectStatus(ctx, id, from, to); err != nil {
			return err
		}

		updated, err = loadProject(ctx, s, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"project_id": id,
		"from":       from,
		"to":         to,
	}).Info("project status changed")

	return updated, nil
}

func (c *Catalog) SetProjectImage(ctx context.Context, id string, imageKey *string) error {
	return c.stores.Projects.SetProjectImage(ctx, id, utils.TrimmedPtr(imageKey))
}

func (c *Catalog) DeleteProject(ctx context.Context, id string) error {
	return c.stores.Projects.DeleteProject(ctx, id)
}

// CreateNeed adds a line item to a project. The counter always starts at 0.
func (c *Catalog) CreateNeed(ctx context.Context, projectID string, need *types.Need) error {
	if need.Priority == "" {
		need.Priority = types.NeedPriorityMedium
	}
	if err := validateNeed(need); err != nil {
		return err
	}

	if _, err := c.stores.Projects.Project(ctx, projectID); err != nil {
		return err
	}

	need.ID = ""
	need.ProjectID = projectID
	need.QuantityFulfilled = 0

	return c.stores.Needs.CreateNeed(ctx, need)
}

// UpdateNeed changes the target quantity and metadata. The fulfilled counter
// is left untouched.
func (c *Catalog) UpdateNeed(ctx context.Context, id string, need *types.Need) (*types.Need, error) {
	if need.Priority == "" {
		need.Priority = types.NeedPriorityMedium
	}
	if err := validateNeed(need); err != nil {
		return nil, err
	}

	if err := c.stores.Needs.UpdateNeed(ctx, id, need); err != nil {
		return nil, err
	}

	return c.stores.Needs.Need(ctx, id)
}

func (c *Catalog) DeleteNeed(ctx context.Context, id string) error {
	return c.stores.Needs.DeleteNeed(ctx, id)
}

// Categories lists every category with its active project count.
func (c *Catalog) Categories(ctx context.Context) ([]*types.Category, error) {
	categories, err := c.stores.Categories.Categories(ctx)
	if err != nil {
		return nil, err
	}

	counts, err := c.stores.Projects.ActiveCountsByCategory(ctx)
	if err != nil {
		return nil, err
	}

	for _, category := range categories {
		category.ProjectCount = counts[category.ID]
	}

	return categories, nil
}

func (c *Catalog) Category(ctx context.Context, id string) (*types.Category, error) {
	category, err := c.stores.Categories.Category(ctx, id)
	if err != nil {
		return nil, err
	}

	category.ProjectCount, err = c.stores.Projects.CountActiveByCategory(ctx, id)
	if err != nil {
		return nil, err
	}

	return category, nil
}

func (c *Catalog) UpsertCategory(ctx context.Context, category *types.Category) error {
	category.Title = strings.TrimSpace(category.Title)
	category.Slug = strings.TrimSpace(strings.ToLower(category.Slug))

	if category.Title == "" {
		return types.NewValidationError("title", "is required")
	}
	if category.Slug == "" {
		return types.NewValidationError("slug", "is required")
	}
	if category.ID != "" && !utils.ValidID(category.ID) {
		return types.NewValidationError("id", "contains unsupported characters")
	}

	return c.stores.Categories.UpsertCategory(ctx, category)
}

func (c *Catalog) DeleteCategory(ctx context.Context, id string) error {
	return c.stores.Categories.DeleteCategory(ctx, id)
}

func (c *Catalog) Organizations(ctx context.Context) ([]*types.Organization, error) {
	return c.stores.Organizations.Organizations(ctx)
}

func (c *Catalog) Organization(ctx context.Context, id string) (*types.Organization, error) {
	return c.stores.Organizations.Organization(ctx, id)
}

func (c *Catalog) CreateOrganization(ctx context.Context, org *types.Organization) error {
	if err := validateOrganization(org); err != nil {
		return err
	}

	org.ID = ""
	return c.stores.Organizations.CreateOrganization(ctx, org)
}

func (c *Catalog) UpdateOrganization(ctx context.Context, id string, org *types.Organization) (*types.Organization, error) {
	if err := validateOrganization(org); err != nil {
		return nil, err
	}

	if err := c.stores.Organizations.UpdateOrganization(ctx, id, org); err != nil {
		return nil, err
	}

	return c.stores.Organizations.Organization(ctx, id)
}

func (c *Catalog) DeleteOrganization(ctx context.Context, id string) error {
	return c.stores.Organizations.DeleteOrganization(ctx, id)
}

func checkCategory(ctx context.Context, stores Stores, categoryID *string) error {
	if categoryID == nil {
		return nil
	}
	if _, err := stores.Categories.Category(ctx, *categoryID); err != nil {
		return referenceError("categoryId", err)
	}
	return nil
}

// referenceError turns a missing referenced row into ErrInvalidReference and
// passes every other failure through.
func referenceError(field string, err error) error {
	if types.IsNotFound(err) {
		return fmt.Errorf("%w: %s: %w", types.ErrInvalidReference, field, err)
	}
	return err
}

func validateProject(project *types.Project) error {
	project.Title = strings.TrimSpace(project.Title)
	project.Description = utils.TrimmedPtr(project.Description)
	project.Location = utils.TrimmedPtr(project.Location)
	project.Beneficiaries = utils.TrimmedPtr(project.Beneficiaries)

	if project.Title == "" {
		return types.NewValidationError("title", "is required")
	}
	if project.OrganizationID == "" {
		return types.NewValidationError("organizationId", "is required")
	}
	if !project.Urgency.Valid() {
		return types.NewValidationError("urgency", fmt.Sprintf("unknown urgency %q", project.Urgency))
	}
	if project.StartDate != nil && project.EndDate != nil && project.EndDate.Before(*project.StartDate) {
		return types.NewValidationError("endDate", "must not be before startDate")
	}
	if project.EstimatedCostCents != nil && *project.EstimatedCostCents < 0 {
		return types.NewValidationError("estimatedCostCents", "must not be negative")
	}
	return nil
}

func validateNeed(need *types.Need) error {
	need.Name = strings.TrimSpace(need.Name)
	need.Description = utils.TrimmedPtr(need.Description)
	need.CategoryLabel = utils.TrimmedPtr(need.CategoryLabel)

	if need.Name == "" {
		return types.NewValidationError("name", "is required")
	}
	if need.QuantityNeeded <= 0 || need.QuantityNeeded > types.MaxQuantity {
		return types.NewValidationError("quantityNeeded", fmt.Sprintf("must be a positive integer no larger than %d", types.MaxQuantity))
	}
	if !need.Priority.Valid() {
		return types.NewValidationError("priority", fmt.Sprintf("unknown priority %q", need.Priority))
	}
	if need.EstimatedUnitCostCents != nil && *need.EstimatedUnitCostCents < 0 {
		return types.NewValidationError("estimatedUnitCostCents", "must not be negative")
	}
	return nil
}

func validateOrganization(org *types.Organization) error {
	org.Name = strings.TrimSpace(org.Name)
	org.Description = utils.TrimmedPtr(org.Description)
	org.Website = utils.TrimmedPtr(org.Website)
	org.ContactEmail = utils.TrimmedPtr(org.ContactEmail)

	if org.Name == "" {
		return types.NewValidationError("name", "is required")
	}
	if org.ContactEmail != nil && !strings.Contains(*org.ContactEmail, "@") {
		return types.NewValidationError("contactEmail", "is not an email address")
	}
	return nil
}
