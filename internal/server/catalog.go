package server

import (
	"context"
	"errors"
	"net/http"

	"donationledger/internal/ledger"
	"donationledger/pkg/types"
)

type projectResponse struct {
	*types.Project
	ImageURL string         `json:"imageUrl,omitempty"`
	Progress types.Progress `json:"progress"`
}

type needResponse struct {
	*types.Need
	Bucket  types.StatusBucket `json:"bucket"`
	Percent int                `json:"percent"`
}

type categoryResponse struct {
	*types.Category
	ImageURL string `json:"imageUrl,omitempty"`
}

type countResponse struct {
	CategoryID string `json:"categoryId"`
	Count      int    `json:"count"`
}

func (s *Service) projectResponse(project *types.Project) projectResponse {
	resp := projectResponse{
		Project:  project,
		Progress: ledger.ComputeProgress(project.ItemsFulfilled, project.ItemsNeeded),
	}
	if project.ImageKey != nil {
		resp.ImageURL = s.images.PublicURL(*project.ImageKey)
	}
	return resp
}

func needResponseFor(need *types.Need) needResponse {
	return needResponse{
		Need:    need,
		Bucket:  ledger.NeedStatusBucket(need),
		Percent: ledger.ComputeProgress(need.QuantityFulfilled, need.QuantityNeeded).Percent,
	}
}

func (s *Service) handleListProjects(w http.ResponseWriter, r *http.Request) {
	var filter types.ProjectFilter
	if err := decoder.Decode(&filter, r.URL.Query()); err != nil {
		s.writeError(w, r, types.NewValidationError("query", err.Error()))
		return
	}

	if filter.Status != "" && filter.Status != types.ProjectStatusActive && !principalFrom(r.Context()).Admin {
		s.writeError(w, r, types.ErrForbidden)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	projects, err := s.catalog.ListProjects(ctx, filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := make([]projectResponse, 0, len(projects))
	for _, project := range projects {
		resp = append(resp, s.projectResponse(project))
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Service) handleGetProject(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	project, err := s.visibleProject(ctx, r, r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, s.projectResponse(project))
}

// visibleProject loads a project the caller may see. Drafts stay hidden
// until an admin publishes them.
func (s *Service) visibleProject(ctx context.Context, r *http.Request, id string) (*types.Project, error) {
	project, err := s.catalog.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}

	if project.Status == types.ProjectStatusDraft && !principalFrom(r.Context()).Admin {
		return nil, types.ErrProjectNotFound
	}

	return project, nil
}

func (s *Service) handleProjectProgress(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	project, err := s.visibleProject(ctx, r, r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	progress, err := s.projector.ProjectProgress(ctx, project.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, progress)
}

func (s *Service) handleGetNeed(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	need, err := s.catalog.GetNeed(ctx, r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if _, err := s.visibleProject(ctx, r, need.ProjectID); err != nil {
		if errors.Is(err, types.ErrProjectNotFound) {
			err = types.ErrNeedNotFound
		}
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, needResponseFor(need))
}

func (s *Service) categoryResponse(category *types.Category) categoryResponse {
	resp := categoryResponse{Category: category}
	if category.ImageKey != nil {
		resp.ImageURL = s.images.PublicURL(*category.ImageKey)
	}
	return resp
}

func (s *Service) handleListCategories(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	categories, err := s.catalog.Categories(ctx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := make([]categoryResponse, 0, len(categories))
	for _, category := range categories {
		resp = append(resp, s.categoryResponse(category))
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Service) handleGetCategory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	category, err := s.catalog.Category(ctx, r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, s.categoryResponse(category))
}

func (s *Service) handleCategoryProjectCount(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	categoryID := r.PathValue("id")
	count, err := s.projector.CategoryProjectCount(ctx, categoryID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, countResponse{CategoryID: categoryID, Count: count})
}
