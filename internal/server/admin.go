package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"donationledger/internal/storage"
	"donationledger/pkg/types"
)

// multipart framing on top of the image itself
const imageFormOverhead = 1 << 16

type reconcileResponse struct {
	Discrepancies []*types.Discrepancy `json:"discrepancies"`
}

func (s *Service) handleListOrganizations(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	orgs, err := s.catalog.Organizations(ctx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if orgs == nil {
		orgs = []*types.Organization{}
	}

	s.writeJSON(w, http.StatusOK, orgs)
}

func (s *Service) handleGetOrganization(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	org, err := s.catalog.Organization(ctx, r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, org)
}

func (s *Service) handleCreateOrganization(w http.ResponseWriter, r *http.Request) {
	var org types.Organization
	if err := decodeJSON(r, &org); err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	if err := s.catalog.CreateOrganization(ctx, &org); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, org)
}

func (s *Service) handleUpdateOrganization(w http.ResponseWriter, r *http.Request) {
	var org types.Organization
	if err := decodeJSON(r, &org); err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	updated, err := s.catalog.UpdateOrganization(ctx, r.PathValue("id"), &org)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, updated)
}

func (s *Service) handleDeleteOrganization(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	if err := s.catalog.DeleteOrganization(ctx, r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var project types.Project
	if err := decodeJSON(r, &project); err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	if err := s.catalog.CreateProject(ctx, &project); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, s.projectResponse(&project))
}

func (s *Service) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	var project types.Project
	if err := decodeJSON(r, &project); err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	updated, err := s.catalog.UpdateProject(ctx, r.PathValue("id"), &project)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, s.projectResponse(updated))
}

func (s *Service) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	id := r.PathValue("id")
	project, err := s.catalog.GetProject(ctx, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.catalog.DeleteProject(ctx, id); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.dropImage(ctx, project.ImageKey)

	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleTransitionProject(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	project, err := s.catalog.TransitionProject(ctx, r.PathValue("id"), types.ProjectStatus(req.Status))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, s.projectResponse(project))
}

// handlePutProjectImage stores the "image" field of a multipart upload and
// points the project at it. The previous image is removed afterwards.
func (s *Service) handlePutProjectImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, storage.MaxImageBytes+imageFormOverhead)

	file, _, err := r.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, r, types.NewValidationError("image", fmt.Sprintf("must be at most %d bytes", storage.MaxImageBytes)))
			return
		}
		s.writeError(w, r, types.NewValidationError("image", "is required"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, r, types.NewValidationError("image", "could not be read"))
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	id := r.PathValue("id")
	project, err := s.catalog.GetProject(ctx, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	key, err := s.images.Upload(ctx, "projects/"+id, data)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.catalog.SetProjectImage(ctx, id, &key); err != nil {
		s.dropImage(ctx, &key)
		s.writeError(w, r, err)
		return
	}
	s.dropImage(ctx, project.ImageKey)

	project.ImageKey = &key
	s.writeJSON(w, http.StatusOK, s.projectResponse(project))
}

func (s *Service) handleDeleteProjectImage(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	id := r.PathValue("id")
	project, err := s.catalog.GetProject(ctx, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.catalog.SetProjectImage(ctx, id, nil); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.dropImage(ctx, project.ImageKey)

	w.WriteHeader(http.StatusNoContent)
}

// dropImage removes an object that is no longer referenced. A failure leaves
// an orphaned object behind, which is logged but not surfaced.
func (s *Service) dropImage(ctx context.Context, key *string) {
	if key == nil || *key == "" {
		return
	}
	if err := s.images.Delete(ctx, *key); err != nil {
		s.logger.WithError(err).WithField("image_key", *key).Warn("failed to delete image")
	}
}

func (s *Service) handleCreateNeed(w http.ResponseWriter, r *http.Request) {
	var need types.Need
	if err := decodeJSON(r, &need); err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	if err := s.catalog.CreateNeed(ctx, r.PathValue("id"), &need); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, needResponseFor(&need))
}

func (s *Service) handleUpdateNeed(w http.ResponseWriter, r *http.Request) {
	var need types.Need
	if err := decodeJSON(r, &need); err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	updated, err := s.catalog.UpdateNeed(ctx, r.PathValue("id"), &need)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, needResponseFor(updated))
}

func (s *Service) handleDeleteNeed(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	if err := s.catalog.DeleteNeed(ctx, r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handlePutCategory(w http.ResponseWriter, r *http.Request) {
	var category types.Category
	if err := decodeJSON(r, &category); err != nil {
		s.writeError(w, r, err)
		return
	}
	category.ID = r.PathValue("id")

	ctx, cancel := s.requestContext(r)
	defer cancel()

	if err := s.catalog.UpsertCategory(ctx, &category); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, s.categoryResponse(&category))
}

func (s *Service) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	if err := s.catalog.DeleteCategory(ctx, r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleReconcile(w http.ResponseWriter, r *http.Request) {
	// a full scan can outlast the per-request storage budget
	discrepancies, err := s.reconciler.Reconcile(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if discrepancies == nil {
		discrepancies = []*types.Discrepancy{}
	}

	s.writeJSON(w, http.StatusOK, reconcileResponse{Discrepancies: discrepancies})
}
