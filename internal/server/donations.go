package server

import (
	"net/http"
	"strconv"

	"donationledger/pkg/types"
)

type donationRequest struct {
	NeedID   *string `json:"needId"`
	Quantity int     `json:"quantity"`
	Note     *string `json:"note"`
}

type transitionRequest struct {
	Status string `json:"status"`
}

func (s *Service) handlePostDonation(w http.ResponseWriter, r *http.Request) {
	var req donationRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	input := types.RecordDonationInput{
		ProjectID:      r.PathValue("id"),
		NeedID:         req.NeedID,
		Quantity:       req.Quantity,
		Note:           req.Note,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	donation, err := s.recorder.RecordDonation(ctx, principalFrom(r.Context()), input)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	if donation.Replayed {
		status = http.StatusOK
	}

	s.writeJSON(w, status, donation)
}

func (s *Service) handleListDonations(w http.ResponseWriter, r *http.Request) {
	var limit uint64
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.writeError(w, r, types.NewValidationError("limit", "must be a positive integer"))
			return
		}
		limit = parsed
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	donations, err := s.recorder.DonationsByDonor(ctx, principalFrom(r.Context()), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if donations == nil {
		donations = []*types.Donation{}
	}

	s.writeJSON(w, http.StatusOK, donations)
}

func (s *Service) handleGetDonation(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	donation, err := s.recorder.Donation(ctx, principalFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, donation)
}

func (s *Service) handleTransitionDonation(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	donation, err := s.recorder.TransitionDonation(ctx, r.PathValue("id"), types.DonationStatus(req.Status))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, donation)
}
