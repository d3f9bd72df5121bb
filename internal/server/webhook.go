package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"donationledger/pkg/types"

	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"
)

// Payment intents carry the ledger donation they pay for in this metadata key.
const donationMetadataKey = "donation_id"

func (s *Service) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, r, types.NewValidationError("body", "could not be read"))
		return
	}

	event, err := webhook.ConstructEventWithOptions(
		payload,
		r.Header.Get("Stripe-Signature"),
		s.config.StripeWebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		s.logger.WithError(err).Warn("rejected stripe webhook")
		s.writeError(w, r, types.NewValidationError("Stripe-Signature", "signature verification failed"))
		return
	}

	if event.Type != stripe.EventTypePaymentIntentSucceeded {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		s.writeError(w, r, types.NewValidationError("data", "malformed payment intent"))
		return
	}

	entry := s.logger.WithFields(logrus.Fields{
		"event_id":          event.ID,
		"payment_intent_id": intent.ID,
	})

	donationID := intent.Metadata[donationMetadataKey]
	if donationID == "" {
		entry.Warn("payment intent has no donation reference")
		w.WriteHeader(http.StatusNoContent)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	_, err = s.recorder.ConfirmPayment(ctx, donationID, intent.ID)
	switch {
	case err == nil:
		entry.WithField("donation_id", donationID).Info("donation confirmed by payment")
	case errors.Is(err, types.ErrNotFound), errors.Is(err, types.ErrInvalidTransition):
		// acknowledged so the provider stops retrying an event we cannot apply
		entry.WithError(err).WithField("donation_id", donationID).Warn("payment confirmation not applied")
	default:
		s.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
