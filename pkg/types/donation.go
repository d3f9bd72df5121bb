package types

import (
	"math"
	"time"
)

// MaxQuantity is the largest quantity or counter the INTEGER columns hold.
const MaxQuantity = math.MaxInt32

type DonationStatus string

const (
	DonationStatusPending   DonationStatus = "pending"
	DonationStatusConfirmed DonationStatus = "confirmed"
	DonationStatusDelivered DonationStatus = "delivered"
	DonationStatusCancelled DonationStatus = "cancelled"
)

func (s DonationStatus) Valid() bool {
	switch s {
	case DonationStatusPending, DonationStatusConfirmed, DonationStatusDelivered, DonationStatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo only allows forward fulfillment steps. Cancelling would
// require a compensating decrement, which has no defined semantics yet.
func (s DonationStatus) CanTransitionTo(next DonationStatus) bool {
	switch s {
	case DonationStatusPending:
		return next == DonationStatusConfirmed
	case DonationStatusConfirmed:
		return next == DonationStatusDelivered
	}
	return false
}

type Donation struct {
	ID               string         `db:"id" json:"id"`
	DonorID          string         `db:"donor_id" json:"donorId"`
	ProjectID        string         `db:"project_id" json:"projectId"`
	NeedID           *string        `db:"need_id" json:"needId,omitempty"`
	Quantity         int            `db:"quantity" json:"quantity"`
	Note             *string        `db:"note" json:"note,omitempty"`
	Status           DonationStatus `db:"status" json:"status"`
	IdempotencyKey   string         `db:"idempotency_key" json:"idempotencyKey"`
	PaymentReference *string        `db:"payment_reference" json:"paymentReference,omitempty"`
	CreatedAt        time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time      `db:"updated_at" json:"updatedAt"`

	// Set when the call returned an earlier donation for the same idempotency key.
	Replayed bool `db:"-" json:"replayed,omitempty"`
}

type RecordDonationInput struct {
	ProjectID      string  `json:"projectId"`
	NeedID         *string `json:"needId,omitempty"`
	Quantity       int     `json:"quantity"`
	Note           *string `json:"note,omitempty"`
	IdempotencyKey string  `json:"idempotencyKey,omitempty"`
}

// Discrepancy is a need whose counter disagrees with its recorded donations.
type Discrepancy struct {
	NeedID            string `db:"need_id" json:"needId"`
	ProjectID         string `db:"project_id" json:"projectId"`
	QuantityFulfilled int    `db:"quantity_fulfilled" json:"quantityFulfilled"`
	DonatedQuantity   int    `db:"donated_quantity" json:"donatedQuantity"`
}

func (d Discrepancy) Drift() int {
	return d.QuantityFulfilled - d.DonatedQuantity
}
