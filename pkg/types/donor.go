package types

import "time"

type Donor struct {
	ID        string    `db:"id" json:"id"`
	Email     *string   `db:"email" json:"email,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Principal is the caller identity handed to the ledger by the transport
// layer. The ledger never reads session state on its own.
type Principal struct {
	ID            string
	Email         string
	Authenticated bool
	Admin         bool
}

func (p Principal) IsAuthenticated() bool {
	return p.Authenticated && p.ID != ""
}
