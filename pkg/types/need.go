package types

import (
	"time"
)

type NeedPriority string

const (
	NeedPriorityLow    NeedPriority = "low"
	NeedPriorityMedium NeedPriority = "medium"
	NeedPriorityHigh   NeedPriority = "high"
	NeedPriorityUrgent NeedPriority = "urgent"
)

func (p NeedPriority) Valid() bool {
	switch p {
	case NeedPriorityLow, NeedPriorityMedium, NeedPriorityHigh, NeedPriorityUrgent:
		return true
	}
	return false
}

// Need is a line item of a project, stored in project_items.
type Need struct {
	ID                     string       `db:"id" json:"id"`
	ProjectID              string       `db:"project_id" json:"projectId"`
	Name                   string       `db:"name" json:"name"`
	Description            *string      `db:"description" json:"description,omitempty"`
	CategoryLabel          *string      `db:"category_label" json:"categoryLabel,omitempty"`
	QuantityNeeded         int          `db:"quantity_needed" json:"quantityNeeded"`
	QuantityFulfilled      int          `db:"quantity_fulfilled" json:"quantityFulfilled"`
	Priority               NeedPriority `db:"priority" json:"priority"`
	EstimatedUnitCostCents *int64       `db:"estimated_unit_cost_cents" json:"estimatedUnitCostCents,omitempty"`
	CreatedAt              time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt              time.Time    `db:"updated_at" json:"updatedAt"`
}
