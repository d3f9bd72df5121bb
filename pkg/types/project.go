package types

import (
	"time"
)

type ProjectStatus string

const (
	ProjectStatusDraft     ProjectStatus = "draft"
	ProjectStatusActive    ProjectStatus = "active"
	ProjectStatusPaused    ProjectStatus = "paused"
	ProjectStatusCompleted ProjectStatus = "completed"

	// ProjectStatusAll is only meaningful as a list filter.
	ProjectStatusAll ProjectStatus = "all"
)

func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectStatusDraft, ProjectStatusActive, ProjectStatusPaused, ProjectStatusCompleted:
		return true
	}
	return false
}

// CanTransitionTo reports whether an admin may move a project from s to next.
func (s ProjectStatus) CanTransitionTo(next ProjectStatus) bool {
	switch s {
	case ProjectStatusDraft:
		return next == ProjectStatusActive
	case ProjectStatusActive:
		return next == ProjectStatusPaused || next == ProjectStatusCompleted
	case ProjectStatusPaused:
		return next == ProjectStatusActive || next == ProjectStatusCompleted
	}
	return false
}

type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

func (u Urgency) Valid() bool {
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical:
		return true
	}
	return false
}

type Project struct {
	ID                 string        `db:"id" json:"id"`
	OrganizationID     string        `db:"organization_id" json:"organizationId"`
	CategoryID         *string       `db:"category_id" json:"categoryId,omitempty"`
	Title              string        `db:"title" json:"title"`
	Description        *string       `db:"description" json:"description,omitempty"`
	Status             ProjectStatus `db:"status" json:"status"`
	Urgency            Urgency       `db:"urgency" json:"urgency"`
	StartDate          *time.Time    `db:"start_date" json:"startDate,omitempty"`
	EndDate            *time.Time    `db:"end_date" json:"endDate,omitempty"`
	Location           *string       `db:"location" json:"location,omitempty"`
	Beneficiaries      *string       `db:"beneficiaries" json:"beneficiaries,omitempty"`
	EstimatedCostCents *int64        `db:"estimated_cost_cents" json:"estimatedCostCents,omitempty"`
	ImageKey           *string       `db:"image_key" json:"imageKey,omitempty"`
	CreatedAt          time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt          time.Time     `db:"updated_at" json:"updatedAt"`

	// Rollups are summed from Needs on every read and never stored.
	ItemsNeeded    int     `db:"-" json:"itemsNeeded"`
	ItemsFulfilled int     `db:"-" json:"itemsFulfilled"`
	Needs          []*Need `db:"-" json:"needs,omitempty"`
}

type ProjectFilter struct {
	CategoryID string        `form:"category"`
	Status     ProjectStatus `form:"status"`
	Limit      uint64        `form:"limit"`
}

const (
	DefaultProjectLimit uint64 = 50
	MaxProjectLimit     uint64 = 200
)

// Normalize applies the public listing defaults: active projects only,
// newest first, bounded page size.
func (f ProjectFilter) Normalize() ProjectFilter {
	if f.Status == "" {
		f.Status = ProjectStatusActive
	}
	if f.Limit == 0 {
		f.Limit = DefaultProjectLimit
	}
	if f.Limit > MaxProjectLimit {
		f.Limit = MaxProjectLimit
	}
	return f
}
