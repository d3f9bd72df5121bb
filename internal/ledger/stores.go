// Package ledger holds the donation-fulfillment core: the need catalog, the
// donation recorder, the aggregate projector and the reconciler. Storage is
// reached only through the interfaces below; every method returns the
// entity sentinel from pkg/types when a row is missing and wraps
// infrastructure failures in types.ErrUnavailable.
package ledger

import (
	"context"
	"time"

	"donationledger/pkg/types"
)

type ProjectStore interface {
	Project(ctx context.Context, id string) (*types.Project, error)
	Projects(ctx context.Context, filter types.ProjectFilter) ([]*types.Project, error)
	CreateProject(ctx context.Context, project *types.Project) error
	UpdateProject(ctx context.Context, id string, project *types.Project) error
	// UpdateProjectStatus only applies when the stored status still equals
	// from; otherwise it returns types.ErrConflict.
	UpdateProjectStatus(ctx context.Context, id string, from, to types.ProjectStatus) error
	SetProjectImage(ctx context.Context, id string, imageKey *string) error
	DeleteProject(ctx context.Context, id string) error
	CountActiveByCategory(ctx context.Context, categoryID string) (int, error)
	ActiveCountsByCategory(ctx context.Context) (map[string]int, error)
}

type NeedStore interface {
	Need(ctx context.Context, id string) (*types.Need, error)
	NeedsByProjects(ctx context.Context, projectIDs []string) ([]*types.Need, error)
	CreateNeed(ctx context.Context, need *types.Need) error
	UpdateNeed(ctx context.Context, id string, need *types.Need) error
	DeleteNeed(ctx context.Context, id string) error
	// AdjustFulfilled adds delta to the counter in a single storage-side
	// increment and returns the updated row.
	AdjustFulfilled(ctx context.Context, id string, delta int) (*types.Need, error)
}

type DonationStore interface {
	Donation(ctx context.Context, id string) (*types.Donation, error)
	DonationByIdempotencyKey(ctx context.Context, donorID, key string, since time.Time) (*types.Donation, error)
	DonationsByDonor(ctx context.Context, donorID string, limit uint64) ([]*types.Donation, error)
	CreateDonation(ctx context.Context, donation *types.Donation) error
	UpdateDonationStatus(ctx context.Context, id string, from, to types.DonationStatus, paymentReference *string) (*types.Donation, error)
	// LockIdempotencyKey serialises submissions sharing a key until the
	// surrounding transaction ends.
	LockIdempotencyKey(ctx context.Context, donorID, key string) error
	Discrepancies(ctx context.Context) ([]*types.Discrepancy, error)
}

type DonorStore interface {
	UpsertDonor(ctx context.Context, donor *types.Donor) error
}

type CategoryStore interface {
	Categories(ctx context.Context) ([]*types.Category, error)
	Category(ctx context.Context, id string) (*types.Category, error)
	UpsertCategory(ctx context.Context, category *types.Category) error
	DeleteCategory(ctx context.Context, id string) error
}

type OrganizationStore interface {
	Organization(ctx context.Context, id string) (*types.Organization, error)
	Organizations(ctx context.Context) ([]*types.Organization, error)
	CreateOrganization(ctx context.Context, org *types.Organization) error
	UpdateOrganization(ctx context.Context, id string, org *types.Organization) error
	DeleteOrganization(ctx context.Context, id string) error
}

// Stores bundles the repositories that share one connection or transaction.
type Stores struct {
	Projects      ProjectStore
	Needs         NeedStore
	Donations     DonationStore
	Donors        DonorStore
	Categories    CategoryStore
	Organizations OrganizationStore
}

// Transactor runs fn against Stores bound to a single transaction. If fn
// returns an error nothing it wrote is visible afterwards.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, stores Stores) error) error
}
