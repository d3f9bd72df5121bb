// Package ledgertest provides an in-memory, transactional implementation of
// the ledger stores with fault injection for tests.
package ledgertest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"donationledger/internal/ledger"
	"donationledger/internal/utils"
	"donationledger/pkg/types"
)

// Faults makes the matching store call fail with the given error. Set them
// before the code under test runs.
type Faults struct {
	AdjustFulfilled error
	CreateDonation  error
	Discrepancies   error
}

type state struct {
	projects      map[string]types.Project
	needs         map[string]types.Need
	donations     map[string]types.Donation
	donors        map[string]types.Donor
	categories    map[string]types.Category
	organizations map[string]types.Organization
}

func newState() *state {
	return &state{
		projects:      make(map[string]types.Project),
		needs:         make(map[string]types.Need),
		donations:     make(map[string]types.Donation),
		donors:        make(map[string]types.Donor),
		categories:    make(map[string]types.Category),
		organizations: make(map[string]types.Organization),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.projects {
		c.projects[k] = v
	}
	for k, v := range s.needs {
		c.needs[k] = v
	}
	for k, v := range s.donations {
		c.donations[k] = v
	}
	for k, v := range s.donors {
		c.donors[k] = v
	}
	for k, v := range s.categories {
		c.categories[k] = v
	}
	for k, v := range s.organizations {
		c.organizations[k] = v
	}
	return c
}

// Memory serialises transactions behind one lock. A transaction works on a
// copy of the data that replaces the committed copy only on success.
type Memory struct {
	Faults Faults

	mu    sync.Mutex
	data  *state
	clock time.Time
	ticks int64
	txs   int
}

func NewMemory() *Memory {
	return &Memory{
		data:  newState(),
		clock: time.Now().UTC(),
	}
}

// Stores returns stores that act outside any transaction.
func (m *Memory) Stores() ledger.Stores {
	return storesFor(&view{m: m})
}

// Commits reports how many transactions committed.
func (m *Memory) Commits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.txs
}

func (m *Memory) WithinTx(ctx context.Context, fn func(ctx context.Context, stores ledger.Stores) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	working := m.data.clone()
	if err := fn(ctx, storesFor(&view{m: m, tx: working})); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	m.data = working
	m.txs++
	return nil
}

// now hands out strictly increasing timestamps so ordering by creation time
// is deterministic. Callers hold m.mu.
func (m *Memory) now() time.Time {
	m.ticks++
	return m.clock.Add(time.Duration(m.ticks) * time.Millisecond)
}

func storesFor(v *view) ledger.Stores {
	return ledger.Stores{
		Projects:      projectStore{v},
		Needs:         needStore{v},
		Donations:     donationStore{v},
		Donors:        donorStore{v},
		Categories:    categoryStore{v},
		Organizations: organizationStore{v},
	}
}

type view struct {
	m  *Memory
	tx *state
}

func (v *view) do(ctx context.Context, fn func(s *state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if v.tx != nil {
		return fn(v.tx)
	}

	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	return fn(v.m.data)
}

type projectStore struct{ v *view }

func (p projectStore) Project(ctx context.Context, id string) (*types.Project, error) {
	var out *types.Project
	err := p.v.do(ctx, func(s *state) error {
		project, ok := s.projects[id]
		if !ok {
			return types.ErrProjectNotFound
		}
		out = &project
		return nil
	})
	return out, err
}

func (p projectStore) Projects(ctx context.Context, filter types.ProjectFilter) ([]*types.Project, error) {
	out := make([]*types.Project, 0)
	err := p.v.do(ctx, func(s *state) error {
		for _, project := range s.projects {
			if filter.Status != "" && filter.Status != types.ProjectStatusAll && project.Status != filter.Status {
				continue
			}
			if filter.CategoryID != "" && utils.PtrString(project.CategoryID) != filter.CategoryID {
				continue
			}
			out = append(out, &project)
		}
		return nil
	})

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && uint64(len(out)) > filter.Limit {
		out = out[:filter.Limit]
	}

	return out, err
}

func (p projectStore) CreateProject(ctx context.Context, project *types.Project) error {
	return p.v.do(ctx, func(s *state) error {
		if _, ok := s.organizations[project.OrganizationID]; !ok {
			return fmt.Errorf("failed to create project: %w", types.ErrInvalidReference)
		}
		if project.CategoryID != nil {
			if _, ok := s.categories[*project.CategoryID]; !ok {
				return fmt.Errorf("failed to create project: %w", types.ErrInvalidReference)
			}
		}
		if project.ID == "" {
			project.ID = utils.NanoID()
		}
		if _, ok := s.projects[project.ID]; ok {
			return fmt.Errorf("failed to create project: %w", types.ErrConflict)
		}

		now := p.v.m.now()
		project.CreatedAt = now
		project.UpdatedAt = now
		stored := *project
		stored.Needs = nil
		s.projects[project.ID] = stored
		return nil
	})
}

func (p projectStore) UpdateProject(ctx context.Context, id string, project *types.Project) error {
	return p.v.do(ctx, func(s *state) error {
		current, ok := s.projects[id]
		if !ok {
			return types.ErrProjectNotFound
		}

		project.ID = id
		project.UpdatedAt = p.v.m.now()

		updated := *project
		updated.Status = current.Status
		updated.ImageKey = current.ImageKey
		updated.CreatedAt = current.CreatedAt
		updated.Needs = nil
		s.projects[id] = updated
		return nil
	})
}

func (p projectStore) UpdateProjectStatus(ctx context.Context, id string, from, to types.ProjectStatus) error {
	return p.v.do(ctx, func(s *state) error {
		project, ok := s.projects[id]
		if !ok || project.Status != from {
			return fmt.Errorf("project %s is no longer %s: %w", id, from, types.ErrConflict)
		}
		project.Status = to
		project.UpdatedAt = p.v.m.now()
		s.projects[id] = project
		return nil
	})
}

func (p projectStore) SetProjectImage(ctx context.Context, id string, imageKey *string) error {
	return p.v.do(ctx, func(s *state) error {
		project, ok := s.projects[id]
		if !ok {
			return types.ErrProjectNotFound
		}
		project.ImageKey = imageKey
		project.UpdatedAt = p.v.m.now()
		s.projects[id] = project
		return nil
	})
}

func (p projectStore) DeleteProject(ctx context.Context, id string) error {
	return p.v.do(ctx, func(s *state) error {
		if _, ok := s.projects[id]; !ok {
			return types.ErrProjectNotFound
		}
		deleteProject(s, id)
		return nil
	})
}

func deleteProject(s *state, id string) {
	delete(s.projects, id)
	for needID, need := range s.needs {
		if need.ProjectID == id {
			delete(s.needs, needID)
		}
	}
	for donationID, donation := range s.donations {
		if donation.ProjectID == id {
			delete(s.donations, donationID)
		}
	}
}

func (p projectStore) CountActiveByCategory(ctx context.Context, categoryID string) (int, error) {
	var count int
	err := p.v.do(ctx, func(s *state) error {
		for _, project := range s.projects {
			if project.Status == types.ProjectStatusActive && utils.PtrString(project.CategoryID) == categoryID {
				count++
			}
		}
		return nil
	})
	return count, err
}

func (p projectStore) ActiveCountsByCategory(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int)
	err := p.v.do(ctx, func(s *state) error {
		for _, project := range s.projects {
			if project.Status == types.ProjectStatusActive && project.CategoryID != nil {
				counts[*project.CategoryID]++
			}
		}
		return nil
	})
	return counts, err
}

type needStore struct{ v *view }

func (n needStore) Need(ctx context.Context, id string) (*types.Need, error) {
	var out *types.Need
	err := n.v.do(ctx, func(s *state) error {
		need, ok := s.needs[id]
		if !ok {
			return types.ErrNeedNotFound
		}
		out = &need
		return nil
	})
	return out, err
}

func (n needStore) NeedsByProjects(ctx context.Context, projectIDs []string) ([]*types.Need, error) {
	wanted := make(map[string]bool, len(projectIDs))
	for _, id := range projectIDs {
		wanted[id] = true
	}

	out := make([]*types.Need, 0)
	err := n.v.do(ctx, func(s *state) error {
		for _, need := range s.needs {
			if wanted[need.ProjectID] {
				out = append(out, &need)
			}
		}
		return nil
	})

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})

	return out, err
}

func (n needStore) CreateNeed(ctx context.Context, need *types.Need) error {
	return n.v.do(ctx, func(s *state) error {
		if _, ok := s.projects[need.ProjectID]; !ok {
			return fmt.Errorf("failed to create need: %w", types.ErrInvalidReference)
		}
		if need.QuantityNeeded <= 0 || need.QuantityFulfilled < 0 {
			return fmt.Errorf("failed to create need: %w", types.ErrValidation)
		}
		if need.ID == "" {
			need.ID = utils.NanoID()
		}

		now := n.v.m.now()
		need.CreatedAt = now
		need.UpdatedAt = now
		s.needs[need.ID] = *need
		return nil
	})
}

func (n needStore) UpdateNeed(ctx context.Context, id string, need *types.Need) error {
	return n.v.do(ctx, func(s *state) error {
		current, ok := s.needs[id]
		if !ok {
			return types.ErrNeedNotFound
		}
		if need.QuantityNeeded <= 0 {
			return fmt.Errorf("failed to update need: %w", types.ErrValidation)
		}

		need.ID = id
		need.UpdatedAt = n.v.m.now()

		updated := *need
		updated.ProjectID = current.ProjectID
		updated.QuantityFulfilled = current.QuantityFulfilled
		updated.CreatedAt = current.CreatedAt
		s.needs[id] = updated
		return nil
	})
}

func (n needStore) DeleteNeed(ctx context.Context, id string) error {
	return n.v.do(ctx, func(s *state) error {
		if _, ok := s.needs[id]; !ok {
			return types.ErrNeedNotFound
		}
		delete(s.needs, id)
		for donationID, donation := range s.donations {
			if donation.NeedID != nil && *donation.NeedID == id {
				delete(s.donations, donationID)
			}
		}
		return nil
	})
}

func (n needStore) AdjustFulfilled(ctx context.Context, id string, delta int) (*types.Need, error) {
	var out *types.Need
	err := n.v.do(ctx, func(s *state) error {
		if n.v.m.Faults.AdjustFulfilled != nil {
			return n.v.m.Faults.AdjustFulfilled
		}

		need, ok := s.needs[id]
		if !ok {
			return types.ErrNeedNotFound
		}
		if need.QuantityFulfilled > types.MaxQuantity-delta {
			return fmt.Errorf("failed to adjust fulfilled quantity: %w: counter out of range", types.ErrValidation)
		}
		need.QuantityFulfilled += delta
		need.UpdatedAt = n.v.m.now()
		s.needs[id] = need
		out = &need
		return nil
	})
	return out, err
}

type donationStore struct{ v *view }

func (d donationStore) Donation(ctx context.Context, id string) (*types.Donation, error) {
	var out *types.Donation
	err := d.v.do(ctx, func(s *state) error {
		donation, ok := s.donations[id]
		if !ok {
			return types.ErrDonationNotFound
		}
		out = &donation
		return nil
	})
	return out, err
}

func (d donationStore) DonationByIdempotencyKey(ctx context.Context, donorID, key string, since time.Time) (*types.Donation, error) {
	var out *types.Donation
	err := d.v.do(ctx, func(s *state) error {
		for _, donation := range s.donations {
			if donation.DonorID != donorID || donation.IdempotencyKey != key || donation.CreatedAt.Before(since) {
				continue
			}
			if out == nil || donation.CreatedAt.After(out.CreatedAt) {
				out = &donation
			}
		}
		if out == nil {
			return types.ErrDonationNotFound
		}
		return nil
	})
	return out, err
}

func (d donationStore) DonationsByDonor(ctx context.Context, donorID string, limit uint64) ([]*types.Donation, error) {
	out := make([]*types.Donation, 0)
	err := d.v.do(ctx, func(s *state) error {
		for _, donation := range s.donations {
			if donation.DonorID == donorID {
				out = append(out, &donation)
			}
		}
		return nil
	})

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && uint64(len(out)) > limit {
		out = out[:limit]
	}

	return out, err
}

func (d donationStore) CreateDonation(ctx context.Context, donation *types.Donation) error {
	return d.v.do(ctx, func(s *state) error {
		if d.v.m.Faults.CreateDonation != nil {
			return d.v.m.Faults.CreateDonation
		}
		if donation.Quantity <= 0 {
			return fmt.Errorf("failed to create donation: %w", types.ErrValidation)
		}
		if _, ok := s.donors[donation.DonorID]; !ok {
			return fmt.Errorf("failed to create donation: donor: %w", types.ErrInvalidReference)
		}
		if _, ok := s.projects[donation.ProjectID]; !ok {
			return fmt.Errorf("failed to create donation: project: %w", types.ErrInvalidReference)
		}
		if donation.NeedID != nil {
			need, ok := s.needs[*donation.NeedID]
			if !ok || need.ProjectID != donation.ProjectID {
				return fmt.Errorf("failed to create donation: need: %w", types.ErrInvalidReference)
			}
		}
		if donation.ID == "" {
			donation.ID = utils.NanoID()
		}

		now := d.v.m.now()
		donation.CreatedAt = now
		donation.UpdatedAt = now
		s.donations[donation.ID] = *donation
		return nil
	})
}

func (d donationStore) UpdateDonationStatus(ctx context.Context, id string, from, to types.DonationStatus, paymentReference *string) (*types.Donation, error) {
	var out *types.Donation
	err := d.v.do(ctx, func(s *state) error {
		donation, ok := s.donations[id]
		if !ok || donation.Status != from {
			return fmt.Errorf("donation %s is no longer %s: %w", id, from, types.ErrConflict)
		}
		donation.Status = to
		if paymentReference != nil {
			donation.PaymentReference = utils.StringPtr(*paymentReference)
		}
		donation.UpdatedAt = d.v.m.now()
		s.donations[id] = donation
		out = &donation
		return nil
	})
	return out, err
}

// LockIdempotencyKey has nothing to do: transactions are already serialised.
func (d donationStore) LockIdempotencyKey(ctx context.Context, donorID, key string) error {
	return ctx.Err()
}

func (d donationStore) Discrepancies(ctx context.Context) ([]*types.Discrepancy, error) {
	out := make([]*types.Discrepancy, 0)
	err := d.v.do(ctx, func(s *state) error {
		if d.v.m.Faults.Discrepancies != nil {
			return d.v.m.Faults.Discrepancies
		}

		donated := make(map[string]int)
		for _, donation := range s.donations {
			if donation.NeedID == nil || donation.Status == types.DonationStatusCancelled {
				continue
			}
			donated[*donation.NeedID] += donation.Quantity
		}

		for _, need := range s.needs {
			if need.QuantityFulfilled != donated[need.ID] {
				out = append(out, &types.Discrepancy{
					NeedID:            need.ID,
					ProjectID:         need.ProjectID,
					QuantityFulfilled: need.QuantityFulfilled,
					DonatedQuantity:   donated[need.ID],
				})
			}
		}
		return nil
	})

	sort.Slice(out, func(i, j int) bool {
		if out[i].ProjectID != out[j].ProjectID {
			return out[i].ProjectID < out[j].ProjectID
		}
		return out[i].NeedID < out[j].NeedID
	})

	return out, err
}

type donorStore struct{ v *view }

func (d donorStore) UpsertDonor(ctx context.Context, donor *types.Donor) error {
	return d.v.do(ctx, func(s *state) error {
		now := d.v.m.now()
		current, ok := s.donors[donor.ID]
		if !ok {
			current = types.Donor{ID: donor.ID, CreatedAt: now}
		}
		if email := utils.TrimmedPtr(donor.Email); email != nil {
			current.Email = email
		}
		current.UpdatedAt = now
		s.donors[donor.ID] = current
		return nil
	})
}

type categoryStore struct{ v *view }

func (c categoryStore) Categories(ctx context.Context) ([]*types.Category, error) {
	out := make([]*types.Category, 0)
	err := c.v.do(ctx, func(s *state) error {
		for _, category := range s.categories {
			out = append(out, &category)
		}
		return nil
	})

	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayOrder != out[j].DisplayOrder {
			return out[i].DisplayOrder < out[j].DisplayOrder
		}
		return out[i].Title < out[j].Title
	})

	return out, err
}

func (c categoryStore) Category(ctx context.Context, id string) (*types.Category, error) {
	var out *types.Category
	err := c.v.do(ctx, func(s *state) error {
		category, ok := s.categories[id]
		if !ok {
			return types.ErrCategoryNotFound
		}
		out = &category
		return nil
	})
	return out, err
}

func (c categoryStore) UpsertCategory(ctx context.Context, category *types.Category) error {
	return c.v.do(ctx, func(s *state) error {
		if category.ID == "" {
			category.ID = utils.NanoID()
		}
		for id, existing := range s.categories {
			if id != category.ID && existing.Slug == category.Slug {
				return fmt.Errorf("failed to upsert category: %w", types.ErrConflict)
			}
		}

		now := c.v.m.now()
		if existing, ok := s.categories[category.ID]; ok {
			category.CreatedAt = existing.CreatedAt
		} else if category.CreatedAt.IsZero() {
			category.CreatedAt = now
		}
		category.UpdatedAt = now

		stored := *category
		stored.ProjectCount = 0
		s.categories[category.ID] = stored
		return nil
	})
}

func (c categoryStore) DeleteCategory(ctx context.Context, id string) error {
	return c.v.do(ctx, func(s *state) error {
		if _, ok := s.categories[id]; !ok {
			return types.ErrCategoryNotFound
		}
		delete(s.categories, id)
		for projectID, project := range s.projects {
			if project.CategoryID != nil && *project.CategoryID == id {
				project.CategoryID = nil
				s.projects[projectID] = project
			}
		}
		return nil
	})
}

type organizationStore struct{ v *view }

func (o organizationStore) Organization(ctx context.Context, id string) (*types.Organization, error) {
	var out *types.Organization
	err := o.v.do(ctx, func(s *state) error {
		org, ok := s.organizations[id]
		if !ok {
			return types.ErrOrganizationNotFound
		}
		out = &org
		return nil
	})
	return out, err
}

func (o organizationStore) Organizations(ctx context.Context) ([]*types.Organization, error) {
	out := make([]*types.Organization, 0)
	err := o.v.do(ctx, func(s *state) error {
		for _, org := range s.organizations {
			out = append(out, &org)
		}
		return nil
	})

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})

	return out, err
}

func (o organizationStore) CreateOrganization(ctx context.Context, org *types.Organization) error {
	return o.v.do(ctx, func(s *state) error {
		if org.ID == "" {
			org.ID = utils.NanoID()
		}
		if _, ok := s.organizations[org.ID]; ok {
			return fmt.Errorf("failed to create organization: %w", types.ErrConflict)
		}

		now := o.v.m.now()
		org.CreatedAt = now
		org.UpdatedAt = now
		s.organizations[org.ID] = *org
		return nil
	})
}

func (o organizationStore) UpdateOrganization(ctx context.Context, id string, org *types.Organization) error {
	return o.v.do(ctx, func(s *state) error {
		current, ok := s.organizations[id]
		if !ok {
			return types.ErrOrganizationNotFound
		}

		org.ID = id
		org.CreatedAt = current.CreatedAt
		org.UpdatedAt = o.v.m.now()
		s.organizations[id] = *org
		return nil
	})
}

func (o organizationStore) DeleteOrganization(ctx context.Context, id string) error {
	return o.v.do(ctx, func(s *state) error {
		if _, ok := s.organizations[id]; !ok {
			return types.ErrOrganizationNotFound
		}
		delete(s.organizations, id)
		for projectID, project := range s.projects {
			if project.OrganizationID == id {
				deleteProject(s, projectID)
			}
		}
		return nil
	})
}

var _ ledger.Transactor = (*Memory)(nil)
