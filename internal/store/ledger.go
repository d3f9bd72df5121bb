package store

import (
	"context"
	"errors"
	"fmt"

	"donationledger/internal/db"
	"donationledger/internal/ledger"
	"donationledger/pkg/types"
)

// NewStores binds every repository to the same connection or transaction.
func NewStores(conn db.DBTX) ledger.Stores {
	return ledger.Stores{
		Projects:      NewProjectRepository(conn),
		Needs:         NewNeedRepository(conn),
		Donations:     NewDonationRepository(conn),
		Donors:        NewDonorRepository(conn),
		Categories:    NewCategoryRepository(conn),
		Organizations: NewOrganizationRepository(conn),
	}
}

type Transactor struct {
	uow db.UnitOfWork
}

func NewTransactor(uow db.UnitOfWork) *Transactor {
	return &Transactor{uow: uow}
}

func (t *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context, stores ledger.Stores) error) error {
	var fnErr error
	err := t.uow.WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		fnErr = fn(ctx, NewStores(tx))
		return fnErr
	})
	if err == nil || fnErr != nil || errors.Is(err, context.Canceled) {
		return err
	}

	// begin or commit failed
	return fmt.Errorf("%w: %w", types.ErrUnavailable, err)
}
