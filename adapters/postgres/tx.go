package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/artpar/relayledger/ports"
)

type txStores struct {
	tx *sql.Tx
}

func (t txStores) Organizations() ports.OrganizationStore {
	return &OrganizationStore{q: t.tx, lockRows: true}
}
func (t txStores) Endpoints() ports.EndpointStore { return &EndpointStore{q: t.tx} }
func (t txStores) Invoices() ports.InvoiceStore   { return &InvoiceStore{q: t.tx} }

// WithinTx runs fn in one transaction, rolling back on error or panic.
func (db *DB) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ports.TxStores) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = fn(ctx, txStores{tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

var _ ports.Transactor = (*DB)(nil)
