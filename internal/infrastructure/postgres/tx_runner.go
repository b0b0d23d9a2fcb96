package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jhoicas/fatoora-api/internal/application/compliance"
	"github.com/jhoicas/fatoora-api/internal/domain/repository"
)

var _ compliance.ComplianceTxRunner = (*TxRunner)(nil)

// TxRunner ejecuta callbacks dentro de una transacción PostgreSQL.
type TxRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner construye el runner con el pool.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// RunCompliance inicia una transacción, ejecuta fn con repos atados a la tx y hace Commit o Rollback.
// El avance de la cola del tenant y los artefactos de la factura se confirman juntos.
func (r *TxRunner) RunCompliance(ctx context.Context, fn func(
	invoiceRepo repository.InvoiceRepository,
	tenantRepo repository.TenantRepository,
) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(NewInvoiceRepository(tx), NewTenantRepository(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
