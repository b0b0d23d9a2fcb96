package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/fatoora-api/internal/domain"
	"github.com/jhoicas/fatoora-api/internal/domain/entity"
	"github.com/jhoicas/fatoora-api/internal/domain/repository"
)

var _ repository.TenantRepository = (*TenantRepo)(nil)

// TenantRepo implementación de TenantRepository (usable con pool o tx).
type TenantRepo struct {
	q Querier
}

// NewTenantRepository construye el adaptador. Pasar pool o tx (Querier).
func NewTenantRepository(q Querier) *TenantRepo {
	return &TenantRepo{q: q}
}

// GetByID obtiene el tenant con sus credenciales y la cola de la cadena.
func (r *TenantRepo) GetByID(ctx context.Context, id string) (*entity.Tenant, error) {
	const query = `
		SELECT id, name, status,
		       vat_number, other_id, other_id_scheme, street, building_number,
		       district, city, postal_zone, country_code,
		       private_key, certificate, production_submission_id,
		       last_invoice_hash, invoice_counter, is_onboarded,
		       created_at, updated_at
		FROM tenants WHERE id = $1`
	var t entity.Tenant
	var privateKey, cert, submissionID *string
	s := &t.Seller
	err := r.q.QueryRow(ctx, query, id).Scan(
		&t.ID, &t.Name, &t.Status,
		&s.VATNumber, &s.OtherID, &s.OtherIDScheme, &s.Street, &s.BuildingNumber,
		&s.District, &s.City, &s.PostalZone, &s.CountryCode,
		&privateKey, &cert, &submissionID,
		&t.Compliance.LastInvoiceHash, &t.Compliance.InvoiceCounter, &t.Compliance.IsOnboarded,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("tenant %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	s.Name = t.Name
	t.Compliance.PrivateKey = derefStr(privateKey)
	t.Compliance.Certificate = derefStr(cert)
	t.Compliance.ProductionSubmissionID = derefStr(submissionID)
	return &t, nil
}

// AdvanceChain mueve la cola con una actualización condicional sobre el estado leído.
func (r *TenantRepo) AdvanceChain(ctx context.Context, adv repository.ChainAdvance) error {
	const query = `
		UPDATE tenants
		SET last_invoice_hash = $2,
		    invoice_counter   = $3,
		    updated_at        = NOW()
		WHERE id = $1
		  AND last_invoice_hash = $4
		  AND invoice_counter   = $5`
	tag, err := r.q.Exec(ctx, query, adv.TenantID, adv.NewHash, adv.NewCounter, adv.ExpectedHash, adv.ExpectedCounter)
	if err != nil {
		return fmt.Errorf("advance chain: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("tenant %s: %w", adv.TenantID, domain.ErrChainConflict)
	}
	return nil
}

// EnsureChainTail fija la cola solo hacia adelante.
func (r *TenantRepo) EnsureChainTail(ctx context.Context, tenantID, hash string, counter int64) error {
	const query = `
		UPDATE tenants
		SET last_invoice_hash = $2,
		    invoice_counter   = $3,
		    updated_at        = NOW()
		WHERE id = $1 AND invoice_counter < $3`
	if _, err := r.q.Exec(ctx, query, tenantID, hash, counter); err != nil {
		return fmt.Errorf("ensure chain tail: %w", err)
	}
	return nil
}
