package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/fatoora-api/internal/domain"
	"github.com/jhoicas/fatoora-api/internal/domain/entity"
	"github.com/jhoicas/fatoora-api/internal/domain/repository"
)

var _ repository.InvoiceRepository = (*InvoiceRepo)(nil)

// InvoiceRepo implementación de InvoiceRepository (usable con pool o tx).
type InvoiceRepo struct {
	q Querier
}

// NewInvoiceRepository construye el adaptador. Pasar pool o tx (Querier).
func NewInvoiceRepository(q Querier) *InvoiceRepo {
	return &InvoiceRepo{q: q}
}

const invoiceColumns = `
	id, tenant_id, COALESCE(customer_id::text, ''), number, document_type, is_simplified, status, currency,
	issue_date, supply_date, subtotal, discount_total, tax_amount, grand_total,
	original_invoice_id, original_invoice_number, adjustment_reason, buyer,
	compliance_uuid, invoice_counter, previous_invoice_hash, invoice_hash,
	digital_signature, public_key_hash, signed_xml, cleared_xml, qr_code_data, qr_code_image,
	submission_status, clearance_status, reporting_status, zatca_response,
	submitted_at, cleared_at, retry_count, last_error,
	created_at, updated_at`

func scanInvoice(row pgx.Row) (*entity.Invoice, error) {
	var inv entity.Invoice
	var origID, origNumber, reason *string
	var cUUID, prevHash, hash, sig, pkHash, signedXML, clearedXML, qrData, qrImage *string
	var clearance, reporting, response, lastError *string
	var status string
	c := &inv.Compliance
	err := row.Scan(
		&inv.ID, &inv.TenantID, &inv.CustomerID, &inv.Number, &inv.DocumentType, &inv.IsSimplified, &inv.Status, &inv.Currency,
		&inv.IssueDate, &inv.SupplyDate, &inv.Subtotal, &inv.DiscountTotal, &inv.TaxAmount, &inv.GrandTotal,
		&origID, &origNumber, &reason, &inv.Buyer,
		&cUUID, &c.InvoiceCounter, &prevHash, &hash,
		&sig, &pkHash, &signedXML, &clearedXML, &qrData, &qrImage,
		&status, &clearance, &reporting, &response,
		&c.SubmittedAt, &c.ClearedAt, &c.RetryCount, &lastError,
		&inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	inv.OriginalInvoiceID = derefStr(origID)
	inv.OriginalInvoiceNumber = derefStr(origNumber)
	inv.AdjustmentReason = derefStr(reason)
	c.UUID = derefStr(cUUID)
	c.PreviousInvoiceHash = derefStr(prevHash)
	c.InvoiceHash = derefStr(hash)
	c.DigitalSignature = derefStr(sig)
	c.PublicKeyHash = derefStr(pkHash)
	c.SignedXML = derefStr(signedXML)
	c.ClearedXML = derefStr(clearedXML)
	c.QRCodeData = derefStr(qrData)
	c.QRCodeImage = derefStr(qrImage)
	c.SubmissionStatus = entity.SubmissionStatus(status)
	c.ClearanceStatus = derefStr(clearance)
	c.ReportingStatus = derefStr(reporting)
	c.ZatcaResponse = derefStr(response)
	c.LastError = derefStr(lastError)
	return &inv, nil
}

// GetByID obtiene una factura completa (cabecera + líneas) por ID.
func (r *InvoiceRepo) GetByID(ctx context.Context, id string) (*entity.Invoice, error) {
	inv, err := scanInvoice(r.q.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("invoice %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	if err := r.attachLines(ctx, []*entity.Invoice{inv}); err != nil {
		return nil, err
	}
	return inv, nil
}

// UpdateCompliance persiste los artefactos y el estado de cumplimiento (y el estado de negocio).
func (r *InvoiceRepo) UpdateCompliance(ctx context.Context, inv *entity.Invoice) error {
	return r.updateCompliance(ctx, inv, nil)
}

// UpdateComplianceIf persiste solo si submission_status y submitted_at siguen como en guard.
func (r *InvoiceRepo) UpdateComplianceIf(ctx context.Context, inv *entity.Invoice, guard repository.SubmissionGuard) error {
	return r.updateCompliance(ctx, inv, &guard)
}

func (r *InvoiceRepo) updateCompliance(ctx context.Context, inv *entity.Invoice, guard *repository.SubmissionGuard) error {
	c := inv.Compliance
	query := `
		UPDATE invoices
		SET status                = $2,
		    compliance_uuid       = COALESCE($3, compliance_uuid),
		    invoice_counter       = $4,
		    previous_invoice_hash = $5,
		    invoice_hash          = $6,
		    digital_signature     = $7,
		    public_key_hash       = $8,
		    signed_xml            = $9,
		    qr_code_data          = $10,
		    qr_code_image         = $11,
		    submission_status     = $12,
		    clearance_status      = $13,
		    reporting_status      = $14,
		    zatca_response        = $15,
		    submitted_at          = $16,
		    cleared_at            = $17,
		    retry_count           = $18,
		    last_error            = $19,
		    updated_at            = $20,
		    cleared_xml           = $21
		WHERE id = $1`
	args := []any{
		inv.ID, inv.Status,
		nullIfEmpty(c.UUID), c.InvoiceCounter,
		nullIfEmpty(c.PreviousInvoiceHash), nullIfEmpty(c.InvoiceHash),
		nullIfEmpty(c.DigitalSignature), nullIfEmpty(c.PublicKeyHash),
		nullIfEmpty(c.SignedXML), nullIfEmpty(c.QRCodeData), nullIfEmpty(c.QRCodeImage),
		string(c.SubmissionStatus), nullIfEmpty(c.ClearanceStatus), nullIfEmpty(c.ReportingStatus),
		nullIfEmpty(c.ZatcaResponse), c.SubmittedAt, c.ClearedAt, c.RetryCount, nullIfEmpty(c.LastError),
		time.Now().UTC(), nullIfEmpty(c.ClearedXML),
	}
	if guard != nil {
		query += `
		  AND submission_status = $22
		  AND submitted_at IS NOT DISTINCT FROM $23`
		args = append(args, string(guard.Status), guard.SubmittedAt)
	}

	tag, err := r.q.Exec(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: contador o uuid duplicado: %v", domain.ErrChainConflict, err)
		}
		return fmt.Errorf("update invoice compliance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if guard != nil {
			return fmt.Errorf("invoice %s: %w: el estado de envío cambió (esperado %q)", inv.ID, domain.ErrConflict, guard.Status)
		}
		return fmt.Errorf("invoice %s: %w", inv.ID, domain.ErrNotFound)
	}
	return nil
}

// UpdateStatus cambia el estado de negocio.
func (r *InvoiceRepo) UpdateStatus(ctx context.Context, id, status string) error {
	tag, err := r.q.Exec(ctx, `UPDATE invoices SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update invoice status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("invoice %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ListPendingReporting devuelve documentos simplificados sin reportar creados desde since,
// incluidos los que quedaron en submitted antes de staleBefore.
func (r *InvoiceRepo) ListPendingReporting(ctx context.Context, since, staleBefore time.Time) ([]*entity.Invoice, error) {
	query := `SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE is_simplified
		  AND (submission_status IN ('pending', '')
		       OR (submission_status = 'submitted' AND (submitted_at IS NULL OR submitted_at <= $2)))
		  AND status IN ('approved', 'sent')
		  AND created_at >= $1
		ORDER BY tenant_id, created_at, invoice_counter`
	return r.list(ctx, query, since, staleBefore)
}

// ListSignedByTenant devuelve las facturas firmadas de un tenant en orden de contador.
func (r *InvoiceRepo) ListSignedByTenant(ctx context.Context, tenantID string) ([]*entity.Invoice, error) {
	query := `SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE tenant_id = $1 AND signed_xml IS NOT NULL
		ORDER BY invoice_counter`
	return r.list(ctx, query, tenantID)
}

func (r *InvoiceRepo) list(ctx context.Context, query string, args ...any) ([]*entity.Invoice, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()

	var out []*entity.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	if err := r.attachLines(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// attachLines carga las líneas de todas las facturas en una sola consulta.
func (r *InvoiceRepo) attachLines(ctx context.Context, invoices []*entity.Invoice) error {
	if len(invoices) == 0 {
		return nil
	}
	byID := make(map[string]*entity.Invoice, len(invoices))
	ids := make([]string, 0, len(invoices))
	for _, inv := range invoices {
		byID[inv.ID] = inv
		ids = append(ids, inv.ID)
	}
	const query = `
		SELECT id, invoice_id, COALESCE(product_id::text, ''), description, unit_code,
		       quantity, unit_price, discount, tax_category, tax_rate, COALESCE(exemption_reason, '')
		FROM invoice_lines
		WHERE invoice_id = ANY($1)
		ORDER BY invoice_id, line_number`
	rows, err := r.q.Query(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("list invoice lines: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var l entity.InvoiceLine
		if err := rows.Scan(
			&l.ID, &l.InvoiceID, &l.ProductID, &l.Description, &l.UnitCode,
			&l.Quantity, &l.UnitPrice, &l.Discount, &l.TaxCategory, &l.TaxRate, &l.ExemptionReason,
		); err != nil {
			return fmt.Errorf("scan invoice line: %w", err)
		}
		if inv := byID[l.InvoiceID]; inv != nil {
			inv.Lines = append(inv.Lines, l)
		}
	}
	return rows.Err()
}
