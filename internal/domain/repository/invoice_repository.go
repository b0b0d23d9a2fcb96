package repository

import (
	"context"
	"time"

	"github.com/jhoicas/fatoora-api/internal/domain/entity"
)

// SubmissionGuard es el estado de envío leído antes de escribir.
type SubmissionGuard struct {
	Status      entity.SubmissionStatus
	SubmittedAt *time.Time
}

// InvoiceRepository define el puerto de persistencia de facturas para el motor de cumplimiento.
type InvoiceRepository interface {
	// GetByID devuelve la factura con sus líneas y su estado de cumplimiento.
	GetByID(ctx context.Context, id string) (*entity.Invoice, error)
	// UpdateCompliance persiste todos los campos de cumplimiento de la factura.
	UpdateCompliance(ctx context.Context, invoice *entity.Invoice) error
	// UpdateComplianceIf persiste como UpdateCompliance solo si el estado de envío guardado
	// sigue igual a guard. Devuelve domain.ErrConflict si otro proceso lo cambió.
	UpdateComplianceIf(ctx context.Context, invoice *entity.Invoice, guard SubmissionGuard) error
	// UpdateStatus cambia el estado de negocio (p.ej. credited).
	UpdateStatus(ctx context.Context, id, status string) error
	// ListPendingReporting devuelve documentos simplificados creados desde since que siguen
	// pendientes o quedaron en submitted antes de staleBefore, ordenados por tenant, fecha
	// de creación y contador.
	ListPendingReporting(ctx context.Context, since, staleBefore time.Time) ([]*entity.Invoice, error)
	// ListSignedByTenant devuelve las facturas firmadas de un tenant en orden de contador.
	ListSignedByTenant(ctx context.Context, tenantID string) ([]*entity.Invoice, error)
}
