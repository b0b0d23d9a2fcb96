package compliance

import (
	"context"
	"time"

	"github.com/jhoicas/fatoora-api/internal/domain/entity"
	"github.com/jhoicas/fatoora-api/internal/domain/repository"
	"github.com/jhoicas/fatoora-api/internal/domain/submission"
	infrazatca "github.com/jhoicas/fatoora-api/internal/infrastructure/zatca"
)

// ComplianceTxRunner ejecuta una función dentro de una transacción que incluye
// los repos de facturas y tenants (avance de cadena + artefactos de la factura).
type ComplianceTxRunner interface {
	RunCompliance(ctx context.Context, fn func(
		invoiceRepo repository.InvoiceRepository,
		tenantRepo repository.TenantRepository,
	) error) error
}

// Submitter es el puerto de salida hacia el API de cumplimiento.
// La implementación concreta es infrastructure/zatca.Client; para tests se inyecta un fake.
type Submitter interface {
	Clear(ctx context.Context, req infrazatca.SubmitRequest) submission.Result
	Report(ctx context.Context, req infrazatca.SubmitRequest) submission.Result
}

// JobLocker garantiza un único ejecutor del job entre instancias.
type JobLocker interface {
	// TryLock devuelve ok=false si otro proceso tiene el lock.
	TryLock(ctx context.Context, key string, ttl time.Duration) (lease JobLease, ok bool, err error)
}

// JobLease es un lock tomado por TryLock.
type JobLease interface {
	// Extend renueva el ttl. Devuelve ErrLeaseLost si el lock ya no es de este proceso.
	Extend(ctx context.Context, ttl time.Duration) error
	Release()
}

// InvoicePDFGenerator genera la representación gráfica de un documento firmado.
type InvoicePDFGenerator interface {
	GenerateInvoicePDF(ctx context.Context, invoice *entity.Invoice, tenant *entity.Tenant) ([]byte, error)
}
