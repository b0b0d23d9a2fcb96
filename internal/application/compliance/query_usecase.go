package compliance

import (
	"context"
	"fmt"

	"github.com/jhoicas/fatoora-api/internal/domain"
	"github.com/jhoicas/fatoora-api/internal/domain/entity"
	"github.com/jhoicas/fatoora-api/internal/domain/repository"
	infrazatca "github.com/jhoicas/fatoora-api/internal/infrastructure/zatca"
)

// QueryUseCase expone el estado de cumplimiento y las representaciones de un documento firmado.
type QueryUseCase struct {
	invoiceRepo repository.InvoiceRepository
	tenantRepo  repository.TenantRepository
	generator   InvoicePDFGenerator
}

// NewQueryUseCase construye el caso de uso. generator puede ser nil si no se sirve PDF.
func NewQueryUseCase(invoiceRepo repository.InvoiceRepository, tenantRepo repository.TenantRepository, generator InvoicePDFGenerator) *QueryUseCase {
	return &QueryUseCase{invoiceRepo: invoiceRepo, tenantRepo: tenantRepo, generator: generator}
}

// Get devuelve la factura si pertenece al tenant.
func (uc *QueryUseCase) Get(ctx context.Context, tenantID, invoiceID string) (*entity.Invoice, error) {
	inv, err := uc.invoiceRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, domain.ErrNotFound
	}
	if inv.TenantID != tenantID {
		return nil, domain.ErrForbidden
	}
	return inv, nil
}

func (uc *QueryUseCase) getSigned(ctx context.Context, tenantID, invoiceID string) (*entity.Invoice, error) {
	inv, err := uc.Get(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}
	if !inv.IsSigned() {
		return nil, fmt.Errorf("%w: la factura aún no está firmada", domain.ErrInvalidInput)
	}
	return inv, nil
}

// QRImage devuelve el PNG del QR. Si la imagen no se guardó, se regenera desde el payload.
func (uc *QueryUseCase) QRImage(ctx context.Context, tenantID, invoiceID string) ([]byte, error) {
	inv, err := uc.getSigned(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Compliance.QRCodeImage != "" {
		if png, err := infrazatca.DecodeQRDataURL(inv.Compliance.QRCodeImage); err == nil {
			return png, nil
		}
	}
	return infrazatca.RenderQRPNG(inv.Compliance.QRCodeData, infrazatca.DefaultQRSize)
}

// DownloadInvoicePDF genera el PDF de un documento firmado.
//
// Retorna:
//   - domain.ErrNotFound     si la factura no existe.
//   - domain.ErrForbidden    si no pertenece al tenant.
//   - domain.ErrInvalidInput si aún no está firmada.
func (uc *QueryUseCase) DownloadInvoicePDF(ctx context.Context, tenantID, invoiceID string) (pdfBytes []byte, filename string, err error) {
	if uc.generator == nil {
		return nil, "", fmt.Errorf("pdf: generador no configurado")
	}
	inv, err := uc.getSigned(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, "", err
	}
	tenant, err := uc.tenantRepo.GetByID(ctx, tenantID)
	if err != nil {
		return nil, "", fmt.Errorf("pdf: obtener tenant: %w", err)
	}
	pdfBytes, err = uc.generator.GenerateInvoicePDF(ctx, inv, tenant)
	if err != nil {
		return nil, "", fmt.Errorf("pdf: generar: %w", err)
	}
	return pdfBytes, fmt.Sprintf("%s.pdf", inv.Number), nil
}
