package http

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/fatoora-api/internal/application/compliance"
	"github.com/jhoicas/fatoora-api/internal/application/dto"
	"github.com/jhoicas/fatoora-api/internal/domain"
	"github.com/jhoicas/fatoora-api/internal/domain/entity"
	"github.com/jhoicas/fatoora-api/internal/domain/submission"
)

// Interfaces mínimas que consume el handler; los casos de uso de compliance las satisfacen.
type invoiceSigner interface {
	Sign(ctx context.Context, tenantID, invoiceID string) (*entity.Invoice, error)
}

type invoiceResubmitter interface {
	Resubmit(ctx context.Context, tenantID, invoiceID string) (*entity.Invoice, submission.Result, error)
}

type complianceQuery interface {
	Get(ctx context.Context, tenantID, invoiceID string) (*entity.Invoice, error)
	QRImage(ctx context.Context, tenantID, invoiceID string) ([]byte, error)
	DownloadInvoicePDF(ctx context.Context, tenantID, invoiceID string) ([]byte, string, error)
}

type chainVerifier interface {
	Verify(ctx context.Context, tenantID string) (*compliance.ChainReport, error)
}

type reportingRunner interface {
	Run(ctx context.Context) (*compliance.JobResult, error)
}

// ComplianceHandler expone firma, envío y consulta de cumplimiento (protegido).
type ComplianceHandler struct {
	signer   invoiceSigner
	resubmit invoiceResubmitter
	query    complianceQuery
	verifier chainVerifier
	job      reportingRunner
}

// NewComplianceHandler construye el handler.
func NewComplianceHandler(signer invoiceSigner, resubmit invoiceResubmitter, query complianceQuery, verifier chainVerifier, job reportingRunner) *ComplianceHandler {
	return &ComplianceHandler{signer: signer, resubmit: resubmit, query: query, verifier: verifier, job: job}
}

// Sign firma la factura y, si es B2B, la envía a clearance.
// POST /api/invoices/:id/sign
func (h *ComplianceHandler) Sign(c *fiber.Ctx) error {
	tenantID, id, ok := tenantAndID(c)
	if !ok {
		return nil
	}
	inv, err := h.signer.Sign(c.Context(), tenantID, id)
	if err != nil {
		return writeComplianceError(c, err)
	}
	return c.JSON(dto.ToInvoiceComplianceResponse(inv, false))
}

// Resubmit reenvía el XML firmado de una factura rechazada o con advertencias.
// POST /api/invoices/:id/resubmit
func (h *ComplianceHandler) Resubmit(c *fiber.Ctx) error {
	tenantID, id, ok := tenantAndID(c)
	if !ok {
		return nil
	}
	inv, res, err := h.resubmit.Resubmit(c.Context(), tenantID, id)
	if err != nil {
		return writeComplianceError(c, err)
	}
	return c.JSON(dto.ResubmitResponse{
		Invoice: dto.ToInvoiceComplianceResponse(inv, false),
		Result:  dto.ToSubmissionResultResponse(res),
	})
}

// GetCompliance devuelve el estado de cumplimiento. ?include_xml=true agrega el XML firmado.
// GET /api/invoices/:id/compliance
func (h *ComplianceHandler) GetCompliance(c *fiber.Ctx) error {
	tenantID, id, ok := tenantAndID(c)
	if !ok {
		return nil
	}
	inv, err := h.query.Get(c.Context(), tenantID, id)
	if err != nil {
		return writeComplianceError(c, err)
	}
	return c.JSON(dto.ToInvoiceComplianceResponse(inv, c.QueryBool("include_xml", false)))
}

// QRImage devuelve el código QR en PNG.
// GET /api/invoices/:id/qr.png
func (h *ComplianceHandler) QRImage(c *fiber.Ctx) error {
	tenantID, id, ok := tenantAndID(c)
	if !ok {
		return nil
	}
	png, err := h.query.QRImage(c.Context(), tenantID, id)
	if err != nil {
		return writeComplianceError(c, err)
	}
	c.Set(fiber.HeaderContentType, "image/png")
	return c.Send(png)
}

// DownloadPDF genera la representación visual de la factura.
// GET /api/invoices/:id/pdf
func (h *ComplianceHandler) DownloadPDF(c *fiber.Ctx) error {
	tenantID, id, ok := tenantAndID(c)
	if !ok {
		return nil
	}
	pdfBytes, filename, err := h.query.DownloadInvoicePDF(c.Context(), tenantID, id)
	if err != nil {
		return writeComplianceError(c, err)
	}
	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	return c.Send(pdfBytes)
}

// VerifyChain recorre la cadena del tenant autenticado.
// GET /api/compliance/chain/verify
func (h *ComplianceHandler) VerifyChain(c *fiber.Ctx) error {
	tenantID := GetTenantID(c)
	if tenantID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	report, err := h.verifier.Verify(c.Context(), tenantID)
	if err != nil {
		return writeComplianceError(c, err)
	}
	return c.JSON(report)
}

// RunReporting ejecuta el job de reporte diferido bajo demanda.
// POST /api/compliance/reporting/run
func (h *ComplianceHandler) RunReporting(c *fiber.Ctx) error {
	result, err := h.job.Run(c.Context())
	if err != nil {
		return writeComplianceError(c, err)
	}
	return c.JSON(result)
}

func tenantAndID(c *fiber.Ctx) (tenantID, id string, ok bool) {
	tenantID = GetTenantID(c)
	if tenantID == "" {
		_ = c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
		return "", "", false
	}
	id = c.Params("id")
	if id == "" {
		_ = c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "id requerido"})
		return "", "", false
	}
	return tenantID, id, true
}

// writeComplianceError traduce errores de dominio a códigos HTTP.
func writeComplianceError(c *fiber.Ctx, err error) error {
	status, code, msg := fiber.StatusInternalServerError, "INTERNAL", err.Error()
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status, code, msg = fiber.StatusNotFound, "NOT_FOUND", "factura no encontrada"
	case errors.Is(err, domain.ErrForbidden):
		status, code, msg = fiber.StatusForbidden, "FORBIDDEN", "acceso denegado"
	case compliance.IsConfigError(err):
		status, code = fiber.StatusPreconditionFailed, "COMPLIANCE_CONFIG"
	case errors.Is(err, domain.ErrAlreadySigned):
		status, code = fiber.StatusConflict, "ALREADY_SIGNED"
	case errors.Is(err, domain.ErrChainConflict):
		status, code = fiber.StatusConflict, "CHAIN_CONFLICT"
	case errors.Is(err, compliance.ErrJobAlreadyRunning):
		status, code = fiber.StatusConflict, "JOB_RUNNING"
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrInvalidTransition):
		status, code = fiber.StatusConflict, "CONFLICT"
	case errors.Is(err, domain.ErrInvalidInvoice):
		status, code = fiber.StatusUnprocessableEntity, "INVALID_INVOICE"
	case errors.Is(err, domain.ErrInvalidInput):
		status, code = fiber.StatusBadRequest, "VALIDATION"
	}
	return c.Status(status).JSON(dto.ErrorResponse{Code: code, Message: msg})
}
