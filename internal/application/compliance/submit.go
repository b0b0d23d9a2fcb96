package compliance

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jhoicas/fatoora-api/internal/domain"
	"github.com/jhoicas/fatoora-api/internal/domain/entity"
	"github.com/jhoicas/fatoora-api/internal/domain/repository"
	"github.com/jhoicas/fatoora-api/internal/domain/submission"
	infrazatca "github.com/jhoicas/fatoora-api/internal/infrastructure/zatca"
)

// submissionRecorder envía un documento firmado y persiste cada transición de estado.
type submissionRecorder struct {
	invoiceRepo repository.InvoiceRepository
	submitter   Submitter
	now         func() time.Time
	log         zerolog.Logger
}

// submit registra submitted, envía y aplica el resultado. Los fallos del API quedan en
// el Result y en la factura; el error solo refleja estado inválido o persistencia.
func (s *submissionRecorder) submit(ctx context.Context, inv *entity.Invoice, tenant *entity.Tenant, flow submission.Flow) (submission.Result, error) {
	if !tenant.CanSubmit() {
		return submission.Result{}, &ConfigError{Op: "envío", Err: domain.ErrTenantNotOnboarded}
	}
	log := s.log.With().Str("tenant_id", tenant.ID).Str("invoice_id", inv.ID).Str("flow", string(flow)).Logger()

	// Solo un proceso pasa a submitted desde el estado leído; el resto no envía.
	guard := repository.SubmissionGuard{Status: inv.Compliance.SubmissionStatus, SubmittedAt: inv.Compliance.SubmittedAt}
	if err := submission.MarkSubmitted(&inv.Compliance, s.now()); err != nil {
		return submission.Result{}, err
	}
	if err := s.invoiceRepo.UpdateComplianceIf(ctx, inv, guard); err != nil {
		return submission.Result{}, fmt.Errorf("marcar enviada: %w", err)
	}

	req := infrazatca.SubmitRequest{
		InvoiceHash: inv.Compliance.InvoiceHash,
		UUID:        inv.Compliance.UUID,
		SignedXML:   inv.Compliance.SignedXML,
		Credential:  tenant.Compliance.ProductionSubmissionID,
	}
	var res submission.Result
	if flow == submission.FlowClearance {
		res = s.submitter.Clear(ctx, req)
	} else {
		res = s.submitter.Report(ctx, req)
	}

	submission.Apply(&inv.Compliance, flow, res, s.now())
	if err := s.invoiceRepo.UpdateCompliance(ctx, inv); err != nil {
		log.Error().Err(err).Str("result", res.Kind.String()).Msg("no se pudo persistir el resultado del envío")
		return res, fmt.Errorf("persistir resultado: %w", err)
	}

	ev := log.Info()
	if !res.Succeeded() {
		ev = log.Warn().Str("last_error", inv.Compliance.LastError).Int("retry_count", inv.Compliance.RetryCount)
	}
	ev.Str("result", res.Kind.String()).
		Int("http_status", res.HTTPStatus).
		Str("status", string(inv.Compliance.SubmissionStatus)).
		Msg("envío procesado")
	return res, nil
}
