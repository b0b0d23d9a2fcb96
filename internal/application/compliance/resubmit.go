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
)

// ResubmitUseCase reenvía el documento firmado de una factura rechazada, con advertencias
// o atascada en submitted más allá de cfg.SubmittedGrace. No vuelve a firmar ni toca la cadena.
type ResubmitUseCase struct {
	invoiceRepo repository.InvoiceRepository
	tenantRepo  repository.TenantRepository
	recorder    *submissionRecorder
	grace       time.Duration
}

// NewResubmitUseCase construye el caso de uso.
func NewResubmitUseCase(invoiceRepo repository.InvoiceRepository, tenantRepo repository.TenantRepository, submitter Submitter, cfg Config, log zerolog.Logger) *ResubmitUseCase {
	return &ResubmitUseCase{
		invoiceRepo: invoiceRepo,
		tenantRepo:  tenantRepo,
		grace:       cfg.withDefaults().SubmittedGrace,
		recorder: &submissionRecorder{
			invoiceRepo: invoiceRepo,
			submitter:   submitter,
			now:         time.Now,
			log:         log.With().Str("component", "resubmit").Logger(),
		},
	}
}

// WithClock reemplaza el reloj (tests).
func (uc *ResubmitUseCase) WithClock(now func() time.Time) *ResubmitUseCase {
	uc.recorder.now = now
	return uc
}

// Resubmit reenvía por clearance (B2B) o reporting (B2C) según el tipo de documento.
func (uc *ResubmitUseCase) Resubmit(ctx context.Context, tenantID, invoiceID string) (*entity.Invoice, submission.Result, error) {
	inv, err := uc.invoiceRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, submission.Result{}, err
	}
	if inv == nil {
		return nil, submission.Result{}, domain.ErrNotFound
	}
	if inv.TenantID != tenantID {
		return nil, submission.Result{}, domain.ErrForbidden
	}
	if err := submission.CanResubmit(inv.Compliance, uc.recorder.now(), uc.grace); err != nil {
		return nil, submission.Result{}, err
	}
	tenant, err := uc.tenantRepo.GetByID(ctx, tenantID)
	if err != nil {
		return nil, submission.Result{}, fmt.Errorf("cargar tenant: %w", err)
	}

	flow := submission.FlowReporting
	if inv.RequiresClearance() {
		flow = submission.FlowClearance
	}
	res, err := uc.recorder.submit(ctx, inv, tenant, flow)
	if err != nil {
		return inv, res, err
	}
	return inv, res, nil
}
