package compliance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/jhoicas/fatoora-api/internal/domain/entity"
	"github.com/jhoicas/fatoora-api/internal/domain/repository"
	"github.com/jhoicas/fatoora-api/internal/domain/submission"
	infrazatca "github.com/jhoicas/fatoora-api/internal/infrastructure/zatca"
)

// ReportingJobLockKey clave del lock distribuido del job.
const ReportingJobLockKey = "fatoora:reporting-job"

// JobError describe el fallo de una factura dentro de una corrida.
type JobError struct {
	InvoiceID string `json:"invoice_id"`
	TenantID  string `json:"tenant_id"`
	Error     string `json:"error"`
}

// JobResult resumen de una corrida. Skipped cuenta facturas de tenants no habilitados,
// que no entran en Total.
type JobResult struct {
	Total      int        `json:"total"`
	Success    int        `json:"success"`
	Failed     int        `json:"failed"`
	Skipped    int        `json:"skipped"`
	Errors     []JobError `json:"errors"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
}

// TenantBatch facturas de un tenant en orden de envío.
type TenantBatch struct {
	TenantID string
	Invoices []*entity.Invoice
}

// ReportingJob reporta los documentos simplificados pendientes dentro de la ventana legal.
type ReportingJob struct {
	invoiceRepo repository.InvoiceRepository
	tenantRepo  repository.TenantRepository
	signer      *SignInvoiceUseCase
	recorder    *submissionRecorder
	locker      JobLocker
	cfg         Config
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
	log         zerolog.Logger
}

// NewReportingJob construye el job. locker nil usa un lock local.
func NewReportingJob(
	invoiceRepo repository.InvoiceRepository,
	tenantRepo repository.TenantRepository,
	signer *SignInvoiceUseCase,
	submitter Submitter,
	locker JobLocker,
	cfg Config,
	log zerolog.Logger,
) *ReportingJob {
	if locker == nil {
		locker = NewLocalJobLocker()
	}
	l := log.With().Str("component", "reporting_job").Logger()
	j := &ReportingJob{
		invoiceRepo: invoiceRepo,
		tenantRepo:  tenantRepo,
		signer:      signer,
		locker:      locker,
		cfg:         cfg.withDefaults(),
		now:         time.Now,
		sleep:       infrazatca.Sleep,
		log:         l,
	}
	j.recorder = &submissionRecorder{invoiceRepo: invoiceRepo, submitter: submitter, now: j.clock, log: l}
	return j
}

// WithClock reemplaza el reloj (tests).
func (j *ReportingJob) WithClock(now func() time.Time) *ReportingJob {
	j.now = now
	return j
}

// WithSleep reemplaza la pausa entre envíos (tests).
func (j *ReportingJob) WithSleep(fn func(ctx context.Context, d time.Duration) error) *ReportingJob {
	j.sleep = fn
	return j
}

func (j *ReportingJob) clock() time.Time { return j.now() }

// SelectForReporting filtra los candidatos: simplificados, sin enviar (pending, sin firmar o
// en submitted desde hace más de grace), en estado de negocio approved/sent y creados dentro
// de [now-window, now].
func SelectForReporting(invoices []*entity.Invoice, now time.Time, window, grace time.Duration) []*entity.Invoice {
	since := now.Add(-window)
	out := make([]*entity.Invoice, 0, len(invoices))
	for _, inv := range invoices {
		if inv == nil || !inv.IsSimplified {
			continue
		}
		switch inv.Compliance.SubmissionStatus {
		case entity.SubmissionPending, entity.SubmissionNone:
		case entity.SubmissionSubmitted:
			if !submission.IsStale(inv.Compliance, now, grace) {
				continue
			}
		default:
			continue
		}
		if inv.Status != entity.InvoiceStatusApproved && inv.Status != entity.InvoiceStatusSent {
			continue
		}
		if inv.CreatedAt.Before(since) || inv.CreatedAt.After(now) {
			continue
		}
		out = append(out, inv)
	}
	return out
}

// GroupByTenant agrupa por tenant. Dentro de cada grupo, las firmadas van por contador y
// las no firmadas al final por fecha de creación; los tenants quedan en orden de ID.
func GroupByTenant(invoices []*entity.Invoice) []TenantBatch {
	idx := map[string]int{}
	var batches []TenantBatch
	for _, inv := range invoices {
		i, ok := idx[inv.TenantID]
		if !ok {
			i = len(batches)
			idx[inv.TenantID] = i
			batches = append(batches, TenantBatch{TenantID: inv.TenantID})
		}
		batches[i].Invoices = append(batches[i].Invoices, inv)
	}
	sort.Slice(batches, func(a, b int) bool { return batches[a].TenantID < batches[b].TenantID })
	for _, b := range batches {
		sort.SliceStable(b.Invoices, func(x, y int) bool {
			ix, iy := b.Invoices[x], b.Invoices[y]
			cx, cy := ix.Compliance.InvoiceCounter, iy.Compliance.InvoiceCounter
			if (cx == 0) != (cy == 0) {
				return cx != 0
			}
			if cx != cy {
				return cx < cy
			}
			return ix.CreatedAt.Before(iy.CreatedAt)
		})
	}
	return batches
}

// Run ejecuta una corrida bajo el lock del job. El lock se renueva tras cada tenant;
// si se pierde, la corrida se detiene con ErrLeaseLost.
func (j *ReportingJob) Run(ctx context.Context) (*JobResult, error) {
	lease, ok, err := j.locker.TryLock(ctx, ReportingJobLockKey, j.cfg.JobLockTTL)
	if err != nil {
		return nil, fmt.Errorf("lock del job: %w", err)
	}
	if !ok {
		return nil, ErrJobAlreadyRunning
	}
	defer lease.Release()
	return j.run(ctx, lease)
}

func (j *ReportingJob) run(ctx context.Context, lease JobLease) (*JobResult, error) {
	now := j.now()
	res := &JobResult{Errors: []JobError{}, StartedAt: now}

	candidates, err := j.invoiceRepo.ListPendingReporting(ctx, now.Add(-j.cfg.ReportingWindow), now.Add(-j.cfg.SubmittedGrace))
	if err != nil {
		return nil, fmt.Errorf("listar pendientes: %w", err)
	}
	batches := GroupByTenant(SelectForReporting(candidates, now, j.cfg.ReportingWindow, j.cfg.SubmittedGrace))

	first := true
	for i, batch := range batches {
		if i > 0 {
			if err := lease.Extend(ctx, j.cfg.JobLockTTL); err != nil {
				j.log.Error().Err(err).Str("next_tenant_id", batch.TenantID).Msg("no se pudo renovar el lock, se detiene la corrida")
				res.FinishedAt = j.now()
				return res, fmt.Errorf("renovar lock: %w", err)
			}
		}
		log := j.log.With().Str("tenant_id", batch.TenantID).Logger()

		tenant, err := j.tenantRepo.GetByID(ctx, batch.TenantID)
		if err != nil {
			log.Error().Err(err).Msg("no se pudo cargar el tenant")
			for _, inv := range batch.Invoices {
				res.fail(inv, fmt.Errorf("cargar tenant: %w", err))
			}
			continue
		}
		if !tenant.CanSubmit() {
			log.Warn().Int("invoices", len(batch.Invoices)).Msg("tenant sin onboarding o sin credencial de producción, se omite")
			res.Skipped += len(batch.Invoices)
			continue
		}

		var last *entity.Invoice
		for _, inv := range batch.Invoices {
			if err := ctx.Err(); err != nil {
				res.FinishedAt = j.now()
				return res, err
			}
			if !first {
				if err := j.sleep(ctx, j.cfg.RequestDelay); err != nil {
					res.FinishedAt = j.now()
					return res, err
				}
			}
			first = false

			reported, err := j.reportOne(ctx, tenant, inv)
			if err != nil {
				log.Warn().Err(err).Str("invoice_id", inv.ID).Msg("no se pudo reportar la factura")
				res.fail(inv, err)
				continue
			}
			res.Total++
			res.Success++
			last = reported
		}

		if last != nil {
			if err := j.tenantRepo.EnsureChainTail(ctx, tenant.ID, last.Compliance.InvoiceHash, last.Compliance.InvoiceCounter); err != nil {
				log.Error().Err(err).Msg("no se pudo actualizar la cola de la cadena")
			}
		}
	}

	res.FinishedAt = j.now()
	j.log.Info().
		Int("total", res.Total).
		Int("success", res.Success).
		Int("failed", res.Failed).
		Int("skipped", res.Skipped).
		Dur("elapsed", res.FinishedAt.Sub(res.StartedAt)).
		Msg("corrida de reporting finalizada")
	return res, nil
}

func (r *JobResult) fail(inv *entity.Invoice, err error) {
	r.Total++
	r.Failed++
	r.Errors = append(r.Errors, JobError{InvoiceID: inv.ID, TenantID: inv.TenantID, Error: err.Error()})
}

// reportOne firma (si hace falta) y reporta una factura. Un panic se convierte en error
// para no abortar el lote.
func (j *ReportingJob) reportOne(ctx context.Context, tenant *entity.Tenant, inv *entity.Invoice) (out *entity.Invoice, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()

	if !inv.IsSigned() {
		if inv, err = j.signer.signPending(ctx, tenant, inv.ID); err != nil {
			return nil, fmt.Errorf("firmar: %w", err)
		}
	}
	res, err := j.recorder.submit(ctx, inv, tenant, submission.FlowReporting)
	if err != nil {
		return nil, err
	}
	if !res.Succeeded() {
		return nil, errors.New(res.Kind.String() + ": " + res.ErrorSummary())
	}
	return inv, nil
}

// RunForever ejecuta el job cada JobInterval hasta que ctx se cancele.
func (j *ReportingJob) RunForever(ctx context.Context) {
	ticker := time.NewTicker(j.cfg.JobInterval)
	defer ticker.Stop()
	j.log.Info().Dur("interval", j.cfg.JobInterval).Msg("job de reporting iniciado")
	for {
		if _, err := j.Run(ctx); err != nil {
			if errors.Is(err, ErrJobAlreadyRunning) {
				j.log.Debug().Msg("otra instancia ejecuta el job")
			} else if ctx.Err() == nil {
				j.log.Error().Err(err).Msg("corrida de reporting fallida")
			}
		}
		select {
		case <-ctx.Done():
			j.log.Info().Msg("job de reporting detenido")
			return
		case <-ticker.C:
		}
	}
}
