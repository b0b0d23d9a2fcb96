package compliance

import (
	"context"
	"crypto/ecdsa"
	"crypto/x509"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jhoicas/fatoora-api/internal/domain"
	"github.com/jhoicas/fatoora-api/internal/domain/entity"
	"github.com/jhoicas/fatoora-api/internal/domain/repository"
	"github.com/jhoicas/fatoora-api/internal/domain/submission"
)

// SignInvoiceUseCase firma una factura, la encadena a la cola del tenant y, si es B2B
// y el tenant está habilitado, la envía a clearance en la misma llamada.
type SignInvoiceUseCase struct {
	invoiceRepo repository.InvoiceRepository
	tenantRepo  repository.TenantRepository
	txRunner    ComplianceTxRunner
	pipeline    *DocumentPipeline
	keys        *KeyResolver
	locks       *TenantLocks
	recorder    *submissionRecorder
	cfg         Config
	now         func() time.Time
	newUUID     func() string
	log         zerolog.Logger
}

// NewSignInvoiceUseCase construye el caso de uso.
func NewSignInvoiceUseCase(
	invoiceRepo repository.InvoiceRepository,
	tenantRepo repository.TenantRepository,
	txRunner ComplianceTxRunner,
	pipeline *DocumentPipeline,
	keys *KeyResolver,
	submitter Submitter,
	cfg Config,
	log zerolog.Logger,
) *SignInvoiceUseCase {
	l := log.With().Str("component", "sign_invoice").Logger()
	uc := &SignInvoiceUseCase{
		invoiceRepo: invoiceRepo,
		tenantRepo:  tenantRepo,
		txRunner:    txRunner,
		pipeline:    pipeline,
		keys:        keys,
		locks:       NewTenantLocks(),
		cfg:         cfg.withDefaults(),
		now:         time.Now,
		newUUID:     func() string { return uuid.NewString() },
		log:         l,
	}
	uc.recorder = &submissionRecorder{invoiceRepo: invoiceRepo, submitter: submitter, now: uc.clock, log: l}
	return uc
}

// WithClock reemplaza el reloj (tests).
func (uc *SignInvoiceUseCase) WithClock(now func() time.Time) *SignInvoiceUseCase {
	uc.now = now
	return uc
}

func (uc *SignInvoiceUseCase) clock() time.Time { return uc.now() }

// Sign firma la factura invoiceID del tenant.
//
//	draft → pending. B2B con tenant habilitado → submitted → cleared | rejected | warning.
//	B2C queda pending hasta que el job la reporte.
//
// Una factura ya firmada y pendiente no se vuelve a firmar: se reutiliza su documento.
func (uc *SignInvoiceUseCase) Sign(ctx context.Context, tenantID, invoiceID string) (*entity.Invoice, error) {
	inv, err := uc.loadOwned(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}
	alreadySigned, err := submission.CheckSignable(inv)
	if err != nil {
		return nil, err
	}
	tenant, err := uc.tenantRepo.GetByID(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("cargar tenant: %w", err)
	}

	if !alreadySigned {
		inv, err = uc.signWithRetry(ctx, tenant, invoiceID)
		if err != nil {
			return nil, err
		}
	}

	if !inv.RequiresClearance() {
		return inv, nil
	}
	if !tenant.CanSubmit() {
		uc.log.Warn().Str("tenant_id", tenantID).Str("invoice_id", invoiceID).
			Msg("tenant sin onboarding: la factura queda pendiente de clearance")
		return inv, nil
	}
	if _, err := uc.recorder.submit(ctx, inv, tenant, submission.FlowClearance); err != nil {
		return inv, err
	}
	return inv, nil
}

// signPending firma sin enviar; lo usa el job para documentos simplificados sin firma.
func (uc *SignInvoiceUseCase) signPending(ctx context.Context, tenant *entity.Tenant, invoiceID string) (*entity.Invoice, error) {
	return uc.signWithRetry(ctx, tenant, invoiceID)
}

func (uc *SignInvoiceUseCase) loadOwned(ctx context.Context, tenantID, invoiceID string) (*entity.Invoice, error) {
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

// signWithRetry repite la firma completa mientras la cola cambie entre lectura y escritura.
func (uc *SignInvoiceUseCase) signWithRetry(ctx context.Context, tenant *entity.Tenant, invoiceID string) (*entity.Invoice, error) {
	km, err := uc.keys.Resolve(tenant)
	if err != nil {
		return nil, err
	}
	for attempt := 1; attempt <= uc.cfg.SignMaxAttempts; attempt++ {
		inv, err := uc.signOnce(ctx, tenant.ID, invoiceID, km.Key, km.Cert)
		if errors.Is(err, domain.ErrChainConflict) {
			uc.log.Warn().Str("tenant_id", tenant.ID).Str("invoice_id", invoiceID).Int("attempt", attempt).
				Msg("la cola de la cadena cambió durante la firma, reintentando")
			continue
		}
		return inv, err
	}
	return nil, fmt.Errorf("%w: %d intentos agotados", domain.ErrChainConflict, uc.cfg.SignMaxAttempts)
}

func (uc *SignInvoiceUseCase) signOnce(ctx context.Context, tenantID, invoiceID string, key *ecdsa.PrivateKey, cert *x509.Certificate) (*entity.Invoice, error) {
	unlock := uc.locks.Lock(tenantID)
	defer unlock()

	// ═══ 1. Releer factura y cola bajo el lock ═══
	inv, err := uc.loadOwned(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}
	alreadySigned, err := submission.CheckSignable(inv)
	if err != nil {
		return nil, err
	}
	if alreadySigned {
		return inv, nil
	}
	tenant, err := uc.tenantRepo.GetByID(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("cargar tenant: %w", err)
	}

	// ═══ 2. Identidad del documento ═══
	docUUID := inv.Compliance.UUID
	if docUUID == "" {
		docUUID = uc.newUUID()
	}
	prevHash := tenant.Compliance.LastInvoiceHash
	prevCounter := tenant.Compliance.InvoiceCounter
	counter := prevCounter + 1

	// ═══ 3. Componer, encadenar, firmar, QR ═══
	art, err := uc.pipeline.Produce(DocumentInput{
		Invoice:      inv,
		Seller:       tenant.Seller,
		Key:          key,
		Cert:         cert,
		UUID:         docUUID,
		Counter:      counter,
		PreviousHash: prevHash,
		SigningTime:  uc.now(),
	})
	if err != nil {
		return nil, err
	}
	art.apply(inv, docUUID, counter)

	// ═══ 4. Persistir cola + artefactos en una transacción ═══
	err = uc.txRunner.RunCompliance(ctx, func(invoiceRepo repository.InvoiceRepository, tenantRepo repository.TenantRepository) error {
		if err := tenantRepo.AdvanceChain(ctx, repository.ChainAdvance{
			TenantID:        tenantID,
			ExpectedHash:    prevHash,
			ExpectedCounter: prevCounter,
			NewHash:         art.Chain.ChainedHash,
			NewCounter:      counter,
		}); err != nil {
			return err
		}
		if err := invoiceRepo.UpdateCompliance(ctx, inv); err != nil {
			return fmt.Errorf("guardar artefactos: %w", err)
		}
		if inv.IsCreditNote() && inv.OriginalInvoiceID != "" {
			if err := invoiceRepo.UpdateStatus(ctx, inv.OriginalInvoiceID, entity.InvoiceStatusCredited); err != nil {
				return fmt.Errorf("marcar original como acreditada: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.log.Info().
		Str("tenant_id", tenantID).
		Str("invoice_id", invoiceID).
		Int64("counter", counter).
		Str("invoice_hash", art.Chain.ChainedHash).
		Msg("factura firmada")
	return inv, nil
}
