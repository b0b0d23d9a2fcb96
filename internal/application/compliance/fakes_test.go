package compliance_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/fatoora-api/internal/application/compliance"
	"github.com/jhoicas/fatoora-api/internal/domain"
	"github.com/jhoicas/fatoora-api/internal/domain/entity"
	"github.com/jhoicas/fatoora-api/internal/domain/repository"
	"github.com/jhoicas/fatoora-api/internal/domain/submission"
	infrazatca "github.com/jhoicas/fatoora-api/internal/infrastructure/zatca"
	"github.com/jhoicas/fatoora-api/internal/infrastructure/zatca/signer"
)

// ── memStore: repos + tx runner en memoria ───────────────────────────────────

type memStore struct {
	mu       sync.Mutex
	invoices map[string]*entity.Invoice
	tenants  map[string]*entity.Tenant

	advanceCalls int
	// beforeAdvance permite simular que otro proceso movió la cola.
	beforeAdvance func(call int, t *entity.Tenant)
	// beforeGuardedUpdate permite simular que otro proceso cambió el estado de envío.
	beforeGuardedUpdate func(stored *entity.Invoice)
	// updateErr hace fallar UpdateCompliance para la factura que devuelva error.
	updateErr func(inv *entity.Invoice) error
}

func newMemStore() *memStore {
	return &memStore{invoices: map[string]*entity.Invoice{}, tenants: map[string]*entity.Tenant{}}
}

func cloneInvoice(inv *entity.Invoice) *entity.Invoice {
	c := *inv
	c.Lines = append([]entity.InvoiceLine(nil), inv.Lines...)
	if inv.Buyer != nil {
		b := *inv.Buyer
		c.Buyer = &b
	}
	return &c
}

func (s *memStore) putInvoice(inv *entity.Invoice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invoices[inv.ID] = cloneInvoice(inv)
}

func (s *memStore) putTenant(t *entity.Tenant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *t
	s.tenants[t.ID] = &c
}

func (s *memStore) invoice(id string) *entity.Invoice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneInvoice(s.invoices[id])
}

func (s *memStore) tenant(id string) entity.Tenant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.tenants[id]
}

func (s *memStore) invoiceRepo() repository.InvoiceRepository { return memInvoices{s} }
func (s *memStore) tenantRepo() repository.TenantRepository   { return memTenants{s} }

func (s *memStore) RunCompliance(_ context.Context, fn func(repository.InvoiceRepository, repository.TenantRepository) error) error {
	return fn(memInvoices{s}, memTenants{s})
}

type memInvoices struct{ s *memStore }

func (r memInvoices) GetByID(_ context.Context, id string) (*entity.Invoice, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	inv, ok := r.s.invoices[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneInvoice(inv), nil
}

func (r memInvoices) UpdateCompliance(_ context.Context, inv *entity.Invoice) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.invoices[inv.ID]; !ok {
		return domain.ErrNotFound
	}
	if r.s.updateErr != nil {
		if err := r.s.updateErr(inv); err != nil {
			return err
		}
	}
	r.s.invoices[inv.ID] = cloneInvoice(inv)
	return nil
}

func (r memInvoices) UpdateComplianceIf(_ context.Context, inv *entity.Invoice, guard repository.SubmissionGuard) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.invoices[inv.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if r.s.beforeGuardedUpdate != nil {
		r.s.beforeGuardedUpdate(stored)
	}
	c := stored.Compliance
	sameTime := (c.SubmittedAt == nil && guard.SubmittedAt == nil) ||
		(c.SubmittedAt != nil && guard.SubmittedAt != nil && c.SubmittedAt.Equal(*guard.SubmittedAt))
	if c.SubmissionStatus != guard.Status || !sameTime {
		return fmt.Errorf("%w: estado de envío %q", domain.ErrConflict, c.SubmissionStatus)
	}
	r.s.invoices[inv.ID] = cloneInvoice(inv)
	return nil
}

func (r memInvoices) UpdateStatus(_ context.Context, id, status string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	inv, ok := r.s.invoices[id]
	if !ok {
		return domain.ErrNotFound
	}
	inv.Status = status
	return nil
}

// ListPendingReporting devuelve todos los simplificados; el filtro fino lo hace SelectForReporting.
func (r memInvoices) ListPendingReporting(_ context.Context, _, _ time.Time) ([]*entity.Invoice, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.Invoice
	for _, inv := range r.s.invoices {
		if inv.IsSimplified {
			out = append(out, cloneInvoice(inv))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r memInvoices) ListSignedByTenant(_ context.Context, tenantID string) ([]*entity.Invoice, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.Invoice
	for _, inv := range r.s.invoices {
		if inv.TenantID == tenantID && inv.IsSigned() {
			out = append(out, cloneInvoice(inv))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Compliance.InvoiceCounter < out[j].Compliance.InvoiceCounter
	})
	return out, nil
}

type memTenants struct{ s *memStore }

func (r memTenants) GetByID(_ context.Context, id string) (*entity.Tenant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tenants[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := *t
	return &c, nil
}

func (r memTenants) AdvanceChain(_ context.Context, adv repository.ChainAdvance) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tenants[adv.TenantID]
	if !ok {
		return domain.ErrNotFound
	}
	r.s.advanceCalls++
	if r.s.beforeAdvance != nil {
		r.s.beforeAdvance(r.s.advanceCalls, t)
	}
	if t.Compliance.LastInvoiceHash != adv.ExpectedHash || t.Compliance.InvoiceCounter != adv.ExpectedCounter {
		return domain.ErrChainConflict
	}
	t.Compliance.LastInvoiceHash = adv.NewHash
	t.Compliance.InvoiceCounter = adv.NewCounter
	return nil
}

func (r memTenants) EnsureChainTail(_ context.Context, tenantID, hash string, counter int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tenants[tenantID]
	if !ok {
		return domain.ErrNotFound
	}
	if counter > t.Compliance.InvoiceCounter {
		t.Compliance.LastInvoiceHash = hash
		t.Compliance.InvoiceCounter = counter
	}
	return nil
}

// ── fakeSubmitter ─────────────────────────────────────────────────────────────

type fakeSubmitter struct {
	mu      sync.Mutex
	clear   func(req infrazatca.SubmitRequest) submission.Result
	report  func(req infrazatca.SubmitRequest) submission.Result
	cleared []infrazatca.SubmitRequest
	reports []infrazatca.SubmitRequest
}

func accepted(_ infrazatca.SubmitRequest) submission.Result {
	return submission.Result{Kind: submission.Accepted, HTTPStatus: 200}
}

func (f *fakeSubmitter) Clear(_ context.Context, req infrazatca.SubmitRequest) submission.Result {
	f.mu.Lock()
	f.cleared = append(f.cleared, req)
	fn := f.clear
	f.mu.Unlock()
	if fn == nil {
		fn = accepted
	}
	return fn(req)
}

func (f *fakeSubmitter) Report(_ context.Context, req infrazatca.SubmitRequest) submission.Result {
	f.mu.Lock()
	f.reports = append(f.reports, req)
	fn := f.report
	f.mu.Unlock()
	if fn == nil {
		fn = accepted
	}
	return fn(req)
}

// ── harness ───────────────────────────────────────────────────────────────────

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	store  *memStore
	sub    *fakeSubmitter
	signer *signer.DigitalSignatureService
	keys   *compliance.KeyResolver
	sign   *compliance.SignInvoiceUseCase
	job    *compliance.ReportingJob
	delays []time.Duration
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{store: newMemStore(), sub: &fakeSubmitter{}}
	h.signer = signer.NewDigitalSignatureService(signer.EncodingP1363)
	h.keys = compliance.NewKeyResolver(nil)
	pipeline := compliance.NewDocumentPipeline(infrazatca.NewXMLBuilderService(), h.signer)
	cfg := compliance.DefaultConfig()
	log := zerolog.Nop()
	clock := func() time.Time { return testNow }

	h.sign = compliance.NewSignInvoiceUseCase(h.store.invoiceRepo(), h.store.tenantRepo(), h.store, pipeline, h.keys, h.sub, cfg, log).
		WithClock(clock)
	h.job = h.jobWith(nil)
	return h
}

// jobWith construye un job sobre el mismo store con otro locker.
func (h *harness) jobWith(locker compliance.JobLocker) *compliance.ReportingJob {
	return compliance.NewReportingJob(h.store.invoiceRepo(), h.store.tenantRepo(), h.sign, h.sub, locker, compliance.DefaultConfig(), zerolog.Nop()).
		WithClock(func() time.Time { return testNow }).
		WithSleep(func(_ context.Context, d time.Duration) error {
			h.delays = append(h.delays, d)
			return nil
		})
}

func (h *harness) verifier() *compliance.VerifyChainUseCase {
	return compliance.NewVerifyChainUseCase(h.store.invoiceRepo(), h.store.tenantRepo(), h.signer, h.keys)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTenant(t *testing.T, id string, onboarded bool) *entity.Tenant {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	pemKey, err := signer.EncodePrivateKeyPEM(key)
	require.NoError(t, err)
	tn := &entity.Tenant{
		ID:   id,
		Name: "Maximum Speed Tech Supply LTD",
		Seller: entity.Party{
			Name:           "Maximum Speed Tech Supply LTD",
			VATNumber:      "399999999900003",
			Street:         "Prince Sultan",
			BuildingNumber: "2322",
			District:       "Al-Murabba",
			City:           "Riyadh",
			PostalZone:     "23333",
			CountryCode:    "SA",
		},
		Status:     "active",
		Compliance: entity.TenantCompliance{PrivateKey: pemKey},
	}
	if onboarded {
		tn.Compliance.IsOnboarded = true
		tn.Compliance.ProductionSubmissionID = "VFVsSlJERjZRzNB"
	}
	return tn
}

func newInvoice(id, tenantID string, simplified bool, createdAt time.Time) *entity.Invoice {
	inv := &entity.Invoice{
		ID:           id,
		TenantID:     tenantID,
		Number:       "INV-" + id,
		DocumentType: entity.DocumentTypeInvoice,
		IsSimplified: simplified,
		Status:       entity.InvoiceStatusApproved,
		Currency:     "SAR",
		IssueDate:    createdAt,
		Lines: []entity.InvoiceLine{
			{Description: "Laptop", Quantity: dec("5"), UnitPrice: dec("1000"), TaxCategory: "S", TaxRate: dec("15")},
			{Description: "Mouse", Quantity: dec("1"), UnitPrice: dec("800"), Discount: dec("50"), TaxCategory: "S", TaxRate: dec("15")},
		},
		Subtotal:      dec("5750"),
		DiscountTotal: dec("50"),
		TaxAmount:     dec("862.50"),
		GrandTotal:    dec("6612.50"),
		CreatedAt:     createdAt,
	}
	if !simplified {
		inv.Buyer = &entity.Party{Name: "Fatoora Samples LTD", VATNumber: "399999999800003", City: "Riyadh", CountryCode: "SA"}
	}
	return inv
}
