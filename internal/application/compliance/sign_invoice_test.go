package compliance_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/fatoora-api/internal/application/compliance"
	"github.com/jhoicas/fatoora-api/internal/domain"
	"github.com/jhoicas/fatoora-api/internal/domain/entity"
	"github.com/jhoicas/fatoora-api/internal/domain/repository"
	"github.com/jhoicas/fatoora-api/internal/domain/submission"
	domainzatca "github.com/jhoicas/fatoora-api/internal/domain/zatca"
	infrazatca "github.com/jhoicas/fatoora-api/internal/infrastructure/zatca"
	"github.com/jhoicas/fatoora-api/internal/infrastructure/zatca/signer"
)

func TestSign_SimplificadaQuedaPendiente(t *testing.T) {
	h := newHarness(t)
	tn := newTenant(t, "t1", true)
	h.store.putTenant(tn)
	h.store.putInvoice(newInvoice("i1", "t1", true, testNow))

	inv, err := h.sign.Sign(context.Background(), "t1", "i1")
	require.NoError(t, err)

	c := inv.Compliance
	assert.Equal(t, entity.SubmissionPending, c.SubmissionStatus)
	assert.Equal(t, int64(1), c.InvoiceCounter)
	assert.Equal(t, domainzatca.SeedHash, c.PreviousInvoiceHash)
	assert.NotEmpty(t, c.UUID)
	assert.Empty(t, h.sub.cleared)
	assert.Empty(t, h.sub.reports)

	stored := h.store.tenant("t1")
	assert.Equal(t, c.InvoiceHash, stored.Compliance.LastInvoiceHash)
	assert.Equal(t, int64(1), stored.Compliance.InvoiceCounter)

	// El hash se recalcula desde el documento firmado.
	recomputed := domainzatca.ComputeChain(infrazatca.StripEmbedded(c.SignedXML), domainzatca.SeedHash)
	assert.Equal(t, c.InvoiceHash, recomputed.ChainedHash)

	fields, err := infrazatca.ExtractSignedFields(c.SignedXML)
	require.NoError(t, err)
	assert.Equal(t, c.InvoiceHash, fields.InvoiceDigest)
	assert.Equal(t, c.QRCodeData, fields.QRPayload)

	key, err := signer.ParsePrivateKey(tn.Compliance.PrivateKey)
	require.NoError(t, err)
	assert.NoError(t, h.signer.Verify(c.InvoiceHash, c.DigitalSignature, &key.PublicKey))

	qr, err := domainzatca.DecodeQRPayload(c.QRCodeData)
	require.NoError(t, err)
	assert.Equal(t, "Maximum Speed Tech Supply LTD", qr.SellerName)
	assert.Equal(t, "399999999900003", qr.VATNumber)
	assert.Equal(t, "2024-03-01T12:00:00Z", qr.Timestamp)
	assert.Equal(t, "6612.50", qr.InvoiceTotal)
	assert.Equal(t, "862.50", qr.VATTotal)
	assert.Equal(t, c.InvoiceHash, qr.InvoiceHash)
	assert.Equal(t, c.DigitalSignature, qr.Signature)
	assert.NotEmpty(t, qr.PublicKey)
	assert.True(t, strings.HasPrefix(c.QRCodeImage, "data:image/png;base64,"))
}

func TestSign_ContinuidadDeCadena(t *testing.T) {
	h := newHarness(t)
	h.store.putTenant(newTenant(t, "t1", false))
	for i := 1; i <= 3; i++ {
		h.store.putInvoice(newInvoice(fmt.Sprintf("i%d", i), "t1", true, testNow))
	}

	prev := domainzatca.SeedHash
	for i := 1; i <= 3; i++ {
		inv, err := h.sign.Sign(context.Background(), "t1", fmt.Sprintf("i%d", i))
		require.NoError(t, err)
		assert.Equal(t, int64(i), inv.Compliance.InvoiceCounter)
		assert.Equal(t, prev, inv.Compliance.PreviousInvoiceHash)
		prev = inv.Compliance.InvoiceHash
	}
	assert.Equal(t, prev, h.store.tenant("t1").Compliance.LastInvoiceHash)

	report, err := h.verifier().Verify(context.Background(), "t1")
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, 3, report.Checked)
	assert.Equal(t, int64(3), report.TailCounter)
}

func TestSign_NoFirmaDosVeces(t *testing.T) {
	h := newHarness(t)
	h.store.putTenant(newTenant(t, "t1", false))
	h.store.putInvoice(newInvoice("i1", "t1", true, testNow))

	first, err := h.sign.Sign(context.Background(), "t1", "i1")
	require.NoError(t, err)

	// Pendiente: se reutiliza el documento.
	again, err := h.sign.Sign(context.Background(), "t1", "i1")
	require.NoError(t, err)
	assert.Equal(t, first.Compliance.InvoiceHash, again.Compliance.InvoiceHash)
	assert.Equal(t, first.Compliance.UUID, again.Compliance.UUID)
	assert.Equal(t, int64(1), h.store.tenant("t1").Compliance.InvoiceCounter)

	// Reportada: se rechaza.
	stored := h.store.invoice("i1")
	stored.Compliance.SubmissionStatus = entity.SubmissionReported
	h.store.putInvoice(stored)
	_, err = h.sign.Sign(context.Background(), "t1", "i1")
	assert.ErrorIs(t, err, domain.ErrAlreadySigned)
	assert.Equal(t, int64(1), h.store.tenant("t1").Compliance.InvoiceCounter)
}

func TestSign_EstandarAprobadaEnClearance(t *testing.T) {
	h := newHarness(t)
	h.store.putTenant(newTenant(t, "t1", true))
	h.store.putInvoice(newInvoice("i1", "t1", false, testNow))
	h.sub.clear = func(infrazatca.SubmitRequest) submission.Result {
		return submission.Result{Kind: submission.Accepted, HTTPStatus: 200, ClearanceStatus: "CLEARED"}
	}

	inv, err := h.sign.Sign(context.Background(), "t1", "i1")
	require.NoError(t, err)

	assert.Equal(t, entity.SubmissionCleared, inv.Compliance.SubmissionStatus)
	assert.Equal(t, "CLEARED", inv.Compliance.ClearanceStatus)
	require.NotNil(t, inv.Compliance.ClearedAt)
	require.NotNil(t, inv.Compliance.SubmittedAt)
	assert.Zero(t, inv.Compliance.RetryCount)

	require.Len(t, h.sub.cleared, 1)
	req := h.sub.cleared[0]
	assert.Equal(t, inv.Compliance.InvoiceHash, req.InvoiceHash)
	assert.Equal(t, inv.Compliance.UUID, req.UUID)
	assert.Equal(t, "VFVsSlJERjZRzNB", req.Credential)
	assert.Equal(t, entity.SubmissionCleared, h.store.invoice("i1").Compliance.SubmissionStatus)
}

func TestSign_EstandarRechazadaYReenviada(t *testing.T) {
	h := newHarness(t)
	h.store.putTenant(newTenant(t, "t1", true))
	h.store.putInvoice(newInvoice("i1", "t1", false, testNow))
	h.sub.clear = func(infrazatca.SubmitRequest) submission.Result {
		return submission.Result{
			Kind:       submission.Rejected,
			HTTPStatus: 400,
			Errors:     []submission.Issue{{Code: "BR-KSA-37", Message: "dirección del vendedor incompleta"}},
		}
	}

	inv, err := h.sign.Sign(context.Background(), "t1", "i1")
	require.NoError(t, err)
	assert.Equal(t, entity.SubmissionRejected, inv.Compliance.SubmissionStatus)
	assert.Equal(t, "BR-KSA-37: dirección del vendedor incompleta", inv.Compliance.LastError)
	assert.Equal(t, 1, inv.Compliance.RetryCount)

	// Rechazada: no se puede volver a firmar.
	_, err = h.sign.Sign(context.Background(), "t1", "i1")
	assert.ErrorIs(t, err, domain.ErrAlreadySigned)

	h.sub.clear = nil
	resubmit := compliance.NewResubmitUseCase(h.store.invoiceRepo(), h.store.tenantRepo(), h.sub, compliance.DefaultConfig(), zerolog.Nop()).
		WithClock(func() time.Time { return testNow })
	out, res, err := resubmit.Resubmit(context.Background(), "t1", "i1")
	require.NoError(t, err)
	assert.Equal(t, submission.Accepted, res.Kind)
	assert.Equal(t, entity.SubmissionCleared, out.Compliance.SubmissionStatus)
	assert.Empty(t, out.Compliance.LastError)
	assert.Equal(t, inv.Compliance.InvoiceHash, out.Compliance.InvoiceHash)
	assert.Equal(t, int64(1), h.store.tenant("t1").Compliance.InvoiceCounter)
}

func TestSign_EstandarSinOnboardingQuedaPendiente(t *testing.T) {
	h := newHarness(t)
	h.store.putTenant(newTenant(t, "t1", false))
	h.store.putInvoice(newInvoice("i1", "t1", false, testNow))

	inv, err := h.sign.Sign(context.Background(), "t1", "i1")
	require.NoError(t, err)
	assert.Equal(t, entity.SubmissionPending, inv.Compliance.SubmissionStatus)
	assert.Empty(t, h.sub.cleared)
}

func TestSign_SinLlaveEsErrorDeConfiguracion(t *testing.T) {
	h := newHarness(t)
	tn := newTenant(t, "t1", true)
	tn.Compliance.PrivateKey = ""
	h.store.putTenant(tn)
	h.store.putInvoice(newInvoice("i1", "t1", true, testNow))

	_, err := h.sign.Sign(context.Background(), "t1", "i1")
	require.Error(t, err)
	assert.True(t, compliance.IsConfigError(err))
	assert.ErrorIs(t, err, domain.ErrMissingPrivateKey)

	assert.False(t, h.store.invoice("i1").IsSigned())
	assert.Zero(t, h.store.tenant("t1").Compliance.InvoiceCounter)
}

func TestSign_FacturaInvalidaNoAvanzaCadena(t *testing.T) {
	h := newHarness(t)
	h.store.putTenant(newTenant(t, "t1", false))
	inv := newInvoice("i1", "t1", true, testNow)
	inv.GrandTotal = dec("0")
	h.store.putInvoice(inv)

	_, err := h.sign.Sign(context.Background(), "t1", "i1")
	assert.ErrorIs(t, err, domain.ErrInvalidInvoice)
	assert.Zero(t, h.store.tenant("t1").Compliance.InvoiceCounter)
}

func TestSign_FacturaDeOtroTenant(t *testing.T) {
	h := newHarness(t)
	h.store.putTenant(newTenant(t, "t1", false))
	h.store.putInvoice(newInvoice("i1", "t2", true, testNow))

	_, err := h.sign.Sign(context.Background(), "t1", "i1")
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestSign_ConflictoDeCadenaReintenta(t *testing.T) {
	h := newHarness(t)
	h.store.putTenant(newTenant(t, "t1", false))
	h.store.putInvoice(newInvoice("i1", "t1", true, testNow))

	// Otro proceso firma entre la lectura de la cola y la escritura.
	h.store.beforeAdvance = func(call int, tn *entity.Tenant) {
		if call == 1 {
			tn.Compliance.LastInvoiceHash = "b3RybyBoYXNo"
			tn.Compliance.InvoiceCounter = 5
		}
	}

	inv, err := h.sign.Sign(context.Background(), "t1", "i1")
	require.NoError(t, err)
	assert.Equal(t, 2, h.store.advanceCalls)
	assert.Equal(t, int64(6), inv.Compliance.InvoiceCounter)
	assert.Equal(t, "b3RybyBoYXNo", inv.Compliance.PreviousInvoiceHash)
	assert.Equal(t, inv.Compliance.InvoiceHash, h.store.tenant("t1").Compliance.LastInvoiceHash)
}

func TestSign_ConflictoPersistenteAgotaIntentos(t *testing.T) {
	h := newHarness(t)
	h.store.putTenant(newTenant(t, "t1", false))
	h.store.putInvoice(newInvoice("i1", "t1", true, testNow))
	h.store.beforeAdvance = func(_ int, tn *entity.Tenant) {
		tn.Compliance.InvoiceCounter++
	}

	_, err := h.sign.Sign(context.Background(), "t1", "i1")
	assert.ErrorIs(t, err, domain.ErrChainConflict)
	assert.Equal(t, compliance.DefaultConfig().SignMaxAttempts, h.store.advanceCalls)
	assert.False(t, h.store.invoice("i1").IsSigned())
}

func TestSign_ConcurrenteSerializaPorTenant(t *testing.T) {
	h := newHarness(t)
	h.store.putTenant(newTenant(t, "t1", false))
	const n = 8
	for i := 0; i < n; i++ {
		h.store.putInvoice(newInvoice(fmt.Sprintf("i%d", i), "t1", true, testNow))
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := h.sign.Sign(context.Background(), "t1", id)
			errs <- err
		}(fmt.Sprintf("i%d", i))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	seen := map[int64]bool{}
	for i := 0; i < n; i++ {
		c := h.store.invoice(fmt.Sprintf("i%d", i)).Compliance.InvoiceCounter
		assert.False(t, seen[c], "contador repetido %d", c)
		seen[c] = true
	}
	assert.Equal(t, int64(n), h.store.tenant("t1").Compliance.InvoiceCounter)

	report, err := h.verifier().Verify(context.Background(), "t1")
	require.NoError(t, err)
	assert.True(t, report.Valid, "%+v", report.Break)
	assert.Equal(t, n, report.Checked)
}

func TestSign_NotaCreditoMarcaOriginal(t *testing.T) {
	h := newHarness(t)
	h.store.putTenant(newTenant(t, "t1", false))
	h.store.putInvoice(newInvoice("orig", "t1", true, testNow))
	_, err := h.sign.Sign(context.Background(), "t1", "orig")
	require.NoError(t, err)

	cn := newInvoice("cn1", "t1", true, testNow)
	cn.DocumentType = entity.DocumentTypeCreditNote
	cn.OriginalInvoiceID = "orig"
	cn.OriginalInvoiceNumber = "INV-orig"
	cn.AdjustmentReason = "devolución"
	h.store.putInvoice(cn)

	out, err := h.sign.Sign(context.Background(), "t1", "cn1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), out.Compliance.InvoiceCounter)
	assert.Contains(t, out.Compliance.SignedXML, "<cbc:InvoiceTypeCode name=\"0200000\">381</cbc:InvoiceTypeCode>")
	assert.Equal(t, entity.InvoiceStatusCredited, h.store.invoice("orig").Status)

	_, err = h.sign.Sign(context.Background(), "t1", "orig")
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestVerifyChain_DetectaManipulacion(t *testing.T) {
	h := newHarness(t)
	h.store.putTenant(newTenant(t, "t1", false))
	for i := 1; i <= 3; i++ {
		id := fmt.Sprintf("i%d", i)
		h.store.putInvoice(newInvoice(id, "t1", true, testNow))
		_, err := h.sign.Sign(context.Background(), "t1", id)
		require.NoError(t, err)
	}

	inv := h.store.invoice("i2")
	inv.Compliance.SignedXML = strings.Replace(inv.Compliance.SignedXML, "Laptop", "Tablet", 1)
	h.store.putInvoice(inv)

	report, err := h.verifier().Verify(context.Background(), "t1")
	require.NoError(t, err)
	assert.False(t, report.Valid)
	require.NotNil(t, report.Break)
	assert.Equal(t, "i2", report.Break.InvoiceID)
	assert.Equal(t, 1, report.Checked)
}

func TestVerifyChain_ColaDesalineada(t *testing.T) {
	h := newHarness(t)
	h.store.putTenant(newTenant(t, "t1", false))
	h.store.putInvoice(newInvoice("i1", "t1", true, testNow))
	_, err := h.sign.Sign(context.Background(), "t1", "i1")
	require.NoError(t, err)

	require.NoError(t, h.store.tenantRepo().EnsureChainTail(context.Background(), "t1", "aGFzaA==", 7))

	report, err := h.verifier().Verify(context.Background(), "t1")
	require.NoError(t, err)
	assert.False(t, report.Valid)
	require.NotNil(t, report.Break)
	assert.Empty(t, report.Break.InvoiceID)
}

var _ repository.TenantRepository = memTenants{}

func TestSign_NombreDescompuestoCoincideEnXMLyQR(t *testing.T) {
	h := newHarness(t)
	tn := newTenant(t, "t1", false)
	tn.Seller.Name = "Cafe\u0301 Riyadh"
	h.store.putTenant(tn)
	h.store.putInvoice(newInvoice("i1", "t1", true, testNow))

	inv, err := h.sign.Sign(context.Background(), "t1", "i1")
	require.NoError(t, err)

	qr, err := domainzatca.DecodeQRPayload(inv.Compliance.QRCodeData)
	require.NoError(t, err)
	assert.Equal(t, "Caf\u00e9 Riyadh", qr.SellerName)
	assert.Contains(t, inv.Compliance.SignedXML, "<cbc:RegistrationName>"+qr.SellerName+"</cbc:RegistrationName>")
	assert.NotContains(t, inv.Compliance.SignedXML, "e\u0301")
}

func TestSign_ClearanceYaTomadaPorOtroProcesoNoSeEnvia(t *testing.T) {
	h := newHarness(t)
	h.store.putTenant(newTenant(t, "t1", true))
	h.store.putInvoice(newInvoice("i1", "t1", false, testNow))
	h.store.beforeGuardedUpdate = func(stored *entity.Invoice) {
		at := testNow
		stored.Compliance.SubmissionStatus = entity.SubmissionSubmitted
		stored.Compliance.SubmittedAt = &at
	}

	_, err := h.sign.Sign(context.Background(), "t1", "i1")
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Empty(t, h.sub.cleared, "solo el proceso que marcó submitted envía")
	assert.Equal(t, entity.SubmissionSubmitted, h.store.invoice("i1").Compliance.SubmissionStatus)
}

func TestResubmit_ClearanceAtascadaEnSubmitted(t *testing.T) {
	h := newHarness(t)
	h.store.putTenant(newTenant(t, "t1", true))
	h.store.putInvoice(newInvoice("i1", "t1", false, testNow))
	h.sub.clear = func(infrazatca.SubmitRequest) submission.Result {
		return submission.Result{Kind: submission.Accepted, HTTPStatus: 200, ClearanceStatus: "CLEARED", ClearedXML: "PENsZWFyZWQvPg=="}
	}
	h.store.updateErr = func(inv *entity.Invoice) error {
		if inv.Compliance.SubmissionStatus == entity.SubmissionCleared {
			return errors.New("conexión perdida")
		}
		return nil
	}

	_, err := h.sign.Sign(context.Background(), "t1", "i1")
	require.Error(t, err)
	assert.Equal(t, entity.SubmissionSubmitted, h.store.invoice("i1").Compliance.SubmissionStatus)
	h.store.updateErr = nil

	resubmitAt := func(at time.Time) (*entity.Invoice, submission.Result, error) {
		uc := compliance.NewResubmitUseCase(h.store.invoiceRepo(), h.store.tenantRepo(), h.sub, compliance.DefaultConfig(), zerolog.Nop()).
			WithClock(func() time.Time { return at })
		return uc.Resubmit(context.Background(), "t1", "i1")
	}

	_, _, err = resubmitAt(testNow.Add(time.Minute))
	assert.ErrorIs(t, err, domain.ErrConflict, "dentro del periodo de gracia el envío sigue en curso")
	assert.Len(t, h.sub.cleared, 1)

	out, res, err := resubmitAt(testNow.Add(20 * time.Minute))
	require.NoError(t, err)
	assert.Equal(t, submission.Accepted, res.Kind)
	assert.Equal(t, entity.SubmissionCleared, out.Compliance.SubmissionStatus)
	assert.Len(t, h.sub.cleared, 2)

	stored := h.store.invoice("i1").Compliance
	assert.Equal(t, entity.SubmissionCleared, stored.SubmissionStatus)
	assert.Equal(t, "PENsZWFyZWQvPg==", stored.ClearedXML)
	assert.Equal(t, int64(1), h.store.tenant("t1").Compliance.InvoiceCounter)
}
