package compliance

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strconv"

	"github.com/jhoicas/fatoora-api/internal/domain/entity"
	"github.com/jhoicas/fatoora-api/internal/domain/repository"
	domainzatca "github.com/jhoicas/fatoora-api/internal/domain/zatca"
	infrazatca "github.com/jhoicas/fatoora-api/internal/infrastructure/zatca"
	"github.com/jhoicas/fatoora-api/internal/infrastructure/zatca/signer"
	"github.com/jhoicas/fatoora-api/pkg/zatca"
)

// ChainBreak primer eslabón que no verifica.
type ChainBreak struct {
	InvoiceID string `json:"invoice_id,omitempty"`
	Counter   int64  `json:"counter"`
	Reason    string `json:"reason"`
}

// ChainReport resultado de recorrer la cadena de un tenant.
type ChainReport struct {
	TenantID    string      `json:"tenant_id"`
	Checked     int         `json:"checked"`
	Valid       bool        `json:"valid"`
	TailHash    string      `json:"tail_hash"`
	TailCounter int64       `json:"tail_counter"`
	Break       *ChainBreak `json:"break,omitempty"`
}

// VerifyChainUseCase recorre las facturas firmadas de un tenant recalculando hashes y firmas.
type VerifyChainUseCase struct {
	invoiceRepo repository.InvoiceRepository
	tenantRepo  repository.TenantRepository
	signer      zatca.Signer
	keys        *KeyResolver
}

// NewVerifyChainUseCase construye el caso de uso.
func NewVerifyChainUseCase(invoiceRepo repository.InvoiceRepository, tenantRepo repository.TenantRepository, s zatca.Signer, keys *KeyResolver) *VerifyChainUseCase {
	return &VerifyChainUseCase{invoiceRepo: invoiceRepo, tenantRepo: tenantRepo, signer: s, keys: keys}
}

// Verify devuelve el reporte de la cadena; error solo ante fallos de lectura o configuración.
func (uc *VerifyChainUseCase) Verify(ctx context.Context, tenantID string) (*ChainReport, error) {
	tenant, err := uc.tenantRepo.GetByID(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("cargar tenant: %w", err)
	}
	km, err := uc.keys.Resolve(tenant)
	if err != nil {
		return nil, err
	}
	invoices, err := uc.invoiceRepo.ListSignedByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listar firmadas: %w", err)
	}

	pubHash, err := signer.PublicKeyHash(&km.Key.PublicKey)
	if err != nil {
		return nil, &ConfigError{Op: "llave pública", Err: err}
	}

	report := &ChainReport{TenantID: tenantID, Valid: true}
	prev := domainzatca.SeedHash
	var counter int64
	for _, inv := range invoices {
		counter++
		if reason := uc.checkLink(inv, prev, counter, &km.Key.PublicKey, pubHash); reason != "" {
			report.Valid = false
			report.Break = &ChainBreak{InvoiceID: inv.ID, Counter: inv.Compliance.InvoiceCounter, Reason: reason}
			return report, nil
		}
		report.Checked++
		prev = inv.Compliance.InvoiceHash
		report.TailHash = prev
		report.TailCounter = counter
	}

	tc := tenant.Compliance
	if report.Checked > 0 && (tc.LastInvoiceHash != report.TailHash || tc.InvoiceCounter != report.TailCounter) {
		report.Valid = false
		report.Break = &ChainBreak{
			Counter: tc.InvoiceCounter,
			Reason:  fmt.Sprintf("la cola del tenant (%d) no coincide con la última factura firmada (%d)", tc.InvoiceCounter, report.TailCounter),
		}
	}
	return report, nil
}

// checkLink devuelve el motivo del fallo o "" si el eslabón es válido. La firma solo se
// verifica con la llave vigente; facturas firmadas con una llave anterior se validan por hash.
func (uc *VerifyChainUseCase) checkLink(inv *entity.Invoice, prev string, counter int64, pub *ecdsa.PublicKey, pubHash string) string {
	c := inv.Compliance
	if c.InvoiceCounter != counter {
		return fmt.Sprintf("contador %d, se esperaba %d", c.InvoiceCounter, counter)
	}
	if c.PreviousInvoiceHash != prev {
		return "el hash anterior no coincide con la factura previa"
	}

	fields, err := infrazatca.ExtractSignedFields(c.SignedXML)
	if err != nil {
		return err.Error()
	}
	if fields.PreviousHash != prev {
		return "el PIH del documento no coincide con la factura previa"
	}
	if fields.Counter != strconv.FormatInt(counter, 10) {
		return "el ICV del documento no coincide con el contador"
	}
	if fields.UUID != c.UUID {
		return "el UUID del documento no coincide"
	}

	recomputed := domainzatca.ComputeChain(infrazatca.StripEmbedded(c.SignedXML), prev)
	if recomputed.ChainedHash != c.InvoiceHash {
		return "el hash recalculado no coincide con el almacenado"
	}
	if fields.InvoiceDigest != c.InvoiceHash {
		return "el digest de la firma no coincide con el hash almacenado"
	}

	if c.PublicKeyHash == pubHash {
		if err := uc.signer.Verify(c.InvoiceHash, fields.SignatureValue, pub); err != nil {
			return "firma inválida: " + err.Error()
		}
	}
	return ""
}
