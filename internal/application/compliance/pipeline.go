package compliance

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/jhoicas/fatoora-api/internal/domain/entity"
	domainzatca "github.com/jhoicas/fatoora-api/internal/domain/zatca"
	infrazatca "github.com/jhoicas/fatoora-api/internal/infrastructure/zatca"
	"github.com/jhoicas/fatoora-api/internal/infrastructure/zatca/signer"
	"github.com/jhoicas/fatoora-api/pkg/zatca"
)

// DocumentInput es lo necesario para producir el documento firmado de una factura.
type DocumentInput struct {
	Invoice      *entity.Invoice
	Seller       entity.Party
	Key          *ecdsa.PrivateKey
	Cert         *x509.Certificate // opcional
	UUID         string
	Counter      int64
	PreviousHash string // vacío = semilla
	SigningTime  time.Time
}

// Artifacts es el resultado de componer, encadenar, firmar y embeber.
type Artifacts struct {
	UnsignedXML   string
	Chain         domainzatca.ChainHash
	Signature     string
	PublicKeyHash string
	SignedXML     string
	QRPayload     string
	QRImage       string // data URL PNG
}

// DocumentPipeline encadena Composer → Canonicalizer → Hash-Chain → Signer → QR/TLV → embebido.
// Es puro respecto a su entrada: no lee ni escribe estado.
type DocumentPipeline struct {
	builder *infrazatca.XMLBuilderService
	signer  zatca.Signer
}

// NewDocumentPipeline crea el pipeline.
func NewDocumentPipeline(builder *infrazatca.XMLBuilderService, s zatca.Signer) *DocumentPipeline {
	return &DocumentPipeline{builder: builder, signer: s}
}

// Produce genera los artefactos de cumplimiento.
func (p *DocumentPipeline) Produce(in DocumentInput) (*Artifacts, error) {
	if in.Key == nil {
		return nil, &ConfigError{Op: "firma", Err: fmt.Errorf("llave privada no disponible")}
	}
	vat := zatca.NormalizeVATNumber(in.Seller.VATNumber)
	if err := zatca.ValidateVATNumber(vat); err != nil {
		return nil, &ConfigError{Op: "número de IVA del emisor", Err: err}
	}

	// XML y QR leen las mismas cadenas ya normalizadas.
	seller := nfcParty(in.Seller)
	doc := *in.Invoice
	if doc.Buyer != nil {
		buyer := nfcParty(*doc.Buyer)
		doc.Buyer = &buyer
	}

	unsigned, err := p.builder.Build(&infrazatca.InvoiceBuildContext{
		Invoice:             &doc,
		Seller:              seller,
		UUID:                in.UUID,
		Counter:             in.Counter,
		PreviousInvoiceHash: in.PreviousHash,
	})
	if err != nil {
		return nil, fmt.Errorf("componer XML: %w", err)
	}
	chain := domainzatca.ComputeChain(string(unsigned), in.PreviousHash)

	sig, err := p.signer.Sign(chain.ChainedHash, in.Key)
	if err != nil {
		return nil, fmt.Errorf("firmar: %w", err)
	}
	pkHash, err := signer.PublicKeyHash(&in.Key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("hash de llave pública: %w", err)
	}
	pkB64, err := signer.PublicKeyBase64(&in.Key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("llave pública: %w", err)
	}

	blk := infrazatca.SignatureBlock{
		InvoiceDigest:  chain.ChainedHash,
		SignatureValue: sig,
		PublicKeyHash:  pkHash,
		SigningTime:    in.SigningTime.UTC().Format(domainzatca.QRTimestampLayout),
	}
	if in.Cert != nil {
		blk.Certificate = base64.StdEncoding.EncodeToString(in.Cert.Raw)
		blk.CertDigest = signer.CertDigest(in.Cert)
	}
	signed, err := infrazatca.EmbedSignature(string(unsigned), infrazatca.BuildSignatureExtension(blk))
	if err != nil {
		return nil, err
	}

	// Los montos del QR salen de los mismos totales que el XML.
	totals := domainzatca.ComputeTotals(in.Invoice.Lines)
	qrPayload, err := domainzatca.EncodeQRPayload(domainzatca.QRFields{
		SellerName:           seller.Name,
		VATNumber:            vat,
		Timestamp:            in.Invoice.IssueDate.UTC().Format(domainzatca.QRTimestampLayout),
		InvoiceTotal:         totals.TaxInclusive.StringFixed(2),
		VATTotal:             totals.Tax.StringFixed(2),
		InvoiceHash:          chain.ChainedHash,
		Signature:            sig,
		PublicKey:            pkB64,
		CertificateSignature: signer.CertSignature(in.Cert),
	})
	if err != nil {
		return nil, fmt.Errorf("payload QR: %w", err)
	}
	signed, err = infrazatca.EmbedQR(signed, qrPayload)
	if err != nil {
		return nil, err
	}
	image, err := infrazatca.QRDataURL(qrPayload)
	if err != nil {
		return nil, fmt.Errorf("imagen QR: %w", err)
	}

	return &Artifacts{
		UnsignedXML:   string(unsigned),
		Chain:         chain,
		Signature:     sig,
		PublicKeyHash: pkHash,
		SignedXML:     signed,
		QRPayload:     qrPayload,
		QRImage:       image,
	}, nil
}

// nfcParty normaliza a NFC los textos de la parte.
func nfcParty(p entity.Party) entity.Party {
	for _, f := range []*string{
		&p.Name, &p.OtherID, &p.Street, &p.BuildingNumber,
		&p.District, &p.City, &p.PostalZone,
	} {
		*f = norm.NFC.String(*f)
	}
	return p
}

// apply copia los artefactos a la factura y la deja pendiente de envío.
func (a *Artifacts) apply(inv *entity.Invoice, uuid string, counter int64) {
	c := &inv.Compliance
	c.UUID = uuid
	c.InvoiceCounter = counter
	c.PreviousInvoiceHash = a.Chain.PreviousHash
	c.InvoiceHash = a.Chain.ChainedHash
	c.DigitalSignature = a.Signature
	c.PublicKeyHash = a.PublicKeyHash
	c.SignedXML = a.SignedXML
	c.QRCodeData = a.QRPayload
	c.QRCodeImage = a.QRImage
	c.SubmissionStatus = entity.SubmissionPending
	c.LastError = ""
	if inv.Status == "" || inv.Status == entity.InvoiceStatusDraft {
		inv.Status = entity.InvoiceStatusApproved
	}
}
