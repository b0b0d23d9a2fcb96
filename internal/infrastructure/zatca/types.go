// Package zatca implementa la generación de XML UBL 2.1, el embebido de firma y QR,
// y el cliente HTTP del API de cumplimiento (Fatoora).
package zatca

import (
	"github.com/jhoicas/fatoora-api/internal/domain/entity"
)

// InvoiceBuildContext contexto con todos los datos necesarios para construir el XML.
type InvoiceBuildContext struct {
	Invoice *entity.Invoice
	Seller  entity.Party // instantánea del emisor (tenant)

	UUID                string // cbc:UUID, asignado una sola vez
	Counter             int64  // ICV
	PreviousInvoiceHash string // PIH; vacío = semilla
}

// SignatureBlock son los valores que se embeben en ext:UBLExtensions.
type SignatureBlock struct {
	InvoiceDigest  string // hash encadenado
	SignatureValue string
	PublicKeyHash  string
	Certificate    string // DER del certificado en base64, opcional
	CertDigest     string // base64(SHA256(DER del certificado)), opcional
	SigningTime    string // 2006-01-02T15:04:05Z
}

// SignedFields son los campos leídos de un documento firmado.
type SignedFields struct {
	UUID           string
	Counter        string
	PreviousHash   string
	InvoiceDigest  string
	SignatureValue string
	QRPayload      string
}
