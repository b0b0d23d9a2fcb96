package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Estados de negocio de la factura (capa CRUD).
const (
	InvoiceStatusDraft     = "draft"
	InvoiceStatusApproved  = "approved"
	InvoiceStatusSent      = "sent"
	InvoiceStatusCancelled = "cancelled"
	InvoiceStatusCredited  = "credited" // Anulada por una nota crédito firmada
)

// Tipos de documento soportados.
const (
	DocumentTypeInvoice    = "invoice"
	DocumentTypeCreditNote = "credit_note"
	DocumentTypeDebitNote  = "debit_note"
)

// SubmissionStatus es el estado de cumplimiento frente a la autoridad tributaria.
// Vacío significa que la factura aún no ha sido firmada (borrador).
type SubmissionStatus string

const (
	SubmissionNone      SubmissionStatus = ""
	SubmissionPending   SubmissionStatus = "pending"   // Firmada, pendiente de envío
	SubmissionSubmitted SubmissionStatus = "submitted" // Enviada, respuesta pendiente
	SubmissionCleared   SubmissionStatus = "cleared"   // Aprobada en clearance (B2B)
	SubmissionReported  SubmissionStatus = "reported"  // Reportada (B2C)
	SubmissionRejected  SubmissionStatus = "rejected"
	SubmissionWarning   SubmissionStatus = "warning" // Aceptada con advertencias; requiere revisión
)

// Invoice representa la cabecera de una factura o nota.
type Invoice struct {
	ID           string
	TenantID     string
	CustomerID   string
	Number       string
	DocumentType string
	// IsSimplified marca documentos B2C (reporting). Los B2B requieren clearance.
	IsSimplified bool
	Status       string
	Currency     string
	IssueDate    time.Time
	SupplyDate   *time.Time

	Subtotal      decimal.Decimal // Suma de líneas después de descuentos
	DiscountTotal decimal.Decimal
	TaxAmount     decimal.Decimal
	GrandTotal    decimal.Decimal

	// Solo notas crédito/débito.
	OriginalInvoiceID     string
	OriginalInvoiceNumber string
	AdjustmentReason      string

	Buyer *Party // nil en documentos simplificados sin comprador identificado
	Lines []InvoiceLine

	Compliance InvoiceCompliance

	CreatedAt time.Time
	UpdatedAt time.Time
}

// InvoiceCompliance agrupa los artefactos de cumplimiento de una factura.
type InvoiceCompliance struct {
	UUID                string // Se asigna una sola vez
	InvoiceCounter      int64
	PreviousInvoiceHash string
	InvoiceHash         string
	DigitalSignature    string
	PublicKeyHash       string
	SignedXML           string
	ClearedXML          string // documento sellado devuelto por clearance
	QRCodeData          string // TLV en base64
	QRCodeImage         string // data URL PNG
	SubmissionStatus    SubmissionStatus
	ClearanceStatus     string
	ReportingStatus     string
	ZatcaResponse       string // cuerpo crudo de la última respuesta
	SubmittedAt         *time.Time
	ClearedAt           *time.Time
	RetryCount          int
	LastError           string
}

// IsSigned indica si la factura ya tiene documento firmado.
func (i *Invoice) IsSigned() bool {
	return i.Compliance.SignedXML != ""
}

// IsCreditNote indica si el documento es una nota crédito.
func (i *Invoice) IsCreditNote() bool {
	return i.DocumentType == DocumentTypeCreditNote
}

// RequiresClearance indica si el documento sigue el flujo B2B (clearance síncrono).
func (i *Invoice) RequiresClearance() bool {
	return !i.IsSimplified
}
