package dto

import (
	"time"

	"github.com/jhoicas/fatoora-api/internal/domain/entity"
	"github.com/jhoicas/fatoora-api/internal/domain/submission"
)

// InvoiceComplianceResponse estado de cumplimiento de una factura.
type InvoiceComplianceResponse struct {
	InvoiceID           string     `json:"invoice_id"`
	Number              string     `json:"number"`
	DocumentType        string     `json:"document_type"`
	IsSimplified        bool       `json:"is_simplified"`
	Status              string     `json:"status"`
	GrandTotal          string     `json:"grand_total"`
	UUID                string     `json:"uuid,omitempty"`
	InvoiceCounter      int64      `json:"invoice_counter"`
	PreviousInvoiceHash string     `json:"previous_invoice_hash,omitempty"`
	InvoiceHash         string     `json:"invoice_hash,omitempty"`
	DigitalSignature    string     `json:"digital_signature,omitempty"`
	PublicKeyHash       string     `json:"public_key_hash,omitempty"`
	QRCodeData          string     `json:"qr_code_data,omitempty"`
	SubmissionStatus    string     `json:"submission_status"`
	ClearanceStatus     string     `json:"clearance_status,omitempty"`
	ReportingStatus     string     `json:"reporting_status,omitempty"`
	SubmittedAt         *time.Time `json:"submitted_at,omitempty"`
	ClearedAt           *time.Time `json:"cleared_at,omitempty"`
	RetryCount          int        `json:"retry_count"`
	LastError           string     `json:"last_error,omitempty"`
	SignedXML           string     `json:"signed_xml,omitempty"`
	ClearedXML          string     `json:"cleared_xml,omitempty"` // base64, sellado por clearance
}

// SubmissionResultResponse resultado de un envío puntual.
type SubmissionResultResponse struct {
	Kind            string             `json:"kind"`
	HTTPStatus      int                `json:"http_status,omitempty"`
	ClearanceStatus string             `json:"clearance_status,omitempty"`
	ReportingStatus string             `json:"reporting_status,omitempty"`
	Warnings        []submission.Issue `json:"warnings,omitempty"`
	Errors          []submission.Issue `json:"errors,omitempty"`
	Cause           string             `json:"cause,omitempty"`
	Attempts        int                `json:"attempts,omitempty"`
}

// ResubmitResponse factura actualizada más el resultado del reenvío.
type ResubmitResponse struct {
	Invoice InvoiceComplianceResponse `json:"invoice"`
	Result  SubmissionResultResponse  `json:"result"`
}

// ToInvoiceComplianceResponse mapea la entidad. El XML firmado solo se incluye si se pide.
func ToInvoiceComplianceResponse(inv *entity.Invoice, includeXML bool) InvoiceComplianceResponse {
	c := inv.Compliance
	out := InvoiceComplianceResponse{
		InvoiceID:           inv.ID,
		Number:              inv.Number,
		DocumentType:        inv.DocumentType,
		IsSimplified:        inv.IsSimplified,
		Status:              inv.Status,
		GrandTotal:          inv.GrandTotal.StringFixed(2),
		UUID:                c.UUID,
		InvoiceCounter:      c.InvoiceCounter,
		PreviousInvoiceHash: c.PreviousInvoiceHash,
		InvoiceHash:         c.InvoiceHash,
		DigitalSignature:    c.DigitalSignature,
		PublicKeyHash:       c.PublicKeyHash,
		QRCodeData:          c.QRCodeData,
		SubmissionStatus:    string(c.SubmissionStatus),
		ClearanceStatus:     c.ClearanceStatus,
		ReportingStatus:     c.ReportingStatus,
		SubmittedAt:         c.SubmittedAt,
		ClearedAt:           c.ClearedAt,
		RetryCount:          c.RetryCount,
		LastError:           c.LastError,
	}
	if includeXML {
		out.SignedXML = c.SignedXML
		out.ClearedXML = c.ClearedXML
	}
	return out
}

// ToSubmissionResultResponse mapea el resultado etiquetado.
func ToSubmissionResultResponse(r submission.Result) SubmissionResultResponse {
	return SubmissionResultResponse{
		Kind:            r.Kind.String(),
		HTTPStatus:      r.HTTPStatus,
		ClearanceStatus: r.ClearanceStatus,
		ReportingStatus: r.ReportingStatus,
		Warnings:        r.Warnings,
		Errors:          r.Errors,
		Cause:           r.Cause,
		Attempts:        r.Attempts,
	}
}
