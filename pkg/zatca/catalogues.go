// Package zatca contiene catálogos y validaciones alineados a la especificación
// de factura electrónica (Fatoora, fase 2) de la autoridad tributaria saudí.
package zatca

// =============================================================================
// Tipos de documento (UNTDID 1001) - cbc:InvoiceTypeCode
// =============================================================================

const (
	InvoiceTypeCodeTaxInvoice = "388" // Factura
	InvoiceTypeCodeDebitNote  = "383" // Nota débito
	InvoiceTypeCodeCreditNote = "381" // Nota crédito
)

// =============================================================================
// Subtipo de transacción - atributo @name de cbc:InvoiceTypeCode
// NNPNESB: posiciones 1-2 indican estándar (01) o simplificada (02).
// =============================================================================

const (
	InvoiceSubtypeStandard   = "0100000" // B2B, requiere clearance
	InvoiceSubtypeSimplified = "0200000" // B2C, se reporta en 24 h
)

// =============================================================================
// Categorías de IVA (UNCL 5305)
// =============================================================================

const (
	TaxCategoryStandard    = "S" // Tasa estándar
	TaxCategoryZeroRated   = "Z" // Tasa cero
	TaxCategoryExempt      = "E" // Exento
	TaxCategoryOutOfScope  = "O" // Fuera del alcance del IVA
	TaxSchemeVAT           = "VAT"
	DefaultCurrency        = "SAR"
	DefaultCountryCode     = "SA"
	DefaultUnitCode        = "PCE"
	ProfileIDReporting     = "reporting:1.0"
	PaymentMeansCodeCredit = "10" // Efectivo; la nota lleva el motivo en InstructionNote
)

// ValidTaxCategories categorías de IVA admitidas en líneas.
var ValidTaxCategories = map[string]bool{
	TaxCategoryStandard:   true,
	TaxCategoryZeroRated:  true,
	TaxCategoryExempt:     true,
	TaxCategoryOutOfScope: true,
}

// =============================================================================
// Identificadores de documento adicionales (cac:AdditionalDocumentReference)
// =============================================================================

const (
	DocumentReferenceICV = "ICV" // contador de factura
	DocumentReferencePIH = "PIH" // hash de la factura anterior
	DocumentReferenceQR  = "QR"
)

// =============================================================================
// Rutas y cabeceras del API de cumplimiento
// =============================================================================

const (
	PathClearance     = "/invoices/clearance/single"
	PathReporting     = "/invoices/reporting/single"
	HeaderAcceptVer   = "Accept-Version"
	HeaderClearance   = "Clearance-Status"
	APIVersion        = "V2"
	ValidationWarning = "WARNING"
	ValidationPass    = "PASS"
	ValidationError   = "ERROR"
	ClearanceCleared  = "CLEARED"
	ReportingReported = "REPORTED"
)
