package zatca

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"

	"github.com/jhoicas/fatoora-api/internal/domain/entity"
	domainzatca "github.com/jhoicas/fatoora-api/internal/domain/zatca"
	"github.com/jhoicas/fatoora-api/pkg/zatca"

	"github.com/shopspring/decimal"
)

// Namespaces oficiales UBL 2.1.
const (
	NsInvoice = "urn:oasis:names:specification:ubl:schema:xsd:Invoice-2"
	NsCac     = "urn:oasis:names:specification:ubl:schema:xsd:CommonAggregateComponents-2"
	NsCbc     = "urn:oasis:names:specification:ubl:schema:xsd:CommonBasicComponents-2"
	NsExt     = "urn:oasis:names:specification:ubl:schema:xsd:CommonExtensionComponents-2"
)

// XMLBuilderService construye el XML UBL 2.1 del documento (sin firma ni QR).
// La salida es determinista: mismos datos, mismos bytes.
type XMLBuilderService struct{}

// NewXMLBuilderService crea el servicio.
func NewXMLBuilderService() *XMLBuilderService {
	return &XMLBuilderService{}
}

// Build genera el documento. Falla si la factura no pasa la validación de totales.
func (s *XMLBuilderService) Build(ctx *InvoiceBuildContext) ([]byte, error) {
	if ctx == nil || ctx.Invoice == nil {
		return nil, fmt.Errorf("zatca: falta la factura en el contexto")
	}
	if err := domainzatca.ValidateInvoice(ctx.Invoice); err != nil {
		return nil, err
	}
	if ctx.UUID == "" || ctx.Counter <= 0 {
		return nil, fmt.Errorf("zatca: uuid y contador son obligatorios")
	}
	inv := ctx.Invoice
	totals := domainzatca.ComputeTotals(inv.Lines)
	currency := inv.Currency
	if currency == "" {
		currency = zatca.DefaultCurrency
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")

	root := xml.StartElement{
		Name: xml.Name{Local: "Invoice"},
		Attr: []xml.Attr{
			{Name: xml.Name{Local: "xmlns"}, Value: NsInvoice},
			{Name: xml.Name{Local: "xmlns:cac"}, Value: NsCac},
			{Name: xml.Name{Local: "xmlns:cbc"}, Value: NsCbc},
			{Name: xml.Name{Local: "xmlns:ext"}, Value: NsExt},
		},
	}
	if err := enc.EncodeToken(root); err != nil {
		return nil, err
	}

	// ext:UBLExtensions se inserta al firmar, inmediatamente antes de cbc:ProfileID.
	writeCbc(enc, "ProfileID", zatca.ProfileIDReporting)
	writeCbc(enc, "ID", inv.Number)
	writeCbc(enc, "UUID", ctx.UUID)
	issue := inv.IssueDate.UTC()
	writeCbc(enc, "IssueDate", issue.Format("2006-01-02"))
	writeCbc(enc, "IssueTime", issue.Format("15:04:05"))
	writeCbcWithAttr(enc, "InvoiceTypeCode", typeCode(inv), "name", subtypeCode(inv))
	writeCbc(enc, "DocumentCurrencyCode", currency)
	writeCbc(enc, "TaxCurrencyCode", currency)
	writeCbc(enc, "LineCountNumeric", strconv.Itoa(len(inv.Lines)))

	if inv.IsCreditNote() || inv.DocumentType == entity.DocumentTypeDebitNote {
		start(enc, "cac:BillingReference")
		start(enc, "cac:InvoiceDocumentReference")
		writeCbc(enc, "ID", inv.OriginalInvoiceNumber)
		end(enc, "cac:InvoiceDocumentReference")
		end(enc, "cac:BillingReference")
	}

	// ICV y PIH forman parte del contenido hasheado.
	start(enc, "cac:AdditionalDocumentReference")
	writeCbc(enc, "ID", zatca.DocumentReferenceICV)
	writeCbc(enc, "UUID", strconv.FormatInt(ctx.Counter, 10))
	end(enc, "cac:AdditionalDocumentReference")

	start(enc, "cac:AdditionalDocumentReference")
	writeCbc(enc, "ID", zatca.DocumentReferencePIH)
	start(enc, "cac:Attachment")
	writeCbcWithAttr(enc, "EmbeddedDocumentBinaryObject", domainzatca.PreviousOrSeed(ctx.PreviousInvoiceHash), "mimeCode", "text/plain")
	end(enc, "cac:Attachment")
	end(enc, "cac:AdditionalDocumentReference")

	// El QR se inserta al firmar, inmediatamente antes de cac:AccountingSupplierParty.
	s.writeParty(enc, "cac:AccountingSupplierParty", ctx.Seller)
	if !inv.IsSimplified && inv.Buyer != nil {
		s.writeParty(enc, "cac:AccountingCustomerParty", *inv.Buyer)
	}

	if inv.SupplyDate != nil {
		start(enc, "cac:Delivery")
		writeCbc(enc, "ActualDeliveryDate", inv.SupplyDate.UTC().Format("2006-01-02"))
		end(enc, "cac:Delivery")
	}

	start(enc, "cac:PaymentMeans")
	writeCbc(enc, "PaymentMeansCode", zatca.PaymentMeansCodeCredit)
	if inv.AdjustmentReason != "" {
		writeCbc(enc, "InstructionNote", inv.AdjustmentReason)
	}
	end(enc, "cac:PaymentMeans")

	s.writeTaxTotal(enc, totals, currency)
	s.writeLegalMonetaryTotal(enc, inv, totals, currency)
	for i, line := range inv.Lines {
		s.writeInvoiceLine(enc, i+1, line, currency)
	}

	if err := enc.EncodeToken(root.End()); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func typeCode(inv *entity.Invoice) string {
	switch inv.DocumentType {
	case entity.DocumentTypeCreditNote:
		return zatca.InvoiceTypeCodeCreditNote
	case entity.DocumentTypeDebitNote:
		return zatca.InvoiceTypeCodeDebitNote
	default:
		return zatca.InvoiceTypeCodeTaxInvoice
	}
}

func subtypeCode(inv *entity.Invoice) string {
	if inv.IsSimplified {
		return zatca.InvoiceSubtypeSimplified
	}
	return zatca.InvoiceSubtypeStandard
}

func (s *XMLBuilderService) writeParty(enc *xml.Encoder, wrapper string, p entity.Party) {
	start(enc, wrapper)
	start(enc, "cac:Party")

	if p.OtherID != "" {
		scheme := p.OtherIDScheme
		if scheme == "" {
			scheme = "CRN"
		}
		start(enc, "cac:PartyIdentification")
		writeCbcWithAttr(enc, "ID", p.OtherID, "schemeID", scheme)
		end(enc, "cac:PartyIdentification")
	}

	start(enc, "cac:PostalAddress")
	if p.Street != "" {
		writeCbc(enc, "StreetName", p.Street)
	}
	if p.BuildingNumber != "" {
		writeCbc(enc, "BuildingNumber", p.BuildingNumber)
	}
	if p.District != "" {
		writeCbc(enc, "CitySubdivisionName", p.District)
	}
	if p.City != "" {
		writeCbc(enc, "CityName", p.City)
	}
	if p.PostalZone != "" {
		writeCbc(enc, "PostalZone", p.PostalZone)
	}
	country := p.CountryCode
	if country == "" {
		country = zatca.DefaultCountryCode
	}
	start(enc, "cac:Country")
	writeCbc(enc, "IdentificationCode", country)
	end(enc, "cac:Country")
	end(enc, "cac:PostalAddress")

	if p.VATNumber != "" {
		start(enc, "cac:PartyTaxScheme")
		writeCbc(enc, "CompanyID", zatca.NormalizeVATNumber(p.VATNumber))
		start(enc, "cac:TaxScheme")
		writeCbc(enc, "ID", zatca.TaxSchemeVAT)
		end(enc, "cac:TaxScheme")
		end(enc, "cac:PartyTaxScheme")
	}

	start(enc, "cac:PartyLegalEntity")
	writeCbc(enc, "RegistrationName", p.Name)
	end(enc, "cac:PartyLegalEntity")

	end(enc, "cac:Party")
	end(enc, wrapper)
}

// writeTaxTotal escribe dos TaxTotal: el total en moneda del documento y el desglose por grupo.
func (s *XMLBuilderService) writeTaxTotal(enc *xml.Encoder, t domainzatca.Totals, currency string) {
	start(enc, "cac:TaxTotal")
	writeCbcAmount(enc, "TaxAmount", formatDecimal(t.Tax), currency)
	end(enc, "cac:TaxTotal")

	start(enc, "cac:TaxTotal")
	writeCbcAmount(enc, "TaxAmount", formatDecimal(t.Tax), currency)
	for _, g := range t.Groups {
		start(enc, "cac:TaxSubtotal")
		writeCbcAmount(enc, "TaxableAmount", formatDecimal(g.TaxableAmount), currency)
		writeCbcAmount(enc, "TaxAmount", formatDecimal(g.TaxAmount), currency)
		s.writeTaxCategory(enc, g.Category, g.Rate, g.ExemptionReason)
		end(enc, "cac:TaxSubtotal")
	}
	end(enc, "cac:TaxTotal")
}

func (s *XMLBuilderService) writeTaxCategory(enc *xml.Encoder, category string, rate decimal.Decimal, exemption string) {
	start(enc, "cac:TaxCategory")
	writeCbc(enc, "ID", category)
	writeCbc(enc, "Percent", formatDecimal(rate))
	if exemption != "" && category != zatca.TaxCategoryStandard {
		writeCbc(enc, "TaxExemptionReason", exemption)
	}
	start(enc, "cac:TaxScheme")
	writeCbc(enc, "ID", zatca.TaxSchemeVAT)
	end(enc, "cac:TaxScheme")
	end(enc, "cac:TaxCategory")
}

func (s *XMLBuilderService) writeLegalMonetaryTotal(enc *xml.Encoder, inv *entity.Invoice, t domainzatca.Totals, currency string) {
	start(enc, "cac:LegalMonetaryTotal")
	writeCbcAmount(enc, "LineExtensionAmount", formatDecimal(t.LineExtension), currency)
	writeCbcAmount(enc, "TaxExclusiveAmount", formatDecimal(t.TaxExclusive), currency)
	writeCbcAmount(enc, "TaxInclusiveAmount", formatDecimal(t.TaxInclusive), currency)
	writeCbcAmount(enc, "AllowanceTotalAmount", formatDecimal(inv.DiscountTotal), currency)
	writeCbcAmount(enc, "PayableAmount", formatDecimal(inv.GrandTotal), currency)
	end(enc, "cac:LegalMonetaryTotal")
}

func (s *XMLBuilderService) writeInvoiceLine(enc *xml.Encoder, lineNum int, line entity.InvoiceLine, currency string) {
	unitCode := line.UnitCode
	if unitCode == "" {
		unitCode = zatca.DefaultUnitCode
	}
	lineTotal := line.LineTotal()
	lineTax := line.TaxAmount()

	start(enc, "cac:InvoiceLine")
	writeCbc(enc, "ID", strconv.Itoa(lineNum))
	writeCbcWithAttr(enc, "InvoicedQuantity", formatDecimal(line.Quantity), "unitCode", unitCode)
	writeCbcAmount(enc, "LineExtensionAmount", formatDecimal(lineTotal), currency)

	if line.Discount.IsPositive() {
		start(enc, "cac:AllowanceCharge")
		writeCbc(enc, "ChargeIndicator", "false")
		writeCbc(enc, "AllowanceChargeReason", "discount")
		writeCbcAmount(enc, "Amount", formatDecimal(line.Discount), currency)
		end(enc, "cac:AllowanceCharge")
	}

	start(enc, "cac:TaxTotal")
	writeCbcAmount(enc, "TaxAmount", formatDecimal(lineTax), currency)
	writeCbcAmount(enc, "RoundingAmount", formatDecimal(lineTotal.Add(lineTax)), currency)
	end(enc, "cac:TaxTotal")

	start(enc, "cac:Item")
	desc := line.Description
	if desc == "" {
		desc = "Item " + strconv.Itoa(lineNum)
	}
	writeCbc(enc, "Name", desc)
	start(enc, "cac:ClassifiedTaxCategory")
	writeCbc(enc, "ID", line.TaxCategory)
	writeCbc(enc, "Percent", formatDecimal(line.TaxRate))
	start(enc, "cac:TaxScheme")
	writeCbc(enc, "ID", zatca.TaxSchemeVAT)
	end(enc, "cac:TaxScheme")
	end(enc, "cac:ClassifiedTaxCategory")
	end(enc, "cac:Item")

	start(enc, "cac:Price")
	writeCbcAmount(enc, "PriceAmount", formatDecimal(line.UnitPrice), currency)
	end(enc, "cac:Price")

	end(enc, "cac:InvoiceLine")
}

// ── helpers ───────────────────────────────────────────────────────────────────

// Los nombres llevan el prefijo en Local para que el encoder no reescriba namespaces.

func start(enc *xml.Encoder, name string) {
	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Local: name}})
}

func end(enc *xml.Encoder, name string) {
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Local: name}})
}

func writeCbc(enc *xml.Encoder, local, value string) {
	start(enc, "cbc:"+local)
	_ = enc.EncodeToken(xml.CharData(value))
	end(enc, "cbc:"+local)
}

func writeCbcAmount(enc *xml.Encoder, local, value string, currency string) {
	writeCbcWithAttr(enc, local, value, "currencyID", currency)
}

func writeCbcWithAttr(enc *xml.Encoder, local, value, attrLocal, attrValue string) {
	_ = enc.EncodeToken(xml.StartElement{
		Name: xml.Name{Local: "cbc:" + local},
		Attr: []xml.Attr{{Name: xml.Name{Local: attrLocal}, Value: attrValue}},
	})
	_ = enc.EncodeToken(xml.CharData(value))
	end(enc, "cbc:"+local)
}

func formatDecimal(d decimal.Decimal) string {
	return d.Round(2).StringFixed(2)
}
