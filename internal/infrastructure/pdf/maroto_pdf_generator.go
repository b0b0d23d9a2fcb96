// Package pdf implementa la representación gráfica de un documento firmado.
//
// Layout de la página A4:
//
//	┌─────────────────────────────────────────────────────────────┐
//	│  HEADER: Emisor + N° IVA     │  Tipo, N° documento, fecha   │
//	│  ─────────────────────────────────────────────────────────  │
//	│  EMISOR: dirección                                          │
//	│  COMPRADOR (solo documentos estándar)                       │
//	│  ─────────────────────────────────────────────────────────  │
//	│  TABLA: Cant | Descripción | P.Unit | IVA | Total línea       │
//	│  ─────────────────────────────────────────────────────────  │
//	│  TOTALES: sin IVA / IVA por grupo / total con IVA            │
//	│  ─────────────────────────────────────────────────────────  │
//	│  FOOTER: QR + UUID + ICV + hash                             │
//	└─────────────────────────────────────────────────────────────┘
package pdf

import (
	"context"
	"fmt"
	"strings"

	maroto "github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/code"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/fatoora-api/internal/application/compliance"
	"github.com/jhoicas/fatoora-api/internal/domain/entity"
	domainzatca "github.com/jhoicas/fatoora-api/internal/domain/zatca"
	"github.com/jhoicas/fatoora-api/pkg/zatca"
)

// ── Paleta de colores ─────────────────────────────────────────────────────────

var (
	colorPrimary = &props.Color{Red: 0, Green: 98, Blue: 65}
	colorGray    = &props.Color{Red: 100, Green: 100, Blue: 100}
)

var _ compliance.InvoicePDFGenerator = (*MarotoPDFGenerator)(nil)

// ── Generator ─────────────────────────────────────────────────────────────────

// MarotoPDFGenerator implementa compliance.InvoicePDFGenerator usando Maroto v2.
type MarotoPDFGenerator struct{}

// NewMarotoPDFGenerator construye el generador.
func NewMarotoPDFGenerator() *MarotoPDFGenerator { return &MarotoPDFGenerator{} }

// GenerateInvoicePDF genera el PDF y devuelve sus bytes.
func (g *MarotoPDFGenerator) GenerateInvoicePDF(_ context.Context, invoice *entity.Invoice, tenant *entity.Tenant) ([]byte, error) {
	seller := tenant.Seller
	if seller.Name == "" {
		seller.Name = tenant.Name
	}
	cfg := config.NewBuilder().
		WithPageSize(pagesize.A4).
		WithLeftMargin(10).WithRightMargin(10).
		WithTopMargin(10).WithBottomMargin(10).
		WithDefaultFont(&props.Font{Family: "helvetica", Size: 9}).
		WithTitle(documentTitle(invoice), true).
		WithAuthor(seller.Name, true).
		Build()

	m := maroto.New(cfg)
	currency := nonEmpty(invoice.Currency, zatca.DefaultCurrency)
	totals := domainzatca.ComputeTotals(invoice.Lines)

	m.AddRows(headerRow(invoice, seller))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.5}))
	m.AddRows(partyRow("EMISOR", seller))
	if invoice.Buyer != nil {
		m.AddRows(partyRow("COMPRADOR", *invoice.Buyer))
	}
	if invoice.IsCreditNote() {
		m.AddRows(referenceRow(invoice))
	}
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))

	m.AddRows(tableHeaderRow())
	m.AddRows(tableLineRows(invoice.Lines)...)

	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))
	m.AddRows(totalsRows(totals, currency)...)

	m.AddRows(line.NewRow(3))
	m.AddRows(line.NewRow(1, props.Line{Color: colorGray, Thickness: 0.3}))
	m.AddRows(complianceFooterRows(invoice)...)

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("pdf: generar documento: %w", err)
	}
	return doc.GetBytes(), nil
}

// ── Secciones ─────────────────────────────────────────────────────────────────

func documentTitle(invoice *entity.Invoice) string {
	kind := "FACTURA CON IVA"
	if invoice.IsSimplified {
		kind = "FACTURA SIMPLIFICADA CON IVA"
	}
	switch invoice.DocumentType {
	case entity.DocumentTypeCreditNote:
		kind = "NOTA CRÉDITO"
	case entity.DocumentTypeDebitNote:
		kind = "NOTA DÉBITO"
	}
	return kind
}

// headerRow: emisor + N° IVA (izq) y tipo, número y fecha (der).
func headerRow(invoice *entity.Invoice, seller entity.Party) core.Row {
	return row.New(18).Add(
		col.New(7).Add(
			text.New(seller.Name, props.Text{
				Style: fontstyle.Bold, Size: 13, Color: colorPrimary, Top: 1,
			}),
			text.New("N° IVA: "+seller.VATNumber, props.Text{
				Size: 9, Top: 9, Color: colorGray,
			}),
		),
		col.New(5).Add(
			text.New(documentTitle(invoice), props.Text{
				Style: fontstyle.Bold, Size: 8, Align: align.Right,
				Color: colorPrimary, Top: 1,
			}),
			text.New(invoice.Number, props.Text{
				Style: fontstyle.Bold, Size: 12, Align: align.Right, Top: 7,
			}),
			text.New("Fecha: "+invoice.IssueDate.UTC().Format("2006-01-02 15:04:05"), props.Text{
				Size: 8, Align: align.Right, Top: 14, Color: colorGray,
			}),
		),
	)
}

func partyRow(title string, p entity.Party) core.Row {
	address := strings.Join(nonEmptyParts(p.BuildingNumber, p.Street, p.District, p.City, p.PostalZone, p.CountryCode), ", ")
	return row.New(14).Add(
		col.New(12).Add(
			text.New(title, props.Text{
				Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1,
			}),
			text.New(p.Name, props.Text{
				Style: fontstyle.Bold, Size: 10, Top: 6,
			}),
			text.New(fmt.Sprintf("N° IVA: %s   |   Dirección: %s",
				nonEmpty(p.VATNumber, "—"),
				nonEmpty(address, "—"),
			), props.Text{Size: 8, Top: 12, Color: colorGray}),
		),
	)
}

func referenceRow(invoice *entity.Invoice) core.Row {
	return row.New(8).Add(col.New(12).Add(
		text.New(fmt.Sprintf("Documento original: %s   |   Motivo: %s",
			invoice.OriginalInvoiceNumber, nonEmpty(invoice.AdjustmentReason, "—"),
		), props.Text{Size: 8, Top: 2}),
	))
}

func tableHeaderRow() core.Row {
	h := func(label string, size int, a align.Type) core.Col {
		return col.New(size).Add(text.New(label, props.Text{
			Style: fontstyle.Bold, Size: 8, Align: a,
			Color: colorPrimary, Top: 2, Left: 1, Right: 1,
		}))
	}
	return row.New(8).Add(
		h("Cant.", 1, align.Center),
		h("Descripción", 5, align.Left),
		h("Precio Unit.", 2, align.Right),
		h("IVA%", 1, align.Center),
		h("Total línea", 3, align.Right),
	)
}

func tableLineRows(lines []entity.InvoiceLine) []core.Row {
	result := make([]core.Row, 0, len(lines))
	for _, l := range lines {
		result = append(result, row.New(7).Add(
			col.New(1).Add(text.New(
				l.Quantity.String(),
				props.Text{Size: 8, Align: align.Center, Top: 1},
			)),
			col.New(5).Add(text.New(
				l.Description,
				props.Text{Size: 8, Align: align.Left, Top: 1, Left: 1},
			)),
			col.New(2).Add(text.New(
				formatMoney(l.UnitPrice),
				props.Text{Size: 8, Align: align.Right, Top: 1, Right: 1},
			)),
			col.New(1).Add(text.New(
				l.TaxCategory+" "+l.TaxRate.String()+"%",
				props.Text{Size: 8, Align: align.Center, Top: 1},
			)),
			col.New(3).Add(text.New(
				formatMoney(l.LineTotal()),
				props.Text{Size: 8, Align: align.Right, Top: 1, Right: 1},
			)),
		))
	}
	return result
}

func totalsRows(t domainzatca.Totals, currency string) []core.Row {
	entry := func(label, value string, grand bool) core.Row {
		style := props.Text{Size: 9, Align: align.Right, Right: 1}
		if grand {
			style = props.Text{Style: fontstyle.Bold, Size: 10, Align: align.Right, Color: colorPrimary, Right: 1}
		}
		labelStyle := style
		labelStyle.Style = fontstyle.Bold
		return row.New(6).Add(
			col.New(6),
			col.New(3).Add(text.New(label, labelStyle)),
			col.New(3).Add(text.New(value, style)),
		)
	}

	rows := []core.Row{entry("Total sin IVA:", formatMoney(t.TaxExclusive)+" "+currency, false)}
	for _, g := range t.Groups {
		rows = append(rows, entry(
			fmt.Sprintf("IVA %s %s%%:", g.Category, g.Rate.String()),
			formatMoney(g.TaxAmount)+" "+currency, false))
	}
	rows = append(rows, entry("TOTAL CON IVA:", formatMoney(t.TaxInclusive)+" "+currency, true))
	return rows
}

// complianceFooterRows: QR + identificadores del documento firmado.
func complianceFooterRows(invoice *entity.Invoice) []core.Row {
	c := invoice.Compliance
	rows := []core.Row{
		row.New(6).Add(col.New(12).Add(
			text.New("INFORMACIÓN ELECTRÓNICA", props.Text{
				Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1,
			}),
		)),
	}

	info := fmt.Sprintf("UUID: %s\nICV: %d\nEstado: %s", c.UUID, c.InvoiceCounter, nonEmpty(string(c.SubmissionStatus), "—"))
	if c.QRCodeData != "" {
		rows = append(rows, row.New(50).Add(
			col.New(4).Add(code.NewQr(c.QRCodeData, props.Rect{
				Percent: 95,
				Center:  true,
			})),
			col.New(8).Add(
				text.New(info, props.Text{Size: 8, Top: 4, Left: 3, Color: colorGray}),
				text.New("Escanee el código QR para validar este documento.", props.Text{
					Style: fontstyle.Bold, Size: 9, Top: 26, Left: 3, Color: colorPrimary,
				}),
			),
		))
	} else {
		rows = append(rows, row.New(16).Add(col.New(12).Add(
			text.New(info, props.Text{Size: 8, Top: 2, Color: colorGray}),
		)))
	}

	if c.InvoiceHash != "" {
		rows = append(rows, row.New(5).Add(col.New(12).Add(
			text.New("Hash del documento:", props.Text{Style: fontstyle.Bold, Size: 7, Top: 1}),
		)))
		for _, chunk := range splitEvery(c.InvoiceHash, 80) {
			rows = append(rows, row.New(4).Add(col.New(12).Add(
				text.New(chunk, props.Text{Size: 6.5, Color: colorGray, Top: 0.5, Left: 2}),
			)))
		}
	}
	return rows
}

// ── helpers ───────────────────────────────────────────────────────────────────

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}

func nonEmptyParts(parts ...string) []string {
	out := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// formatMoney redondea a 2 decimales e inserta comas de miles.
// Ej: 6612.5 → "6,612.50", -1000 → "-1,000.00"
func formatMoney(d decimal.Decimal) string {
	s := d.StringFixed(2)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}
	n := len(intPart)
	buf := make([]byte, 0, n+n/3)
	for i, c := range []byte(intPart) {
		if i > 0 && (n-i)%3 == 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, c)
	}
	return sign + string(buf) + frac
}

// splitEvery divide s en trozos de max n caracteres.
func splitEvery(s string, n int) []string {
	var parts []string
	for len(s) > n {
		parts = append(parts, s[:n])
		s = s[n:]
	}
	if s != "" {
		parts = append(parts, s)
	}
	return parts
}
