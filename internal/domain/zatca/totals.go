package zatca

import (
	"errors"
	"fmt"
	"sort"

	"github.com/jhoicas/fatoora-api/internal/domain"
	"github.com/jhoicas/fatoora-api/internal/domain/entity"
	"github.com/jhoicas/fatoora-api/pkg/zatca"

	"github.com/shopspring/decimal"
)

// TaxGroup agrupa las líneas con la misma (categoría, tasa).
type TaxGroup struct {
	Category        string
	Rate            decimal.Decimal
	TaxableAmount   decimal.Decimal
	TaxAmount       decimal.Decimal
	ExemptionReason string
}

// Totals son los totales derivados de las líneas.
type Totals struct {
	LineExtension decimal.Decimal
	TaxExclusive  decimal.Decimal
	Tax           decimal.Decimal
	TaxInclusive  decimal.Decimal
	Groups        []TaxGroup
}

// ComputeTotals agrupa por (categoría, tasa) en orden de categoría y tasa descendente.
// El impuesto de cada grupo se redondea a 2 decimales una sola vez, sobre la suma sin redondear.
func ComputeTotals(lines []entity.InvoiceLine) Totals {
	type key struct {
		cat  string
		rate string
	}
	groups := map[key]*TaxGroup{}
	rawTax := map[key]decimal.Decimal{}
	var lineExt decimal.Decimal
	for _, l := range lines {
		k := key{l.TaxCategory, l.TaxRate.String()}
		g, ok := groups[k]
		if !ok {
			g = &TaxGroup{Category: l.TaxCategory, Rate: l.TaxRate, ExemptionReason: l.ExemptionReason}
			groups[k] = g
		}
		g.TaxableAmount = g.TaxableAmount.Add(l.LineTotal())
		rawTax[k] = rawTax[k].Add(l.TaxAmount())
		lineExt = lineExt.Add(l.LineTotal())
	}

	out := Totals{LineExtension: lineExt.Round(2)}
	for k, g := range groups {
		g.TaxableAmount = g.TaxableAmount.Round(2)
		g.TaxAmount = rawTax[k].Round(2)
		out.Tax = out.Tax.Add(g.TaxAmount)
		out.Groups = append(out.Groups, *g)
	}
	sort.Slice(out.Groups, func(i, j int) bool {
		if out.Groups[i].Category != out.Groups[j].Category {
			return out.Groups[i].Category < out.Groups[j].Category
		}
		return out.Groups[i].Rate.GreaterThan(out.Groups[j].Rate)
	})
	out.TaxExclusive = out.LineExtension
	out.TaxInclusive = out.TaxExclusive.Add(out.Tax)
	return out
}

// ValidateInvoice verifica que la factura tenga los datos mínimos para componer el documento
// y que los totales almacenados coincidan con los derivados de las líneas.
func ValidateInvoice(inv *entity.Invoice) error {
	if inv == nil {
		return fmt.Errorf("%w: factura nula", domain.ErrInvalidInvoice)
	}
	var errs []error
	if inv.Number == "" {
		errs = append(errs, errors.New("número de factura vacío"))
	}
	if inv.IssueDate.IsZero() {
		errs = append(errs, errors.New("fecha de emisión vacía"))
	}
	if !inv.IsSimplified && inv.Buyer == nil {
		errs = append(errs, errors.New("documento estándar sin comprador"))
	}
	if inv.IsCreditNote() && inv.OriginalInvoiceNumber == "" {
		errs = append(errs, errors.New("nota crédito sin factura original"))
	}
	if len(inv.Lines) == 0 {
		errs = append(errs, errors.New("la factura debe tener al menos una línea"))
	}
	for i, l := range inv.Lines {
		if !l.Quantity.IsPositive() {
			errs = append(errs, fmt.Errorf("línea %d: cantidad debe ser positiva", i+1))
		}
		if !zatca.ValidTaxCategories[l.TaxCategory] {
			errs = append(errs, fmt.Errorf("línea %d: categoría de IVA inválida %q", i+1, l.TaxCategory))
		}
		if l.TaxRate.IsNegative() {
			errs = append(errs, fmt.Errorf("línea %d: tasa negativa", i+1))
		}
	}
	if !inv.GrandTotal.IsPositive() {
		errs = append(errs, errors.New("totales requeridos ausentes"))
	}

	if len(errs) == 0 {
		t := ComputeTotals(inv.Lines)
		if !inv.Subtotal.Round(2).Equal(t.TaxExclusive) {
			errs = append(errs, fmt.Errorf("subtotal (%s) no coincide con la suma de líneas (%s)", inv.Subtotal.StringFixed(2), t.TaxExclusive.StringFixed(2)))
		}
		if !inv.TaxAmount.Round(2).Equal(t.Tax) {
			errs = append(errs, fmt.Errorf("impuesto (%s) no coincide con la suma por grupos (%s)", inv.TaxAmount.StringFixed(2), t.Tax.StringFixed(2)))
		}
		if !inv.GrandTotal.Round(2).Equal(t.TaxInclusive) {
			errs = append(errs, fmt.Errorf("total (%s) no coincide con subtotal + impuesto (%s)", inv.GrandTotal.StringFixed(2), t.TaxInclusive.StringFixed(2)))
		}
	}

	if len(errs) > 0 {
		return errors.Join(append([]error{domain.ErrInvalidInvoice}, errs...)...)
	}
	return nil
}
