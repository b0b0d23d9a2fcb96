package entity

import "github.com/shopspring/decimal"

// InvoiceLine representa una línea de detalle de una factura.
type InvoiceLine struct {
	ID              string
	InvoiceID       string
	ProductID       string
	Description     string
	UnitCode        string // UN/ECE rec 20, por defecto PCE
	Quantity        decimal.Decimal
	UnitPrice       decimal.Decimal
	Discount        decimal.Decimal
	TaxCategory     string          // S, Z, E, O
	TaxRate         decimal.Decimal // porcentaje, p.ej. 15
	ExemptionReason string
}

var hundred = decimal.NewFromInt(100)

// LineTotal = cantidad * precio unitario - descuento.
func (l InvoiceLine) LineTotal() decimal.Decimal {
	return l.Quantity.Mul(l.UnitPrice).Sub(l.Discount)
}

// TaxAmount = total de línea * tasa / 100 (sin redondear).
func (l InvoiceLine) TaxAmount() decimal.Decimal {
	return l.LineTotal().Mul(l.TaxRate).Div(hundred)
}
