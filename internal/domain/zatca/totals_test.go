package zatca_test

import (
	"testing"
	"time"

	"github.com/jhoicas/fatoora-api/internal/domain"
	"github.com/jhoicas/fatoora-api/internal/domain/entity"
	"github.com/jhoicas/fatoora-api/internal/domain/zatca"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func line(qty, price, discount, cat, rate string) entity.InvoiceLine {
	return entity.InvoiceLine{
		Description: "item",
		Quantity:    dec(qty),
		UnitPrice:   dec(price),
		Discount:    dec(discount),
		TaxCategory: cat,
		TaxRate:     dec(rate),
	}
}

func TestComputeTotals_Escenario5750(t *testing.T) {
	tot := zatca.ComputeTotals([]entity.InvoiceLine{
		line("5", "1000", "0", "S", "15"),
		line("1", "800", "50", "S", "15"),
	})

	assert.Equal(t, "5750.00", tot.TaxExclusive.StringFixed(2))
	assert.Equal(t, "862.50", tot.Tax.StringFixed(2))
	assert.Equal(t, "6612.50", tot.TaxInclusive.StringFixed(2))
	require.Len(t, tot.Groups, 1)
}

func TestComputeTotals_OrdenGrupos(t *testing.T) {
	tot := zatca.ComputeTotals([]entity.InvoiceLine{
		line("1", "100", "0", "Z", "0"),
		line("1", "100", "0", "S", "5"),
		line("1", "100", "0", "S", "15"),
		line("2", "50", "0", "S", "15"),
		line("1", "10", "0", "E", "0"),
	})

	require.Len(t, tot.Groups, 4)
	got := []string{}
	for _, g := range tot.Groups {
		got = append(got, g.Category+"/"+g.Rate.String())
	}
	assert.Equal(t, []string{"E/0", "S/15", "S/5", "Z/0"}, got)
	assert.Equal(t, "200.00", tot.Groups[1].TaxableAmount.StringFixed(2))
	assert.Equal(t, "30.00", tot.Groups[1].TaxAmount.StringFixed(2))
}

func validInvoice() *entity.Invoice {
	return &entity.Invoice{
		Number:       "INV-001",
		IssueDate:    time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		IsSimplified: true,
		Lines:        []entity.InvoiceLine{line("5", "1000", "0", "S", "15"), line("1", "800", "50", "S", "15")},
		Subtotal:     dec("5750"),
		TaxAmount:    dec("862.5"),
		GrandTotal:   dec("6612.5"),
	}
}

func TestValidateInvoice_OK(t *testing.T) {
	assert.NoError(t, zatca.ValidateInvoice(validInvoice()))
}

func TestValidateInvoice_TotalesAusentes(t *testing.T) {
	inv := validInvoice()
	inv.GrandTotal = decimal.Zero

	err := zatca.ValidateInvoice(inv)
	assert.ErrorIs(t, err, domain.ErrInvalidInvoice)
}

func TestValidateInvoice_TotalesInconsistentes(t *testing.T) {
	inv := validInvoice()
	inv.TaxAmount = dec("860")

	err := zatca.ValidateInvoice(inv)
	require.ErrorIs(t, err, domain.ErrInvalidInvoice)
	assert.Contains(t, err.Error(), "impuesto")
}

func TestValidateInvoice_EstandarSinComprador(t *testing.T) {
	inv := validInvoice()
	inv.IsSimplified = false

	assert.ErrorIs(t, zatca.ValidateInvoice(inv), domain.ErrInvalidInvoice)
}
