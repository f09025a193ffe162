package export_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/warp/costshare/billing"
	"github.com/warp/costshare/export"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func periodCharge(name, description string, rule billing.Rule) *billing.PeriodCharge {
	return &billing.PeriodCharge{
		ID: uuid.New(),
		Definition: billing.ChargeDefinition{
			ID:          uuid.New(),
			Name:        name,
			Description: description,
			Rule:        rule,
			Currency:    billing.CurrencyEUR,
		},
		Amount: dec("100"),
	}
}

func sampleDocument() export.Document {
	meter := &billing.Meter{ID: uuid.New(), Type: billing.MeterWater, SerialNumber: "W-1"}
	items := []billing.InvoiceItem{
		{
			Description: "Water (Proportional by meter data)",
			Quantity:    dec("30"),
			UnitPrice:   dec("1"),
			Total:       dec("30"),
			Meter:       meter,
			Charge:      periodCharge("Water", "Supplier bill", billing.RuleProportional),
			StartValue:  decPtr("100"),
			EndValue:    decPtr("130"),
			Consumed:    decPtr("30"),
		},
		{
			Description: "Cleaning (Fixed fee per customer)",
			Quantity:    dec("1"),
			UnitPrice:   dec("10"),
			Total:       dec("10"),
			Charge:      periodCharge("Cleaning", "", billing.RuleFixed),
		},
		{
			Description: "Gas (Proportional by meter data)",
			Quantity:    dec("5"),
			UnitPrice:   dec("2"),
			Total:       dec("10"),
			Meter:       &billing.Meter{ID: uuid.New(), Type: billing.MeterGas},
			Charge:      periodCharge("Gas", "Heating, winter tariff", billing.RuleProportional),
			Consumed:    decPtr("5"),
		},
		{
			Description: "Roof (Proportional by floor area)",
			Quantity:    dec("25"),
			UnitPrice:   dec("0.4"),
			Total:       dec("10"),
			Charge:      periodCharge("Roof", "Repair fund", billing.RuleByArea),
		},
	}
	return export.Document{
		Group:  billing.Group{Name: "Maple Court"},
		Member: billing.Member{FullName: "Alice Example", Address: "1 Maple Court"},
		Period: billing.Period{Year: 2024, Month: 3},
		Invoice: billing.Invoice{
			Number:        "INV-202403-abcdef-1234",
			Date:          time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
			TotalAmount:   dec("60"),
			PayableAmount: dec("60"),
			Items:         items,
		},
	}
}

func TestLines_OrderAndFootnotes(t *testing.T) {
	// GIVEN an invoice with unmetered and metered items out of order
	doc := sampleDocument()

	// WHEN the lines are built
	lines, notes := export.Lines(doc.Invoice)

	// THEN unmetered items come first, metered by ascending consumption
	require.Len(t, lines, 4)
	assert.Equal(t, "Cleaning (Fixed fee per customer)", lines[0].Item.Description)
	assert.Equal(t, "Roof (Proportional by floor area)", lines[1].Item.Description)
	assert.Equal(t, "Gas (Proportional by meter data)", lines[2].Item.Description)
	assert.Equal(t, "Water (Proportional by meter data)", lines[3].Item.Description)

	// AND footnotes are numbered per item in display order
	assert.Equal(t, 0, lines[0].Footnote)
	assert.Equal(t, 1, lines[1].Footnote)
	assert.Equal(t, 2, lines[2].Footnote)
	assert.Equal(t, 3, lines[3].Footnote)
	require.Len(t, notes, 3)
	assert.Equal(t, export.Footnote{Number: 1, Text: "Repair fund"}, notes[0])
	assert.Equal(t, export.Footnote{Number: 3, Text: "Supplier bill"}, notes[2])
}

func TestLines_DoesNotReorderInvoice(t *testing.T) {
	doc := sampleDocument()
	first := doc.Invoice.Items[0].Description

	export.Lines(doc.Invoice)

	assert.Equal(t, first, doc.Invoice.Items[0].Description)
}

func TestLines_Empty(t *testing.T) {
	lines, notes := export.Lines(billing.Invoice{})
	assert.Empty(t, lines)
	assert.Empty(t, notes)
}

func TestBuildInvoicePDF(t *testing.T) {
	out, err := export.BuildInvoicePDF(sampleDocument())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestBuildInvoiceXLSX(t *testing.T) {
	// GIVEN a rendered workbook
	out, err := export.BuildInvoiceXLSX(sampleDocument())
	require.NoError(t, err)

	// WHEN it is read back
	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()

	// THEN the summary carries the invoice header
	number, err := f.GetCellValue("summary", "B1")
	require.NoError(t, err)
	assert.Equal(t, "INV-202403-abcdef-1234", number)
	customer, err := f.GetCellValue("summary", "B6")
	require.NoError(t, err)
	assert.Equal(t, "Alice Example", customer)

	// AND the items sheet follows display order
	rows, err := f.GetRows("items")
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(rows), 5)
	assert.Equal(t, "Description", rows[0][0])
	assert.Equal(t, "Cleaning (Fixed fee per customer)", rows[1][0])
	assert.Equal(t, "Water (Proportional by meter data)", rows[4][0])
	assert.Equal(t, "m³", rows[4][4])
}

func TestBuild_UnknownFormat(t *testing.T) {
	_, err := export.Build("csv", sampleDocument())
	assert.Error(t, err)
}

func TestBuild_Dispatch(t *testing.T) {
	out, err := export.Build(export.FormatPDF, sampleDocument())
	require.NoError(t, err)
	assert.NotEmpty(t, out)
	assert.Contains(t, export.ContentTypes, export.FormatXLSX)
}
