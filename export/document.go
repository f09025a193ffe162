package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/warp/costshare/billing"
)

// Supported export formats.
const (
	FormatPDF  = "pdf"
	FormatXLSX = "xlsx"
)

// ContentTypes maps an export format to its MIME type.
var ContentTypes = map[string]string{
	FormatPDF:  "application/pdf",
	FormatXLSX: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// Document is everything printed on an invoice.
type Document struct {
	Group   billing.Group
	Member  billing.Member
	Period  billing.Period
	Invoice billing.Invoice
}

// Build renders doc in the given format.
func Build(format string, doc Document) ([]byte, error) {
	switch format {
	case FormatPDF:
		return BuildInvoicePDF(doc)
	case FormatXLSX:
		return BuildInvoiceXLSX(doc)
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

func money(d decimal.Decimal, c billing.Currency) string {
	return d.StringFixed(2) + " " + c.Symbol()
}

func quantity(it billing.InvoiceItem) string {
	q := it.Quantity.String()
	if u := it.Unit(); u != "" {
		q += " " + u.Display()
	}
	return q
}

func optional(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.String()
}

// currencyOf picks the invoice currency from its first charged item.
func currencyOf(inv billing.Invoice) billing.Currency {
	for _, it := range inv.Items {
		if c := it.Currency(); c != "" {
			return c
		}
	}
	return billing.CurrencyEUR
}

// =============================================================================
// PDF
// =============================================================================

// BuildInvoicePDF renders an A4 invoice.
func BuildInvoicePDF(doc Document) ([]byte, error) {
	inv := doc.Invoice
	cur := currencyOf(inv)
	lines, notes := Lines(inv)

	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFont("Arial", "B", 14)
	pdf.AddPage()

	pdf.Cell(0, 8, tr("Invoice "+inv.Number))
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, tr(fmt.Sprintf("Date: %s", inv.Date.Format("2006-01-02"))))
	pdf.Ln(5)
	pdf.Cell(0, 6, tr(fmt.Sprintf("Period: %s", doc.Period)))
	pdf.Ln(5)
	pdf.Cell(0, 6, tr(fmt.Sprintf("Issuer: %s", doc.Group.Name)))
	pdf.Ln(5)
	pdf.Cell(0, 6, tr(fmt.Sprintf("Customer: %s", doc.Member.FullName)))
	pdf.Ln(5)
	if doc.Member.Address != "" {
		pdf.Cell(0, 6, tr(doc.Member.Address))
		pdf.Ln(5)
	}
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 9)
	pdf.CellFormat(70, 6, "Description", "1", 0, "L", false, 0, "")
	pdf.CellFormat(20, 6, "Start", "1", 0, "C", false, 0, "")
	pdf.CellFormat(20, 6, "End", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Quantity", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Unit price", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Total", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, l := range lines {
		desc := l.Item.Description
		if l.Footnote > 0 {
			desc = fmt.Sprintf("%s [%d]", desc, l.Footnote)
		}
		pdf.CellFormat(70, 6, tr(desc), "1", 0, "L", false, 0, "")
		pdf.CellFormat(20, 6, optional(l.Item.StartValue), "1", 0, "R", false, 0, "")
		pdf.CellFormat(20, 6, optional(l.Item.EndValue), "1", 0, "R", false, 0, "")
		pdf.CellFormat(25, 6, tr(quantity(l.Item)), "1", 0, "R", false, 0, "")
		pdf.CellFormat(25, 6, l.Item.UnitPrice.StringFixed(4), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, tr(money(l.Item.Total, cur)), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(160, 7, "Total", "1", 0, "R", false, 0, "")
	pdf.CellFormat(30, 7, tr(money(inv.TotalAmount, cur)), "1", 0, "R", false, 0, "")
	pdf.Ln(-1)
	pdf.CellFormat(160, 7, "Payable", "1", 0, "R", false, 0, "")
	pdf.CellFormat(30, 7, tr(money(inv.PayableAmount, cur)), "1", 0, "R", false, 0, "")
	pdf.Ln(10)

	if len(notes) > 0 {
		pdf.SetFont("Arial", "", 8)
		for _, n := range notes {
			pdf.MultiCell(0, 4, tr(fmt.Sprintf("[%d] %s", n.Number, n.Text)), "", "L", false)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// =============================================================================
// XLSX
// =============================================================================

// BuildInvoiceXLSX renders an invoice workbook with summary and items sheets.
func BuildInvoiceXLSX(doc Document) ([]byte, error) {
	inv := doc.Invoice
	cur := currencyOf(inv)
	lines, notes := Lines(inv)

	f := excelize.NewFile()
	defer f.Close()

	summarySheet := "summary"
	itemsSheet := "items"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(itemsSheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(summarySheet, "A1", "Invoice")
	_ = f.SetCellValue(summarySheet, "B1", inv.Number)
	_ = f.SetCellValue(summarySheet, "A3", "Date")
	_ = f.SetCellValue(summarySheet, "B3", inv.Date.Format("2006-01-02"))
	_ = f.SetCellValue(summarySheet, "A4", "Period")
	_ = f.SetCellValue(summarySheet, "B4", doc.Period.String())
	_ = f.SetCellValue(summarySheet, "A5", "Issuer")
	_ = f.SetCellValue(summarySheet, "B5", doc.Group.Name)
	_ = f.SetCellValue(summarySheet, "A6", "Customer")
	_ = f.SetCellValue(summarySheet, "B6", doc.Member.FullName)
	_ = f.SetCellValue(summarySheet, "A7", "Total Amount")
	_ = f.SetCellValue(summarySheet, "B7", inv.TotalAmount.InexactFloat64())
	_ = f.SetCellValue(summarySheet, "A8", "Payable Amount")
	_ = f.SetCellValue(summarySheet, "B8", inv.PayableAmount.InexactFloat64())
	_ = f.SetCellValue(summarySheet, "A9", "Currency")
	_ = f.SetCellValue(summarySheet, "B9", string(cur))

	headers := []string{"Description", "Start", "End", "Quantity", "Unit", "Unit price", "Total", "Note"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(itemsSheet, cell, h)
	}
	for i, l := range lines {
		row := i + 2
		it := l.Item
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("A%d", row), it.Description)
		if it.StartValue != nil {
			_ = f.SetCellValue(itemsSheet, fmt.Sprintf("B%d", row), it.StartValue.InexactFloat64())
		}
		if it.EndValue != nil {
			_ = f.SetCellValue(itemsSheet, fmt.Sprintf("C%d", row), it.EndValue.InexactFloat64())
		}
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("D%d", row), it.Quantity.InexactFloat64())
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("E%d", row), it.Unit().Display())
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("F%d", row), it.UnitPrice.InexactFloat64())
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("G%d", row), it.Total.InexactFloat64())
		if l.Footnote > 0 {
			_ = f.SetCellValue(itemsSheet, fmt.Sprintf("H%d", row), l.Footnote)
		}
	}

	row := len(lines) + 3
	for _, n := range notes {
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("A%d", row), fmt.Sprintf("[%d] %s", n.Number, n.Text))
		row++
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
