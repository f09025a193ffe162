/*
Package export renders invoices for people: the ordered item listing with
footnotes, and PDF / XLSX documents built from it.

ORDERING:
  Items without consumption (fixed, equal split, by area) come first, then
  metered items by ascending consumption. Insertion order breaks ties.

FOOTNOTES:
  Items whose charge definition has a description get a footnote number,
  counted from 1 in display order.
*/
package export

import (
	"sort"

	"github.com/warp/costshare/billing"
)

// Line is one displayed invoice item. Footnote is 0 when the item has none.
type Line struct {
	Item     billing.InvoiceItem
	Footnote int
}

// Footnote is a numbered charge description.
type Footnote struct {
	Number int
	Text   string
}

// Lines returns the invoice items in display order with footnote numbers.
func Lines(inv billing.Invoice) ([]Line, []Footnote) {
	items := make([]billing.InvoiceItem, len(inv.Items))
	copy(items, inv.Items)
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].Consumed, items[j].Consumed
		switch {
		case a == nil && b == nil:
			return false
		case a == nil:
			return true
		case b == nil:
			return false
		default:
			return a.LessThan(*b)
		}
	})

	lines := make([]Line, 0, len(items))
	var notes []Footnote
	for _, it := range items {
		line := Line{Item: it}
		if it.Charge != nil && it.Charge.Definition.Description != "" {
			line.Footnote = len(notes) + 1
			notes = append(notes, Footnote{Number: line.Footnote, Text: it.Charge.Definition.Description})
		}
		lines = append(lines, line)
	}
	return lines, notes
}
