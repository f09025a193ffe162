/*
invoices.go - Invoice endpoints

ENDPOINTS:
  GET    /api/members/{memberID}/invoices                          Newest first
  POST   /api/members/{memberID}/invoices/generate/{periodID}      Generate
  GET    /api/members/{memberID}/invoices/{invoiceID}              Detail
  GET    /api/members/{memberID}/invoices/{invoiceID}/export       ?format=pdf|xlsx

GENERATE:
  201 with the invoice, or 422 "nothing_to_bill" when no charge of the
  member's group produced an item for the period. Each call creates a new
  invoice; generating twice for one period yields two invoices.

DETAIL:
  Items are listed without consumption first, then by consumption, with
  footnotes for charges that carry a description. See export.Lines.
*/
package api

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/warp/costshare/billing"
	"github.com/warp/costshare/export"
	"github.com/warp/costshare/metrics"
)

// ListInvoices returns a member's invoices without items.
func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	m, ok := h.member(w, r)
	if !ok {
		return
	}
	invoices, err := h.Store.ListInvoices(r.Context(), m.ID)
	if err != nil {
		h.fail(w, "Failed to list invoices", err)
		return
	}

	dtos := make([]InvoiceSummaryDTO, len(invoices))
	for i, inv := range invoices {
		dtos[i] = toInvoiceSummaryDTO(inv)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GenerateInvoice bills a member for a period.
func (h *Handler) GenerateInvoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	m, ok := h.member(w, r)
	if !ok {
		return
	}
	periodID, ok := pathID(w, r, "periodID")
	if !ok {
		return
	}
	period, err := h.Store.GetPeriod(ctx, periodID)
	if err != nil {
		h.fail(w, "Failed to get period", err)
		return
	}

	start := time.Now()
	inv, err := h.Assembler.Generate(ctx, m, *period)
	switch {
	case err != nil:
		result := metrics.ResultError
		if billing.IsConflict(err) {
			result = metrics.ResultConflict
		}
		metrics.ObserveInvoiceGenerate(result, time.Since(start))
		h.fail(w, "Failed to generate invoice", err)
		return
	case inv == nil:
		metrics.ObserveInvoiceGenerate(metrics.ResultEmpty, time.Since(start))
		writeError(w, http.StatusUnprocessableEntity, "nothing_to_bill",
			fmt.Errorf("no charges to bill for %s in %s", m.FullName, period))
		return
	}

	metrics.ObserveInvoiceGenerate(metrics.ResultSuccess, time.Since(start))
	for rule, n := range countByRule(inv.Items) {
		metrics.AddInvoiceItems(string(rule), n)
	}
	writeJSON(w, http.StatusCreated, toInvoiceDTO(*inv))
}

func countByRule(items []billing.InvoiceItem) map[billing.Rule]int {
	counts := make(map[billing.Rule]int)
	for _, it := range items {
		if it.Charge != nil {
			counts[it.Charge.Definition.Rule]++
		}
	}
	return counts
}

// GetInvoice returns an invoice of the member with ordered items.
func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	inv, ok := h.memberInvoice(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDTO(inv))
}

// ExportInvoice renders an invoice as PDF or XLSX.
func (h *Handler) ExportInvoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	format := r.URL.Query().Get("format")
	if format == "" {
		format = export.FormatPDF
	}
	contentType, ok := export.ContentTypes[format]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unsupported export format", fmt.Errorf("format %q", format))
		return
	}

	inv, ok := h.memberInvoice(w, r)
	if !ok {
		return
	}
	m, err := h.Store.GetMember(ctx, inv.MemberID)
	if err != nil {
		h.fail(w, "Failed to get member", err)
		return
	}
	g, err := h.Store.GetGroup(ctx, m.GroupID)
	if err != nil {
		h.fail(w, "Failed to get group", err)
		return
	}
	period, err := h.Store.GetPeriod(ctx, inv.PeriodID)
	if err != nil {
		h.fail(w, "Failed to get period", err)
		return
	}

	start := time.Now()
	body, err := export.Build(format, export.Document{
		Group:   *g,
		Member:  *m,
		Period:  *period,
		Invoice: inv,
	})
	if err != nil {
		metrics.ObserveInvoiceExport(format, metrics.ResultError, time.Since(start))
		h.fail(w, "Failed to export invoice", err)
		return
	}
	metrics.ObserveInvoiceExport(format, metrics.ResultSuccess, time.Since(start))

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", inv.Number+"."+format))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		h.logger.Warn("export write failed", zap.String("invoice", inv.Number), zap.Error(err))
	}
}

// memberInvoice loads {invoiceID} and checks it belongs to {memberID}.
func (h *Handler) memberInvoice(w http.ResponseWriter, r *http.Request) (billing.Invoice, bool) {
	memberID, ok := pathID(w, r, "memberID")
	if !ok {
		return billing.Invoice{}, false
	}
	invoiceID, ok := pathID(w, r, "invoiceID")
	if !ok {
		return billing.Invoice{}, false
	}
	inv, err := h.Store.GetInvoice(r.Context(), invoiceID)
	if err != nil {
		h.fail(w, "Failed to get invoice", err)
		return billing.Invoice{}, false
	}
	if inv.MemberID != memberID {
		writeError(w, http.StatusNotFound, "Invoice not found", nil)
		return billing.Invoice{}, false
	}
	return *inv, true
}
