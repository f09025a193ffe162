// Package metrics exposes Prometheus collectors for invoice generation and export.
package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	metricPrefix = "costshare_"

	resultSuccess  = "success"
	resultEmpty    = "nothing_to_bill"
	resultConflict = "conflict"
	resultError    = "error"
)

// Exported result labels for callers.
const (
	ResultSuccess  = resultSuccess
	ResultEmpty    = resultEmpty
	ResultConflict = resultConflict
	ResultError    = resultError
)

// InvoiceCounter is the store query behind the stored-invoices gauge.
type InvoiceCounter interface {
	CountInvoices(ctx context.Context) (int, error)
}

var (
	registerOnce sync.Once

	invoiceGenerateTotal   *prometheus.CounterVec
	invoiceGenerateLatency *prometheus.HistogramVec
	invoiceItemsTotal      *prometheus.CounterVec
	invoiceExportTotal     *prometheus.CounterVec
	invoiceExportLatency   *prometheus.HistogramVec
)

// Init registers the collectors with the default registry. Later calls are
// no-ops. counter may be nil.
func Init(counter InvoiceCounter, logger *zap.Logger) {
	registerOnce.Do(func() {
		invoiceGenerateTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "invoice_generate_total",
				Help: "Total invoice generate operations by result",
			},
			[]string{"result"},
		)
		invoiceGenerateLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "invoice_generate_latency_seconds",
				Help:    "Invoice generate latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		invoiceItemsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "invoice_items_total",
				Help: "Total invoice items written by distribution rule",
			},
			[]string{"rule"},
		)
		invoiceExportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "invoice_export_total",
				Help: "Total invoice export operations by format and result",
			},
			[]string{"format", "result"},
		)
		invoiceExportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "invoice_export_latency_seconds",
				Help:    "Invoice export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			invoiceGenerateTotal,
			invoiceGenerateLatency,
			invoiceItemsTotal,
			invoiceExportTotal,
			invoiceExportLatency,
		)

		if counter != nil {
			registerStoreMetrics(counter, logger)
		}
	})
}

func registerStoreMetrics(counter InvoiceCounter, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "invoices_stored",
			Help: "Invoices currently stored",
		},
		func() float64 {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			n, err := counter.CountInvoices(ctx)
			if err != nil {
				logger.Warn("metrics query failed", zap.Error(err))
				return 0
			}
			return float64(n)
		},
	))
}

// ObserveInvoiceGenerate records generate latency and result.
func ObserveInvoiceGenerate(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if invoiceGenerateTotal != nil {
		invoiceGenerateTotal.WithLabelValues(result).Inc()
	}
	if invoiceGenerateLatency != nil {
		invoiceGenerateLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// AddInvoiceItems counts items written for one distribution rule.
func AddInvoiceItems(rule string, count int) {
	if count <= 0 {
		return
	}
	if rule == "" {
		rule = "unknown"
	}
	if invoiceItemsTotal != nil {
		invoiceItemsTotal.WithLabelValues(rule).Add(float64(count))
	}
}

// ObserveInvoiceExport records export latency and result.
func ObserveInvoiceExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if invoiceExportTotal != nil {
		invoiceExportTotal.WithLabelValues(format, result).Inc()
	}
	if invoiceExportLatency != nil {
		invoiceExportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}
