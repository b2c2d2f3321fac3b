package workflow

import (
	"sync"
	"time"

	"github.com/mmdatafocus/shopledger_backend/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OperationCounter        *prometheus.CounterVec
	OperationLatency        *prometheus.HistogramVec
	SalesCounter            *prometheus.CounterVec
	StockRejectionCounter   prometheus.Counter
	ReconcileRepairCounter  prometheus.Counter
	ReconcileFailureCounter prometheus.Counter
	ImportedRowsCounter     *prometheus.CounterVec
	ForwardedEventsCounter  *prometheus.CounterVec
	metricsOnce             sync.Once
)

// initMetrics registers the ledger metrics once per process under namespace.
func initMetrics(namespace string) {
	metricsOnce.Do(func() {
		OperationCounter = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operation_total",
				Help:      "Ledger operations by name and outcome",
			},
			[]string{"operation", "outcome"},
		)

		OperationLatency = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Ledger operation duration including the store commit",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		)

		SalesCounter = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sales_processed_total",
				Help:      "Checkouts committed, by payment kind",
			},
			[]string{"kind"},
		)

		StockRejectionCounter = promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_rejections_total",
			Help:      "Sales or stock adjustments rejected for insufficient stock",
		})

		ReconcileRepairCounter = promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_repairs_total",
			Help:      "Missing bread order debt transactions recreated by reconciliation",
		})

		ReconcileFailureCounter = promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_failures_total",
			Help:      "Bread orders reconciliation could not repair",
		})

		ImportedRowsCounter = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "imported_rows_total",
				Help:      "Rows committed by bulk import, by entity",
			},
			[]string{"entity"},
		)

		ForwardedEventsCounter = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "forwarded_events_total",
				Help:      "Change events forwarded to the message bus, by outcome",
			},
			[]string{"outcome"},
		)
	})
}

func observeOperation(op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(models.KindOf(err))
		if outcome == "" {
			outcome = "error"
		}
	}
	OperationCounter.WithLabelValues(op, outcome).Inc()
	OperationLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if models.KindOf(err) == models.ErrorKindInsufficientStock {
		StockRejectionCounter.Inc()
	}
}
