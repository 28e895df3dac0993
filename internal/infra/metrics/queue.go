package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		itemsResolvedTotal,
		claimBatchSize,
		staleRequeuedTotal,
		requeuedTotal,
		queueDepth,
	)
}

var itemsResolvedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "import_items_resolved_total",
		Help: "Import items resolved, labeled by outcome.",
	},
	[]string{"status"}, // 'success', 'failed', 'skipped'
)

var claimBatchSize = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "import_claim_batch_size",
		Help:    "Number of items leased per claim call.",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
	},
)

var staleRequeuedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "import_items_stale_requeued_total",
		Help: "Items returned to pending by the stale-claim reconciler.",
	},
)

var requeuedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "import_items_requeued_total",
		Help: "Items moved back to pending by operator requeue, by prior status.",
	},
	[]string{"from"},
)

var queueDepth = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "import_queue_depth",
		Help: "Point-in-time queue depth from the last stats read.",
	},
	[]string{"state"}, // 'pending_ready', 'pending_delayed', 'processing'
)

func IncItemResolved(status string) {
	itemsResolvedTotal.WithLabelValues(norm(status)).Inc()
}

func AddItemsResolved(status string, n int) {
	itemsResolvedTotal.WithLabelValues(norm(status)).Add(float64(n))
}

func ObserveClaimBatch(n int) {
	claimBatchSize.Observe(float64(n))
}

func AddStaleRequeued(n int) {
	staleRequeuedTotal.Add(float64(n))
}

func AddRequeued(from string, n int) {
	requeuedTotal.WithLabelValues(norm(from)).Add(float64(n))
}

func SetQueueDepth(ready, delayed, processing int) {
	queueDepth.WithLabelValues("pending_ready").Set(float64(ready))
	queueDepth.WithLabelValues("pending_delayed").Set(float64(delayed))
	queueDepth.WithLabelValues("processing").Set(float64(processing))
}
