package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "price_tracker"

const (
	// ResultCreated labels an upsert that inserted a new product.
	ResultCreated = "created"
	// ResultUpdated labels an upsert that updated an existing product.
	ResultUpdated = "updated"
)

var (
	// ProductsUpserted counts upserted products per store and outcome.
	ProductsUpserted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "products_upserted_total",
		Help:      "The total number of products written through the upsert path",
	}, []string{"store", "result"})

	// ProductsDeleted is a Prometheus counter for tracking the total number of products deleted.
	ProductsDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "products_deleted_total",
		Help:      "The total number of products deleted",
	})

	// PriceDrops counts price drops that crossed the alert threshold.
	PriceDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "price_drops_total",
		Help:      "The total number of price drops above the alert threshold",
	}, []string{"store"})

	// DBOperationDuration tracks the latency of product store operations.
	DBOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "db_operation_duration_seconds",
		Help:      "Duration of database operations in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
)

// ObserveDBOperation records the time elapsed since start. Use it with defer.
func ObserveDBOperation(operation string, start time.Time) {
	DBOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
