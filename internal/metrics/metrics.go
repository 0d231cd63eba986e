package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// UploadsTotal counts files successfully stored.
	UploadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gitvault_uploads_total",
		Help: "Number of files successfully uploaded.",
	})

	// UploadFailures counts uploads that failed, labeled by error kind.
	UploadFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gitvault_upload_failures_total",
		Help: "Number of failed uploads by error kind.",
	}, []string{"kind"})

	// DeletesTotal counts files deleted.
	DeletesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gitvault_deletes_total",
		Help: "Number of files deleted.",
	})

	// BucketsCreated counts backing repositories provisioned.
	BucketsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gitvault_buckets_created_total",
		Help: "Number of storage buckets created on the provider.",
	})

	// Rotations counts uploads redirected to a freshly created bucket.
	Rotations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gitvault_bucket_rotations_total",
		Help: "Number of pre-emptive bucket rotations.",
	})

	// ReconcileAdjustments counts cached counters overwritten by reconciliation.
	ReconcileAdjustments = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gitvault_reconcile_adjustments_total",
		Help: "Number of cached size counters corrected by reconciliation.",
	})
)

// Register attaches the Prometheus metrics endpoint to the router.
func Register(router *gin.Engine, path string) {
	router.GET(path, gin.WrapH(promhttp.Handler()))
}
