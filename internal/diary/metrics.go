package diary

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	imagesAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "diary_images_accepted_total",
		Help: "Total number of uploaded images stored",
	})

	imagesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "diary_images_rejected_total",
		Help: "Total number of uploaded files skipped, by reason",
	}, []string{"reason"})

	cleanupFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "diary_blob_cleanup_failures_total",
		Help: "Total number of stored image files that could not be removed",
	})
)
