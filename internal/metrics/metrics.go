package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MessagesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_messages_created_total",
		Help: "Messages appended to the store, by message type.",
	}, []string{"type"})

	ClassificationJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classification_jobs_total",
		Help: "Classification jobs reaching each state.",
	}, []string{"state"})

	DuplicateMaterializations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classification_duplicate_materializations_total",
		Help: "Reconcile polls suppressed by the exactly-once gate.",
	})
)

// Handler returns the handler for Prometheus scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
