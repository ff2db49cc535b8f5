package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ScoreSubmissions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tallyboard", Name: "score_submissions_total",
		Help: "Score ledger writes by outcome (created, updated, duplicate, rejected)",
	}, []string{"outcome"})

	DrainCycles = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tallyboard", Name: "drain_cycles_total",
		Help: "Offline queue drain cycles started",
	})

	DrainedItems = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tallyboard", Name: "drained_items_total",
		Help: "Queued score items by drain result (synced, failed, retried)",
	}, []string{"result"})

	SnapshotVerifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tallyboard", Name: "snapshot_verifications_total",
		Help: "Recap verifications by result (clean, drift)",
	}, []string{"result"})

	DBLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tallyboard", Name: "db_op_seconds",
		Help:    "Ledger transaction latency",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(ScoreSubmissions, DrainCycles, DrainedItems, SnapshotVerifications, DBLatency)
}

func Handler() http.Handler { return promhttp.Handler() }

func ObserveDB(d time.Duration) { DBLatency.Observe(d.Seconds()) }
