package catalog

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	accumulationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loyverse_catalog_accumulations_total",
		Help: "Total upstream accumulation passes by scope and result",
	}, []string{"scope", "result"}) // result: "ok", "error"

	accumulationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "loyverse_catalog_accumulation_duration_seconds",
		Help:    "Duration of successful accumulation passes",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"scope"})

	sharedAccumulationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loyverse_catalog_shared_accumulations_total",
		Help: "Requests that joined an accumulation already in flight for the same key",
	}, []string{"scope"})
)
