package stream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	recordsYieldedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scraper_stream_records_yielded_total",
		Help: "Total records handed to stream consumers",
	})

	pagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scraper_stream_pages_total",
		Help: "Total pages pulled by streams by result (ok, empty, error)",
	}, []string{"result"})

	terminationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scraper_stream_terminations_total",
		Help: "Total stream terminations by reason",
	}, []string{"reason"})
)
