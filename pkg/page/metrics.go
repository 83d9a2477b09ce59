package page

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PagesDecoded tracks decoded pages by result (ok, malformed, no_cursor)
	PagesDecoded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_pages_decoded_total",
			Help: "Total number of decoded result pages by outcome",
		},
		[]string{"result"},
	)

	// RecordsDecoded tracks merged records produced by the decoder
	RecordsDecoded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_records_decoded_total",
			Help: "Total number of merged records decoded from pages",
		},
	)
)
