package orchestra

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectionsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swirlc_orchestra_connections_opened_total",
		Help: "total number of outbound connections opened by the orchestra transport",
	})

	bytesStreamed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swirlc_orchestra_bytes_streamed_total",
		Help: "total number of payload bytes streamed by the orchestra transport",
	})

	relayFanout = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "swirlc_orchestra_relay_fanout",
		Help:    "number of first-hop branches in a broadcast relay tree",
		Buckets: prometheus.LinearBuckets(1, 1, 8),
	})
)
