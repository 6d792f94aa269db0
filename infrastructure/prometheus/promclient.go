package promclient

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spooky-finn/go-kalshi-bridge/logger"
)

var WsReconnectsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "kalshi_ws_reconnects_total",
		Help: "successful reopenings of the Kalshi websocket",
	},
)

var WsReconnectDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "kalshi_ws_reconnect_duration_seconds",
		Help:    "time from disconnect to the next successful open",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	},
)

var MalformedFramesTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "kalshi_malformed_frames_total",
		Help: "inbound frames dropped because they could not be decoded",
	},
)

var StaleUpdatesTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "kalshi_stale_updates_total",
		Help: "book updates discarded because they referenced a non-active ticker",
	},
)

var UnknownMessagesTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "kalshi_unknown_messages_total",
		Help: "envelopes dropped because no handler is registered for their type",
	},
)

var SequenceGapsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "kalshi_orderbook_sequence_gaps_total",
		Help: "orderbook delta sequence gaps that forced a resync",
	},
)

var BookLevelsGauge = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "kalshi_orderbook_levels",
		Help: "price levels currently held in the local book mirror",
	},
	[]string{"side"},
)

func StartPromClientServer(addr string) {
	log := logger.Component("promclient")

	reg := prometheus.NewRegistry()
	promHandler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	reg.MustRegister(WsReconnectsTotal)
	reg.MustRegister(WsReconnectDuration)
	reg.MustRegister(MalformedFramesTotal)
	reg.MustRegister(StaleUpdatesTotal)
	reg.MustRegister(UnknownMessagesTotal)
	reg.MustRegister(SequenceGapsTotal)
	reg.MustRegister(BookLevelsGauge)
	reg.MustRegister(collectors.NewGoCollector())

	http.Handle("/metrics", promHandler)
	log.Infof("prometheus server listening at %s", addr)

	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
