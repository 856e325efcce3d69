package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "birdcollector_queries_total",
			Help: "Commands sent to the BIRD control interface.",
		},
		[]string{"command", "result"},
	)

	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "birdcollector_query_duration_seconds",
			Help:    "Round trip time of a control interface command.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		},
		[]string{"command"},
	)

	DecodeErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "birdcollector_decode_errors_total",
			Help: "Replies that could not be decoded, by decoder and error kind.",
		},
		[]string{"decoder", "kind"},
	)

	PollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "birdcollector_polls_total",
			Help: "Poll cycles by result.",
		},
		[]string{"result"},
	)

	LastPollTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "birdcollector_last_successful_poll_timestamp_seconds",
			Help: "Unix timestamp of the last successful poll.",
		},
	)

	PeerUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "birdcollector_peer_up",
			Help: "BGP session established (0/1).",
		},
		[]string{"peer"},
	)

	PeerRoutes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "birdcollector_peer_routes",
			Help: "Routes per BGP session from the protocol detail block.",
		},
		[]string{"peer", "kind"},
	)

	PeerStateChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "birdcollector_peer_state_changes_total",
			Help: "Observed BGP session state transitions.",
		},
		[]string{"peer", "state"},
	)

	DBWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "birdcollector_db_write_duration_seconds",
			Help:    "DB write latency.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		},
		[]string{"op"},
	)

	DBRowsAffectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "birdcollector_db_rows_affected_total",
			Help: "DB rows written or deleted.",
		},
		[]string{"table", "op"},
	)

	EventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "birdcollector_events_published_total",
			Help: "Peer events produced to Kafka.",
		},
		[]string{"result"},
	)
)

var registerOnce sync.Once

func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			QueriesTotal,
			QueryDuration,
			DecodeErrorsTotal,
			PollsTotal,
			LastPollTimestamp,
			PeerUp,
			PeerRoutes,
			PeerStateChangesTotal,
			DBWriteDuration,
			DBRowsAffectedTotal,
			EventsPublishedTotal,
		)
	})
}
