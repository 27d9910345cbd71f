package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TCPConnections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trackr_tcp_connections_total",
		Help: "Accepted TCP connections by protocol",
	}, []string{"protocol"})
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trackr_tcp_active_sessions",
		Help: "Open TCP sessions",
	})
	FramesDecoded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trackr_frames_decoded_total",
		Help: "Frames decoded by protocol and message type",
	}, []string{"protocol", "type"})
	DecodeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trackr_decode_failures_total",
		Help: "Frames that could not be decoded, by protocol",
	}, []string{"protocol"})
	BufferOverflows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trackr_buffer_overflows_total",
		Help: "Session buffers discarded for exceeding the ceiling",
	}, []string{"protocol"})
	Datagrams = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trackr_udp_datagrams_total",
		Help: "Received UDP datagrams by protocol",
	}, []string{"protocol"})
	RecordsQueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trackr_records_queued_total",
		Help: "Items handed to the queue backend, by kind",
	}, []string{"kind"})
	QueueFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trackr_queue_failures_total",
		Help: "Items the queue backend rejected, by kind",
	}, []string{"kind"})
	QueueDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trackr_queue_drops_total",
		Help: "Items dropped because the dispatch buffer was full, by kind",
	}, []string{"kind"})
	PushRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trackr_http_push_requests_total",
		Help: "HTTP push requests by endpoint and status code",
	}, []string{"endpoint", "code"})
	ParseLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trackr_parse_latency_seconds",
		Help:    "Time spent decoding one frame",
		Buckets: prometheus.DefBuckets,
	}, []string{"protocol"})
)

func ObserveParseLatency(protocol string, start time.Time) {
	ParseLatency.WithLabelValues(protocol).Observe(time.Since(start).Seconds())
}
