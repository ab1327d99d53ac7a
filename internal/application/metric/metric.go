package metric

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request handling time in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	wsActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_active_connections",
			Help: "Number of active signaling WebSocket connections",
		},
	)

	voiceRoomsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "voice_rooms_active",
			Help: "Number of live voice rooms",
		},
	)

	voicePeersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "voice_peers_active",
			Help: "Number of peers across all voice rooms",
		},
	)

	signalMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signal_messages_total",
			Help: "Total number of inbound signaling messages by type",
		},
		[]string{"type"},
	)

	signalRateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "signal_rate_limited_total",
			Help: "Total number of signaling messages dropped by the rate limit",
		},
	)

	voiceKicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voice_kicks_total",
			Help: "Total number of kicks, labeled by whether a ban was applied",
		},
		[]string{"banned"},
	)
)

// RecordHTTPMetrics records one finished HTTP request.
func RecordHTTPMetrics(method, endpoint string, status int, duration time.Duration) {
	strStatus := strconv.Itoa(status)

	httpRequestsTotal.WithLabelValues(method, endpoint, strStatus).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint, strStatus).Observe(duration.Seconds())
}

func IncrementWSActiveConnections() { wsActiveConnections.Inc() }
func DecrementWSActiveConnections() { wsActiveConnections.Dec() }

func IncVoiceRooms() { voiceRoomsActive.Inc() }
func DecVoiceRooms() { voiceRoomsActive.Dec() }

func IncVoicePeers() { voicePeersActive.Inc() }
func DecVoicePeers() { voicePeersActive.Dec() }

func CountSignalMessage(msgType string) { signalMessagesTotal.WithLabelValues(msgType).Inc() }
func CountRateLimited()                 { signalRateLimitedTotal.Inc() }

func CountKick(banned bool) { voiceKicksTotal.WithLabelValues(strconv.FormatBool(banned)).Inc() }
