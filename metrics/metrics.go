package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for general use, by every wiperf role.
var (
	ActiveWorkers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wiperf_active_workers",
			Help: "A gauge of worker goroutines currently running, per role.",
		},
		[]string{"role"})
	SentBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wiperf_sent_bytes_total",
			Help: "Number of payload bytes sent by the data sender.",
		},
		[]string{"iface"},
	)
	SendErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wiperf_send_errors_total",
			Help: "Number of data sender errors of each type.",
		},
		[]string{"iface", "error"},
	)
	ReceivedBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wiperf_received_bytes_total",
			Help: "Number of payload bytes received by the data receiver.",
		},
		[]string{"iface"},
	)
	ReceiveErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wiperf_receive_errors_total",
			Help: "Number of data receiver errors of each type.",
		},
		[]string{"iface", "error"},
	)
	Throughput = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "wiperf_throughput_kbps",
			Help: "A histogram of throughput samples reported by the feedback sender.",
			Buckets: []float64{
				100, 250, 500,
				1000, 2500, 5000,
				10000, 25000, 50000,
				100000, 250000, 500000,
				1000000, 2500000, 5000000},
		},
		[]string{"iface"},
	)
	FeedbackReports = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wiperf_feedback_reports_total",
			Help: "Number of feedback reports sent or received, by result.",
		},
		[]string{"direction", "result"},
	)
	StoredRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wiperf_stored_records_total",
			Help: "Number of measurement records handed to each sink, by result.",
		},
		[]string{"sink", "result"},
	)
	ChannelSamples = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wiperf_channel_samples_total",
			Help: "Number of channel telemetry samples collected per interface.",
		},
		[]string{"iface"},
	)
	ConfigFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wiperf_config_fallbacks_total",
			Help: "Number of config values replaced by their default.",
		},
		[]string{"section", "key"},
	)
)
