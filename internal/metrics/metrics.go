// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"firestige.xyz/stallwatch/internal/core"
)

var (
	// PollsTotal counts poll cycles by network and outcome
	PollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stallwatch_polls_total",
			Help: "Total number of sock_diag poll cycles",
		},
		[]string{core.LabelNetwork, core.LabelResult},
	)

	// PollDurationSeconds measures one full poll (both address families)
	PollDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stallwatch_poll_duration_seconds",
			Help:    "Duration of sock_diag poll cycles in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16), // 100us to ~3s
		},
		[]string{core.LabelNetwork},
	)

	// MalformedRecordsTotal counts dump passes abandoned on a malformed record
	MalformedRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stallwatch_malformed_records_total",
			Help: "Total number of malformed sock_diag records",
		},
		[]string{core.LabelNetwork, core.LabelFamily},
	)

	// DumpErrorsTotal counts dump passes cut short by a channel error
	DumpErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stallwatch_dump_errors_total",
			Help: "Total number of sock_diag dump passes ended by a channel error",
		},
		[]string{core.LabelNetwork, core.LabelFamily},
	)

	// MatchedSockets tracks sockets of the network seen by the last poll
	MatchedSockets = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stallwatch_matched_sockets",
			Help: "Number of TCP sockets matching the network mark in the last poll",
		},
		[]string{core.LabelNetwork},
	)

	// PacketFailPercentage is the last computed loss percentage (-1 = unknown)
	PacketFailPercentage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stallwatch_packet_fail_percentage",
			Help: "Latest TCP packet fail percentage, -1 when unknown",
		},
		[]string{core.LabelNetwork},
	)

	// SentSinceLastRecv tracks segments sent since a poll last saw incoming segments
	SentSinceLastRecv = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stallwatch_sent_since_last_recv",
			Help: "TCP segments sent since the last poll that observed received segments",
		},
		[]string{core.LabelNetwork},
	)

	// DataStallSuspected is 1 while a data stall is suspected
	DataStallSuspected = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stallwatch_data_stall_suspected",
			Help: "Whether a data stall is currently suspected (0/1)",
		},
		[]string{core.LabelNetwork},
	)

	// StallTransitionsTotal counts suspected/cleared transitions
	StallTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stallwatch_stall_transitions_total",
			Help: "Total number of data stall state transitions",
		},
		[]string{core.LabelNetwork, "state"},
	)

	// ReporterErrorsTotal counts reporter errors by name and failed step
	ReporterErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stallwatch_reporter_errors_total",
			Help: "Total number of reporter errors",
		},
		[]string{"reporter", core.LabelReason},
	)

	// ConfigReloadsTotal counts live configuration reloads
	ConfigReloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stallwatch_config_reloads_total",
			Help: "Total number of configuration reloads",
		},
		[]string{core.LabelResult},
	)

	// DeviceIdle is 1 while polling is suspended by the idle signal
	DeviceIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stallwatch_device_idle",
			Help: "Whether polling is suspended because the device is idle (0/1)",
		},
	)
)

// BoolValue converts a flag to a gauge value.
func BoolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
