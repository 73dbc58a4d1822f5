package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ActiveCallsProvider exposes the number of live call handlers.
type ActiveCallsProvider interface {
	ActiveCallCount() int
}

// Counters are the event counts incremented by the lifecycle controller and
// the call registry. All fields are safe for concurrent use.
type Counters struct {
	NotificationBatches    atomic.Int64
	NotificationsProcessed atomic.Int64
	NotificationsSkipped   atomic.Int64
	CallsCreated           atomic.Int64
	RecordingsStarted      atomic.Int64
	HangUps                atomic.Int64
	KeepAliveBeats         atomic.Int64
	KeepAliveFailures      atomic.Int64
	AuthRejections         atomic.Int64
	DownstreamFaults       atomic.Int64
}

// Collector is a prometheus.Collector that gathers dialout metrics at scrape time.
type Collector struct {
	activeCalls ActiveCallsProvider
	counters    *Counters
	startTime   time.Time

	// Metric descriptors.
	activeCallsDesc       *prometheus.Desc
	batchesDesc           *prometheus.Desc
	notificationsDesc     *prometheus.Desc
	callsCreatedDesc      *prometheus.Desc
	recordingsDesc        *prometheus.Desc
	hangupsDesc           *prometheus.Desc
	keepAliveBeatsDesc    *prometheus.Desc
	keepAliveFailuresDesc *prometheus.Desc
	authRejectionsDesc    *prometheus.Desc
	downstreamFaultsDesc  *prometheus.Desc
	uptimeDesc            *prometheus.Desc
}

// NewCollector creates a metrics collector. activeCalls may be nil if
// unavailable.
func NewCollector(activeCalls ActiveCallsProvider, counters *Counters, startTime time.Time) *Collector {
	return &Collector{
		activeCalls: activeCalls,
		counters:    counters,
		startTime:   startTime,

		activeCallsDesc: prometheus.NewDesc(
			"dialout_active_calls",
			"Number of call handlers currently registered",
			nil, nil,
		),
		batchesDesc: prometheus.NewDesc(
			"dialout_notification_batches_total",
			"Total webhook notification batches accepted",
			nil, nil,
		),
		notificationsDesc: prometheus.NewDesc(
			"dialout_notifications_total",
			"Total notification entries handled, by outcome",
			[]string{"outcome"}, nil,
		),
		callsCreatedDesc: prometheus.NewDesc(
			"dialout_calls_created_total",
			"Total outbound calls placed",
			nil, nil,
		),
		recordingsDesc: prometheus.NewDesc(
			"dialout_recordings_started_total",
			"Total record operations started",
			nil, nil,
		),
		hangupsDesc: prometheus.NewDesc(
			"dialout_hangups_total",
			"Total hang-up actions issued",
			nil, nil,
		),
		keepAliveBeatsDesc: prometheus.NewDesc(
			"dialout_keepalive_beats_total",
			"Total keep-alive beats dispatched",
			nil, nil,
		),
		keepAliveFailuresDesc: prometheus.NewDesc(
			"dialout_keepalive_failures_total",
			"Total keep-alive beats that failed",
			nil, nil,
		),
		authRejectionsDesc: prometheus.NewDesc(
			"dialout_auth_rejections_total",
			"Total webhook requests rejected by token validation",
			nil, nil,
		),
		downstreamFaultsDesc: prometheus.NewDesc(
			"dialout_downstream_faults_total",
			"Total outbound platform actions rejected by the platform",
			nil, nil,
		),
		uptimeDesc: prometheus.NewDesc(
			"dialout_uptime_seconds",
			"Seconds since the dialout process started",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.activeCallsDesc
	ch <- c.batchesDesc
	ch <- c.notificationsDesc
	ch <- c.callsCreatedDesc
	ch <- c.recordingsDesc
	ch <- c.hangupsDesc
	ch <- c.keepAliveBeatsDesc
	ch <- c.keepAliveFailuresDesc
	ch <- c.authRejectionsDesc
	ch <- c.downstreamFaultsDesc
	ch <- c.uptimeDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.activeCalls != nil {
		ch <- prometheus.MustNewConstMetric(
			c.activeCallsDesc, prometheus.GaugeValue,
			float64(c.activeCalls.ActiveCallCount()),
		)
	}

	if c.counters != nil {
		ch <- prometheus.MustNewConstMetric(
			c.batchesDesc, prometheus.CounterValue,
			float64(c.counters.NotificationBatches.Load()),
		)
		ch <- prometheus.MustNewConstMetric(
			c.notificationsDesc, prometheus.CounterValue,
			float64(c.counters.NotificationsProcessed.Load()), "processed",
		)
		ch <- prometheus.MustNewConstMetric(
			c.notificationsDesc, prometheus.CounterValue,
			float64(c.counters.NotificationsSkipped.Load()), "skipped",
		)
		ch <- prometheus.MustNewConstMetric(
			c.callsCreatedDesc, prometheus.CounterValue,
			float64(c.counters.CallsCreated.Load()),
		)
		ch <- prometheus.MustNewConstMetric(
			c.recordingsDesc, prometheus.CounterValue,
			float64(c.counters.RecordingsStarted.Load()),
		)
		ch <- prometheus.MustNewConstMetric(
			c.hangupsDesc, prometheus.CounterValue,
			float64(c.counters.HangUps.Load()),
		)
		ch <- prometheus.MustNewConstMetric(
			c.keepAliveBeatsDesc, prometheus.CounterValue,
			float64(c.counters.KeepAliveBeats.Load()),
		)
		ch <- prometheus.MustNewConstMetric(
			c.keepAliveFailuresDesc, prometheus.CounterValue,
			float64(c.counters.KeepAliveFailures.Load()),
		)
		ch <- prometheus.MustNewConstMetric(
			c.authRejectionsDesc, prometheus.CounterValue,
			float64(c.counters.AuthRejections.Load()),
		)
		ch <- prometheus.MustNewConstMetric(
			c.downstreamFaultsDesc, prometheus.CounterValue,
			float64(c.counters.DownstreamFaults.Load()),
		)
	}

	ch <- prometheus.MustNewConstMetric(
		c.uptimeDesc, prometheus.GaugeValue,
		time.Since(c.startTime).Seconds(),
	)
}
