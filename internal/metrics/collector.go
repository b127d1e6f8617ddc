package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Collector struct {
	roomsActive   prometheus.Gauge
	membersActive prometheus.Gauge
	connections   prometheus.Gauge

	roomsCreatedTotal   prometheus.Counter
	masterChangesTotal  *prometheus.CounterVec
	eventsTotal         *prometheus.CounterVec
	controlDeniedTotal  *prometheus.CounterVec
	droppedFramesTotal  prometheus.Counter
	rateLimitedTotal    prometheus.Counter
	archiveDroppedTotal prometheus.Counter
}

// NewCollector registers the collectors with reg. A nil reg means the default
// prometheus registry.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		roomsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "syncroom_rooms_active",
			Help: "Number of rooms currently open",
		}),

		membersActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "syncroom_members_active",
			Help: "Number of members across all rooms",
		}),

		connections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "syncroom_connections_active",
			Help: "Number of open websocket connections",
		}),

		roomsCreatedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "syncroom_rooms_created_total",
			Help: "Total number of rooms created",
		}),

		masterChangesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "syncroom_master_changes_total",
			Help: "Total number of master changes by reason",
		}, []string{"reason"}),

		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "syncroom_events_total",
			Help: "Total number of client events handled by type",
		}, []string{"type"}),

		controlDeniedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "syncroom_control_denied_total",
			Help: "Total number of rejected control attempts by event type",
		}, []string{"type"}),

		droppedFramesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "syncroom_dropped_frames_total",
			Help: "Total number of outgoing frames dropped for slow consumers",
		}),

		rateLimitedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "syncroom_rate_limited_total",
			Help: "Total number of client messages rejected by the rate limiter",
		}),

		archiveDroppedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "syncroom_archive_dropped_total",
			Help: "Total number of chat messages not archived because the queue was full",
		}),
	}
}

func (c *Collector) RecordRoomCreated() {
	c.roomsActive.Inc()
	c.roomsCreatedTotal.Inc()
}

func (c *Collector) RecordRoomDestroyed() {
	c.roomsActive.Dec()
}

func (c *Collector) RecordMemberJoined() {
	c.membersActive.Inc()
}

func (c *Collector) RecordMemberLeft() {
	c.membersActive.Dec()
}

func (c *Collector) RecordConnectionOpened() {
	c.connections.Inc()
}

func (c *Collector) RecordConnectionClosed() {
	c.connections.Dec()
}

// RecordMasterChanged counts a handoff. reason is "failover" or "promote".
func (c *Collector) RecordMasterChanged(reason string) {
	c.masterChangesTotal.WithLabelValues(reason).Inc()
}

func (c *Collector) RecordEvent(messageType string) {
	c.eventsTotal.WithLabelValues(messageType).Inc()
}

func (c *Collector) RecordControlDenied(messageType string) {
	c.controlDeniedTotal.WithLabelValues(messageType).Inc()
}

func (c *Collector) RecordFrameDropped() {
	c.droppedFramesTotal.Inc()
}

func (c *Collector) RecordRateLimited() {
	c.rateLimitedTotal.Inc()
}

func (c *Collector) RecordArchiveDropped() {
	c.archiveDroppedTotal.Inc()
}
