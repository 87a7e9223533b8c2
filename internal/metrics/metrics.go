package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var FramesTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "firemon",
	Subsystem: "decoder",
	Name:      "frames_total",
	Help:      "Telemetry frames decoded successfully.",
})

var FrameErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "firemon",
	Subsystem: "decoder",
	Name:      "frame_errors_total",
	Help:      "Telemetry frames rejected by the decoder.",
})

var ValidationFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "firemon",
	Subsystem: "status",
	Name:      "validation_failures_total",
	Help:      "Snapshots whose recomputed flags disagreed with the stored flags.",
})

var ReconnectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "firemon",
	Subsystem: "transport",
	Name:      "reconnects_total",
	Help:      "Reconnection attempts per transport.",
}, []string{"transport"})

var AlarmGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "firemon",
	Subsystem: "status",
	Name:      "alarm",
	Help:      "1 while the system-wide alarm flag is set.",
})

var TroubleGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "firemon",
	Subsystem: "status",
	Name:      "trouble",
	Help:      "1 while the system-wide trouble flag is set.",
})

var ConnectionGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "firemon",
	Subsystem: "transport",
	Name:      "connection_state",
	Help:      "Active transport connection state (0 disconnected, 1 connecting, 2 connected, 3 failed).",
})
