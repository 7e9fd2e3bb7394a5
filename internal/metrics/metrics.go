// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	streamProbes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "primecast_stream_probes_total",
		Help: "Stream reachability probes by outcome",
	}, []string{"outcome"}) // outcome=reachable|unreachable

	probeSessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "primecast_probe_sessions_total",
		Help: "Probe sessions by how they ended",
	}, []string{"result"}) // result=completed|cancelled

	probeSessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "primecast_probe_sessions_active",
		Help: "Probe sessions currently running",
	})

	browseSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "primecast_browse_sessions",
		Help: "Browse sessions held in memory",
	})

	catalogFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "primecast_catalog_fetches_total",
		Help: "Upstream catalog dataset fetches by dataset and status",
	}, []string{"dataset", "status"}) // status=success|error

	catalogChannels = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "primecast_catalog_channels",
		Help: "Channels in the last loaded catalog",
	})

	playbackEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "primecast_playback_events_total",
		Help: "Playback events reported by clients, by event and resulting action",
	}, []string{"event", "action"})
)

// RecordStreamProbe counts one reachability probe.
func RecordStreamProbe(reachable bool) {
	if reachable {
		streamProbes.WithLabelValues("reachable").Inc()
		return
	}
	streamProbes.WithLabelValues("unreachable").Inc()
}

// ProbeSessionStarted marks a probe session as running.
func ProbeSessionStarted() { probeSessionsActive.Inc() }

// ProbeSessionEnded records how a probe session finished.
func ProbeSessionEnded(cancelled bool) {
	probeSessionsActive.Dec()
	if cancelled {
		probeSessions.WithLabelValues("cancelled").Inc()
		return
	}
	probeSessions.WithLabelValues("completed").Inc()
}

// SetBrowseSessions reports the number of live browse sessions.
func SetBrowseSessions(n int) { browseSessions.Set(float64(n)) }

// RecordCatalogFetch counts one upstream dataset download.
func RecordCatalogFetch(dataset string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	catalogFetches.WithLabelValues(dataset, status).Inc()
}

// SetCatalogChannels reports the size of the loaded channel dataset.
func SetCatalogChannels(n int) { catalogChannels.Set(float64(n)) }

// RecordPlaybackEvent counts a client playback report and the decision taken.
func RecordPlaybackEvent(event, action string) {
	playbackEvents.WithLabelValues(event, action).Inc()
}
