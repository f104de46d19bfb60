package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		activeTimers,
		deliveriesTotal,
		reconfirmSkipsTotal,
		timerRestartsTotal,
	)
}

var (
	activeTimers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "reminder_active_timers",
			Help: "Number of per-user reminder timers currently running.",
		},
	)

	deliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminder_deliveries_total",
			Help: "Deliveries by kind (scheduled/one_off) and outcome (image/fallback/text_only/failed).",
		},
		[]string{"kind", "result"},
	)

	reconfirmSkipsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminder_reconfirm_skips_total",
			Help: "Fire instants skipped after re-reading the user's settings.",
		},
		[]string{"reason"}, // inactive, slot_changed, missing, read_error
	)

	timerRestartsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminder_timer_changes_total",
			Help: "Timer lifecycle events.",
		},
		[]string{"event"}, // start, supersede, stop, restore
	)
)

func SetActiveTimers(n int) {
	activeTimers.Set(float64(n))
}

func IncDelivery(kind, result string) {
	deliveriesTotal.WithLabelValues(norm(kind), norm(result)).Inc()
}

func IncReconfirmSkip(reason string) {
	reconfirmSkipsTotal.WithLabelValues(norm(reason)).Inc()
}

func IncTimerEvent(event string) {
	timerRestartsTotal.WithLabelValues(norm(event)).Inc()
}
