package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "repschema"

var (
	once sync.Once

	cycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Count of poll cycles by result.",
		},
		[]string{"result"},
	)

	fetchErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_errors_total",
			Help:      "Count of failed calendar feed requests.",
		},
	)

	parseErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_errors_total",
			Help:      "Count of calendar feeds that could not be parsed.",
		},
	)

	newBookings = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "new_bookings_total",
			Help:      "Count of bookings seen for the first time.",
		},
	)

	scheduledBookings = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduled_bookings",
			Help:      "Number of bookings in the current schedule.",
		},
	)

	fetchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Time spent fetching the calendar feed.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2, 5, 10},
		},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(cycles, fetchErrors, parseErrors, newBookings, scheduledBookings, fetchDuration)
	})
}

func IncCycle(result string) {
	cycles.WithLabelValues(result).Inc()
}

func IncFetchError() {
	fetchErrors.Inc()
}

func IncParseError() {
	parseErrors.Inc()
}

func AddNewBookings(n int) {
	newBookings.Add(float64(n))
}

func SetScheduledBookings(n int) {
	scheduledBookings.Set(float64(n))
}

func ObserveFetchDuration(seconds float64) {
	fetchDuration.Observe(seconds)
}
