package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Counter pairs a prometheus counter with an in-process value the sentinel
// can sample without scraping its own /metrics endpoint.
type Counter struct {
	prom  prometheus.Counter
	value atomic.Int64
}

// Inc increments the counter
func (c *Counter) Inc() {
	c.prom.Inc()
	c.value.Add(1)
}

// Add increments the counter by n
func (c *Counter) Add(n int64) {
	c.prom.Add(float64(n))
	c.value.Add(n)
}

// Value returns the current count
func (c *Counter) Value() int64 {
	return c.value.Load()
}

// Registry holds every engine counter
type Registry struct {
	promRegistry *prometheus.Registry

	DecisionsComputed    *Counter
	EdgesDetected        *Counter
	IntegrityViolations  *Counter
	MissingSelectionID   *Counter
	MissingSnapshotHash  *Counter
	PostsAttempted       *Counter
	PostValidationFailed *Counter
	PostsSent            *Counter
	SimRuns              *Counter
	SimTimeouts          *Counter
	GradingCompleted     *Counter
	GradingFailed        *Counter
	WriterUnauthorized   *Counter
	ParlayAttempts       *Counter
}

// New creates the registry and registers all collectors
func New() *Registry {
	promReg := prometheus.NewRegistry()

	newCounter := func(name, help string) *Counter {
		c := &Counter{
			prom: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "pythia",
				Name:      name,
				Help:      help,
			}),
		}
		promReg.MustRegister(c.prom)
		return c
	}

	return &Registry{
		promRegistry: promReg,

		DecisionsComputed:    newCounter("decisions_computed_total", "Market decisions produced by the decision computer"),
		EdgesDetected:        newCounter("edges_detected_total", "Decisions classified EDGE"),
		IntegrityViolations:  newCounter("integrity_violations_total", "Decisions blocked by the integrity validator"),
		MissingSelectionID:   newCounter("missing_selection_id_total", "Decisions missing a selection id"),
		MissingSnapshotHash:  newCounter("missing_snapshot_hash_total", "Decisions missing an inputs hash"),
		PostsAttempted:       newCounter("posts_attempted_total", "Publish attempts pulled from the queue"),
		PostValidationFailed: newCounter("post_validation_failed_total", "Publish attempts rejected by the copy validator"),
		PostsSent:            newCounter("posts_sent_total", "Messages posted to the outbound channel"),
		SimRuns:              newCounter("sim_runs_total", "Simulation runs completed"),
		SimTimeouts:          newCounter("sim_timeouts_total", "Simulation runs aborted at the wall-clock ceiling"),
		GradingCompleted:     newCounter("grading_completed_total", "Grading records written"),
		GradingFailed:        newCounter("grading_failed_total", "Grading attempts that failed"),
		WriterUnauthorized:   newCounter("writer_unauthorized_total", "Writes refused by the writer matrix"),
		ParlayAttempts:       newCounter("parlay_attempts_total", "Parlay construction attempts"),
	}
}

// Handler serves the prometheus exposition endpoint
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.promRegistry, promhttp.HandlerOpts{})
}
