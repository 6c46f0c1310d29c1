package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the backup engine collectors on a dedicated registry so tests
// can create as many instances as they like.
type Metrics struct {
	registry *prometheus.Registry

	JobsStarted      prometheus.Counter
	JobsFinished     *prometheus.CounterVec
	FilesArchived    prometheus.Counter
	FilesSkipped     prometheus.Counter
	TickDuration     prometheus.Histogram
	ScheduledRuns    *prometheus.CounterVec
	RetentionDeleted prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		JobsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sitekeep_jobs_started_total",
			Help: "Total number of backup jobs started",
		}),
		JobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sitekeep_jobs_finished_total",
			Help: "Total number of backup jobs that reached a terminal status",
		}, []string{"status"}),
		FilesArchived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sitekeep_files_archived_total",
			Help: "Total number of files added to archives",
		}),
		FilesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sitekeep_files_skipped_total",
			Help: "Total number of unreadable files skipped while archiving",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sitekeep_tick_duration_seconds",
			Help:    "Duration of a single job tick in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		ScheduledRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sitekeep_scheduled_runs_total",
			Help: "Scheduled backup triggers by outcome",
		}, []string{"outcome"}), // "ran", "skipped", "failed"
		RetentionDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sitekeep_retention_deleted_total",
			Help: "Total number of backup sets removed by retention",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.JobsStarted,
		m.JobsFinished,
		m.FilesArchived,
		m.FilesSkipped,
		m.TickDuration,
		m.ScheduledRuns,
		m.RetentionDeleted,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
