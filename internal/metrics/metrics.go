// Package metrics keeps cleanup counters on a private registry and exports them in the
// node_exporter textfile format, which suits a short-lived cron job better than a scrape endpoint.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "deployprune"

const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

type Recorder struct {
	registry *prometheus.Registry

	GroupsDiscovered prometheus.Gauge
	GroupsRetained   prometheus.Gauge
	GroupsDeleted    prometheus.Counter
	ObjectsDeleted   prometheus.Counter
	Runs             *prometheus.CounterVec
	LastRunTime      prometheus.Gauge
	LastSuccessTime  prometheus.Gauge
	RunDuration      prometheus.Gauge
}

func New(bucket string) (*Recorder, error) {
	labels := prometheus.Labels{"bucket": bucket}
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		GroupsDiscovered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "groups_discovered",
			Help:        "Deployment groups found by the last run",
			ConstLabels: labels,
		}),
		GroupsRetained: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "groups_retained",
			Help:        "Deployment groups kept by the last run",
			ConstLabels: labels,
		}),
		GroupsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "groups_deleted_total",
			Help:        "Deployment groups deleted",
			ConstLabels: labels,
		}),
		ObjectsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "objects_deleted_total",
			Help:        "Objects removed by prefix deletes",
			ConstLabels: labels,
		}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "runs_total",
			Help:        "Cleanup runs by outcome",
			ConstLabels: labels,
		}, []string{"status"}),
		LastRunTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "last_run_timestamp_seconds",
			Help:        "Unix time the last run finished",
			ConstLabels: labels,
		}),
		LastSuccessTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "last_success_timestamp_seconds",
			Help:        "Unix time the last successful run finished",
			ConstLabels: labels,
		}),
		RunDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "last_run_duration_seconds",
			Help:        "Wall time of the last run",
			ConstLabels: labels,
		}),
	}

	collectors := []prometheus.Collector{
		r.GroupsDiscovered,
		r.GroupsRetained,
		r.GroupsDeleted,
		r.ObjectsDeleted,
		r.Runs,
		r.LastRunTime,
		r.LastSuccessTime,
		r.RunDuration,
	}
	for _, c := range collectors {
		if err := r.registry.Register(c); err != nil {
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}
	return r, nil
}

// Run is the outcome of one cleanup pass as seen by the recorder.
type Run struct {
	Status         string
	Discovered     int
	Retained       int
	GroupsDeleted  int
	ObjectsDeleted int
	Duration       time.Duration
	FinishedAt     time.Time
}

func (r *Recorder) ObserveRun(run Run) {
	if r == nil {
		return
	}
	r.GroupsDiscovered.Set(float64(run.Discovered))
	r.GroupsRetained.Set(float64(run.Retained))
	r.GroupsDeleted.Add(float64(run.GroupsDeleted))
	r.ObjectsDeleted.Add(float64(run.ObjectsDeleted))
	r.Runs.WithLabelValues(run.Status).Inc()
	r.LastRunTime.Set(float64(run.FinishedAt.Unix()))
	r.RunDuration.Set(run.Duration.Seconds())
	if run.Status == StatusSuccess {
		r.LastSuccessTime.Set(float64(run.FinishedAt.Unix()))
	}
}

// WriteTextfile atomically replaces path with the current metric values. An empty path is a no-op.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}
