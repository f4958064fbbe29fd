// Package metrics exports the outcome of a backup run in the Prometheus
// text format, for node_exporter's textfile collector.
package metrics

import (
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dotsave"

// RunStats is the run summary the exporter needs.
type RunStats struct {
	Start, End  time.Time
	Success     bool
	ArchiveSize int64
	// Items and Collectors count results by status.
	Items      map[string]int
	Collectors map[string]int
	// PrivilegedTier is the privileged tier status.
	PrivilegedTier string
}

// Collector is a prometheus.Collector over one RunStats.
type Collector struct {
	lastRun     prometheus.Gauge
	success     prometheus.Gauge
	duration    prometheus.Gauge
	archiveSize prometheus.Gauge
	items       *prometheus.GaugeVec
	collectors  *prometheus.GaugeVec
	tier        *prometheus.GaugeVec
}

// NewCollector returns a Collector populated from stats.
func NewCollector(stats RunStats) *Collector {
	c := &Collector{
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last backup run finished.",
		}),
		success: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success",
			Help:      "1 if the last backup run completed all stages.",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_duration_seconds",
			Help:      "Wall time of the last backup run.",
		}),
		archiveSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_archive_size_bytes",
			Help:      "Size of the last archive, 0 when not archiving.",
		}),
		items: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "items",
			Help:      "Backup items of the last run by status.",
		}, []string{"status"}),
		collectors: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "collectors",
			Help:      "Auxiliary collectors of the last run by status.",
		}, []string{"status"}),
		tier: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "privileged_tier",
			Help:      "Privileged tier outcome of the last run.",
		}, []string{"status"}),
	}

	c.lastRun.Set(float64(stats.End.Unix()))
	if stats.Success {
		c.success.Set(1)
	}
	c.duration.Set(stats.End.Sub(stats.Start).Seconds())
	c.archiveSize.Set(float64(stats.ArchiveSize))
	for status, n := range stats.Items {
		c.items.WithLabelValues(status).Set(float64(n))
	}
	for status, n := range stats.Collectors {
		c.collectors.WithLabelValues(status).Set(float64(n))
	}
	if stats.PrivilegedTier != "" {
		c.tier.WithLabelValues(stats.PrivilegedTier).Set(1)
	}
	return c
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.lastRun.Describe(ch)
	c.success.Describe(ch)
	c.duration.Describe(ch)
	c.archiveSize.Describe(ch)
	c.items.Describe(ch)
	c.collectors.Describe(ch)
	c.tier.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.lastRun.Collect(ch)
	c.success.Collect(ch)
	c.duration.Collect(ch)
	c.archiveSize.Collect(ch)
	c.items.Collect(ch)
	c.collectors.Collect(ch)
	c.tier.Collect(ch)
}

// WriteTextfile writes stats to path atomically.
func WriteTextfile(path string, stats RunStats) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "creating metrics directory")
	}
	reg := prometheus.NewRegistry()
	if err := reg.Register(NewCollector(stats)); err != nil {
		return errors.Wrap(err, "registering metrics")
	}
	return errors.Wrap(prometheus.WriteToTextfile(path, reg), "writing metrics textfile")
}
