// Package metrics provides the Prometheus recorder for pipeline metrics.
// The pipeline runs as a short-lived batch process, so instead of exposing a
// scrape endpoint the recorder gathers its registry at job end and logs a
// summary of every non-zero series.
package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/tigerroll/weatherlake/internal/support/util/logger"
)

// Recorder records ingestion and transform metrics into a private registry.
type Recorder struct {
	registry *prometheus.Registry

	// Ingestion metrics
	fetchSuccess    *prometheus.CounterVec
	fetchFailure    *prometheus.CounterVec
	rawWritten      prometheus.Counter
	fetchDuration   prometheus.Histogram

	// Planner metrics
	plannerDatesExamined prometheus.Counter
	plannerUnitsPlanned  prometheus.Counter
	planDuration         prometheus.Histogram

	// Transform metrics
	transformRecords     prometheus.Counter
	transformFailedFiles prometheus.Counter
	transformDuration    prometheus.Histogram
}

// NewRecorder creates a new Recorder with a dedicated registry.
func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()

	// Register Go standard metrics and process/OS metrics.
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Recorder{
		registry: registry,
		fetchSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "weatherlake_fetch_success_total",
			Help: "Total successful historical-weather fetches by city.",
		}, []string{"city"}),
		fetchFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "weatherlake_fetch_failure_total",
			Help: "Total failed historical-weather fetches by city.",
		}, []string{"city"}),
		rawWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "weatherlake_raw_objects_written_total",
			Help: "Total raw observation objects written to storage.",
		}),
		fetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "weatherlake_fetch_duration_seconds",
			Help:    "Duration of historical-weather fetches.",
			Buckets: prometheus.DefBuckets,
		}),
		plannerDatesExamined: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "weatherlake_planner_dates_examined_total",
			Help: "Total raw date partitions examined by the transform planner.",
		}),
		plannerUnitsPlanned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "weatherlake_planner_units_planned_total",
			Help: "Total unprocessed observation units scheduled for transform.",
		}),
		planDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "weatherlake_plan_duration_seconds",
			Help:    "Duration of transform planning runs.",
			Buckets: prometheus.DefBuckets,
		}),
		transformRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "weatherlake_transform_records_total",
			Help: "Total records written to the processed dataset.",
		}),
		transformFailedFiles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "weatherlake_transform_failed_files_total",
			Help: "Total raw files reported failed by the bulk transform step.",
		}),
		transformDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "weatherlake_transform_duration_seconds",
			Help:    "Duration of bulk transform runs.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	registry.MustRegister(r.fetchSuccess)
	registry.MustRegister(r.fetchFailure)
	registry.MustRegister(r.rawWritten)
	registry.MustRegister(r.fetchDuration)
	registry.MustRegister(r.plannerDatesExamined)
	registry.MustRegister(r.plannerUnitsPlanned)
	registry.MustRegister(r.planDuration)
	registry.MustRegister(r.transformRecords)
	registry.MustRegister(r.transformFailedFiles)
	registry.MustRegister(r.transformDuration)

	return r
}

// GetRegistry returns the Prometheus registry backing this recorder.
func (r *Recorder) GetRegistry() *prometheus.Registry {
	return r.registry
}

// RecordFetchSuccess records one successful fetch for a city.
func (r *Recorder) RecordFetchSuccess(city string, duration time.Duration) {
	r.fetchSuccess.WithLabelValues(city).Inc()
	r.fetchDuration.Observe(duration.Seconds())
}

// RecordFetchFailure records one failed fetch for a city.
func (r *Recorder) RecordFetchFailure(city string) {
	r.fetchFailure.WithLabelValues(city).Inc()
}

// RecordRawWrite records one raw object written.
func (r *Recorder) RecordRawWrite() {
	r.rawWritten.Inc()
}

// RecordPlan records the outcome of one planner run.
func (r *Recorder) RecordPlan(datesExamined, unitsPlanned int, duration time.Duration) {
	r.plannerDatesExamined.Add(float64(datesExamined))
	r.plannerUnitsPlanned.Add(float64(unitsPlanned))
	r.planDuration.Observe(duration.Seconds())
}

// RecordTransform records the outcome of one bulk transform run.
func (r *Recorder) RecordTransform(records, failedFiles int, duration time.Duration) {
	r.transformRecords.Add(float64(records))
	r.transformFailedFiles.Add(float64(failedFiles))
	r.transformDuration.Observe(duration.Seconds())
}

// LogSummary gathers the registry and logs every non-zero pipeline series.
// Called once at job end.
func (r *Recorder) LogSummary() {
	families, err := r.registry.Gather()
	if err != nil {
		logger.Errorf("Metrics: failed to gather registry: %v", err)
		return
	}
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), "weatherlake_") {
			continue
		}
		for _, m := range mf.GetMetric() {
			var value float64
			switch {
			case m.GetCounter() != nil:
				value = m.GetCounter().GetValue()
			case m.GetHistogram() != nil:
				value = float64(m.GetHistogram().GetSampleCount())
			default:
				continue
			}
			if value == 0 {
				continue
			}
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			if len(labels) > 0 {
				logger.Infof("Metrics: %s{%s} = %v", mf.GetName(), strings.Join(labels, ","), value)
			} else {
				logger.Infof("Metrics: %s = %v", mf.GetName(), value)
			}
		}
	}
}
