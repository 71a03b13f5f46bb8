// Package metrics exposes prometheus counters for the scheduled jobs and the
// pricing pipeline. All recording methods accept a nil *Registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg *prometheus.Registry

	JobRuns     *prometheus.CounterVec
	JobDuration *prometheus.HistogramVec
	JobSkipped  *prometheus.CounterVec

	AssetsStored      prometheus.Gauge
	LocationLookups   *prometheus.CounterVec
	AppraisalRequests *prometheus.CounterVec
	RatesUpdated      prometheus.Counter
	RatesSkipped      prometheus.Counter
	ContractsValued   *prometheus.CounterVec
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "buyback_job_runs_total"}, []string{"job", "result"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "buyback_job_duration_seconds",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	}, []string{"job"})
	jobSkipped := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "buyback_job_skipped_total"}, []string{"job"})

	assetsStored := prometheus.NewGauge(prometheus.GaugeOpts{Name: "buyback_assets_stored"})
	locationLookups := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "buyback_location_lookups_total"}, []string{"kind"})
	appraisalRequests := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "buyback_appraisal_requests_total"}, []string{"outcome"})
	ratesUpdated := prometheus.NewCounter(prometheus.CounterOpts{Name: "buyback_rates_updated_total"})
	ratesSkipped := prometheus.NewCounter(prometheus.CounterOpts{Name: "buyback_rates_skipped_total"})
	contractsValued := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "buyback_contracts_valued_total"}, []string{"result"})

	r.MustRegister(jobRuns, jobDuration, jobSkipped, assetsStored, locationLookups,
		appraisalRequests, ratesUpdated, ratesSkipped, contractsValued)
	return &Registry{
		reg:               r,
		JobRuns:           jobRuns,
		JobDuration:       jobDuration,
		JobSkipped:        jobSkipped,
		AssetsStored:      assetsStored,
		LocationLookups:   locationLookups,
		AppraisalRequests: appraisalRequests,
		RatesUpdated:      ratesUpdated,
		RatesSkipped:      ratesSkipped,
		ContractsValued:   contractsValued,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }

// ObserveJob records one finished job run.
func (r *Registry) ObserveJob(job string, took time.Duration, err error) {
	if r == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	r.JobRuns.WithLabelValues(job, result).Inc()
	r.JobDuration.WithLabelValues(job).Observe(took.Seconds())
}

func (r *Registry) SkipJob(job string) {
	if r == nil {
		return
	}
	r.JobSkipped.WithLabelValues(job).Inc()
}

func (r *Registry) SetAssetsStored(n int) {
	if r == nil {
		return
	}
	r.AssetsStored.Set(float64(n))
}

func (r *Registry) LocationLookup(kind string) {
	if r == nil {
		return
	}
	r.LocationLookups.WithLabelValues(kind).Inc()
}

func (r *Registry) AppraisalRequest(outcome string) {
	if r == nil {
		return
	}
	r.AppraisalRequests.WithLabelValues(outcome).Inc()
}

func (r *Registry) RateUpdated() {
	if r == nil {
		return
	}
	r.RatesUpdated.Inc()
}

func (r *Registry) RateSkipped() {
	if r == nil {
		return
	}
	r.RatesSkipped.Inc()
}

func (r *Registry) ContractValued(result string) {
	if r == nil {
		return
	}
	r.ContractsValued.WithLabelValues(result).Inc()
}
