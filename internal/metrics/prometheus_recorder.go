package metrics

import (
	"fmt"
	"sort"
	"strings"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "dosekeep"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	persistDuration  *prom.HistogramVec
	persistResults   *prom.CounterVec
	persistCoalesced prom.Counter
	hydrateResults   *prom.CounterVec
	checkIns         *prom.CounterVec
	currentStreak    prom.Gauge
}

// NewPrometheusRecorder constructs the metrics and registers them on reg.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		persistDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "persist_duration_seconds",
			Help:      "Duration of state blob writes to the storage backend",
			Buckets:   prom.DefBuckets,
		}, []string{"result"}),
		persistResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "persist_results_total",
			Help:      "State blob writes by outcome",
		}, []string{"result"}),
		persistCoalesced: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "persist_coalesced_total",
			Help:      "Snapshots superseded by a newer one before being written",
		}),
		hydrateResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "hydrate_results_total",
			Help:      "State loads by outcome",
		}, []string{"result"}),
		checkIns: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "checkins_total",
			Help:      "Check-in requests by outcome",
		}, []string{"result"}),
		currentStreak: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "current_streak_days",
			Help:      "Current streak after the last state change",
		}),
	}
	reg.MustRegister(pr.persistDuration, pr.persistResults, pr.persistCoalesced, pr.hydrateResults, pr.checkIns, pr.currentStreak)
	return pr
}

func (p *PrometheusRecorder) ObservePersistDuration(d time.Duration, result ResultLabel) {
	if p == nil || p.persistDuration == nil {
		return
	}
	p.persistDuration.WithLabelValues(string(result)).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncPersistResult(result ResultLabel) {
	if p == nil || p.persistResults == nil {
		return
	}
	p.persistResults.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) IncPersistCoalesced() {
	if p == nil || p.persistCoalesced == nil {
		return
	}
	p.persistCoalesced.Inc()
}

func (p *PrometheusRecorder) IncHydrateResult(result HydrateLabel) {
	if p == nil || p.hydrateResults == nil {
		return
	}
	p.hydrateResults.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) IncCheckIn(result CheckInLabel) {
	if p == nil || p.checkIns == nil {
		return
	}
	p.checkIns.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) SetCurrentStreak(n int) {
	if p == nil || p.currentStreak == nil {
		return
	}
	p.currentStreak.Set(float64(n))
}

// Sample is one gathered series flattened for display.
type Sample struct {
	Name  string
	Value float64
}

// Snapshot gathers reg into name{labels}=value samples sorted by name.
// Histograms report their observation count.
func Snapshot(reg prom.Gatherer) ([]Sample, error) {
	mfs, err := reg.Gather()
	if err != nil {
		return nil, fmt.Errorf("failed to gather metrics: %w", err)
	}

	var samples []Sample
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			name := mf.GetName()
			if len(labels) > 0 {
				name += "{" + strings.Join(labels, ",") + "}"
			}

			var value float64
			switch {
			case m.GetCounter() != nil:
				value = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				value = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				value = float64(m.GetHistogram().GetSampleCount())
			}
			samples = append(samples, Sample{Name: name, Value: value})
		}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].Name < samples[j].Name })
	return samples, nil
}
