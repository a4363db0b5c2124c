// Package metrics 提供推荐引擎的 Prometheus 指标。
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 汇集引擎各阶段的观测指标。
// nil *Metrics 是合法的空实现：所有方法安全降级为 no-op。
type Metrics struct {
	feedRequests     *prometheus.CounterVec
	feedLatency      *prometheus.HistogramVec
	cacheResults     *prometheus.CounterVec
	trainingRuns     *prometheus.CounterVec
	trainingDuration prometheus.Histogram
	trainingExamples prometheus.Gauge
}

// New 创建并注册指标；reg 为 nil 时使用默认 Registerer。
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		feedRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "feedrank",
			Name:      "feed_requests_total",
			Help:      "Feed requests by scoring path (ml / heuristic / cached).",
		}, []string{"path"}),
		feedLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "feedrank",
			Name:      "feed_request_seconds",
			Help:      "Feed request latency by scoring path.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path"}),
		cacheResults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "feedrank",
			Name:      "cache_results_total",
			Help:      "Cache lookups by cache name and result.",
		}, []string{"cache", "result"}),
		trainingRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "feedrank",
			Name:      "training_runs_total",
			Help:      "Training pipeline runs by outcome (success / insufficient_data / error).",
		}, []string{"result"}),
		trainingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "feedrank",
			Name:      "training_run_seconds",
			Help:      "Training pipeline run duration.",
			Buckets:   []float64{1, 5, 15, 60, 300, 900, 3600},
		}),
		trainingExamples: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "feedrank",
			Name:      "training_examples",
			Help:      "Examples generated by the last training run.",
		}),
	}
}

// ObserveFeedRequest 记录一次 feed 请求及其打分路径。
func (m *Metrics) ObserveFeedRequest(path string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.feedRequests.WithLabelValues(path).Inc()
	m.feedLatency.WithLabelValues(path).Observe(elapsed.Seconds())
}

// ObserveCache 记录一次缓存查找结果。
func (m *Metrics) ObserveCache(cache string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheResults.WithLabelValues(cache, result).Inc()
}

// ObserveTrainingRun 记录一次训练流水线运行。
func (m *Metrics) ObserveTrainingRun(result string, elapsed time.Duration, examples int) {
	if m == nil {
		return
	}
	m.trainingRuns.WithLabelValues(result).Inc()
	m.trainingDuration.Observe(elapsed.Seconds())
	m.trainingExamples.Set(float64(examples))
}
