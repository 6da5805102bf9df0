package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics interface {
	StartPlatformCall(platform string) CallObserver
	PublishOutcome(platform, status, code string)
	TokenRefresh(platform, result string)
}

type CallObserver interface {
	Finish()
}

type metrics struct {
	publishOutcomes *prometheus.CounterVec
	platformCalls   *prometheus.HistogramVec
	tokenRefreshes  *prometheus.CounterVec
}

func New(reg prometheus.Registerer) Metrics {
	res := &metrics{}

	res.publishOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "publish_outcomes_total",
		Help: "Publish outcomes per target, by platform, status and error code.",
	}, []string{"platform", "status", "code"})

	res.platformCalls = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "platform_call_duration_seconds",
		Help:    "Duration in seconds of publish calls made to platforms.",
		Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
	}, []string{"platform"})

	res.tokenRefreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "token_refresh_total",
		Help: "OAuth2 token refresh attempts by platform and result.",
	}, []string{"platform", "result"})

	reg.MustRegister(res.publishOutcomes, res.platformCalls, res.tokenRefreshes)
	return res
}

type callObserver struct {
	platform string
	start    time.Time
	hgvec    *prometheus.HistogramVec
}

func (o *callObserver) Finish() {
	o.hgvec.WithLabelValues(o.platform).Observe(time.Since(o.start).Seconds())
}

func (m *metrics) StartPlatformCall(platform string) CallObserver {
	return &callObserver{platform: platform, start: time.Now(), hgvec: m.platformCalls}
}

func (m *metrics) PublishOutcome(platform, status, code string) {
	m.publishOutcomes.WithLabelValues(platform, status, code).Inc()
}

func (m *metrics) TokenRefresh(platform, result string) {
	m.tokenRefreshes.WithLabelValues(platform, result).Inc()
}

// Nop discards everything.
type Nop struct{}

type nopObserver struct{}

func (nopObserver) Finish() {}

func (Nop) StartPlatformCall(string) CallObserver { return nopObserver{} }
func (Nop) PublishOutcome(string, string, string) {}
func (Nop) TokenRefresh(string, string)           {}
