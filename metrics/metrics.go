// Package metrics exposes Prometheus collectors for session activity.
// A nil *Metrics is valid and records nothing.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "authclient"

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

type Metrics struct {
	logins   *prometheus.CounterVec
	renewals *prometheus.CounterVec
	logouts  prometheus.Counter
	retries  *prometheus.CounterVec
}

// New creates the collectors and registers them on reg. A nil reg skips registration.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
		renewals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_renewals_total",
			Help:      "Access token renewals by outcome.",
		}, []string{"outcome"}),
		logouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logouts_total",
			Help:      "Session clears, explicit or forced by a failed renewal.",
		}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_retries_total",
			Help:      "Requests resent after an authorization failure, by outcome (success is a 2xx resend).",
		}, []string{"outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.logins, m.renewals, m.logouts, m.retries)
	}
	return m
}

func outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}

func (m *Metrics) ObserveLogin(err error) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcome(err)).Inc()
}

func (m *Metrics) ObserveRenewal(err error) {
	if m == nil {
		return
	}
	m.renewals.WithLabelValues(outcome(err)).Inc()
}

func (m *Metrics) ObserveLogout() {
	if m == nil {
		return
	}
	m.logouts.Inc()
}

// ObserveRetry records a resend after renewal. ok is true only when the resend
// completed with a 2xx status.
func (m *Metrics) ObserveRetry(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.retries.WithLabelValues(OutcomeSuccess).Inc()
		return
	}
	m.retries.WithLabelValues(OutcomeFailure).Inc()
}
