package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Métricas del login coordinator. Viven en un paquete aparte para que
// pending, flow y http las usen sin ciclos de import.

var (
	FlowsInitiated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oauthlink_flows_initiated_total",
		Help: "Logins iniciados (redirect al provider)",
	}, []string{"provider"})

	Callbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oauthlink_callbacks_total",
		Help: "Callbacks procesados por resultado",
	}, []string{"provider", "outcome"})

	ProviderRequestSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "oauthlink_provider_request_seconds",
		Help:    "Latencia de llamadas al provider (exchange, identity)",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "op"})

	PendingReaped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oauthlink_pending_reaped_total",
		Help: "Intentos pendientes vencidos eliminados por el reaper",
	})

	PendingAttempts = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "oauthlink_pending_attempts",
		Help: "Intentos pendientes guardados al último sweep",
	})

	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oauthlink_http_requests_total",
		Help: "Requests HTTP por ruta y status",
	}, []string{"method", "route", "status"})

	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "oauthlink_http_request_duration_seconds",
		Help:    "Latencia de requests HTTP",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// Register registra todas las métricas en reg (o el default si es nil).
// Tolera AlreadyRegisteredError para poder llamarse más de una vez.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{
		FlowsInitiated, Callbacks, ProviderRequestSeconds,
		PendingReaped, PendingAttempts,
		HTTPRequests, HTTPDuration,
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
