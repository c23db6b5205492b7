// Package metrics define las métricas Prometheus del servicio. Paquete
// aparte para evitar ciclos de import entre httpapi y los paquetes de dominio.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once
	registerErr  error

	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Dominio
	TokensIssuedTotal   *prometheus.CounterVec
	TokensVerifiedTotal *prometheus.CounterVec
	KeyPairsCreated     prometheus.Counter
)

// Register inicializa y registra las métricas. Idempotente.
// reg nil usa el registerer default.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	registerOnce.Do(func() {
		HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Número total de requests procesadas",
		}, []string{"method", "path", "status"})

		HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Latencia de los requests HTTP",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"})

		TokensIssuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tokens_issued_total",
			Help: "Tokens firmados, por algoritmo",
		}, []string{"alg"})

		TokensVerifiedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tokens_verified_total",
			Help: "Verificaciones de token, por resultado",
		}, []string{"result"}) // result: ok|<error kind>

		KeyPairsCreated = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "key_pairs_created_total",
			Help: "Pares de claves creados",
		})

		for _, c := range []prometheus.Collector{
			HTTPRequestsTotal, HTTPRequestDuration,
			TokensIssuedTotal, TokensVerifiedTotal, KeyPairsCreated,
		} {
			if err := reg.Register(c); err != nil {
				if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
					registerErr = err
					return
				}
			}
		}
	})
	return registerErr
}

// Handler expone /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
