// Package metrics exposes the service counters on a private registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg *prometheus.Registry

	OrdersScanned prometheus.Counter
	OrdersPrinted prometheus.Counter
	OrdersDeleted prometheus.Counter
	EmailsSent    prometheus.Counter
	EmailsFailed  prometheus.Counter
}

func New() *Registry {
	r := prometheus.NewRegistry()

	scanned := prometheus.NewCounter(prometheus.CounterOpts{Name: "labelscan_orders_scanned_total"})
	printed := prometheus.NewCounter(prometheus.CounterOpts{Name: "labelscan_orders_printed_total"})
	deleted := prometheus.NewCounter(prometheus.CounterOpts{Name: "labelscan_orders_deleted_total"})
	sent := prometheus.NewCounter(prometheus.CounterOpts{Name: "labelscan_emails_sent_total"})
	failed := prometheus.NewCounter(prometheus.CounterOpts{Name: "labelscan_emails_failed_total"})

	r.MustRegister(scanned, printed, deleted, sent, failed)
	return &Registry{
		reg:           r,
		OrdersScanned: scanned,
		OrdersPrinted: printed,
		OrdersDeleted: deleted,
		EmailsSent:    sent,
		EmailsFailed:  failed,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
