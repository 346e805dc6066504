package service

import "github.com/prometheus/client_golang/prometheus"

var (
	checkoutTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_total",
			Help: "Checkout attempts by result",
		},
		[]string{"result"},
	)

	stockDecrementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stock_decrements_total",
			Help: "Per-item stock decrements performed during checkout",
		},
		[]string{"result"},
	)

	orderStatusTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_status_transitions_total",
			Help: "Order status changes by target status",
		},
		[]string{"status"},
	)

	orderPaymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_payments_total",
			Help: "Orders marked paid by source",
		},
		[]string{"source"},
	)
)

func init() {
	prometheus.MustRegister(checkoutTotal, stockDecrementsTotal, orderStatusTransitionsTotal, orderPaymentsTotal)
}
