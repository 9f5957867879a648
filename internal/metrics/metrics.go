// Package metrics holds the Prometheus collectors for the checkout engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkout_sessions_created_total",
		Help: "Checkout sessions successfully created.",
	})
	SessionsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkout_sessions_completed_total",
		Help: "Checkout sessions confirmed before expiry.",
	})
	SessionsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkout_sessions_expired_total",
		Help: "Checkout sessions released back to inventory.",
	})
	InsufficientStock = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkout_insufficient_stock_total",
		Help: "Session creations rejected for lack of stock.",
	})
	ReservationsReleased = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkout_reservations_released_total",
		Help: "Individual reservations released back to inventory.",
	})
	LowStock = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_low_stock_total",
		Help: "Adjustments that left a product at or below its low-stock threshold.",
	}, []string{"product_id"})
	SweepCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reclaim_sweep_cycles_total",
		Help: "Reclaim sweep cycles executed.",
	})
	SweepFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reclaim_sweep_failures_total",
		Help: "Sessions the reclaim sweep failed to release.",
	})
)
