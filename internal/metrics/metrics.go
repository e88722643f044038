// Package metrics exposes Prometheus counters for the attendance flow.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsCreated counts issued attendance sessions.
	SessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qrattend_sessions_created_total",
		Help: "Number of attendance sessions issued.",
	})

	// Scans counts validation attempts by outcome (marked, conflict,
	// expired, forbidden, ...).
	Scans = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qrattend_scans_total",
		Help: "Number of attendance scan attempts by outcome.",
	}, []string{"outcome"})

	// NotificationsIssued counts shortage-job notifications by kind.
	NotificationsIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qrattend_notifications_issued_total",
		Help: "Number of notifications issued by kind.",
	}, []string{"kind"})
)
