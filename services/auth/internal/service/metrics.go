package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	logins = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_logins_total",
		Help: "Successful logins.",
	})

	loginFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_login_failures_total",
			Help: "Failed logins by reason.",
		},
		[]string{"reason"},
	)

	rotations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_refresh_rotations_total",
			Help: "Refresh token exchanges by outcome.",
		},
		[]string{"outcome"},
	)

	purged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_refresh_tokens_purged_total",
		Help: "Expired refresh records removed by the janitor.",
	})
)
