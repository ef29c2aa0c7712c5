package registry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	refreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "priceadapter_registry_refresh_total",
			Help: "Total number of coin catalog fetches, grouped by outcome",
		}, []string{"outcome"})
	catalogSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "priceadapter_registry_coins",
			Help: "Number of coins in the current catalog snapshot",
		})
)
