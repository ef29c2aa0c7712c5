package adapter

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "priceadapter_requests_total",
			Help: "Total number of adapter requests, grouped by endpoint, mode and outcome",
		}, []string{"endpoint", "mode", "outcome"})
	droppedSymbols = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "priceadapter_dropped_symbols_total",
			Help: "Requested symbols that could not be mapped to a provider id",
		})
	missingLeaves = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "priceadapter_missing_pairs_total",
			Help: "Batch pairs absent from the upstream response",
		})
)
