package loader

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	loadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chain_loads_total",
		Help: "Chain document loads by result (ok or error kind)",
	}, []string{"result"})

	migrationStepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chain_migration_steps_total",
		Help: "Migration steps applied during loads, by step name",
	}, []string{"step"})

	checksumStatusTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chain_checksum_status_total",
		Help: "Checksum verification outcomes before migration",
	}, []string{"status"})
)
