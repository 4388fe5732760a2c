package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CurrentHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "blocknorm_current_height",
		Help: "The current block number being processed by the indexer",
	})

	ChainHead = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "blocknorm_chain_head",
		Help: "The latest block number available from the RPC source",
	})

	ReorgCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blocknorm_reorg_count",
		Help: "Total number of chain reorganizations detected",
	})

	ProcessingLag = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "blocknorm_processing_lag",
		Help: "Difference between chain head and current processed height",
	})

	CallsExtracted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blocknorm_calls_extracted_total",
		Help: "Total number of contract calls extracted from traces",
	})

	TriggersDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blocknorm_triggers_dispatched_total",
		Help: "Total number of triggers dispatched to handlers, by kind",
	}, []string{"kind"})
)
