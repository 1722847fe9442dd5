// Package metrics holds the prometheus metrics of the sequencer app.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "astria_sequencer"

// Metrics are the app level counters, gauges and histograms. A nil *Metrics
// is not valid; use NewNop in tests that do not scrape.
type Metrics struct {
	CheckTxDuration           *prometheus.HistogramVec
	CheckTxRemoved            *prometheus.CounterVec
	ProposalTransactions      prometheus.Histogram
	PrepareProposalExcluded   *prometheus.CounterVec
	ProcessProposalSkipped    prometheus.Counter
	ProcessProposalRejected   prometheus.Counter
	FinalizeBlockDuration     prometheus.Histogram
	TransactionsExecuted      *prometheus.CounterVec
	BlockDeposits             prometheus.Counter
	SequencedDataBytes        prometheus.Histogram
	MempoolTransactions       *prometheus.GaugeVec
	MempoolMaintenanceSeconds prometheus.Histogram
	OraclePricesApplied       prometheus.Counter
	UpgradesApplied           *prometheus.CounterVec
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := newMetrics()
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// NewNop returns unregistered metrics.
func NewNop() *Metrics { return newMetrics() }

func newMetrics() *Metrics {
	return &Metrics{
		CheckTxDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "check_tx_duration_seconds",
			Help:      "Time spent in CheckTx by stage",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"stage"}),
		CheckTxRemoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "check_tx_removed_total",
			Help:      "Transactions rejected by CheckTx by reason",
		}, []string{"reason"}),
		ProposalTransactions: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "proposal_transactions",
			Help:      "Number of transactions in a prepared proposal",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		PrepareProposalExcluded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prepare_proposal_excluded_transactions_total",
			Help:      "Transactions left out of a proposal by reason",
		}, []string{"reason"}),
		ProcessProposalSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_proposal_skipped_total",
			Help:      "Proposals accepted without re-execution because this node prepared them",
		}),
		ProcessProposalRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_proposal_rejected_total",
			Help:      "Proposals rejected by ProcessProposal",
		}),
		FinalizeBlockDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "finalize_block_duration_seconds",
			Help:      "Time spent in FinalizeBlock",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		TransactionsExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_executed_total",
			Help:      "Transactions executed in finalized blocks by result",
		}, []string{"result"}),
		BlockDeposits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deposits_total",
			Help:      "Deposits emitted to rollups",
		}),
		SequencedDataBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sequenced_data_bytes",
			Help:      "Rollup data bytes sequenced per block",
			Buckets:   prometheus.ExponentialBuckets(256, 4, 8),
		}),
		MempoolTransactions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mempool_transactions",
			Help:      "Transactions in the app mempool by container",
		}, []string{"container"}),
		MempoolMaintenanceSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "mempool_maintenance_duration_seconds",
			Help:      "Time spent reconciling the mempool with committed state",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		OraclePricesApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_prices_applied_total",
			Help:      "Currency pair prices written from vote extensions",
		}),
		UpgradesApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upgrades_applied_total",
			Help:      "Upgrades applied by name",
		}, []string{"upgrade"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.CheckTxDuration,
		m.CheckTxRemoved,
		m.ProposalTransactions,
		m.PrepareProposalExcluded,
		m.ProcessProposalSkipped,
		m.ProcessProposalRejected,
		m.FinalizeBlockDuration,
		m.TransactionsExecuted,
		m.BlockDeposits,
		m.SequencedDataBytes,
		m.MempoolTransactions,
		m.MempoolMaintenanceSeconds,
		m.OraclePricesApplied,
		m.UpgradesApplied,
	}
}

// SetMempoolSizes records the container sizes.
func (m *Metrics) SetMempoolSizes(pending, parked int) {
	m.MempoolTransactions.WithLabelValues("pending").Set(float64(pending))
	m.MempoolTransactions.WithLabelValues("parked").Set(float64(parked))
}
