package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus collector the scanner and wallet
// operations update, registered against a private registry so /metrics
// exposes exactly this daemon's surface.
type Metrics struct {
	registry *prometheus.Registry

	BlocksScanned   prometheus.Counter
	ReorgsTotal     prometheus.Counter
	ReorgDepth      prometheus.Gauge
	TipLagBlocks    prometheus.Gauge
	CommitsTotal    prometheus.Counter
	DecodeRejects   prometheus.Counter
	TxBuiltTotal    prometheus.Counter
	TxSentTotal     prometheus.Counter
	TxSendFailures  prometheus.Counter
}

// NewMetrics constructs and registers the collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		BlocksScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "brc721_blocks_scanned_total",
			Help: "Number of blocks committed by the scanner.",
		}),
		ReorgsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "brc721_reorgs_total",
			Help: "Number of reorgs handled by the scanner.",
		}),
		ReorgDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "brc721_last_reorg_depth",
			Help: "Depth of the most recently handled reorg, in blocks.",
		}),
		TipLagBlocks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "brc721_tip_lag_blocks",
			Help: "Blocks between the node's confirmed tip and the committed cursor.",
		}),
		CommitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "brc721_commits_total",
			Help: "Number of successful commit_block calls.",
		}),
		DecodeRejects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "brc721_decode_rejects_total",
			Help: "Number of OP_RETURN outputs that failed codec decode.",
		}),
		TxBuiltTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "brc721_tx_built_total",
			Help: "Number of transactions built by the wallet.",
		}),
		TxSentTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "brc721_tx_sent_total",
			Help: "Number of transactions successfully broadcast.",
		}),
		TxSendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "brc721_tx_send_failures_total",
			Help: "Number of register_collection and send_amount calls that failed.",
		}),
	}

	reg.MustRegister(
		m.BlocksScanned,
		m.ReorgsTotal,
		m.ReorgDepth,
		m.TipLagBlocks,
		m.CommitsTotal,
		m.DecodeRejects,
		m.TxBuiltTotal,
		m.TxSentTotal,
		m.TxSendFailures,
	)

	return m
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
