package metrics

import "github.com/prometheus/client_golang/prometheus"

// ImportMetrics tracks bulk import throughput.
type ImportMetrics struct {
	rows    *prometheus.CounterVec
	batches *prometheus.CounterVec
}

func NewImportMetrics(reg prometheus.Registerer) *ImportMetrics {
	if reg == nil {
		return &ImportMetrics{}
	}
	rows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "import_rows_total",
		Help:      "Rows upserted by bulk imports.",
	}, []string{"source", "kind"})
	batches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "import_batches_total",
		Help:      "Import batches that reached a terminal status.",
	}, []string{"source", "status"})
	reg.MustRegister(rows, batches)
	return &ImportMetrics{rows: rows, batches: batches}
}

// AddRows counts upserted rows; kind is "customer" or "subscription".
func (m *ImportMetrics) AddRows(source, kind string, n int) {
	if m == nil || m.rows == nil || n <= 0 {
		return
	}
	m.rows.WithLabelValues(label(source), label(kind)).Add(float64(n))
}

func (m *ImportMetrics) IncBatch(source, status string) {
	if m == nil || m.batches == nil {
		return
	}
	m.batches.WithLabelValues(label(source), label(status)).Inc()
}
