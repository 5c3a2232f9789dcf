package scanner

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the pipeline collectors shared by all scanners, labeled by scanner name
type Metrics struct {
	chunks         *prometheus.CounterVec
	bytes          *prometheus.CounterVec
	readErrors     *prometheus.CounterVec
	barcodes       *prometheus.CounterVec
	reconnects     *prometheus.CounterVec
	observerPanics *prometheus.CounterVec
	partialDrops   *prometheus.CounterVec
	connected      *prometheus.GaugeVec
}

// NewMetrics creates and registers the collectors. Collectors that are
// already registered with reg are reused.
func NewMetrics(namespace string, reg prometheus.Registerer) (*Metrics, error) {
	labels := []string{"scanner"}
	m := &Metrics{
		chunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scanner", Name: "chunks_read_total",
			Help: "Non-empty reads appended to the raw buffer.",
		}, labels),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scanner", Name: "bytes_read_total",
			Help: "Bytes read from the scanner channel.",
		}, labels),
		readErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scanner", Name: "read_errors_total",
			Help: "Channel reads that failed and were treated as no data.",
		}, labels),
		barcodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scanner", Name: "barcodes_total",
			Help: "Barcode values delivered to observers.",
		}, labels),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scanner", Name: "reconnect_attempts_total",
			Help: "Reopen attempts made by the health supervisor, by result.",
		}, []string{"scanner", "result"}),
		observerPanics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scanner", Name: "observer_panics_total",
			Help: "Observer callbacks that panicked and were recovered.",
		}, labels),
		partialDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scanner", Name: "partial_overflows_total",
			Help: "Unterminated remainders discarded for exceeding the size cap.",
		}, labels),
		connected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "scanner", Name: "connected",
			Help: "1 while the scanner channel is open.",
		}, labels),
	}

	var err error
	m.chunks = registerCounterVec(reg, m.chunks, &err)
	m.bytes = registerCounterVec(reg, m.bytes, &err)
	m.readErrors = registerCounterVec(reg, m.readErrors, &err)
	m.barcodes = registerCounterVec(reg, m.barcodes, &err)
	m.reconnects = registerCounterVec(reg, m.reconnects, &err)
	m.observerPanics = registerCounterVec(reg, m.observerPanics, &err)
	m.partialDrops = registerCounterVec(reg, m.partialDrops, &err)
	if err != nil {
		return nil, err
	}
	if err := reg.Register(m.connected); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		m.connected = are.ExistingCollector.(*prometheus.GaugeVec)
	}
	return m, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, errp *error) *prometheus.CounterVec {
	if *errp != nil {
		return vec
	}
	if err := reg.Register(vec); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector.(*prometheus.CounterVec)
		}
		*errp = err
	}
	return vec
}

func (m *Metrics) chunkRead(scanner string, n int) {
	if m == nil {
		return
	}
	m.chunks.WithLabelValues(scanner).Inc()
	m.bytes.WithLabelValues(scanner).Add(float64(n))
}

func (m *Metrics) readFailed(scanner string) {
	if m == nil {
		return
	}
	m.readErrors.WithLabelValues(scanner).Inc()
}

func (m *Metrics) barcode(scanner string) {
	if m == nil {
		return
	}
	m.barcodes.WithLabelValues(scanner).Inc()
}

func (m *Metrics) reconnect(scanner string, ok bool) {
	if m == nil {
		return
	}
	result := "failure"
	if ok {
		result = "success"
	}
	m.reconnects.WithLabelValues(scanner, result).Inc()
}

func (m *Metrics) observerPanic(scanner string) {
	if m == nil {
		return
	}
	m.observerPanics.WithLabelValues(scanner).Inc()
}

func (m *Metrics) partialOverflow(scanner string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.partialDrops.WithLabelValues(scanner).Add(float64(n))
}

// SetConnected records the scanner's connection state
func (m *Metrics) SetConnected(scanner string, connected bool) {
	if m == nil {
		return
	}
	v := 0.0
	if connected {
		v = 1
	}
	m.connected.WithLabelValues(scanner).Set(v)
}

// Forget removes every series for a scanner
func (m *Metrics) Forget(scanner string) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{"scanner": scanner}
	m.chunks.DeletePartialMatch(labels)
	m.bytes.DeletePartialMatch(labels)
	m.readErrors.DeletePartialMatch(labels)
	m.barcodes.DeletePartialMatch(labels)
	m.reconnects.DeletePartialMatch(labels)
	m.observerPanics.DeletePartialMatch(labels)
	m.partialDrops.DeletePartialMatch(labels)
	m.connected.DeletePartialMatch(labels)
}
