// Package statsprom implements spec.md §6's Stats driver collaborator
// with github.com/prometheus/client_golang, the metrics backend named in
// SPEC_FULL.md's domain-stack wiring and grounded on nabbar-golib's choice
// of the same library for its own counters.
package statsprom

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ngrodzitski/opnet/conn"
	"github.com/ngrodzitski/opnet/entry"
)

// Stats implements conn.Stats and entry.MessageStats with Prometheus
// counters, registered under a caller-supplied namespace so a process
// hosting several connections' worth of metrics can tell them apart with
// a "conn_id" or similar constant label passed via Labels.
type Stats struct {
	bytesRx     *prometheus.CounterVec
	bytesTx     *prometheus.CounterVec
	wouldBlock  prometheus.Counter
	messagesIn  *prometheus.CounterVec
	messagesOut *prometheus.CounterVec

	labels prometheus.Labels
}

// New registers opnet's counter families under reg with the given
// namespace/subsystem and constant labels, and returns a Stats bound to
// those labels. Calling New twice with the same reg/namespace/subsystem
// and different constant label sets is the supported way to track
// multiple connections separately (one Stats value per connection,
// sharing the same underlying CounterVecs).
func New(reg prometheus.Registerer, namespace, subsystem string, constLabels prometheus.Labels) (*Stats, error) {
	bytesRx := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "bytes_rx_total",
		Help:      "Bytes received, partitioned by path (sync/async).",
	}, append(labelNames(constLabels), "path"))

	bytesTx := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "bytes_tx_total",
		Help:      "Bytes transmitted, partitioned by path (sync/async).",
	}, append(labelNames(constLabels), "path"))

	wouldBlock := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        "would_block_total",
		Help:        "Non-blocking sync write attempts that reported EAGAIN/EWOULDBLOCK.",
		ConstLabels: constLabels,
	})

	messagesIn := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "messages_in_total",
		Help:      "Messages received, partitioned by content_specific_value tag.",
	}, append(labelNames(constLabels), "tag"))

	messagesOut := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "messages_out_total",
		Help:      "Messages sent, partitioned by content_specific_value tag.",
	}, append(labelNames(constLabels), "tag"))

	if existing, err := registerOrReuse(reg, bytesRx); err != nil {
		return nil, err
	} else {
		bytesRx = existing
	}
	if existing, err := registerOrReuse(reg, bytesTx); err != nil {
		return nil, err
	} else {
		bytesTx = existing
	}
	if existing, err := registerOrReuse(reg, messagesIn); err != nil {
		return nil, err
	} else {
		messagesIn = existing
	}
	if existing, err := registerOrReuse(reg, messagesOut); err != nil {
		return nil, err
	} else {
		messagesOut = existing
	}
	if existing, err := registerOrReuseCounter(reg, wouldBlock); err != nil {
		return nil, err
	} else {
		wouldBlock = existing
	}

	return &Stats{
		bytesRx:     bytesRx,
		bytesTx:     bytesTx,
		wouldBlock:  wouldBlock,
		messagesIn:  messagesIn,
		messagesOut: messagesOut,
		labels:      constLabels,
	}, nil
}

// registerOrReuse registers v and returns it, unless v collides with a
// CounterVec already registered under the same name (e.g. a second Stats
// sharing reg with a different constant-label set), in which case the
// existing collector is returned instead, so both Stats values accumulate
// into the one CounterVec Prometheus actually exposes.
func registerOrReuse(reg prometheus.Registerer, v *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(v); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			existing, ok := are.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				return nil, err
			}
			return existing, nil
		}
		return nil, err
	}
	return v, nil
}

func registerOrReuseCounter(reg prometheus.Registerer, v prometheus.Counter) (prometheus.Counter, error) {
	if err := reg.Register(v); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			existing, ok := are.ExistingCollector.(prometheus.Counter)
			if !ok {
				return nil, err
			}
			return existing, nil
		}
		return nil, err
	}
	return v, nil
}

func labelNames(labels prometheus.Labels) []string {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	return names
}

func (s *Stats) labelsWith(extra ...string) prometheus.Labels {
	merged := make(prometheus.Labels, len(s.labels)+1)
	for k, v := range s.labels {
		merged[k] = v
	}
	if len(extra) == 2 {
		merged[extra[0]] = extra[1]
	}
	return merged
}

func (s *Stats) AddBytesRxSync(n int)  { s.bytesRx.With(s.labelsWith("path", "sync")).Add(float64(n)) }
func (s *Stats) AddBytesRxAsync(n int) { s.bytesRx.With(s.labelsWith("path", "async")).Add(float64(n)) }
func (s *Stats) AddBytesTxSync(n int)  { s.bytesTx.With(s.labelsWith("path", "sync")).Add(float64(n)) }
func (s *Stats) AddBytesTxAsync(n int) { s.bytesTx.With(s.labelsWith("path", "async")).Add(float64(n)) }
func (s *Stats) IncWouldBlock()        { s.wouldBlock.Inc() }

func (s *Stats) IncMessageIn(tag uint16) {
	s.messagesIn.With(s.labelsWith("tag", strconv.Itoa(int(tag)))).Inc()
}

func (s *Stats) IncMessageOut(tag uint16) {
	s.messagesOut.With(s.labelsWith("tag", strconv.Itoa(int(tag)))).Inc()
}

var (
	_ conn.Stats         = (*Stats)(nil)
	_ entry.MessageStats = (*Stats)(nil)
)
