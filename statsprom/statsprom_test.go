package statsprom

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 8)
	c.Collect(ch)
	close(ch)
	var total float64
	for m := range ch {
		var pb dto.Metric
		require.NoError(t, m.Write(&pb))
		total += pb.GetCounter().GetValue()
	}
	return total
}

func TestStatsCountsBytesAndMessages(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, err := New(reg, "opnet", "test", prometheus.Labels{"conn_id": "c1"})
	require.NoError(t, err)

	s.AddBytesRxSync(10)
	s.AddBytesRxAsync(5)
	s.AddBytesTxSync(7)
	s.IncWouldBlock()
	s.IncMessageIn(42)
	s.IncMessageOut(42)
	s.IncMessageOut(42)

	require.Equal(t, float64(15), counterValue(t, s.bytesRx))
	require.Equal(t, float64(7), counterValue(t, s.bytesTx))
	require.Equal(t, float64(1), counterValue(t, s.wouldBlock))
	require.Equal(t, float64(1), counterValue(t, s.messagesIn))
	require.Equal(t, float64(2), counterValue(t, s.messagesOut))
}

func TestNewIsIdempotentAcrossMultipleConnections(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg, "opnet", "test2", prometheus.Labels{"conn_id": "a"})
	require.NoError(t, err)
	_, err = New(reg, "opnet", "test2", prometheus.Labels{"conn_id": "b"})
	require.NoError(t, err, "registering a second connection's labels must not fail with AlreadyRegisteredError")
}
