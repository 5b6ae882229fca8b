package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusRecorder(reg)
	require.NoError(t, err)

	labels := map[string]string{LabelChain: "solana", LabelOutcome: "valid"}
	rec.IncCounter(PaymentVerifications, labels)
	rec.IncCounter(PaymentVerifications, labels)
	rec.IncCounter(PaymentVerifications, map[string]string{LabelChain: "bsc", LabelOutcome: "signature"})
	rec.ObserveLatency(VerifyLatency, 20*time.Millisecond, labels)

	assert.Equal(t, 2.0, testutil.ToFloat64(rec.counters.WithLabelValues(PaymentVerifications, "solana", "valid")))
	assert.Equal(t, 1, testutil.CollectAndCount(rec.histogram))

	_, err = NewPrometheusRecorder(reg)
	require.Error(t, err, "registering twice on one registry fails")
}

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.IncCounter(GateRequests, nil)
	r.ObserveLatency(HandlerLatency, time.Second, nil)
}
