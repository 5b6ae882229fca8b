package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryRecorder(t *testing.T) {
	m := NewMemoryRecorder()
	valid := map[string]string{LabelOutcome: "valid", LabelChain: "solana"}

	m.IncCounter(GateRequests, valid)
	m.IncCounter(GateRequests, map[string]string{LabelChain: "solana", LabelOutcome: "valid"})
	m.IncCounter(GateRequests, map[string]string{LabelChain: "bsc", LabelOutcome: "rejected"})
	m.IncCounter(GateRequests+"_other", nil)
	m.ObserveLatency(HandlerLatency, time.Millisecond, valid)

	assert.Equal(t, 2, m.Count(GateRequests, valid))
	assert.Equal(t, 3, m.Total(GateRequests))
	assert.Equal(t, 1, m.Observations(HandlerLatency, valid))
	assert.Zero(t, m.Count(TierChecks, nil))
}
