package kernel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendN(t *testing.T, log *MemoryLog, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := log.Append(context.Background(), &EventEnvelope{
			EventType: "TEST_EVENT",
			Cycle:     int64(i * 10),
			Epoch:     int64(i),
			Payload:   map[string]interface{}{"i": i, "policy_id": "control:compliant"},
		})
		require.NoError(t, err)
	}
}

func TestMemoryLog_AppendAndEvent(t *testing.T) {
	log := NewMemoryLog()
	assert.Empty(t, log.Head())
	appendN(t, log, 3)

	assert.Equal(t, uint64(3), log.Len())
	ev, ok := log.Event(2)
	require.True(t, ok)
	assert.Equal(t, "evt-000002", ev.EventID)
	assert.Equal(t, int64(10), ev.Cycle)
	assert.NotEmpty(t, ev.PayloadHash)

	last, _ := log.Event(3)
	assert.Equal(t, last.ChainHash, log.Head())

	_, ok = log.Event(0)
	assert.False(t, ok)
	_, ok = log.Event(4)
	assert.False(t, ok)
}

func TestMemoryLog_Since(t *testing.T) {
	log := NewMemoryLog()
	appendN(t, log, 5)

	evs := log.Since(1)
	require.Len(t, evs, 4)
	assert.Equal(t, uint64(2), evs[0].SequenceNumber)
	assert.Empty(t, log.Since(5))
	assert.Empty(t, log.Since(9))

	evs[0] = nil
	first, _ := log.Event(2)
	assert.NotNil(t, first)
}

func TestMemoryLog_IdenticalInputsIdenticalHead(t *testing.T) {
	a := NewMemoryLog()
	b := NewMemoryLog()
	appendN(t, a, 8)
	appendN(t, b, 8)

	assert.Equal(t, a.Head(), b.Head())
	assert.Len(t, a.All(), 8)
}

func TestAppendRejectsUnhashablePayload(t *testing.T) {
	log := NewMemoryLog()
	_, err := log.Append(context.Background(), &EventEnvelope{EventType: "BAD", Payload: map[string]interface{}{"f": func() {}}})
	assert.Error(t, err)
	assert.Zero(t, log.Len())
}

func TestVerifyChain(t *testing.T) {
	log := NewMemoryLog()
	appendN(t, log, 4)

	got, err := VerifyChain(log.All())
	require.NoError(t, err)
	assert.Equal(t, log.Head(), got)

	tampered := log.All()
	copyEv := *tampered[2]
	copyEv.Payload = map[string]interface{}{"i": 99}
	tampered[2] = &copyEv
	_, err = VerifyChain(tampered)
	assert.ErrorContains(t, err, "payload hash mismatch")

	reordered := log.All()
	reordered[0], reordered[1] = reordered[1], reordered[0]
	_, err = VerifyChain(reordered)
	assert.ErrorContains(t, err, "out of order")
}

func TestErrorsFormat(t *testing.T) {
	var err error = NewInvariantError(InvSingleActiveLease, 120, 12, "two active leases: %s, %s", "a", "b")
	var inv *InvariantError
	require.True(t, errors.As(err, &inv))
	assert.Equal(t, int64(120), inv.Cycle)
	assert.Contains(t, err.Error(), InvSingleActiveLease)

	cfgErr := NewConfigError(ErrConfigRentSchedule, "rent.e4", "rent %d >= cap %d", 100, 100)
	assert.Equal(t, "ERR_CONFIG_RENT_SCHEDULE: rent.e4: rent 100 >= cap 100", cfgErr.Error())
}

func TestIDMinter_Deterministic(t *testing.T) {
	a := NewIDMinter(RootSeed(1), "cfg")
	b := NewIDMinter(RootSeed(1), "cfg")
	c := NewIDMinter(RootSeed(2), "cfg")

	assert.Equal(t, a.RunID(), b.RunID())
	assert.NotEqual(t, a.RunID(), c.RunID())
	assert.Equal(t, a.Mint("lease", 3), b.Mint("lease", 3))
	assert.NotEqual(t, a.Mint("lease", 3), a.Mint("lease", 4))
}
