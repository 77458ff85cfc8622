package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogSignalsFlushExactlyAtCapacity(t *testing.T) {
	buf := NewBuffer()
	var signaled int
	for i := 0; i < Capacity; i++ {
		if buf.Log(Entry{Action: "viewed", Entity: "timeline"}) {
			signaled++
		}
	}
	assert.Equal(t, 1, signaled)
	assert.Equal(t, Capacity, buf.Len())
}

func TestDrainResetsBufferAndPreservesOrder(t *testing.T) {
	buf := NewBuffer()
	buf.Log(Entry{Action: "one"})
	buf.Log(Entry{Action: "two"})
	buf.Log(Entry{Action: "three"})

	drained := buf.Drain()
	require.Len(t, drained, 3)
	assert.Equal(t, []string{"one", "two", "three"}, []string{drained[0].Action, drained[1].Action, drained[2].Action})
	assert.Equal(t, 0, buf.Len())
}

func TestLogDuringDrainIsNotLost(t *testing.T) {
	buf := NewBuffer()
	buf.Log(Entry{Action: "before-drain"})

	drained := buf.Drain()
	require.Len(t, drained, 1)

	// Simulates a concurrent Log racing a flush already past the swap:
	// it must land in the fresh slice, not be dropped.
	buf.Log(Entry{Action: "after-drain"})
	assert.Equal(t, 1, buf.Len())
}

func TestBufferLogKeepsZeroOccurredAt(t *testing.T) {
	buf := NewBuffer()
	before := time.Now().UTC()
	buf.Log(Entry{Action: "no-timestamp-supplied", OccurredAt: time.Time{}})
	drained := buf.Drain()
	require.Len(t, drained, 1)
	// Buffer itself does not stamp OccurredAt; Logger.Log does. This test
	// documents that Buffer stores exactly what it is given.
	assert.True(t, drained[0].OccurredAt.Before(before) || drained[0].OccurredAt.IsZero())
}
