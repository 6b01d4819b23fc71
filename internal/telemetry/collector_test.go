package telemetry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollector_Counts(t *testing.T) {
	c := New()

	c.RecordReceived()
	c.RecordReceived()
	c.RecordRouted(3)
	c.RecordDuplicate()
	c.RecordRateLimited()
	c.RecordUnknownKeyword("mystery")
	c.RecordDownstreamError("https://svc.example/hook", 500, "Internal Server Error")

	snap := c.Snapshot()
	assert.Equal(t, 2, snap.Received)
	assert.Equal(t, 1, snap.Routed)
	assert.Equal(t, 3, snap.DestinationsInvoked)
	assert.Equal(t, 1, snap.Duplicate)
	assert.Equal(t, 1, snap.RateLimited)
	assert.Equal(t, 1, snap.UnknownKeyword)
	assert.Equal(t, 1, snap.DownstreamErrors)
	assert.Equal(t, []string{"mystery"}, snap.UnknownSamples)
	assert.Equal(t, 500, snap.ErrorDetails[0].Status)
}

func TestCollector_SampleCaps(t *testing.T) {
	c := New()

	for i := 0; i < 50; i++ {
		c.RecordUnknownKeyword(fmt.Sprintf("kw-%d", i))
		c.RecordDownstreamError("dest", 0, "timeout")
	}

	snap := c.Snapshot()
	assert.Equal(t, 50, snap.UnknownKeyword)
	assert.Len(t, snap.UnknownSamples, maxUnknownSamples)
	assert.Equal(t, 50, snap.DownstreamErrors)
	assert.Len(t, snap.ErrorDetails, maxErrorDetails)
}

func TestCollector_EmptySampleNotRecorded(t *testing.T) {
	c := New()
	c.RecordUnknownKeyword("")

	snap := c.Snapshot()
	assert.Equal(t, 1, snap.UnknownKeyword)
	assert.Empty(t, snap.UnknownSamples)
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	c := New()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RecordReceived()
			c.RecordRouted(2)
		}()
	}
	wg.Wait()

	snap := c.Snapshot()
	assert.Equal(t, 100, snap.Received)
	assert.Equal(t, 100, snap.Routed)
	assert.Equal(t, 200, snap.DestinationsInvoked)
}

func TestCollector_SnapshotIsACopy(t *testing.T) {
	c := New()
	c.RecordUnknownKeyword("first")

	snap := c.Snapshot()
	c.RecordUnknownKeyword("second")

	assert.Equal(t, []string{"first"}, snap.UnknownSamples)
}
