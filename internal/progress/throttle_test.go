package progress

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumipallolabs/dirsize/internal/model"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestTimeGate(t *testing.T) {
	clk := newClock()
	var got []model.ProgressSnapshot
	th := newThrottle(0, 0, func(s model.ProgressSnapshot) { got = append(got, s) }, clk.now)

	th.Record(1, 10)
	clk.advance(time.Second)
	th.Record(1, 10)
	assert.Empty(t, got)

	clk.advance(time.Second)
	th.Record(1, 10)
	require.Len(t, got, 1)
	assert.EqualValues(t, 3, got[0].ProcessedEntries)
	assert.EqualValues(t, 30, got[0].ProcessedBytes)
	assert.Equal(t, 2*time.Second, got[0].Elapsed)
	assert.InDelta(t, 15.0, got[0].Throughput, 0.001)
	assert.Zero(t, got[0].Completion)
}

func TestByteGate(t *testing.T) {
	clk := newClock()
	th := newThrottle(0, 0, nil, clk.now)

	clk.advance(500 * time.Millisecond)
	th.Record(1, 5_000_000)
	assert.Empty(t, th.Snapshots(), "byte gate needs half an interval")

	clk.advance(500 * time.Millisecond)
	th.Record(1, 1)
	snaps := th.Snapshots()
	require.Len(t, snaps, 1)
	assert.EqualValues(t, 5_000_001, snaps[0].ProcessedBytes)

	clk.advance(time.Second)
	th.Record(1, 10)
	assert.Len(t, th.Snapshots(), 1, "no new bytes beyond the trigger")
}

func TestClampedSettings(t *testing.T) {
	th := New(time.Millisecond, 1, nil)
	assert.Equal(t, MinInterval, th.interval)
	assert.Equal(t, MinByteTrigger, th.byteTrigger)
	assert.Equal(t, MinInterval, th.byteGate)

	th = New(0, 0, nil)
	assert.Equal(t, DefaultInterval, th.interval)
	assert.Equal(t, DefaultByteTrigger, th.byteTrigger)
}

func TestFinish(t *testing.T) {
	clk := newClock()
	th := newThrottle(0, 0, nil, clk.now)

	_, ok := th.Finish()
	assert.False(t, ok, "nothing processed")

	th.Record(4, 400)
	clk.advance(10 * time.Millisecond)
	snap, ok := th.Finish()
	require.True(t, ok)
	assert.Equal(t, 1.0, snap.Completion)
	assert.EqualValues(t, 4, snap.ProcessedEntries)

	again, ok := th.Finish()
	require.True(t, ok)
	assert.Equal(t, snap, again)
	assert.Len(t, th.Snapshots(), 1)
}

func TestFinishKeepsOrderWithoutClockAdvance(t *testing.T) {
	clk := newClock()
	th := newThrottle(0, 0, nil, clk.now)
	clk.advance(2 * time.Second)
	th.Record(1, 1)
	th.Record(1, 1)
	snap, ok := th.Finish()
	require.True(t, ok)

	snaps := th.Snapshots()
	require.Len(t, snaps, 2)
	assert.True(t, snaps[1].Time.After(snaps[0].Time))
	assert.Equal(t, snaps[1], snap)
}

func TestConcurrentRecordersStrictlyOrdered(t *testing.T) {
	clk := newClock()
	th := newThrottle(MinInterval, MinByteTrigger, nil, clk.now)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 2000 {
				clk.advance(time.Millisecond)
				th.Record(1, 4096)
			}
		}()
	}
	wg.Wait()
	th.Finish()

	snaps := th.Snapshots()
	require.NotEmpty(t, snaps)
	for i := 1; i < len(snaps); i++ {
		assert.True(t, snaps[i].Time.After(snaps[i-1].Time), "snapshot %d time", i)
		assert.Greater(t, snaps[i].ProcessedEntries, snaps[i-1].ProcessedEntries, "snapshot %d entries", i)
	}
	last := snaps[len(snaps)-1]
	assert.EqualValues(t, 16000, last.ProcessedEntries)
	assert.Equal(t, 1.0, last.Completion)

	entries, bytes := th.Counts()
	assert.EqualValues(t, 16000, entries)
	assert.EqualValues(t, 16000*4096, bytes)
}
