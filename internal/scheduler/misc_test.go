package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiscWorkerRunsAllThreeHooksAndCyclesShards(t *testing.T) {
	var heatmaps, reloads int64
	var shardsSeen []int
	var mu atomicIntSlice

	w := NewMiscWorker(MiscConfig{
		Interval: 5 * time.Millisecond,
		OnHeatmap: func(now time.Time) {
			atomic.AddInt64(&heatmaps, 1)
		},
		OnStateBlobShard: func(now time.Time, shard int) {
			mu.append(shard)
		},
		OnMetadataReload: func(now time.Time) {
			atomic.AddInt64(&reloads, 1)
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&heatmaps) >= 3 && atomic.LoadInt64(&reloads) >= 3
	}, time.Second, 5*time.Millisecond)

	cancel()
	w.Wait()

	shardsSeen = mu.snapshot()
	require.NotEmpty(t, shardsSeen)
	assert.Equal(t, 0, shardsSeen[0], "shard cursor must start at 0")
	for i := 1; i < len(shardsSeen); i++ {
		assert.Equal(t, (shardsSeen[i-1]+1)%StateBlobShards, shardsSeen[i], "shard cursor must advance by one and wrap at StateBlobShards")
	}
}

func TestMiscWorkerToleratesNilHooks(t *testing.T) {
	w := NewMiscWorker(MiscConfig{Interval: 5 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	time.Sleep(20 * time.Millisecond)
	cancel()
	w.Wait()
}

// atomicIntSlice is a tiny mutex-guarded []int, avoiding a data race on
// the misc worker's single background goroutine appending to a slice
// the test goroutine reads after Wait.
type atomicIntSlice struct {
	mu sync.Mutex
	s  []int
}

func (a *atomicIntSlice) append(v int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.s = append(a.s, v)
}

func (a *atomicIntSlice) snapshot() []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]int, len(a.s))
	copy(out, a.s)
	return out
}
