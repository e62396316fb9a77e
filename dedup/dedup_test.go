package dedup

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryClaim_FirstWins(t *testing.T) {
	d := New()

	assert.True(t, d.TryClaim(YouTube, "vid123"))
	assert.False(t, d.TryClaim(YouTube, "vid123"))
	assert.False(t, d.TryClaim(YouTube, "vid123"))
}

func TestTryClaim_InterleavedKeys(t *testing.T) {
	d := New()

	require.True(t, d.TryClaim(Twitch, "a:1"))
	require.True(t, d.TryClaim(Twitch, "b:1"))
	assert.False(t, d.TryClaim(Twitch, "a:1"))
	require.True(t, d.TryClaim(Twitch, "c:1"))
	assert.False(t, d.TryClaim(Twitch, "b:1"))
	assert.Equal(t, 3, d.Len(Twitch))
}

func TestTryClaim_PlatformsAreIndependent(t *testing.T) {
	d := New()

	assert.True(t, d.TryClaim(Twitch, "same"))
	assert.True(t, d.TryClaim(YouTube, "same"))
	assert.False(t, d.TryClaim(Twitch, "same"))
	assert.False(t, d.TryClaim(YouTube, "same"))
}

func TestSeed_SuppressesClaim(t *testing.T) {
	d := New()
	d.Seed(YouTube, "k1", "k2")

	assert.False(t, d.TryClaim(YouTube, "k1"))
	assert.False(t, d.TryClaim(YouTube, "k2"))
	assert.True(t, d.TryClaim(YouTube, "k3"))
	assert.True(t, d.TryClaim(Twitch, "k1"), "seeding one platform must not affect another")
}

func TestSeed_Idempotent(t *testing.T) {
	d := New()
	d.Seed(YouTube, "k1", "k1", " k1 ", "")
	d.Seed(YouTube, "k1")

	assert.Equal(t, 1, d.Len(YouTube))
	assert.True(t, d.Contains(YouTube, "k1"))
	assert.False(t, d.Contains(YouTube, ""))
}

func TestTryClaim_ConcurrentExactlyOneWinner(t *testing.T) {
	const callers = 64
	d := New()

	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if d.TryClaim(Twitch, "chan:stream-1") {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestTryClaim_ConcurrentDistinctKeys(t *testing.T) {
	const keys = 50
	d := New()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < keys; i++ {
		for j := 0; j < 4; j++ {
			wg.Add(1)
			go func(k string) {
				defer wg.Done()
				if d.TryClaim(YouTube, k) {
					wins.Add(1)
				}
			}(fmt.Sprintf("vid-%d", i))
		}
	}
	wg.Wait()

	assert.Equal(t, int32(keys), wins.Load())
	assert.Equal(t, keys, d.Len(YouTube))
}

func TestWithMaxEntries_EvictsOldest(t *testing.T) {
	d := New(WithMaxEntries(2))

	require.True(t, d.TryClaim(YouTube, "a"))
	require.True(t, d.TryClaim(YouTube, "b"))
	require.True(t, d.TryClaim(YouTube, "c"))

	assert.Equal(t, 2, d.Len(YouTube))
	assert.False(t, d.Contains(YouTube, "a"))
	assert.False(t, d.TryClaim(YouTube, "b"))
	assert.False(t, d.TryClaim(YouTube, "c"))
}

func TestWithMaxEntries_SeedCountsTowardBound(t *testing.T) {
	d := New(WithMaxEntries(2))
	d.Seed(YouTube, "s1", "s2", "s3")

	assert.Equal(t, 2, d.Len(YouTube))
	assert.True(t, d.TryClaim(YouTube, "s1"))
}

func TestWithMaxEntries_NonPositiveIsUnbounded(t *testing.T) {
	d := New(WithMaxEntries(0))
	for i := 0; i < 100; i++ {
		require.True(t, d.TryClaim(Twitch, fmt.Sprintf("k%d", i)))
	}
	assert.Equal(t, 100, d.Len(Twitch))
}
