package shardtable_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/parsegraph/pkg/shardtable"
)

func TestGetSetDelete(t *testing.T) {
	t.Parallel()

	tbl := shardtable.New[string, int](4)
	tbl.Set("a", 1)
	tbl.Set("b", 2)

	v, ok := tbl.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	assert.True(t, tbl.Delete("a"))
	_, ok = tbl.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, tbl.Len())
}

func TestEntryUpdate(t *testing.T) {
	t.Parallel()

	tbl := shardtable.New[string, int](4)

	tbl.Entry("counter", func(cur int, present bool) (int, bool) {
		if !present {
			cur = 0
		}

		return cur + 1, true
	})
	tbl.Entry("counter", func(cur int, present bool) (int, bool) {
		return cur + 1, true
	})

	v, ok := tbl.Get("counter")
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestEntryDeleteOnKeepFalse(t *testing.T) {
	t.Parallel()

	tbl := shardtable.New[string, int](2)
	tbl.Set("k", 5)

	tbl.Entry("k", func(cur int, present bool) (int, bool) {
		return 0, false
	})

	_, ok := tbl.Get("k")
	assert.False(t, ok)
}

func TestDrainAndRetain(t *testing.T) {
	t.Parallel()

	tbl := shardtable.New[string, int](4)
	for i := range 10 {
		tbl.Set(fmt.Sprintf("key-%d", i), i)
	}

	tbl.Retain(func(_ string, v int) bool { return v%2 == 0 })
	assert.Equal(t, 5, tbl.Len())

	drained := tbl.Drain()
	assert.Len(t, drained, 5)
	assert.Equal(t, 0, tbl.Len())
}

func TestConcurrentDisjointKeysDoNotCorrupt(t *testing.T) {
	t.Parallel()

	tbl := shardtable.New[string, int](16)

	var wg sync.WaitGroup

	for g := range 64 {
		wg.Add(1)

		go func(g int) {
			defer wg.Done()

			key := fmt.Sprintf("g-%d", g)
			for i := range 100 {
				tbl.Set(key, i)
			}
		}(g)
	}

	wg.Wait()

	assert.Equal(t, 64, tbl.Len())
}

func TestShardCountIsPowerOfTwo(t *testing.T) {
	t.Parallel()

	tbl := shardtable.New[int, int](5)
	assert.Equal(t, 8, tbl.ShardCount())
}
