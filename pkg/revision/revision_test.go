package revision_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Sumatoshi-tech/parsegraph/pkg/revision"
)

func TestClockStartsAtZero(t *testing.T) {
	t.Parallel()

	var c revision.Clock
	assert.Equal(t, revision.Number(0), c.Now())
}

func TestAdvanceIsMonotonicAndVisibleToNow(t *testing.T) {
	t.Parallel()

	var c revision.Clock

	first := c.Advance()
	assert.Equal(t, revision.Number(1), first)
	assert.Equal(t, first, c.Now())

	second := c.Advance()
	assert.Equal(t, revision.Number(2), second)
	assert.True(t, first.Before(second))
}

func TestAdvanceIsSafeUnderConcurrentCallers(t *testing.T) {
	t.Parallel()

	var c revision.Clock

	const goroutines = 50

	var wg sync.WaitGroup
	wg.Add(goroutines)

	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			c.Advance()
		}()
	}

	wg.Wait()

	assert.Equal(t, revision.Number(goroutines), c.Now())
}
