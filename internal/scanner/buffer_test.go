package scanner

import (
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawBufferDrainEmptiesInOrder(t *testing.T) {
	var b RawBuffer
	assert.Empty(t, b.Drain())

	b.Append("one")
	b.Append("two")
	assert.Equal(t, 2, b.Len())

	assert.Equal(t, []string{"one", "two"}, b.Drain())
	assert.Zero(t, b.Len())
	assert.Empty(t, b.Drain())
}

func TestRawBufferConcurrentAppendAndDrain(t *testing.T) {
	const total = 20000
	var b RawBuffer

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			b.Append(strconv.Itoa(i))
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	var drained []string
	for finished := false; !finished; {
		select {
		case <-done:
			finished = true
		default:
		}
		drained = append(drained, b.Drain()...)
	}
	drained = append(drained, b.Drain()...)

	require.Len(t, drained, total)
	for i, chunk := range drained {
		require.Equal(t, strconv.Itoa(i), chunk, "chunk %d lost, duplicated or reordered", i)
	}
}
