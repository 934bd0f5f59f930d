package models

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogRingEviction(t *testing.T) {
	ring := NewLogRing(3)
	for i := 1; i <= 5; i++ {
		ring.Append(fmt.Sprintf("line %d", i))
	}

	assert.Equal(t, 3, ring.Len())

	last := ring.Last(10)
	require.Len(t, last, 3)
	assert.True(t, strings.HasSuffix(last[0], "line 3"))
	assert.True(t, strings.HasSuffix(last[2], "line 5"))
}

func TestLogRingLastWindow(t *testing.T) {
	ring := NewLogRing(50)
	for i := 1; i <= 30; i++ {
		ring.Append(fmt.Sprintf("GET /pets → 200 (%d)", i))
	}

	last := ring.Last(20)
	require.Len(t, last, 20)
	assert.True(t, strings.HasSuffix(last[0], "(11)"))
	assert.True(t, strings.HasSuffix(last[19], "(30)"))
}

func TestLogRingClear(t *testing.T) {
	ring := NewLogRing(10)
	ring.Append("tool server starting on :9100")
	ring.Clear()

	assert.Equal(t, 0, ring.Len())
	assert.Empty(t, ring.Last(5))
}

func TestLogRingConcurrentAppend(t *testing.T) {
	ring := NewLogRing(100)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				ring.Append("concurrent line")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, ring.Len())
}
