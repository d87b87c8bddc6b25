package connection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDoublesToCap(t *testing.T) {
	b := NewBackoff(time.Second, 30*time.Second, 0, nil)

	want := []time.Duration{1, 2, 4, 8, 16, 30, 30, 30}
	for i, w := range want {
		assert.Equal(t, w*time.Second, b.Next(), "attempt %d", i+1)
	}

	b.Reset()
	assert.Equal(t, time.Second, b.Next())
}

func TestBackoffWithJitterIsNonDecreasingAndCapped(t *testing.T) {
	for run := 0; run < 50; run++ {
		b := NewBackoff(time.Second, 30*time.Second, 0.5, nil)
		prev := time.Duration(0)
		for n := 1; n <= 15; n++ {
			d := b.Next()
			assert.GreaterOrEqual(t, d, prev, "attempt %d", n)
			assert.LessOrEqual(t, d, 30*time.Second)
			assert.Greater(t, d, time.Duration(0))
			prev = d
		}
	}
}
