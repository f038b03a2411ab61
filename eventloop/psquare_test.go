package eventloop

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func TestPSquareQuantileConvergesOnUniformSample(t *testing.T) {
	src := rand.New(rand.NewSource(1))
	p50 := newPSquareQuantile(0.5)
	p99 := newPSquareQuantile(0.99)

	const n = 5000
	for i := 0; i < n; i++ {
		x := src.Float64() * 100
		p50.Update(x)
		p99.Update(x)
	}

	assert.InDelta(t, 50.0, p50.Quantile(), 5.0)
	assert.InDelta(t, 99.0, p99.Quantile(), 3.0)
}

func TestPSquareQuantileWarmupExactForFewSamples(t *testing.T) {
	q := newPSquareQuantile(0.5)
	assert.Equal(t, 0.0, q.Quantile())

	q.Update(3)
	q.Update(1)
	q.Update(2)
	// Fewer than 5 samples: falls back to an exact sorted lookup.
	got := q.Quantile()
	assert.True(t, got == 1 || got == 2 || got == 3)
	assert.False(t, math.IsNaN(got))
}

func TestTaskLatencyCollectorObserveAndCollect(t *testing.T) {
	c := newTaskLatencyCollector()
	for i := 0; i < 10; i++ {
		c.observe(time.Duration(1<<i) * time.Microsecond)
	}

	descCh := make(chan *prometheus.Desc, 1)
	c.Describe(descCh)
	assert.NotNil(t, <-descCh)

	metricCh := make(chan prometheus.Metric, 2)
	c.Collect(metricCh)
	close(metricCh)
	var n int
	for range metricCh {
		n++
	}
	assert.Equal(t, 2, n)
}
