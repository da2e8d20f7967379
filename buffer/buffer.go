package buffer

import (
	"math"
	"sync"
)

type Average float64
type Minimum float64
type Maximum float64
type Sum float64

// SampleBuffer is a fixed size ring of samples. The first sample written fills
// the whole ring so averages are meaningful straight away.
type SampleBuffer struct {
	position int
	size     int
	data     []float64
	lock     sync.Mutex
	first    bool
}

func NewBuffer(size int) *SampleBuffer {
	if size < 1 {
		size = 1
	}
	b := SampleBuffer{}
	b.first = true

	b.size = size
	b.data = make([]float64, size)

	return &b
}

func (b *SampleBuffer) AddItem(val float64) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.data[b.position] = val
	b.position += 1
	if b.position == b.size {
		b.position = 0
	}
	if b.first {
		// fill buffer
		for i := 0; i < b.size; i++ {
			b.data[i] = val
		}
		b.first = false
	}
}

// Empty reports whether nothing has been added since creation or Reset.
func (b *SampleBuffer) Empty() bool {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.first
}

func (b *SampleBuffer) Reset() {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.position = 0
	b.first = true
	for i := range b.data {
		b.data[i] = 0
	}
}

func (b *SampleBuffer) GetAverageMinMaxSum() (Average, Minimum, Maximum, Sum) {
	b.lock.Lock()
	defer b.lock.Unlock()
	min := math.MaxFloat64
	max := 0.0
	sum := 0.0

	for _, x := range b.data {
		if x > max {
			max = x
		}
		if x < min {
			min = x
		}
		sum += x
	}

	return Average((sum / float64(b.size))), Minimum(min), Maximum(max), Sum(sum)
}

// MaxRollingAverage is the largest mean of any window consecutive samples,
// e.g. the three second gust inside a ten minute buffer.
func (b *SampleBuffer) MaxRollingAverage(window int) Average {
	b.lock.Lock()
	defer b.lock.Unlock()
	if window < 1 {
		window = 1
	}
	if window > b.size {
		window = b.size
	}
	best := 0.0
	for i := 0; i < b.size; i++ {
		x := 0.0
		for j := 0; j < window; j++ {
			x += b.data[(i+j)%b.size]
		}
		if x > best {
			best = x
		}
	}
	return Average(best / float64(window))
}
