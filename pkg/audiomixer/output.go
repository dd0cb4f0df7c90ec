package audiomixer

import (
	"sync"

	"github.com/google/uuid"
)

// CombinedSource is the outbound handle for the mixed audio. Frames are
// delivered at the pacer's cadence; a reader that falls behind loses the
// oldest frames rather than stalling the pacer.
type CombinedSource struct {
	id     string
	frames chan []int16

	mu     sync.Mutex
	closed bool
}

func newCombinedSource(buffer int) *CombinedSource {
	if buffer <= 0 {
		buffer = DefaultOutputBufferSize
	}
	return &CombinedSource{
		id:     uuid.NewString(),
		frames: make(chan []int16, buffer),
	}
}

// ID identifies this output instance. A StopAudioMixer produces a new one.
func (c *CombinedSource) ID() string {
	return c.id
}

// Frames returns the channel of mixed frames. It is closed by Close.
func (c *CombinedSource) Frames() <-chan []int16 {
	return c.frames
}

// Deliver pushes frame without blocking. When the buffer is full the oldest
// frame is discarded. Frames delivered after Close are ignored.
func (c *CombinedSource) Deliver(frame []int16) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	for {
		select {
		case c.frames <- frame:
			return
		default:
		}
		select {
		case <-c.frames:
		default:
		}
	}
}

// Close stops the source and closes Frames. It is safe to call more than once.
func (c *CombinedSource) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.frames)
}

// Closed reports whether Close was called.
func (c *CombinedSource) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
