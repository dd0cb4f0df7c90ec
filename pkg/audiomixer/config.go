package audiomixer

import (
	"time"

	"github.com/Raikerian/go-discord-mixer/pkg/audio"
)

// Defaults used when a Config field is left zero.
const (
	DefaultSlots            = 20
	DefaultTickInterval     = 5 * time.Millisecond
	DefaultKillGrace        = 2 * time.Second
	DefaultMaxQueuedFrames  = 50
	DefaultOutputBufferSize = 100
)

// Config holds the mixer's timing and capacity settings.
type Config struct {
	// Slots is the fixed number of mixer inputs.
	Slots int
	// SampleRate is the canonical rate every source is resampled to.
	SampleRate int
	// FrameDuration is the length of one frame on both sides of the process.
	FrameDuration time.Duration
	// TickInterval is the pacer's tick. It should be well below
	// FrameDuration to keep send times close to the ideal frame boundary.
	TickInterval time.Duration
	// KillGrace is how long a stopped process gets before SIGKILL.
	KillGrace time.Duration
	// MaxQueuedFrames bounds every per-slot queue and the output queue.
	MaxQueuedFrames int
	// OutputBufferFrames is the capacity of the combined source channel.
	OutputBufferFrames int
}

// WithDefaults returns c with every unset field replaced by its default.
func (c Config) WithDefaults() Config {
	if c.Slots <= 0 {
		c.Slots = DefaultSlots
	}
	if c.SampleRate <= 0 {
		c.SampleRate = audio.CanonicalSampleRate
	}
	if c.FrameDuration <= 0 {
		c.FrameDuration = audio.CanonicalFrameLength
	}
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.KillGrace <= 0 {
		c.KillGrace = DefaultKillGrace
	}
	if c.MaxQueuedFrames <= 0 {
		c.MaxQueuedFrames = DefaultMaxQueuedFrames
	}
	if c.OutputBufferFrames <= 0 {
		c.OutputBufferFrames = DefaultOutputBufferSize
	}
	return c
}

// FrameSize is the number of samples in one frame.
func (c Config) FrameSize() int {
	return audio.FrameSamples(c.SampleRate, c.FrameDuration)
}
