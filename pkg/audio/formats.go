package audio

import "time"

// Canonical mixing format. Every source is normalised to this before it
// reaches a mixer slot.
const (
	CanonicalSampleRate  = 48_000 // Hz
	CanonicalChannels    = 1
	CanonicalBitDepth    = 16
	CanonicalFrameSize   = 480 // samples (10 ms)
	CanonicalFrameBytes  = CanonicalFrameSize * 2
	CanonicalFrameLength = 10 * time.Millisecond
)

// Discord voice.
const (
	DiscordSampleRate = 48_000 // Hz
	DiscordChannels   = 2      // interleaved stereo
	DiscordFrameSize  = 960    // samples per channel (20 ms)
)

const bytesPerSample = CanonicalBitDepth / 8

// FrameSamples returns how many mono samples make up one frame of duration d
// at sampleRate.
func FrameSamples(sampleRate int, d time.Duration) int {
	return int(int64(sampleRate) * int64(d) / int64(time.Second))
}
