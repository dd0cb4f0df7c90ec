package audiomixer

import "sync"

// FrameAssembler slices arbitrarily sized PCM chunks into fixed-size frames
// per slot. Sub-frame remainders are kept for the next Append; nothing is
// dropped except by Clear.
type FrameAssembler struct {
	frameSize int
	queue     FrameQueue

	mu        sync.Mutex
	remainder [][]int16
}

// NewFrameAssembler creates an assembler for slots slots that pushes every
// completed frame of frameSize samples to queue.
func NewFrameAssembler(slots, frameSize int, queue FrameQueue) *FrameAssembler {
	return &FrameAssembler{
		frameSize: frameSize,
		queue:     queue,
		remainder: make([][]int16, slots),
	}
}

// Append adds samples to slot's buffer and emits every complete frame, oldest
// first. It returns the number of frames emitted.
func (a *FrameAssembler) Append(slot int, samples []int16) int {
	if len(samples) == 0 {
		return 0
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if slot < 0 || slot >= len(a.remainder) {
		return 0
	}

	buf := append(a.remainder[slot], samples...)
	emitted := 0
	for len(buf) >= a.frameSize {
		frame := make([]int16, a.frameSize)
		copy(frame, buf[:a.frameSize])
		buf = buf[a.frameSize:]
		a.queue.Enqueue(slot, frame)
		emitted++
	}

	// Compact so the backing array does not grow without bound.
	rest := make([]int16, len(buf), a.frameSize)
	copy(rest, buf)
	a.remainder[slot] = rest

	return emitted
}

// Remainder returns how many samples are buffered for slot.
func (a *FrameAssembler) Remainder(slot int) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	if slot < 0 || slot >= len(a.remainder) {
		return 0
	}
	return len(a.remainder[slot])
}

// Clear discards slot's remainder.
func (a *FrameAssembler) Clear(slot int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if slot < 0 || slot >= len(a.remainder) {
		return
	}
	a.remainder[slot] = nil
}

// ClearAll discards every remainder.
func (a *FrameAssembler) ClearAll() {
	a.mu.Lock()
	defer a.mu.Unlock()

	clear(a.remainder)
}
