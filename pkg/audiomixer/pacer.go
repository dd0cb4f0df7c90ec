package audiomixer

import (
	"context"
	"sync"
	"time"

	"github.com/Raikerian/go-discord-mixer/pkg/audio"
)

// lane is the schedule and backlog of one paced stream (a slot input or the
// combined output).
type lane struct {
	queue   [][]int16
	nextDue time.Time
	lastLen int
}

// due reports whether the lane should emit at now and, if so, advances its
// due time by ceil(lateness / frame) frames (at least one). A slow tick
// therefore self-corrects instead of bursting to catch up.
func (l *lane) due(now time.Time, frame time.Duration) bool {
	if now.Before(l.nextDue) {
		return false
	}
	late := now.Sub(l.nextDue)
	steps := int64((late + frame - 1) / frame)
	if steps < 1 {
		steps = 1
	}
	l.nextDue = l.nextDue.Add(time.Duration(steps) * frame)
	return true
}

// pop returns the oldest queued frame, or silence of the last-known frame
// length when the queue is empty.
func (l *lane) pop() (frame []int16, silence bool) {
	if len(l.queue) == 0 {
		return audio.Silence(l.lastLen), true
	}
	frame = l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return frame, false
}

// push appends frame, dropping the oldest when limit is reached. It reports
// whether a frame was dropped.
func (l *lane) push(frame []int16, limit int) bool {
	l.lastLen = len(frame)
	dropped := false
	if limit > 0 && len(l.queue) >= limit {
		l.queue[0] = nil
		l.queue = l.queue[1:]
		dropped = true
	}
	l.queue = append(l.queue, frame)
	return dropped
}

func (l *lane) reset(frameSize int) {
	clear(l.queue)
	l.queue = nil
	l.lastLen = frameSize
	l.nextDue = time.Time{}
}

// Pacer is the single real-time scheduling loop of a Mixer. On every tick it
// writes one frame (queued or silence) to each slot input that is due, and
// delivers one frame (mixed or silence) to the output sink when due.
//
// All exported methods are safe for concurrent use.
type Pacer struct {
	frameSize  int
	frameDur   time.Duration
	tickEvery  time.Duration
	queueLimit int
	now        func() time.Time
	metrics    *metrics

	mu      sync.Mutex
	slots   []lane
	output  lane
	writers []FrameWriter
	sink    OutputSink
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewPacer creates a stopped pacer with one input lane per configured slot.
func NewPacer(cfg Config) *Pacer {
	cfg = cfg.WithDefaults()
	p := &Pacer{
		frameSize:  cfg.FrameSize(),
		frameDur:   cfg.FrameDuration,
		tickEvery:  cfg.TickInterval,
		queueLimit: cfg.MaxQueuedFrames,
		now:        time.Now,
		metrics:    noopMetrics(),
		slots:      make([]lane, cfg.Slots),
	}
	p.resetLocked()
	return p
}

// Start begins pacing into writers (one per slot) and sink. Calling Start on
// a running pacer is a no-op.
func (p *Pacer) Start(writers []FrameWriter, sink OutputSink) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}
	p.writers = writers
	p.sink = sink
	p.running = true

	start := p.now()
	for i := range p.slots {
		p.slots[i].nextDue = start
	}
	p.output.nextDue = start

	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go p.loop(p.stop, p.done)
}

// Stop halts the tick loop and clears every per-slot queue and the output
// queue. It waits for the loop to exit. Calling Stop on a stopped pacer only
// clears state.
func (p *Pacer) Stop() {
	p.mu.Lock()
	stop, done := p.stop, p.done
	wasRunning := p.running
	p.running = false
	p.stop, p.done = nil, nil
	p.writers = nil
	p.sink = nil
	p.resetLocked()
	p.mu.Unlock()

	if wasRunning {
		close(stop)
		<-done
	}
}

// Running reports whether the pacer is in the running state.
func (p *Pacer) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Enqueue queues a frame for slot. Frames are dropped while the pacer is
// stopped, since nothing would ever drain them.
func (p *Pacer) Enqueue(slot int, frame []int16) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running || slot < 0 || slot >= len(p.slots) {
		return
	}
	if p.slots[slot].push(frame, p.queueLimit) {
		p.metrics.queueDropped(context.Background(), "input")
	}
}

// PushOutput queues a mixed frame for the output sink.
func (p *Pacer) PushOutput(frame []int16) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	if p.output.push(frame, p.queueLimit) {
		p.metrics.queueDropped(context.Background(), "output")
	}
}

// Clear drops every frame queued for slot.
func (p *Pacer) Clear(slot int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if slot < 0 || slot >= len(p.slots) {
		return
	}
	clear(p.slots[slot].queue)
	p.slots[slot].queue = nil
}

// QueueLen returns the number of frames queued for slot.
func (p *Pacer) QueueLen(slot int) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if slot < 0 || slot >= len(p.slots) {
		return 0
	}
	return len(p.slots[slot].queue)
}

// OutputLen returns the number of mixed frames awaiting delivery.
func (p *Pacer) OutputLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.output.queue)
}

func (p *Pacer) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.tickEvery)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.tick(p.now())
		}
	}
}

// tick runs one scheduling pass at now. It never blocks: input writes are
// fire-and-forget and the output sink is called outside the lock.
func (p *Pacer) tick(now time.Time) {
	ctx := context.Background()

	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}

	for i := range p.slots {
		l := &p.slots[i]
		if !l.due(now, p.frameDur) {
			continue
		}
		frame, silence := l.pop()
		if i >= len(p.writers) || p.writers[i] == nil {
			continue
		}
		if !p.writers[i].TryWrite(frame) {
			p.metrics.backpressure(ctx)
			continue
		}
		p.metrics.frameSent(ctx, silence)
	}

	var (
		out     []int16
		outSil  bool
		sink    = p.sink
		deliver = p.output.due(now, p.frameDur)
	)
	if deliver {
		out, outSil = p.output.pop()
	}
	p.mu.Unlock()

	if deliver && sink != nil {
		sink.Deliver(out)
		p.metrics.outputDelivered(ctx, outSil)
	}
}

func (p *Pacer) resetLocked() {
	for i := range p.slots {
		p.slots[i].reset(p.frameSize)
	}
	p.output.reset(p.frameSize)
}
