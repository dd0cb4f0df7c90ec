package audiomixer

import (
	"sync"

	"github.com/Raikerian/go-discord-mixer/pkg/audio"
)

// Local is a Spawner that mixes in-process. Each output frame is the
// saturated sum of one frame from every input, emitted once all inputs have
// delivered; it is the in-process stand-in for ffmpeg's amix.
type Local struct {
	cfg Config
}

// NewLocal returns an in-process spawner for cfg.Slots inputs.
func NewLocal(cfg Config) *Local {
	return &Local{cfg: cfg.WithDefaults()}
}

// Spawn starts the mixing goroutine.
func (l *Local) Spawn(onFrame func([]int16)) (Process, error) {
	p := &localProcess{
		onFrame: onFrame,
		inputs:  make([][][]int16, l.cfg.Slots),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	p.writers = make([]FrameWriter, l.cfg.Slots)
	for i := range p.writers {
		p.writers[i] = localInput{p: p, slot: i}
	}
	go p.run()
	return p, nil
}

type localProcess struct {
	onFrame func([]int16)
	writers []FrameWriter

	mu      sync.Mutex
	inputs  [][][]int16
	stopped bool

	wake     chan struct{}
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

type localInput struct {
	p    *localProcess
	slot int
}

func (in localInput) TryWrite(frame []int16) bool {
	return in.p.write(in.slot, frame)
}

func (p *localProcess) write(slot int, frame []int16) bool {
	p.mu.Lock()
	if p.stopped || len(p.inputs[slot]) >= pipeBufferFrames {
		p.mu.Unlock()
		return false
	}
	p.inputs[slot] = append(p.inputs[slot], frame)
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
	return true
}

func (p *localProcess) Writers() []FrameWriter { return p.writers }
func (p *localProcess) Done() <-chan struct{}  { return p.done }
func (p *localProcess) PID() int               { return 0 }

func (p *localProcess) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.stopped = true
		p.mu.Unlock()
		close(p.stop)
	})
}

func (p *localProcess) run() {
	defer close(p.done)

	for {
		select {
		case <-p.stop:
			return
		case <-p.wake:
		}
		for {
			mixed, ok := p.next()
			if !ok {
				break
			}
			p.onFrame(mixed)
		}
	}
}

// next pops one frame from every input when all of them have one.
func (p *localProcess) next() ([]int16, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return nil, false
	}
	for _, q := range p.inputs {
		if len(q) == 0 {
			return nil, false
		}
	}
	frames := make([][]int16, len(p.inputs))
	for i, q := range p.inputs {
		frames[i] = q[0]
		p.inputs[i] = q[1:]
	}
	return audio.Mix(frames...), true
}
