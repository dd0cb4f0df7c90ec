package audiomixer

import (
	"errors"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
)

// mockSubscription records Stop calls.
type mockSubscription struct {
	mock.Mock
}

func (m *mockSubscription) Stop() error {
	args := m.Called()
	return args.Error(0)
}

// fakeTrack is a controllable Track. Push delivers a chunk to every live
// subscriber on the calling goroutine.
type fakeTrack struct {
	id           string
	subscribeErr error
	stopErr      error

	mu    sync.Mutex
	subs  []*fakeTrackSub
	ended map[int]func()
	next  int
}

type fakeTrackSub struct {
	fn   func(Chunk)
	mock *mockSubscription
}

func newFakeTrack(id string) *fakeTrack {
	return &fakeTrack{id: id, ended: make(map[int]func())}
}

func (t *fakeTrack) ID() string { return t.id }

func (t *fakeTrack) Subscribe(fn func(Chunk)) (Subscription, error) {
	if t.subscribeErr != nil {
		return nil, t.subscribeErr
	}
	sub := &mockSubscription{}
	sub.On("Stop").Return(t.stopErr)

	t.mu.Lock()
	t.subs = append(t.subs, &fakeTrackSub{fn: fn, mock: sub})
	t.mu.Unlock()
	return sub, nil
}

func (t *fakeTrack) OnEnded(fn func()) func() {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := t.next
	t.next++
	t.ended[key] = fn
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.ended, key)
	}
}

// Push sends samples as a canonical mono chunk to every subscriber, even
// stopped ones, the way a late callback would.
func (t *fakeTrack) Push(samples []int16) {
	t.PushChunk(Chunk{
		Samples:       samples,
		SampleRate:    48000,
		ChannelCount:  1,
		BitsPerSample: 16,
		FrameCount:    len(samples),
	})
}

func (t *fakeTrack) PushChunk(c Chunk) {
	t.mu.Lock()
	subs := append([]*fakeTrackSub(nil), t.subs...)
	t.mu.Unlock()

	for _, s := range subs {
		s.fn(c)
	}
}

// End fires every registered ended listener.
func (t *fakeTrack) End() {
	t.mu.Lock()
	fns := make([]func(), 0, len(t.ended))
	for _, fn := range t.ended {
		fns = append(fns, fn)
	}
	t.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func (t *fakeTrack) Subs() []*mockSubscription {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*mockSubscription, len(t.subs))
	for i, s := range t.subs {
		out[i] = s.mock
	}
	return out
}

func (t *fakeTrack) EndedListeners() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ended)
}

// recordingWriter is a FrameWriter that stores accepted frames.
type recordingWriter struct {
	mu     sync.Mutex
	frames [][]int16
	reject bool
}

func (w *recordingWriter) TryWrite(frame []int16) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.reject {
		return false
	}
	w.frames = append(w.frames, frame)
	return true
}

func (w *recordingWriter) Frames() [][]int16 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([][]int16(nil), w.frames...)
}

func (w *recordingWriter) SetReject(reject bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.reject = reject
}

// recordingSink is an OutputSink that stores delivered frames.
type recordingSink struct {
	mu     sync.Mutex
	frames [][]int16
}

func (s *recordingSink) Deliver(frame []int16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, frame)
}

func (s *recordingSink) Frames() [][]int16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]int16(nil), s.frames...)
}

// fakeProcess is a Process whose exit is controlled by the test.
type fakeProcess struct {
	pid     int
	writers []FrameWriter
	onFrame func([]int16)

	mu       sync.Mutex
	stops    int
	done     chan struct{}
	doneOnce sync.Once
}

func (p *fakeProcess) Writers() []FrameWriter { return p.writers }
func (p *fakeProcess) Done() <-chan struct{}  { return p.done }
func (p *fakeProcess) PID() int               { return p.pid }

func (p *fakeProcess) Stop() {
	p.mu.Lock()
	p.stops++
	p.mu.Unlock()
	p.Exit()
}

func (p *fakeProcess) Stops() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stops
}

// Exit simulates the process dying.
func (p *fakeProcess) Exit() {
	p.doneOnce.Do(func() { close(p.done) })
}

// fakeSpawner hands out fakeProcesses.
type fakeSpawner struct {
	slots int
	err   error

	mu    sync.Mutex
	procs []*fakeProcess
}

func (s *fakeSpawner) Spawn(onFrame func([]int16)) (Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}
	p := &fakeProcess{
		pid:     1000 + len(s.procs),
		onFrame: onFrame,
		done:    make(chan struct{}),
	}
	p.writers = make([]FrameWriter, s.slots)
	for i := range p.writers {
		p.writers[i] = &recordingWriter{}
	}
	s.procs = append(s.procs, p)
	return p, nil
}

func (s *fakeSpawner) Spawns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.procs)
}

func (s *fakeSpawner) Last() *fakeProcess {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.procs) == 0 {
		return nil
	}
	return s.procs[len(s.procs)-1]
}

func (s *fakeSpawner) SetErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

var errSubscribe = errors.New("subscribe failed")

// testConfig keeps the pacer's own ticker out of the way; tests drive tick
// directly or only look at slot bookkeeping.
func testConfig(slots int) Config {
	return Config{
		Slots:        slots,
		TickInterval: time.Hour,
	}
}

func participant(id string, track Track) Mixable {
	return Mixable{ID: id, Kind: KindParticipant, AudioEnabled: true, Track: track}
}

func screenshare(id string, track Track) Mixable {
	return Mixable{ID: id, Kind: KindScreenshare, AudioEnabled: true, Track: track}
}
