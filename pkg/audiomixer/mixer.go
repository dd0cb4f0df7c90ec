package audiomixer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/Raikerian/go-discord-mixer/pkg/audio"
)

// ErrDestroyed is returned by reports made after Destroy.
var ErrDestroyed = errors.New("audiomixer: mixer destroyed")

// Option configures a Mixer.
type Option func(*options)

type options struct {
	meterProvider metric.MeterProvider
}

// WithMeterProvider records the mixer's instruments on mp instead of the
// no-op provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		o.meterProvider = mp
	}
}

// binding is the live subscription of one source to one slot. Once closed,
// no further chunk from it reaches the assembler.
type binding struct {
	handle    string
	slot      int
	mixableID string
	kind      Kind
	trackID   string

	mu          sync.Mutex
	closed      bool
	sub         Subscription
	removeEnded func()
}

// Status is a point-in-time view of a Mixer.
type Status struct {
	Running  bool
	PID      int
	OutputID string
	Capacity int
	Slots    []SlotStatus
}

// SlotStatus describes one occupied slot.
type SlotStatus struct {
	Slot
	TrackID      string
	QueuedFrames int
}

// Mixer attaches reported sources to slots, runs the mixing process and
// paces audio through it into a CombinedSource.
type Mixer struct {
	logger    *zap.Logger
	cfg       Config
	spawner   Spawner
	metrics   *metrics
	pacer     *Pacer
	assembler *FrameAssembler
	overflow  overflowCache

	mu        sync.Mutex
	slots     *SlotTable
	bindings  []*binding
	proc      Process
	output    *CombinedSource
	destroyed bool
}

// New creates an idle Mixer. No process is launched until a report carries
// at least one usable source.
func New(logger *zap.Logger, cfg Config, spawner Spawner, opts ...Option) (*Mixer, error) {
	if spawner == nil {
		return nil, errors.New("audiomixer: nil spawner")
	}
	cfg = cfg.WithDefaults()

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	met := noopMetrics()
	if o.meterProvider != nil {
		var err error
		if met, err = newMetrics(o.meterProvider); err != nil {
			return nil, fmt.Errorf("create mixer metrics: %w", err)
		}
	}

	pacer := NewPacer(cfg)
	pacer.metrics = met

	return &Mixer{
		logger:    logger.Named("audiomixer"),
		cfg:       cfg,
		spawner:   spawner,
		metrics:   met,
		pacer:     pacer,
		assembler: NewFrameAssembler(cfg.Slots, cfg.FrameSize(), pacer),
		overflow:  newOverflowCache(overflowCacheSize),
		slots:     NewSlotTable(cfg.Slots),
		bindings:  make([]*binding, cfg.Slots),
		output:    newCombinedSource(cfg.OutputBufferFrames),
	}, nil
}

// ReportParticipants replaces the set of participant sources.
func (m *Mixer) ReportParticipants(list []Mixable) error {
	return m.report(KindParticipant, list)
}

// ReportScreenshares replaces the set of screen-share sources.
func (m *Mixer) ReportScreenshares(list []Mixable) error {
	return m.report(KindScreenshare, list)
}

// report applies a full snapshot of one kind. Slots of the other kind are
// never touched. Subscription failures are returned joined; every other
// mixable is still processed.
func (m *Mixer) report(kind Kind, list []Mixable) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.destroyed {
		return ErrDestroyed
	}

	present := make(map[string]struct{}, len(list))
	usable := false
	for _, mx := range list {
		present[mx.ID] = struct{}{}
		if mx.usable() {
			usable = true
		}
	}

	for _, s := range m.slots.SlotsOfKind(kind) {
		if _, ok := present[s.ID]; !ok {
			m.detachLocked(kind, s.ID)
		}
	}
	m.overflow.retain(kind, present)

	if usable && m.proc == nil {
		m.startLocked()
	}

	var errs []error
	for _, mx := range list {
		mx.Kind = kind
		if err := m.attachLocked(mx); err != nil {
			errs = append(errs, fmt.Errorf("attach %s %q: %w", kind, mx.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (m *Mixer) attachLocked(mx Mixable) error {
	if !mx.usable() {
		m.detachLocked(mx.Kind, mx.ID)
		return nil
	}

	ctx := context.Background()
	slot, ok := m.slots.Acquire(mx.ID, mx.Kind)
	if !ok {
		m.metrics.sourceDropped(ctx, mx.Kind)
		if m.overflow.firstDrop(mx.Kind, mx.ID) {
			m.logger.Warn("No free mixer slot, source not mixed",
				zap.String("mixable_id", mx.ID),
				zap.Stringer("kind", mx.Kind),
				zap.Int("slots", m.slots.Len()))
		}
		return nil
	}
	m.overflow.forget(mx.Kind, mx.ID)

	trackID := mx.Track.ID()
	if old := m.bindings[slot]; old != nil {
		if old.trackID == trackID {
			return nil
		}
		m.logger.Info("Source track replaced",
			zap.Int("slot", slot),
			zap.String("mixable_id", mx.ID),
			zap.String("old_track_id", old.trackID),
			zap.String("track_id", trackID))
		m.unbindLocked(old)
	}

	b := &binding{
		handle:    uuid.NewString(),
		slot:      slot,
		mixableID: mx.ID,
		kind:      mx.Kind,
		trackID:   trackID,
	}

	sub, err := mx.Track.Subscribe(func(c Chunk) { m.handleChunk(b, c) })
	if err != nil {
		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()
		m.clearSlot(slot)
		m.slots.Release(slot)
		return fmt.Errorf("subscribe to track %q: %w", trackID, err)
	}
	remove := mx.Track.OnEnded(func() { go m.handleEnded(b) })

	b.mu.Lock()
	b.sub = sub
	b.removeEnded = remove
	b.mu.Unlock()

	m.bindings[slot] = b
	m.metrics.slotBound(ctx)
	m.logger.Info("Source attached",
		zap.Int("slot", slot),
		zap.String("mixable_id", mx.ID),
		zap.Stringer("kind", mx.Kind),
		zap.String("track_id", trackID),
		zap.String("binding", b.handle))
	return nil
}

// detachLocked unbinds and releases the slot held by the source (kind, id),
// if any.
func (m *Mixer) detachLocked(kind Kind, id string) {
	slot, ok := m.slots.Lookup(id, kind)
	if !ok {
		return
	}
	if b := m.bindings[slot]; b != nil {
		m.unbindLocked(b)
	} else {
		m.clearSlot(slot)
	}
	m.slots.Release(slot)
	m.logger.Info("Source detached",
		zap.Int("slot", slot),
		zap.String("mixable_id", id),
		zap.Stringer("kind", kind))
}

// unbindLocked stops b and empties its slot's buffers. The slot itself stays
// acquired.
func (m *Mixer) unbindLocked(b *binding) {
	m.stopBinding(b)
	m.clearSlot(b.slot)
	if m.bindings[b.slot] == b {
		m.bindings[b.slot] = nil
		m.metrics.slotReleased(context.Background())
	}
}

// stopBinding closes b and stops its subscription exactly once. Errors are
// logged, never returned.
func (m *Mixer) stopBinding(b *binding) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	sub, remove := b.sub, b.removeEnded
	b.mu.Unlock()

	if remove != nil {
		remove()
	}
	if sub == nil {
		return
	}
	if err := sub.Stop(); err != nil {
		m.logger.Warn("Failed to stop source subscription",
			zap.Int("slot", b.slot),
			zap.String("mixable_id", b.mixableID),
			zap.String("track_id", b.trackID),
			zap.Error(err))
	}
}

func (m *Mixer) clearSlot(slot int) {
	m.assembler.Clear(slot)
	m.pacer.Clear(slot)
}

// handleChunk validates, resamples and frames one chunk from b. It runs on
// the track's goroutine and never takes the mixer lock.
func (m *Mixer) handleChunk(b *binding, c Chunk) {
	if c.ChannelCount != 1 || c.BitsPerSample != 16 {
		return
	}
	samples := c.Samples
	if c.FrameCount > 0 && c.FrameCount < len(samples) {
		samples = samples[:c.FrameCount]
	}
	if c.SampleRate != m.cfg.SampleRate {
		samples = audio.Resample(samples, c.SampleRate, m.cfg.SampleRate)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	m.assembler.Append(b.slot, samples)
}

func (m *Mixer) handleEnded(b *binding) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.destroyed || m.bindings[b.slot] != b {
		return
	}
	m.logger.Info("Source track ended",
		zap.Int("slot", b.slot),
		zap.String("mixable_id", b.mixableID),
		zap.String("track_id", b.trackID))
	m.detachLocked(b.kind, b.mixableID)
}

// startLocked launches the mixing process and starts pacing. A launch
// failure is logged and mixing stays off until the next report.
func (m *Mixer) startLocked() {
	ctx := context.Background()
	proc, err := m.spawner.Spawn(m.pacer.PushOutput)
	m.metrics.processSpawned(ctx, err)
	if err != nil {
		m.logger.Error("Failed to start mixing process", zap.Error(err))
		return
	}

	m.proc = proc
	m.pacer.Start(proc.Writers(), m.output)
	go m.watch(proc)

	m.logger.Info("Mixing started",
		zap.Int("pid", proc.PID()),
		zap.String("output_id", m.output.ID()))
}

// watch stops pacing when proc exits on its own. Bindings are kept; the next
// report with a usable source launches a new process.
func (m *Mixer) watch(proc Process) {
	<-proc.Done()
	m.metrics.processExited(context.Background())

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.proc != proc {
		return
	}
	m.proc = nil
	m.pacer.Stop()
	m.assembler.ClearAll()
	m.logger.Warn("Mixing process exited unexpectedly", zap.Int("pid", proc.PID()))
}

// StopAudioMixer stops the process and every binding and starts over with a
// fresh combined source. The previous source is left open.
func (m *Mixer) StopAudioMixer() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.destroyed {
		return
	}
	m.teardownLocked()
	m.output = newCombinedSource(m.cfg.OutputBufferFrames)
	m.logger.Info("Mixer stopped", zap.String("output_id", m.output.ID()))
}

// Destroy tears the mixer down for good and closes the combined source.
func (m *Mixer) Destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.destroyed {
		return
	}
	m.teardownLocked()
	m.output.Close()
	m.destroyed = true
	m.logger.Info("Mixer destroyed")
}

func (m *Mixer) teardownLocked() {
	if m.proc != nil {
		m.proc.Stop()
		m.proc = nil
	}
	m.pacer.Stop()

	for _, b := range m.bindings {
		if b != nil {
			m.unbindLocked(b)
		}
	}
	m.slots.Reset()
	m.assembler.ClearAll()
	m.overflow.Purge()
}

// CombinedAudio returns the current combined output. After Destroy it is the
// closed final source.
func (m *Mixer) CombinedAudio() *CombinedSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.output
}

// Running reports whether a mixing process is up and being paced.
func (m *Mixer) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.proc != nil && m.pacer.Running()
}

// Status returns a snapshot of slot occupancy and process state.
func (m *Mixer) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{
		Running:  m.proc != nil && m.pacer.Running(),
		OutputID: m.output.ID(),
		Capacity: m.slots.Len(),
	}
	if m.proc != nil {
		st.PID = m.proc.PID()
	}
	for _, s := range m.slots.Snapshot() {
		ss := SlotStatus{Slot: s, QueuedFrames: m.pacer.QueueLen(s.Index)}
		if b := m.bindings[s.Index]; b != nil {
			ss.TrackID = b.trackID
		}
		st.Slots = append(st.Slots, ss)
	}
	return st
}
