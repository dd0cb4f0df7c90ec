// Package audiomixer multiplexes a changing set of live audio sources into a
// fixed number of mixer slots, feeds them at a real-time cadence into an
// external mixing process and re-assembles the process output into a single
// combined source.
package audiomixer

import "fmt"

// Kind separates the two categories of mixable sources. Membership is
// reported per kind, and eviction never crosses kinds.
type Kind int

const (
	KindParticipant Kind = iota
	KindScreenshare
)

func (k Kind) String() string {
	switch k {
	case KindParticipant:
		return "participant"
	case KindScreenshare:
		return "screenshare"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Chunk is one callback's worth of PCM from a live source.
type Chunk struct {
	Samples       []int16
	SampleRate    int
	ChannelCount  int
	BitsPerSample int
	FrameCount    int
}

// Subscription is the handle returned by Track.Subscribe.
type Subscription interface {
	Stop() error
}

// Track is a live audio source that can be subscribed to.
//
// Subscribe callbacks may run on any goroutine, including the one calling
// Subscribe. OnEnded registers a listener fired once when the track stops
// producing audio for good; the returned func removes it.
type Track interface {
	ID() string
	Subscribe(fn func(Chunk)) (Subscription, error)
	OnEnded(fn func()) (remove func())
}

// Mixable describes a source eligible for mixing. It is supplied fresh on
// every membership report; identity is by ID.
type Mixable struct {
	ID           string
	Kind         Kind
	AudioEnabled bool
	Track        Track // nil when the source has no live audio track
}

// usable reports whether the mixable should occupy a slot.
func (m Mixable) usable() bool {
	return m.AudioEnabled && m.Track != nil
}

// FrameWriter accepts fixed-size frames for one mixer input. TryWrite never
// blocks; it returns false when the input is backed up.
type FrameWriter interface {
	TryWrite(frame []int16) bool
}

// OutputSink receives paced, fixed-size mixed frames.
type OutputSink interface {
	Deliver(frame []int16)
}

// FrameQueue receives frames emitted by a FrameAssembler.
type FrameQueue interface {
	Enqueue(slot int, frame []int16)
}
