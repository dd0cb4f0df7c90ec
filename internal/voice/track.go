package voice

import (
	"fmt"
	"sync"

	"github.com/diamondburned/arikawa/v3/discord"

	"github.com/Raikerian/go-discord-mixer/pkg/audio"
	"github.com/Raikerian/go-discord-mixer/pkg/audiomixer"
)

// opusDecoder is satisfied by *audio.OpusDecoder.
type opusDecoder interface {
	DecodeMono(packet []byte) ([]int16, error)
	Close()
}

func newOpusDecoder() (opusDecoder, error) {
	return audio.NewOpusDecoder()
}

// userTrack is the live audio of one user on one SSRC. A user who reconnects
// gets a new SSRC and therefore a new track.
type userTrack struct {
	id      string
	userID  discord.UserID
	ssrc    uint32
	decoder opusDecoder

	mu      sync.Mutex
	subs    map[int]func(audiomixer.Chunk)
	ended   map[int]func()
	nextKey int
	done    bool
}

func trackID(userID discord.UserID, ssrc uint32) string {
	return fmt.Sprintf("%s:%d", userID, ssrc)
}

func newUserTrack(userID discord.UserID, ssrc uint32, dec opusDecoder) *userTrack {
	return &userTrack{
		id:      trackID(userID, ssrc),
		userID:  userID,
		ssrc:    ssrc,
		decoder: dec,
		subs:    make(map[int]func(audiomixer.Chunk)),
		ended:   make(map[int]func()),
	}
}

func (t *userTrack) ID() string {
	return t.id
}

func (t *userTrack) Subscribe(fn func(audiomixer.Chunk)) (audiomixer.Subscription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return nil, fmt.Errorf("track %s has ended", t.id)
	}
	key := t.nextKey
	t.nextKey++
	t.subs[key] = fn
	return &trackSubscription{track: t, key: key}, nil
}

func (t *userTrack) OnEnded(fn func()) func() {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		fn()
		return func() {}
	}
	key := t.nextKey
	t.nextKey++
	t.ended[key] = fn
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.ended, key)
	}
}

// decode turns one Opus packet into a chunk and hands it to every subscriber.
func (t *userTrack) decode(opus []byte) error {
	pcm, err := t.decoder.DecodeMono(opus)
	if err != nil {
		return err
	}

	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return nil
	}
	subs := make([]func(audiomixer.Chunk), 0, len(t.subs))
	for _, fn := range t.subs {
		subs = append(subs, fn)
	}
	t.mu.Unlock()

	chunk := audiomixer.Chunk{
		Samples:       pcm,
		SampleRate:    audio.DiscordSampleRate,
		ChannelCount:  1,
		BitsPerSample: 16,
		FrameCount:    len(pcm),
	}
	for _, fn := range subs {
		fn(chunk)
	}
	return nil
}

// end marks the track finished and fires the ended listeners once.
func (t *userTrack) end() {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return
	}
	t.done = true
	listeners := make([]func(), 0, len(t.ended))
	for _, fn := range t.ended {
		listeners = append(listeners, fn)
	}
	clear(t.ended)
	clear(t.subs)
	t.mu.Unlock()

	t.decoder.Close()
	for _, fn := range listeners {
		fn()
	}
}

type trackSubscription struct {
	track *userTrack
	key   int
	once  sync.Once
}

func (s *trackSubscription) Stop() error {
	s.once.Do(func() {
		s.track.mu.Lock()
		defer s.track.mu.Unlock()
		delete(s.track.subs, s.key)
	})
	return nil
}
