// Package wavsource plays WAV files as live audio tracks for the mixer.
package wavsource

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/Raikerian/go-discord-mixer/pkg/audio"
	"github.com/Raikerian/go-discord-mixer/pkg/audiomixer"
)

// ChunkDuration is how much audio each callback carries.
const ChunkDuration = 20 * time.Millisecond

// Track is a WAV file exposed as an audiomixer.Track. The whole file is
// decoded up front; Start plays it back in real time.
type Track struct {
	id         string
	sampleRate int
	samples    []int16

	mu      sync.Mutex
	subs    map[int]func(audiomixer.Chunk)
	ended   map[int]func()
	nextKey int
	done    bool
}

// Open decodes a 16-bit PCM WAV file. Stereo input is downmixed to mono.
func Open(path string) (*Track, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%s: not a valid WAV file", path)
	}
	if dec.BitDepth != 16 {
		return nil, fmt.Errorf("%s: %d-bit audio is not supported, need 16-bit", path, dec.BitDepth)
	}
	if dec.NumChans != 1 && dec.NumChans != 2 {
		return nil, fmt.Errorf("%s: %d channels are not supported", path, dec.NumChans)
	}
	if chunkBoundary(int(dec.SampleRate), 1) == 0 {
		return nil, fmt.Errorf("%s: %d Hz is too low, a %s chunk would be empty", path, dec.SampleRate, ChunkDuration)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%s: decode: %w", path, err)
	}

	return newTrack(filepath.Base(path), int(dec.SampleRate), int(dec.NumChans), buf), nil
}

func newTrack(id string, sampleRate, channels int, buf *goaudio.IntBuffer) *Track {
	pcm := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		pcm[i] = int16(v)
	}
	if channels == 2 {
		pcm = audio.StereoToMono(pcm)
	}
	return &Track{
		id:         id,
		sampleRate: sampleRate,
		samples:    pcm,
		subs:       make(map[int]func(audiomixer.Chunk)),
		ended:      make(map[int]func()),
	}
}

func (t *Track) ID() string { return t.id }

// SampleRate is the file's native rate.
func (t *Track) SampleRate() int { return t.sampleRate }

// Duration is the playback length.
func (t *Track) Duration() time.Duration {
	if t.sampleRate == 0 {
		return 0
	}
	return time.Duration(len(t.samples)) * time.Second / time.Duration(t.sampleRate)
}

func (t *Track) Subscribe(fn func(audiomixer.Chunk)) (audiomixer.Subscription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return nil, errors.New("track has ended")
	}
	key := t.nextKey
	t.nextKey++
	t.subs[key] = fn
	return &subscription{track: t, key: key}, nil
}

func (t *Track) OnEnded(fn func()) func() {
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

// Start plays the file in ChunkDuration chunks and ends the track at EOF or
// when ctx is cancelled. It returns immediately.
func (t *Track) Start(ctx context.Context) {
	go t.play(ctx, time.NewTicker(ChunkDuration))
}

func (t *Track) play(ctx context.Context, ticker *time.Ticker) {
	defer ticker.Stop()
	defer t.Close()

	for i := 0; ; i++ {
		start := chunkBoundary(t.sampleRate, i)
		if start >= len(t.samples) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		end := min(chunkBoundary(t.sampleRate, i+1), len(t.samples))
		t.emit(t.samples[start:end])
	}
}

// chunkBoundary is the sample offset where chunk i starts. Boundaries are
// computed from the chunk index, so rates that do not divide evenly into
// ChunkDuration (11025 Hz) alternate chunk sizes instead of drifting.
func chunkBoundary(sampleRate, i int) int {
	return int(int64(i) * int64(sampleRate) * int64(ChunkDuration) / int64(time.Second))
}

func (t *Track) emit(samples []int16) {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return
	}
	subs := make([]func(audiomixer.Chunk), 0, len(t.subs))
	for _, fn := range t.subs {
		subs = append(subs, fn)
	}
	t.mu.Unlock()

	chunk := audiomixer.Chunk{
		Samples:       samples,
		SampleRate:    t.sampleRate,
		ChannelCount:  1,
		BitsPerSample: 16,
		FrameCount:    len(samples),
	}
	for _, fn := range subs {
		fn(chunk)
	}
}

// Close ends the track. Ended listeners fire once.
func (t *Track) Close() {
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

	for _, fn := range listeners {
		fn()
	}
}

type subscription struct {
	track *Track
	key   int
}

func (s *subscription) Stop() error {
	s.track.mu.Lock()
	defer s.track.mu.Unlock()
	delete(s.track.subs, s.key)
	return nil
}
