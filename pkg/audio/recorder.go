package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// wavPCMFormat is the WAVE_FORMAT_PCM tag.
const wavPCMFormat = 1

// Recorder writes mono 16-bit PCM frames to a WAV file.
type Recorder struct {
	mu      sync.Mutex
	file    *os.File
	enc     *wav.Encoder
	format  *goaudio.Format
	samples int
	closed  bool
}

// NewRecorder creates path (and its parent directory) and prepares a mono
// 16-bit WAV encoder at sampleRate.
func NewRecorder(path string, sampleRate int) (*Recorder, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("recording dir: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create wav: %w", err)
	}

	return &Recorder{
		file:   f,
		enc:    wav.NewEncoder(f, sampleRate, CanonicalBitDepth, CanonicalChannels, wavPCMFormat),
		format: &goaudio.Format{NumChannels: CanonicalChannels, SampleRate: sampleRate},
	}, nil
}

// Write appends samples to the recording.
func (r *Recorder) Write(samples []int16) error {
	if len(samples) == 0 {
		return nil
	}

	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errors.New("recorder closed")
	}

	buf := &goaudio.IntBuffer{
		Format:         r.format,
		Data:           data,
		SourceBitDepth: CanonicalBitDepth,
	}
	if err := r.enc.Write(buf); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	r.samples += len(samples)
	return nil
}

// Samples returns how many samples have been written so far.
func (r *Recorder) Samples() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.samples
}

// Path returns the file being written.
func (r *Recorder) Path() string {
	return r.file.Name()
}

// Close finalises the WAV header and closes the file. Safe to call twice.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	encErr := r.enc.Close()
	fileErr := r.file.Close()
	return errors.Join(encErr, fileErr)
}
