package audio

import (
	"errors"
	"fmt"
	"sync"

	"layeh.com/gopus"
)

// maxOpusPacket is the largest Opus packet we ask the encoder for.
const maxOpusPacket = 4000

// ErrCodecClosed is returned by codecs used after Close.
var ErrCodecClosed = errors.New("opus codec closed")

// OpusDecoder turns Discord Opus packets into canonical mono PCM.
//
// Opus decoders carry state between packets, so every incoming stream (SSRC)
// needs its own decoder.
type OpusDecoder struct {
	mu     sync.Mutex
	dec    *gopus.Decoder
	closed bool
}

// NewOpusDecoder creates a 48 kHz stereo decoder.
func NewOpusDecoder() (*OpusDecoder, error) {
	dec, err := gopus.NewDecoder(DiscordSampleRate, DiscordChannels)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus decoder: %w", err)
	}
	return &OpusDecoder{dec: dec}, nil
}

// DecodeMono decodes one 20 ms packet and down-mixes it to mono
// (960 samples at 48 kHz).
func (d *OpusDecoder) DecodeMono(packet []byte) ([]int16, error) {
	if len(packet) == 0 {
		return nil, errors.New("opus payload empty")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrCodecClosed
	}

	raw, err := d.dec.Decode(packet, DiscordFrameSize, false)
	if err != nil {
		return nil, fmt.Errorf("opus decode: %w", err)
	}
	return StereoToMono(raw), nil
}

// Close releases the decoder. Further calls fail with ErrCodecClosed.
func (d *OpusDecoder) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
}

// OpusEncoder encodes canonical mono PCM into Discord-ready Opus packets.
type OpusEncoder struct {
	mu     sync.Mutex
	enc    *gopus.Encoder
	closed bool
}

// NewOpusEncoder creates a 48 kHz stereo encoder tuned for voice. A bitrate
// of zero keeps the library default.
func NewOpusEncoder(bitrate int) (*OpusEncoder, error) {
	enc, err := gopus.NewEncoder(DiscordSampleRate, DiscordChannels, gopus.Voip)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}
	if bitrate > 0 {
		enc.SetBitrate(bitrate)
	}
	return &OpusEncoder{enc: enc}, nil
}

// EncodeMono encodes one 20 ms mono frame (960 samples at 48 kHz).
func (e *OpusEncoder) EncodeMono(pcm48 []int16) ([]byte, error) {
	if len(pcm48) != DiscordFrameSize {
		return nil, fmt.Errorf("need %d samples, got %d", DiscordFrameSize, len(pcm48))
	}

	stereo := MonoToStereo(pcm48)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrCodecClosed
	}
	return e.enc.Encode(stereo, DiscordFrameSize, maxOpusPacket)
}

// Close releases the encoder. Further calls fail with ErrCodecClosed.
func (e *OpusEncoder) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
}
