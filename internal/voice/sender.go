package voice

import (
	"go.uber.org/zap"

	"github.com/Raikerian/go-discord-mixer/pkg/audio"
)

// opusEncoder is satisfied by *audio.OpusEncoder.
type opusEncoder interface {
	EncodeMono(pcm []int16) ([]byte, error)
	Close()
}

func newOpusEncoder(bitrate int) (opusEncoder, error) {
	return audio.NewOpusEncoder(bitrate)
}

// sender plays the combined mix back into the voice channel. Mixed frames
// are 10 ms; Discord wants 20 ms Opus packets, so two frames make a packet.
type sender struct {
	logger  *zap.Logger
	conn    Conn
	encoder opusEncoder
	pending []int16
}

func newSender(logger *zap.Logger, conn Conn, enc opusEncoder) *sender {
	return &sender{
		logger:  logger,
		conn:    conn,
		encoder: enc,
		pending: make([]int16, 0, audio.DiscordFrameSize),
	}
}

func (s *sender) push(frame []int16) {
	s.pending = append(s.pending, frame...)
	for len(s.pending) >= audio.DiscordFrameSize {
		packet, err := s.encoder.EncodeMono(s.pending[:audio.DiscordFrameSize])
		s.pending = append(s.pending[:0], s.pending[audio.DiscordFrameSize:]...)
		if err != nil {
			s.logger.Debug("Failed to encode playback frame", zap.Error(err))
			continue
		}
		if _, err := s.conn.Write(packet); err != nil {
			s.logger.Debug("Failed to send playback packet", zap.Error(err))
		}
	}
}

func (s *sender) close() {
	s.encoder.Close()
}
