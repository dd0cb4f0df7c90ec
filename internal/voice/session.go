package voice

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/diamondburned/arikawa/v3/discord"
	"go.uber.org/zap"

	"github.com/Raikerian/go-discord-mixer/pkg/audio"
	"github.com/Raikerian/go-discord-mixer/pkg/audiomixer"
	"github.com/Raikerian/go-discord-mixer/pkg/util"
)

// SessionStatus is a snapshot of one guild's mixing session.
type SessionStatus struct {
	GuildID       discord.GuildID
	ChannelID     discord.ChannelID
	StartedAt     time.Time
	Mixer         audiomixer.Status
	RecordingPath string
	Playback      bool
}

type sessionOptions struct {
	guildID        discord.GuildID
	channelID      discord.ChannelID
	selfID         discord.UserID
	conn           Conn
	mixer          *audiomixer.Mixer
	states         voiceStateSource
	newDecoder     func() (opusDecoder, error)
	reportDebounce time.Duration
	reportMaxWait  time.Duration
	mixMuted       bool
	recorder       *audio.Recorder
	sender         *sender
}

// Session mixes one guild's voice channel. It owns the voice connection's
// receive loop, the membership reporting loop and the output pump.
type Session struct {
	logger    *zap.Logger
	guildID   discord.GuildID
	channelID discord.ChannelID
	selfID    discord.UserID
	startedAt time.Time
	conn      Conn
	mixer     *audiomixer.Mixer
	states    voiceStateSource
	recv      *receiver
	debounce  time.Duration
	maxWait   time.Duration
	mixMuted  bool
	recorder  *audio.Recorder
	sender    *sender

	// Owned by the pump goroutine.
	recordFailed bool

	dirty   chan struct{}
	resetCh chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	removes []func()

	closeOnce sync.Once
	closeErr  error
}

func newSession(logger *zap.Logger, opts sessionOptions) *Session {
	s := &Session{
		logger: logger.With(
			zap.String("guild_id", opts.guildID.String()),
			zap.String("channel_id", opts.channelID.String())),
		guildID:   opts.guildID,
		channelID: opts.channelID,
		selfID:    opts.selfID,
		startedAt: time.Now(),
		conn:      opts.conn,
		mixer:     opts.mixer,
		states:    opts.states,
		debounce:  opts.reportDebounce,
		maxWait:   opts.reportMaxWait,
		mixMuted:  opts.mixMuted,
		recorder:  opts.recorder,
		sender:    opts.sender,
		dirty:     make(chan struct{}, 1),
		resetCh:   make(chan struct{}, 1),
	}
	s.recv = newReceiver(s.logger, opts.newDecoder, s.markDirty)
	return s
}

// start launches the session goroutines.
func (s *Session) start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.removes = append(s.removes,
		s.conn.OnSpeaking(s.recv.speaking),
		s.conn.OnClientDisconnect(s.recv.disconnect),
	)

	// Discord does not deliver Go Live audio to bots, so the screen-share
	// snapshot is always empty.
	if err := s.mixer.ReportScreenshares(nil); err != nil {
		s.logger.Warn("Failed to report screen-shares", zap.Error(err))
	}

	s.wg.Add(3)
	go func() {
		defer s.wg.Done()
		s.recv.run(ctx, s.conn)
	}()
	go func() {
		defer s.wg.Done()
		s.reportLoop(ctx)
	}()
	go func() {
		defer s.wg.Done()
		s.pump(ctx)
	}()

	s.logger.Info("Mixing session started")
}

// markDirty schedules a membership report.
func (s *Session) markDirty() {
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

func (s *Session) reportLoop(ctx context.Context) {
	debouncer := util.NewDebouncer(s.debounce, s.maxWait)
	defer debouncer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.dirty:
			debouncer.Reset()
		case <-debouncer.C():
			s.report()
		}
	}
}

// report sends the current participant snapshot to the mixer.
func (s *Session) report() {
	states, err := s.states.VoiceStates(s.guildID)
	if err != nil {
		s.logger.Warn("Failed to read voice states", zap.Error(err))
		return
	}

	list := participants(states, s.channelID, s.selfID, s.mixMuted, s.recv.track)
	if err := s.mixer.ReportParticipants(list); err != nil {
		if errors.Is(err, audiomixer.ErrDestroyed) {
			return
		}
		s.logger.Warn("Some participants could not be attached", zap.Error(err))
	}
	s.logger.Debug("Reported participants", zap.Int("count", len(list)))
}

// pump forwards combined frames to the recorder and the playback sender,
// following the mixer to its new output after a reset.
func (s *Session) pump(ctx context.Context) {
	for {
		src := s.mixer.CombinedAudio()
		if !s.pumpSource(ctx, src) {
			return
		}
	}
}

func (s *Session) pumpSource(ctx context.Context, src *audiomixer.CombinedSource) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case <-s.resetCh:
			return true
		case frame, ok := <-src.Frames():
			if !ok {
				return false
			}
			s.deliver(frame)
		}
	}
}

func (s *Session) deliver(frame []int16) {
	if s.recorder != nil && !s.recordFailed {
		if err := s.recorder.Write(frame); err != nil {
			s.logger.Warn("Recording stopped", zap.Error(err))
			s.recordFailed = true
		}
	}
	if s.sender != nil {
		s.sender.push(frame)
	}
}

// Reset restarts mixing from scratch: the process and every attachment are
// dropped and rebuilt on the next membership report.
func (s *Session) Reset() {
	s.mixer.StopAudioMixer()
	select {
	case s.resetCh <- struct{}{}:
	default:
	}
	s.markDirty()
	s.logger.Info("Mixing session reset")
}

// Status returns a snapshot of the session.
func (s *Session) Status() SessionStatus {
	st := SessionStatus{
		GuildID:   s.guildID,
		ChannelID: s.channelID,
		StartedAt: s.startedAt,
		Mixer:     s.mixer.Status(),
		Playback:  s.sender != nil,
	}
	if s.recorder != nil {
		st.RecordingPath = s.recorder.Path()
	}
	return st
}

// close stops the goroutines, destroys the mixer and finalizes the
// recording. leave disconnects the voice connection, which unblocks the
// receive loop.
func (s *Session) close(ctx context.Context, leave func(context.Context) error) error {
	s.closeOnce.Do(func() {
		for _, rm := range s.removes {
			rm()
		}
		if s.cancel != nil {
			s.cancel()
		}
		s.mixer.Destroy()
		s.recv.close()

		var errs []error
		if err := leave(ctx); err != nil {
			errs = append(errs, fmt.Errorf("leave voice channel: %w", err))
		}

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			if s.sender != nil {
				s.sender.close()
			}
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("waiting for session goroutines: %w", ctx.Err()))
		}

		if s.recorder != nil {
			if err := s.recorder.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close recording: %w", err))
			}
		}
		s.closeErr = errors.Join(errs...)
		s.logger.Info("Mixing session closed")
	})
	return s.closeErr
}

func recordingPath(dir string, guildID discord.GuildID, at time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("%s-%s.wav", guildID, at.UTC().Format("20060102T150405Z")))
}
