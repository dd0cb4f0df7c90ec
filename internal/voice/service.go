package voice

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/diamondburned/arikawa/v3/discord"
	"github.com/diamondburned/arikawa/v3/gateway"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/Raikerian/go-discord-mixer/internal/config"
	"github.com/Raikerian/go-discord-mixer/pkg/audio"
	"github.com/Raikerian/go-discord-mixer/pkg/audiomixer"
)

var (
	ErrSessionActive = errors.New("a mixing session is already active in this guild")
	ErrNoSession     = errors.New("no mixing session is active in this guild")
)

// Service runs at most one mixing session per guild.
type Service struct {
	logger       *zap.Logger
	cfg          *config.Config
	states       voiceStateSource
	self         func() (discord.UserID, error)
	voiceManager DiscordVoiceManager
	meter        metric.MeterProvider

	newDecoder func() (opusDecoder, error)
	newEncoder func(bitrate int) (opusEncoder, error)
	newSpawner func() audiomixer.Spawner

	mu       sync.Mutex
	sessions map[discord.GuildID]*Session
	starting map[discord.GuildID]bool
}

func newService(
	logger *zap.Logger,
	cfg *config.Config,
	states voiceStateSource,
	self func() (discord.UserID, error),
	voiceManager DiscordVoiceManager,
	mp metric.MeterProvider,
) *Service {
	s := &Service{
		logger:       logger.Named("voice"),
		cfg:          cfg,
		states:       states,
		self:         self,
		voiceManager: voiceManager,
		meter:        mp,
		newDecoder:   newOpusDecoder,
		newEncoder:   newOpusEncoder,
		sessions:     make(map[discord.GuildID]*Session),
		starting:     make(map[discord.GuildID]bool),
	}
	s.newSpawner = s.spawnerFromConfig
	return s
}

func (s *Service) spawnerFromConfig() audiomixer.Spawner {
	engine := s.cfg.Mixer.Engine()
	if s.cfg.Mixer.Backend == config.BackendLocal {
		return audiomixer.NewLocal(engine)
	}
	return audiomixer.NewFFmpeg(s.logger, s.cfg.Mixer.FFmpegPath, engine)
}

// Start joins channelID and begins mixing everyone in it.
func (s *Service) Start(ctx context.Context, guildID discord.GuildID, channelID discord.ChannelID) (*Session, error) {
	s.mu.Lock()
	if s.sessions[guildID] != nil || s.starting[guildID] {
		s.mu.Unlock()
		return nil, ErrSessionActive
	}
	s.starting[guildID] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.starting, guildID)
		s.mu.Unlock()
	}()

	selfID, err := s.self()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve bot user: %w", err)
	}

	vc, err := s.voiceManager.JoinChannel(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("failed to join voice channel: %w", err)
	}

	sess, err := s.newSession(guildID, channelID, selfID, vc.Conn)
	if err != nil {
		if leaveErr := s.voiceManager.LeaveChannel(ctx, channelID); leaveErr != nil {
			s.logger.Warn("Failed to leave after session setup error", zap.Error(leaveErr))
		}
		return nil, err
	}

	s.mu.Lock()
	s.sessions[guildID] = sess
	s.mu.Unlock()

	sess.start()
	return sess, nil
}

func (s *Service) newSession(
	guildID discord.GuildID,
	channelID discord.ChannelID,
	selfID discord.UserID,
	conn Conn,
) (*Session, error) {
	logger := s.logger.With(zap.String("guild_id", guildID.String()))
	engine := s.cfg.Mixer.Engine()

	mixer, err := audiomixer.New(logger, engine, s.newSpawner(), audiomixer.WithMeterProvider(s.meter))
	if err != nil {
		return nil, fmt.Errorf("failed to create mixer: %w", err)
	}

	opts := sessionOptions{
		guildID:        guildID,
		channelID:      channelID,
		selfID:         selfID,
		conn:           conn,
		mixer:          mixer,
		states:         s.states,
		newDecoder:     s.newDecoder,
		reportDebounce: s.cfg.Voice.ReportDebounce,
		reportMaxWait:  s.cfg.Voice.ReportMaxWait,
		mixMuted:       s.cfg.Voice.MixMuted,
	}

	if s.cfg.Recorder.Enabled {
		rec, err := audio.NewRecorder(recordingPath(s.cfg.Recorder.Directory, guildID, time.Now()), engine.SampleRate)
		if err != nil {
			mixer.Destroy()
			return nil, fmt.Errorf("failed to start recording: %w", err)
		}
		opts.recorder = rec
	}

	if s.cfg.Voice.Playback {
		enc, err := s.newEncoder(s.cfg.Voice.PlaybackBitrate)
		if err != nil {
			mixer.Destroy()
			if opts.recorder != nil {
				_ = opts.recorder.Close()
			}
			return nil, fmt.Errorf("failed to create playback encoder: %w", err)
		}
		opts.sender = newSender(logger, conn, enc)
	}

	return newSession(s.logger, opts), nil
}

// Stop ends the guild's session and leaves its voice channel.
func (s *Service) Stop(ctx context.Context, guildID discord.GuildID) error {
	s.mu.Lock()
	sess := s.sessions[guildID]
	delete(s.sessions, guildID)
	s.mu.Unlock()

	if sess == nil {
		return ErrNoSession
	}
	return s.stopSession(ctx, sess)
}

func (s *Service) stopSession(ctx context.Context, sess *Session) error {
	return sess.close(ctx, func(ctx context.Context) error {
		return s.voiceManager.LeaveChannel(ctx, sess.channelID)
	})
}

// Reset restarts the guild's mixing process and rebuilds every attachment.
func (s *Service) Reset(guildID discord.GuildID) error {
	sess := s.session(guildID)
	if sess == nil {
		return ErrNoSession
	}
	sess.Reset()
	return nil
}

// Status returns the guild's session snapshot.
func (s *Service) Status(guildID discord.GuildID) (SessionStatus, error) {
	sess := s.session(guildID)
	if sess == nil {
		return SessionStatus{}, ErrNoSession
	}
	return sess.Status(), nil
}

func (s *Service) session(guildID discord.GuildID) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[guildID]
}

// HandleVoiceStateUpdate schedules a membership report for the affected
// session. The session ends when the bot itself is disconnected or moved.
func (s *Service) HandleVoiceStateUpdate(e *gateway.VoiceStateUpdateEvent) {
	sess := s.session(e.GuildID)
	if sess == nil {
		return
	}

	if e.UserID == sess.selfID && e.ChannelID != sess.channelID {
		s.logger.Info("Bot left the mixed channel, ending session",
			zap.String("guild_id", e.GuildID.String()),
			zap.String("channel_id", sess.channelID.String()))
		go func() {
			if err := s.Stop(context.Background(), e.GuildID); err != nil && !errors.Is(err, ErrNoSession) {
				s.logger.Warn("Failed to end session", zap.Error(err))
			}
		}()
		return
	}

	sess.markDirty()
}

// Shutdown ends every session.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for id, sess := range s.sessions {
		sessions = append(sessions, sess)
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	var errs []error
	for _, sess := range sessions {
		if err := s.stopSession(ctx, sess); err != nil {
			errs = append(errs, fmt.Errorf("guild %s: %w", sess.guildID, err))
		}
	}
	if len(sessions) > 0 {
		s.logger.Info("Stopped all mixing sessions", zap.Int("count", len(sessions)))
	}
	return errors.Join(errs...)
}
