package voice

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/diamondburned/arikawa/v3/discord"
	"github.com/diamondburned/arikawa/v3/session"
	"github.com/diamondburned/arikawa/v3/voice"
	"github.com/diamondburned/arikawa/v3/voice/voicegateway"
	"go.uber.org/zap"
)

// AudioPacket is one received voice packet.
type AudioPacket struct {
	SSRC         uint32
	Opus         []byte
	RTPTimestamp uint32
	Sequence     uint16
}

// Conn is the part of a voice connection a Session uses.
type Conn interface {
	// ReadPacket blocks for the next received packet.
	ReadPacket() (*AudioPacket, error)
	// Write sends one 20 ms Opus packet.
	Write(opus []byte) (int, error)
	// OnSpeaking reports which user owns an SSRC.
	OnSpeaking(fn func(ssrc uint32, userID discord.UserID)) (remove func())
	// OnClientDisconnect reports users leaving the voice connection.
	OnClientDisconnect(fn func(userID discord.UserID)) (remove func())
	Leave(ctx context.Context) error
}

// VoiceConnection is a joined voice channel.
type VoiceConnection struct {
	ChannelID   discord.ChannelID
	GuildID     discord.GuildID
	ConnectedAt time.Time
	Conn        Conn
}

// DiscordVoiceManager joins and leaves voice channels.
type DiscordVoiceManager interface {
	JoinChannel(ctx context.Context, channelID discord.ChannelID) (*VoiceConnection, error)
	LeaveChannel(ctx context.Context, channelID discord.ChannelID) error
}

type discordVoiceManager struct {
	logger  *zap.Logger
	session *session.Session

	activeConnections sync.Map // map[discord.ChannelID]*VoiceConnection
}

// NewDiscordVoiceManager returns a manager backed by arikawa voice sessions.
func NewDiscordVoiceManager(logger *zap.Logger, session *session.Session) DiscordVoiceManager {
	return &discordVoiceManager{
		logger:  logger.Named("voice_manager"),
		session: session,
	}
}

func (m *discordVoiceManager) JoinChannel(ctx context.Context, channelID discord.ChannelID) (*VoiceConnection, error) {
	if value, exists := m.activeConnections.Load(channelID); exists {
		return value.(*VoiceConnection), nil
	}

	channel, err := m.session.Channel(channelID)
	if err != nil {
		return nil, fmt.Errorf("failed to get channel info: %w", err)
	}
	if channel.Type != discord.GuildVoice && channel.Type != discord.GuildStageVoice {
		return nil, fmt.Errorf("channel %s is not a voice channel", channelID)
	}

	voiceSession, err := voice.NewSession(m.session)
	if err != nil {
		return nil, fmt.Errorf("failed to create voice session: %w", err)
	}

	// Not deafened: receiving is the whole point.
	if err := voiceSession.JoinChannel(ctx, channelID, false, false); err != nil {
		return nil, fmt.Errorf("failed to join voice channel: %w", err)
	}
	if err := voiceSession.Speaking(ctx, voicegateway.Microphone); err != nil {
		_ = voiceSession.Leave(ctx)
		return nil, fmt.Errorf("failed to set speaking mode: %w", err)
	}

	// arikawa only finishes the UDP handshake on the first Write; without it
	// ReadPacket blocks forever.
	_, _ = voiceSession.Write([]byte{})

	conn := &VoiceConnection{
		ChannelID:   channelID,
		GuildID:     channel.GuildID,
		ConnectedAt: time.Now(),
		Conn:        &arikawaConn{session: voiceSession},
	}
	m.activeConnections.Store(channelID, conn)

	m.logger.Info("Joined voice channel",
		zap.String("channel_id", channelID.String()),
		zap.String("guild_id", channel.GuildID.String()))

	return conn, nil
}

func (m *discordVoiceManager) LeaveChannel(ctx context.Context, channelID discord.ChannelID) error {
	value, exists := m.activeConnections.LoadAndDelete(channelID)
	if !exists {
		return nil
	}
	conn := value.(*VoiceConnection)

	if err := conn.Conn.Leave(ctx); err != nil {
		m.logger.Warn("Failed to leave voice channel cleanly",
			zap.String("channel_id", channelID.String()),
			zap.Error(err))
	}

	m.logger.Info("Left voice channel",
		zap.String("channel_id", channelID.String()),
		zap.String("guild_id", conn.GuildID.String()))
	return nil
}

// arikawaConn adapts *voice.Session to Conn.
type arikawaConn struct {
	session *voice.Session
}

func (c *arikawaConn) ReadPacket() (*AudioPacket, error) {
	p, err := c.session.ReadPacket()
	if err != nil {
		return nil, err
	}
	return &AudioPacket{
		SSRC:         p.SSRC(),
		Opus:         p.Opus,
		RTPTimestamp: p.Timestamp(),
		Sequence:     p.Sequence(),
	}, nil
}

func (c *arikawaConn) Write(opus []byte) (int, error) {
	return c.session.Write(opus)
}

func (c *arikawaConn) OnSpeaking(fn func(ssrc uint32, userID discord.UserID)) func() {
	return c.session.AddHandler(func(e *voicegateway.SpeakingEvent) {
		fn(e.SSRC, e.UserID)
	})
}

func (c *arikawaConn) OnClientDisconnect(fn func(userID discord.UserID)) func() {
	return c.session.AddHandler(func(e *voicegateway.ClientDisconnectEvent) {
		fn(e.UserID)
	})
}

func (c *arikawaConn) Leave(ctx context.Context) error {
	return c.session.Leave(ctx)
}
