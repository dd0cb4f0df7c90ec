package commands

import (
	"context"
	"testing"
	"time"

	"github.com/diamondburned/arikawa/v3/discord"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Raikerian/go-discord-mixer/internal/voice"
	"github.com/Raikerian/go-discord-mixer/pkg/audiomixer"
)

type mockMixerService struct {
	mock.Mock
}

func (m *mockMixerService) Start(ctx context.Context, guildID discord.GuildID, channelID discord.ChannelID) (*voice.Session, error) {
	args := m.Called(ctx, guildID, channelID)
	sess, _ := args.Get(0).(*voice.Session)
	return sess, args.Error(1)
}

func (m *mockMixerService) Stop(ctx context.Context, guildID discord.GuildID) error {
	return m.Called(ctx, guildID).Error(0)
}

func (m *mockMixerService) Reset(guildID discord.GuildID) error {
	return m.Called(guildID).Error(0)
}

func (m *mockMixerService) Status(guildID discord.GuildID) (voice.SessionStatus, error) {
	args := m.Called(guildID)
	return args.Get(0).(voice.SessionStatus), args.Error(1)
}

type stubStates map[discord.UserID]*discord.VoiceState

func (s stubStates) VoiceState(_ discord.GuildID, userID discord.UserID) (*discord.VoiceState, error) {
	vs, ok := s[userID]
	if !ok {
		return nil, assert.AnError
	}
	return vs, nil
}

const (
	guild   discord.GuildID   = 10
	caller  discord.UserID    = 20
	channel discord.ChannelID = 30
)

func newTestMixerCommand(svc *mockMixerService, states stubStates) *MixerCommand {
	return &MixerCommand{logger: zap.NewNop(), service: svc, states: states}
}

func TestMixerCommandDefinition(t *testing.T) {
	c := newTestMixerCommand(&mockMixerService{}, nil)
	assert.Equal(t, "mixer", c.Name())
	assert.NotEmpty(t, c.Description())

	require.Len(t, c.Options(), 1)
	opt, ok := c.Options()[0].(*discord.StringOption)
	require.True(t, ok)
	assert.Equal(t, "action", opt.OptionName)
	assert.True(t, opt.Required)

	var values []string
	for _, ch := range opt.Choices {
		values = append(values, ch.Value)
	}
	assert.Equal(t, []string{"join", "leave", "status", "reset"}, values)
}

func TestMixerCommandRun(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		action string
		setup  func(*mockMixerService)
		want   string
	}{
		{
			name:   "LeaveRunning",
			action: "leave",
			setup:  func(m *mockMixerService) { m.On("Stop", ctx, guild).Return(nil) },
			want:   "Stopped mixing.",
		},
		{
			name:   "LeaveIdle",
			action: "leave",
			setup:  func(m *mockMixerService) { m.On("Stop", ctx, guild).Return(voice.ErrNoSession) },
			want:   "The mixer is not running in this server.",
		},
		{
			name:   "LeaveWithErrors",
			action: "leave",
			setup:  func(m *mockMixerService) { m.On("Stop", ctx, guild).Return(assert.AnError) },
			want:   "Stopped the mixer with errors: " + assert.AnError.Error(),
		},
		{
			name:   "Reset",
			action: "reset",
			setup:  func(m *mockMixerService) { m.On("Reset", guild).Return(nil) },
			want:   "Mixer reset. Everyone will be re-attached shortly.",
		},
		{
			name:   "ResetIdle",
			action: "reset",
			setup:  func(m *mockMixerService) { m.On("Reset", guild).Return(voice.ErrNoSession) },
			want:   "The mixer is not running in this server.",
		},
		{
			name:   "StatusIdle",
			action: "status",
			setup: func(m *mockMixerService) {
				m.On("Status", guild).Return(voice.SessionStatus{}, voice.ErrNoSession)
			},
			want: "The mixer is not running in this server.",
		},
		{
			name:   "Unknown",
			action: "dance",
			setup:  func(*mockMixerService) {},
			want:   "Unknown action: dance",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockMixerService{}
			tt.setup(svc)
			c := newTestMixerCommand(svc, nil)

			assert.Equal(t, tt.want, c.run(ctx, guild, caller, tt.action))
			svc.AssertExpectations(t)
		})
	}
}

func TestMixerCommandCallerChannel(t *testing.T) {
	c := newTestMixerCommand(&mockMixerService{}, stubStates{
		caller: {GuildID: guild, ChannelID: channel, UserID: caller},
		21:     {GuildID: guild, UserID: 21},
	})

	ch, msg := c.callerChannel(guild, caller)
	assert.Equal(t, channel, ch)
	assert.Empty(t, msg)

	_, msg = c.callerChannel(guild, 21)
	assert.Equal(t, "Join a voice channel first.", msg)

	_, msg = c.callerChannel(guild, 99)
	assert.Equal(t, "Join a voice channel first.", msg)
}

func TestMixerCommandJoin(t *testing.T) {
	ctx := context.Background()

	t.Run("Started", func(t *testing.T) {
		svc := &mockMixerService{}
		svc.On("Start", ctx, guild, channel).Return(nil, nil)
		c := newTestMixerCommand(svc, nil)

		assert.Equal(t, "Mixing <#30>.", c.join(ctx, guild, channel))
		svc.AssertExpectations(t)
	})

	t.Run("AlreadyRunning", func(t *testing.T) {
		svc := &mockMixerService{}
		svc.On("Start", ctx, guild, channel).Return(nil, voice.ErrSessionActive)
		c := newTestMixerCommand(svc, nil)

		assert.Equal(t, "The mixer is already running in this server.", c.join(ctx, guild, channel))
	})

	t.Run("Failed", func(t *testing.T) {
		svc := &mockMixerService{}
		svc.On("Start", ctx, guild, channel).Return(nil, assert.AnError)
		c := newTestMixerCommand(svc, nil)

		assert.Equal(t, "Failed to start the mixer: "+assert.AnError.Error(), c.join(ctx, guild, channel))
	})
}

func TestFormatStatus(t *testing.T) {
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	st := voice.SessionStatus{
		GuildID:   guild,
		ChannelID: channel,
		StartedAt: started,
		Mixer: audiomixer.Status{
			Running:  true,
			PID:      4242,
			Capacity: 20,
			Slots: []audiomixer.SlotStatus{
				{Slot: audiomixer.Slot{Index: 0, ID: "20", Kind: audiomixer.KindParticipant}, TrackID: "20:7", QueuedFrames: 2},
				{Slot: audiomixer.Slot{Index: 1, ID: "share-1", Kind: audiomixer.KindScreenshare}},
			},
		},
		RecordingPath: "recordings/10.wav",
		Playback:      true,
	}

	want := "Mixing <#30> for 1m30s\n" +
		"Process: running (pid 4242)\n" +
		"Slots: 2/20\n" +
		"- slot 0: <@20> (participant, 2 queued)\n" +
		"- slot 1: share-1 (screenshare, 0 queued)\n" +
		"Playback: on\n" +
		"Recording: `recordings/10.wav`"
	assert.Equal(t, want, formatStatus(st, started.Add(90*time.Second)))

	idle := voice.SessionStatus{ChannelID: channel, StartedAt: started, Mixer: audiomixer.Status{Capacity: 20}}
	assert.Equal(t, "Mixing <#30> for 0s\nProcess: idle\nSlots: 0/20", formatStatus(idle, started))
}
