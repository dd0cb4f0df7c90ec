package commands

import (
	"testing"

	"github.com/diamondburned/arikawa/v3/api"
	"github.com/diamondburned/arikawa/v3/discord"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/Raikerian/go-discord-mixer/internal/config"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	return cfg
}

type mockRegistrar struct {
	mock.Mock
}

func (m *mockRegistrar) BulkOverwriteGuildCommands(appID discord.AppID, guildID discord.GuildID, cmds []api.CreateCommandData) ([]discord.Command, error) {
	args := m.Called(appID, guildID, cmds)
	registered, _ := args.Get(0).([]discord.Command)
	return registered, args.Error(1)
}

func TestRegisterCommands(t *testing.T) {
	appID := discord.AppID(1)
	cm := NewCommandManager(CommandManagerParams{
		ApplicationID: appID,
		Logger:        zap.NewNop(),
		Commands:      []Command{NewVersionCommand(testConfig()), &MixerCommand{logger: zap.NewNop()}},
	})

	reg := &mockRegistrar{}
	cm.registrar = reg

	names := func(cmds []api.CreateCommandData) bool {
		return len(cmds) == 2 && cmds[0].Name == "mixer" && cmds[1].Name == "version"
	}
	reg.On("BulkOverwriteGuildCommands", appID, discord.GuildID(5), mock.MatchedBy(names)).
		Return([]discord.Command{{}, {}}, nil)
	reg.On("BulkOverwriteGuildCommands", appID, discord.GuildID(6), mock.MatchedBy(names)).
		Return(nil, assert.AnError)

	cm.RegisterCommands([]discord.GuildID{5, 6})
	reg.AssertExpectations(t)
}

func TestUnregisterAllCommands(t *testing.T) {
	appID := discord.AppID(1)
	cm := NewCommandManager(CommandManagerParams{ApplicationID: appID, Logger: zap.NewNop()})

	reg := &mockRegistrar{}
	cm.registrar = reg
	reg.On("BulkOverwriteGuildCommands", appID, discord.GuildID(5), []api.CreateCommandData{}).Return(nil, nil)

	cm.UnregisterAllCommands([]discord.GuildID{5})
	reg.AssertExpectations(t)
}

func TestVersionCommand(t *testing.T) {
	cmd := NewVersionCommand(testConfig()).(*VersionCommand)
	assert.Equal(t, "version", cmd.Name())
	assert.Nil(t, cmd.Options())
	assert.Contains(t, cmd.content(), "Version: "+AppVersion)
	assert.Contains(t, cmd.content(), "Mixer: ffmpeg backend, 20 slots")
}
