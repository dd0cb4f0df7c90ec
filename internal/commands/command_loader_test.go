package commands

import (
	"testing"

	"github.com/diamondburned/arikawa/v3/discord"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Raikerian/go-discord-mixer/pkg/test"
)

func TestNewCommandManager(t *testing.T) {
	appID := discord.AppID(12345)

	t.Run("LoadsMixerCommands", func(t *testing.T) {
		version := NewVersionCommand(testConfig())
		mixer := &MixerCommand{logger: zap.NewNop()}

		cm := NewCommandManager(CommandManagerParams{
			ApplicationID: appID,
			Logger:        zap.NewNop(),
			Commands:      []Command{version, mixer},
		})
		require.NotNil(t, cm)

		got, ok := cm.GetCommand("mixer")
		assert.True(t, ok)
		assert.Same(t, mixer, got)

		got, ok = cm.GetCommand("version")
		assert.True(t, ok)
		assert.Equal(t, version, got)

		_, ok = cm.GetCommand("ping")
		assert.False(t, ok)
	})

	t.Run("NoCommands", func(t *testing.T) {
		cm := NewCommandManager(CommandManagerParams{ApplicationID: appID, Logger: zap.NewNop()})

		_, ok := cm.GetCommand("mixer")
		assert.False(t, ok)
		assert.Empty(t, cm.createData())
	})

	t.Run("NilCommandsSkipped", func(t *testing.T) {
		cmd := test.NewMockCommand(t)
		cmd.On("Name").Return("mixer")

		cm := NewCommandManager(CommandManagerParams{
			ApplicationID: appID,
			Logger:        zap.NewNop(),
			Commands:      []Command{nil, cmd, nil},
		})

		got, ok := cm.GetCommand("mixer")
		assert.True(t, ok)
		assert.Equal(t, cmd, got)
		assert.Len(t, cm.commands, 1)
	})

	t.Run("DuplicateKeepsFirst", func(t *testing.T) {
		core, logs := observer.New(zapcore.WarnLevel)

		first := test.NewMockCommand(t)
		first.On("Name").Return("mixer")
		second := test.NewMockCommand(t)
		second.On("Name").Return("mixer")

		cm := NewCommandManager(CommandManagerParams{
			ApplicationID: appID,
			Logger:        zap.New(core),
			Commands:      []Command{first, second, NewVersionCommand(testConfig())},
		})

		got, ok := cm.GetCommand("mixer")
		assert.True(t, ok)
		assert.Same(t, first, got)
		assert.Len(t, cm.commands, 2)

		dups := logs.FilterMessage("Duplicate command name, keeping the first").All()
		require.Len(t, dups, 1)
		assert.Equal(t, "mixer", dups[0].ContextMap()["command_name"])
	})

	t.Run("NilLogger", func(t *testing.T) {
		cm := NewCommandManager(CommandManagerParams{
			ApplicationID: appID,
			Commands:      []Command{NewVersionCommand(testConfig())},
		})
		require.NotNil(t, cm.logger)

		_, ok := cm.GetCommand("version")
		assert.True(t, ok)
	})
}

func TestCommandManager_CreateDataSortedByName(t *testing.T) {
	zeta := test.NewMockCommand(t)
	zeta.On("Name").Return("zeta")
	zeta.On("Description").Return("last")
	zeta.On("Options").Return(nil)

	cm := NewCommandManager(CommandManagerParams{
		Logger:   zap.NewNop(),
		Commands: []Command{zeta, NewVersionCommand(testConfig()), &MixerCommand{logger: zap.NewNop()}},
	})

	data := cm.createData()
	require.Len(t, data, 3)
	assert.Equal(t, "mixer", data[0].Name)
	assert.Equal(t, "version", data[1].Name)
	assert.Equal(t, "zeta", data[2].Name)
	assert.Equal(t, "last", data[2].Description)
	assert.NotEmpty(t, data[0].Options, "mixer carries its action option")
}

func TestCommandManager_NoSessionSkipsRegistration(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	cm := NewCommandManager(CommandManagerParams{
		Logger:   zap.New(core),
		Commands: []Command{NewVersionCommand(testConfig())},
	})
	require.Nil(t, cm.registrar)

	cm.RegisterCommands([]discord.GuildID{5})
	cm.UnregisterAllCommands([]discord.GuildID{5})

	assert.Equal(t, 1, logs.FilterMessage("No Discord session, skipping command registration").Len())
	assert.Zero(t, logs.FilterMessage("Unregistered slash commands for guild").Len())
}
