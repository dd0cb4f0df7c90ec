package voice

import (
	"sort"

	"github.com/diamondburned/arikawa/v3/discord"

	"github.com/Raikerian/go-discord-mixer/pkg/audiomixer"
)

// voiceStateSource is satisfied by *state.State.
type voiceStateSource interface {
	VoiceStates(guildID discord.GuildID) ([]discord.VoiceState, error)
}

// participants turns the guild's voice states into the participant snapshot
// of channelID. The bot itself is never mixed. Members without a live track
// are still listed so a previously attached track gets detached.
func participants(
	states []discord.VoiceState,
	channelID discord.ChannelID,
	self discord.UserID,
	mixMuted bool,
	trackOf func(discord.UserID) (*userTrack, bool),
) []audiomixer.Mixable {
	out := make([]audiomixer.Mixable, 0, len(states))
	for _, vs := range states {
		if vs.ChannelID != channelID || vs.UserID == self {
			continue
		}

		mx := audiomixer.Mixable{
			ID:           vs.UserID.String(),
			Kind:         audiomixer.KindParticipant,
			AudioEnabled: mixMuted || !(vs.Mute || vs.SelfMute || vs.Suppress),
		}
		if t, ok := trackOf(vs.UserID); ok {
			mx.Track = t
		}
		out = append(out, mx)
	}

	// Voice states come from a map; sort so slot assignment is reproducible.
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
