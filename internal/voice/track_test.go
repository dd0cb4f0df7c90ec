package voice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Raikerian/go-discord-mixer/pkg/audiomixer"
)

func TestUserTrack(t *testing.T) {
	t.Run("ID", func(t *testing.T) {
		track := newUserTrack(42, 7, &fakeDecoder{})
		assert.Equal(t, "42:7", track.ID())
	})

	t.Run("DecodeFansOut", func(t *testing.T) {
		track := newUserTrack(42, 7, &fakeDecoder{})

		var a, b []audiomixer.Chunk
		_, err := track.Subscribe(func(c audiomixer.Chunk) { a = append(a, c) })
		require.NoError(t, err)
		subB, err := track.Subscribe(func(c audiomixer.Chunk) { b = append(b, c) })
		require.NoError(t, err)

		require.NoError(t, track.decode(packetOf(300)))
		require.NoError(t, subB.Stop())
		require.NoError(t, track.decode(packetOf(301)))

		require.Len(t, a, 2)
		require.Len(t, b, 1)
		c := a[0]
		assert.Equal(t, 48000, c.SampleRate)
		assert.Equal(t, 1, c.ChannelCount)
		assert.Equal(t, 16, c.BitsPerSample)
		assert.Equal(t, 960, c.FrameCount)
		assert.Equal(t, int16(300), c.Samples[0])
		assert.Equal(t, int16(301), a[1].Samples[959])
	})

	t.Run("DecodeError", func(t *testing.T) {
		track := newUserTrack(42, 7, &fakeDecoder{err: assert.AnError})
		called := false
		_, err := track.Subscribe(func(audiomixer.Chunk) { called = true })
		require.NoError(t, err)

		assert.ErrorIs(t, track.decode(packetOf(1)), assert.AnError)
		assert.False(t, called)
	})

	t.Run("EndFiresOnce", func(t *testing.T) {
		dec := &fakeDecoder{}
		track := newUserTrack(42, 7, dec)

		fired := 0
		track.OnEnded(func() { fired++ })
		removed := 0
		remove := track.OnEnded(func() { removed++ })
		remove()

		track.end()
		track.end()

		assert.Equal(t, 1, fired)
		assert.Equal(t, 0, removed)
		assert.True(t, dec.Closed())
	})

	t.Run("AfterEnd", func(t *testing.T) {
		track := newUserTrack(42, 7, &fakeDecoder{})
		track.end()

		_, err := track.Subscribe(func(audiomixer.Chunk) {})
		assert.Error(t, err)

		fired := false
		track.OnEnded(func() { fired = true })
		assert.True(t, fired, "listener added after end fires immediately")

		assert.NoError(t, track.decode(packetOf(1)))
	})
}
