package voice

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"

	"github.com/diamondburned/arikawa/v3/discord"

	"github.com/Raikerian/go-discord-mixer/pkg/audio"
)

var errConnClosed = errors.New("connection closed")

// fakeDecoder turns a packet into 960 samples, each equal to the packet's
// first two bytes read as a little-endian int16.
type fakeDecoder struct {
	mu     sync.Mutex
	closed bool
	err    error
}

func (d *fakeDecoder) DecodeMono(packet []byte) ([]int16, error) {
	if d.err != nil {
		return nil, d.err
	}
	var v int16
	if len(packet) >= 2 {
		v = int16(binary.LittleEndian.Uint16(packet))
	}
	pcm := make([]int16, audio.DiscordFrameSize)
	for i := range pcm {
		pcm[i] = v
	}
	return pcm, nil
}

func (d *fakeDecoder) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
}

func (d *fakeDecoder) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func packetOf(v int16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, uint16(v))
	return b
}

// fakeEncoder records the PCM it is asked to encode and returns its first
// sample as the packet.
type fakeEncoder struct {
	mu     sync.Mutex
	frames [][]int16
	closed bool
}

func (e *fakeEncoder) EncodeMono(pcm []int16) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.frames = append(e.frames, append([]int16(nil), pcm...))
	return packetOf(pcm[0]), nil
}

func (e *fakeEncoder) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
}

func (e *fakeEncoder) Frames() [][]int16 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([][]int16(nil), e.frames...)
}

// fakeConn feeds packets from a channel and records writes.
type fakeConn struct {
	packets chan *AudioPacket

	mu          sync.Mutex
	written     [][]byte
	speaking    map[int]func(uint32, discord.UserID)
	disconnects map[int]func(discord.UserID)
	next        int
	left        bool
	closeOnce   sync.Once
	done        chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		packets:     make(chan *AudioPacket, 64),
		speaking:    make(map[int]func(uint32, discord.UserID)),
		disconnects: make(map[int]func(discord.UserID)),
		done:        make(chan struct{}),
	}
}

func (c *fakeConn) ReadPacket() (*AudioPacket, error) {
	select {
	case p := <-c.packets:
		return p, nil
	case <-c.done:
		return nil, errConnClosed
	}
}

func (c *fakeConn) Write(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, append([]byte(nil), b...))
	return len(b), nil
}

func (c *fakeConn) Written() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.written)
}

func (c *fakeConn) OnSpeaking(fn func(uint32, discord.UserID)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := c.next
	c.next++
	c.speaking[key] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.speaking, key)
	}
}

func (c *fakeConn) OnClientDisconnect(fn func(discord.UserID)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := c.next
	c.next++
	c.disconnects[key] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.disconnects, key)
	}
}

func (c *fakeConn) Speak(ssrc uint32, userID discord.UserID) {
	c.mu.Lock()
	fns := make([]func(uint32, discord.UserID), 0, len(c.speaking))
	for _, fn := range c.speaking {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(ssrc, userID)
	}
}

func (c *fakeConn) Disconnect(userID discord.UserID) {
	c.mu.Lock()
	fns := make([]func(discord.UserID), 0, len(c.disconnects))
	for _, fn := range c.disconnects {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(userID)
	}
}

func (c *fakeConn) Handlers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.speaking) + len(c.disconnects)
}

func (c *fakeConn) Leave(context.Context) error {
	c.mu.Lock()
	c.left = true
	c.mu.Unlock()
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *fakeConn) Left() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.left
}

// fakeStates serves voice states from memory.
type fakeStates struct {
	mu     sync.Mutex
	states []discord.VoiceState
	err    error
}

func (f *fakeStates) VoiceStates(discord.GuildID) ([]discord.VoiceState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]discord.VoiceState(nil), f.states...), nil
}

func (f *fakeStates) Set(states ...discord.VoiceState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = states
}

// fakeVoiceManager hands out one fakeConn per join.
type fakeVoiceManager struct {
	mu      sync.Mutex
	conns   map[discord.ChannelID]*fakeConn
	joinErr error
	leaves  []discord.ChannelID
}

func newFakeVoiceManager() *fakeVoiceManager {
	return &fakeVoiceManager{conns: make(map[discord.ChannelID]*fakeConn)}
}

func (m *fakeVoiceManager) JoinChannel(_ context.Context, channelID discord.ChannelID) (*VoiceConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.joinErr != nil {
		return nil, m.joinErr
	}
	conn := newFakeConn()
	m.conns[channelID] = conn
	return &VoiceConnection{ChannelID: channelID, GuildID: testGuild, Conn: conn}, nil
}

func (m *fakeVoiceManager) LeaveChannel(ctx context.Context, channelID discord.ChannelID) error {
	m.mu.Lock()
	conn := m.conns[channelID]
	delete(m.conns, channelID)
	m.leaves = append(m.leaves, channelID)
	m.mu.Unlock()
	if conn != nil {
		return conn.Leave(ctx)
	}
	return nil
}

func (m *fakeVoiceManager) Conn(channelID discord.ChannelID) *fakeConn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conns[channelID]
}

func (m *fakeVoiceManager) Leaves() []discord.ChannelID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]discord.ChannelID(nil), m.leaves...)
}

const (
	testGuild   discord.GuildID   = 100
	testChannel discord.ChannelID = 200
	otherChan   discord.ChannelID = 201
	botUser     discord.UserID    = 1
)

func voiceState(user discord.UserID, channel discord.ChannelID) discord.VoiceState {
	return discord.VoiceState{GuildID: testGuild, ChannelID: channel, UserID: user}
}
