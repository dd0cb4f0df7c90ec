package voice

import (
	"context"
	"sync"
	"time"

	"github.com/diamondburned/arikawa/v3/discord"
	"go.uber.org/zap"
)

// readRetryDelay throttles the receive loop after a failed read.
const readRetryDelay = 20 * time.Millisecond

// receiver routes received packets to per-user tracks. Discord announces
// which user owns an SSRC through speaking events; packets for an SSRC we
// have not been told about are dropped.
type receiver struct {
	logger     *zap.Logger
	newDecoder func() (opusDecoder, error)
	onChange   func()

	mu     sync.Mutex
	owners map[uint32]discord.UserID
	tracks map[discord.UserID]*userTrack
	closed bool
}

func newReceiver(logger *zap.Logger, newDecoder func() (opusDecoder, error), onChange func()) *receiver {
	return &receiver{
		logger:     logger,
		newDecoder: newDecoder,
		onChange:   onChange,
		owners:     make(map[uint32]discord.UserID),
		tracks:     make(map[discord.UserID]*userTrack),
	}
}

// speaking binds ssrc to userID. A user appearing on a new SSRC ends the
// previous track.
func (r *receiver) speaking(ssrc uint32, userID discord.UserID) {
	if !userID.IsValid() {
		return
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	if cur, ok := r.tracks[userID]; ok && cur.ssrc == ssrc {
		r.mu.Unlock()
		return
	}

	dec, err := r.newDecoder()
	if err != nil {
		r.mu.Unlock()
		r.logger.Error("Failed to create decoder for speaker",
			zap.String("user_id", userID.String()),
			zap.Uint32("ssrc", ssrc),
			zap.Error(err))
		return
	}

	old := r.tracks[userID]
	if old != nil {
		delete(r.owners, old.ssrc)
	}
	track := newUserTrack(userID, ssrc, dec)
	r.owners[ssrc] = userID
	r.tracks[userID] = track
	r.mu.Unlock()

	if old != nil {
		old.end()
	}
	r.logger.Debug("Speaker mapped",
		zap.String("user_id", userID.String()),
		zap.Uint32("ssrc", ssrc),
		zap.String("track_id", track.ID()))
	r.onChange()
}

// disconnect ends userID's track.
func (r *receiver) disconnect(userID discord.UserID) {
	r.mu.Lock()
	track, ok := r.tracks[userID]
	if ok {
		delete(r.tracks, userID)
		delete(r.owners, track.ssrc)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	track.end()
	r.onChange()
}

// handle decodes p into its owner's track.
func (r *receiver) handle(p *AudioPacket) {
	r.mu.Lock()
	userID, ok := r.owners[p.SSRC]
	track := r.tracks[userID]
	r.mu.Unlock()

	if !ok || track == nil {
		return
	}
	if err := track.decode(p.Opus); err != nil {
		r.logger.Debug("Failed to decode voice packet",
			zap.String("user_id", userID.String()),
			zap.Uint32("ssrc", p.SSRC),
			zap.Uint16("sequence", p.Sequence),
			zap.Error(err))
	}
}

// track returns the live track of userID, if any.
func (r *receiver) track(userID discord.UserID) (*userTrack, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tracks[userID]
	return t, ok
}

// run reads packets from conn until ctx is done.
func (r *receiver) run(ctx context.Context, conn Conn) {
	for {
		p, err := conn.ReadPacket()
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			r.logger.Debug("Failed to read voice packet", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(readRetryDelay):
			}
			continue
		}
		r.handle(p)
	}
}

// close ends every track.
func (r *receiver) close() {
	r.mu.Lock()
	r.closed = true
	tracks := make([]*userTrack, 0, len(r.tracks))
	for _, t := range r.tracks {
		tracks = append(tracks, t)
	}
	clear(r.tracks)
	clear(r.owners)
	r.mu.Unlock()

	for _, t := range tracks {
		t.end()
	}
}
