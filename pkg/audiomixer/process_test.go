package audiomixer

import (
	"bytes"
	"io"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Raikerian/go-discord-mixer/pkg/audio"
)

func TestFFmpeg_Args(t *testing.T) {
	f := NewFFmpeg(zap.NewNop(), "", Config{Slots: 2})
	args := f.Args()
	joined := strings.Join(args, " ")

	assert.Equal(t, "ffmpeg", f.path)
	assert.Contains(t, joined, "-f s16le -ar 48000 -ac 1 -i pipe:3")
	assert.Contains(t, joined, "-f s16le -ar 48000 -ac 1 -i pipe:4")
	assert.NotContains(t, joined, "pipe:5")
	assert.Contains(t, joined, "[0:a][1:a]amix=inputs=2:duration=longest:dropout_transition=0:normalize=0[out]")
	assert.Equal(t, "pipe:1", args[len(args)-1])
}

func TestFFmpeg_SpawnFailure(t *testing.T) {
	f := NewFFmpeg(zap.NewNop(), "/nonexistent/ffmpeg-binary", Config{Slots: 1})

	proc, err := f.Spawn(func([]int16) {})
	assert.Error(t, err)
	assert.Nil(t, proc)
}

func TestFFmpeg_MixesInputs(t *testing.T) {
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		t.Skip("ffmpeg not installed")
	}

	var (
		mu     sync.Mutex
		frames int
		peak   int16
	)
	f := NewFFmpeg(zap.NewNop(), path, Config{Slots: 2})
	proc, err := f.Spawn(func(frame []int16) {
		mu.Lock()
		defer mu.Unlock()
		if len(frame) != 480 {
			return
		}
		frames++
		for _, s := range frame {
			if s > peak {
				peak = s
			}
		}
	})
	require.NoError(t, err)
	assert.NotZero(t, proc.PID())

	writers := proc.Writers()
	require.Len(t, writers, 2)
	for i := 0; i < 50; i++ {
		writers[0].TryWrite(frameOf(1000))
		writers[1].TryWrite(frameOf(500))
		time.Sleep(2 * time.Millisecond)
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return frames > 0 && peak >= 1400
	}, 5*time.Second, 10*time.Millisecond)

	proc.Stop()
	proc.Stop()
	select {
	case <-proc.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("ffmpeg did not exit after Stop")
	}
	assert.False(t, writers[0].TryWrite(frameOf(1)))
}

func TestFFmpegProcess_DrainOutputReassemblesFrames(t *testing.T) {
	const frameSize, frames = 3, 500

	samples := make([]int16, frameSize*frames)
	for i := range samples {
		samples[i] = int16(i)
	}

	readers := map[string]io.Reader{
		"one byte at a time": iotest.OneByteReader(bytes.NewReader(audio.PCMInt16ToLE(samples))),
		"half frames":        iotest.HalfReader(bytes.NewReader(audio.PCMInt16ToLE(samples))),
		"trailing partial":   bytes.NewReader(append(audio.PCMInt16ToLE(samples), 0x01)),
	}
	for name, r := range readers {
		t.Run(name, func(t *testing.T) {
			p := &ffmpegProcess{stdout: io.NopCloser(r), frameSize: frameSize}

			var got []int16
			count := 0
			require.NoError(t, p.drainOutput(func(f []int16) {
				require.Len(t, f, frameSize)
				got = append(got, f...)
				count++
			}))
			assert.Equal(t, frames, count)
			assert.Equal(t, samples, got)
		})
	}
}
