package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Raikerian/go-discord-mixer/internal/config"
	"github.com/Raikerian/go-discord-mixer/pkg/audio"
)

func constantWAV(t *testing.T, dir, name string, rate int, v int16, d time.Duration) string {
	t.Helper()
	rec, err := audio.NewRecorder(filepath.Join(dir, name), rate)
	require.NoError(t, err)
	pcm := make([]int16, audio.FrameSamples(rate, d))
	for i := range pcm {
		pcm[i] = v
	}
	require.NoError(t, rec.Write(pcm))
	require.NoError(t, rec.Close())
	return rec.Path()
}

func readWAV(t *testing.T, path string) []int {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	dec := wav.NewDecoder(f)
	require.True(t, dec.IsValidFile())
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	return buf.Data
}

func TestRunLocalBackend(t *testing.T) {
	dir := t.TempDir()
	opts := options{
		output:  filepath.Join(dir, "out.wav"),
		backend: config.BackendLocal,
		inputs: []string{
			constantWAV(t, dir, "a.wav", 48000, 1000, 200*time.Millisecond),
			constantWAV(t, dir, "b.wav", 16000, 500, 200*time.Millisecond),
		},
		screens: fileList{constantWAV(t, dir, "s.wav", 48000, 250, 200*time.Millisecond)},
	}

	require.NoError(t, run(context.Background(), zap.NewNop(), opts))

	data := readWAV(t, opts.output)
	require.NotEmpty(t, data)

	// Somewhere all three sources overlap.
	found := false
	for _, v := range data {
		if v == 1750 {
			found = true
			break
		}
	}
	assert.True(t, found, "expected the summed mix in the output")
}

func TestRunDuration(t *testing.T) {
	dir := t.TempDir()
	opts := options{
		output:   filepath.Join(dir, "out.wav"),
		backend:  config.BackendLocal,
		duration: 100 * time.Millisecond,
		inputs:   []string{constantWAV(t, dir, "long.wav", 48000, 10, 10*time.Second)},
	}

	start := time.Now()
	require.NoError(t, run(context.Background(), zap.NewNop(), opts))
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.NotEmpty(t, readWAV(t, opts.output))
}

func TestRunErrors(t *testing.T) {
	dir := t.TempDir()
	input := constantWAV(t, dir, "a.wav", 48000, 1, 20*time.Millisecond)

	t.Run("UnknownBackend", func(t *testing.T) {
		err := run(context.Background(), zap.NewNop(), options{
			output: filepath.Join(dir, "x.wav"), backend: "tape", inputs: []string{input},
		})
		assert.ErrorContains(t, err, "unknown backend")
	})

	t.Run("MissingInput", func(t *testing.T) {
		err := run(context.Background(), zap.NewNop(), options{
			output: filepath.Join(dir, "y.wav"), backend: config.BackendLocal,
			inputs: []string{filepath.Join(dir, "missing.wav")},
		})
		assert.Error(t, err)
	})
}

func TestFileList(t *testing.T) {
	var f fileList
	require.NoError(t, f.Set("a.wav"))
	require.NoError(t, f.Set("b.wav"))
	assert.Equal(t, "a.wav,b.wav", f.String())
}
