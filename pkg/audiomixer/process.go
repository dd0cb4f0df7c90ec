package audiomixer

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Raikerian/go-discord-mixer/pkg/audio"
)

// pipeBufferFrames is how many frames may wait for one input pipe before
// TryWrite starts reporting backpressure.
const pipeBufferFrames = 8

// Process is a running mixing process with one writer per slot.
type Process interface {
	// Writers returns one FrameWriter per slot, in slot order.
	Writers() []FrameWriter
	// Done is closed once the process has exited and its output is drained.
	Done() <-chan struct{}
	// Stop asks the process to exit. It does not block and is idempotent.
	Stop()
	// PID returns the OS process id, or 0 for an in-process mixer.
	PID() int
}

// Spawner launches mixing processes. onFrame receives every mixed output
// frame of the canonical size.
type Spawner interface {
	Spawn(onFrame func([]int16)) (Process, error)
}

// FFmpeg spawns ffmpeg with one raw PCM input pipe per slot, mixed by amix
// into raw PCM on stdout.
type FFmpeg struct {
	logger *zap.Logger
	path   string
	cfg    Config
}

// NewFFmpeg returns a spawner running the ffmpeg binary at path (looked up in
// PATH when it has no separator).
func NewFFmpeg(logger *zap.Logger, path string, cfg Config) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpeg{
		logger: logger.Named("ffmpeg"),
		path:   path,
		cfg:    cfg.WithDefaults(),
	}
}

// Args returns the command line used for every spawn, without the binary.
// Input i is read from file descriptor 3+i.
func (f *FFmpeg) Args() []string {
	rate := strconv.Itoa(f.cfg.SampleRate)
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}

	labels := make([]string, f.cfg.Slots)
	for i := 0; i < f.cfg.Slots; i++ {
		args = append(args,
			"-f", "s16le", "-ar", rate, "-ac", "1",
			"-i", fmt.Sprintf("pipe:%d", 3+i),
		)
		labels[i] = fmt.Sprintf("[%d:a]", i)
	}

	filter := fmt.Sprintf("%samix=inputs=%d:duration=longest:dropout_transition=0:normalize=0[out]",
		strings.Join(labels, ""), f.cfg.Slots)

	return append(args,
		"-filter_complex", filter,
		"-map", "[out]",
		"-flush_packets", "1",
		"-f", "s16le", "-ar", rate, "-ac", "1",
		"pipe:1",
	)
}

// Spawn starts ffmpeg. The returned process stays alive until Stop is called
// or ffmpeg exits on its own.
func (f *FFmpeg) Spawn(onFrame func([]int16)) (Process, error) {
	readers := make([]*os.File, 0, f.cfg.Slots)
	writers := make([]*os.File, 0, f.cfg.Slots)
	closeAll := func() {
		for _, r := range readers {
			_ = r.Close()
		}
		for _, w := range writers {
			_ = w.Close()
		}
	}

	for i := 0; i < f.cfg.Slots; i++ {
		r, w, err := os.Pipe()
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("create input pipe %d: %w", i, err)
		}
		readers = append(readers, r)
		writers = append(writers, w)
	}

	cmd := exec.Command(f.path, f.Args()...)
	cmd.ExtraFiles = readers

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("ffmpeg stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("ffmpeg stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		closeAll()
		return nil, fmt.Errorf("ffmpeg start: %w", err)
	}

	// The child holds its own copies of the read ends.
	for _, r := range readers {
		_ = r.Close()
	}

	p := &ffmpegProcess{
		logger:    f.logger.With(zap.Int("pid", cmd.Process.Pid)),
		cmd:       cmd,
		stdout:    stdout,
		stderr:    stderr,
		frameSize: f.cfg.FrameSize(),
		killGrace: f.cfg.KillGrace,
		done:      make(chan struct{}),
	}
	p.writers = make([]*pipeWriter, len(writers))
	for i, w := range writers {
		p.writers[i] = newPipeWriter(p.logger, i, w)
	}

	var g errgroup.Group
	g.Go(func() error { return p.drainOutput(onFrame) })
	g.Go(p.logStderr)
	go p.wait(&g)

	p.logger.Info("Mixing process started", zap.Int("inputs", f.cfg.Slots))
	return p, nil
}

type ffmpegProcess struct {
	logger    *zap.Logger
	cmd       *exec.Cmd
	stdout    io.ReadCloser
	stderr    io.ReadCloser
	writers   []*pipeWriter
	frameSize int
	killGrace time.Duration

	stopOnce sync.Once
	done     chan struct{}
}

func (p *ffmpegProcess) Writers() []FrameWriter {
	out := make([]FrameWriter, len(p.writers))
	for i, w := range p.writers {
		out[i] = w
	}
	return out
}

func (p *ffmpegProcess) Done() <-chan struct{} {
	return p.done
}

func (p *ffmpegProcess) PID() int {
	return p.cmd.Process.Pid
}

func (p *ffmpegProcess) Stop() {
	p.stopOnce.Do(func() {
		for _, w := range p.writers {
			w.close()
		}
		_ = p.stdout.Close()
		_ = p.stderr.Close()

		if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
			p.logger.Warn("Failed to signal mixing process", zap.Error(err))
		}

		go func() {
			select {
			case <-p.done:
			case <-time.After(p.killGrace):
				p.logger.Warn("Mixing process ignored SIGTERM, killing", zap.Duration("grace", p.killGrace))
				if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
					p.logger.Error("Failed to kill mixing process", zap.Error(err))
				}
			}
		}()
	})
}

// drainOutput slices stdout into frames and hands them to onFrame.
func (p *ffmpegProcess) drainOutput(onFrame func([]int16)) error {
	frameBytes := p.frameSize * 2
	base := make([]byte, frameBytes*4)
	buf := base[:0]
	chunk := make([]byte, frameBytes*2)

	for {
		n, err := p.stdout.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			for len(buf) >= frameBytes {
				onFrame(audio.LEToPCMInt16(buf[:frameBytes]))
				buf = buf[frameBytes:]
			}
			// The remainder is shorter than a frame; move it back to the
			// start of base.
			buf = base[:copy(base, buf)]
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				return nil
			}
			return fmt.Errorf("read mixed output: %w", err)
		}
	}
}

func (p *ffmpegProcess) logStderr() error {
	sc := bufio.NewScanner(p.stderr)
	for sc.Scan() {
		p.logger.Warn("ffmpeg", zap.String("line", sc.Text()))
	}
	if err := sc.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		return fmt.Errorf("read ffmpeg stderr: %w", err)
	}
	return nil
}

func (p *ffmpegProcess) wait(g *errgroup.Group) {
	defer close(p.done)

	if err := g.Wait(); err != nil {
		p.logger.Debug("Mixing process I/O ended with error", zap.Error(err))
	}
	for _, w := range p.writers {
		w.close()
	}

	if err := p.cmd.Wait(); err != nil {
		p.logger.Info("Mixing process exited", zap.Error(err))
		return
	}
	p.logger.Info("Mixing process exited")
}

// pipeWriter feeds one ffmpeg input from a bounded channel so the pacer
// never blocks on a slow pipe.
type pipeWriter struct {
	logger *zap.Logger
	file   *os.File

	mu     sync.Mutex
	frames chan []int16
	closed bool
}

func newPipeWriter(logger *zap.Logger, slot int, file *os.File) *pipeWriter {
	w := &pipeWriter{
		logger: logger.With(zap.Int("slot", slot)),
		file:   file,
		frames: make(chan []int16, pipeBufferFrames),
	}
	go w.run()
	return w
}

// TryWrite queues frame for the pipe. It returns false when the pipe is
// backed up or closed.
func (w *pipeWriter) TryWrite(frame []int16) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return false
	}
	select {
	case w.frames <- frame:
		return true
	default:
		return false
	}
}

func (w *pipeWriter) run() {
	defer func() { _ = w.file.Close() }()

	for frame := range w.frames {
		if _, err := w.file.Write(audio.PCMInt16ToLE(frame)); err != nil {
			if !errors.Is(err, os.ErrClosed) && !errors.Is(err, syscall.EPIPE) {
				w.logger.Debug("Input pipe write failed", zap.Error(err))
			}
			w.close()
			// Drain so nothing is left referencing the frames.
			for range w.frames {
			}
			return
		}
	}
}

func (w *pipeWriter) close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	w.closed = true
	close(w.frames)
}
