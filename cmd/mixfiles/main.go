// Command mixfiles mixes WAV files in real time through the audio mixer and
// records the combined output.
//
//	mixfiles -o out.wav [-duration 10s] [-screen s.wav]... a.wav b.wav...
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Raikerian/go-discord-mixer/internal/config"
	"github.com/Raikerian/go-discord-mixer/internal/infrastructure"
	"github.com/Raikerian/go-discord-mixer/pkg/audio"
	"github.com/Raikerian/go-discord-mixer/pkg/audiomixer"
	"github.com/Raikerian/go-discord-mixer/pkg/wavsource"
)

// drainDelay lets frames still inside the mixing process reach the output
// after the last source ends.
const drainDelay = 200 * time.Millisecond

type fileList []string

func (f *fileList) String() string     { return strings.Join(*f, ",") }
func (f *fileList) Set(v string) error { *f = append(*f, v); return nil }

type options struct {
	output     string
	duration   time.Duration
	backend    string
	ffmpegPath string
	logLevel   string
	screens    fileList
	inputs     []string
}

func main() {
	var opts options
	flag.StringVar(&opts.output, "o", "", "output WAV path (required)")
	flag.DurationVar(&opts.duration, "duration", 0, "stop after this long; 0 runs until every input ends")
	flag.StringVar(&opts.backend, "backend", config.BackendFFmpeg, "mixing backend: ffmpeg or local")
	flag.StringVar(&opts.ffmpegPath, "ffmpeg", "ffmpeg", "ffmpeg binary")
	flag.StringVar(&opts.logLevel, "log-level", "info", "log level")
	flag.Var(&opts.screens, "screen", "WAV file to mix as a screen-share (repeatable)")
	flag.Parse()
	opts.inputs = flag.Args()

	if opts.output == "" || len(opts.inputs)+len(opts.screens) == 0 {
		fmt.Fprintln(os.Stderr, "usage: mixfiles -o out.wav [-duration 10s] [-screen s.wav]... a.wav b.wav...")
		os.Exit(2)
	}

	logger, err := infrastructure.LoggerConfig(opts.logLevel).Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, opts); err != nil {
		logger.Error("Mixing failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *zap.Logger, opts options) error {
	cfg := audiomixer.Config{}.WithDefaults()

	var spawner audiomixer.Spawner
	switch opts.backend {
	case config.BackendFFmpeg:
		spawner = audiomixer.NewFFmpeg(logger, opts.ffmpegPath, cfg)
	case config.BackendLocal:
		spawner = audiomixer.NewLocal(cfg)
	default:
		return fmt.Errorf("unknown backend %q", opts.backend)
	}

	participants, ptracks, err := openAll(opts.inputs, audiomixer.KindParticipant)
	if err != nil {
		return err
	}
	screens, stracks, err := openAll(opts.screens, audiomixer.KindScreenshare)
	if err != nil {
		return err
	}
	tracks := append(ptracks, stracks...)

	rec, err := audio.NewRecorder(opts.output, cfg.SampleRate)
	if err != nil {
		return err
	}

	mixer, err := audiomixer.New(logger, cfg, spawner)
	if err != nil {
		_ = rec.Close()
		return err
	}

	var ended sync.WaitGroup
	ended.Add(len(tracks))
	for _, t := range tracks {
		t.OnEnded(ended.Done)
	}

	if err := errors.Join(
		mixer.ReportParticipants(participants),
		mixer.ReportScreenshares(screens),
	); err != nil {
		mixer.Destroy()
		_ = rec.Close()
		return err
	}

	pumped := make(chan struct{})
	go func() {
		defer close(pumped)
		for frame := range mixer.CombinedAudio().Frames() {
			if err := rec.Write(frame); err != nil {
				logger.Error("Failed to write output", zap.Error(err))
				return
			}
		}
	}()

	if opts.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.duration)
		defer cancel()
	}

	playCtx, stopPlay := context.WithCancel(ctx)
	defer stopPlay()
	for _, t := range tracks {
		t.Start(playCtx)
	}
	logger.Info("Mixing",
		zap.Int("participants", len(participants)),
		zap.Int("screenshares", len(screens)),
		zap.String("backend", opts.backend),
		zap.String("output", opts.output))

	allEnded := make(chan struct{})
	go func() {
		ended.Wait()
		close(allEnded)
	}()

	select {
	case <-allEnded:
		time.Sleep(drainDelay)
	case <-ctx.Done():
	}

	stopPlay()
	mixer.Destroy()
	<-pumped

	if err := rec.Close(); err != nil {
		return fmt.Errorf("finalize %s: %w", opts.output, err)
	}
	logger.Info("Wrote mix",
		zap.String("output", opts.output),
		zap.Duration("length", time.Duration(rec.Samples())*time.Second/time.Duration(cfg.SampleRate)))
	return nil
}

func openAll(paths []string, kind audiomixer.Kind) ([]audiomixer.Mixable, []*wavsource.Track, error) {
	mixables := make([]audiomixer.Mixable, 0, len(paths))
	tracks := make([]*wavsource.Track, 0, len(paths))
	for i, p := range paths {
		t, err := wavsource.Open(p)
		if err != nil {
			return nil, nil, err
		}
		mixables = append(mixables, audiomixer.Mixable{
			ID:           fmt.Sprintf("%s-%d", kind, i),
			Kind:         kind,
			AudioEnabled: true,
			Track:        t,
		})
		tracks = append(tracks, t)
	}
	return mixables, tracks, nil
}
