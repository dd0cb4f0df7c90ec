package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/diamondburned/arikawa/v3/discord"
	"gopkg.in/yaml.v3"

	"github.com/Raikerian/go-discord-mixer/pkg/audiomixer"
)

// DiscordConfig stores Discord specific configurations.
type DiscordConfig struct {
	BotToken      string             `yaml:"bot_token"`
	ApplicationID *discord.Snowflake `yaml:"application_id"`
	GuildIDs      []string           `yaml:"guild_ids"`
}

// MixerConfig stores the mixing engine settings.
type MixerConfig struct {
	// Backend selects the Spawner: "ffmpeg" (default) or "local".
	Backend            string        `yaml:"backend"`
	Slots              int           `yaml:"slots"`
	SampleRate         int           `yaml:"sample_rate"`
	FrameDuration      time.Duration `yaml:"frame_duration"`
	TickInterval       time.Duration `yaml:"tick_interval"`
	KillGrace          time.Duration `yaml:"kill_grace"`
	FFmpegPath         string        `yaml:"ffmpeg_path"`
	MaxQueuedFrames    int           `yaml:"max_queued_frames"`
	OutputBufferFrames int           `yaml:"output_buffer_frames"`
}

// VoiceConfig stores Discord voice bridge settings.
type VoiceConfig struct {
	ReportDebounce time.Duration `yaml:"report_debounce"`
	// ReportMaxWait bounds how long a stream of changes can postpone a report.
	ReportMaxWait time.Duration `yaml:"report_max_wait"`
	// MixMuted keeps server- and self-muted members in the mix.
	MixMuted bool `yaml:"mix_muted"`
	// Playback sends the combined audio back into the voice channel.
	Playback        bool `yaml:"playback"`
	PlaybackBitrate int  `yaml:"playback_bitrate"`
}

// RecorderConfig stores WAV recording settings.
type RecorderConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Directory string `yaml:"directory"`
}

// MetricsConfig stores the Prometheus endpoint settings.
type MetricsConfig struct {
	// ListenAddr serves /metrics when set, e.g. ":9090".
	ListenAddr string `yaml:"listen_addr"`
}

// Config stores the application configuration.
type Config struct {
	Discord  DiscordConfig  `yaml:"discord"`
	Mixer    MixerConfig    `yaml:"mixer"`
	Voice    VoiceConfig    `yaml:"voice"`
	Recorder RecorderConfig `yaml:"recorder"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	LogLevel string         `yaml:"log_level"`
}

const (
	BackendFFmpeg = "ffmpeg"
	BackendLocal  = "local"

	defaultReportDebounce  = 250 * time.Millisecond
	defaultReportMaxWait   = time.Second
	defaultPlaybackBitrate = 64000
	defaultRecordingsDir   = "recordings"
)

// LoadConfig loads the configuration from the given file path, fills in
// defaults and validates the result.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filePath, err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", filePath, err)
	}

	return &cfg, nil
}

// ApplyDefaults fills every unset field with its default.
func (c *Config) ApplyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Mixer.Backend == "" {
		c.Mixer.Backend = BackendFFmpeg
	}
	if c.Mixer.FFmpegPath == "" {
		c.Mixer.FFmpegPath = "ffmpeg"
	}
	if c.Voice.ReportDebounce <= 0 {
		c.Voice.ReportDebounce = defaultReportDebounce
	}
	if c.Voice.ReportMaxWait <= 0 {
		c.Voice.ReportMaxWait = defaultReportMaxWait
	}
	if c.Voice.PlaybackBitrate <= 0 {
		c.Voice.PlaybackBitrate = defaultPlaybackBitrate
	}
	if c.Recorder.Directory == "" {
		c.Recorder.Directory = defaultRecordingsDir
	}
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Discord.BotToken == "" {
		errs = append(errs, errors.New("discord.bot_token is required"))
	}
	if c.Discord.ApplicationID == nil || !c.Discord.ApplicationID.IsValid() {
		errs = append(errs, errors.New("discord.application_id is required"))
	}
	if c.Mixer.Backend != BackendFFmpeg && c.Mixer.Backend != BackendLocal {
		errs = append(errs, fmt.Errorf("mixer.backend must be %q or %q, got %q", BackendFFmpeg, BackendLocal, c.Mixer.Backend))
	}
	if c.Mixer.Slots < 0 {
		errs = append(errs, fmt.Errorf("mixer.slots must not be negative, got %d", c.Mixer.Slots))
	}
	if c.Mixer.FrameDuration < 0 || c.Mixer.TickInterval < 0 {
		errs = append(errs, errors.New("mixer.frame_duration and mixer.tick_interval must not be negative"))
	}
	mc := c.Mixer.Engine()
	if mc.TickInterval >= mc.FrameDuration {
		errs = append(errs, fmt.Errorf("mixer.tick_interval (%s) must be shorter than mixer.frame_duration (%s)",
			mc.TickInterval, mc.FrameDuration))
	}
	if c.Voice.Playback && (mc.SampleRate != 48000 || mc.FrameSize()*2 != 960) {
		errs = append(errs, errors.New("voice.playback needs sample_rate 48000 and frame_duration 10ms"))
	}
	return errors.Join(errs...)
}

// Engine converts the mixer section into the engine's config. Zero values are
// left for the engine to default.
func (m MixerConfig) Engine() audiomixer.Config {
	return audiomixer.Config{
		Slots:              m.Slots,
		SampleRate:         m.SampleRate,
		FrameDuration:      m.FrameDuration,
		TickInterval:       m.TickInterval,
		KillGrace:          m.KillGrace,
		MaxQueuedFrames:    m.MaxQueuedFrames,
		OutputBufferFrames: m.OutputBufferFrames,
	}.WithDefaults()
}
