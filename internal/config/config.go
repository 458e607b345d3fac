package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"VoiceChat/internal/audio"
	"VoiceChat/internal/session"
)

// EnvPrefix is prepended to every environment override, e.g.
// VOICECHAT_BACKEND_URL.
const EnvPrefix = "VOICECHAT_"

const (
	DefaultBackendURL      = "http://127.0.0.1:8000"
	DefaultSampleRate      = 16000
	DefaultAutoRecordDelay = time.Second
	DefaultMaxRecording    = 2 * time.Minute
	DefaultRequestTimeout  = 60 * time.Second
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config holds application configuration
type Config struct {
	BackendURL string `yaml:"backend_url"`
	SessionID  string `yaml:"session_id"`
	Debug      bool   `yaml:"debug"`
	// DataDir holds logs, the turn journal, the session link and the
	// generated fallback cue.
	DataDir        string        `yaml:"data_dir"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	AutoRecording   bool          `yaml:"auto_recording"`
	AutoRecordDelay time.Duration `yaml:"auto_record_delay"`

	Audio Audio `yaml:"audio"`
}

// Audio configures capture, packaging and playback.
type Audio struct {
	CaptureCommand []string       `yaml:"capture_command"`
	PlayerCommand  []string       `yaml:"player_command"`
	SampleRate     int            `yaml:"sample_rate"`
	Encoding       audio.Encoding `yaml:"encoding"`
	// MaxRecording stops a capture automatically; zero disables it.
	MaxRecording time.Duration `yaml:"max_recording"`
	// Fallback is played when a turn produces no reply audio. Empty means a
	// generated cue in DataDir.
	Fallback string `yaml:"fallback"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		BackendURL:      DefaultBackendURL,
		DataDir:         defaultDataDir(),
		RequestTimeout:  DefaultRequestTimeout,
		AutoRecordDelay: DefaultAutoRecordDelay,
		Audio: Audio{
			CaptureCommand: defaultCaptureCommand(DefaultSampleRate),
			PlayerCommand:  []string{"ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet"},
			SampleRate:     DefaultSampleRate,
			Encoding:       audio.EncodingPCM,
			MaxRecording:   DefaultMaxRecording,
		},
	}
}

// defaultCaptureCommand records mono 16-bit PCM at rate with arecord.
func defaultCaptureCommand(rate int) []string {
	return []string{"arecord", "-q", "-f", "S16_LE", "-r", strconv.Itoa(rate), "-c", "1", "-t", "raw"}
}

// DefaultPath is ~/.config/voicechat/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "voicechat", "config.yaml")
}

func defaultDataDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "voicechat")
	}
	return ".voicechat"
}

// Load resolves configuration from defaults, the YAML file and VOICECHAT_*
// environment variables, in increasing priority. An empty path reads the
// default file if it exists; an explicit path must exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if path != "" {
		if err := cfg.readFile(path); err != nil {
			if explicit || !errors.Is(err, os.ErrNotExist) {
				return nil, err
			}
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.resolveCapture()
	return cfg, nil
}

// resolveCapture keeps the built-in capture command recording at the
// configured sample rate. A user supplied command is left alone.
func (c *Config) resolveCapture() {
	if slices.Equal(c.Audio.CaptureCommand, defaultCaptureCommand(DefaultSampleRate)) && c.Audio.SampleRate > 0 {
		c.Audio.CaptureCommand = defaultCaptureCommand(c.Audio.SampleRate)
	}
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides fields from the environment. lookup is os.LookupEnv
// outside tests.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(EnvPrefix + key)
		return strings.TrimSpace(v), ok && strings.TrimSpace(v) != ""
	}

	if v, ok := get("BACKEND_URL"); ok {
		c.BackendURL = v
	}
	if v, ok := get("SESSION_ID"); ok {
		c.SessionID = v
	}
	if v, ok := get("DATA_DIR"); ok {
		c.DataDir = v
	}
	if v, ok := get("AUDIO_ENCODING"); ok {
		c.Audio.Encoding = audio.Encoding(strings.ToLower(v))
	}
	if v, ok := get("FALLBACK_AUDIO"); ok {
		c.Audio.Fallback = v
	}
	if v, ok := get("CAPTURE_COMMAND"); ok {
		c.Audio.CaptureCommand = strings.Fields(v)
	}
	if v, ok := get("PLAYER_COMMAND"); ok {
		c.Audio.PlayerCommand = strings.Fields(v)
	}

	bools := []struct {
		key string
		dst *bool
	}{
		{"DEBUG", &c.Debug},
		{"AUTO_RECORDING", &c.AutoRecording},
	}
	for _, b := range bools {
		if v, ok := get(b.key); ok {
			parsed, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%w: %s%s=%q is not a boolean", ErrInvalid, EnvPrefix, b.key, v)
			}
			*b.dst = parsed
		}
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"AUTO_RECORD_DELAY", &c.AutoRecordDelay},
		{"MAX_RECORDING", &c.Audio.MaxRecording},
		{"REQUEST_TIMEOUT", &c.RequestTimeout},
	}
	for _, d := range durations {
		if v, ok := get(d.key); ok {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%w: %s%s=%q is not a duration", ErrInvalid, EnvPrefix, d.key, v)
			}
			*d.dst = parsed
		}
	}

	if v, ok := get("SAMPLE_RATE"); ok {
		rate, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %sSAMPLE_RATE=%q is not an integer", ErrInvalid, EnvPrefix, v)
		}
		c.Audio.SampleRate = rate
	}
	return nil
}

// Validate checks the resolved configuration.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BackendURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: backend url %q must be an absolute http(s) url", ErrInvalid, c.BackendURL)
	}
	if c.SessionID != "" && !session.ID(c.SessionID).Valid() {
		return fmt.Errorf("%w: session id %q", ErrInvalid, c.SessionID)
	}
	if c.DataDir == "" {
		return fmt.Errorf("%w: data dir is empty", ErrInvalid)
	}
	if c.RequestTimeout < 0 || c.AutoRecordDelay < 0 || c.Audio.MaxRecording < 0 {
		return fmt.Errorf("%w: durations must not be negative", ErrInvalid)
	}
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate %d", ErrInvalid, c.Audio.SampleRate)
	}
	switch c.Audio.Encoding {
	case audio.EncodingPCM, audio.EncodingULaw:
	default:
		return fmt.Errorf("%w: unknown audio encoding %q (pcm|ulaw)", ErrInvalid, c.Audio.Encoding)
	}
	if len(c.Audio.CaptureCommand) == 0 {
		return fmt.Errorf("%w: capture command is empty", ErrInvalid)
	}
	if len(c.Audio.PlayerCommand) == 0 {
		return fmt.Errorf("%w: player command is empty", ErrInvalid)
	}
	return nil
}

// LogDir is where log, trace and metric files are written.
func (c *Config) LogDir() string { return filepath.Join(c.DataDir, "logs") }

// JournalPath is the sqlite turn journal.
func (c *Config) JournalPath() string { return filepath.Join(c.DataDir, "voicechat.db") }

// LinkPath stores the current session link between runs.
func (c *Config) LinkPath() string { return filepath.Join(c.DataDir, "session.url") }
