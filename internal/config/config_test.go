package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"VoiceChat/internal/audio"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultBackendURL, cfg.BackendURL)
	assert.Equal(t, time.Second, cfg.AutoRecordDelay)
	assert.False(t, cfg.AutoRecording)
	assert.Equal(t, audio.EncodingPCM, cfg.Audio.Encoding)
	assert.Equal(t, "arecord", cfg.Audio.CaptureCommand[0])
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
backend_url: https://voice.example.com
session_id: session_1700000000000_abcdefghi
auto_recording: true
auto_record_delay: 1500ms
data_dir: /tmp/voicechat-test
audio:
  encoding: ulaw
  sample_rate: 8000
  max_recording: 30s
  player_command: [mpv, --no-video]
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "https://voice.example.com", cfg.BackendURL)
	assert.Equal(t, "session_1700000000000_abcdefghi", cfg.SessionID)
	assert.True(t, cfg.AutoRecording)
	assert.Equal(t, 1500*time.Millisecond, cfg.AutoRecordDelay)
	assert.Equal(t, audio.EncodingULaw, cfg.Audio.Encoding)
	assert.Equal(t, 8000, cfg.Audio.SampleRate)
	assert.Equal(t, 30*time.Second, cfg.Audio.MaxRecording)
	assert.Equal(t, []string{"mpv", "--no-video"}, cfg.Audio.PlayerCommand)
	// untouched keys keep their defaults; the built-in capture follows the rate
	assert.Equal(t, []string{"arecord", "-q", "-f", "S16_LE", "-r", "8000", "-c", "1", "-t", "raw"}, cfg.Audio.CaptureCommand)
	assert.Equal(t, filepath.Join("/tmp/voicechat-test", "voicechat.db"), cfg.JournalPath())
}

func TestLoadExplicitMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadMalformedFile(t *testing.T) {
	path := writeConfig(t, "backend_url: [unterminated")
	_, err := Load(path)
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "backend_url: http://from-file:8000\n")
	t.Setenv("VOICECHAT_BACKEND_URL", "http://from-env:9000")
	t.Setenv("VOICECHAT_AUTO_RECORDING", "true")
	t.Setenv("VOICECHAT_AUTO_RECORD_DELAY", "250ms")
	t.Setenv("VOICECHAT_PLAYER_COMMAND", "aplay -q")
	t.Setenv("VOICECHAT_SAMPLE_RATE", "22050")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://from-env:9000", cfg.BackendURL)
	assert.True(t, cfg.AutoRecording)
	assert.Equal(t, 250*time.Millisecond, cfg.AutoRecordDelay)
	assert.Equal(t, []string{"aplay", "-q"}, cfg.Audio.PlayerCommand)
	assert.Equal(t, 22050, cfg.Audio.SampleRate)
	assert.Contains(t, strings.Join(cfg.Audio.CaptureCommand, " "), "-r 22050")
}

func TestCustomCaptureCommandKeepsItsRate(t *testing.T) {
	path := writeConfig(t, `
audio:
  sample_rate: 8000
  capture_command: [ffmpeg, -f, alsa, -i, default, -ar, "16000", -f, s16le, "-"]
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ffmpeg", cfg.Audio.CaptureCommand[0])
	assert.Contains(t, cfg.Audio.CaptureCommand, "16000")
}

func TestApplyEnvRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "bool", env: map[string]string{"VOICECHAT_DEBUG": "sometimes"}},
		{name: "duration", env: map[string]string{"VOICECHAT_MAX_RECORDING": "forever"}},
		{name: "int", env: map[string]string{"VOICECHAT_SAMPLE_RATE": "fast"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lookup := func(k string) (string, bool) {
				v, ok := tt.env[k]
				return v, ok
			}
			err := Default().applyEnv(lookup)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "relative backend", mutate: func(c *Config) { c.BackendURL = "localhost:8000" }},
		{name: "ftp backend", mutate: func(c *Config) { c.BackendURL = "ftp://host" }},
		{name: "bad session", mutate: func(c *Config) { c.SessionID = "has space" }},
		{name: "negative delay", mutate: func(c *Config) { c.AutoRecordDelay = -time.Second }},
		{name: "zero rate", mutate: func(c *Config) { c.Audio.SampleRate = 0 }},
		{name: "encoding", mutate: func(c *Config) { c.Audio.Encoding = "opus" }},
		{name: "no capture", mutate: func(c *Config) { c.Audio.CaptureCommand = nil }},
		{name: "no player", mutate: func(c *Config) { c.Audio.PlayerCommand = nil }},
		{name: "no data dir", mutate: func(c *Config) { c.DataDir = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}
