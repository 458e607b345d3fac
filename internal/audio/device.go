package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"
)

// startupGrace is how long a capture command must survive before the
// microphone counts as granted.
const startupGrace = 150 * time.Millisecond

// Close timings: how long the recorder gets to exit after SIGINT, and how
// long the reader gets to drain what it flushed.
var (
	interruptGrace = 2 * time.Second
	drainGrace     = time.Second
)

// CommandMicrophone captures raw PCM from an external recorder's stdout,
// e.g. arecord or ffmpeg.
type CommandMicrophone struct {
	Command []string
	Logger  *slog.Logger
}

func (m *CommandMicrophone) Open(ctx context.Context) (io.ReadCloser, error) {
	if len(m.Command) == 0 {
		return nil, fmt.Errorf("%w: no capture command configured", ErrPermissionDenied)
	}
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// stdout is a plain pipe rather than StdoutPipe so that Wait never closes
	// the read end while flushed audio is still buffered in it
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create capture pipe: %w", err)
	}

	// the capture outlives Open's ctx; Close ends it
	cmd := exec.Command(m.Command[0], m.Command[1:]...)
	cmd.Stdout = pw
	cmd.Stderr = &logLines{logger: logger}
	cmd.WaitDelay = drainGrace
	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	pw.Close()

	c := &commandCapture{
		cmd:     cmd,
		stdout:  pr,
		exited:  make(chan struct{}),
		drained: make(chan struct{}),
	}
	go func() {
		c.waitErr = cmd.Wait()
		close(c.exited)
	}()

	select {
	case <-c.exited:
		pr.Close()
		return nil, fmt.Errorf("%w: capture command exited: %v", ErrPermissionDenied, c.waitErr)
	case <-ctx.Done():
		cmd.Process.Kill()
		<-c.exited
		pr.Close()
		return nil, ctx.Err()
	case <-time.After(startupGrace):
	}
	return c, nil
}

type commandCapture struct {
	cmd     *exec.Cmd
	stdout  *os.File
	exited  chan struct{}
	waitErr error

	drained   chan struct{}
	drainOnce sync.Once
	closeOnce sync.Once
}

// Read reads until the recorder exits and its pipe is empty.
func (c *commandCapture) Read(p []byte) (int, error) {
	n, err := c.stdout.Read(p)
	if err != nil {
		c.drainOnce.Do(func() { close(c.drained) })
	}
	return n, err
}

// Close interrupts the recorder so it flushes, kills it if it lingers, then
// gives the reader time to drain the flushed audio before closing the pipe.
func (c *commandCapture) Close() error {
	c.closeOnce.Do(func() {
		c.cmd.Process.Signal(os.Interrupt)
		select {
		case <-c.exited:
		case <-time.After(interruptGrace):
			c.cmd.Process.Kill()
			<-c.exited
		}
		select {
		case <-c.drained:
		case <-time.After(drainGrace):
		}
		c.stdout.Close()
	})
	return nil
}

// logLines writes each line of a command's stderr to the debug log.
type logLines struct {
	logger *slog.Logger
	buf    []byte
}

func (l *logLines) Write(p []byte) (int, error) {
	l.buf = append(l.buf, p...)
	for {
		i := bytes.IndexByte(l.buf, '\n')
		if i < 0 {
			break
		}
		l.logger.Debug("capture stderr", "line", string(l.buf[:i]))
		l.buf = l.buf[i+1:]
	}
	return len(p), nil
}

// Player plays an audio source (URL or file path) and returns when playback
// ends or ctx is cancelled.
type Player interface {
	Play(ctx context.Context, source string) error
}

// CommandPlayer plays audio through an external program; the source is
// appended as the last argument.
type CommandPlayer struct {
	Command []string
	Logger  *slog.Logger
}

func (p *CommandPlayer) Play(ctx context.Context, source string) error {
	if len(p.Command) == 0 {
		return errors.New("no playback command configured")
	}
	args := append(append([]string(nil), p.Command[1:]...), source)
	cmd := exec.CommandContext(ctx, p.Command[0], args...)
	if p.Logger != nil {
		p.Logger.Debug("playing audio", "source", source)
	}
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("playback failed: %w", err)
	}
	return nil
}

// EnsureFallbackCue returns path if set, otherwise writes a generated
// two-tone cue into dir (once) and returns its path.
func EnsureFallbackCue(path, dir string) (string, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("fallback audio: %w", err)
		}
		return path, nil
	}

	out := filepath.Join(dir, "fallback.wav")
	if _, err := os.Stat(out); err == nil {
		return out, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create asset directory: %w", err)
	}

	const rate = 16000
	data, err := EncodeWAV(Tone(rate, []float64{660, 440}, 0.25), Format{SampleRate: rate, Channels: 1}, EncodingPCM)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(out, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write fallback cue: %w", err)
	}
	return out, nil
}
