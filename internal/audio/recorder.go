package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrPermissionDenied means the microphone could not be opened.
	ErrPermissionDenied = errors.New("microphone access denied")
	ErrAlreadyRecording = errors.New("recorder is already recording")
	ErrNotRecording     = errors.New("recorder is not recording")
	ErrEmptyCapture     = errors.New("no audio captured")
)

// State is the recorder lifecycle state.
type State int

const (
	Idle State = iota
	Recording
)

func (s State) String() string {
	if s == Recording {
		return "recording"
	}
	return "idle"
}

// Blob is one finished capture, ready to upload once.
type Blob struct {
	Data        []byte
	ContentType string
	Filename    string
	Duration    time.Duration
}

// Microphone opens capture streams of raw 16-bit PCM.
type Microphone interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// RecorderConfig configures blob packaging.
type RecorderConfig struct {
	Format   Format
	Encoding Encoding
	// ChunkSize is the read size used while accumulating audio.
	ChunkSize int
	Logger    *slog.Logger
}

// Recorder owns at most one active capture.
type Recorder struct {
	mic    Microphone
	cfg    RecorderConfig
	logger *slog.Logger

	mu      sync.Mutex
	state   State
	capture io.ReadCloser
	id      string
	started time.Time
	chunks  [][]byte
	readErr error
	done    chan struct{}
}

// NewRecorder creates an idle recorder over mic.
func NewRecorder(mic Microphone, cfg RecorderConfig) *Recorder {
	if cfg.Format.SampleRate == 0 {
		cfg.Format.SampleRate = 16000
	}
	if cfg.Format.Channels == 0 {
		cfg.Format.Channels = 1
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 4096
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Recorder{mic: mic, cfg: cfg, logger: cfg.Logger}
}

// State returns the current lifecycle state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Start opens the microphone and begins accumulating audio. On failure the
// recorder stays Idle; a refused microphone is reported as
// ErrPermissionDenied and other errors pass through.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.state != Idle || r.capture != nil {
		r.mu.Unlock()
		return ErrAlreadyRecording
	}
	// claim the slot before the possibly slow open
	r.state = Recording
	r.mu.Unlock()

	capture, err := r.mic.Open(ctx)
	if err != nil {
		r.mu.Lock()
		r.state = Idle
		r.mu.Unlock()
		return err
	}

	r.mu.Lock()
	r.capture = capture
	r.id = uuid.New().String()
	r.started = time.Now()
	r.chunks = nil
	r.readErr = nil
	r.done = make(chan struct{})
	done := r.done
	id := r.id
	r.mu.Unlock()

	go r.accumulate(capture, done)
	r.logger.Info("recording started", "capture_id", id)
	return nil
}

func (r *Recorder) accumulate(src io.Reader, done chan struct{}) {
	defer close(done)
	for {
		buf := make([]byte, r.cfg.ChunkSize)
		n, err := src.Read(buf)
		if n > 0 {
			r.mu.Lock()
			r.chunks = append(r.chunks, buf[:n])
			r.mu.Unlock()
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) && !errors.Is(err, os.ErrClosed) {
				r.mu.Lock()
				r.readErr = err
				r.mu.Unlock()
			}
			return
		}
	}
}

// finish closes the capture and waits for the reader. It returns the
// accumulated PCM.
func (r *Recorder) finish() ([]byte, time.Duration, string, error) {
	r.mu.Lock()
	if r.state != Recording || r.capture == nil {
		r.mu.Unlock()
		return nil, 0, "", ErrNotRecording
	}
	capture, done, id, started := r.capture, r.done, r.id, r.started
	// state stays Recording until drained so Start cannot slip in
	r.capture = nil
	r.mu.Unlock()

	closeErr := capture.Close()
	<-done

	r.mu.Lock()
	defer r.mu.Unlock()
	size := 0
	for _, c := range r.chunks {
		size += len(c)
	}
	pcm := make([]byte, 0, size)
	for _, c := range r.chunks {
		pcm = append(pcm, c...)
	}
	readErr := r.readErr

	r.state = Idle
	r.chunks = nil
	r.readErr = nil
	r.done = nil

	if closeErr != nil {
		r.logger.Warn("failed to close capture", "capture_id", id, "error", closeErr)
	}
	if readErr != nil {
		r.logger.Warn("capture ended with error", "capture_id", id, "error", readErr)
	}
	return pcm, time.Since(started), id, nil
}

// Stop ends the capture and packages everything recorded into one blob.
func (r *Recorder) Stop() (Blob, error) {
	pcm, elapsed, id, err := r.finish()
	if err != nil {
		return Blob{}, err
	}

	// drop a trailing partial frame
	frame := 2 * r.cfg.Format.Channels
	pcm = pcm[:len(pcm)-len(pcm)%frame]
	if len(pcm) == 0 {
		return Blob{}, ErrEmptyCapture
	}

	data, err := EncodeWAV(pcm, r.cfg.Format, r.cfg.Encoding)
	if err != nil {
		return Blob{}, fmt.Errorf("failed to package audio: %w", err)
	}

	r.logger.Info("recording stopped", "capture_id", id, "bytes", len(data), "elapsed", elapsed)
	return Blob{
		Data:        data,
		ContentType: ContentTypeWAV,
		Filename:    "conversation.wav",
		Duration:    elapsed,
	}, nil
}

// Discard ends the capture and drops the audio.
func (r *Recorder) Discard() error {
	_, _, id, err := r.finish()
	if err != nil {
		return err
	}
	r.logger.Info("recording discarded", "capture_id", id)
	return nil
}
