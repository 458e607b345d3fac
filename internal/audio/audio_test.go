package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCapture serves data, then blocks until closed.
type fakeCapture struct {
	mu     sync.Mutex
	data   *bytes.Reader
	closed chan struct{}
	once   sync.Once
}

func newFakeCapture(data []byte) *fakeCapture {
	return &fakeCapture{data: bytes.NewReader(data), closed: make(chan struct{})}
}

func (c *fakeCapture) Read(p []byte) (int, error) {
	c.mu.Lock()
	if c.data.Len() > 0 {
		defer c.mu.Unlock()
		return c.data.Read(p)
	}
	c.mu.Unlock()
	<-c.closed
	return 0, io.EOF
}

func (c *fakeCapture) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeCapture) drained() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data.Len() == 0
}

type fakeMic struct {
	data    []byte
	err     error
	opened  int
	capture *fakeCapture
}

func (m *fakeMic) Open(ctx context.Context) (io.ReadCloser, error) {
	m.opened++
	if m.err != nil {
		return nil, m.err
	}
	m.capture = newFakeCapture(m.data)
	return m.capture, nil
}

func pcmSamples(n int) []byte {
	out := make([]byte, 0, 2*n)
	for i := 0; i < n; i++ {
		out = binary.LittleEndian.AppendUint16(out, uint16(int16(i*100)))
	}
	return out
}

func waitDrained(t *testing.T, c *fakeCapture) {
	t.Helper()
	require.Eventually(t, c.drained, time.Second, time.Millisecond)
}

func TestRecorderStartStop(t *testing.T) {
	mic := &fakeMic{data: pcmSamples(1600)}
	r := NewRecorder(mic, RecorderConfig{ChunkSize: 256})

	require.NoError(t, r.Start(context.Background()))
	assert.Equal(t, Recording, r.State())
	waitDrained(t, mic.capture)

	blob, err := r.Stop()
	require.NoError(t, err)
	assert.Equal(t, Idle, r.State())
	assert.Equal(t, ContentTypeWAV, blob.ContentType)
	assert.Equal(t, "conversation.wav", blob.Filename)
	require.Len(t, blob.Data, 44+3200)
	assert.Equal(t, "RIFF", string(blob.Data[0:4]))
	assert.Equal(t, "WAVE", string(blob.Data[8:12]))
	assert.Equal(t, uint16(formatPCM), binary.LittleEndian.Uint16(blob.Data[20:22]))
	assert.Equal(t, uint32(16000), binary.LittleEndian.Uint32(blob.Data[24:28]))
	assert.Equal(t, mic.data, blob.Data[44:])
}

func TestRecorderSecondStartRejected(t *testing.T) {
	mic := &fakeMic{data: pcmSamples(10)}
	r := NewRecorder(mic, RecorderConfig{})

	require.NoError(t, r.Start(context.Background()))
	err := r.Start(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRecording)
	assert.Equal(t, 1, mic.opened)

	require.NoError(t, r.Discard())
}

func TestRecorderStopWhenIdle(t *testing.T) {
	r := NewRecorder(&fakeMic{}, RecorderConfig{})

	blob, err := r.Stop()
	assert.ErrorIs(t, err, ErrNotRecording)
	assert.Empty(t, blob.Data)
	assert.ErrorIs(t, r.Discard(), ErrNotRecording)
	assert.Equal(t, Idle, r.State())
}

func TestRecorderStopTwice(t *testing.T) {
	mic := &fakeMic{data: pcmSamples(100)}
	r := NewRecorder(mic, RecorderConfig{})
	require.NoError(t, r.Start(context.Background()))
	waitDrained(t, mic.capture)

	_, err := r.Stop()
	require.NoError(t, err)
	_, err = r.Stop()
	assert.ErrorIs(t, err, ErrNotRecording)
}

func TestRecorderPermissionDenied(t *testing.T) {
	mic := &fakeMic{err: fmt.Errorf("%w: device busy", ErrPermissionDenied)}
	r := NewRecorder(mic, RecorderConfig{})

	err := r.Start(context.Background())
	require.ErrorIs(t, err, ErrPermissionDenied)
	assert.Contains(t, err.Error(), "device busy")
	assert.Equal(t, Idle, r.State())

	// a later attempt is allowed
	mic.err = nil
	mic.data = pcmSamples(4)
	require.NoError(t, r.Start(context.Background()))
	require.NoError(t, r.Discard())
}

func TestRecorderPassesThroughOtherOpenErrors(t *testing.T) {
	mic := &fakeMic{err: context.Canceled}
	r := NewRecorder(mic, RecorderConfig{})

	err := r.Start(context.Background())
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrPermissionDenied)
	assert.Equal(t, Idle, r.State())

	mic.err = errors.New("failed to create capture pipe: too many open files")
	err = r.Start(context.Background())
	assert.NotErrorIs(t, err, ErrPermissionDenied)
}

func TestRecorderEmptyCapture(t *testing.T) {
	mic := &fakeMic{}
	r := NewRecorder(mic, RecorderConfig{})
	require.NoError(t, r.Start(context.Background()))

	_, err := r.Stop()
	assert.ErrorIs(t, err, ErrEmptyCapture)
	assert.Equal(t, Idle, r.State())
}

func TestEncodeWAVULaw(t *testing.T) {
	pcm := pcmSamples(800)
	data, err := EncodeWAV(pcm, Format{SampleRate: 8000, Channels: 1}, EncodingULaw)
	require.NoError(t, err)

	assert.Equal(t, uint16(formatULaw), binary.LittleEndian.Uint16(data[20:22]))
	assert.Equal(t, uint16(8), binary.LittleEndian.Uint16(data[34:36]))
	assert.Equal(t, "data", string(data[38:42]))
	assert.Equal(t, uint32(800), binary.LittleEndian.Uint32(data[42:46]))
	assert.Len(t, data, 46+800)
	assert.Equal(t, uint32(len(data)-8), binary.LittleEndian.Uint32(data[4:8]))
}

func TestEncodeWAVErrors(t *testing.T) {
	_, err := EncodeWAV(nil, Format{SampleRate: 16000, Channels: 1}, EncodingPCM)
	assert.Error(t, err)
	_, err = EncodeWAV([]byte{1, 2, 3}, Format{SampleRate: 16000, Channels: 2}, EncodingPCM)
	assert.Error(t, err)
	_, err = EncodeWAV(pcmSamples(2), Format{SampleRate: 0, Channels: 1}, EncodingPCM)
	assert.Error(t, err)
	_, err = EncodeWAV(pcmSamples(2), Format{SampleRate: 8000, Channels: 1}, "opus")
	assert.Error(t, err)
}

func TestEnsureFallbackCue(t *testing.T) {
	dir := t.TempDir()
	path, err := EnsureFallbackCue("", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "fallback.wav"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "RIFF", string(data[:4]))

	again, err := EnsureFallbackCue("", dir)
	require.NoError(t, err)
	assert.Equal(t, path, again)

	_, err = EnsureFallbackCue(filepath.Join(dir, "missing.mp3"), dir)
	assert.Error(t, err)
}
