package audio

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) {
	t.Helper()
	for _, bin := range []string{"sh", "sleep", "head"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not available: %v", bin, err)
		}
	}
}

// shortGraces lowers the close timings for the duration of a test.
func shortGraces(t *testing.T) {
	interrupt, drain := interruptGrace, drainGrace
	interruptGrace, drainGrace = 200*time.Millisecond, 200*time.Millisecond
	t.Cleanup(func() { interruptGrace, drainGrace = interrupt, drain })
}

func TestCommandMicrophoneKeepsAudioFlushedAtStop(t *testing.T) {
	requireShell(t)
	// a recorder that writes its buffered audio only when interrupted
	mic := &CommandMicrophone{Command: []string{"sh", "-c",
		"trap 'head -c 60000 /dev/zero; exit 0' INT; while true; do sleep 0.01; done"}}

	for i := 0; i < 5; i++ {
		r := NewRecorder(mic, RecorderConfig{})
		require.NoError(t, r.Start(context.Background()))
		time.Sleep(50 * time.Millisecond)

		blob, err := r.Stop()
		require.NoError(t, err, "run %d", i)
		assert.Len(t, blob.Data, 44+60000, "run %d", i)
	}
}

func TestCommandMicrophoneReadsUntilExit(t *testing.T) {
	requireShell(t)
	mic := &CommandMicrophone{Command: []string{"sh", "-c", "head -c 3200 /dev/zero; exec sleep 10"}}
	r := NewRecorder(mic, RecorderConfig{})
	require.NoError(t, r.Start(context.Background()))
	time.Sleep(50 * time.Millisecond)

	blob, err := r.Stop()
	require.NoError(t, err)
	assert.Len(t, blob.Data, 44+3200)
}

func TestCommandMicrophoneEarlyExitIsPermissionDenied(t *testing.T) {
	requireShell(t)
	tests := []struct {
		name    string
		command []string
	}{
		{name: "no command", command: nil},
		{name: "missing binary", command: []string{"voicechat-no-such-recorder"}},
		{name: "exits at once", command: []string{"sh", "-c", "echo 'no capture device' >&2; exit 1"}},
		{name: "exits within grace", command: []string{"sh", "-c", "sleep 0.05; exit 1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mic := &CommandMicrophone{Command: tt.command}
			capture, err := mic.Open(context.Background())
			assert.ErrorIs(t, err, ErrPermissionDenied)
			assert.Nil(t, capture)
		})
	}
}

func TestCommandMicrophoneStartupGrace(t *testing.T) {
	requireShell(t)
	shortGraces(t)
	mic := &CommandMicrophone{Command: []string{"sleep", "10"}}

	begin := time.Now()
	capture, err := mic.Open(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(begin), startupGrace)
	require.NoError(t, capture.Close())
}

func TestCommandMicrophoneOpenCancelled(t *testing.T) {
	requireShell(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	mic := &CommandMicrophone{Command: []string{"sleep", "10"}}
	_, err := mic.Open(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrPermissionDenied)
}

func TestCommandMicrophoneCloseKillsStubbornRecorder(t *testing.T) {
	requireShell(t)
	shortGraces(t)
	mic := &CommandMicrophone{Command: []string{"sh", "-c", "trap '' INT; exec sleep 10"}}

	capture, err := mic.Open(context.Background())
	require.NoError(t, err)

	begin := time.Now()
	require.NoError(t, capture.Close())
	elapsed := time.Since(begin)
	assert.GreaterOrEqual(t, elapsed, interruptGrace, "interrupt comes first")
	assert.Less(t, elapsed, 5*time.Second, "then the recorder is killed")

	cc := capture.(*commandCapture)
	select {
	case <-cc.exited:
	default:
		t.Fatal("recorder still running after close")
	}
	// closing twice is harmless
	assert.NoError(t, capture.Close())
}

func TestCommandPlayer(t *testing.T) {
	requireShell(t)

	p := &CommandPlayer{Command: []string{"sh", "-c", `[ "$0" = /tmp/reply.mp3 ]`}}
	assert.NoError(t, p.Play(context.Background(), "/tmp/reply.mp3"), "source is the last argument")

	err := p.Play(context.Background(), "/tmp/other.mp3")
	assert.ErrorContains(t, err, "playback failed")

	err = (&CommandPlayer{}).Play(context.Background(), "/tmp/reply.mp3")
	assert.ErrorContains(t, err, "no playback command")
}

func TestCommandPlayerCancelled(t *testing.T) {
	requireShell(t)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	p := &CommandPlayer{Command: []string{"sleep"}}
	begin := time.Now()
	err := p.Play(ctx, "10")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(begin), 5*time.Second)
}
