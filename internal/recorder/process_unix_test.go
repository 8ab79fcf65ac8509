//go:build linux || darwin

package recorder

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestExecSpawner_InterruptExitsCleanly(t *testing.T) {
	t.Parallel()

	proc, err := ExecSpawner{}.Spawn(CommandSpec{
		Path: "/bin/sh",
		Args: []string{"-c", "trap 'exit 0' INT; while :; do sleep 0.05; done"},
	})
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond) // let the shell install its trap
	require.NoError(t, proc.Signal(os.Interrupt))

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	status, err := proc.WaitExit(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, status.Code)
}

func TestExecSpawner_KillProcessGroup(t *testing.T) {
	t.Parallel()

	proc, err := ExecSpawner{}.Spawn(CommandSpec{
		Path: "/bin/sh",
		Args: []string{"-c", "trap '' INT; while :; do sleep 0.05; done"},
	})
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, proc.Signal(os.Interrupt))

	short, cancel := context.WithTimeout(t.Context(), 200*time.Millisecond)
	_, err = proc.WaitExit(short)
	cancel()
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, proc.Kill())
	status, err := proc.WaitExit(t.Context())
	require.NoError(t, err)
	assert.Equal(t, -1, status.Code)
}

func TestExecSpawner_ExitCodeAndStderr(t *testing.T) {
	t.Parallel()

	stderr := &lockedBuffer{}
	proc, err := ExecSpawner{}.Spawn(CommandSpec{
		Path:   "/bin/sh",
		Args:   []string{"-c", "echo 'Connection refused' >&2; exit 3"},
		Stderr: stderr,
	})
	require.NoError(t, err)

	status, err := proc.WaitExit(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 3, status.Code)
	assert.NoError(t, status.Err)
	assert.Contains(t, stderr.String(), "Connection refused")
}

func TestExecSpawner_MissingBinary(t *testing.T) {
	t.Parallel()

	_, err := ExecSpawner{}.Spawn(CommandSpec{Path: filepath.Join(t.TempDir(), "no-ffmpeg")})
	require.Error(t, err)
}

// fakeFfmpeg writes its last argument like ffmpeg writes the output file and
// exits 255 on SIGINT.
const fakeFfmpeg = `#!/bin/sh
for last; do :; done
echo "fake capture" > "$last"
echo "Press [q] to stop" >&2
trap 'exit 255' INT
while :; do sleep 0.05; done
`

func TestSupervisor_RealProcess(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	script := filepath.Join(dir, "ffmpeg")
	require.NoError(t, os.WriteFile(script, []byte(fakeFfmpeg), 0o755)) //nolint:gosec // test script must be executable

	h := newHarness(t, func(c *Config) {
		c.FfmpegPath = script
		c.OutputDir = filepath.Join(dir, "out")
	})
	h.sup.spawner = ExecSpawner{}

	name, err := h.sup.Start(t.Context(), request("VT003"))
	require.NoError(t, err)

	out := filepath.Join(dir, "out", name)
	require.Eventually(t, func() bool {
		_, err := os.Stat(out)
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
	time.Sleep(100 * time.Millisecond) // trap installed after the file is written

	stopped, err := h.sup.Stop(t.Context(), "VT003")
	require.NoError(t, err)
	assert.Equal(t, name, stopped)

	uploads := h.uploader.uploads()
	require.Len(t, uploads, 1)
	assert.Equal(t, out, uploads[0].Path)
}
