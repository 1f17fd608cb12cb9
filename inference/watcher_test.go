package inference

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatcherReloadsChangedArtifact(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.json")
	data, err := os.ReadFile(filepath.Join("testdata", "model.json"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	reg := NewRegistry(path, nil)
	require.NoError(t, reg.Load())

	w := NewWatcher(reg, 20*time.Millisecond, nil)
	reloaded := make(chan error, 16)
	w.OnReload = func(err error) { reloaded <- err }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		require.NoError(t, <-done)
	}()

	select {
	case <-w.Started():
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not start")
	}

	updated := strings.Replace(string(data), "2025.06-tree-1", "2025.07-tree-2", 1)
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))

	require.Eventually(t, func() bool {
		a, err := reg.Artifact()
		return err == nil && a.Version() == "2025.07-tree-2"
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))
	select {
	case err := <-drainUntilError(reloaded):
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("no failed reload observed")
	}
	a, err := reg.Artifact()
	require.NoError(t, err)
	require.Equal(t, "2025.07-tree-2", a.Version())
}

// drainUntilError forwards the first non-nil reload error.
func drainUntilError(in <-chan error) <-chan error {
	out := make(chan error, 1)
	go func() {
		for err := range in {
			if err != nil {
				out <- err
				return
			}
		}
	}()
	return out
}
