package workerpool

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Worker executables live adjacent to the main program as hidden files
// so ps output and directory listings stay attributable:
// .actorx_worker_host.<N>, mode 0o774. Stale siblings from earlier
// runs are removed on startup.
const workerBinaryPrefix = ".actorx_worker_host."

// WriteWorkerBinary materializes a worker executable as
// dir/.actorx_worker_host.<n> with mode 0o774 and returns its path.
func WriteWorkerBinary(dir string, n int, executable []byte) (string, error) {
	path := filepath.Join(dir, fmt.Sprintf("%s%d", workerBinaryPrefix, n))
	if err := os.WriteFile(path, executable, 0o774); err != nil {
		return "", fmt.Errorf("workerpool: writing worker binary %s: %w", path, err)
	}
	// WriteFile's mode is filtered by the umask and not applied to an
	// existing file, so set it explicitly.
	if err := os.Chmod(path, 0o774); err != nil {
		return "", fmt.Errorf("workerpool: setting mode on worker binary %s: %w", path, err)
	}
	return path, nil
}

// RemoveStaleWorkerBinaries deletes every .actorx_worker_host.* file
// under dir except keep (which may be empty to remove them all). Run
// once on startup so crashed earlier runs don't accumulate executables.
func RemoveStaleWorkerBinaries(dir, keep string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("workerpool: listing %s for stale worker binaries: %w", dir, err)
	}
	var firstErr error
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), workerBinaryPrefix) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if path == keep {
			continue
		}
		if err := os.Remove(path); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// DefaultWorkerBinaryDir is where worker executables are written:
// the directory holding the running program.
func DefaultWorkerBinaryDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("workerpool: resolving own executable path: %w", err)
	}
	return filepath.Dir(exe), nil
}
