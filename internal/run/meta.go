// internal/run/meta.go
package run

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// Meta describes a testbed run directory:
//
//	<dir>/.started      start date
//	<dir>/duration      run duration
//	<dir>/logs/log.txt  simulator log
type Meta struct {
	Dir      string
	JobID    string
	Started  string
	Duration string
}

// LogPath returns the simulator log of a run directory
func LogPath(dir string) string {
	return filepath.Join(dir, "logs", "log.txt")
}

// JobID derives the job id from the directory name ("1234_node-test" -> "1234")
func JobID(dir string) string {
	base := filepath.Base(strings.TrimRight(dir, string(filepath.Separator)))
	id, _, _ := strings.Cut(base, "_")
	return id
}

// ReadMeta reads the metadata files of a run directory.
// Missing files leave the corresponding field empty.
func ReadMeta(dir string) (*Meta, error) {
	dir = filepath.Clean(dir)
	started, err := readFirstLine(filepath.Join(dir, ".started"))
	if err != nil {
		return nil, err
	}
	duration, err := readFirstLine(filepath.Join(dir, "duration"))
	if err != nil {
		return nil, err
	}

	return &Meta{
		Dir:      dir,
		JobID:    JobID(dir),
		Started:  started,
		Duration: duration,
	}, nil
}

func readFirstLine(path string) (string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text()), nil
	}
	return "", scanner.Err()
}
