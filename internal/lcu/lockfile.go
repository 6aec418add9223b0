package lcu

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

var ErrNoLockfile = errors.New("league client lockfile not found")

// Credentials are what the client publishes in its lockfile.
type Credentials struct {
	Process  string
	PID      int
	Port     int
	Password string
	Protocol string
}

// ParseLockfile reads the single line `name:pid:port:password:protocol`.
func ParseLockfile(data []byte) (Credentials, error) {
	parts := strings.Split(strings.TrimSpace(string(data)), ":")
	if len(parts) != 5 {
		return Credentials{}, fmt.Errorf("lockfile: want 5 fields, got %d", len(parts))
	}
	pid, err := strconv.Atoi(parts[1])
	if err != nil {
		return Credentials{}, fmt.Errorf("lockfile pid: %w", err)
	}
	port, err := strconv.Atoi(parts[2])
	if err != nil || port <= 0 || port > 65535 {
		return Credentials{}, fmt.Errorf("lockfile port %q invalid", parts[2])
	}
	if parts[3] == "" {
		return Credentials{}, errors.New("lockfile: empty password")
	}
	return Credentials{
		Process:  parts[0],
		PID:      pid,
		Port:     port,
		Password: parts[3],
		Protocol: parts[4],
	}, nil
}

// DefaultLockfilePaths lists where the client normally writes its lockfile.
func DefaultLockfilePaths() []string {
	switch runtime.GOOS {
	case "windows":
		return []string{
			`C:\Riot Games\League of Legends\lockfile`,
			`D:\Riot Games\League of Legends\lockfile`,
		}
	case "darwin":
		return []string{"/Applications/League of Legends.app/Contents/LoL/lockfile"}
	default:
		return nil
	}
}

// Discover returns credentials from the first readable lockfile. An explicit
// path is tried alone.
func Discover(path string) (Credentials, error) {
	paths := DefaultLockfilePaths()
	if path != "" {
		paths = []string{path}
	}
	for _, p := range paths {
		data, err := os.ReadFile(filepath.Clean(p))
		if err != nil {
			continue
		}
		return ParseLockfile(data)
	}
	return Credentials{}, ErrNoLockfile
}
