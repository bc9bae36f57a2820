package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
)

const (
	stateDir  = ".stationmind"
	stateFile = "current_session"
)

// StateFilePath returns the path to the current-session state file,
// creating ~/.stationmind if needed.
func StateFilePath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	dir := filepath.Join(homeDir, stateDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating state directory: %w", err)
	}
	return filepath.Join(dir, stateFile), nil
}

// LoadCurrentSessionID returns the session ID the CLI last used, or ""
// when no current session is recorded. The state file is read under a
// file lock so concurrent CLI invocations never observe partial writes.
func LoadCurrentSessionID() (string, error) {
	path, err := StateFilePath()
	if err != nil {
		return "", err
	}

	lock := flock.New(path + ".lock")
	if err := lock.RLock(); err != nil {
		return "", fmt.Errorf("locking state file: %w", err)
	}
	defer lock.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("reading state file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// SaveCurrentSessionID records sessionID as the CLI's current session.
func SaveCurrentSessionID(sessionID string) error {
	path, err := StateFilePath()
	if err != nil {
		return err
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("locking state file: %w", err)
	}
	defer lock.Unlock()

	if err := os.WriteFile(path, []byte(sessionID+"\n"), 0o644); err != nil {
		return fmt.Errorf("writing state file: %w", err)
	}
	return nil
}

// ClearCurrentSessionID removes the current-session record.
func ClearCurrentSessionID() error {
	path, err := StateFilePath()
	if err != nil {
		return err
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("locking state file: %w", err)
	}
	defer lock.Unlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing state file: %w", err)
	}
	return nil
}
