package fsx

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	lockTimeout    = 10 * time.Second
	lockRetry      = 10 * time.Millisecond
	lockStaleAfter = time.Minute
)

// AppendLineLocked appends one newline-terminated record to path while holding
// a sibling ".lock" file, so that separate ctxlib processes sharing one event
// log never interleave partial lines.
func AppendLineLocked(path string, line []byte, mode os.FileMode) error {
	cleanPath, err := localOrAbsolute(path)
	if err != nil {
		return err
	}
	if strings.ContainsRune(string(line), '\n') {
		return fmt.Errorf("append record must be a single line")
	}
	parent := filepath.Dir(cleanPath)
	if err := os.MkdirAll(parent, 0o750); err != nil {
		return fmt.Errorf("create append directory: %w", err)
	}
	payload := make([]byte, 0, len(line)+1)
	payload = append(payload, line...)
	payload = append(payload, '\n')

	return withFileLock(cleanPath+".lock", func() error {
		// #nosec G304 -- append path is validated local relative or absolute.
		file, openErr := os.OpenFile(cleanPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, mode)
		if openErr != nil {
			return fmt.Errorf("open append file: %w", openErr)
		}
		defer func() {
			_ = file.Close()
		}()
		if _, writeErr := file.Write(payload); writeErr != nil {
			return fmt.Errorf("append file line: %w", writeErr)
		}
		return file.Sync()
	})
}

func withFileLock(lockPath string, fn func() error) error {
	deadline := time.Now().Add(lockTimeout)
	for {
		// #nosec G304 -- lock path is derived from a validated append path.
		lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			_ = lockFile.Close()
			defer func() {
				_ = os.Remove(lockPath)
			}()
			return fn()
		}
		if !os.IsExist(err) {
			return fmt.Errorf("acquire append lock: %w", err)
		}
		if lockIsStale(lockPath, time.Now()) {
			_ = os.Remove(lockPath)
			continue
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("append lock timeout: %s", lockPath)
		}
		time.Sleep(lockRetry)
	}
}

func lockIsStale(lockPath string, now time.Time) bool {
	info, err := os.Stat(lockPath)
	if err != nil {
		return false
	}
	return now.Sub(info.ModTime()) > lockStaleAfter
}

func localOrAbsolute(path string) (string, error) {
	cleanPath := filepath.Clean(strings.TrimSpace(path))
	if filepath.IsAbs(cleanPath) || filepath.IsLocal(cleanPath) {
		return cleanPath, nil
	}
	return "", fmt.Errorf("path must be local relative or absolute: %s", path)
}
