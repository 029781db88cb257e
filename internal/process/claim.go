package process

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
)

// Claim is a job document held under its exclusive lock sidecar.
type Claim struct {
	Path string
	lock *flock.Flock
}

// Name returns the job document's file name.
func (c *Claim) Name() string {
	return filepath.Base(c.Path)
}

// LockPath returns the sidecar path <document>.lock.
func (c *Claim) LockPath() string {
	return c.Path + ".lock"
}

// Release unlocks the claim and removes the lock sidecar.
func (c *Claim) Release() error {
	if c.lock == nil {
		return nil
	}
	if err := c.lock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock %s: %w", c.Name(), err)
	}
	c.lock = nil
	if err := os.Remove(c.LockPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock for %s: %w", c.Name(), err)
	}
	return nil
}

// isJobDocument reports whether name follows the job-document naming convention.
func isJobDocument(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	return strings.HasSuffix(name, ".yml") || strings.HasSuffix(name, ".yaml")
}

// LockError reports a lock sidecar that could not be taken for a reason other than
// another worker holding it.
type LockError struct {
	Path string
	Err  error
}

func (e *LockError) Error() string {
	return fmt.Sprintf("failed to lock %s: %v", e.Path, e.Err)
}

func (e *LockError) Unwrap() error {
	return e.Err
}

// Search lists dir in name order and returns the first job document whose lock could
// be taken without blocking. A nil claim and nil error mean nothing was available.
// Documents whose lock fails are skipped; when nothing was claimed the first such
// failure is returned as a *LockError.
func Search(dir string) (*Claim, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var lockErr error
	for _, e := range entries {
		if !e.Type().IsRegular() || !isJobDocument(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		lock := flock.New(path + ".lock")
		ok, err := lock.TryLock()
		if err != nil {
			if lockErr == nil {
				lockErr = &LockError{Path: lock.Path(), Err: err}
			}
			continue
		}
		if !ok {
			// held by another worker
			continue
		}

		c := &Claim{Path: path, lock: lock}
		// The document may have been archived between listing and locking.
		if _, err := os.Stat(path); err != nil {
			_ = c.Release()
			continue
		}
		return c, nil
	}
	return nil, lockErr
}

// archiveName returns <path>.old.<n>, starting n at the number of existing
// <name>.old* files next to path and increasing it until the name is free.
func archiveName(path string) (string, error) {
	dir, base := filepath.Split(path)
	entries, err := os.ReadDir(filepath.Clean(dir))
	if err != nil {
		return "", err
	}
	n := 0
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), base+".old") {
			n++
		}
	}
	for {
		candidate := path + ".old." + strconv.Itoa(n)
		if _, err := os.Lstat(candidate); os.IsNotExist(err) {
			return candidate, nil
		}
		n++
	}
}

// Archive renames the claimed document to its archive name and releases the claim.
// The claim is released even when the rename fails.
func (c *Claim) Archive() (string, error) {
	dest, err := archiveName(c.Path)
	if err == nil {
		err = os.Rename(c.Path, dest)
	}
	if relErr := c.Release(); relErr != nil && err == nil {
		err = relErr
	}
	if err != nil {
		return "", fmt.Errorf("failed to archive %s: %w", c.Name(), err)
	}
	return dest, nil
}
