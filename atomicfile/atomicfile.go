// Package atomicfile implements unique destination naming and atomic
// rename-on-success semantics for the receiver side of a transfer: the
// visible final path either does not exist, or holds a fully verified
// file, never a partial one.
package atomicfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// ErrDirectoryTraversal indicates a file name contains path components,
// which is never legal for a FileHeader.Name received off the wire.
var ErrDirectoryTraversal = errors.New("file name contains directory traversal")

// PartSuffix is appended to the uniquified destination name while a
// transfer is in flight.
const PartSuffix = ".part"

// ValidateName rejects any name that is not a plain basename: no
// separators, no "..", nothing that could escape outputDir.
func ValidateName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: empty name", ErrDirectoryTraversal)
	}

	cleaned := filepath.Base(filepath.Clean(name))
	if cleaned != name || cleaned == "." || cleaned == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrDirectoryTraversal, name)
	}

	return cleaned, nil
}

// UniquePath returns name if it does not already exist under dir,
// otherwise "stem (k)ext" for the smallest integer k >= 1 that does not
// collide with an existing file.
func UniquePath(dir, name string) (string, error) {
	safeName, err := ValidateName(name)
	if err != nil {
		return "", err
	}

	candidate := filepath.Join(dir, safeName)
	if _, err := os.Stat(candidate); errors.Is(err, os.ErrNotExist) {
		return candidate, nil
	}

	ext := filepath.Ext(safeName)
	stem := strings.TrimSuffix(safeName, ext)

	for k := 1; ; k++ {
		alt := fmt.Sprintf("%s (%d)%s", stem, k, ext)
		candidate = filepath.Join(dir, alt)
		if _, err := os.Stat(candidate); errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		}
	}
}

// Destination bundles the final and temporary paths chosen for one
// incoming transfer, both derived from the same uniquified stem so they
// never collide with an unrelated concurrent transfer targeting the same
// directory and source name.
type Destination struct {
	Final string
	Part  string
}

// PrepareDestination ensures dir exists and computes a Destination for
// name, uniquified independently against existing final files.
func PrepareDestination(dir, name string) (Destination, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Destination{}, fmt.Errorf("ensure output directory: %w", err)
	}

	final, err := UniquePath(dir, name)
	if err != nil {
		return Destination{}, err
	}

	part, err := uniquePartPath(final)
	if err != nil {
		return Destination{}, err
	}

	return Destination{Final: final, Part: part}, nil
}

// uniquePartPath finds a ".part" path next to final that isn't already
// in use by some other in-flight transfer.
func uniquePartPath(final string) (string, error) {
	base := final + PartSuffix
	if _, err := os.Stat(base); errors.Is(err, os.ErrNotExist) {
		return base, nil
	}

	for k := 1; ; k++ {
		alt := fmt.Sprintf("%s.%d%s", final, k, PartSuffix)
		if _, err := os.Stat(alt); errors.Is(err, os.ErrNotExist) {
			return alt, nil
		}
	}
}

// Commit renames the temp part file to its final destination. The final
// path must not already exist; UniquePath guarantees this by construction.
func (d Destination) Commit() error {
	if err := os.Rename(d.Part, d.Final); err != nil {
		return fmt.Errorf("rename temp file to final destination: %w", err)
	}
	return nil
}

// Cleanup removes the temp part file, ignoring a not-exist error. It is
// called from every failure path in the receiver so a failed transfer
// never leaves a .part file behind.
func (d Destination) Cleanup() {
	if err := os.Remove(d.Part); err != nil && !errors.Is(err, os.ErrNotExist) {
		logrus.WithFields(logrus.Fields{
			"function": "Cleanup",
			"path":     d.Part,
		}).WithError(err).Warn("failed to remove temp file during cleanup")
	}
}
