package validation

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/powersafefs/fsguard/internal/guard"
)

const (
	// MinNameLength is the minimum length for a volume name
	MinNameLength = 2
	// MaxNameLength is the maximum length for a volume name
	MaxNameLength = 65
)

// dockerNamePattern matches Docker's naming requirements:
// Must start with alphanumeric, followed by alphanumeric, underscore, dot, or hyphen
// See: https://github.com/moby/moby/blob/master/daemon/names/names.go
var dockerNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

// ValidateVolumeName validates that a volume name meets the Docker naming
// rules and length limits. Volume names double as directory names on the
// guarded device, so the pattern also keeps path separators out.
func ValidateVolumeName(name string) error {
	if len(name) < MinNameLength {
		return fmt.Errorf("volume name must be at least %d characters", MinNameLength)
	}

	if len(name) > MaxNameLength {
		return fmt.Errorf("volume name must be at most %d characters", MaxNameLength)
	}

	if !dockerNamePattern.MatchString(name) {
		return fmt.Errorf("volume name must start with alphanumeric and contain only alphanumeric, underscore, dot, or hyphen characters")
	}

	return nil
}

// ValidateMode validates a guard mode name as used in config files and flags
func ValidateMode(mode string) error {
	if _, err := guard.ParseMode(mode); err != nil {
		return err
	}
	return nil
}

// ValidateDevicePath validates that a device path is an absolute path under
// /dev. The udisks and syscall backends both address devices by node path.
func ValidateDevicePath(path string) error {
	if !filepath.IsAbs(path) {
		return fmt.Errorf("device path %q must be absolute", path)
	}
	if !strings.HasPrefix(filepath.Clean(path), "/dev/") {
		return fmt.Errorf("device path %q must be under /dev", path)
	}
	return nil
}
