//go:build linux

package capture

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// probeDevice checks that /dev/videoN exists and is readable so a
// permission problem is not reported as a generic open failure.
func probeDevice(deviceID int) error {
	path := fmt.Sprintf("/dev/video%d", deviceID)

	err := unix.Access(path, unix.R_OK)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM):
		return fmt.Errorf("%w: %s", ErrPermissionDenied, path)
	case errors.Is(err, unix.ENOENT):
		return fmt.Errorf("%w: %s does not exist", ErrDeviceUnavailable, path)
	default:
		return fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, path, err)
	}
}
