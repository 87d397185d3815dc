//go:build !linux

package capture

// probeDevice is a no-op where the OS mediates camera permission itself;
// a denial then surfaces as an open failure.
func probeDevice(deviceID int) error {
	return nil
}
