// ABOUTME: Error values reported by the playback engine
// ABOUTME: Re-exports the sentinel errors of the noise and output packages
package playback

import (
	"errors"
	"fmt"

	"github.com/remrama/smacc-go/pkg/audio/output"
	"github.com/remrama/smacc-go/pkg/noise"
)

var (
	// ErrInvalidParameter is returned for unknown colors and out-of-range volumes
	ErrInvalidParameter = noise.ErrInvalidParameter

	// ErrDeviceUnavailable is returned when the output device cannot be opened
	ErrDeviceUnavailable = output.ErrDeviceUnavailable

	// ErrStreamFault is carried by StreamFault events when a device dies mid-session
	ErrStreamFault = output.ErrStreamFault
)

// asUnavailable makes sure a failed open or start reports ErrDeviceUnavailable
func asUnavailable(device string, err error) error {
	if errors.Is(err, ErrDeviceUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %q: %w", ErrDeviceUnavailable, device, err)
}
