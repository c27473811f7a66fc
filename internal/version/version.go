// ABOUTME: Version information for the noise panel
// ABOUTME: Reported in the control handshake and the -version flag
package version

// Version is overridden at build time with -ldflags "-X .../internal/version.Version=..."
var Version = "0.3.0"

const (
	// Product is the software name
	Product = "SMACC Noise"

	// Manufacturer identifies the lab that maintains it
	Manufacturer = "SMACC"
)

// String returns the product and version, e.g. "SMACC Noise 0.3.0"
func String() string {
	return Product + " " + Version
}
