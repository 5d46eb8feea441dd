package vnic

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoMetadata is returned when a decision needs instance metadata the
// snapshot does not carry, such as the shape. It aborts the whole pass.
var ErrNoMetadata = errors.New("instance metadata has no shape information")

// AmbiguousCorrelationError is returned when the devices sharing a VNIC MAC
// can't be merged into one interface
type AmbiguousCorrelationError struct {
	MAC        string
	Candidates []string
	Reason     string
}

func (e *AmbiguousCorrelationError) Error() string {
	return fmt.Sprintf("ambiguous devices for MAC %s [%s]: %s", e.MAC, strings.Join(e.Candidates, ", "), e.Reason)
}

// IsAmbiguousCorrelationError returns true if err is an ambiguous correlation
func IsAmbiguousCorrelationError(err error) bool {
	var ambiguous *AmbiguousCorrelationError
	return errors.As(err, &ambiguous)
}

// NoDeviceError is returned when no kernel device can carry a VNIC that has
// to be configured
type NoDeviceError struct {
	MAC    string
	VNICID string
}

func (e *NoDeviceError) Error() string {
	return fmt.Sprintf("no device found for VNIC %s (MAC %s)", e.VNICID, e.MAC)
}

// IsNoDeviceError returns true if err is a NoDeviceError
func IsNoDeviceError(err error) bool {
	var noDevice *NoDeviceError
	return errors.As(err, &noDevice)
}

// MaxInterfaceNameLength is IFNAMSIZ minus the terminating null byte
const MaxInterfaceNameLength = 15

// validateInterfaceName rejects names the kernel would refuse for the
// macvlan and vlan devices derived from a physical device name
func validateInterfaceName(name, context string) error {
	if name == "" {
		return fmt.Errorf("%s name is empty", context)
	}
	if len(name) > MaxInterfaceNameLength {
		return fmt.Errorf("%s name %q exceeds maximum length of %d characters (got %d)",
			context, name, MaxInterfaceNameLength, len(name))
	}
	return nil
}
