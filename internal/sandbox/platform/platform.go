// Package platform selects the execution strategy available on the host.
package platform

import "runtime"

// Strategy is the isolation capability class of the host.
type Strategy string

const (
	// FullIsolation runs the child inside unprivileged user, mount, PID,
	// IPC, UTS and network namespaces with a private filesystem view.
	FullIsolation Strategy = "full_isolation"
	// DegradedSupervision offers only process-group supervision and
	// resource measurement, with no filesystem or namespace isolation.
	DegradedSupervision Strategy = "degraded_supervision"
	// Unsupported means no execution strategy exists for this host.
	Unsupported Strategy = "unsupported"
)

// Select returns the strategy for the current host. Detection is pure OS
// dispatch: namespace support claimed here can still fail at use time (for
// example unprivileged user namespaces disabled by policy), which the engine
// reports as a namespace creation failure.
func Select() Strategy {
	switch runtime.GOOS {
	case "linux":
		return FullIsolation
	case "darwin":
		return DegradedSupervision
	default:
		return Unsupported
	}
}

// Secure reports whether the strategy provides filesystem and namespace
// isolation, not just supervision.
func (s Strategy) Secure() bool {
	return s == FullIsolation
}
