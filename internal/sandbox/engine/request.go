package engine

import "taskbox/internal/sandbox/spec"

// InitRequest is the wire contract between the engine and the sandbox-init
// helper. It is encoded as JSON on the helper's stdin before any stream
// redirection happens.
type InitRequest struct {
	Config spec.Config `json:"config"`
	// ScratchRoot is the host directory the helper stages the sandbox
	// filesystem in. Owned by the engine; the helper never removes it.
	ScratchRoot string `json:"scratchRoot"`
	// EnableNamespaces tells the helper whether it is running inside a new
	// namespace set. Without namespaces the helper refuses any mount work.
	EnableNamespaces bool `json:"enableNamespaces"`
}

// Helper exit codes. The helper writes a HelperErrPrefix-tagged message to
// its original stderr (kept on a close-on-exec duplicate) and exits with one
// of these when pre-exec setup fails; the engine maps them back onto the
// setup error taxonomy. Codes were picked above the shell's 126/127
// conventions to stay out of the way of common program exit codes.
const (
	HelperExitInternal = 123
	HelperExitPivot    = 124
	HelperExitMount    = 125
	HelperExitNoExec   = 126
	HelperExitNotFound = 127
)

// HelperErrPrefix tags helper diagnostics so the engine can tell a helper
// setup failure apart from a sandboxed program that happens to exit with
// the same code.
const HelperErrPrefix = "sandbox-init: "
