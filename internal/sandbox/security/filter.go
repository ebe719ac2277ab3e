// Package security defines the syscall filter configuration applied to
// sandboxed processes.
package security

import "fmt"

// FilterAction is what happens when a filtered syscall is invoked.
type FilterAction string

const (
	// ActionAllow lets the syscall through.
	ActionAllow FilterAction = "allow"
	// ActionKill kills the offending process.
	ActionKill FilterAction = "kill"
	// ActionErrno fails the syscall with the rule's errno value.
	ActionErrno FilterAction = "errno"
)

// FilterRule maps one syscall name to an action.
type FilterRule struct {
	Syscall string       `yaml:"syscall" json:"syscall"`
	Action  FilterAction `yaml:"action" json:"action"`
	// Errno is used only when Action is ActionErrno.
	Errno uint `yaml:"errno" json:"errno"`
}

// Filter is an in-memory seccomp filter description. It is part of the run
// configuration and is installed by the in-namespace helper just before exec.
type Filter struct {
	DefaultAction FilterAction `yaml:"defaultAction" json:"defaultAction"`
	Rules         []FilterRule `yaml:"rules" json:"rules"`
}

// Validate checks actions and syscall names are well formed.
func (f *Filter) Validate() error {
	if err := validateAction(f.DefaultAction); err != nil {
		return fmt.Errorf("default action: %w", err)
	}
	if f.DefaultAction == ActionErrno {
		return fmt.Errorf("default action cannot be %q", ActionErrno)
	}
	for _, rule := range f.Rules {
		if rule.Syscall == "" {
			return fmt.Errorf("rule requires a syscall name")
		}
		if err := validateAction(rule.Action); err != nil {
			return fmt.Errorf("rule %q: %w", rule.Syscall, err)
		}
	}
	return nil
}

func validateAction(action FilterAction) error {
	switch action {
	case ActionAllow, ActionKill, ActionErrno:
		return nil
	default:
		return fmt.Errorf("unsupported action: %q", action)
	}
}
