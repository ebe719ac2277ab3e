package security

import "testing"

func TestFilterValidate(t *testing.T) {
	cases := []struct {
		name    string
		filter  Filter
		wantErr bool
	}{
		{
			name:   "allow_default_no_rules",
			filter: Filter{DefaultAction: ActionAllow},
		},
		{
			name: "deny_listed_syscalls",
			filter: Filter{
				DefaultAction: ActionAllow,
				Rules: []FilterRule{
					{Syscall: "clone", Action: ActionKill},
					{Syscall: "chmod", Action: ActionErrno, Errno: 1},
				},
			},
		},
		{
			name:    "unknown_default_action",
			filter:  Filter{DefaultAction: "panic"},
			wantErr: true,
		},
		{
			name:    "errno_default_action",
			filter:  Filter{DefaultAction: ActionErrno},
			wantErr: true,
		},
		{
			name: "rule_missing_syscall",
			filter: Filter{
				DefaultAction: ActionAllow,
				Rules:         []FilterRule{{Action: ActionKill}},
			},
			wantErr: true,
		},
		{
			name: "rule_unknown_action",
			filter: Filter{
				DefaultAction: ActionAllow,
				Rules:         []FilterRule{{Syscall: "clone", Action: "trace"}},
			},
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.filter.Validate()
			if tc.wantErr && err == nil {
				t.Fatalf("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
