package main

import (
	"testing"

	"taskbox/internal/sandbox/spec"
)

func TestTargetCommand(t *testing.T) {
	cases := []struct {
		name       string
		command    string
		positional []string
		wantExec   string
		wantArgs   []string
		wantErr    bool
	}{
		{
			name:       "positional",
			positional: []string{"/bin/echo", "a", "b"},
			wantExec:   "/bin/echo",
			wantArgs:   []string{"a", "b"},
		},
		{
			name:     "command_string",
			command:  `/bin/sh -c "echo hi"`,
			wantExec: "/bin/sh",
			wantArgs: []string{"-c", "echo hi"},
		},
		{
			name:    "neither",
			wantErr: true,
		},
		{
			name:       "both",
			command:    "/bin/true",
			positional: []string{"/bin/false"},
			wantErr:    true,
		},
		{
			name:    "empty_command",
			command: "   ",
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			exec, args, err := targetCommand(tc.command, tc.positional)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if exec != tc.wantExec {
				t.Fatalf("executable: got %q, want %q", exec, tc.wantExec)
			}
			if len(args) != len(tc.wantArgs) {
				t.Fatalf("args: got %v, want %v", args, tc.wantArgs)
			}
			for i := range args {
				if args[i] != tc.wantArgs[i] {
					t.Fatalf("args: got %v, want %v", args, tc.wantArgs)
				}
			}
		})
	}
}

func TestMountFlagsSet(t *testing.T) {
	var m mountFlags
	if err := m.Set("/usr:/usr:ro"); err != nil {
		t.Fatalf("set ro mount: %v", err)
	}
	if err := m.Set("/tmp/work:/box"); err != nil {
		t.Fatalf("set rw mount: %v", err)
	}
	if err := m.Set("/tmp/data:/data:rw"); err != nil {
		t.Fatalf("set explicit rw mount: %v", err)
	}

	want := []spec.MountRule{
		{Source: "/usr", Target: "/usr", ReadOnly: true},
		{Source: "/tmp/work", Target: "/box"},
		{Source: "/tmp/data", Target: "/data"},
	}
	if len(m) != len(want) {
		t.Fatalf("got %d rules, want %d", len(m), len(want))
	}
	for i := range want {
		if m[i] != want[i] {
			t.Fatalf("rule %d: got %+v, want %+v", i, m[i], want[i])
		}
	}
}

func TestMountFlagsSetRejectsMalformed(t *testing.T) {
	for _, value := range []string{"/usr", "/usr:/usr:bad", "a:b:c:d"} {
		var m mountFlags
		if err := m.Set(value); err == nil {
			t.Fatalf("accepted malformed mount %q", value)
		}
	}
}

func TestEnvFlagsSet(t *testing.T) {
	var e envFlags
	if err := e.Set("PATH=/bin"); err != nil {
		t.Fatalf("set env: %v", err)
	}
	if err := e.Set("EMPTY="); err != nil {
		t.Fatalf("set empty value: %v", err)
	}
	if err := e.Set("NOEQUALS"); err == nil {
		t.Fatalf("accepted env entry without =")
	}
	if len(e) != 2 || e[0] != "PATH=/bin" || e[1] != "EMPTY=" {
		t.Fatalf("entries: got %v", e)
	}
}
