package platform

import (
	"runtime"
	"testing"
)

func TestSelectMatchesHost(t *testing.T) {
	strategy := Select()
	switch runtime.GOOS {
	case "linux":
		if strategy != FullIsolation {
			t.Fatalf("on linux: got %q", strategy)
		}
	case "darwin":
		if strategy != DegradedSupervision {
			t.Fatalf("on darwin: got %q", strategy)
		}
	default:
		if strategy != Unsupported {
			t.Fatalf("on %s: got %q", runtime.GOOS, strategy)
		}
	}
}

func TestSecure(t *testing.T) {
	if !FullIsolation.Secure() {
		t.Fatalf("full isolation must report secure")
	}
	if DegradedSupervision.Secure() {
		t.Fatalf("degraded supervision must not report secure")
	}
	if Unsupported.Secure() {
		t.Fatalf("unsupported must not report secure")
	}
}
