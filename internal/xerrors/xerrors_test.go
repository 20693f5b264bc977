package xerrors

import (
	"errors"
	"runtime"
	"strings"
	"testing"
)

var errSentinel = errors.New("sentinel")

type stackCarrier interface{ StackPCs() []uintptr }

func stackContains(pcs []uintptr, substr string) bool {
	frames := runtime.CallersFrames(pcs)
	for {
		fr, more := frames.Next()
		if strings.Contains(fr.Function, substr) {
			return true
		}
		if !more {
			return false
		}
	}
}

func TestNew_MessageAndStack(t *testing.T) {
	err := New("store unavailable")
	if err.Error() != "store unavailable" {
		t.Fatalf("Error() = %q", err.Error())
	}
	var sc stackCarrier
	if !errors.As(err, &sc) {
		t.Fatal("New should carry a stack")
	}
	if !stackContains(sc.StackPCs(), "TestNew_MessageAndStack") {
		t.Fatal("stack should start at the caller")
	}
}

func TestNewf(t *testing.T) {
	err := Newf("limiter %q not configured", "auth")
	if err.Error() != `limiter "auth" not configured` {
		t.Fatalf("Error() = %q", err.Error())
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "x") != nil || Wrapf(nil, "x %d", 1) != nil {
		t.Fatal("wrapping nil must return nil")
	}

	err := Wrap(errSentinel, "issue csrf token")
	if err.Error() != "issue csrf token: sentinel" {
		t.Fatalf("Error() = %q", err.Error())
	}
	if !errors.Is(err, errSentinel) {
		t.Fatal("wrapped error should match sentinel")
	}

	var pc interface{ PC() uintptr }
	if !errors.As(err, &pc) || pc.PC() == 0 {
		t.Fatal("Wrap should record a call-site pc")
	}
	fn := runtime.FuncForPC(pc.PC())
	if fn == nil || !strings.Contains(fn.Name(), "TestWrap") {
		t.Fatalf("pc points at %v, want TestWrap", fn)
	}
}

func TestWrapf(t *testing.T) {
	err := Wrapf(errSentinel, "hit %s", "ratelimit:auth")
	if err.Error() != "hit ratelimit:auth: sentinel" {
		t.Fatalf("Error() = %q", err.Error())
	}
}

func TestEnsureTrace(t *testing.T) {
	if EnsureTrace(nil) != nil {
		t.Fatal("nil in, nil out")
	}

	plain := EnsureTrace(errSentinel)
	var sc stackCarrier
	if !errors.As(plain, &sc) {
		t.Fatal("EnsureTrace should add a stack to a plain error")
	}

	already := New("boom")
	if EnsureTrace(already) != already {
		t.Fatal("EnsureTrace must not double-wrap a stacked error")
	}

	viaWrap := Wrap(already, "ctx")
	if EnsureTrace(viaWrap) != viaWrap {
		t.Fatal("EnsureTrace should find a stack deeper in the chain")
	}
}

func TestWithStack(t *testing.T) {
	if WithStack(nil) != nil {
		t.Fatal("nil in, nil out")
	}
	err := WithStack(errSentinel)
	if !errors.Is(err, errSentinel) {
		t.Fatal("WithStack should preserve the chain")
	}
}
