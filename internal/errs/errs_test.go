package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOfFollowsWrapping(t *testing.T) {
	inUse := New(KindContention, "report is in use")
	wrapped := Wrapf(fmt.Errorf("%w: report 7", inUse), "change status")

	if !errors.Is(wrapped, inUse) {
		t.Fatalf("errors.Is(wrapped, inUse) = false")
	}
	if got := KindOf(wrapped); got != KindContention {
		t.Fatalf("KindOf() = %q, want %q", got, KindContention)
	}
	if !IsRetryable(wrapped) {
		t.Fatalf("IsRetryable() = false, want true")
	}
}

func TestKindOfUnclassified(t *testing.T) {
	if got := KindOf(errors.New("boom")); got != KindUnknown {
		t.Fatalf("KindOf() = %q, want empty", got)
	}
	if IsRetryable(New(KindInvariant, "closed")) {
		t.Fatalf("IsRetryable(invariant) = true, want false")
	}
}

func TestErrorChainStrings(t *testing.T) {
	root := errors.New("root")
	err := Wrap(Wrap(root, "inner"), "outer")

	chain := ErrorChainStrings(err)
	if len(chain) != 3 {
		t.Fatalf("len(chain) = %d, want 3: %v", len(chain), chain)
	}
	if chain[2] != "root" {
		t.Fatalf("chain[2] = %q, want root", chain[2])
	}

	joined := ErrorChainStrings(errors.Join(errors.New("a"), errors.New("b")))
	if len(joined) != 3 {
		t.Fatalf("len(joined) = %d, want 3: %v", len(joined), joined)
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, "x") != nil || Wrapf(nil, "x %d", 1) != nil || WithStack(nil) != nil {
		t.Fatalf("nil input must stay nil")
	}
}
