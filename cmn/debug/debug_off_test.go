//go:build !debug

package debug

import "testing"

func TestONFalseByDefault(t *testing.T) {
	if ON() {
		t.Fatal("ON() = true, want false without -tags debug")
	}
}

func TestAssertFailureIsNoOpByDefault(t *testing.T) {
	Assert(false, "must not panic outside -tags debug")
}
