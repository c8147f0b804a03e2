package platformx

import "testing"

func TestWarnIfNotFullySupported(t *testing.T) {
	// Only checks that the platform has an implementation.
	WarnIfNotFullySupported()
}
