package testutils

import (
	"context"
	"testing"
	"time"
)

var (
	ConnectTimeout = 5 * time.Second
)

// WithTimeout polls f until it returns an empty string, failing the test with the last
// returned message once ConnectTimeout expires.
func WithTimeout(t *testing.T, f func() string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), ConnectTimeout)
	defer cancel()
	lastErr := ""
	for {
		select {
		case <-ctx.Done():
			t.Fatalf("did not reach expected state after %v: %s", ConnectTimeout, lastErr)
		case <-time.After(10 * time.Millisecond):
			lastErr = f()
			if lastErr == "" {
				return
			}
		}
	}
}
