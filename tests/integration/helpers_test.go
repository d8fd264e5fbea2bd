//go:build integration

package integration

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/powersafefs/fsguard/internal/guard"
)

// uniqueVolumeName generates a unique volume name for a test
func uniqueVolumeName(t *testing.T) string {
	return fmt.Sprintf("test-%s-%d", t.Name(), time.Now().UnixNano()%10000)
}

// createVolume creates a volume and registers its cleanup
func createVolume(t *testing.T, name string) {
	t.Helper()
	require.NoError(t, testClient.Create(name, nil), "create volume %s", name)
	t.Cleanup(func() {
		_ = testClient.Remove(name)
	})
}

// restoreNormalMode registers a cleanup that puts the guard back into
// normal mode, for tests that drive lifecycle transitions.
func restoreNormalMode(t *testing.T) {
	t.Cleanup(func() {
		testGuard.SetMode(guard.Normal)
	})
}
