//go:build integration

package integration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMount_NonExistent(t *testing.T) {
	_, err := testClient.Mount("nonexistent-volume-12345", "test-container-1")
	assert.Error(t, err, "mount nonexistent volume should fail")
}

func TestMount_Lifecycle(t *testing.T) {
	name := uniqueVolumeName(t)
	createVolume(t, name)

	mountpoint, err := testClient.Mount(name, "container-1")
	require.NoError(t, err)
	require.NotEmpty(t, mountpoint)

	// The mountpoint is a usable directory on the device
	stat, err := os.Stat(mountpoint)
	require.NoError(t, err)
	assert.True(t, stat.IsDir())
	assert.Equal(t, filepath.Join(testDevice.MountPath(), name), mountpoint)

	path, err := testClient.Path(name)
	require.NoError(t, err)
	assert.Equal(t, mountpoint, path)

	assert.Equal(t, 1, testGuard.PendingMounts(), "one token held per caller")

	require.NoError(t, testClient.Unmount(name, "container-1"))
	assert.Zero(t, testGuard.PendingMounts())
}

func TestMount_AlreadyMounted(t *testing.T) {
	name := uniqueVolumeName(t)
	createVolume(t, name)

	mountpoint1, err := testClient.Mount(name, "container-1")
	require.NoError(t, err)

	// Mount again with same container ID (should be idempotent)
	mountpoint2, err := testClient.Mount(name, "container-1")
	require.NoError(t, err)
	assert.Equal(t, mountpoint1, mountpoint2, "remount should return same path")
	assert.Equal(t, 1, testGuard.PendingMounts(), "repeat mount must not stack tokens")

	// Cleanup
	require.NoError(t, testClient.Unmount(name, "container-1"))
}

func TestMount_MultipleCallers(t *testing.T) {
	name := uniqueVolumeName(t)
	createVolume(t, name)

	_, err := testClient.Mount(name, "container-1")
	require.NoError(t, err)
	_, err = testClient.Mount(name, "container-2")
	require.NoError(t, err)
	assert.Equal(t, 2, testGuard.PendingMounts())

	require.NoError(t, testClient.Unmount(name, "container-1"))
	require.NoError(t, testClient.Unmount(name, "container-2"))
	assert.Zero(t, testGuard.PendingMounts())
}

func TestUnmount_UnknownCaller(t *testing.T) {
	name := uniqueVolumeName(t)
	createVolume(t, name)

	err := testClient.Unmount(name, "never-mounted")
	assert.Error(t, err, "unmount without a prior mount should fail")
}

func TestCapabilities(t *testing.T) {
	caps, err := testClient.Capabilities()
	require.NoError(t, err)
	assert.Equal(t, "local", caps.Scope)
}
