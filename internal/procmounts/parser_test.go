package procmounts

import (
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	input := strings.Join([]string{
		"/dev/mmcblk0p1 /mnt/sdcard vfat rw,relatime 0 0",
		"tmpfs /run tmpfs rw,nosuid,nodev 0 0",
		"/dev/sda1 /media/usb\\040drive ext4 rw 0 0",
		"malformed line",
		"",
	}, "\n")

	mounts, err := parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if len(mounts) != 3 {
		t.Fatalf("parsed %d entries, want 3", len(mounts))
	}

	first := mounts[0]
	if first.Device != "/dev/mmcblk0p1" || first.MountPoint != "/mnt/sdcard" || first.FSType != "vfat" {
		t.Errorf("unexpected first entry: %+v", first)
	}

	// Escaped space in the mount point must be decoded
	if got := mounts[2].MountPoint; got != "/media/usb drive" {
		t.Errorf("MountPoint = %q, want %q", got, "/media/usb drive")
	}
}

func TestIsMountPoint(t *testing.T) {
	// The root filesystem is always present in /proc/mounts
	mounted, err := IsMountPoint("/")
	if err != nil {
		t.Fatalf("IsMountPoint(/): %v", err)
	}
	if !mounted {
		t.Error("IsMountPoint(/) = false, want true")
	}

	mounted, err = IsMountPoint(t.TempDir())
	if err != nil {
		t.Fatalf("IsMountPoint: %v", err)
	}
	if mounted {
		t.Error("IsMountPoint reported a plain directory as mounted")
	}
}

func TestUnescapeField(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"/mnt/plain", "/mnt/plain"},
		{"/mnt/with\\040space", "/mnt/with space"},
		{"/mnt/tab\\011here", "/mnt/tab\there"},
		{"/mnt/back\\134slash", "/mnt/back\\slash"},
	}

	for _, tt := range tests {
		if got := unescapeField(tt.input); got != tt.want {
			t.Errorf("unescapeField(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
