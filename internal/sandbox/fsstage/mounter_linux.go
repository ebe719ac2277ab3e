//go:build linux

package fsstage

import (
	"errors"

	"golang.org/x/sys/unix"
)

// SystemMounter performs real mount(2) operations. It must run inside a
// private mount namespace; nothing it mounts may be visible on the host.
type SystemMounter struct{}

func (SystemMounter) MountTmpfs(target, data string) error {
	return unix.Mount("tmpfs", target, "tmpfs", 0, data)
}

func (SystemMounter) BindMount(source, target string) error {
	return unix.Mount(source, target, "", unix.MS_BIND|unix.MS_REC, "")
}

func (SystemMounter) RemountReadOnly(target string) error {
	return unix.Mount("", target, "",
		unix.MS_REMOUNT|unix.MS_RDONLY|unix.MS_BIND|unix.MS_NOSUID|unix.MS_NODEV, "")
}

func (SystemMounter) MountProc(target string) error {
	err := unix.Mount("proc", target, "proc", 0, "")
	if errors.Is(err, unix.EBUSY) {
		return nil
	}
	return err
}

func (SystemMounter) Unmount(target string) error {
	err := unix.Unmount(target, unix.MNT_DETACH)
	if errors.Is(err, unix.EINVAL) || errors.Is(err, unix.ENOENT) {
		// Not a mount point (staging failed before the mount landed) or
		// already gone. Teardown stays idempotent.
		return nil
	}
	return err
}
