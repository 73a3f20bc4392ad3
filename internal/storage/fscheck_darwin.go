//go:build darwin

package storage

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func statMount(dir string) (Mount, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return Mount{}, fmt.Errorf("statfs: %w", err)
	}
	return Mount{
		Type:   unix.ByteSliceToString(st.Fstypename[:]),
		Remote: st.Flags&unix.MNT_LOCAL == 0,
	}, nil
}
