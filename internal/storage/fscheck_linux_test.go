//go:build linux

package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func TestMountForMagic(t *testing.T) {
	t.Parallel()

	cases := []struct {
		magic uint32
		want  Mount
	}{
		{unix.NFS_SUPER_MAGIC, Mount{Type: "nfs", Remote: true}},
		{unix.CIFS_SUPER_MAGIC, Mount{Type: "cifs", Remote: true}},
		{unix.V9FS_MAGIC, Mount{Type: "9p", Remote: true}},
		{unix.EXT4_SUPER_MAGIC, Mount{Type: "0xef53"}},
		{unix.TMPFS_MAGIC, Mount{Type: "0x1021994"}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, mountForMagic(tc.magic))
	}
}
