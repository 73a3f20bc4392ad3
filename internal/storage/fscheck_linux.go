//go:build linux

package storage

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Remote superblock magics; linux/magic.h.
var remoteMagic = map[uint32]string{
	unix.NFS_SUPER_MAGIC:  "nfs",
	unix.CIFS_SUPER_MAGIC: "cifs",
	unix.SMB_SUPER_MAGIC:  "smbfs",
	unix.SMB2_SUPER_MAGIC: "smb2",
	unix.V9FS_MAGIC:       "9p",
	unix.AFS_SUPER_MAGIC:  "afs",
	unix.CEPH_SUPER_MAGIC: "ceph",
}

func statMount(dir string) (Mount, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return Mount{}, fmt.Errorf("statfs: %w", err)
	}
	// f_type is a 32-bit magic whatever width the arch gives the field.
	return mountForMagic(uint32(st.Type)), nil
}

func mountForMagic(magic uint32) Mount {
	if name, ok := remoteMagic[magic]; ok {
		return Mount{Type: name, Remote: true}
	}
	return Mount{Type: fmt.Sprintf("0x%x", magic)}
}
