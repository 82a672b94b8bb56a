package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lsblkOutput = `{
  "blockdevices": [
    {"name":"loop0","path":"/dev/loop0","size":67108864,"type":"loop","model":null,"fstype":"squashfs","mountpoint":"/snap/core/1"},
    {"name":"nvme0n1","path":"/dev/nvme0n1","size":512110190592,"type":"disk","model":"WD Blue SN570","fstype":null,"mountpoint":null,
     "children":[
       {"name":"nvme0n1p1","path":"/dev/nvme0n1p1","size":536870912,"type":"part","model":null,"fstype":"vfat","mountpoint":"/boot/efi"},
       {"name":"nvme0n1p2","path":"/dev/nvme0n1p2","size":511571066880,"type":"part","model":null,"fstype":"ext4","mountpoint":"/"}
     ]},
    {"name":"sda","path":"/dev/sda","size":"15631122432","type":"disk","model":"Cruzer","fstype":null,"mountpoint":null}
  ]
}`

func TestParseLsblk(t *testing.T) {
	layout, err := ParseLsblk([]byte(lsblkOutput))
	require.NoError(t, err)

	require.Len(t, layout.Disks, 2)
	assert.Equal(t, DiskRow{Index: 0, Model: "WD Blue SN570", Size: 512110190592, Path: "/dev/nvme0n1"}, layout.Disks[0])
	assert.Equal(t, DiskRow{Index: 1, Model: "Cruzer", Size: 15631122432, Path: "/dev/sda"}, layout.Disks[1])
	assert.Equal(t, 0, layout.SystemDisk)

	require.Len(t, layout.Volumes, 2)
	assert.Equal(t, "vfat", layout.Volumes[0].Filesystem)
	assert.Equal(t, "/", layout.Volumes[1].Mountpoint)
	assert.Equal(t, 0, layout.Volumes[1].DiskIndex)
}

func TestParseLsblkInvalid(t *testing.T) {
	_, err := ParseLsblk([]byte("lsblk: unknown column"))
	assert.Error(t, err)
}
