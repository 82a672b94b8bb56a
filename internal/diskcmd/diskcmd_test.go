package diskcmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diskwipe/internal/catalog"
	"diskwipe/internal/runner"
	"diskwipe/internal/wipe"
)

func TestWindowsPasses(t *testing.T) {
	b := &Builder{Platform: Windows}
	drive := catalog.Drive{ID: 2}
	plan := wipe.Plan(wipe.Standard, wipe.ExFAT)

	first := b.Pass(drive, plan[0])
	assert.Equal(t, "diskpart", first.Name)
	assert.Equal(t, []string{"/s", runner.ScriptPathArg}, first.Args)
	require.NotNil(t, first.Script)
	assert.Equal(t, "select disk 2\nclean all\nexit\n", first.Script.Body)
	assert.Equal(t, "overwrite disk 2 pass 1/4", first.Label)

	last := b.Pass(drive, plan[3])
	require.NotNil(t, last.Script)
	assert.Equal(t,
		"select disk 2\nclean\ncreate partition primary\nactive\nformat fs=exfat quick\nassign\nexit\n",
		last.Script.Body)
}

func TestLinuxPasses(t *testing.T) {
	b := &Builder{Platform: Linux}
	drive := catalog.Drive{ID: 1, Path: "/dev/sdb"}
	plan := wipe.Plan(wipe.RandomN(1), wipe.Ext4)

	over := b.Pass(drive, plan[0])
	assert.Equal(t, "shred", over.Name)
	assert.Equal(t, []string{"--iterations=1", "--force", "/dev/sdb"}, over.Args)
	assert.Nil(t, over.Script)

	format := b.Pass(drive, plan[1])
	assert.Equal(t, "sh", format.Name)
	require.NotNil(t, format.Script)
	assert.Contains(t, format.Script.Body, "parted --script '/dev/sdb' mklabel msdos mkpart primary 1MiB 100% set 1 boot on\n")
	assert.Contains(t, format.Script.Body, "mkfs.ext4 -F -q '/dev/sdb1'\n")
}

func TestPartitionPath(t *testing.T) {
	assert.Equal(t, "/dev/sda1", PartitionPath("/dev/sda"))
	assert.Equal(t, "/dev/nvme0n1p1", PartitionPath("/dev/nvme0n1"))
	assert.Equal(t, "/dev/mmcblk0p1", PartitionPath("/dev/mmcblk0"))
	assert.Empty(t, PartitionPath(""))
}

func TestLinuxFormatQuotesDevice(t *testing.T) {
	script := LinuxFormatScript("/dev/it's", wipe.FAT32)
	assert.Contains(t, script, `wipefs --all --force '/dev/it'\''s'`)
	assert.Contains(t, script, "mkfs.vfat -F 32")
}

func TestCloneInvokesSelf(t *testing.T) {
	b := &Builder{Platform: Windows, Self: `C:\tools\diskwipe.exe`, ChunkSize: 1 << 20, MaxSpeedMBps: 50}
	spec := b.Clone(catalog.Drive{ID: 0, Path: `\\.\PHYSICALDRIVE0`, TotalBytes: 500}, `D:\disk0.img`)

	assert.Equal(t, `C:\tools\diskwipe.exe`, spec.Name)
	assert.Equal(t, []string{
		CloneStreamCommand,
		"--source", `\\.\PHYSICALDRIVE0`,
		"--target", `D:\disk0.img`,
		"--size", "500",
		"--chunk-size", "1048576",
		"--max-speed", "50",
	}, spec.Args)
	assert.Nil(t, spec.Script)
}

func TestSupports(t *testing.T) {
	assert.False(t, (&Builder{Platform: Windows}).Supports(wipe.Ext4))
	assert.True(t, (&Builder{Platform: Linux}).Supports(wipe.Ext4))
	assert.True(t, (&Builder{Platform: Windows}).Supports(wipe.NTFS))
}
