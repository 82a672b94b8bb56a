package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const diskDriveOutput = "Index  Model                          Size          \r\r\n" +
	"0      Samsung SSD 970 EVO Plus 1TB   1000202273280 \r\r\n" +
	"1      SanDisk Cruzer USB Device      15631122432   \r\r\n" +
	"\r\r\n"

const logicalDiskOutput = "Caption  FileSystem  FreeSpace     Size          \r\n" +
	"C:       NTFS        312000000000  999000000000  \r\n" +
	"D:                                               \r\n" +
	"E:       FAT32       15000000000   15600000000   \r\n"

const partitionMapOutput = `Antecedent                                                                  Dependent
\\HOST\root\cimv2:Win32_DiskPartition.DeviceID="Disk #0, Partition #2"      \\HOST\root\cimv2:Win32_LogicalDisk.DeviceID="C:"
\\HOST\root\cimv2:Win32_DiskPartition.DeviceID="Disk #1, Partition #0"      \\HOST\root\cimv2:Win32_LogicalDisk.DeviceID="E:"
`

func TestParseDiskDrives(t *testing.T) {
	rows := ParseDiskDrives(diskDriveOutput)
	require.Len(t, rows, 2)
	assert.Equal(t, DiskRow{Index: 0, Model: "Samsung SSD 970 EVO Plus 1TB", Size: 1000202273280, Path: `\\.\PHYSICALDRIVE0`}, rows[0])
	assert.Equal(t, "SanDisk Cruzer USB Device", rows[1].Model)
	assert.Equal(t, uint64(15631122432), rows[1].Size)
}

func TestParseLogicalDisks(t *testing.T) {
	rows := ParseLogicalDisks(logicalDiskOutput)
	require.Len(t, rows, 3)
	assert.Equal(t, VolumeRow{DiskIndex: -1, Caption: "C:", Filesystem: "NTFS", Size: 999000000000, Free: 312000000000}, rows[0])
	assert.Equal(t, "", rows[1].Filesystem)
	assert.Zero(t, rows[1].Size)
}

func TestPartitionMapAttachesVolumes(t *testing.T) {
	mapping := ParsePartitionMap(partitionMapOutput)
	assert.Equal(t, map[string]int{"C:": 0, "E:": 1}, mapping)

	vols := AttachVolumes(ParseLogicalDisks(logicalDiskOutput), mapping)
	assert.Equal(t, 0, vols[0].DiskIndex)
	assert.Equal(t, -1, vols[1].DiskIndex)
	assert.Equal(t, 1, vols[2].DiskIndex)

	drives := Normalize(ParseDiskDrives(diskDriveOutput), vols, mapping["C:"])
	require.Len(t, drives, 2)
	assert.True(t, drives[0].IsSystemDisk)
	assert.Equal(t, []string{"NTFS"}, drives[0].Filesystems)
	assert.Equal(t, []string{"FAT32"}, drives[1].Filesystems)
	assert.Equal(t, uint64(600000000), drives[1].UsedBytes)
}

func TestParseTableEmpty(t *testing.T) {
	assert.Nil(t, parseTable("\r\n\r\n"))
	assert.Empty(t, ParseDiskDrives("Index  Model  Size\r\n"))
}
