// Package diskcmd builds the external commands that erase, format and
// clone physical drives.
package diskcmd

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"diskwipe/internal/catalog"
	"diskwipe/internal/runner"
	"diskwipe/internal/wipe"
)

type Platform string

const (
	Windows Platform = "windows"
	Linux   Platform = "linux"
)

// CloneStreamCommand is the hidden subcommand that performs the copy.
const CloneStreamCommand = "clone-stream"

type Builder struct {
	Platform Platform
	// Self is the path of the diskwipe executable, used for clones.
	Self         string
	ChunkSize    int
	MaxSpeedMBps float64
}

// New returns a builder for the running platform.
func New(self string) *Builder {
	p := Linux
	if runtime.GOOS == "windows" {
		p = Windows
	}
	return &Builder{Platform: p, Self: self}
}

// Filesystems lists what the format pass can create on this platform.
func (b *Builder) Filesystems() []wipe.Filesystem {
	if b.Platform == Windows {
		return []wipe.Filesystem{wipe.NTFS, wipe.FAT32, wipe.ExFAT}
	}
	return []wipe.Filesystem{wipe.NTFS, wipe.FAT32, wipe.ExFAT, wipe.Ext4}
}

func (b *Builder) Supports(fs wipe.Filesystem) bool {
	for _, f := range b.Filesystems() {
		if f == fs {
			return true
		}
	}
	return false
}

func (b *Builder) Pass(drive catalog.Drive, pass wipe.PassSpec) runner.CommandSpec {
	label := fmt.Sprintf("%s disk %d pass %d/%d", pass.Kind, drive.ID, pass.Index+1, pass.TotalPasses)
	if b.Platform == Windows {
		body := DiskpartOverwrite(drive.ID)
		if pass.Kind == wipe.FormatAndPartition {
			body = DiskpartFormat(drive.ID, pass.Filesystem)
		}
		return runner.CommandSpec{
			Label:  label,
			Name:   "diskpart",
			Args:   []string{"/s", runner.ScriptPathArg},
			Script: &runner.Script{Body: body, Pattern: fmt.Sprintf("diskpart_%d_%d_*.txt", drive.ID, pass.Index)},
		}
	}

	if pass.Kind == wipe.FormatAndPartition {
		return runner.CommandSpec{
			Label:  label,
			Name:   "sh",
			Args:   []string{runner.ScriptPathArg},
			Script: &runner.Script{Body: LinuxFormatScript(drive.Path, pass.Filesystem), Pattern: fmt.Sprintf("format_%d_*.sh", drive.ID)},
		}
	}
	return runner.CommandSpec{
		Label: label,
		Name:  "shred",
		Args:  []string{"--iterations=1", "--force", drive.Path},
	}
}

func (b *Builder) Clone(drive catalog.Drive, target string) runner.CommandSpec {
	args := []string{
		CloneStreamCommand,
		"--source", drive.Path,
		"--target", target,
		"--size", strconv.FormatUint(drive.TotalBytes, 10),
	}
	if b.ChunkSize > 0 {
		args = append(args, "--chunk-size", strconv.Itoa(b.ChunkSize))
	}
	if b.MaxSpeedMBps > 0 {
		args = append(args, "--max-speed", strconv.FormatFloat(b.MaxSpeedMBps, 'f', -1, 64))
	}
	return runner.CommandSpec{
		Label: fmt.Sprintf("clone disk %d", drive.ID),
		Name:  b.Self,
		Args:  args,
	}
}

// DiskpartOverwrite zeroes every sector of the disk.
func DiskpartOverwrite(disk int) string {
	return fmt.Sprintf("select disk %d\nclean all\nexit\n", disk)
}

// DiskpartFormat leaves the disk with one active primary partition.
func DiskpartFormat(disk int, fs wipe.Filesystem) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "select disk %d\n", disk)
	sb.WriteString("clean\n")
	sb.WriteString("create partition primary\n")
	sb.WriteString("active\n")
	fmt.Fprintf(&sb, "format fs=%s quick\n", strings.ToLower(string(fs)))
	sb.WriteString("assign\n")
	sb.WriteString("exit\n")
	return sb.String()
}

// PartitionPath is the first partition of dev. Devices whose name ends in
// a digit (nvme0n1, mmcblk0) use a "p" separator.
func PartitionPath(dev string) string {
	if dev == "" {
		return ""
	}
	last := dev[len(dev)-1]
	if last >= '0' && last <= '9' {
		return dev + "p1"
	}
	return dev + "1"
}

func mkfs(fs wipe.Filesystem, part string) string {
	switch fs {
	case wipe.NTFS:
		return "mkfs.ntfs --quick --force " + part
	case wipe.FAT32:
		return "mkfs.vfat -F 32 " + part
	case wipe.Ext4:
		return "mkfs.ext4 -F -q " + part
	default:
		return "mkfs.exfat " + part
	}
}

// LinuxFormatScript recreates a single bootable partition and formats it.
func LinuxFormatScript(dev string, fs wipe.Filesystem) string {
	q := shellQuote(dev)
	part := shellQuote(PartitionPath(dev))

	var sb strings.Builder
	sb.WriteString("set -e\n")
	fmt.Fprintf(&sb, "wipefs --all --force %s\n", q)
	fmt.Fprintf(&sb, "parted --script %s mklabel msdos mkpart primary 1MiB 100%% set 1 boot on\n", q)
	fmt.Fprintf(&sb, "blockdev --rereadpt %s || true\n", q)
	sb.WriteString("udevadm settle || true\n")
	sb.WriteString(mkfs(fs, part) + "\n")
	return sb.String()
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
