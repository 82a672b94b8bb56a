// Package catalog turns platform drive enumeration into a sorted, immutable
// list of physical drives.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"diskwipe/internal/logging"
)

var (
	// ErrEnumerationFailed means the platform query could not run. It is
	// retryable by enumerating again.
	ErrEnumerationFailed = errors.New("drive enumeration failed")
	ErrDriveNotFound     = errors.New("drive not found")
)

// UnpartitionedLabel is reported for drives without partition information.
const UnpartitionedLabel = "Unpartitioned"

// Drive is a snapshot of one physical device. It is never mutated; a new
// List call produces new values.
type Drive struct {
	ID           int      `json:"id"`
	DisplayName  string   `json:"display_name"`
	Model        string   `json:"model"`
	Path         string   `json:"path"`
	TotalBytes   uint64   `json:"total_bytes"`
	UsedBytes    uint64   `json:"used_bytes"`
	FreeBytes    uint64   `json:"free_bytes"`
	Filesystems  []string `json:"filesystems"`
	IsSystemDisk bool     `json:"is_system_disk"`
}

// DiskRow is one physical device as reported by the platform.
type DiskRow struct {
	Index int
	Model string
	Size  uint64
	Path  string
}

// VolumeRow is one partition or logical volume. DiskIndex is -1 when the
// platform cannot attribute the volume to a device.
type VolumeRow struct {
	DiskIndex  int
	Caption    string
	Filesystem string
	Size       uint64
	Free       uint64
}

// Source is the platform query behind the catalog.
type Source interface {
	Disks(ctx context.Context) ([]DiskRow, error)
	Volumes(ctx context.Context) ([]VolumeRow, error)
	// SystemDisk returns the index of the boot device, or -1 if unknown.
	SystemDisk(ctx context.Context) (int, error)
}

// Snapshotter is implemented by sources that can answer all three queries
// from a single platform enumeration, so the rows agree on device indices.
type Snapshotter interface {
	Snapshot(ctx context.Context) (Source, error)
}

// Rows is a Source over already collected rows.
type Rows struct {
	DiskRows   []DiskRow
	VolumeRows []VolumeRow
	// VolumeErr is returned by Volumes; volume failures are not fatal.
	VolumeErr error
	System    int
}

func (r *Rows) Disks(context.Context) ([]DiskRow, error)     { return r.DiskRows, nil }
func (r *Rows) Volumes(context.Context) ([]VolumeRow, error) { return r.VolumeRows, r.VolumeErr }
func (r *Rows) SystemDisk(context.Context) (int, error)      { return r.System, nil }

type Catalog struct {
	source Source
	logger *zap.Logger
}

func New(source Source, logger *zap.Logger) *Catalog {
	return &Catalog{source: source, logger: logging.OrNop(logger)}
}

// List enumerates drives sorted by device index.
func (c *Catalog) List(ctx context.Context) ([]Drive, error) {
	source := c.source
	if snap, ok := source.(Snapshotter); ok {
		rows, err := snap.Snapshot(ctx)
		if err != nil {
			c.logger.Error("Disk enumeration failed", zap.Error(err))
			return nil, errors.Mark(errors.Wrap(err, "snapshot disks"), ErrEnumerationFailed)
		}
		source = rows
	}

	disks, err := source.Disks(ctx)
	if err != nil {
		c.logger.Error("Disk enumeration failed", zap.Error(err))
		return nil, errors.Mark(errors.Wrap(err, "list disks"), ErrEnumerationFailed)
	}

	volumes, err := source.Volumes(ctx)
	if err != nil {
		// Volumes only refine usage figures.
		c.logger.Warn("Volume enumeration failed, reporting drives as unpartitioned", zap.Error(err))
		volumes = nil
	}

	system, err := source.SystemDisk(ctx)
	if err != nil {
		c.logger.Warn("System disk detection failed", zap.Error(err))
		system = -1
	}

	drives := Normalize(disks, volumes, system)
	c.logger.Info("Drives enumerated", zap.Int("count", len(drives)), zap.Int("system_disk", system))
	return drives, nil
}

// Lookup enumerates and returns the drive with the given index.
func (c *Catalog) Lookup(ctx context.Context, id int) (Drive, error) {
	drives, err := c.List(ctx)
	if err != nil {
		return Drive{}, err
	}
	for _, d := range drives {
		if d.ID == id {
			return d, nil
		}
	}
	return Drive{}, errors.Wrapf(ErrDriveNotFound, "disk %d", id)
}

// Normalize coalesces volumes into their drives. Exactly one drive is
// marked as system disk: systemIndex if present, otherwise the device with
// the lowest index.
func Normalize(disks []DiskRow, volumes []VolumeRow, systemIndex int) []Drive {
	byDisk := make(map[int][]VolumeRow)
	for _, v := range volumes {
		byDisk[v.DiskIndex] = append(byDisk[v.DiskIndex], v)
	}

	present := false
	lowest := -1
	for _, d := range disks {
		if d.Index == systemIndex {
			present = true
		}
		if lowest < 0 || d.Index < lowest {
			lowest = d.Index
		}
	}
	if !present {
		systemIndex = lowest
	}

	drives := make([]Drive, 0, len(disks))
	for _, d := range disks {
		drive := Drive{
			ID:           d.Index,
			Model:        strings.TrimSpace(d.Model),
			Path:         d.Path,
			TotalBytes:   d.Size,
			IsSystemDisk: d.Index == systemIndex,
		}
		if drive.Model == "" {
			drive.Model = "Unknown"
		}
		drive.DisplayName = fmt.Sprintf("Disk %d", d.Index)
		if drive.IsSystemDisk {
			drive.DisplayName += " (System Disk)"
		}

		fsSet := make(map[string]struct{})
		var used uint64
		for _, v := range byDisk[d.Index] {
			fs := strings.TrimSpace(v.Filesystem)
			if fs != "" && !strings.EqualFold(fs, "Unformatted") {
				fsSet[fs] = struct{}{}
			}
			if v.Size > v.Free {
				used += v.Size - v.Free
			}
		}

		if len(fsSet) == 0 {
			drive.Filesystems = []string{UnpartitionedLabel}
			drive.UsedBytes = 0
			drive.FreeBytes = d.Size
		} else {
			for fs := range fsSet {
				drive.Filesystems = append(drive.Filesystems, fs)
			}
			sort.Strings(drive.Filesystems)
			if used > d.Size {
				used = d.Size
			}
			drive.UsedBytes = used
			drive.FreeBytes = d.Size - used
		}

		drives = append(drives, drive)
	}

	sort.Slice(drives, func(i, j int) bool { return drives[i].ID < drives[j].ID })
	return drives
}
