//go:build linux

package catalog

import (
	"context"

	"github.com/shirou/gopsutil/v3/disk"
)

type lsblkSource struct {
	run   commandFunc
	usage func(ctx context.Context, path string) (*disk.UsageStat, error)
}

// DefaultSource queries lsblk and fills usage for mounted filesystems.
func DefaultSource() Source {
	return &lsblkSource{run: runQuery, usage: disk.UsageWithContext}
}

// Snapshot runs lsblk once; disks, volumes and the system disk all come
// from that one layout.
func (s *lsblkSource) Snapshot(ctx context.Context) (Source, error) {
	out, err := s.run(ctx, "lsblk", LsblkArgs...)
	if err != nil {
		return nil, err
	}
	l, err := ParseLsblk(out)
	if err != nil {
		return nil, err
	}

	volumes := make([]VolumeRow, 0, len(l.Volumes))
	for _, v := range l.Volumes {
		row := v.VolumeRow
		if v.Mountpoint != "" && v.Mountpoint != "[SWAP]" {
			if u, err := s.usage(ctx, v.Mountpoint); err == nil {
				row.Free = u.Free
				if u.Total > 0 {
					row.Size = u.Total
				}
			}
		}
		volumes = append(volumes, row)
	}
	return &Rows{DiskRows: l.Disks, VolumeRows: volumes, System: l.SystemDisk}, nil
}

func (s *lsblkSource) Disks(ctx context.Context) ([]DiskRow, error) {
	r, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return r.Disks(ctx)
}

func (s *lsblkSource) Volumes(ctx context.Context) ([]VolumeRow, error) {
	r, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return r.Volumes(ctx)
}

func (s *lsblkSource) SystemDisk(ctx context.Context) (int, error) {
	r, err := s.Snapshot(ctx)
	if err != nil {
		return -1, err
	}
	return r.SystemDisk(ctx)
}
