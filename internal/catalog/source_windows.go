//go:build windows

package catalog

import (
	"context"
	"os"
	"strings"
)

type wmicSource struct {
	run commandFunc
}

// DefaultSource queries WMI through wmic.
func DefaultSource() Source {
	return &wmicSource{run: runQuery}
}

// Snapshot runs each wmic query once. A failed volume or partition query
// leaves the drives unpartitioned and the system disk unknown.
func (s *wmicSource) Snapshot(ctx context.Context) (Source, error) {
	out, err := s.run(ctx, "wmic", "diskdrive", "get", "Index,Model,Size")
	if err != nil {
		return nil, err
	}
	rows := &Rows{DiskRows: ParseDiskDrives(string(out)), System: -1}

	mapping, err := s.partitionMap(ctx)
	if err != nil {
		rows.VolumeErr = err
		return rows, nil
	}
	rows.System = systemDisk(mapping)

	out, err = s.run(ctx, "wmic", "logicaldisk", "get", "Caption,FileSystem,FreeSpace,Size")
	if err != nil {
		rows.VolumeErr = err
		return rows, nil
	}
	rows.VolumeRows = AttachVolumes(ParseLogicalDisks(string(out)), mapping)
	return rows, nil
}

func (s *wmicSource) partitionMap(ctx context.Context) (map[string]int, error) {
	out, err := s.run(ctx, "wmic", "path", "Win32_LogicalDiskToPartition", "get", "Antecedent,Dependent")
	if err != nil {
		return nil, err
	}
	return ParsePartitionMap(string(out)), nil
}

func systemDisk(mapping map[string]int) int {
	drive := os.Getenv("SystemDrive")
	if drive == "" {
		drive = "C:"
	}
	if idx, ok := mapping[strings.ToUpper(drive)]; ok {
		return idx
	}
	return -1
}

func (s *wmicSource) Disks(ctx context.Context) ([]DiskRow, error) {
	r, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return r.Disks(ctx)
}

func (s *wmicSource) Volumes(ctx context.Context) ([]VolumeRow, error) {
	r, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return r.Volumes(ctx)
}

func (s *wmicSource) SystemDisk(ctx context.Context) (int, error) {
	r, err := s.Snapshot(ctx)
	if err != nil {
		return -1, err
	}
	return r.SystemDisk(ctx)
}
